package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWatcherReloadsTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  alpha_reference: 0.1\n"), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	changes := make(chan Tunables, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c.Tunables },
		WithDebounce(20*time.Millisecond),
		WithWatcherLogger(zap.New(core)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  alpha_reference: 0.6\n  hide_speed: 0.3\n"), 0o644))

	select {
	case got := <-changes:
		assert.InDelta(t, 0.6, got.AlphaReference, 1e-6)
		assert.InDelta(t, 0.3, got.HideSpeed, 1e-6)
		assert.NotZero(t, logs.FilterMessage("watching config").Len())
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not delivered")
	}
}

func TestWatcherSkipsInvalidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  alpha_reference: 0.1\n"), 0o644))

	changes := make(chan Tunables, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c.Tunables }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  alpha_reference: 7\n"), 0o644))

	select {
	case got := <-changes:
		t.Fatalf("unexpected reload with alpha %v", got.AlphaReference)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.False(t, w.shouldProcessEvent(fsnotifyEvent(filepath.Join(dir, "other.yaml"))))
	assert.True(t, w.shouldProcessEvent(fsnotifyEvent(path)))
}

func TestWatcherStopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit")
	}
}

func fsnotifyEvent(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
