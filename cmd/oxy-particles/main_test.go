package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles/emulator"
	"github.com/Carmen-Shannon/oxy-particles/engine/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp() *app {
	cfg := config.Default()
	cfg.Particles.MaxParticles = 4096
	cfg.Assets.TextureSize = 64
	cfg.Tunables.AlphaReference = 0.3
	cfg.Tunables.DeltaAlphaEstimation = 0.1
	return &app{cfg: cfg, log: zap.NewNop()}
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetArgs([]string{"validate"})
	root.SetOut(&out)
	require.NoError(t, root.ExecuteContext(context.Background()))

	text := out.String()
	assert.NotContains(t, text, "FAIL")
	assert.Contains(t, text, "ok    binding contract")
	assert.Contains(t, text, "ok    frame plan")
}

func TestValidateMissingShaderDir(t *testing.T) {
	var out bytes.Buffer
	err := validate(zap.NewNop(), t.TempDir(), &out)
	assert.ErrorContains(t, err, "read shader")
}

func TestRootRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("particles:\n  max_particles: 0\n"), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"--config", path, "validate"})
	root.SetOut(&bytes.Buffer{})
	assert.ErrorIs(t, root.ExecuteContext(context.Background()), config.ErrInvalid)
}

func TestEmulatePrintsCounters(t *testing.T) {
	var out bytes.Buffer
	opts := &emulateOptions{frames: 30, every: 10, width: 64, height: 32, dt: 1.0 / 60, workers: 2, seed: 3}
	require.NoError(t, emulate(context.Background(), testApp(), opts, &out))

	rows := tableRows(out.String())
	// Header plus frames 1, 11, 21 and the last frame.
	require.Len(t, rows, 5)
	assert.Equal(t, statsHeader, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "30", rows[4][0])
	for _, row := range rows[1:] {
		assert.Len(t, row, len(statsHeader))
	}
}

// tableRows returns the cells of every rendered table row, skipping border lines.
func tableRows(rendered string) [][]string {
	isBorder := func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("|+-=", r) || (r >= 0x2500 && r <= 0x257f)
	}
	var rows [][]string
	for _, line := range strings.Split(rendered, "\n") {
		if cells := strings.FieldsFunc(line, isBorder); len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}

func TestStatsRow(t *testing.T) {
	stats := emulator.FrameStats{
		Frame:    7,
		Emitted:  500,
		Dispatch: particles.GPUDispatchIndirectCommand{X: 8, Y: 1, Z: 1},
		Global:   particles.GPUGlobalParticleData{RenderCount: 900, CachedCount: 400, ParticleIndex: 900},
	}
	assert.Equal(t, []string{"7", "0.250", "500", "0", "8", "900", "400", "900"}, statsRow(stats, 0.25))
}

func TestEmulateRejectsBadOptions(t *testing.T) {
	opts := &emulateOptions{frames: 0, width: 64, height: 32, dt: 0.01}
	assert.Error(t, emulate(context.Background(), testApp(), opts, &bytes.Buffer{}))
}

func TestEmulationClock(t *testing.T) {
	tunables := testApp().cfg.Tunables
	tunables.HideSpeed = 1
	c := newEmulationClock(tunables)

	model, sys := c.step(0.5)
	assert.InDelta(t, 0.8, model.AlphaReference, 1e-6)
	assert.InDelta(t, 0.2, model.ModelAlpha, 1e-6)
	assert.Equal(t, float32(0.5), sys.Time)
	assert.Equal(t, model.Time, sys.Time)
	assert.Less(t, sys.Random, float32(1))

	for range 10 {
		model, _ = c.step(0.5)
	}
	assert.InDelta(t, 1.1, model.AlphaReference, 1e-6)
	assert.Zero(t, model.ModelAlpha)
}

func TestDiscCoverage(t *testing.T) {
	textures, err := texture.LoadSet(context.Background(), texture.Sources{Size: 16, Seed: 2})
	require.NoError(t, err)
	cover := discCoverage(40, 20, textures)

	center, ok := cover(20, 10)
	require.True(t, ok)
	assert.InDelta(t, 0.5, center.Depth, 0.01)
	assert.GreaterOrEqual(t, center.Noise, float32(0))
	assert.LessOrEqual(t, center.Noise, float32(1))

	edge, ok := cover(20, 3)
	require.True(t, ok)
	assert.Greater(t, edge.Depth, center.Depth)

	_, ok = cover(0, 0)
	assert.False(t, ok)
	_, ok = cover(39, 19)
	assert.False(t, ok)
}
