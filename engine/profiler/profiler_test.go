package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTickReportsAfterInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()
	p := NewProfiler(zap.New(core), m)
	start := p.lastTime

	for i := 1; i < 30; i++ {
		assert.False(t, p.tickAt(start.Add(time.Duration(i)*10*time.Millisecond)))
	}
	assert.True(t, p.tickAt(start.Add(time.Second)))

	s := p.LastSample()
	assert.InDelta(t, 30, s.FPS, 1e-9)
	assert.NotZero(t, s.HeapBytes)
	assert.InDelta(t, 30, testutil.ToFloat64(m.FPS), 1e-9)
	assert.Equal(t, float64(s.HeapBytes), testutil.ToFloat64(m.HeapBytes))

	entries := logs.FilterMessage("frame stats").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "profiler", entries[0].LoggerName)
		assert.InDelta(t, 30, entries[0].ContextMap()["fps"], 1e-9)
	}

	// The window restarts after a report.
	assert.False(t, p.tickAt(start.Add(1500*time.Millisecond)))
}

func TestSetInterval(t *testing.T) {
	p := NewProfiler(nil, nil)
	p.SetInterval(0)
	assert.Equal(t, time.Second, p.updateInterval)
	p.SetInterval(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, p.updateInterval)

	assert.True(t, p.tickAt(p.lastTime.Add(250*time.Millisecond)))
}
