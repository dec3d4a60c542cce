package emulator

import (
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWidth  = 100
	testHeight = 20
)

// firstPixels covers the first n pixels in row-major order with fragments inside the emitting band.
func firstPixels(n uint32) CoverageFunc {
	return func(x, y uint32) (Fragment, bool) {
		if y*testWidth+x >= n {
			return Fragment{}, false
		}
		return Fragment{Depth: 0.5, Noise: 0.45, Spawn: 1}, true
	}
}

func testFrame(cover CoverageFunc) Frame {
	var inv [16]float32
	common.Identity(inv[:])
	return Frame{
		Coverage:              cover,
		InverseViewProjection: inv,
		Model:                 particles.GPUModelUniform{AlphaReference: 0.5, DeltaAlphaEstimation: 0.1, ModelAlpha: 1},
		System:                particles.GPUParticleSystem{DeltaT: 0.016, Speed: 1, Random: 0.3, Time: 1, Lifetime: 3},
	}
}

func newTestEmulator(t *testing.T, maxParticles uint32, opts ...EmulatorBuilderOption) Emulator {
	t.Helper()
	e, err := NewEmulator(testWidth, testHeight, maxParticles, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func writesOfFrame(writes []SlotWrite, frame uint64) []SlotWrite {
	var out []SlotWrite
	for _, w := range writes {
		if w.Frame == frame {
			out = append(out, w)
		}
	}
	return out
}

func TestNewEmulatorRejectsZeroSizes(t *testing.T) {
	_, err := NewEmulator(0, 10, 16)
	assert.Error(t, err)
	_, err = NewEmulator(10, 10, 0)
	assert.Error(t, err)
}

func TestEmulatorEndToEnd(t *testing.T) {
	e := newTestEmulator(t, 1024, WithInstrumentation())

	first, err := e.Step(testFrame(firstPixels(300)))
	require.NoError(t, err)
	require.Equal(t, uint32(300), first.Global.ParticleIndex)

	stats, err := e.Step(testFrame(firstPixels(500)))
	require.NoError(t, err)

	assert.Equal(t, uint32(500), stats.Emitted)
	assert.Equal(t, particles.GPUDispatchIndirectCommand{X: 8, Y: 1, Z: 1}, stats.Dispatch)
	assert.Equal(t, uint32(800), stats.Global.RenderCount)
	assert.Equal(t, uint32(300), stats.Global.CachedCount)
	assert.Equal(t, particles.GPUDrawIndirectCommand{VertexCount: 800, InstanceCount: 1}, stats.Draw)
	assert.Equal(t, 3, stats.Barriers)

	writes := writesOfFrame(e.SlotWrites(), stats.Frame)
	require.Len(t, writes, 500)
	slots := make([]uint32, 0, len(writes))
	for _, w := range writes {
		assert.Less(t, w.Invocation, uint32(500), "invocation past the job count wrote slot %d", w.Slot)
		slots = append(slots, w.Slot)
	}
	slices.Sort(slots)
	for i, s := range slots {
		assert.Equal(t, uint32(300+i), s)
	}
	assert.Len(t, e.Jobs(), 500)
}

func TestEmulatorZeroEmission(t *testing.T) {
	e := newTestEmulator(t, 1024)

	_, err := e.Step(testFrame(firstPixels(120)))
	require.NoError(t, err)

	stats, err := e.Step(testFrame(nil))
	require.NoError(t, err)

	assert.Equal(t, uint32(0), stats.Emitted)
	assert.Equal(t, particles.GPUDispatchIndirectCommand{X: 0, Y: 1, Z: 1}, stats.Dispatch)
	assert.Equal(t, uint32(120), stats.Global.RenderCount)
	assert.Equal(t, uint32(120), stats.Global.ParticleIndex)
	assert.Empty(t, e.Jobs())
}

func TestEmulatorRingWraparound(t *testing.T) {
	e := newTestEmulator(t, 1024, WithInstrumentation())

	_, err := e.Step(testFrame(firstPixels(600)))
	require.NoError(t, err)
	stats, err := e.Step(testFrame(firstPixels(500)))
	require.NoError(t, err)

	assert.Equal(t, uint32(76), stats.Global.ParticleIndex)
	assert.Equal(t, uint32(1024), stats.Global.RenderCount)

	var wrapped []uint32
	for _, w := range writesOfFrame(e.SlotWrites(), stats.Frame) {
		assert.Less(t, w.Slot, uint32(1024))
		if w.Slot < 600 {
			wrapped = append(wrapped, w.Slot)
		}
	}
	slices.Sort(wrapped)
	require.Len(t, wrapped, 76)
	assert.Equal(t, uint32(75), wrapped[len(wrapped)-1])
}

func TestEmulatorOverfullFrameWritesEachSlotOnce(t *testing.T) {
	e := newTestEmulator(t, 256, WithInstrumentation())

	stats, err := e.Step(testFrame(firstPixels(1000)))
	require.NoError(t, err)
	assert.Equal(t, uint32(1000%256), stats.Global.ParticleIndex)

	seen := map[uint32]bool{}
	for _, w := range e.SlotWrites() {
		require.False(t, seen[w.Slot], "slot %d written twice", w.Slot)
		seen[w.Slot] = true
	}
	assert.Len(t, seen, 256)
}

func TestEmulatorDepthTest(t *testing.T) {
	e := newTestEmulator(t, 1024)

	calls := 0
	cover := func(x, y uint32) (Fragment, bool) {
		if x != 0 || y != 0 {
			return Fragment{}, false
		}
		calls++
		// the prepass sees depth 0.2, emission sees 0.8 and fails LessEqual
		if calls == 1 {
			return Fragment{Depth: 0.2, Noise: 0.45, Spawn: 1}, true
		}
		return Fragment{Depth: 0.8, Noise: 0.45, Spawn: 1}, true
	}
	stats, err := e.Step(testFrame(cover))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stats.Emitted)
}

func TestEmulatorParticlesCarrySpawnTime(t *testing.T) {
	e := newTestEmulator(t, 64)

	frame := testFrame(firstPixels(10))
	frame.System.Time = 4.25
	_, err := e.Step(frame)
	require.NoError(t, err)

	ps := e.Particles()
	require.Len(t, ps, 64)
	for i := range 10 {
		assert.Equal(t, float32(4.25), ps[i].Position[3])
	}
	assert.Zero(t, ps[10])
}

func TestEmulatorResizeKeepsRing(t *testing.T) {
	e := newTestEmulator(t, 1024)
	_, err := e.Step(testFrame(firstPixels(50)))
	require.NoError(t, err)

	e.Resize(40, 10)
	assert.Equal(t, uint32(50), e.Global().ParticleIndex)

	stats, err := e.Step(testFrame(func(x, y uint32) (Fragment, bool) {
		return Fragment{Depth: 0.5, Noise: 0.45, Spawn: 1}, true
	}))
	require.NoError(t, err)
	assert.Equal(t, uint32(400), stats.Emitted)
	assert.Equal(t, uint32(450), stats.Global.ParticleIndex)
}

func TestEmulatorRejectsInvalidPlan(t *testing.T) {
	plan := particles.DefaultFramePlan()
	plan.Steps = slices.Delete(plan.Steps, 5, 6)
	e := newTestEmulator(t, 1024, WithFramePlan(plan))

	_, err := e.Step(testFrame(firstPixels(10)))
	assert.ErrorIs(t, err, particles.ErrMissingBarrier)
}

func TestEmulatorMetrics(t *testing.T) {
	m := metrics.New()
	e := newTestEmulator(t, 1024, WithMetrics(m))

	_, err := e.Step(testFrame(firstPixels(70)))
	require.NoError(t, err)
	_, err = e.Step(testFrame(firstPixels(30)))
	require.NoError(t, err)

	assert.Equal(t, 100.0, testutil.ToFloat64(m.EmittedTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.RenderCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.ParticleCapacity))
	assert.Equal(t, float64(testWidth*testHeight), testutil.ToFloat64(m.JobCapacity))
}

func TestEmulatorDropsJobsPastQueueCapacity(t *testing.T) {
	m := metrics.New()
	e := newTestEmulator(t, 1024, WithJobCapacity(100), WithMetrics(m))

	stats, err := e.Step(testFrame(firstPixels(300)))
	require.NoError(t, err)

	assert.Equal(t, uint32(100), stats.Emitted)
	assert.Equal(t, uint32(200), stats.Dropped)
	assert.Equal(t, particles.GPUDispatchIndirectCommand{X: 2, Y: 1, Z: 1}, stats.Dispatch)
	assert.Equal(t, uint32(100), stats.Global.ParticleIndex)
	assert.Equal(t, 200.0, testutil.ToFloat64(m.DroppedTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.JobCapacity))

	jobs := e.Jobs()
	require.Len(t, jobs, 100)
	seen := make(map[[2]float32]bool)
	for _, j := range jobs {
		assert.False(t, seen[j.ScreenPos], "job %v stored twice", j.ScreenPos)
		seen[j.ScreenPos] = true
	}
}
