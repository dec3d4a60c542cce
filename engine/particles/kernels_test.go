package particles

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCommandsDispatch(t *testing.T) {
	tests := []struct {
		count uint32
		wantX uint32
	}{
		{0, 0},
		{1, 1},
		{63, 1},
		{64, 1},
		{65, 2},
		{500, 8},
		{4096, 64},
	}
	for _, tt := range tests {
		cmd := GPUCommandArguments{ParticleCount: tt.count}
		global := NewGlobalParticleData(1 << 16)
		DeriveCommands(&cmd, &global, 1<<20)

		assert.Equal(t, GPUDispatchIndirectCommand{X: tt.wantX, Y: 1, Z: 1}, cmd.Dispatch, "count %d", tt.count)
		assert.Equal(t, tt.count, global.NewEmittedCount)
	}
}

func TestDeriveCommandsClampsToJobCapacity(t *testing.T) {
	cmd := GPUCommandArguments{ParticleCount: 900}
	global := NewGlobalParticleData(4096)
	DeriveCommands(&cmd, &global, 640)

	assert.Equal(t, uint32(640), cmd.ParticleCount)
	assert.Equal(t, uint32(10), cmd.Dispatch.X)
	assert.Equal(t, uint32(640), global.NewEmittedCount)
}

func TestDeriveCommandsAdvancesRing(t *testing.T) {
	global := NewGlobalParticleData(1024)
	var prev uint32
	for _, emitted := range []uint32{0, 7, 300, 1024, 5, 2000} {
		cmd := GPUCommandArguments{ParticleCount: emitted}
		DeriveCommands(&cmd, &global, 1<<20)

		assert.Equal(t, (prev+emitted)%1024, global.ParticleIndex)
		assert.Less(t, global.ParticleIndex, global.ParticleCountMax)
		prev = global.ParticleIndex
	}
}

func TestDeriveCommandsZeroEmission(t *testing.T) {
	global := NewGlobalParticleData(1024)
	cmd := GPUCommandArguments{ParticleCount: 40}
	DeriveCommands(&cmd, &global, 1<<20)
	require.Equal(t, uint32(40), global.RenderCount)

	cmd = GPUCommandArguments{}
	DeriveCommands(&cmd, &global, 1<<20)

	assert.Equal(t, uint32(0), cmd.ParticleCount)
	assert.Equal(t, GPUDispatchIndirectCommand{X: 0, Y: 1, Z: 1}, cmd.Dispatch)
	assert.Equal(t, uint32(40), global.RenderCount)
	assert.Equal(t, uint32(40), global.CachedCount)
	assert.Equal(t, uint32(40), global.ParticleIndex)
	assert.Equal(t, GPUDrawIndirectCommand{VertexCount: 40, InstanceCount: 1}, cmd.Draw)
}

func TestDeriveCommandsRenderCountSaturates(t *testing.T) {
	global := NewGlobalParticleData(1024)
	for range 3 {
		cmd := GPUCommandArguments{ParticleCount: 400}
		DeriveCommands(&cmd, &global, 1<<20)
	}
	assert.Equal(t, uint32(1024), global.RenderCount)
	assert.Equal(t, uint32(800), global.CachedCount)
	assert.Equal(t, uint32(176), global.ParticleIndex)
}

func TestRingWraparound(t *testing.T) {
	global := NewGlobalParticleData(1024)
	for _, emitted := range []uint32{600, 500} {
		cmd := GPUCommandArguments{ParticleCount: emitted}
		DeriveCommands(&cmd, &global, 1<<20)
	}
	// 1100 particles emitted in total: the next write lands on slot 1100 mod 1024.
	assert.Equal(t, uint32(76), global.ParticleIndex)
	assert.Equal(t, uint32(600), RingBase(global))

	slot, ok := SimulationSlot(global, 499)
	require.True(t, ok)
	assert.Equal(t, uint32(75), slot)
}

func TestSimulationSlotBounds(t *testing.T) {
	global := NewGlobalParticleData(1024)
	cmd := GPUCommandArguments{ParticleCount: 500}
	DeriveCommands(&cmd, &global, 1<<20)

	for i := range cmd.Dispatch.X * ComputeWorkgroupSize {
		slot, ok := SimulationSlot(global, i)
		if i >= 500 {
			assert.False(t, ok, "invocation %d", i)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, i, slot)
	}
}

func TestSimulationSlotOverfullFrame(t *testing.T) {
	global := NewGlobalParticleData(100)
	cmd := GPUCommandArguments{ParticleCount: 250}
	DeriveCommands(&cmd, &global, 1<<20)

	written := map[uint32]uint32{}
	for i := range uint32(250) {
		if slot, ok := SimulationSlot(global, i); ok {
			_, dup := written[slot]
			require.False(t, dup, "slot %d written twice", slot)
			written[slot] = i
		}
	}
	assert.Len(t, written, 100)
	assert.Equal(t, uint32(249), written[(RingBase(global)+249)%100])
}

func TestEmitClampsToQueue(t *testing.T) {
	var counter atomic.Uint32
	jobs := make([]GPUAppendJob, 2)

	assert.True(t, Emit(&counter, jobs, [2]float32{1, 2}))
	assert.True(t, Emit(&counter, jobs, [2]float32{3, 4}))
	assert.False(t, Emit(&counter, jobs, [2]float32{5, 6}))

	// The counter keeps the raw count, derivation clamps it.
	assert.Equal(t, uint32(3), counter.Load())
	assert.Equal(t, []GPUAppendJob{{ScreenPos: [2]float32{1, 2}}, {ScreenPos: [2]float32{3, 4}}}, jobs)
}

func TestEmitConcurrentSlotsAreUnique(t *testing.T) {
	var counter atomic.Uint32
	jobs := make([]GPUAppendJob, 64)
	var stored atomic.Uint32

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Emit(&counter, jobs, [2]float32{float32(i + 1), 0}) {
				stored.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(100), counter.Load())
	assert.Equal(t, uint32(64), stored.Load())
	seen := make(map[float32]bool)
	for _, j := range jobs {
		require.NotZero(t, j.ScreenPos[0])
		assert.False(t, seen[j.ScreenPos[0]])
		seen[j.ScreenPos[0]] = true
	}
}

func TestShouldEmit(t *testing.T) {
	tests := []struct {
		name  string
		spawn float32
		noise float32
		want  bool
	}{
		{"inside band", 1, 0.49, true},
		{"band lower edge", 1, 0.481, true},
		{"at threshold", 1, 0.5, false},
		{"below band", 1, 0.3, false},
		{"masked", 0.2, 0.49, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldEmit(tt.spawn, tt.noise, 0.5, 0.02))
		})
	}
}

func TestScreenToWorldRoundTrip(t *testing.T) {
	proj := make([]float32, 16)
	view := make([]float32, 16)
	vp := make([]float32, 16)
	var inv [16]float32
	common.Perspective(proj, 1.0472, 16.0/9.0, 0.1, 256)
	common.LookAt(view, 0, 0, -2.5, 0, 0, 0, 0, 1, 0)
	common.Mul4(vp, proj, view)
	require.True(t, common.Invert4(inv[:], vp))

	world := [4]float32{0.3, -0.2, 0.1, 1}
	clip := common.TransformVec4(vp, world)
	ndc := [3]float32{clip[0] / clip[3], clip[1] / clip[3], clip[2] / clip[3]}
	viewport := [2]float32{1600, 900}
	screen := [2]float32{(ndc[0] + 1) / 2 * viewport[0], (1 - ndc[1]) / 2 * viewport[1]}

	got := ScreenToWorld(screen, ndc[2], viewport, inv)
	assert.InDelta(t, 0.3, got[0], 1e-3)
	assert.InDelta(t, -0.2, got[1], 1e-3)
	assert.InDelta(t, 0.1, got[2], 1e-3)
}

func TestSimulateParticleStoresSpawnTime(t *testing.T) {
	var inv [16]float32
	common.Identity(inv[:])
	in := SimulationInput{
		InverseViewProjection: inv,
		Viewport:              [2]float32{100, 100},
		System:                GPUParticleSystem{DeltaT: 0.016, Speed: 1, Random: 0.25, Time: 12.5, Lifetime: 3},
	}
	p := SimulateParticle(GPUAppendJob{ScreenPos: [2]float32{50, 50}}, 0.5, 3, in)

	assert.Equal(t, float32(12.5), p.Position[3])
	assert.InDelta(t, 0.5, p.Position[2], 0.01)
	assert.Equal(t, float32(1), p.Color[3])

	again := SimulateParticle(GPUAppendJob{ScreenPos: [2]float32{50, 50}}, 0.5, 3, in)
	assert.Equal(t, p, again)
}

func TestPCGHashKnownValues(t *testing.T) {
	assert.NotEqual(t, PCGHash(0), PCGHash(1))
	assert.Equal(t, PCGHash(42), PCGHash(42))
}

func TestGPUTypeSizes(t *testing.T) {
	assert.Equal(t, 32, (&GPUCommandArguments{}).Size())
	assert.Equal(t, 20, (&GPUGlobalParticleData{}).Size())
	assert.Equal(t, 8, (&GPUAppendJob{}).Size())
	assert.Equal(t, 32, (&GPUParticle{}).Size())
	assert.Equal(t, 16, (&GPUModelUniform{}).Size())
	assert.Equal(t, 32, (&GPUParticleSystem{}).Size())
}

func TestCommandArgumentsLayout(t *testing.T) {
	cmd := GPUCommandArguments{
		ParticleCount: 500,
		Dispatch:      GPUDispatchIndirectCommand{X: 8, Y: 1, Z: 1},
		Draw:          GPUDrawIndirectCommand{VertexCount: 740, InstanceCount: 1},
	}
	buf := cmd.Marshal()
	require.Len(t, buf, 32)
	assert.Equal(t, byte(8), buf[DispatchCommandOffset])
	assert.Equal(t, byte(740&0xff), buf[DrawCommandOffset])
	assert.Equal(t, byte(740>>8), buf[DrawCommandOffset+1])

	var back GPUCommandArguments
	require.NoError(t, back.Unmarshal(buf))
	assert.Equal(t, cmd, back)
	assert.Error(t, back.Unmarshal(buf[:10]))
}
