package particles

import (
	"math"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-particles/common"
)

// SpawnMaskThreshold is the spawn texture value above which a fragment may emit.
const SpawnMaskThreshold = 0.5

// ShouldEmit reports whether a fragment of the emission pass appends a spawn job. A fragment emits when the spawn
// mask allows it and its noise value lies in the dissolve band just below the alpha reference.
//
// Parameters:
//   - spawn: the spawn mask texel
//   - noise: the noise texel
//   - alphaReference: the dissolve threshold
//   - deltaAlphaEstimation: the band width below the threshold
//
// Returns:
//   - bool: true if the fragment emits
func ShouldEmit(spawn, noise, alphaReference, deltaAlphaEstimation float32) bool {
	return spawn > SpawnMaskThreshold && noise < alphaReference && noise >= alphaReference-deltaAlphaEstimation
}

// Emit is the append step of the emission kernel. It reserves a slot with an atomic add on the job counter and
// writes the job when the slot is inside the queue. The counter keeps counting past the capacity, command
// derivation clamps it.
//
// Parameters:
//   - counter: the job counter, GPUCommandArguments.ParticleCount on the GPU
//   - jobs: the append job queue
//   - screenPos: framebuffer coordinates of the emitting fragment
//
// Returns:
//   - bool: false if the queue was full and the job was dropped
func Emit(counter *atomic.Uint32, jobs []GPUAppendJob, screenPos [2]float32) bool {
	idx := counter.Add(1) - 1
	if uint64(idx) >= uint64(len(jobs)) {
		return false
	}
	jobs[idx] = GPUAppendJob{ScreenPos: screenPos}
	return true
}

// DeriveCommands is the command derivation kernel. It reads the job counter written by emission, clamps it to the
// job queue capacity, fills the dispatch and draw commands and advances the ring state. It runs once per frame as a
// single invocation.
//
// Parameters:
//   - cmd: the command argument block, ParticleCount holds the raw job counter
//   - global: the persistent ring state
//   - jobCapacity: the number of slots in the append job queue
func DeriveCommands(cmd *GPUCommandArguments, global *GPUGlobalParticleData, jobCapacity uint32) {
	count := min(cmd.ParticleCount, jobCapacity)
	cmd.ParticleCount = count
	cmd.Dispatch = GPUDispatchIndirectCommand{X: common.CeilDiv(count, ComputeWorkgroupSize), Y: 1, Z: 1}

	maxCount := global.ParticleCountMax
	global.NewEmittedCount = count
	global.CachedCount = global.RenderCount
	global.RenderCount = uint32(min(uint64(global.CachedCount)+uint64(count), uint64(maxCount)))
	if maxCount > 0 {
		global.ParticleIndex = uint32((uint64(global.ParticleIndex) + uint64(count)) % uint64(maxCount))
	}

	cmd.Draw = GPUDrawIndirectCommand{VertexCount: global.RenderCount, InstanceCount: 1}
}

// RingBase returns the ring slot the first particle of the current frame is written to, which is the particle index
// before the command derivation advanced it.
//
// Parameters:
//   - global: the ring state after command derivation
//
// Returns:
//   - uint32: the first write slot of this frame
func RingBase(global GPUGlobalParticleData) uint32 {
	m := global.ParticleCountMax
	if m == 0 {
		return 0
	}
	return (global.ParticleIndex + m - global.NewEmittedCount%m) % m
}

// SimulationSlot maps a simulation invocation to the ring slot it writes.
// Invocations past the emitted count do nothing. When more jobs than ring slots were emitted, only the last
// ParticleCountMax jobs are written so that no slot is written twice in one frame.
//
// Parameters:
//   - global: the ring state after command derivation
//   - invocation: the global invocation index
//
// Returns:
//   - uint32: the ring slot
//   - bool: false if the invocation must not write
func SimulationSlot(global GPUGlobalParticleData, invocation uint32) (uint32, bool) {
	m := global.ParticleCountMax
	if m == 0 || invocation >= global.NewEmittedCount {
		return 0, false
	}
	if uint64(invocation)+uint64(m) < uint64(global.NewEmittedCount) {
		return 0, false
	}
	return uint32((uint64(RingBase(global)) + uint64(invocation)) % uint64(m)), true
}

// SimulationInput is the per-frame state the simulation kernel reads besides the job itself.
type SimulationInput struct {
	InverseViewProjection [16]float32
	Viewport              [2]float32
	System                GPUParticleSystem
}

// SimulateParticle is the simulation kernel for one job. It reconstructs the world position of the emitting
// fragment from its screen position and depth and seeds the particle color and jitter from a hash of the
// invocation and the per-frame random value.
//
// Parameters:
//   - job: the spawn job
//   - depth: the depth buffer value at the job's screen position
//   - invocation: the global invocation index, used as the hash seed
//   - in: the per-frame simulation input
//
// Returns:
//   - GPUParticle: the new particle, Position.w holds the spawn time
func SimulateParticle(job GPUAppendJob, depth float32, invocation uint32, in SimulationInput) GPUParticle {
	world := ScreenToWorld(job.ScreenPos, depth, in.Viewport, in.InverseViewProjection)

	seed := invocation ^ math.Float32bits(in.System.Random)
	jitter := [3]float32{hashUnit(seed) - 0.5, hashUnit(seed+1) - 0.5, hashUnit(seed+2) - 0.5}
	step := in.System.Speed * in.System.DeltaT
	var pos [4]float32
	for k := range 3 {
		pos[k] = world[k] + (jitter[k]*0.05+in.System.Wind[k])*step
	}
	pos[3] = in.System.Time

	heat := hashUnit(seed + 3)
	return GPUParticle{
		Position: pos,
		Color:    [4]float32{1, 0.35 + 0.5*heat, 0.1 + 0.2*heat, 1},
	}
}

// ScreenToWorld reconstructs the position behind framebuffer coordinates and a depth value in [0,1]. The result is
// in the space the inverse matrix maps back to, model space for the view uniform's inverse.
//
// Parameters:
//   - screenPos: framebuffer coordinates with the origin at the top left
//   - depth: the depth buffer value
//   - viewport: the framebuffer size in pixels
//   - inverseViewProjection: the inverse of projection * modelView, column-major
//
// Returns:
//   - [3]float32: the unprojected position
func ScreenToWorld(screenPos [2]float32, depth float32, viewport [2]float32, inverseViewProjection [16]float32) [3]float32 {
	ndc := [4]float32{
		screenPos[0]/viewport[0]*2 - 1,
		1 - screenPos[1]/viewport[1]*2,
		depth,
		1,
	}
	p := common.TransformVec4(inverseViewProjection[:], ndc)
	if p[3] == 0 {
		return [3]float32{p[0], p[1], p[2]}
	}
	return [3]float32{p[0] / p[3], p[1] / p[3], p[2] / p[3]}
}

// PCGHash is the integer hash shared by the simulation kernel and its WGSL counterpart.
//
// Parameters:
//   - v: the input value
//
// Returns:
//   - uint32: the hashed value
func PCGHash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

func hashUnit(v uint32) float32 {
	return float32(PCGHash(v)) / 4294967296.0
}
