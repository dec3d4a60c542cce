package particles

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

const (
	// ComputeWorkgroupSize is the workgroup size of the simulation compute shader.
	ComputeWorkgroupSize = 64

	// DispatchCommandOffset is the byte offset of the dispatch command inside the command argument buffer.
	DispatchCommandOffset = 4

	// DrawCommandOffset is the byte offset of the draw command inside the command argument buffer.
	DrawCommandOffset = 16
)

// GPUCommandArgumentsSource is the canonical WGSL definition of the CommandArguments struct and its nested
// indirect command structs. Matches GPUCommandArguments layout exactly (32 bytes).
//
//go:embed assets/command_arguments.wgsl
var GPUCommandArgumentsSource string

// GPUGlobalParticleDataSource is the canonical WGSL definition of the GlobalParticleData struct.
// Matches GPUGlobalParticleData layout exactly (20 bytes).
//
//go:embed assets/global_particle_data.wgsl
var GPUGlobalParticleDataSource string

// GPUAppendJobSource is the canonical WGSL definition of the AppendJob struct.
//
//go:embed assets/append_job.wgsl
var GPUAppendJobSource string

// GPUParticleSource is the canonical WGSL definition of the Particle struct.
//
//go:embed assets/particle.wgsl
var GPUParticleSource string

// GPUModelUniformSource is the canonical WGSL definition of the ModelUniform struct bound at binding 0 of every
// mesh and particle pass.
//
//go:embed assets/model_uniform.wgsl
var GPUModelUniformSource string

// GPUParticleSystemSource is the canonical WGSL definition of the ParticleSystem uniform struct.
//
//go:embed assets/particle_system.wgsl
var GPUParticleSystemSource string

// GPUDispatchIndirectCommand matches the WebGPU dispatchWorkgroupsIndirect argument layout.
type GPUDispatchIndirectCommand struct {
	X, Y, Z uint32
}

// GPUDrawIndirectCommand matches the WebGPU drawIndirect argument layout.
type GPUDrawIndirectCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// GPUCommandArguments is the per-frame command argument block. The emission stage counts into ParticleCount, the
// derivation stage fills both commands, the simulation dispatch and the particle draw read them indirectly.
// Size: 32 bytes.
type GPUCommandArguments struct {
	ParticleCount uint32                     // offset  0: atomic append counter
	Dispatch      GPUDispatchIndirectCommand // offset  4: simulation dispatch
	Draw          GPUDrawIndirectCommand     // offset 16: particle draw
}

// Size returns the size of the GPUCommandArguments struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUCommandArguments) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCommandArguments struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCommandArguments) Marshal() []byte {
	buf := make([]byte, g.Size())
	putUint32s(buf, g.ParticleCount,
		g.Dispatch.X, g.Dispatch.Y, g.Dispatch.Z,
		g.Draw.VertexCount, g.Draw.InstanceCount, g.Draw.FirstVertex, g.Draw.FirstInstance)
	return buf
}

// Unmarshal decodes a buffer previously produced by Marshal or read back from the GPU.
//
// Parameters:
//   - buf: the source bytes, at least Size() long
//
// Returns:
//   - error: error if buf is too short
func (g *GPUCommandArguments) Unmarshal(buf []byte) error {
	if len(buf) < g.Size() {
		return fmt.Errorf("command arguments: need %d bytes, got %d", g.Size(), len(buf))
	}
	v := getUint32s(buf, 8)
	g.ParticleCount = v[0]
	g.Dispatch = GPUDispatchIndirectCommand{X: v[1], Y: v[2], Z: v[3]}
	g.Draw = GPUDrawIndirectCommand{VertexCount: v[4], InstanceCount: v[5], FirstVertex: v[6], FirstInstance: v[7]}
	return nil
}

// GPUGlobalParticleData is the persistent ring buffer bookkeeping that lives on the GPU across frames.
// Size: 20 bytes.
type GPUGlobalParticleData struct {
	ParticleCountMax uint32 // offset  0: ring capacity, fixed at creation
	ParticleIndex    uint32 // offset  4: next write slot after this frame's emission
	RenderCount      uint32 // offset  8: particles drawn this frame
	CachedCount      uint32 // offset 12: render count carried over from the previous frame
	NewEmittedCount  uint32 // offset 16: particles emitted this frame
}

// NewGlobalParticleData returns the initial ring state for a ring of the given capacity.
//
// Parameters:
//   - particleCountMax: the ring capacity, must be positive
//
// Returns:
//   - GPUGlobalParticleData: the initial state with every counter at zero
func NewGlobalParticleData(particleCountMax uint32) GPUGlobalParticleData {
	return GPUGlobalParticleData{ParticleCountMax: particleCountMax}
}

// Size returns the size of the GPUGlobalParticleData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (20)
func (g *GPUGlobalParticleData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUGlobalParticleData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUGlobalParticleData) Marshal() []byte {
	buf := make([]byte, g.Size())
	putUint32s(buf, g.ParticleCountMax, g.ParticleIndex, g.RenderCount, g.CachedCount, g.NewEmittedCount)
	return buf
}

// Unmarshal decodes a buffer previously produced by Marshal or read back from the GPU.
//
// Parameters:
//   - buf: the source bytes, at least Size() long
//
// Returns:
//   - error: error if buf is too short
func (g *GPUGlobalParticleData) Unmarshal(buf []byte) error {
	if len(buf) < g.Size() {
		return fmt.Errorf("global particle data: need %d bytes, got %d", g.Size(), len(buf))
	}
	v := getUint32s(buf, 5)
	g.ParticleCountMax, g.ParticleIndex, g.RenderCount, g.CachedCount, g.NewEmittedCount = v[0], v[1], v[2], v[3], v[4]
	return nil
}

// GPUAppendJob is one spawn request written by the emission stage.
// Size: 8 bytes.
type GPUAppendJob struct {
	ScreenPos [2]float32 // offset 0: framebuffer coordinates of the emitting fragment
}

// Size returns the size of the GPUAppendJob struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (g *GPUAppendJob) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUAppendJob struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUAppendJob) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloat32s(buf, g.ScreenPos[:]...)
	return buf
}

// GPUParticle is one slot of the particle ring.
// Size: 32 bytes.
type GPUParticle struct {
	Position [4]float32 // offset  0: world position (xyz) and spawn time (w)
	Color    [4]float32 // offset 16: RGBA color
}

// Size returns the size of the GPUParticle struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUParticle) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParticle struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUParticle) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloat32s(buf, g.Position[0], g.Position[1], g.Position[2], g.Position[3],
		g.Color[0], g.Color[1], g.Color[2], g.Color[3])
	return buf
}

// GPUModelUniform carries the dissolve parameters shared by the mesh passes.
// Size: 16 bytes.
type GPUModelUniform struct {
	AlphaReference       float32 // offset  0: dissolve threshold
	DeltaAlphaEstimation float32 // offset  4: width of the emitting band below the threshold
	ModelAlpha           float32 // offset  8: overall mesh opacity in composition
	Time                 float32 // offset 12: seconds since start
}

// Size returns the size of the GPUModelUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUModelUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUModelUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUModelUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloat32s(buf, g.AlphaReference, g.DeltaAlphaEstimation, g.ModelAlpha, g.Time)
	return buf
}

// GPUParticleSystem carries the per-frame simulation parameters.
// Size: 32 bytes.
type GPUParticleSystem struct {
	DeltaT   float32    // offset  0: frame time in seconds
	Speed    float32    // offset  4: velocity scale
	Random   float32    // offset  8: per-frame random seed in [0,1)
	Time     float32    // offset 12: seconds since start, stored as the particle spawn time
	Wind     [3]float32 // offset 16: constant drift direction (vec3<f32>, 16-byte aligned)
	Lifetime float32    // offset 28: seconds a particle stays visible
}

// Size returns the size of the GPUParticleSystem struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUParticleSystem) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParticleSystem struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUParticleSystem) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloat32s(buf, g.DeltaT, g.Speed, g.Random, g.Time, g.Wind[0], g.Wind[1], g.Wind[2], g.Lifetime)
	return buf
}

func putUint32s(buf []byte, values ...uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
}

func putFloat32s(buf []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

func getUint32s(buf []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}
