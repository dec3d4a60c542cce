package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUViewUniformSource is the WGSL definition of the ViewUniform struct.
// Matches GPUViewUniform layout exactly (208 bytes).
//
//go:embed assets/view_uniform.wgsl
var GPUViewUniformSource string

// GPUViewUniform is the per-frame view state bound at binding 1 of every mesh pass and of the simulation pass.
// Matches the WGSL ViewUniform struct layout exactly (see GPUViewUniformSource).
// Size: 208 bytes.
type GPUViewUniform struct {
	Projection            [16]float32 // offset   0
	ModelView             [16]float32 // offset  64
	InverseViewProjection [16]float32 // offset 128: inverse of projection * modelView, maps NDC back to model space
	Viewport              [2]float32  // offset 192: framebuffer size in pixels
	_pad                  [2]float32  // offset 200
}

// Size returns the size of the GPUViewUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (208)
func (g *GPUViewUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUViewUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUViewUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Projection[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.ModelView[i]))
		binary.LittleEndian.PutUint32(buf[128+i*4:], math.Float32bits(g.InverseViewProjection[i]))
	}
	binary.LittleEndian.PutUint32(buf[192:], math.Float32bits(g.Viewport[0]))
	binary.LittleEndian.PutUint32(buf[196:], math.Float32bits(g.Viewport[1]))
	return buf
}
