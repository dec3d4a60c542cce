package mesh

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Mesh is indexed triangle geometry ready for upload.
type Mesh struct {
	Vertices []GPUVertex
	Indices  []uint32
}

// VertexBytes packs all vertices into one buffer.
//
// Returns:
//   - []byte: len(Vertices) * 32 bytes
func (m *Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	stride := m.Vertices[0].Size()
	buf := make([]byte, len(m.Vertices)*stride)
	for i := range m.Vertices {
		m.Vertices[i].marshalInto(buf[i*stride:])
	}
	return buf
}

// IndexBytes packs all indices as little endian uint32.
func (m *Mesh) IndexBytes() []byte {
	buf := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// NewUVSphere builds a sphere centred on the origin. Vertices are duplicated along the seam so the uv coordinates
// wrap cleanly; u runs with longitude and v from the north pole (0) to the south pole (1).
//
// Parameters:
//   - radius: the radius in world units
//   - rings: latitude subdivisions, at least 2
//   - segments: longitude subdivisions, at least 3
//
// Returns:
//   - *Mesh: the sphere, (rings+1)*(segments+1) vertices and rings*segments*6 indices
//   - error: error if the subdivision counts are too small or the radius is not positive
func NewUVSphere(radius float32, rings, segments int) (*Mesh, error) {
	if rings < 2 || segments < 3 {
		return nil, fmt.Errorf("sphere needs at least 2 rings and 3 segments, got %d and %d", rings, segments)
	}
	if radius <= 0 {
		return nil, fmt.Errorf("sphere radius must be positive, got %v", radius)
	}

	m := &Mesh{
		Vertices: make([]GPUVertex, 0, (rings+1)*(segments+1)),
		Indices:  make([]uint32, 0, rings*segments*6),
	}
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= segments; s++ {
			theta := 2.0 * math.Pi * float64(s) / float64(segments)
			n := [3]float32{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			m.Vertices = append(m.Vertices, GPUVertex{
				Position: [3]float32{n[0] * radius, n[1] * radius, n[2] * radius},
				Normal:   n,
				TexCoord: [2]float32{float32(s) / float32(segments), float32(r) / float32(rings)},
			})
		}
	}

	stride := segments + 1
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r*stride + s)
			b := a + 1
			c := uint32((r+1)*stride + s)
			d := c + 1
			m.Indices = append(m.Indices, a, c, b, b, c, d)
		}
	}
	return m, nil
}
