package mesh

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUVSphereCounts(t *testing.T) {
	m, err := NewUVSphere(1, 8, 16)
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 9*17)
	assert.Len(t, m.Indices, 8*16*6)
	for _, idx := range m.Indices {
		assert.Less(t, idx, uint32(len(m.Vertices)))
	}
}

func TestNewUVSphereOnSurface(t *testing.T) {
	m, err := NewUVSphere(2, 6, 12)
	require.NoError(t, err)
	for _, v := range m.Vertices {
		p := v.Position
		r := math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2]))
		assert.InDelta(t, 2, r, 1e-5)
		assert.GreaterOrEqual(t, v.TexCoord[0], float32(0))
		assert.LessOrEqual(t, v.TexCoord[1], float32(1))
	}
	assert.InDelta(t, 2, m.Vertices[0].Position[1], 1e-6)
	assert.InDelta(t, -2, m.Vertices[len(m.Vertices)-1].Position[1], 1e-6)
}

func TestNewUVSphereRejectsDegenerate(t *testing.T) {
	_, err := NewUVSphere(1, 1, 16)
	assert.Error(t, err)
	_, err = NewUVSphere(1, 4, 2)
	assert.Error(t, err)
	_, err = NewUVSphere(0, 4, 4)
	assert.Error(t, err)
}

func TestMeshBytes(t *testing.T) {
	m := &Mesh{
		Vertices: []GPUVertex{{Position: [3]float32{1, 2, 3}}, {TexCoord: [2]float32{0.25, 0.75}}},
		Indices:  []uint32{0, 1, 7},
	}
	vb := m.VertexBytes()
	require.Len(t, vb, 64)
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(vb[8:])))
	assert.Equal(t, float32(0.75), math.Float32frombits(binary.LittleEndian.Uint32(vb[32+28:])))
	assert.Equal(t, m.Vertices[1].Marshal(), vb[32:])

	ib := m.IndexBytes()
	require.Len(t, ib, 12)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(ib[8:]))

	assert.Nil(t, (&Mesh{}).VertexBytes())
	assert.Contains(t, GPUVertexSource, "struct VertexInput")
}
