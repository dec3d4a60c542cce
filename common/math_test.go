package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMul4Identity(t *testing.T) {
	id := make([]float32, 16)
	Identity(id)
	m := make([]float32, 16)
	ComposeTRS(m, [3]float32{1, 2, 3}, [4]float32{0, 0.3826834, 0, 0.9238795}, [3]float32{1, 2, 3})

	out := make([]float32, 16)
	Mul4(out, id, m)
	assert.InDeltaSlice(t, m, out, 1e-6)
}

func TestInvert4RoundTrip(t *testing.T) {
	view := make([]float32, 16)
	LookAt(view, 0, 0, -2.5, 0, 0, 0, 0, 1, 0)
	proj := make([]float32, 16)
	Perspective(proj, float32(math.Pi/3), 16.0/9.0, 0.1, 256)

	vp := make([]float32, 16)
	Mul4(vp, proj, view)
	inv := make([]float32, 16)
	require.True(t, Invert4(inv, vp))

	out := make([]float32, 16)
	Mul4(out, vp, inv)
	id := make([]float32, 16)
	Identity(id)
	assert.InDeltaSlice(t, id, out, 1e-4)
}

func TestInvert4Singular(t *testing.T) {
	out := make([]float32, 16)
	assert.False(t, Invert4(out, make([]float32, 16)))
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := make([]float32, 16)
	Perspective(proj, float32(math.Pi/3), 1, 0.1, 256)

	near := TransformVec4(proj, [4]float32{0, 0, -0.1, 1})
	far := TransformVec4(proj, [4]float32{0, 0, -256, 1})
	assert.InDelta(t, 0, near[2]/near[3], 1e-5)
	assert.InDelta(t, 1, far[2]/far[3], 1e-5)
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	view := make([]float32, 16)
	LookAt(view, 0, 0, -2.5, 0, 0, 0, 0, 1, 0)

	eye := TransformVec4(view, [4]float32{0, 0, -2.5, 1})
	assert.InDeltaSlice(t, []float32{0, 0, 0, 1}, eye[:], 1e-6)

	target := TransformVec4(view, [4]float32{0, 0, 0, 1})
	assert.InDelta(t, -2.5, target[2], 1e-6)
}

func TestCeilDiv(t *testing.T) {
	tests := []struct{ n, d, want uint32 }{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{500, 64, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilDiv(tt.n, tt.d), "%d/%d", tt.n, tt.d)
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 3, OrDefault(0, 3))
	assert.Equal(t, 2, OrDefault(2, 3))
	assert.Equal(t, "linear", OrDefault("", "linear"))
}

func TestInvert4MatchesComposedInverse(t *testing.T) {
	m := make([]float32, 16)
	// 90 degrees around Y, translated and scaled.
	ComposeTRS(m, [3]float32{4, -1, 2}, [4]float32{0, float32(math.Sqrt2 / 2), 0, float32(math.Sqrt2 / 2)}, [3]float32{2, 2, 2})

	inv := make([]float32, 16)
	require.True(t, Invert4(inv, m))
	p := TransformVec4(m, [4]float32{1, 0, 0, 1})
	// +X rotates to -Z, then scale and translation.
	assert.InDeltaSlice(t, []float32{4, -1, 0, 1}, p[:], 1e-5)
	back := TransformVec4(inv, p)
	assert.InDeltaSlice(t, []float32{1, 0, 0, 1}, back[:], 1e-5)

	// Aliased output.
	require.True(t, Invert4(m, m))
	assert.InDeltaSlice(t, inv, m, 1e-6)
}

func TestTranspose4(t *testing.T) {
	m := make([]float32, 16)
	for i := range m {
		m[i] = float32(i)
	}
	Transpose4(m, m)
	assert.Equal(t, float32(4), m[1])
	assert.Equal(t, float32(1), m[4])
	assert.Equal(t, float32(15), m[15])
}

func TestVec3Helpers(t *testing.T) {
	x, y := [3]float32{1, 0, 0}, [3]float32{0, 1, 0}
	assert.Equal(t, [3]float32{0, 0, 1}, Cross3(x, y))
	assert.Equal(t, float32(0), Dot3(x, y))
	assert.Equal(t, [3]float32{1, -1, 0}, Sub3(x, y))
	assert.InDelta(t, 5, Length3([3]float32{3, 4, 0}), 1e-6)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, sliceOf(Normalize3([3]float32{3, 4, 0}, y)), 1e-6)
	assert.Equal(t, y, Normalize3([3]float32{}, y))
}

func sliceOf(v [3]float32) []float32 { return v[:] }

func TestClamp(t *testing.T) {
	assert.Equal(t, float32(0), Clamp(-1, 0, 1))
	assert.Equal(t, float32(1), Clamp(2, 0, 1))
	assert.Equal(t, float32(0.5), Clamp(0.5, 0, 1))
}
