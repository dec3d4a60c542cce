package common

import "math"

// Matrices are flat column-major [16]float32 slices, the layout WGSL mat4x4<f32> expects. Element (row r, column c)
// lives at index c*4+r.

// Identity resets m to the identity matrix.
//
// Parameters:
//   - m: destination, at least 16 elements
func Identity(m []float32) {
	clear(m[:16])
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 stores a * b in out. out may alias a or b.
//
// Parameters:
//   - out: destination, at least 16 elements
//   - a: left-hand matrix
//   - b: right-hand matrix
func Mul4(out, a, b []float32) {
	var r [16]float32
	for c := range 4 {
		bc := b[c*4 : c*4+4]
		for row := range 4 {
			r[c*4+row] = a[row]*bc[0] + a[4+row]*bc[1] + a[8+row]*bc[2] + a[12+row]*bc[3]
		}
	}
	copy(out, r[:])
}

// Transpose4 stores the transpose of m in out. out may alias m.
func Transpose4(out, m []float32) {
	var r [16]float32
	for c := range 4 {
		for row := range 4 {
			r[row*4+c] = m[c*4+row]
		}
	}
	copy(out, r[:])
}

// Invert4 stores the inverse of m in out using Gauss-Jordan elimination with partial pivoting. out may alias m.
//
// Parameters:
//   - out: destination, at least 16 elements
//   - m: the matrix to invert
//
// Returns:
//   - bool: false if m is singular, out is left untouched
func Invert4(out, m []float32) bool {
	// Augmented rows [m | I], row-major for the elimination.
	var a [4][8]float64
	for row := range 4 {
		for c := range 4 {
			a[row][c] = float64(m[c*4+row])
		}
		a[row][4+row] = 1
	}

	for col := range 4 {
		pivot := col
		for row := col + 1; row < 4; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return false
		}
		a[col], a[pivot] = a[pivot], a[col]

		inv := 1 / a[col][col]
		for k := range 8 {
			a[col][k] *= inv
		}
		for row := range 4 {
			if row == col || a[row][col] == 0 {
				continue
			}
			f := a[row][col]
			for k := range 8 {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	for row := range 4 {
		for c := range 4 {
			out[c*4+row] = float32(a[row][4+c])
		}
	}
	return true
}

// Perspective builds a right-handed projection that maps view depth -near..-far onto the WebGPU clip range [0, 1].
//
// Parameters:
//   - out: destination, at least 16 elements
//   - fovY: vertical field of view in radians
//   - aspect: width / height
//   - near, far: clip plane distances, 0 < near < far
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := 1 / float32(math.Tan(float64(fovY)/2))
	clear(out[:16])
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1
	out[14] = near * far / (near - far)
}

// LookAt builds the view matrix of an eye at eye looking at center.
//
// Parameters:
//   - out: destination, at least 16 elements
//   - eyeX, eyeY, eyeZ: eye position
//   - centerX, centerY, centerZ: look-at point
//   - upX, upY, upZ: approximate up direction
func LookAt(out []float32, eyeX, eyeY, eyeZ, centerX, centerY, centerZ, upX, upY, upZ float32) {
	eye := [3]float32{eyeX, eyeY, eyeZ}
	back := Normalize3(Sub3(eye, [3]float32{centerX, centerY, centerZ}), [3]float32{0, 0, 1})
	right := Normalize3(Cross3([3]float32{upX, upY, upZ}, back), [3]float32{1, 0, 0})
	up := Cross3(back, right)

	for i, axis := range [3][3]float32{right, up, back} {
		out[i] = axis[0]
		out[4+i] = axis[1]
		out[8+i] = axis[2]
		out[12+i] = -Dot3(axis, eye)
	}
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

// ComposeTRS builds translation * rotation * scale, the order glTF node transforms use.
//
// Parameters:
//   - out: destination, at least 16 elements
//   - t: translation
//   - q: unit rotation quaternion x, y, z, w
//   - s: scale per axis
func ComposeTRS(out []float32, t [3]float32, q [4]float32, s [3]float32) {
	x, y, z, w := q[0], q[1], q[2], q[3]
	rot := [3][3]float32{
		{1 - 2*(y*y+z*z), 2 * (x*y + z*w), 2 * (x*z - y*w)},
		{2 * (x*y - z*w), 1 - 2*(x*x+z*z), 2 * (y*z + x*w)},
		{2 * (x*z + y*w), 2 * (y*z - x*w), 1 - 2*(x*x+y*y)},
	}
	for c := range 3 {
		for row := range 3 {
			out[c*4+row] = rot[c][row] * s[c]
		}
		out[c*4+3] = 0
	}
	out[12], out[13], out[14], out[15] = t[0], t[1], t[2], 1
}

// TransformVec4 returns m * v.
func TransformVec4(m []float32, v [4]float32) [4]float32 {
	var out [4]float32
	for row := range 4 {
		out[row] = m[row]*v[0] + m[4+row]*v[1] + m[8+row]*v[2] + m[12+row]*v[3]
	}
	return out
}

// Sub3 returns a - b.
func Sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// Cross3 returns a x b.
func Cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func Dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Length3 returns the euclidean length of v.
func Length3(v [3]float32) float32 {
	return float32(math.Sqrt(float64(Dot3(v, v))))
}

// Normalize3 returns v scaled to unit length, or fallback when v is too short to have a direction.
func Normalize3(v, fallback [3]float32) [3]float32 {
	l := Length3(v)
	if l < 1e-6 {
		return fallback
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

// CeilDiv returns ceil(n / d). d must be non-zero.
func CeilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
