package camera

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPositionDerivesSphericalCoordinates(t *testing.T) {
	cc := NewOrbitController(WithPosition(0, 0, -2.5))

	assert.InDelta(t, 2.5, cc.Radius(), 1e-5)
	assert.InDelta(t, math.Pi, cc.Azimuth(), 1e-5)
	assert.InDelta(t, 0, cc.Elevation(), 1e-5)

	x, y, z := cc.Position()
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, -2.5, z, 1e-5)
}

func TestOrbitKeepsRadius(t *testing.T) {
	cc := NewOrbitController(WithTarget(1, 0, 0), WithPosition(1, 0, 3), WithOrbitSpeed(0.5))
	for range 5 {
		cc.OrbitRight()
		cc.OrbitUp()
	}
	x, y, z := cc.Position()
	dist := math.Sqrt(float64((x-1)*(x-1) + y*y + z*z))
	assert.InDelta(t, 3, dist, 1e-4)
	assert.LessOrEqual(t, cc.Elevation(), float32(math.Pi/2))
}

func TestZoomClampsAndResetRestores(t *testing.T) {
	cc := NewOrbitController(WithPosition(0, 0, 4), WithRadiusBounds(1, 5), WithZoomSpeed(1))

	cc.Zoom(100)
	assert.InDelta(t, 1, cc.Radius(), 1e-6)
	cc.Zoom(-100)
	assert.InDelta(t, 5, cc.Radius(), 1e-6)
	cc.OrbitLeft()

	cc.Reset()
	assert.InDelta(t, 4, cc.Radius(), 1e-6)
	assert.InDelta(t, 0, cc.Azimuth(), 1e-6)
}

func TestDragOrbitsAndClampsElevation(t *testing.T) {
	cc := NewOrbitController(WithPosition(0, 0, 4), WithDragSpeed(0.01))

	cc.Drag(100, 0)
	assert.InDelta(t, 1, cc.Azimuth(), 1e-6)
	assert.InDelta(t, 0, cc.Elevation(), 1e-6)

	cc.Drag(0, 1000)
	assert.InDelta(t, math.Pi/2-0.05, cc.Elevation(), 1e-6)
	assert.InDelta(t, 4, cc.Radius(), 1e-6)

	cc.Drag(0, -5000)
	assert.InDelta(t, -(math.Pi/2 - 0.05), cc.Elevation(), 1e-6)
}

func TestViewUniformInverseUnprojects(t *testing.T) {
	cam := NewCamera(
		WithAspect(16.0/9.0),
		WithController(NewOrbitController(WithPosition(0, 0, -2.5))),
	)
	cam.Update()

	var model [16]float32
	common.Identity(model[:])
	u := cam.ViewUniform(model, 1280, 720)
	assert.Equal(t, [2]float32{1280, 720}, u.Viewport)
	assert.Equal(t, cam.ProjectionMatrix(), u.Projection)
	assert.Equal(t, cam.ViewMatrix(), u.ModelView)

	world := [4]float32{0.3, -0.2, 0.1, 1}
	vp := cam.ViewProjectionMatrix()
	clip := common.TransformVec4(vp[:], world)
	back := common.TransformVec4(u.InverseViewProjection[:], clip)
	for i := range 3 {
		assert.InDelta(t, world[i], back[i]/back[3], 1e-4)
	}
}

func TestParticlesDrawOnTheirFragmentWithModelMatrix(t *testing.T) {
	cam := NewCamera(
		WithAspect(2),
		WithController(NewOrbitController(WithPosition(0, 0, -2.5))),
	)
	cam.Update()

	var model [16]float32
	common.ComposeTRS(model[:], [3]float32{0.5, 0, 0}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1})
	u := cam.ViewUniform(model, 200, 100)

	var mvp [16]float32
	common.Mul4(mvp[:], u.Projection[:], u.ModelView[:])
	toScreen := func(p [3]float32) ([2]float32, float32) {
		clip := common.TransformVec4(mvp[:], [4]float32{p[0], p[1], p[2], 1})
		ndc := [3]float32{clip[0] / clip[3], clip[1] / clip[3], clip[2] / clip[3]}
		return [2]float32{(ndc[0] + 1) / 2 * u.Viewport[0], (1 - ndc[1]) / 2 * u.Viewport[1]}, ndc[2]
	}

	// A mesh vertex rasterised by mesh_vertex.wgsl, unprojected by the simulation and redrawn by particle_vertex.wgsl.
	vertex := [3]float32{-0.2, 0.1, 0.3}
	screen, depth := toScreen(vertex)
	spawned := particles.ScreenToWorld(screen, depth, u.Viewport, u.InverseViewProjection)
	drawn, _ := toScreen(spawned)

	for i := range 3 {
		assert.InDelta(t, vertex[i], spawned[i], 1e-3)
	}
	assert.InDelta(t, screen[0], drawn[0], 0.05)
	assert.InDelta(t, screen[1], drawn[1], 0.05)
}

func TestSetAspectIgnoresNonPositive(t *testing.T) {
	cam := NewCamera(WithAspect(2))
	cam.SetAspect(0)
	assert.InDelta(t, 2, cam.Aspect(), 1e-6)
	cam.SetAspect(0.5)
	assert.InDelta(t, 0.5, cam.Aspect(), 1e-6)
}

func TestGPUViewUniformLayout(t *testing.T) {
	u := GPUViewUniform{Viewport: [2]float32{640, 480}}
	u.Projection[0] = 2
	u.InverseViewProjection[15] = 3

	buf := u.Marshal()
	require.Len(t, buf, 208)
	assert.Equal(t, 208, u.Size())
	assert.Equal(t, float32(2), math.Float32frombits(leUint32(buf[0:])))
	assert.Equal(t, float32(3), math.Float32frombits(leUint32(buf[128+60:])))
	assert.Equal(t, float32(640), math.Float32frombits(leUint32(buf[192:])))
	assert.Equal(t, float32(480), math.Float32frombits(leUint32(buf[196:])))
	assert.Contains(t, GPUViewUniformSource, "struct ViewUniform")
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
