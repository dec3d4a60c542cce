// Package camera holds the perspective camera of the demo and the orbit controller that places it.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
)

type cameraImpl struct {
	mu *sync.Mutex

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32

	controller CameraController
}

// Camera holds perspective settings and computes view/projection matrices from an attached CameraController on
// every Update.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// SetAspect changes the aspect ratio, typically after a resize.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// ViewMatrix returns the current view matrix (column-major).
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the current projection matrix (column-major).
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection * view (column-major).
	ViewProjectionMatrix() [16]float32

	// Controller returns the attached controller, nil if none is attached.
	Controller() CameraController

	// SetController attaches a controller. The matrices follow it from the next Update.
	//
	// Parameters:
	//   - ctrl: the controller
	SetController(ctrl CameraController)

	// Update recomputes the matrices from the controller. No-op without a controller.
	Update()

	// ViewUniform builds the per-frame view uniform for a model drawn with the given model matrix.
	//
	// Parameters:
	//   - model: the model matrix (column-major)
	//   - width: framebuffer width in pixels
	//   - height: framebuffer height in pixels
	//
	// Returns:
	//   - GPUViewUniform: projection, model-view, the inverse of projection * model-view and viewport
	ViewUniform(model [16]float32, width, height uint32) GPUViewUniform
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Y-up camera with a 60 degree field of view looking down +Z.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		fov:    60.0 * (math.Pi / 180.0),
		aspect: 1.0,
		near:   0.1,
		far:    256.0,
	}
	common.Identity(c.viewMatrix[:])
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

func (c *cameraImpl) ViewUniform(model [16]float32, width, height uint32) GPUViewUniform {
	c.mu.Lock()
	defer c.mu.Unlock()

	var u GPUViewUniform
	u.Projection = c.projectionMatrix
	common.Mul4(u.ModelView[:], c.viewMatrix[:], model[:])

	// Particles are drawn with projection * modelView like the mesh, so the simulation unprojects into model space.
	var mvp [16]float32
	common.Mul4(mvp[:], u.Projection[:], u.ModelView[:])
	if !common.Invert4(u.InverseViewProjection[:], mvp[:]) {
		common.Identity(u.InverseViewProjection[:])
	}
	u.Viewport = [2]float32{float32(width), float32(height)}
	return u
}

// updateMatrices recalculates the view, projection and view-projection matrices. The view matrix only changes when
// a controller is attached. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller != nil {
		px, py, pz := c.controller.Position()
		tx, ty, tz := c.controller.Target()
		common.LookAt(c.viewMatrix[:],
			px, py, pz,
			tx, ty, tz,
			0, 1, 0,
		)
	}
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}
