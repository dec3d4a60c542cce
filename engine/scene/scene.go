package scene

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/engine/camera"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"go.uber.org/zap"
)

// Scene is the disintegration demo: one mesh dissolving under a camera, driven by a particle System.
// Thread-safe for concurrent access from the tick and render goroutines.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// System returns the particle system the scene records into.
	System() System

	// Tunables returns the current tunables, including changes made from the keyboard.
	Tunables() config.Tunables

	// SetTunables replaces the tunables, typically after the config file changed on disk.
	//
	// Parameters:
	//   - t: the new tunables
	//
	// Returns:
	//   - error: error if t is invalid, the current tunables are kept
	SetTunables(t config.Tunables) error

	// AlphaReference returns the running dissolve threshold.
	AlphaReference() float32

	// Paused reports whether the dissolve is paused.
	Paused() bool

	// HandleKey applies a key press: [ and ] move the threshold, - and = change the hide speed, R restarts the
	// dissolve, Space pauses it and W/A/S/D orbit the camera.
	//
	// Parameters:
	//   - keyCode: the key code, see common.Key*
	HandleKey(keyCode uint32)

	// HandleDrag orbits the camera by a pointer drag.
	//
	// Parameters:
	//   - dx, dy: pointer movement in pixels
	HandleDrag(dx, dy float32)

	// HandleScroll zooms the camera.
	//
	// Parameters:
	//   - delta: the scroll offset
	HandleScroll(delta float32)

	// Tick advances the dissolve.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the last tick in seconds
	Tick(deltaTime float32)

	// RecordFrame uploads the frame uniforms and records the particle frame into the renderer's open frame.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the last frame in seconds
	//
	// Returns:
	//   - error: error if a stage could not be recorded
	RecordFrame(deltaTime float32) error

	// Resize follows the surface to its new size.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: error if the particle system could not be resized
	Resize(width, height int) error

	// Release frees the particle system.
	Release()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool

	logger *zap.Logger

	cam camera.Camera
	sys System

	model  [16]float32
	width  uint32
	height uint32

	dissolve dissolve
	clock    float32
	rng      *rand.Rand
}

var _ Scene = &scene{}

// NewScene creates the scene around an existing particle system.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera, an orbit controller is attached when it has none
//   - sys: the particle system
//   - tunables: the initial tunables
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
//   - error: error if an argument is missing or the tunables are invalid
func NewScene(name string, cam camera.Camera, sys System, tunables config.Tunables, width, height int, options ...SceneBuilderOption) (Scene, error) {
	if cam == nil {
		return nil, fmt.Errorf("scene %s: camera is required", name)
	}
	if sys == nil {
		return nil, fmt.Errorf("scene %s: particle system is required", name)
	}
	if err := tunables.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("scene %s: invalid size %dx%d", name, width, height)
	}

	s := &scene{
		mu:       &sync.RWMutex{},
		name:     name,
		active:   true,
		logger:   zap.NewNop(),
		cam:      cam,
		sys:      sys,
		width:    uint32(width),
		height:   uint32(height),
		dissolve: newDissolve(tunables),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	common.Identity(s.model[:])

	for _, option := range options {
		option(s)
	}

	if cam.Controller() == nil {
		cam.SetController(camera.NewOrbitController())
	}
	cam.SetAspect(float32(width) / float32(height))
	cam.Update()

	return s, nil
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	return s.cam
}

func (s *scene) System() System {
	return s.sys
}

func (s *scene) Tunables() config.Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dissolve.tunables
}

func (s *scene) SetTunables(t config.Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dissolve.setTunables(t)
	s.logger.Info("tunables updated",
		zap.Float32("alpha_reference", t.AlphaReference),
		zap.Float32("delta_alpha_estimation", t.DeltaAlphaEstimation),
		zap.Float32("hide_speed", t.HideSpeed),
		zap.Float32("speed", t.Speed),
		zap.Float32("lifetime", t.Lifetime),
	)
	return nil
}

func (s *scene) AlphaReference() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dissolve.alpha
}

func (s *scene) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dissolve.paused
}

func (s *scene) HandleKey(keyCode uint32) {
	if ctrl := s.cam.Controller(); ctrl != nil {
		switch keyCode {
		case common.KeyA:
			ctrl.OrbitLeft()
			return
		case common.KeyD:
			ctrl.OrbitRight()
			return
		case common.KeyW:
			ctrl.OrbitUp()
			return
		case common.KeyS:
			ctrl.OrbitDown()
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch keyCode {
	case common.KeyLeftBracket:
		s.dissolve.nudgeAlpha(-alphaStep)
	case common.KeyRightBracket:
		s.dissolve.nudgeAlpha(alphaStep)
	case common.KeyMinus:
		s.dissolve.nudgeHideSpeed(-hideSpeedStep)
	case common.KeyEqual:
		s.dissolve.nudgeHideSpeed(hideSpeedStep)
	case common.KeyR:
		s.dissolve.reset()
		if ctrl := s.cam.Controller(); ctrl != nil {
			ctrl.Reset()
		}
	case common.KeySpace:
		s.dissolve.paused = !s.dissolve.paused
	default:
		return
	}
	s.logger.Debug("dissolve changed",
		zap.Float32("alpha_reference", s.dissolve.alpha),
		zap.Float32("hide_speed", s.dissolve.tunables.HideSpeed),
		zap.Bool("paused", s.dissolve.paused),
	)
}

func (s *scene) HandleDrag(dx, dy float32) {
	if ctrl := s.cam.Controller(); ctrl != nil {
		ctrl.Drag(dx, dy)
	}
}

func (s *scene) HandleScroll(delta float32) {
	if ctrl := s.cam.Controller(); ctrl != nil {
		ctrl.Zoom(delta)
	}
}

func (s *scene) Tick(deltaTime float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasDone := s.dissolve.done()
	s.dissolve.advance(deltaTime)
	if !wasDone && s.dissolve.done() {
		s.logger.Info("mesh fully dissolved", zap.Float32("clock", s.clock))
	}
}

// frameInput advances the clock and builds the uniforms of the next frame. Caller must hold the mutex.
func (s *scene) frameInput(deltaTime float32) FrameInput {
	s.clock += max(deltaTime, 0)
	t := s.dissolve.tunables
	return FrameInput{
		Model: particles.GPUModelUniform{
			AlphaReference:       s.dissolve.alpha,
			DeltaAlphaEstimation: t.DeltaAlphaEstimation,
			ModelAlpha:           s.dissolve.modelAlpha(),
			Time:                 s.clock,
		},
		View: s.cam.ViewUniform(s.model, s.width, s.height),
		System: particles.GPUParticleSystem{
			DeltaT:   deltaTime,
			Speed:    t.Speed,
			Random:   s.rng.Float32(),
			Time:     s.clock,
			Wind:     t.Wind,
			Lifetime: t.Lifetime,
		},
	}
}

func (s *scene) RecordFrame(deltaTime float32) error {
	s.cam.Update()

	s.mu.Lock()
	in := s.frameInput(deltaTime)
	s.mu.Unlock()

	s.sys.Update(in)
	return s.sys.RecordFrame()
}

func (s *scene) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	s.mu.Lock()
	s.width, s.height = uint32(width), uint32(height)
	s.mu.Unlock()

	s.cam.SetAspect(float32(width) / float32(height))
	return s.sys.Resize(uint32(width), uint32(height))
}

func (s *scene) Release() {
	s.sys.Release()
}
