package engine

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/engine/profiler"
	"github.com/Carmen-Shannon/oxy-particles/engine/scene"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

// frameRenderer is the part of renderer.Renderer the engine drives: one frame per render loop iteration and the
// surface resize.
type frameRenderer interface {
	BeginFrame() error
	EndFrame() error
	Present()
	Resize(width, height int) error
}

// engine runs three loops: the window message loop on the calling goroutine, a fixed-rate tick goroutine that advances
// the dissolve, and a render goroutine that records the frame plan of every active scene.
type engine struct {
	mu      *sync.RWMutex
	running bool
	wg      sync.WaitGroup

	tickRateChannel chan time.Duration
	// resizeChannel holds the latest framebuffer size, applied by the render goroutine between frames.
	resizeChannel chan [2]int

	quitChannel chan struct{}
	quitOnce    sync.Once

	window   window.Window
	renderer frameRenderer
	scenes   map[int]scene.Scene

	logger  *zap.Logger
	metrics *metrics.Metrics

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate   time.Duration
	renderFrameLimit time.Duration // 0 = uncapped
	tickCallback     func(deltaTime float32)
}

// Engine owns the frame loop of the demo: it ticks and records the registered scenes, forwards window input to them
// and applies framebuffer resizes between frames.
type Engine interface {
	// SetTickRate changes how often the scenes tick, taking effect immediately while running.
	//
	// Parameters:
	//   - fps: ticks per second, non-positive values select 60
	SetTickRate(fps float64)

	// SetTickCallback registers a function called after every tick, once the scenes ticked.
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the render loop, 0 uncaps it.
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene under a z-index key, replacing the scene already there. Lower keys record first.
	AddScene(key int, s scene.Scene)

	// RemoveScene unregisters the scene at key. The caller keeps ownership and releases it.
	RemoveScene(key int)

	// Scene returns the scene at key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of the registered scenes keyed by z-index.
	Scenes() map[int]scene.Scene

	// Run starts the tick and render goroutines and processes window messages until the window closes or Quit is
	// called. Blocks until both goroutines have exited. The caller closes the window afterwards, once the GPU
	// resources are released.
	Run()

	// Quit stops the loops and asks the window to close. Safe to call more than once and from any goroutine.
	Quit()

	// Done is closed once Quit was called or the window closed.
	Done() <-chan struct{}
}

// NewEngine creates a new Engine instance with the provided options.
// Window input is forwarded to the active scenes and window resizes resize the renderer and every scene.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:               &sync.RWMutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		resizeChannel:    make(chan [2]int, 1),
		quitChannel:      make(chan struct{}),
		scenes:           make(map[int]scene.Scene),
		logger:           zap.NewNop(),
		profilingEnabled: false,
		engineTickRate:   periodOf(defaultTickRate, 0),
	}

	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(e.logger, e.metrics)

	if e.window != nil {
		e.window.SetResizeCallback(e.resize)
		e.window.SetKeyCallback(func(keyCode uint32) {
			e.eachActive(func(s scene.Scene) { s.HandleKey(keyCode) })
		})
		e.window.SetScrollCallback(func(delta float32) {
			e.eachActive(func(s scene.Scene) { s.HandleScroll(delta) })
		})
		e.window.SetDragCallback(func(dx, dy float32) {
			e.eachActive(func(s scene.Scene) { s.HandleDrag(dx, dy) })
		})
	}

	return e
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.startLoops()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) Done() <-chan struct{} {
	return e.quitChannel
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
		if e.window != nil {
			e.window.RequestClose()
		}
	})
}

// startLoops launches the tick and render goroutines, tracked by the WaitGroup.
func (e *engine) startLoops() {
	e.wg.Add(2)
	go e.tickLoop()
	go e.renderLoop()
}

// resize queues the new framebuffer size for the render goroutine, replacing any size not yet applied. Zero sizes
// are sent while minimized and skipped.
func (e *engine) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	sendLatest(e.resizeChannel, [2]int{width, height})
}

// applyResize resizes the renderer and every scene. Runs between frames on the render goroutine.
func (e *engine) applyResize(width, height int) {
	if e.renderer != nil {
		if err := e.renderer.Resize(width, height); err != nil {
			e.logger.Error("resize renderer", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
			return
		}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for key, s := range e.scenes {
		if err := s.Resize(width, height); err != nil {
			e.logger.Error("resize scene", zap.Int("key", key), zap.String("scene", s.Name()), zap.Error(err))
		}
	}
}

// eachActive calls fn for every active scene in z-index order.
func (e *engine) eachActive(fn func(scene.Scene)) {
	for _, s := range e.activeScenes() {
		fn(s)
	}
}

// activeScenes returns the active scenes in ascending z-index order.
func (e *engine) activeScenes() []scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(e.scenes))
	active := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

// tickLoop ticks the active scenes at the tick rate until quit, picking up rate changes from tickRateChannel.
func (e *engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

func (e *engine) tick(dt float32) {
	e.eachActive(func(s scene.Scene) { s.Tick(dt) })
	if e.tickCallback != nil {
		e.tickCallback(dt)
	}
}

// renderLoop records frames back to back, or paced by the frame limit, until quit. A panic while recording is logged
// and stops the engine instead of the process.
func (e *engine) renderLoop() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render loop panicked", zap.Any("panic", r), zap.Stack("stack"))
			e.signalQuit()
		}
	}()

	last := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		frameStart := time.Now()
		dt := float32(frameStart.Sub(last).Seconds())
		last = frameStart

		if err := e.renderFrame(dt); err != nil {
			e.logger.Warn("frame dropped", zap.Error(err))
		}
		e.profile()

		if wait := e.renderFrameLimit - time.Since(frameStart); e.renderFrameLimit > 0 && wait > 0 {
			time.Sleep(wait)
		}
	}
}

// profile counts the frame and, once per profiler interval, shows the frame rate in the window title.
func (e *engine) profile() {
	if !e.profilingEnabled || e.profiler == nil || !e.profiler.Tick() {
		return
	}
	if e.window != nil {
		e.window.SetTitle(fmt.Sprintf("%s | %.0f fps", e.window.Title(), e.profiler.LastSample().FPS))
	}
}

// renderFrame records every active scene into one frame. The engine owns the frame lifecycle: BeginFrame once,
// RecordFrame for each scene, then EndFrame and Present once.
func (e *engine) renderFrame(dt float32) error {
	select {
	case size := <-e.resizeChannel:
		e.applyResize(size[0], size[1])
	default:
	}

	active := e.activeScenes()
	if len(active) == 0 || e.renderer == nil {
		return nil
	}

	if err := e.renderer.BeginFrame(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	var recordErr error
	for _, s := range active {
		if err := s.RecordFrame(dt); err != nil {
			recordErr = fmt.Errorf("record scene %s: %w", s.Name(), err)
			break
		}
	}
	// The frame is submitted even after a failed scene so the encoder is never left open.
	if err := e.renderer.EndFrame(); err != nil {
		return fmt.Errorf("end frame: %w", err)
	}
	if recordErr != nil {
		return recordErr
	}
	e.renderer.Present()
	if e.metrics != nil {
		e.metrics.FramesTotal.Inc()
	}
	return nil
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	rate := periodOf(fps, defaultTickRate)

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	if running {
		sendLatest(e.tickRateChannel, rate)
		return
	}
	e.engineTickRate = rate
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = periodOf(fps, 0)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

// defaultTickRate is the tick frequency used when none or a non-positive one is configured.
const defaultTickRate = 60

// periodOf converts a frequency to the time between two events. Non-positive frequencies fall back to fallback, a
// zero fallback yields a zero period.
func periodOf(fps, fallback float64) time.Duration {
	if fps <= 0 {
		fps = fallback
	}
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// sendLatest puts v into the single-slot channel ch, dropping a value the reader has not taken yet.
func sendLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
