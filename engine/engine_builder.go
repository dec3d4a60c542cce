package engine

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/scene"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

// EngineBuilderOption configures an Engine in NewEngine.
type EngineBuilderOption func(*engine)

// WithProfiling logs a profiler sample every second and shows the frame rate in the window title.
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets how often the dissolve advances.
//
// Parameters:
//   - fps: ticks per second, non-positive values select 60
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = periodOf(fps, defaultTickRate)
	}
}

// WithRenderFrameLimit caps the render loop.
//
// Parameters:
//   - fps: maximum frames per second, 0 leaves the loop uncapped
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = periodOf(fps, 0)
	}
}

// WithWindow sets the window whose message loop Run drives and whose input reaches the active scenes.
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderer sets the renderer whose frame the active scenes record into.
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithScene registers a scene under a z-index key. Lower keys record first.
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}

// WithLogger sets the logger for frame errors, panics and profiler output. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics counts presented frames and publishes the profiler samples.
func WithMetrics(m *metrics.Metrics) EngineBuilderOption {
	return func(e *engine) {
		e.metrics = m
	}
}
