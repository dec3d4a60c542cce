package renderer

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"go.uber.org/zap"
)

// RendererBuilderOption configures a renderer in NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline seeds the pipeline cache. RegisterPipelines skips keys that are already cached, so the GPU objects of
// a seeded pipeline must exist.
//
// Parameters:
//   - key: the pipeline key
//   - p: the pipeline
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithPipeline(key string, p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pipelineCache[key] = p
	}
}

// WithPresentMode selects vsync or uncapped presentation. Uncapped by default.
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the sample count of the surface pass. MSAA4x by default, counts above 4 depend on the adapter.
//
// Parameters:
//   - count: MSAAOff, MSAA4x, MSAA8x or MSAA16x
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer requests the fallback adapter, such as lavapipe or SwiftShader, instead of a hardware GPU.
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithShaderValidation compiles every stage with naga before its pipeline is created, so WGSL errors surface with
// source positions instead of as device errors.
func WithShaderValidation(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validateShaders = enabled
	}
}

// WithLogger sets the logger the renderer reports to. Nil keeps the no-op default.
func WithLogger(logger *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}
