package renderer

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values (8, 16) are adapter-dependent and may not be available.
// MSAA applies to surface passes only; offscreen targets and the depth buffer are single sampled
// so later passes can sample them.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA16x MSAASampleCount = 16
)

// ParseMSAASampleCount converts a configured sample count to an MSAASampleCount.
//
// Parameters:
//   - n: the sample count, one of 1, 4, 8 or 16
//
// Returns:
//   - MSAASampleCount: the sample count
//   - bool: false if n is not a supported count
func ParseMSAASampleCount(n int) (MSAASampleCount, bool) {
	switch MSAASampleCount(n) {
	case MSAAOff, MSAA4x, MSAA8x, MSAA16x:
		return MSAASampleCount(n), true
	}
	return MSAAOff, false
}

const (
	// DepthFormat is the format of the shared depth buffer. It is sampled by the simulation pass, which rules out
	// the Depth24Plus formats.
	DepthFormat = wgpu.TextureFormatDepth32Float

	// OffscreenColorFormat is the format of the offscreen color targets.
	OffscreenColorFormat = wgpu.TextureFormatRGBA8Unorm
)

// RenderPassOptions selects the attachments of a render pass and how they are loaded.
type RenderPassOptions struct {
	// Target is the color attachment. RenderTargetDepthOnly records a pass without color.
	Target pipeline.RenderTarget

	// ClearColor clears the color attachment when set, otherwise its contents are loaded.
	ClearColor *wgpu.Color

	// UseDepth attaches the shared depth buffer.
	UseDepth bool

	// ClearDepth clears the depth buffer to 1.0 instead of loading it. Only used with UseDepth.
	ClearDepth bool
}

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}
