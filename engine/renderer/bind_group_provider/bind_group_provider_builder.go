package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer sets a buffer the provider owns for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetBuffer(binding, buf)
	}
}

// WithSharedBuffers binds buffers owned elsewhere, keyed by binding index. Release leaves them alive.
//
// Parameters:
//   - buffers: a map of binding indices to shared buffers
//
// Returns:
//   - BindGroupProviderOption: a function that shares the buffers with this provider
func WithSharedBuffers(buffers map[int]*wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for binding, buf := range buffers {
			p.ShareBuffer(binding, buf)
		}
	}
}

// WithSharedTextureView binds a texture view owned elsewhere.
//
// Parameters:
//   - binding: the binding index
//   - tv: the shared texture view
//
// Returns:
//   - BindGroupProviderOption: a function that shares the view with this provider
func WithSharedTextureView(binding int, tv *wgpu.TextureView) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.ShareTextureView(binding, tv)
	}
}

// WithSharedSampler binds a sampler owned elsewhere.
//
// Parameters:
//   - binding: the binding index
//   - s: the shared sampler
//
// Returns:
//   - BindGroupProviderOption: a function that shares the sampler with this provider
func WithSharedSampler(binding int, s *wgpu.Sampler) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.ShareSampler(binding, s)
	}
}
