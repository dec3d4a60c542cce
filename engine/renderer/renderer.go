package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfaceSource is what the renderer needs from a window: a surface descriptor and the initial size.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu     *sync.Mutex
	logger *zap.Logger

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	validateShaders      bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API over the backend for GPU-driven frames. A frame is recorded into one command encoder:
// BeginFrame, then any number of passes opened with BeginRenderPass or BeginComputePass, draws and dispatches inside
// them, and EndFrame to submit. Opening a pass ends the previous one, and pass boundaries order the writes of one pass
// before the reads of the next. Present displays the frame.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines validates one or more pipelines, creates the GPU pipeline objects via the backend and caches
	// them by PipelineKey. Pipelines whose keys are already registered are skipped. When shader validation is enabled
	// every stage is compiled with naga first; compiler limitations are logged and skipped, real errors fail the
	// registration.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if validation or pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize reconfigures the surface and recreates the size-dependent render targets. Bind groups that reference
	// TargetView or DepthView must be rebuilt afterwards.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if a target could not be recreated
	Resize(width, height int) error

	// SurfaceSize returns the configured surface size in pixels.
	SurfaceSize() (uint32, uint32)

	// TargetView returns the view of an offscreen color target.
	//
	// Parameters:
	//   - target: pipeline.RenderTargetSceneColor or pipeline.RenderTargetParticleColor
	//
	// Returns:
	//   - *wgpu.TextureView: the view, or nil
	TargetView(target pipeline.RenderTarget) *wgpu.TextureView

	// DepthView returns the view of the shared depth buffer.
	DepthView() *wgpu.TextureView

	// CreateBuffer creates a GPU buffer the caller owns and shares with bind group providers.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: an error if creation fails
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// WriteBuffer queues a write into a buffer. The write lands before the next submitted frame.
	//
	// Parameters:
	//   - buf: the target buffer
	//   - offset: the byte offset
	//   - data: the bytes to write
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// InitMeshBuffers creates GPU vertex and index buffers from raw byte data and stores them
	// on the given BindGroupProvider for later use in draw calls.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - vertexData: the raw vertex data bytes to upload to the GPU
	//   - indexData: the raw index data bytes to upload to the GPU
	//   - indexCount: the number of indices, used for draw calls
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates the missing GPU buffers and the bind group of a provider from a layout descriptor.
	// Shared buffers, textures and samplers must be bound on the provider before calling this method.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags to OR into the derived usage, keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes to use instead of MinBindingSize, keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// InitTextureView creates a GPU texture from staging data and stores the resulting texture view
	// on the given BindGroupProvider at the specified binding index.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created texture view on
	//   - bindingKey: the binding index for this texture
	//   - stagingData: the pixel data, dimensions and format for the texture
	//
	// Returns:
	//   - error: an error if texture creation fails
	InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error

	// InitSampler creates a GPU sampler from staging data and stores it on the given BindGroupProvider
	// at the specified binding index.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created sampler on
	//   - bindingKey: the binding index for this sampler
	//   - samplerStagingData: the sampler configuration
	//
	// Returns:
	//   - error: an error if sampler creation fails
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error

	// BeginFrame acquires the swapchain texture and creates the frame's command encoder.
	// Must be paired with EndFrame.
	//
	// Returns:
	//   - error: an error if the swapchain texture could not be acquired
	BeginFrame() error

	// ClearBuffer records a zero fill of a buffer range into the frame.
	//
	// Parameters:
	//   - buf: the buffer
	//   - offset: the byte offset, a multiple of 4
	//   - size: the byte count, a multiple of 4
	//
	// Returns:
	//   - error: an error outside a frame
	ClearBuffer(buf *wgpu.Buffer, offset, size uint64) error

	// BeginRenderPass begins a render pass with the given attachments, ending the open pass.
	//
	// Parameters:
	//   - opts: the attachments and load operations
	//
	// Returns:
	//   - error: an error outside a frame or for unsupported attachments
	BeginRenderPass(opts RenderPassOptions) error

	// BeginComputePass begins a compute pass, ending the open pass.
	//
	// Returns:
	//   - error: an error outside a frame
	BeginComputePass() error

	// EndPass ends the open pass, if any.
	EndPass()

	// DispatchCompute looks up the cached compute Pipeline by key and records a dispatch in the open compute pass.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - providers: the BindGroupProviders whose bind groups are set at groups 0..n-1
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: an error if the pipeline is not found or no compute pass is open
	DispatchCompute(pipelineKey string, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// DispatchComputeIndirect records a dispatch whose workgroup counts the GPU reads from buf at offset.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - providers: the BindGroupProviders whose bind groups are set at groups 0..n-1
	//   - buf: the buffer holding the x, y and z workgroup counts
	//   - offset: the byte offset of the counts
	//
	// Returns:
	//   - error: an error if the pipeline is not found or no compute pass is open
	DispatchComputeIndirect(pipelineKey string, providers []bind_group_provider.BindGroupProvider, buf *wgpu.Buffer, offset uint64) error

	// DrawCall records an indexed draw of a mesh in the open render pass.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - instanceCount: the number of instances to draw
	//   - bindGroups: the BindGroupProviders whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not found or does not match the open pass
	DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error

	// Draw records a non-indexed draw without vertex buffers in the open render pass.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - vertexCount: the number of vertices
	//   - bindGroups: the BindGroupProviders whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not found or does not match the open pass
	Draw(pipelineKey string, vertexCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error

	// DrawIndirect records a non-indexed draw whose arguments the GPU reads from buf at offset.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - buf: the buffer holding the draw arguments
	//   - offset: the byte offset of the arguments
	//   - bindGroups: the BindGroupProviders whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not found or does not match the open pass
	DrawIndirect(pipelineKey string, buf *wgpu.Buffer, offset uint64, bindGroups []bind_group_provider.BindGroupProvider) error

	// EndFrame ends the open pass and submits the frame's command buffer.
	// Does not present the surface, call Present() after EndFrame to display the frame.
	//
	// Returns:
	//   - error: an error outside a frame or if the encoder fails
	EndFrame() error

	// Present presents the surface to the display and releases the swapchain texture.
	// Must be called once per frame after EndFrame.
	Present()

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	// A call to Resize is required after changing this for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// Release releases the cached pipelines and the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type for the given surface source.
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU)
//   - source: the window providing the surface descriptor and the initial size
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if the surface could not be configured
func NewRenderer(backendType RendererBackendType, source SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		logger:        zap.NewNop(),
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	msaa := MSAA4x // default
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		r.backend = newWGPURendererBackend(source.SurfaceDescriptor(), r.forceFallbackAdapter, msaa)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	if err := r.backend.ConfigureSurface(source.Width(), source.Height()); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("configure surface: %w", err)
	}
	r.logger.Info("renderer ready",
		zap.Int("width", source.Width()),
		zap.Int("height", source.Height()),
		zap.Uint32("msaa", uint32(msaa)),
	)
	return r, nil
}

func (r *renderer) Resize(width, height int) error {
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	r.logger.Debug("surface resized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (r *renderer) SurfaceSize() (uint32, uint32) {
	return r.backend.SurfaceSize()
}

func (r *renderer) TargetView(target pipeline.RenderTarget) *wgpu.TextureView {
	return r.backend.TargetView(target)
}

func (r *renderer) DepthView() *wgpu.TextureView {
	return r.backend.DepthView()
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if r.validateShaders {
			if err := r.validateStages(p); err != nil {
				return err
			}
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return err
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return err
			}
		}
		r.pipelineCache[key] = p
		r.logger.Debug("pipeline registered", zap.String("pipeline", key), zap.String("target", string(p.Target())))
	}
	return nil
}

func (r *renderer) validateStages(p pipeline.Pipeline) error {
	for _, s := range p.Shaders() {
		err := shader.Validate(s)
		switch {
		case err == nil:
		case shader.IsUnsupported(err):
			r.logger.Warn("shader validation skipped", zap.String("shader", s.Key()), zap.Error(err))
		default:
			return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
		}
	}
	return nil
}

func (r *renderer) lookup(pipelineKey string) (pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, exists := r.pipelineCache[pipelineKey]
	if !exists {
		return nil, fmt.Errorf("pipeline %q not found in cache", pipelineKey)
	}
	return p, nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage)
}

func (r *renderer) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	return r.backend.InitMeshBuffers(provider, vertexData, indexData, indexCount)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	return r.backend.InitTextureView(provider, bindingKey, stagingData)
}

func (r *renderer) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	return r.backend.InitSampler(provider, bindingKey, samplerStagingData)
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) ClearBuffer(buf *wgpu.Buffer, offset, size uint64) error {
	return r.backend.ClearBuffer(buf, offset, size)
}

func (r *renderer) BeginRenderPass(opts RenderPassOptions) error {
	return r.backend.BeginRenderPass(opts)
}

func (r *renderer) BeginComputePass() error {
	return r.backend.BeginComputePass()
}

func (r *renderer) EndPass() {
	r.backend.EndPass()
}

func (r *renderer) DispatchCompute(pipelineKey string, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.DispatchCompute(p, providers, workGroupCount)
}

func (r *renderer) DispatchComputeIndirect(pipelineKey string, providers []bind_group_provider.BindGroupProvider, buf *wgpu.Buffer, offset uint64) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.DispatchComputeIndirect(p, providers, buf, offset)
}

func (r *renderer) DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.DrawIndexed(p, meshProvider, instanceCount, bindGroups)
}

func (r *renderer) Draw(pipelineKey string, vertexCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.Draw(p, vertexCount, bindGroups)
}

func (r *renderer) DrawIndirect(pipelineKey string, buf *wgpu.Buffer, offset uint64, bindGroups []bind_group_provider.BindGroupProvider) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.DrawIndirect(p, buf, offset, bindGroups)
}

func (r *renderer) EndFrame() error {
	return r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) Release() {
	r.mu.Lock()
	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	r.mu.Unlock()
	r.backend.Release()
}
