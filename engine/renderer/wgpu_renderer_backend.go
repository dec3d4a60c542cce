package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrNoFrame is returned by frame recording calls made outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no frame is being recorded")

	// ErrNoPass is returned by draw and dispatch calls made without a matching open pass.
	ErrNoPass = errors.New("no matching pass is open")

	// ErrNoDepth is returned by BeginRenderPass when the pass uses depth but no depth buffer is allocated, for
	// example after a failed resize.
	ErrNoDepth = errors.New("depth buffer is not allocated")
)

// offscreenTargets lists the color targets the backend allocates at surface size.
var offscreenTargets = []pipeline.RenderTarget{pipeline.RenderTargetSceneColor, pipeline.RenderTargetParticleColor}

// renderTarget is a texture the backend renders into and later passes sample.
type renderTarget struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (t *renderTarget) release() {
	if t == nil {
		return
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.texture != nil {
		t.texture.Release()
	}
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	width, height uint32

	msaa      *renderTarget
	depth     *renderTarget
	offscreen map[pipeline.RenderTarget]*renderTarget

	presentMode wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	sampleCount MSAASampleCount  // MSAA sample count for surface passes

	// Frame state. One encoder records every pass of a frame and is submitted once by EndFrame.
	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	// At most one pass is open at a time. Opening a pass ends the previous one.
	renderPass     *wgpu.RenderPassEncoder
	renderPassOpts RenderPassOptions
	computePass    *wgpu.ComputePassEncoder
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue
	Surface() *wgpu.Surface

	// ConfigureSurface configures the surface for a new size and recreates every size-dependent target: the MSAA
	// color texture, the depth buffer and the offscreen color targets. A zero size, as reported for a minimized
	// window, is ignored.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if a target texture could not be created
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// SurfaceSize returns the configured surface size in pixels.
	SurfaceSize() (uint32, uint32)

	// TargetView returns the view of an offscreen color target for binding as a texture.
	//
	// Parameters:
	//   - target: an offscreen render target
	//
	// Returns:
	//   - *wgpu.TextureView: the view, nil for non-offscreen targets or before the surface is configured
	TargetView(target pipeline.RenderTarget) *wgpu.TextureView

	// DepthView returns the view of the shared depth buffer for binding as a depth texture.
	DepthView() *wgpu.TextureView

	// RegisterRenderPipeline creates the shader modules, layouts and render pipeline of p and stores the result
	// on p. The color format and sample count follow p's render target.
	//
	// Parameters:
	//   - p: the pipeline object containing the shaders and configuration for the pipeline
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// RegisterComputePipeline creates the shader module, layouts and compute pipeline of p and stores the result
	// on p.
	//
	// Parameters:
	//   - p: the pipeline object containing the compute shader
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterComputePipeline(p pipeline.Pipeline) error

	// CreateBuffer creates a GPU buffer owned by the caller.
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

	// WriteBuffer queues a write of data into buf at offset. Queued writes land before the next submission.
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// InitMeshBuffers creates the vertex and index buffers of a mesh and stores them on the given BindGroupProvider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created vertex and index buffers on
	//   - vertexData: the raw vertex data bytes to upload to the GPU
	//   - indexData: the raw index data bytes to upload to the GPU
	//   - indexCount: the number of indices represented in the indexData, used for draw calls
	//
	// Returns:
	//   - error: an error if the buffers could not be created or initialized, otherwise nil
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates the missing buffers, the layout and the bind group of a provider. Texture and sampler
	// bindings must already be bound on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider holding the resources of the bind group
	//   - descriptor: the BindGroupLayoutDescriptor describing the layout of the bind group
	//   - bufferUsageOverrides: extra usage flags for buffers created here, keyed by binding index (nil safe)
	//   - bufferSizeOverrides: sizes for buffers created here, keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if the bind group could not be initialized, otherwise nil
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// InitTextureView uploads staging data to a new texture and stores its view on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created texture view on
	//   - bindingKey: the binding index of the texture
	//   - stagingData: the pixel data, size and format
	//
	// Returns:
	//   - error: an error if the texture view could not be created
	InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error

	// InitSampler creates a sampler and stores it on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created sampler on
	//   - bindingKey: the binding index of the sampler
	//   - samplerStagingData: the sampler configuration, zero fields take defaults
	//
	// Returns:
	//   - error: an error if the sampler could not be created
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error

	// BeginFrame acquires the next swapchain texture and creates the frame's command encoder.
	//
	// Returns:
	//   - error: an error if a frame is already open or the swapchain texture could not be acquired
	BeginFrame() error

	// ClearBuffer records a zero fill of a buffer range, ending any open pass first.
	//
	// Parameters:
	//   - buf: the buffer
	//   - offset: the byte offset, a multiple of 4
	//   - size: the byte count, a multiple of 4
	//
	// Returns:
	//   - error: ErrNoFrame outside a frame
	ClearBuffer(buf *wgpu.Buffer, offset, size uint64) error

	// BeginRenderPass ends any open pass and begins a render pass with the given attachments.
	//
	// Parameters:
	//   - opts: the attachments and load operations
	//
	// Returns:
	//   - error: an error for an unknown target or an attachment combination the backend does not support
	BeginRenderPass(opts RenderPassOptions) error

	// BeginComputePass ends any open pass and begins a compute pass.
	//
	// Returns:
	//   - error: ErrNoFrame outside a frame
	BeginComputePass() error

	// EndPass ends the open pass, if any. Pass boundaries are where WebGPU orders writes before later reads.
	EndPass()

	// DispatchCompute binds p and the providers' bind groups and records a direct dispatch in the open compute pass.
	//
	// Parameters:
	//   - p: the compute pipeline
	//   - providers: bind group providers, the i-th bound at group i
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: ErrNoPass without an open compute pass
	DispatchCompute(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// DispatchComputeIndirect records a dispatch whose workgroup counts are read from buf at offset.
	//
	// Parameters:
	//   - p: the compute pipeline
	//   - providers: bind group providers, the i-th bound at group i
	//   - buf: the buffer holding three u32 workgroup counts
	//   - offset: the byte offset of the counts, a multiple of 4
	//
	// Returns:
	//   - error: ErrNoPass without an open compute pass
	DispatchComputeIndirect(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, buf *wgpu.Buffer, offset uint64) error

	// DrawIndexed records an indexed draw of a mesh in the open render pass.
	//
	// Parameters:
	//   - p: the render pipeline
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - instanceCount: the number of instances to draw
	//   - providers: bind group providers, the i-th bound at group i
	//
	// Returns:
	//   - error: ErrNoPass or a pipeline/pass attachment mismatch
	DrawIndexed(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, providers []bind_group_provider.BindGroupProvider) error

	// Draw records a non-indexed draw without vertex buffers, such as a full-screen triangle.
	//
	// Parameters:
	//   - p: the render pipeline
	//   - vertexCount: the number of vertices
	//   - providers: bind group providers, the i-th bound at group i
	//
	// Returns:
	//   - error: ErrNoPass or a pipeline/pass attachment mismatch
	Draw(p pipeline.Pipeline, vertexCount uint32, providers []bind_group_provider.BindGroupProvider) error

	// DrawIndirect records a non-indexed draw whose arguments are read from buf at offset.
	//
	// Parameters:
	//   - p: the render pipeline
	//   - buf: the buffer holding vertexCount, instanceCount, firstVertex and firstInstance
	//   - offset: the byte offset of the arguments, a multiple of 4
	//   - providers: bind group providers, the i-th bound at group i
	//
	// Returns:
	//   - error: ErrNoPass or a pipeline/pass attachment mismatch
	DrawIndirect(p pipeline.Pipeline, buf *wgpu.Buffer, offset uint64, providers []bind_group_provider.BindGroupProvider) error

	// EndFrame ends the open pass, finishes the encoder and submits the frame.
	// Does not present the surface — call Present() after EndFrame to display the frame.
	//
	// Returns:
	//   - error: ErrNoFrame outside a frame, or the encoder error
	EndFrame() error

	// Present presents the surface to the display and releases the swapchain texture.
	// Must be called once per frame after EndFrame.
	Present()

	// Release frees the targets and the device objects.
	Release()
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount) wgpuRendererBackend {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		sampleCount: sampleCount,
		offscreen:   make(map[pipeline.RenderTarget]*renderTarget),
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		panic(err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		panic(err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		return nil
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]
	b.width, b.height = uint32(width), uint32(height)

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       b.width,
		Height:      b.height,
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.releaseTargetsLocked()
	if err := b.createTargetsLocked(); err != nil {
		// No half-built target set survives, BeginFrame reports the surface as unconfigured until the next resize.
		b.releaseTargetsLocked()
		return err
	}
	return nil
}

// createTargetsLocked allocates the MSAA, depth and offscreen targets at the configured size.
func (b *wgpuRendererBackendImpl) createTargetsLocked() error {
	var err error
	if b.sampleCount > 1 {
		// The surface pass draws into the MSAA texture and resolves into the swapchain view.
		b.msaa, err = b.createTargetLocked("MSAA Texture", *b.surfaceFormat, uint32(b.sampleCount), wgpu.TextureUsageRenderAttachment)
		if err != nil {
			return err
		}
	}

	b.depth, err = b.createTargetLocked("Depth Texture", DepthFormat, 1, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return err
	}

	for _, target := range offscreenTargets {
		t, err := b.createTargetLocked(string(target), OffscreenColorFormat, 1, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
		if err != nil {
			return err
		}
		b.offscreen[target] = t
	}
	return nil
}

func (b *wgpuRendererBackendImpl) createTargetLocked(label string, format wgpu.TextureFormat, sampleCount uint32, usage wgpu.TextureUsage) (*renderTarget, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              b.width,
			Height:             b.height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create %s view: %w", label, err)
	}
	return &renderTarget{texture: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) releaseTargetsLocked() {
	b.msaa.release()
	b.msaa = nil
	b.depth.release()
	b.depth = nil
	for target, t := range b.offscreen {
		t.release()
		delete(b.offscreen, target)
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) SurfaceSize() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *wgpuRendererBackendImpl) TargetView(target pipeline.RenderTarget) *wgpu.TextureView {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.offscreen[target]; ok {
		return t.view
	}
	return nil
}

func (b *wgpuRendererBackendImpl) DepthView() *wgpu.TextureView {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.depth == nil {
		return nil
	}
	return b.depth.view
}

func (b *wgpuRendererBackendImpl) colorFormat(target pipeline.RenderTarget) wgpu.TextureFormat {
	if target == pipeline.RenderTargetSurface {
		return *b.surfaceFormat
	}
	return OffscreenColorFormat
}

// sampleCountFor returns the sample count of a target's attachments. Only the surface is multisampled.
func sampleCountFor(target pipeline.RenderTarget, sampleCount MSAASampleCount) uint32 {
	if target == pipeline.RenderTargetSurface && sampleCount > 1 {
		return uint32(sampleCount)
	}
	return 1
}

// orderedLayouts turns layout descriptors keyed by group into a slice indexed by group.
//
// Parameters:
//   - descriptors: the descriptors keyed by group index
//
// Returns:
//   - []wgpu.BindGroupLayoutDescriptor: the descriptors in group order
//   - error: error if the group indices are not contiguous from 0
func orderedLayouts(descriptors map[int]wgpu.BindGroupLayoutDescriptor) ([]wgpu.BindGroupLayoutDescriptor, error) {
	groups := make([]int, 0, len(descriptors))
	for g := range descriptors {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	out := make([]wgpu.BindGroupLayoutDescriptor, 0, len(groups))
	for i, g := range groups {
		if g != i {
			return nil, fmt.Errorf("bind group %d is not declared but group %d is", i, g)
		}
		out = append(out, descriptors[g])
	}
	return out, nil
}

func (b *wgpuRendererBackendImpl) createPipelineLayout(p pipeline.Pipeline) (*wgpu.PipelineLayout, error) {
	descriptors, err := orderedLayouts(p.BindGroupLayoutDescriptors())
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, len(descriptors))
	for g := range descriptors {
		layout, layoutErr := b.device.CreateBindGroupLayout(&descriptors[g])
		if layoutErr != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, layoutErr)
		}
		bindGroupLayouts[g] = layout
	}

	return b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Target() == pipeline.RenderTargetSurface && b.surfaceFormat == nil {
		return errors.New("surface pipelines need a configured surface")
	}

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return fmt.Errorf("shader %s: %w", vertexShader.Key(), err)
	}
	fs, err := b.device.CreateShaderModule(fragmentShader.Module())
	if err != nil {
		return fmt.Errorf("shader %s: %w", fragmentShader.Key(), err)
	}

	pipelineLayout, err := b.createPipelineLayout(p)
	if err != nil {
		return err
	}

	slots := make([]int, 0, len(vertexShader.VertexLayouts()))
	for slot := range vertexShader.VertexLayouts() {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(slots))
	for _, slot := range slots {
		vertexLayouts = append(vertexLayouts, vertexShader.VertexLayout(slot)...)
	}

	var targets []wgpu.ColorTargetState
	if p.Target() != pipeline.RenderTargetDepthOnly {
		targets = []wgpu.ColorTargetState{{
			Format:    b.colorFormat(p.Target()),
			WriteMask: wgpu.ColorWriteMaskAll,
			Blend:     p.BlendState(),
		}}
	}

	var depthStencil *wgpu.DepthStencilState
	if p.UsesDepth() {
		depthStencil = &wgpu.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: p.DepthWriteEnabled(),
			DepthCompare:      p.DepthCompare(),
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: sampleCountFor(p.Target(), b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
	}

	p.SetRenderPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}

	computeShader := p.Shader(shader.ShaderTypeCompute)
	s, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return fmt.Errorf("shader %s: %w", computeShader.Key(), err)
	}

	layout, err := b.createPipelineLayout(p)
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
	}

	p.SetComputePipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size == 0 {
		return nil, fmt.Errorf("buffer %s: zero size", label)
	}
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(buf, offset, data)
}

func (b *wgpuRendererBackendImpl) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(vertexData) > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            provider.Label() + " Vertex Buffer",
			Size:             uint64(len(vertexData)),
			Usage:            wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			return err
		}
		b.queue.WriteBuffer(buf, 0, vertexData)
		provider.SetVertexBuffer(buf)
	}

	if len(indexData) > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            provider.Label() + " Index Buffer",
			Size:             uint64(len(indexData)),
			Usage:            wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			return err
		}
		b.queue.WriteBuffer(buf, 0, indexData)
		provider.SetIndexBuffer(buf)
	}

	provider.SetIndexCount(indexCount)
	return nil
}

// bufferUsageFor derives the usage of a buffer created for a layout entry.
func bufferUsageFor(entry wgpu.BindGroupLayoutEntry) wgpu.BufferUsage {
	switch entry.Buffer.Type {
	case wgpu.BufferBindingTypeUniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case wgpu.BufferBindingTypeStorage, wgpu.BufferBindingTypeReadOnlyStorage:
		return wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	}
	return 0
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout := provider.BindGroupLayout()
	if layout == nil {
		var err error
		layout, err = b.device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return fmt.Errorf("%s: %w", provider.Label(), err)
		}
		provider.SetBindGroupLayout(layout)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		isTexture := entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined
		isSampler := entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined

		switch {
		case isTexture:
			tv := provider.TextureView(binding)
			if tv == nil {
				return fmt.Errorf("%s: texture binding %d has no texture view", provider.Label(), binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tv,
			}
		case isSampler:
			samp := provider.Sampler(binding)
			if samp == nil {
				return fmt.Errorf("%s: sampler binding %d has no sampler", provider.Label(), binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp,
			}
		default:
			buf := provider.Buffer(binding)
			if buf == nil {
				usage := bufferUsageFor(entry)
				if overrideUsage, ok := bufferUsageOverrides[binding]; ok {
					usage |= overrideUsage
				}
				bufSize := entry.Buffer.MinBindingSize
				if overrideSize, ok := bufferSizeOverrides[binding]; ok {
					bufSize = overrideSize
				}
				if bufSize == 0 {
					return fmt.Errorf("%s: buffer binding %d has no size", provider.Label(), binding)
				}
				var bufErr error
				buf, bufErr = b.device.CreateBuffer(&wgpu.BufferDescriptor{
					Label: fmt.Sprintf("%s Buffer %d", provider.Label(), binding),
					Size:  bufSize,
					Usage: usage,
				})
				if bufErr != nil {
					return bufErr
				}
				provider.SetBuffer(binding, buf)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", provider.Label(), err)
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if want := int(stagingData.Width) * int(stagingData.Height) * 4; want == 0 || len(stagingData.Pixels) != want {
		return fmt.Errorf("%s: texture %dx%d needs %d bytes, got %d", provider.Label(), stagingData.Width, stagingData.Height, want, len(stagingData.Pixels))
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     fmt.Sprintf("%s Texture %d", provider.Label(), bindingKey),
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        common.OrDefault(stagingData.Format, wgpu.TextureFormatRGBA8UnormSrgb),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  stagingData.Width * 4,
			RowsPerImage: stagingData.Height,
		},
		&wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		return err
	}
	provider.SetTextureView(bindingKey, view)
	return nil
}

func (b *wgpuRendererBackendImpl) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         provider.Label() + " Sampler",
		AddressModeU:  common.OrDefault(samplerStagingData.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  common.OrDefault(samplerStagingData.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  common.OrDefault(samplerStagingData.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     samplerStagingData.MagFilter,
		MinFilter:     samplerStagingData.MinFilter,
		MipmapFilter:  samplerStagingData.MipmapFilter,
		LodMinClamp:   samplerStagingData.LodMinClamp,
		LodMaxClamp:   common.OrDefault(samplerStagingData.LodMaxClamp, 32.0),
		MaxAnisotropy: common.OrDefault(samplerStagingData.MaxAnisotropy, 1),
		Compare:       samplerStagingData.Compare,
	})
	if err != nil {
		return err
	}
	provider.SetSampler(bindingKey, samp)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A previous frame's surface texture must be presented before another one is acquired.
	if b.frameSurface != nil || b.frameEncoder != nil {
		return errors.New("previous frame not yet presented")
	}
	if b.depth == nil {
		return errors.New("surface is not configured")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view
	return nil
}

func (b *wgpuRendererBackendImpl) ClearBuffer(buf *wgpu.Buffer, offset, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	b.endPassLocked()
	b.frameEncoder.ClearBuffer(buf, offset, size)
	return nil
}

// colorAttachment builds the color attachment of a render pass.
func (b *wgpuRendererBackendImpl) colorAttachment(opts RenderPassOptions) (wgpu.RenderPassColorAttachment, error) {
	attachment := wgpu.RenderPassColorAttachment{
		LoadOp:  wgpu.LoadOpLoad,
		StoreOp: wgpu.StoreOpStore,
	}
	if opts.ClearColor != nil {
		attachment.LoadOp = wgpu.LoadOpClear
		attachment.ClearValue = *opts.ClearColor
	}

	switch {
	case opts.Target == pipeline.RenderTargetSurface:
		// With MSAA the MSAA texture is the attachment and the swapchain view the resolve target.
		if b.msaa != nil {
			attachment.View = b.msaa.view
			attachment.ResolveTarget = b.frameView
		} else {
			attachment.View = b.frameView
		}
	case opts.Target.Offscreen():
		t, ok := b.offscreen[opts.Target]
		if !ok {
			return attachment, fmt.Errorf("render target %s is not allocated", opts.Target)
		}
		attachment.View = t.view
	default:
		return attachment, fmt.Errorf("unknown render target %q", opts.Target)
	}
	return attachment, nil
}

func (b *wgpuRendererBackendImpl) BeginRenderPass(opts RenderPassOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	if opts.Target == pipeline.RenderTargetSurface && opts.UseDepth {
		return errors.New("the depth buffer is single sampled and cannot be attached to the surface pass")
	}
	if opts.Target == pipeline.RenderTargetDepthOnly && !opts.UseDepth {
		return errors.New("a depth-only pass needs the depth buffer")
	}
	if opts.UseDepth && b.depth == nil {
		return ErrNoDepth
	}
	b.endPassLocked()

	desc := &wgpu.RenderPassDescriptor{}
	if opts.Target != pipeline.RenderTargetDepthOnly {
		attachment, err := b.colorAttachment(opts)
		if err != nil {
			return err
		}
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{attachment}
	}
	if opts.UseDepth {
		loadOp := wgpu.LoadOpLoad
		if opts.ClearDepth {
			loadOp = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depth.view,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}

	b.renderPass = b.frameEncoder.BeginRenderPass(desc)
	b.renderPassOpts = opts
	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputePass() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	b.endPassLocked()
	b.computePass = b.frameEncoder.BeginComputePass(nil)
	return nil
}

func (b *wgpuRendererBackendImpl) EndPass() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPassLocked()
}

func (b *wgpuRendererBackendImpl) endPassLocked() {
	if b.renderPass != nil {
		b.renderPass.End()
		b.renderPass.Release()
		b.renderPass = nil
		b.renderPassOpts = RenderPassOptions{}
	}
	if b.computePass != nil {
		b.computePass.End()
		b.computePass.Release()
		b.computePass = nil
	}
}

// checkPassCompatibility reports whether a render pipeline may draw in a pass opened with opts.
func checkPassCompatibility(p pipeline.Pipeline, opts RenderPassOptions) error {
	if p.Type() != pipeline.PipelineTypeRender {
		return fmt.Errorf("pipeline %s is not a render pipeline", p.PipelineKey())
	}
	if p.Target() != opts.Target {
		return fmt.Errorf("pipeline %s targets %s but the open pass targets %s", p.PipelineKey(), p.Target(), opts.Target)
	}
	if p.UsesDepth() != opts.UseDepth {
		return fmt.Errorf("pipeline %s depth usage %t does not match the open pass (%t)", p.PipelineKey(), p.UsesDepth(), opts.UseDepth)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) prepareRenderLocked(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider) error {
	if b.renderPass == nil {
		return ErrNoPass
	}
	if err := checkPassCompatibility(p, b.renderPassOpts); err != nil {
		return err
	}
	b.renderPass.SetPipeline(p.Pipeline().(*wgpu.RenderPipeline))
	for i, provider := range providers {
		b.renderPass.SetBindGroup(uint32(i), provider.BindGroup(), nil)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) prepareComputeLocked(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider) error {
	if b.computePass == nil {
		return ErrNoPass
	}
	if p.Type() != pipeline.PipelineTypeCompute {
		return fmt.Errorf("pipeline %s is not a compute pipeline", p.PipelineKey())
	}
	b.computePass.SetPipeline(p.Pipeline().(*wgpu.ComputePipeline))
	for i, provider := range providers {
		b.computePass.SetBindGroup(uint32(i), provider.BindGroup(), nil)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prepareComputeLocked(p, providers); err != nil {
		return err
	}
	b.computePass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchComputeIndirect(p pipeline.Pipeline, providers []bind_group_provider.BindGroupProvider, buf *wgpu.Buffer, offset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prepareComputeLocked(p, providers); err != nil {
		return err
	}
	b.computePass.DispatchWorkgroupsIndirect(buf, offset)
	return nil
}

func (b *wgpuRendererBackendImpl) DrawIndexed(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, providers []bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if meshProvider.VertexBuffer() == nil || meshProvider.IndexBuffer() == nil {
		return fmt.Errorf("%s has no mesh buffers", meshProvider.Label())
	}
	if err := b.prepareRenderLocked(p, providers); err != nil {
		return err
	}
	b.renderPass.SetVertexBuffer(0, meshProvider.VertexBuffer(), 0, wgpu.WholeSize)
	b.renderPass.SetIndexBuffer(meshProvider.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.renderPass.DrawIndexed(uint32(meshProvider.IndexCount()), instanceCount, 0, 0, 0)
	return nil
}

func (b *wgpuRendererBackendImpl) Draw(p pipeline.Pipeline, vertexCount uint32, providers []bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prepareRenderLocked(p, providers); err != nil {
		return err
	}
	b.renderPass.Draw(vertexCount, 1, 0, 0)
	return nil
}

func (b *wgpuRendererBackendImpl) DrawIndirect(p pipeline.Pipeline, buf *wgpu.Buffer, offset uint64, providers []bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.prepareRenderLocked(p, providers); err != nil {
		return err
	}
	b.renderPass.DrawIndirect(buf, offset)
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	b.endPassLocked()

	commandBuffer, err := b.frameEncoder.Finish(nil)
	b.frameEncoder.Release()
	b.frameEncoder = nil
	if err != nil {
		b.releaseFrameSurfaceLocked()
		return fmt.Errorf("finish frame: %w", err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If no frame surface is held, nothing to present.
	if b.frameSurface == nil {
		return
	}

	b.surface.Present()
	b.releaseFrameSurfaceLocked()
}

func (b *wgpuRendererBackendImpl) releaseFrameSurfaceLocked() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPassLocked()
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	b.releaseFrameSurfaceLocked()
	b.releaseTargetsLocked()

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
