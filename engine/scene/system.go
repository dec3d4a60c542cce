package scene

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/camera"
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/texture"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Bindings of the provider that owns the dissolve textures. It never gets a bind group, passes share its resources.
const (
	noiseBinding   = 0
	spawnBinding   = 1
	samplerBinding = 2
)

var transparent = wgpu.Color{R: 0, G: 0, B: 0, A: 0}

// FrameInput is the host state uploaded before a frame is recorded.
type FrameInput struct {
	Model  particles.GPUModelUniform
	View   camera.GPUViewUniform
	System particles.GPUParticleSystem
}

// systemImpl is the GPU implementation of the particle pipeline.
type systemImpl struct {
	mu sync.Mutex

	logger  *zap.Logger
	metrics *metrics.Metrics

	renderer renderer.Renderer
	plan     particles.FramePlan

	pipelines map[string]pipeline.Pipeline

	maxParticles uint32
	width        uint32
	height       uint32

	// Uniforms written by the host every frame
	modelBuf  *wgpu.Buffer
	viewBuf   *wgpu.Buffer
	systemBuf *wgpu.Buffer

	// GPU resident state
	cmdBuf       *wgpu.Buffer
	globalBuf    *wgpu.Buffer
	jobsBuf      *wgpu.Buffer
	particlesBuf *wgpu.Buffer

	meshProvider     bind_group_provider.BindGroupProvider
	dissolveProvider bind_group_provider.BindGroupProvider
	passProviders    map[string]bind_group_provider.BindGroupProvider
}

// System records the particle frame plan on the GPU. Its core buffers never leave the GPU: the host only writes
// the uniforms and the initial ring state.
type System interface {
	particles.StageExecutor

	// Update queues the uniform writes of the next frame.
	//
	// Parameters:
	//   - in: the model, view and simulation uniforms
	Update(in FrameInput)

	// RecordFrame runs the frame plan into the renderer's open frame.
	//
	// Returns:
	//   - error: the first stage or barrier that failed
	RecordFrame() error

	// Resize rebuilds the job queue for the new surface size and rebinds every pass to the recreated render
	// targets. The particle ring and its state are kept.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: error if a buffer or bind group could not be recreated
	Resize(width, height uint32) error

	// Capacity returns the size of the particle ring.
	Capacity() uint32

	// JobCapacity returns the size of the append job queue, one slot per pixel.
	JobCapacity() uint32

	// Release frees the buffers, textures and bind groups of the system. Pipelines belong to the renderer.
	Release()
}

var _ System = &systemImpl{}

// NewSystem creates the buffers, registers the pipelines and wires the bind groups of every pass.
//
// Parameters:
//   - r: the renderer, with a configured surface
//   - programs: the pass shaders
//   - m: the mesh that dissolves
//   - textures: the noise and spawn textures
//   - maxParticles: the size of the particle ring
//   - options: functional options
//
// Returns:
//   - System: the system, ready to record frames
//   - error: error if any GPU object could not be created
func NewSystem(r renderer.Renderer, programs Programs, m *mesh.Mesh, textures texture.Set, maxParticles uint32, options ...SystemBuilderOption) (System, error) {
	if maxParticles == 0 {
		return nil, errors.New("particle capacity must be positive")
	}
	width, height := r.SurfaceSize()
	if width == 0 || height == 0 {
		return nil, errors.New("surface is not configured")
	}

	s := &systemImpl{
		logger:        zap.NewNop(),
		renderer:      r,
		plan:          particles.DefaultFramePlan(),
		pipelines:     make(map[string]pipeline.Pipeline),
		maxParticles:  maxParticles,
		width:         width,
		height:        height,
		passProviders: make(map[string]bind_group_provider.BindGroupProvider),
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.plan.Validate(); err != nil {
		return nil, err
	}

	pipelines := programs.Pipelines()
	if err := CheckBindingContract(pipelines); err != nil {
		return nil, err
	}
	if err := r.RegisterPipelines(pipelines...); err != nil {
		return nil, fmt.Errorf("register pipelines: %w", err)
	}
	for _, p := range pipelines {
		// The renderer keeps the first pipeline registered under a key.
		s.pipelines[p.PipelineKey()] = r.Pipeline(p.PipelineKey())
	}

	if err := s.init(m, textures); err != nil {
		s.Release()
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ParticleCapacity.Set(float64(maxParticles))
		s.metrics.JobCapacity.Set(float64(s.JobCapacity()))
	}
	s.logger.Info("particle system ready",
		zap.Uint32("capacity", maxParticles),
		zap.Uint32("job_capacity", s.JobCapacity()),
		zap.Int("mesh_indices", len(m.Indices)),
	)
	return s, nil
}

func (s *systemImpl) init(m *mesh.Mesh, textures texture.Set) error {
	var (
		cmd     particles.GPUCommandArguments
		global  = particles.NewGlobalParticleData(s.maxParticles)
		model   particles.GPUModelUniform
		view    camera.GPUViewUniform
		system  particles.GPUParticleSystem
		element particles.GPUParticle
		err     error
	)

	uniform := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	if s.modelBuf, err = s.renderer.CreateBuffer("model_uniform", uint64(model.Size()), uniform); err != nil {
		return err
	}
	if s.viewBuf, err = s.renderer.CreateBuffer("view_uniform", uint64(view.Size()), uniform); err != nil {
		return err
	}
	if s.systemBuf, err = s.renderer.CreateBuffer("particle_system", uint64(system.Size()), uniform); err != nil {
		return err
	}

	// CopyDst on the command arguments is what the per-frame clear needs.
	if s.cmdBuf, err = s.renderer.CreateBuffer("command_arguments", uint64(cmd.Size()),
		wgpu.BufferUsageStorage|wgpu.BufferUsageIndirect|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if s.globalBuf, err = s.renderer.CreateBuffer("global_particle_data", uint64(global.Size()),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if s.particlesBuf, err = s.renderer.CreateBuffer("particles", uint64(s.maxParticles)*uint64(element.Size()),
		wgpu.BufferUsageStorage); err != nil {
		return err
	}
	if err = s.createJobQueue(); err != nil {
		return err
	}
	s.renderer.WriteBuffer(s.globalBuf, 0, global.Marshal())

	s.meshProvider = bind_group_provider.NewBindGroupProvider("mesh")
	if err = s.renderer.InitMeshBuffers(s.meshProvider, m.VertexBytes(), m.IndexBytes(), len(m.Indices)); err != nil {
		return fmt.Errorf("mesh buffers: %w", err)
	}

	s.dissolveProvider = bind_group_provider.NewBindGroupProvider("dissolve")
	for _, tex := range []struct {
		binding int
		img     *image.RGBA
	}{{noiseBinding, textures.Noise}, {spawnBinding, textures.Spawn}} {
		if tex.img == nil {
			return fmt.Errorf("dissolve texture %d is missing", tex.binding)
		}
		staging := common.TextureStagingData{
			Pixels: texture.Pixels(tex.img),
			Width:  uint32(tex.img.Rect.Dx()),
			Height: uint32(tex.img.Rect.Dy()),
			Format: wgpu.TextureFormatRGBA8Unorm,
		}
		if err = s.renderer.InitTextureView(s.dissolveProvider, tex.binding, staging); err != nil {
			return fmt.Errorf("dissolve texture %d: %w", tex.binding, err)
		}
	}
	if err = s.renderer.InitSampler(s.dissolveProvider, samplerBinding, common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeNearest,
		MinFilter:    wgpu.FilterModeNearest,
		MipmapFilter: wgpu.MipmapFilterModeNearest,
	}); err != nil {
		return fmt.Errorf("color sampler: %w", err)
	}

	return s.bindPasses()
}

func (s *systemImpl) createJobQueue() error {
	var job particles.GPUAppendJob
	buf, err := s.renderer.CreateBuffer("append_jobs", uint64(s.JobCapacity())*uint64(job.Size()), wgpu.BufferUsageStorage)
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}
	if s.jobsBuf != nil {
		s.jobsBuf.Release()
	}
	s.jobsBuf = buf
	return nil
}

// resources collects everything the pass declarations can refer to.
func (s *systemImpl) resources() *resourceSet {
	rs := newResourceSet()
	rs.buffers[shader.AnnotationArgModelUniform] = s.modelBuf
	rs.buffers[shader.AnnotationArgView] = s.viewBuf
	rs.buffers[shader.AnnotationArgParticleSystem] = s.systemBuf
	rs.buffers[shader.AnnotationArgCommandArguments] = s.cmdBuf
	rs.buffers[shader.AnnotationArgGlobalParticleData] = s.globalBuf
	rs.buffers[shader.AnnotationArgAppendJob] = s.jobsBuf
	rs.buffers[shader.AnnotationArgParticle] = s.particlesBuf

	rs.views[shader.AnnotationArgNoiseTexture] = s.dissolveProvider.TextureView(noiseBinding)
	rs.views[shader.AnnotationArgSpawnTexture] = s.dissolveProvider.TextureView(spawnBinding)
	rs.samplers[shader.AnnotationArgColorSampler] = s.dissolveProvider.Sampler(samplerBinding)

	rs.views[shader.AnnotationArgDepthTexture] = s.renderer.DepthView()
	rs.views[shader.AnnotationArgSceneColorTexture] = s.renderer.TargetView(pipeline.RenderTargetSceneColor)
	rs.views[shader.AnnotationArgParticleColorTexture] = s.renderer.TargetView(pipeline.RenderTargetParticleColor)
	return rs
}

// bindPasses (re)creates the provider and bind group of every pass.
func (s *systemImpl) bindPasses() error {
	s.releasePasses()
	rs := s.resources()
	for key, p := range s.pipelines {
		provider, err := rs.wire(p)
		if err != nil {
			return err
		}
		if err := s.renderer.InitBindGroup(provider, p.BindGroupLayoutDescriptors()[0], nil, nil); err != nil {
			provider.Release()
			return fmt.Errorf("bind group %s: %w", key, err)
		}
		s.passProviders[key] = provider
	}
	return nil
}

func (s *systemImpl) releasePasses() {
	for key, provider := range s.passProviders {
		provider.Release()
		delete(s.passProviders, key)
	}
}

func (s *systemImpl) Capacity() uint32 {
	return s.maxParticles
}

func (s *systemImpl) JobCapacity() uint32 {
	return s.width * s.height
}

func (s *systemImpl) Update(in FrameInput) {
	s.renderer.WriteBuffer(s.modelBuf, 0, in.Model.Marshal())
	s.renderer.WriteBuffer(s.viewBuf, 0, in.View.Marshal())
	s.renderer.WriteBuffer(s.systemBuf, 0, in.System.Marshal())
}

func (s *systemImpl) RecordFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Run(s)
}

func (s *systemImpl) Resize(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width == 0 || height == 0 {
		return nil
	}
	s.width, s.height = width, height
	if err := s.createJobQueue(); err != nil {
		return err
	}
	if err := s.bindPasses(); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.JobCapacity.Set(float64(s.JobCapacity()))
	}
	s.logger.Debug("particle system resized", zap.Uint32("job_capacity", s.JobCapacity()))
	return nil
}

func (s *systemImpl) pass(key string) []bind_group_provider.BindGroupProvider {
	return []bind_group_provider.BindGroupProvider{s.passProviders[key]}
}

// ExecuteStage records one stage. Callers hold s.mu through RecordFrame.
func (s *systemImpl) ExecuteStage(stage particles.Stage) error {
	start := time.Now()
	err := s.executeStage(stage)
	if s.metrics != nil {
		s.metrics.ObserveStage(stage.String(), time.Since(start))
	}
	return err
}

func (s *systemImpl) executeStage(stage particles.Stage) error {
	r := s.renderer
	switch stage {
	case particles.StageClear:
		var cmd particles.GPUCommandArguments
		return r.ClearBuffer(s.cmdBuf, 0, uint64(cmd.Size()))

	case particles.StageDepthPrepass:
		if err := r.BeginRenderPass(renderer.RenderPassOptions{
			Target:     pipeline.RenderTargetDepthOnly,
			UseDepth:   true,
			ClearDepth: true,
		}); err != nil {
			return err
		}
		return r.DrawCall(PipelineDepthPrepass, s.meshProvider, 1, s.pass(PipelineDepthPrepass))

	case particles.StageEmission:
		if err := r.BeginRenderPass(renderer.RenderPassOptions{
			Target:   pipeline.RenderTargetDepthOnly,
			UseDepth: true,
		}); err != nil {
			return err
		}
		return r.DrawCall(PipelineEmission, s.meshProvider, 1, s.pass(PipelineEmission))

	case particles.StageCommandDerivation:
		if err := r.BeginComputePass(); err != nil {
			return err
		}
		return r.DispatchCompute(PipelineDeriveCommand, s.pass(PipelineDeriveCommand), [3]uint32{1, 1, 1})

	case particles.StageSimulation:
		if err := r.BeginComputePass(); err != nil {
			return err
		}
		return r.DispatchComputeIndirect(PipelineSimulate, s.pass(PipelineSimulate), s.cmdBuf, particles.DispatchCommandOffset)

	case particles.StageIndirectRender:
		background := transparent
		if err := r.BeginRenderPass(renderer.RenderPassOptions{
			Target:     pipeline.RenderTargetSceneColor,
			ClearColor: &background,
			UseDepth:   true,
		}); err != nil {
			return err
		}
		if err := r.DrawCall(PipelineScene, s.meshProvider, 1, s.pass(PipelineScene)); err != nil {
			return err
		}
		if err := r.BeginRenderPass(renderer.RenderPassOptions{
			Target:     pipeline.RenderTargetParticleColor,
			ClearColor: &background,
			UseDepth:   true,
		}); err != nil {
			return err
		}
		return r.DrawIndirect(PipelineParticles, s.cmdBuf, particles.DrawCommandOffset, s.pass(PipelineParticles))

	case particles.StageComposition:
		black := wgpu.Color{R: 0, G: 0, B: 0, A: 1}
		if err := r.BeginRenderPass(renderer.RenderPassOptions{
			Target:     pipeline.RenderTargetSurface,
			ClearColor: &black,
		}); err != nil {
			return err
		}
		return r.Draw(PipelineComposition, 3, s.pass(PipelineComposition))
	}
	return fmt.Errorf("unknown stage %s", stage)
}

// Barrier ends the open pass. Inside one command encoder WebGPU makes the writes of a pass visible to every later
// pass, so closing the pass is the whole barrier.
func (s *systemImpl) Barrier(b particles.Barrier) error {
	s.renderer.EndPass()
	return nil
}

func (s *systemImpl) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releasePasses()
	if s.meshProvider != nil {
		s.meshProvider.Release()
	}
	if s.dissolveProvider != nil {
		s.dissolveProvider.Release()
	}
	for _, buf := range []*wgpu.Buffer{s.modelBuf, s.viewBuf, s.systemBuf, s.cmdBuf, s.globalBuf, s.jobsBuf, s.particlesBuf} {
		if buf != nil {
			buf.Release()
		}
	}
	s.modelBuf, s.viewBuf, s.systemBuf = nil, nil, nil
	s.cmdBuf, s.globalBuf, s.jobsBuf, s.particlesBuf = nil, nil, nil, nil
}
