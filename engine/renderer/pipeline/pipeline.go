package pipeline

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// RenderTarget names the color attachment a render pipeline draws into.
type RenderTarget string

const (
	// RenderTargetSurface is the swapchain texture, multisampled when MSAA is enabled.
	RenderTargetSurface RenderTarget = "surface"

	// RenderTargetDepthOnly has no color attachment. The fragment stage may still run for its side effects.
	RenderTargetDepthOnly RenderTarget = "depth_only"

	// RenderTargetSceneColor is the offscreen color texture holding the shaded mesh.
	RenderTargetSceneColor RenderTarget = "scene_color"

	// RenderTargetParticleColor is the offscreen color texture holding the particle splats.
	RenderTargetParticleColor RenderTarget = "particle_color"
)

// Offscreen reports whether the target is an offscreen color texture owned by the renderer.
func (t RenderTarget) Offscreen() bool {
	return t == RenderTargetSceneColor || t == RenderTargetParticleColor
}

// BlendMode selects the color blend equation of a render pipeline.
type BlendMode int

const (
	// BlendModeOpaque overwrites the target.
	BlendModeOpaque BlendMode = iota

	// BlendModeAlpha draws the source over the target weighted by source alpha.
	BlendModeAlpha

	// BlendModeAdditive adds source color weighted by source alpha, so overlapping particles brighten.
	BlendModeAdditive
)

func (m BlendMode) String() string {
	switch m {
	case BlendModeOpaque:
		return "opaque"
	case BlendModeAlpha:
		return "alpha"
	case BlendModeAdditive:
		return "additive"
	default:
		return fmt.Sprintf("BlendMode(%d)", int(m))
	}
}

// state returns the wgpu blend state of the mode, nil when the mode does not blend or is unknown.
func (m BlendMode) state() *wgpu.BlendState {
	add := wgpu.BlendOperationAdd
	switch m {
	case BlendModeAlpha:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: add},
			Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: add},
		}
	case BlendModeAdditive:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOne, Operation: add},
			Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: add},
		}
	default:
		return nil
	}
}

// pipeline is the implementation of the Pipeline interface.
// It holds the underlying WebGPU pipeline objects and related data for both render and compute pipelines.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	// the following shader references are used for pipeline creation and resource binding, they are required to be set before initializing a pipeline.

	vertexShader, fragmentShader, computeShader shader.Shader

	// renderPipeline is the render pipeline if this is a render pipeline, nil otherwise
	renderPipeline *wgpu.RenderPipeline
	// computePipeline is the compute pipeline if this is a compute pipeline, nil otherwise
	computePipeline *wgpu.ComputePipeline

	// Render state, ignored by compute pipelines.

	target            RenderTarget
	depthTestEnabled  bool
	depthWriteEnabled bool
	depthCompare      wgpu.CompareFunction
	blend             BlendMode
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
}

// Pipeline defines the interface for a GPU pipeline, encapsulating either a render pipeline
// (vertex + fragment shaders) or a compute pipeline (compute shader). It holds all configuration
// state required for pipeline creation including target, depth, blend, cull, and topology settings.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Shaders returns every shader attached to the pipeline in stage order.
	Shaders() []shader.Shader

	// Validate checks that the shaders match the pipeline type and the render state is consistent.
	//
	// Returns:
	//   - error: error describing the first problem found
	Validate() error

	// BindGroupLayoutDescriptors merges the layouts of all stages. Entries sharing a binding index have their
	// visibility combined.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: merged descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// Pipeline returns the underlying pipeline object, either *wgpu.RenderPipeline or *wgpu.ComputePipeline
	// Note: The caller is responsible for type asserting the returned value as either pipeline type.
	//
	// Returns:
	//   - any: the underlying pipeline object.
	Pipeline() any

	// Target returns the color attachment the pipeline draws into.
	Target() RenderTarget

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	DepthWriteEnabled() bool

	// UsesDepth reports whether the pipeline has a depth attachment, which is the case when it tests or writes depth.
	UsesDepth() bool

	// DepthCompare returns the depth comparison function used when depth testing is enabled.
	//
	// Returns:
	//   - wgpu.CompareFunction: the comparison, wgpu.CompareFunctionAlways when depth testing is disabled
	DepthCompare() wgpu.CompareFunction

	// Blend returns how fragments combine with the color already in the target.
	Blend() BlendMode

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - wgpu.CullMode: the cull mode for this pipeline (e.g., wgpu.CullModeNone, wgpu.CullModeFront, wgpu.CullModeBack)
	CullMode() wgpu.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - wgpu.PrimitiveTopology: the primitive topology for this pipeline (e.g., wgpu.PrimitiveTopologyTriangleList)
	Topology() wgpu.PrimitiveTopology

	// BlendState returns the color target blend state of the blend mode.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state, nil for BlendModeOpaque
	BlendState() *wgpu.BlendState

	// SetRenderPipeline sets the render pipeline
	//
	// Parameters:
	//   - p: the WebGPU render pipeline to set
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetComputePipeline sets the compute pipeline
	//
	// Parameters:
	//   - p: the WebGPU compute pipeline to set
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release frees the underlying GPU pipeline object.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		target:            RenderTargetSurface,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      wgpu.CompareFunctionLess,
		blend:             BlendModeOpaque,
		cullMode:          wgpu.CullModeNone,
		topology:          wgpu.PrimitiveTopologyTriangleList,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) Shaders() []shader.Shader {
	var out []shader.Shader
	for _, s := range []shader.Shader{p.vertexShader, p.fragmentShader, p.computeShader} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (p *pipeline) Validate() error {
	switch p.pipelineType {
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return fmt.Errorf("pipeline %s: compute pipeline has no compute shader", p.pipelineKey)
		}
		if p.vertexShader != nil || p.fragmentShader != nil {
			return fmt.Errorf("pipeline %s: compute pipeline has render stages", p.pipelineKey)
		}
		if p.computeShader.ShaderType() != shader.ShaderTypeCompute {
			return fmt.Errorf("pipeline %s: shader %s is a %s shader", p.pipelineKey, p.computeShader.Key(), p.computeShader.ShaderType())
		}
	case PipelineTypeRender:
		if p.vertexShader == nil || p.fragmentShader == nil {
			return fmt.Errorf("pipeline %s: render pipeline needs vertex and fragment shaders", p.pipelineKey)
		}
		if p.computeShader != nil {
			return fmt.Errorf("pipeline %s: render pipeline has a compute stage", p.pipelineKey)
		}
		if p.vertexShader.ShaderType() != shader.ShaderTypeVertex {
			return fmt.Errorf("pipeline %s: shader %s is a %s shader", p.pipelineKey, p.vertexShader.Key(), p.vertexShader.ShaderType())
		}
		if p.fragmentShader.ShaderType() != shader.ShaderTypeFragment {
			return fmt.Errorf("pipeline %s: shader %s is a %s shader", p.pipelineKey, p.fragmentShader.Key(), p.fragmentShader.ShaderType())
		}
		if p.target == RenderTargetDepthOnly && !p.UsesDepth() {
			return fmt.Errorf("pipeline %s: depth-only pipeline without depth testing or writing has no attachment", p.pipelineKey)
		}
		if p.target == RenderTargetSurface && p.UsesDepth() {
			return fmt.Errorf("pipeline %s: surface pipelines do not support depth", p.pipelineKey)
		}
		if p.target != RenderTargetSurface && p.target != RenderTargetDepthOnly && !p.target.Offscreen() {
			return fmt.Errorf("pipeline %s: unknown render target %q", p.pipelineKey, p.target)
		}
		if p.target == RenderTargetDepthOnly && p.blend != BlendModeOpaque {
			return fmt.Errorf("pipeline %s: %s blending needs a color attachment", p.pipelineKey, p.blend)
		}
		if p.blend.state() == nil && p.blend != BlendModeOpaque {
			return fmt.Errorf("pipeline %s: unknown blend mode %d", p.pipelineKey, int(p.blend))
		}
	default:
		return fmt.Errorf("pipeline %s: unknown pipeline type %d", p.pipelineKey, p.pipelineType)
	}
	return nil
}

func (p *pipeline) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]map[uint32]wgpu.BindGroupLayoutEntry)
	for _, s := range p.Shaders() {
		for g, desc := range s.BindGroupLayoutDescriptors() {
			if merged[g] == nil {
				merged[g] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			for _, e := range desc.Entries {
				if existing, ok := merged[g][e.Binding]; ok {
					existing.Visibility |= e.Visibility
					merged[g][e.Binding] = existing
					continue
				}
				merged[g][e.Binding] = e
			}
		}
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(merged))
	for g, entries := range merged {
		list := make([]wgpu.BindGroupLayoutEntry, 0, len(entries))
		for _, e := range entries {
			list = append(list, e)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Binding < list[j].Binding })
		result[g] = wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d", p.pipelineKey, g),
			Entries: list,
		}
	}
	return result
}

func (p *pipeline) Target() RenderTarget {
	return p.target
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) UsesDepth() bool {
	return p.depthTestEnabled || p.depthWriteEnabled
}

func (p *pipeline) DepthCompare() wgpu.CompareFunction {
	if !p.depthTestEnabled {
		return wgpu.CompareFunctionAlways
	}
	return p.depthCompare
}

func (p *pipeline) Blend() BlendMode {
	return p.blend
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	return p.blend.state()
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
