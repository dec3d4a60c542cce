package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vertexSource = `
//@oxy:include vertex
//@oxy:group 0 0 storage_uniform model model_uniform
//@oxy:group 0 1 storage_uniform view view

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return view.projection * view.modelView * vec4<f32>(in.position, 1.0);
}
`

const fragmentSource = `
//@oxy:group 0 0 storage_uniform model model_uniform
//@oxy:provider 0 2 dissolve noise_texture
@group(0) @binding(2) var noiseTexture: texture_2d<f32>;
//@oxy:provider 0 3 dissolve color_sampler
@group(0) @binding(3) var colorSampler: sampler;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return textureSample(noiseTexture, colorSampler, vec2<f32>(0.5)) * model.modelAlpha;
}
`

const computeSource = `
//@oxy:group 0 0 storage_read_write cmd command_arguments
@compute @workgroup_size(1)
fn derive() {
    atomicStore(&cmd.jobCount, 0u);
}
`

func mustShader(t *testing.T, key string, st shader.ShaderType, src string) shader.Shader {
	t.Helper()
	s, err := shader.NewShaderFromSource(key, st, src)
	require.NoError(t, err)
	return s
}

func TestNewPipelineDefaults(t *testing.T) {
	p := NewPipeline("mesh", PipelineTypeRender)

	assert.Equal(t, "mesh", p.PipelineKey())
	assert.Equal(t, PipelineTypeRender, p.Type())
	assert.Equal(t, RenderTargetSurface, p.Target())
	assert.True(t, p.UsesDepth())
	assert.Equal(t, wgpu.CompareFunctionLess, p.DepthCompare())
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleList, p.Topology())
	assert.Equal(t, BlendModeOpaque, p.Blend())
	assert.Nil(t, p.BlendState())
	assert.Nil(t, p.Pipeline().(*wgpu.RenderPipeline))
}

func TestPipelineOptions(t *testing.T) {
	p := NewPipeline("particles", PipelineTypeRender,
		WithTarget(RenderTargetParticleColor),
		WithDepthWriteEnabled(false),
		WithDepthCompare(wgpu.CompareFunctionLessEqual),
		WithBlendMode(BlendModeAlpha),
		WithTopology(wgpu.PrimitiveTopologyPointList),
		WithCullMode(wgpu.CullModeBack),
	)

	assert.True(t, p.Target().Offscreen())
	assert.True(t, p.UsesDepth())
	assert.False(t, p.DepthWriteEnabled())
	assert.Equal(t, wgpu.CompareFunctionLessEqual, p.DepthCompare())
	require.NotNil(t, p.BlendState())
	assert.Equal(t, wgpu.BlendFactorSrcAlpha, p.BlendState().Color.SrcFactor)
	assert.Equal(t, wgpu.PrimitiveTopologyPointList, p.Topology())
	assert.Equal(t, wgpu.CullModeBack, p.CullMode())

	noTest := NewPipeline("composite", PipelineTypeRender, WithDepthTestEnabled(false), WithDepthWriteEnabled(false))
	assert.False(t, noTest.UsesDepth())
	assert.Equal(t, wgpu.CompareFunctionAlways, noTest.DepthCompare())
}

func TestBlendModeStates(t *testing.T) {
	assert.Nil(t, BlendModeOpaque.state())

	alpha := BlendModeAlpha.state()
	require.NotNil(t, alpha)
	assert.Equal(t, wgpu.BlendFactorOneMinusSrcAlpha, alpha.Color.DstFactor)

	additive := BlendModeAdditive.state()
	require.NotNil(t, additive)
	assert.Equal(t, wgpu.BlendFactorOne, additive.Color.DstFactor)

	assert.Equal(t, "additive", BlendModeAdditive.String())
	assert.Equal(t, "BlendMode(9)", BlendMode(9).String())
}

func TestPipelineValidate(t *testing.T) {
	vs := mustShader(t, "vs", shader.ShaderTypeVertex, vertexSource)
	fs := mustShader(t, "fs", shader.ShaderTypeFragment, fragmentSource)
	cs := mustShader(t, "cs", shader.ShaderTypeCompute, computeSource)

	tests := []struct {
		name    string
		p       Pipeline
		wantErr string
	}{
		{
			name: "valid render",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget(RenderTargetSceneColor)),
		},
		{
			name: "valid compute",
			p:    NewPipeline("c", PipelineTypeCompute, WithComputeShader(cs)),
		},
		{
			name:    "compute without shader",
			p:       NewPipeline("c", PipelineTypeCompute),
			wantErr: "no compute shader",
		},
		{
			name:    "render missing fragment",
			p:       NewPipeline("r", PipelineTypeRender, WithVertexShader(vs)),
			wantErr: "vertex and fragment",
		},
		{
			name:    "stage mismatch",
			p:       NewPipeline("r", PipelineTypeRender, WithVertexShader(fs), WithFragmentShader(fs)),
			wantErr: "is a fragment shader",
		},
		{
			name: "surface with depth",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget(RenderTargetSurface)),
			wantErr: "do not support depth",
		},
		{
			name: "depth only without depth",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget(RenderTargetDepthOnly), WithDepthTestEnabled(false), WithDepthWriteEnabled(false)),
			wantErr: "no attachment",
		},
		{
			name: "unknown target",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget("shadow_map")),
			wantErr: "unknown render target",
		},
		{
			name: "blend without color",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget(RenderTargetDepthOnly), WithBlendMode(BlendModeAdditive)),
			wantErr: "additive blending needs a color attachment",
		},
		{
			name: "unknown blend mode",
			p: NewPipeline("r", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs),
				WithTarget(RenderTargetSceneColor), WithBlendMode(7)),
			wantErr: "unknown blend mode 7",
		},
		{
			name:    "compute with render stage",
			p:       NewPipeline("c", PipelineTypeCompute, WithComputeShader(cs), WithVertexShader(vs)),
			wantErr: "render stages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBindGroupLayoutDescriptorsMergesVisibility(t *testing.T) {
	vs := mustShader(t, "vs", shader.ShaderTypeVertex, vertexSource)
	fs := mustShader(t, "fs", shader.ShaderTypeFragment, fragmentSource)
	p := NewPipeline("mesh", PipelineTypeRender, WithVertexShader(vs), WithFragmentShader(fs))

	descs := p.BindGroupLayoutDescriptors()
	require.Len(t, descs, 1)
	entries := descs[0].Entries
	require.Len(t, entries, 4)
	assert.Equal(t, "mesh_group0", descs[0].Label)

	for i, e := range entries {
		assert.Equal(t, uint32(i), e.Binding)
	}
	assert.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, entries[0].Visibility)
	assert.Equal(t, wgpu.ShaderStageVertex, entries[1].Visibility)
	assert.Equal(t, wgpu.ShaderStageFragment, entries[2].Visibility)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, entries[2].Texture.SampleType)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, entries[3].Sampler.Type)
}

func TestShadersInStageOrder(t *testing.T) {
	vs := mustShader(t, "vs", shader.ShaderTypeVertex, vertexSource)
	fs := mustShader(t, "fs", shader.ShaderTypeFragment, fragmentSource)
	p := NewPipeline("mesh", PipelineTypeRender, WithFragmentShader(fs), WithVertexShader(vs))

	shaders := p.Shaders()
	require.Len(t, shaders, 2)
	assert.Equal(t, "vs", shaders[0].Key())
	assert.Equal(t, "fs", shaders[1].Key())
	assert.Same(t, fs, p.Shader(shader.ShaderTypeFragment))
	assert.Nil(t, p.Shader(shader.ShaderTypeCompute))
}
