package scene

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed shaders/*.wgsl
var embeddedShaders embed.FS

// Shader keys.
const (
	ShaderMeshVertex          = "mesh_vertex"
	ShaderDepthFragment       = "depth_fragment"
	ShaderEmissionFragment    = "emission_fragment"
	ShaderSceneFragment       = "scene_fragment"
	ShaderParticleVertex      = "particle_vertex"
	ShaderParticleFragment    = "particle_fragment"
	ShaderCompositionVertex   = "composition_vertex"
	ShaderCompositionFragment = "composition_fragment"
	ShaderDeriveCommands      = "derive_commands"
	ShaderSimulate            = "simulate"
)

// Pipeline keys, one per pass.
const (
	PipelineDepthPrepass  = "depth_prepass"
	PipelineEmission      = "emission"
	PipelineScene         = "scene"
	PipelineParticles     = "particles"
	PipelineComposition   = "composition"
	PipelineDeriveCommand = "derive_commands"
	PipelineSimulate      = "simulate"
)

// programFiles maps every shader key to its stage and file name.
var programFiles = []struct {
	key        string
	shaderType shader.ShaderType
	file       string
}{
	{ShaderMeshVertex, shader.ShaderTypeVertex, "mesh_vertex.wgsl"},
	{ShaderDepthFragment, shader.ShaderTypeFragment, "depth_fragment.wgsl"},
	{ShaderEmissionFragment, shader.ShaderTypeFragment, "emission_fragment.wgsl"},
	{ShaderSceneFragment, shader.ShaderTypeFragment, "scene_fragment.wgsl"},
	{ShaderParticleVertex, shader.ShaderTypeVertex, "particle_vertex.wgsl"},
	{ShaderParticleFragment, shader.ShaderTypeFragment, "particle_fragment.wgsl"},
	{ShaderCompositionVertex, shader.ShaderTypeVertex, "composition_vertex.wgsl"},
	{ShaderCompositionFragment, shader.ShaderTypeFragment, "composition_fragment.wgsl"},
	{ShaderDeriveCommands, shader.ShaderTypeCompute, "derive_commands.wgsl"},
	{ShaderSimulate, shader.ShaderTypeCompute, "simulate.wgsl"},
}

// Programs holds the parsed shaders of every pass keyed by shader key.
type Programs map[string]shader.Shader

// LoadPrograms parses every pass shader. An empty dir uses the sources compiled into the binary, otherwise the
// files are read from dir, which allows editing shaders without a rebuild.
//
// Parameters:
//   - dir: a directory holding the .wgsl files, may be empty
//
// Returns:
//   - Programs: the parsed shaders
//   - error: error if a file is missing or fails to pre-process
func LoadPrograms(dir string) (Programs, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embeddedShaders, "shaders")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	programs := make(Programs, len(programFiles))
	for _, pf := range programFiles {
		src, err := fs.ReadFile(fsys, pf.file)
		if err != nil {
			return nil, fmt.Errorf("read shader %s: %w", pf.key, err)
		}
		s, err := shader.NewShaderFromSource(pf.key, pf.shaderType, string(src))
		if err != nil {
			return nil, err
		}
		programs[pf.key] = s
	}
	return programs, nil
}

// Pipelines builds the pipelines of every pass from the programs. The GPU objects are created when the pipelines
// are registered with the renderer.
//
// Returns:
//   - []pipeline.Pipeline: the pipelines in frame order
func (p Programs) Pipelines() []pipeline.Pipeline {
	return []pipeline.Pipeline{
		// Depth of everything not yet dissolved, the emitting band included.
		pipeline.NewPipeline(PipelineDepthPrepass, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(p[ShaderMeshVertex]),
			pipeline.WithFragmentShader(p[ShaderDepthFragment]),
			pipeline.WithTarget(pipeline.RenderTargetDepthOnly),
		),
		pipeline.NewPipeline(PipelineEmission, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(p[ShaderMeshVertex]),
			pipeline.WithFragmentShader(p[ShaderEmissionFragment]),
			pipeline.WithTarget(pipeline.RenderTargetDepthOnly),
			pipeline.WithDepthWriteEnabled(false),
			pipeline.WithDepthCompare(wgpu.CompareFunctionLessEqual),
		),
		pipeline.NewPipeline(PipelineScene, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(p[ShaderMeshVertex]),
			pipeline.WithFragmentShader(p[ShaderSceneFragment]),
			pipeline.WithTarget(pipeline.RenderTargetSceneColor),
			pipeline.WithDepthWriteEnabled(false),
			pipeline.WithDepthCompare(wgpu.CompareFunctionLessEqual),
		),
		pipeline.NewPipeline(PipelineParticles, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(p[ShaderParticleVertex]),
			pipeline.WithFragmentShader(p[ShaderParticleFragment]),
			pipeline.WithTarget(pipeline.RenderTargetParticleColor),
			pipeline.WithTopology(wgpu.PrimitiveTopologyPointList),
			pipeline.WithDepthWriteEnabled(false),
			pipeline.WithBlendMode(pipeline.BlendModeAlpha),
		),
		pipeline.NewPipeline(PipelineComposition, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(p[ShaderCompositionVertex]),
			pipeline.WithFragmentShader(p[ShaderCompositionFragment]),
			pipeline.WithTarget(pipeline.RenderTargetSurface),
			pipeline.WithDepthTestEnabled(false),
			pipeline.WithDepthWriteEnabled(false),
		),
		pipeline.NewPipeline(PipelineDeriveCommand, pipeline.PipelineTypeCompute,
			pipeline.WithComputeShader(p[ShaderDeriveCommands]),
		),
		pipeline.NewPipeline(PipelineSimulate, pipeline.PipelineTypeCompute,
			pipeline.WithComputeShader(p[ShaderSimulate]),
		),
	}
}
