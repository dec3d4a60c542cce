package shader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessIncludesStructOnce(t *testing.T) {
	src := strings.Join([]string{
		"//@oxy:include command_arguments",
		"//@oxy:include command_arguments",
		"//@oxy:group 0 0 storage_read_write cmd command_arguments",
	}, "\n")

	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "struct CommandArguments"))
	assert.Contains(t, out, "@group(0) @binding(0) var<storage, read_write> cmd: CommandArguments;")
}

func TestProcessGroupAutoIncludes(t *testing.T) {
	pp := NewPreProcessor()
	out, err := pp.Process("//@oxy:group 0 5 storage_read_write particles array<particle>\n//@oxy:provider 0 6 targets depth_texture\n@group(0) @binding(6) var depthTexture: texture_depth_2d;")
	require.NoError(t, err)

	assert.Contains(t, out, "struct Particle")
	assert.Contains(t, out, "var<storage, read_write> particles: array<Particle>;")
	assert.Contains(t, out, "var depthTexture: texture_depth_2d;")

	decls := pp.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, AnnotationTypeBindingGroup, decls[0].Type)
	assert.Equal(t, AnnotationTypeProvider, decls[1].Type)
	assert.Equal(t, AnnotationArgDepthTexture, decls[1].Args[1])
}

func TestProcessDuplicateSlot(t *testing.T) {
	src := "//@oxy:group 0 1 storage_uniform model model_uniform\n//@oxy:provider 0 1 dissolve color_sampler"
	_, err := NewPreProcessor().Process(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared on line 1")
}

func TestProcessResetsDeclarations(t *testing.T) {
	pp := NewPreProcessor()
	_, err := pp.Process("//@oxy:group 0 0 storage_uniform model model_uniform")
	require.NoError(t, err)
	_, err = pp.Process("fn main() {}")
	require.NoError(t, err)
	assert.Empty(t, pp.Declarations())
}

func TestStructTypeName(t *testing.T) {
	assert.Equal(t, "GlobalParticleData", StructTypeName(AnnotationArgGlobalParticleData))
	assert.Equal(t, "ViewUniform", StructTypeName(AnnotationArgView))
	assert.Empty(t, StructTypeName("light"))
}
