package shader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testComputeSource = `
//@oxy:group 0 0 storage_read_write cmd command_arguments
//@oxy:group 0 1 storage_read_write global global_particle_data
//@oxy:group 0 2 storage_read jobs array<append_job>
//@oxy:group 0 3 storage_read_write particles array<particle>
//@oxy:group 0 4 storage_uniform system particle_system
//@oxy:provider 0 5 targets depth_texture
@group(0) @binding(5) var depthTexture: texture_depth_2d;

// @compute fn commented_out() {}
@compute @workgroup_size(64)
fn simulate(@builtin(global_invocation_id) id: vec3<u32>) {
    let n = atomicLoad(&cmd.particleCount);
    particles[id.x].pos = vec4<f32>(jobs[id.x].screenPos, 0.0, system.time + f32(n + global.particleIndex));
}
`

const testVertexSource = `
//@oxy:include vertex
//@oxy:group 0 0 storage_uniform model model_uniform
//@oxy:group 0 1 storage_uniform view view

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.position = view.projection * view.modelView * vec4<f32>(in.position, model.modelAlpha);
    out.uv = in.uv;
    return out;
}
`

func TestNewShaderFromSourceCompute(t *testing.T) {
	s, err := NewShaderFromSource("simulate", ShaderTypeCompute, testComputeSource)
	require.NoError(t, err)

	assert.Equal(t, "simulate", s.EntryPoint())
	assert.Equal(t, [3]uint32{64, 1, 1}, s.WorkgroupSize())
	assert.Empty(t, s.VertexLayouts())
	assert.Len(t, s.Declarations(), 6)

	desc := s.BindGroupLayoutDescriptor(0)
	require.Len(t, desc.Entries, 6)
	for i, e := range desc.Entries {
		assert.Equal(t, uint32(i), e.Binding)
		assert.Equal(t, wgpu.ShaderStageCompute, e.Visibility)
	}

	cmd := desc.Entries[0]
	assert.Equal(t, wgpu.BufferBindingTypeStorage, cmd.Buffer.Type)
	assert.Equal(t, uint64(32), cmd.Buffer.MinBindingSize)
	assert.Equal(t, uint64(20), desc.Entries[1].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, desc.Entries[2].Buffer.Type)
	assert.Equal(t, uint64(8), desc.Entries[2].Buffer.MinBindingSize)
	assert.Equal(t, uint64(32), desc.Entries[3].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, desc.Entries[4].Buffer.Type)
	assert.Equal(t, uint64(32), desc.Entries[4].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.TextureSampleTypeDepth, desc.Entries[5].Texture.SampleType)
	assert.Equal(t, wgpu.TextureViewDimension2D, desc.Entries[5].Texture.ViewDimension)

	b, ok := s.Binding(0, 3)
	require.True(t, ok)
	assert.Equal(t, "particles", b.Name)
	assert.Equal(t, "array<Particle>", b.Type)
	assert.True(t, b.Writable())

	b, ok = s.BindingByName("jobs")
	require.True(t, ok)
	assert.False(t, b.Writable())

	_, ok = s.Binding(1, 0)
	assert.False(t, ok)
}

func TestNewShaderFromSourceVertex(t *testing.T) {
	s, err := NewShaderFromSource("mesh_vs", ShaderTypeVertex, testVertexSource)
	require.NoError(t, err)

	assert.Equal(t, "vs_main", s.EntryPoint())
	assert.Equal(t, [3]uint32{}, s.WorkgroupSize())

	layouts := s.VertexLayout(0)
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(32), layouts[0].ArrayStride)
	require.Len(t, layouts[0].Attributes, 3)
	assert.Equal(t, wgpu.VertexFormatFloat32x3, layouts[0].Attributes[0].Format)
	assert.Equal(t, uint64(24), layouts[0].Attributes[2].Offset)
	assert.Empty(t, s.VertexLayout(1))

	desc := s.BindGroupLayoutDescriptor(0)
	require.Len(t, desc.Entries, 2)
	assert.Equal(t, uint64(16), desc.Entries[0].Buffer.MinBindingSize)
	assert.Equal(t, uint64(208), desc.Entries[1].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.ShaderStageVertex, desc.Entries[1].Visibility)
}

func TestNewShaderFromSourceErrors(t *testing.T) {
	t.Run("missing entry point", func(t *testing.T) {
		_, err := NewShaderFromSource("x", ShaderTypeFragment, testComputeSource)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no @fragment entry point")
	})
	t.Run("writable storage in vertex stage", func(t *testing.T) {
		src := "//@oxy:group 0 2 storage_read_write particles array<particle>\n@vertex fn vs() -> @builtin(position) vec4<f32> { return particles[0].pos; }"
		_, err := NewShaderFromSource("x", ShaderTypeVertex, src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "particles")
	})
	t.Run("storage texture", func(t *testing.T) {
		src := "@group(0) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;\n@compute @workgroup_size(8, 8) fn main() {}"
		_, err := NewShaderFromSource("x", ShaderTypeCompute, src)
		assert.Error(t, err)
	})
	t.Run("malformed annotation", func(t *testing.T) {
		_, err := NewShaderFromSource("x", ShaderTypeCompute, "//@oxy:include nothing\n@compute @workgroup_size(1) fn main() {}")
		assert.Error(t, err)
	})
}

func TestNewShaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulate.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(testComputeSource), 0o644))

	s := NewShader("simulate", ShaderTypeCompute, path)
	assert.Equal(t, "simulate", s.Module().Label)
	assert.Contains(t, s.Module().WGSLDescriptor.Code, "struct CommandArguments")

	assert.Panics(t, func() { NewShader("missing", ShaderTypeCompute, filepath.Join(t.TempDir(), "nope.wgsl")) })
	assert.Panics(t, func() { NewShader("empty", ShaderTypeCompute, "") })
}

func TestParseWorkgroupSize(t *testing.T) {
	assert.Equal(t, [3]uint32{8, 8, 1}, parseWorkgroupSize("@compute @workgroup_size(8, 8) fn main() {}"))
	assert.Equal(t, [3]uint32{4, 2, 3}, parseWorkgroupSize("@compute @workgroup_size(4,2,3) fn main() {}"))
	assert.Equal(t, [3]uint32{1, 1, 1}, parseWorkgroupSize("fn main() {}"))
}

func TestStripComments(t *testing.T) {
	src := "a // line\nb /* block /* nested */ still */ c\n"
	assert.Equal(t, "a \nb  c\n", stripComments(src))
}

func TestResolveTypeLayout(t *testing.T) {
	known := map[string]wgslTypeLayout{"Particle": {32, 16}}
	tests := []struct {
		typeName string
		want     wgslTypeLayout
	}{
		{"u32", wgslTypeLayout{4, 4}},
		{"vec3<f32>", wgslTypeLayout{12, 16}},
		{"array<Particle>", wgslTypeLayout{32, 16}},
		{"array<vec3<f32>, 4>", wgslTypeLayout{64, 16}},
		{"array<u32, 3>", wgslTypeLayout{12, 4}},
	}
	for _, tt := range tests {
		got, ok := resolveTypeLayout(tt.typeName, known)
		require.True(t, ok, tt.typeName)
		assert.Equal(t, tt.want, got, tt.typeName)
	}
	_, ok := resolveTypeLayout("Light", known)
	assert.False(t, ok)
}

func TestValidateCompute(t *testing.T) {
	s, err := NewShaderFromSource("simulate", ShaderTypeCompute, testComputeSource)
	require.NoError(t, err)

	if err := Validate(s); err != nil {
		if IsUnsupported(err) {
			t.Skipf("naga limitation: %v", err)
		}
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBrokenSource(t *testing.T) {
	s, err := NewShaderFromSource("broken", ShaderTypeCompute, "@compute @workgroup_size(1) fn main() { let x: u32 = ; }")
	require.NoError(t, err)
	assert.Error(t, Validate(s))
}

func TestIsUnsupported(t *testing.T) {
	assert.False(t, IsUnsupported(nil))
	assert.False(t, IsUnsupported(assert.AnError))
	assert.True(t, IsUnsupported(errors.New("lowering error: runtime-sized arrays not yet implemented")))
}
