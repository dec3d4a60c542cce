package shader

import (
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// Binding describes one @group/@binding resource declaration of a shader.
type Binding struct {
	Group int
	Index int
	Name  string
	// AddressSpace is the var<> qualifier, e.g. "uniform" or "storage, read_write". Empty for textures and samplers.
	AddressSpace string
	Type         string
}

// Writable reports whether the shader may write the bound buffer.
func (b Binding) Writable() bool {
	return strings.Contains(b.AddressSpace, "read_write")
}

// vertexFormatInfo holds the wgpu vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout holds the byte size and alignment of a WGSL type, used for MinBindingSize.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

type parsedStruct struct {
	name   string
	fields []parsedField
}
