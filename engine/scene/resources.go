package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// resourceSet maps the @oxy declarations of the pass shaders to the GPU objects that back them. Buffers are keyed
// by struct type, views and samplers by binding role.
type resourceSet struct {
	buffers  map[shader.AnnotationArg]*wgpu.Buffer
	views    map[shader.AnnotationArg]*wgpu.TextureView
	samplers map[shader.AnnotationArg]*wgpu.Sampler
}

func newResourceSet() *resourceSet {
	return &resourceSet{
		buffers:  make(map[shader.AnnotationArg]*wgpu.Buffer),
		views:    make(map[shader.AnnotationArg]*wgpu.TextureView),
		samplers: make(map[shader.AnnotationArg]*wgpu.Sampler),
	}
}

// bind shares the resource a declaration names with the provider. Every resource is owned by the System, so the
// provider never releases it.
//
// Parameters:
//   - provider: the pass provider
//   - decl: a group or provider annotation
//
// Returns:
//   - error: error if nothing backs the declaration
func (rs *resourceSet) bind(provider bind_group_provider.BindGroupProvider, decl shader.Annotation) error {
	if decl.Group == nil || decl.Binding == nil {
		return nil
	}
	binding := *decl.Binding

	switch decl.Type {
	case shader.AnnotationTypeBindingGroup:
		structType, _ := decl.StructType()
		buf, ok := rs.buffers[structType]
		if !ok || buf == nil {
			return fmt.Errorf("%s: no buffer for %s at binding %d", provider.Label(), structType, binding)
		}
		provider.ShareBuffer(binding, buf)
	case shader.AnnotationTypeProvider:
		role := decl.Args[1]
		if view, ok := rs.views[role]; ok && view != nil {
			provider.ShareTextureView(binding, view)
			return nil
		}
		if sampler, ok := rs.samplers[role]; ok && sampler != nil {
			provider.ShareSampler(binding, sampler)
			return nil
		}
		return fmt.Errorf("%s: no %s resource for %s at binding %d", provider.Label(), decl.Args[0], role, binding)
	}
	return nil
}

// wire creates the provider of one pass and binds every group 0 declaration of its shaders.
//
// Parameters:
//   - p: the pass pipeline
//
// Returns:
//   - bind_group_provider.BindGroupProvider: the provider, its bind group not yet created
//   - error: error if a declaration has no resource or a layout entry stays unbound
func (rs *resourceSet) wire(p pipeline.Pipeline) (bind_group_provider.BindGroupProvider, error) {
	provider := bind_group_provider.NewBindGroupProvider(p.PipelineKey())
	for _, s := range p.Shaders() {
		for _, decl := range s.Declarations() {
			if decl.Group == nil || *decl.Group != 0 {
				continue
			}
			if err := rs.bind(provider, decl); err != nil {
				provider.Release()
				return nil, err
			}
		}
	}
	if unbound := provider.Unbound(p.BindGroupLayoutDescriptors()[0]); len(unbound) > 0 {
		provider.Release()
		return nil, fmt.Errorf("%s: bindings %v have no @oxy declaration", p.PipelineKey(), unbound)
	}
	return provider, nil
}
