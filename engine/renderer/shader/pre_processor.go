// pre_processor.go implements the @oxy: WGSL pre-processor. It replaces annotations with injected struct sources
// and generated binding declarations and collects the declarations the particle system wires resources from.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-particles/engine/camera"
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
)

// registryEntry pairs an embedded WGSL struct source with the WGSL type name it declares.
type registryEntry struct {
	// Source is the WGSL struct definition injected by @oxy:include.
	Source string

	// Type is the WGSL type name used in generated declarations.
	Type string
}

// structRegistry maps struct type keys to their WGSL definitions.
var structRegistry = map[AnnotationArg]registryEntry{
	AnnotationArgModelUniform:       {Source: particles.GPUModelUniformSource, Type: "ModelUniform"},
	AnnotationArgView:               {Source: camera.GPUViewUniformSource, Type: "ViewUniform"},
	AnnotationArgParticleSystem:     {Source: particles.GPUParticleSystemSource, Type: "ParticleSystem"},
	AnnotationArgCommandArguments:   {Source: particles.GPUCommandArgumentsSource, Type: "CommandArguments"},
	AnnotationArgGlobalParticleData: {Source: particles.GPUGlobalParticleDataSource, Type: "GlobalParticleData"},
	AnnotationArgAppendJob:          {Source: particles.GPUAppendJobSource, Type: "AppendJob"},
	AnnotationArgParticle:           {Source: particles.GPUParticleSource, Type: "Particle"},
	annotationArgVertex:             {Source: mesh.GPUVertexSource, Type: "VertexInput"},
}

// addressSpaceRegistry maps address space keys to WGSL var<> syntax.
var addressSpaceRegistry = map[AnnotationArg]string{
	annotationArgStorageTypeUniform:   "var<uniform>",
	annotationArgStorageTypeRead:      "var<storage, read>",
	annotationArgStorageTypeReadWrite: "var<storage, read_write>",
}

// StructTypeName returns the WGSL type name registered for a struct type key.
//
// Parameters:
//   - arg: the struct type key
//
// Returns:
//   - string: the WGSL type name, empty if the key is not registered
func StructTypeName(arg AnnotationArg) string {
	return structRegistry[arg].Type
}

type preProcessor struct {
	// declarations accumulates group and provider annotations of the last Process call.
	declarations []Annotation
}

// PreProcessor expands @oxy: annotations in WGSL source and collects the binding declarations.
type PreProcessor interface {
	// Process expands the annotations of source. @oxy:include injects a struct definition once per source,
	// @oxy:group emits a @group/@binding declaration and injects its struct if it was not included yet, and
	// @oxy:provider only records a declaration.
	//
	// Parameters:
	//   - source: WGSL source containing annotations
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - error: error if an annotation is malformed or a slot is declared twice
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations of the last Process call in source order.
	//
	// Returns:
	//   - []Annotation: the declarations
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a pre-processor.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)
	slots := make(map[[2]int]int)

	include := func(arg AnnotationArg) {
		if included[arg] {
			return
		}
		included[arg] = true
		out = append(out, structRegistry[arg].Source)
	}

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		if a.Group != nil {
			slot := [2]int{*a.Group, *a.Binding}
			if prev, dup := slots[slot]; dup {
				return "", fmt.Errorf("line %d: @group(%d) @binding(%d) already declared on line %d", i+1, slot[0], slot[1], prev)
			}
			slots[slot] = i + 1
		}

		switch a.Type {
		case annotationTypeInclude:
			include(a.Args[0])
		case AnnotationTypeBindingGroup:
			structType, isArray := a.StructType()
			include(structType)
			wgslType := structRegistry[structType].Type
			if isArray {
				wgslType = "array<" + wgslType + ">"
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				*a.Group, *a.Binding, addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
