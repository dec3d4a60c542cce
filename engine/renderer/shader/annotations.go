// annotations.go defines the @oxy: annotations understood by the WGSL pre-processor. Annotations are single-line
// WGSL comments that inject shared struct definitions, generate bind group declarations for registered structs, and
// tag hand-written texture and sampler bindings with the resource that backs them. The declarations they produce are
// what the particle system uses to wire buffers and views to binding slots.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix marks an annotation inside a WGSL line comment.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct at the annotation site.
	// It is consumed entirely during pre-processing.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include command_arguments
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration of a registered struct type and
	// records the declaration.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 3 storage_read_write jobs array<append_job>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider tags the hand-written binding below it with the resource that provides it. Used for
	// textures and samplers, which have no registered struct.
	//
	// Syntax: //@oxy:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Example: //@oxy:provider 0 4 dissolve noise_texture
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation is one parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = struct type key
	//   - group:    [0] = address space, [1] = var name, [2] = struct type key, optionally wrapped in array<>
	//   - provider: [0] = provider identity, [1] = binding role
	Args []AnnotationArg

	// Line is the 1-based source line of the annotation.
	Line int

	// Group is the @group index for group and provider annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations.
	Binding *int
}

// StructType returns the struct type key of a group annotation with any array<> wrapper removed.
//
// Returns:
//   - AnnotationArg: the struct type key, empty for other annotation types
//   - bool: true if the binding is a runtime-sized array of the struct
func (a Annotation) StructType() (AnnotationArg, bool) {
	if a.Type != AnnotationTypeBindingGroup || len(a.Args) < 3 {
		return "", false
	}
	if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
		return AnnotationArg(strings.TrimSuffix(inner, ">")), true
	}
	return a.Args[2], false
}

// AnnotationArg is a typed annotation argument: a struct type key, an address space, a provider identity or a
// binding role.
type AnnotationArg string

// Struct type arguments. Each maps to a Go GPU type with an embedded WGSL definition.
const (
	// AnnotationArgModelUniform identifies the ModelUniform struct, bound at binding 0 of every mesh pass.
	AnnotationArgModelUniform AnnotationArg = "model_uniform"

	// AnnotationArgView identifies the ViewUniform struct, bound at binding 1 of every mesh pass.
	AnnotationArgView AnnotationArg = "view"

	// AnnotationArgParticleSystem identifies the ParticleSystem simulation uniform.
	AnnotationArgParticleSystem AnnotationArg = "particle_system"

	// AnnotationArgCommandArguments identifies the CommandArguments block with the job counter and both indirect
	// commands.
	AnnotationArgCommandArguments AnnotationArg = "command_arguments"

	// AnnotationArgGlobalParticleData identifies the persistent GlobalParticleData ring state.
	AnnotationArgGlobalParticleData AnnotationArg = "global_particle_data"

	// AnnotationArgAppendJob identifies the AppendJob element of the job queue.
	AnnotationArgAppendJob AnnotationArg = "append_job"

	// AnnotationArgParticle identifies the Particle element of the particle ring.
	AnnotationArgParticle AnnotationArg = "particle"

	// annotationArgVertex identifies the mesh VertexInput struct.
	annotationArgVertex AnnotationArg = "vertex"
)

// Address space arguments of @oxy:group.
const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// Provider identities of @oxy:provider.
const (
	// AnnotationArgDissolve identifies the dissolve inputs: the noise and spawn textures and their sampler.
	AnnotationArgDissolve AnnotationArg = "dissolve"

	// AnnotationArgTargets identifies the offscreen render targets read by later passes.
	AnnotationArgTargets AnnotationArg = "targets"
)

// Binding roles of @oxy:provider.
const (
	AnnotationArgNoiseTexture         AnnotationArg = "noise_texture"
	AnnotationArgSpawnTexture         AnnotationArg = "spawn_texture"
	AnnotationArgColorSampler         AnnotationArg = "color_sampler"
	AnnotationArgDepthTexture         AnnotationArg = "depth_texture"
	AnnotationArgSceneColorTexture    AnnotationArg = "scene_color_texture"
	AnnotationArgParticleColorTexture AnnotationArg = "particle_color_texture"
)

var validStructTypes = []AnnotationArg{
	AnnotationArgModelUniform,
	AnnotationArgView,
	AnnotationArgParticleSystem,
	AnnotationArgCommandArguments,
	AnnotationArgGlobalParticleData,
	AnnotationArgAppendJob,
	AnnotationArgParticle,
	annotationArgVertex,
}

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderRoles lists the binding roles each provider identity accepts.
var validProviderRoles = map[AnnotationArg][]AnnotationArg{
	AnnotationArgDissolve: {AnnotationArgNoiseTexture, AnnotationArgSpawnTexture, AnnotationArgColorSampler},
	AnnotationArgTargets:  {AnnotationArgDepthTexture, AnnotationArgSceneColorTexture, AnnotationArgParticleColorTexture},
}

// parseAnnotation parses one WGSL source line. Lines without the annotation prefix return nil and no error.
//
// Parameters:
//   - line: the raw WGSL source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	_, after, ok := strings.Cut(strings.TrimSpace(line), annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{Type: annotationTypeInclude, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil

	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires group, binding, address space, var name and struct type", lineNum)
		}
		group, binding, err := parseSlot(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		a := &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}
		if st, _ := a.StructType(); !slices.Contains(validStructTypes, st) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", lineNum, args[5])
		}
		if _, isArray := a.StructType(); isArray && AnnotationArg(args[3]) == annotationArgStorageTypeUniform {
			return nil, fmt.Errorf("line %d: runtime-sized array %q cannot live in the uniform address space", lineNum, args[4])
		}
		return a, nil

	case AnnotationTypeProvider:
		if len(args) != 5 {
			return nil, fmt.Errorf("line %d: @oxy provider annotation requires group, binding, provider identity and binding role", lineNum)
		}
		group, binding, err := parseSlot(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		roles, ok := validProviderRoles[AnnotationArg(args[3])]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @oxy provider annotation", lineNum, args[3])
		}
		if !slices.Contains(roles, AnnotationArg(args[4])) {
			return nil, fmt.Errorf("line %d: provider %q has no binding role %q", lineNum, args[3], args[4])
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil

	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseSlot(groupArg, bindingArg string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupArg)
	if err != nil || group < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q", lineNum, groupArg)
	}
	binding, err := strconv.Atoi(bindingArg)
	if err != nil || binding < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q", lineNum, bindingArg)
	}
	return group, binding, nil
}
