package scene

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
)

// ErrBindingContract is wrapped by every binding contract violation.
var ErrBindingContract = errors.New("binding contract")

// sharedBindings are the group 0 bindings every mesh, particle and simulation pass starts with.
var sharedBindings = map[int]shader.AnnotationArg{
	0: shader.AnnotationArgModelUniform,
	1: shader.AnnotationArgView,
}

// deriveBindings is the complete group 0 of the command derivation pass.
var deriveBindings = map[int]string{
	0: shader.StructTypeName(shader.AnnotationArgCommandArguments),
	1: shader.StructTypeName(shader.AnnotationArgGlobalParticleData),
	2: "array<" + shader.StructTypeName(shader.AnnotationArgAppendJob) + ">",
}

// pipelineBindings merges the group 0 declarations of all stages of p, keyed by binding index.
func pipelineBindings(p pipeline.Pipeline) (map[int]shader.Binding, error) {
	merged := make(map[int]shader.Binding)
	for _, s := range p.Shaders() {
		for _, b := range s.Bindings() {
			if b.Group != 0 {
				return nil, fmt.Errorf("%w: %s declares %s in group %d", ErrBindingContract, p.PipelineKey(), b.Name, b.Group)
			}
			if prev, ok := merged[b.Index]; ok && prev.Type != b.Type {
				return nil, fmt.Errorf("%w: %s binding %d is %s in one stage and %s in another",
					ErrBindingContract, p.PipelineKey(), b.Index, prev.Type, b.Type)
			}
			merged[b.Index] = b
		}
	}
	return merged, nil
}

// CheckBindingContract verifies the binding layout shared by the passes: every render pass and the simulation pass
// bind the model uniform at binding 0 and the view uniform at binding 1 of group 0, and command derivation binds
// exactly the command arguments, the ring state and the job queue.
//
// Parameters:
//   - pipelines: the pipelines to check
//
// Returns:
//   - error: an error wrapping ErrBindingContract describing the first violation
func CheckBindingContract(pipelines []pipeline.Pipeline) error {
	for _, p := range pipelines {
		bindings, err := pipelineBindings(p)
		if err != nil {
			return err
		}

		if p.PipelineKey() == PipelineDeriveCommand {
			if len(bindings) != len(deriveBindings) {
				return fmt.Errorf("%w: %s binds %v, want %v", ErrBindingContract, p.PipelineKey(),
					slices.Sorted(maps.Keys(bindings)), slices.Sorted(maps.Keys(deriveBindings)))
			}
			for index, want := range deriveBindings {
				if got := bindings[index].Type; got != want {
					return fmt.Errorf("%w: %s binding %d is %q, want %q", ErrBindingContract, p.PipelineKey(), index, got, want)
				}
			}
			continue
		}

		for index, arg := range sharedBindings {
			want := shader.StructTypeName(arg)
			b, ok := bindings[index]
			if !ok {
				return fmt.Errorf("%w: %s does not bind %s at %d", ErrBindingContract, p.PipelineKey(), want, index)
			}
			if b.Type != want || b.AddressSpace != "uniform" {
				return fmt.Errorf("%w: %s binding %d is var<%s> %s, want var<uniform> %s",
					ErrBindingContract, p.PipelineKey(), index, b.AddressSpace, b.Type, want)
			}
		}
	}
	return nil
}
