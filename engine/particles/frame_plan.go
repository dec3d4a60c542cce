package particles

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrStageOrder is returned when a plan skips, repeats or reorders a stage.
	ErrStageOrder = errors.New("frame plan: stage order")

	// ErrMissingBarrier is returned when a required barrier between two stages is absent or misplaced.
	ErrMissingBarrier = errors.New("frame plan: missing barrier")

	// ErrHazard is returned when a stage reads a resource written by an earlier stage without a barrier covering it.
	ErrHazard = errors.New("frame plan: unsynchronised access")
)

// Stage is one step of the per-frame particle pipeline.
type Stage int

const (
	StageClear Stage = iota
	StageDepthPrepass
	StageEmission
	StageCommandDerivation
	StageSimulation
	StageIndirectRender
	StageComposition
)

// Stages is the only valid stage order of a frame.
var Stages = []Stage{
	StageClear,
	StageDepthPrepass,
	StageEmission,
	StageCommandDerivation,
	StageSimulation,
	StageIndirectRender,
	StageComposition,
}

var stageNames = map[Stage]string{
	StageClear:             "clear",
	StageDepthPrepass:      "depth_prepass",
	StageEmission:          "emission",
	StageCommandDerivation: "command_derivation",
	StageSimulation:        "simulation",
	StageIndirectRender:    "indirect_render",
	StageComposition:       "composition",
}

// String returns the snake case stage name used in logs and metric labels.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Resource identifies a buffer or image touched by the frame.
type Resource int

const (
	ResourceCommandArguments Resource = iota
	ResourceJobQueue
	ResourceGlobalData
	ResourceParticles
	ResourceDepth
	ResourceSceneColor
	ResourceParticleColor
	ResourceSurface
)

var resourceNames = map[Resource]string{
	ResourceCommandArguments: "command_arguments",
	ResourceJobQueue:         "job_queue",
	ResourceGlobalData:       "global_particle_data",
	ResourceParticles:        "particles",
	ResourceDepth:            "depth",
	ResourceSceneColor:       "scene_color",
	ResourceParticleColor:    "particle_color",
	ResourceSurface:          "surface",
}

func (r Resource) String() string {
	if name, ok := resourceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// Access is the kind of use a stage makes of a resource.
type Access int

const (
	// AccessRead is a shader storage or uniform read.
	AccessRead Access = iota
	// AccessWrite is a shader storage write, an atomic or a transfer fill.
	AccessWrite
	// AccessIndirect is a read of indirect command arguments.
	AccessIndirect
	// AccessAttachment is use as a render pass attachment. Attachment writes are made visible by the end of the
	// render pass.
	AccessAttachment
	// AccessSample is a sampled or loaded texture read.
	AccessSample
)

func (a Access) reads() bool {
	return a == AccessRead || a == AccessIndirect || a == AccessSample
}

// ResourceAccess is one resource use of a stage.
type ResourceAccess struct {
	Resource Resource
	Access   Access
}

// Barrier makes the writes of the After stage to Resources visible to the Before stage.
type Barrier struct {
	After     Stage
	Before    Stage
	Resources []Resource
}

// Step is either a stage with its declared accesses or a barrier. Exactly one of the pointers is set.
type Step struct {
	Stage    *Stage
	Accesses []ResourceAccess
	Barrier  *Barrier
}

// FramePlan is the ordered list of stages and barriers recorded into one command buffer per frame.
type FramePlan struct {
	Steps []Step
}

// StageExecutor records or executes the steps of a frame plan.
type StageExecutor interface {
	// ExecuteStage runs one stage.
	//
	// Parameters:
	//   - stage: the stage to run
	//
	// Returns:
	//   - error: error if the stage could not be recorded or executed
	ExecuteStage(stage Stage) error

	// Barrier synchronises the resources of b between two stages.
	//
	// Parameters:
	//   - b: the barrier
	//
	// Returns:
	//   - error: error if the barrier could not be recorded
	Barrier(b Barrier) error
}

var requiredBarriers = [][2]Stage{
	{StageEmission, StageCommandDerivation},
	{StageCommandDerivation, StageSimulation},
	{StageSimulation, StageIndirectRender},
}

func stageStep(s Stage, accesses ...ResourceAccess) Step {
	return Step{Stage: &s, Accesses: accesses}
}

func barrierStep(after, before Stage, resources ...Resource) Step {
	return Step{Barrier: &Barrier{After: after, Before: before, Resources: resources}}
}

// DefaultFramePlan returns the frame pipeline
// Clear → DepthPrepass → Emission → [barrier] → CommandDerivation → [barrier] → Simulation → [barrier] →
// IndirectRender → Composition with the resource accesses of each stage.
//
// Returns:
//   - FramePlan: the plan
func DefaultFramePlan() FramePlan {
	return FramePlan{Steps: []Step{
		stageStep(StageClear,
			ResourceAccess{ResourceCommandArguments, AccessWrite}),
		stageStep(StageDepthPrepass,
			ResourceAccess{ResourceDepth, AccessAttachment}),
		stageStep(StageEmission,
			ResourceAccess{ResourceDepth, AccessAttachment},
			ResourceAccess{ResourceCommandArguments, AccessWrite},
			ResourceAccess{ResourceJobQueue, AccessWrite}),
		barrierStep(StageEmission, StageCommandDerivation,
			ResourceCommandArguments, ResourceJobQueue, ResourceDepth),
		stageStep(StageCommandDerivation,
			ResourceAccess{ResourceCommandArguments, AccessRead},
			ResourceAccess{ResourceCommandArguments, AccessWrite},
			ResourceAccess{ResourceGlobalData, AccessRead},
			ResourceAccess{ResourceGlobalData, AccessWrite},
			ResourceAccess{ResourceJobQueue, AccessRead}),
		barrierStep(StageCommandDerivation, StageSimulation,
			ResourceCommandArguments, ResourceGlobalData),
		stageStep(StageSimulation,
			ResourceAccess{ResourceCommandArguments, AccessIndirect},
			ResourceAccess{ResourceGlobalData, AccessRead},
			ResourceAccess{ResourceJobQueue, AccessRead},
			ResourceAccess{ResourceDepth, AccessSample},
			ResourceAccess{ResourceParticles, AccessWrite}),
		barrierStep(StageSimulation, StageIndirectRender,
			ResourceParticles, ResourceCommandArguments),
		stageStep(StageIndirectRender,
			ResourceAccess{ResourceCommandArguments, AccessIndirect},
			ResourceAccess{ResourceParticles, AccessRead},
			ResourceAccess{ResourceDepth, AccessAttachment},
			ResourceAccess{ResourceSceneColor, AccessAttachment},
			ResourceAccess{ResourceParticleColor, AccessAttachment}),
		stageStep(StageComposition,
			ResourceAccess{ResourceSceneColor, AccessSample},
			ResourceAccess{ResourceParticleColor, AccessSample},
			ResourceAccess{ResourceSurface, AccessAttachment}),
	}}
}

// StageOrder returns the stages of the plan in order.
func (p FramePlan) StageOrder() []Stage {
	out := make([]Stage, 0, len(Stages))
	for _, step := range p.Steps {
		if step.Stage != nil {
			out = append(out, *step.Stage)
		}
	}
	return out
}

// Validate checks that the plan runs every stage once in order, places every required barrier directly between
// its two stages and never reads a resource written by an earlier stage without a barrier covering it in between.
//
// Returns:
//   - error: an error wrapping ErrStageOrder, ErrMissingBarrier or ErrHazard
func (p FramePlan) Validate() error {
	if order := p.StageOrder(); !slices.Equal(order, Stages) {
		return fmt.Errorf("%w: got %v, want %v", ErrStageOrder, order, Stages)
	}

	for i, step := range p.Steps {
		if step.Stage != nil && step.Barrier != nil {
			return fmt.Errorf("%w: step %d is both a stage and a barrier", ErrStageOrder, i)
		}
		if step.Barrier == nil {
			continue
		}
		prev, next, ok := p.neighbours(i)
		if !ok || prev != step.Barrier.After || next != step.Barrier.Before {
			return fmt.Errorf("%w: barrier %s→%s is not between its stages",
				ErrMissingBarrier, step.Barrier.After, step.Barrier.Before)
		}
	}

	for _, pair := range requiredBarriers {
		if !p.hasBarrier(pair[0], pair[1]) {
			return fmt.Errorf("%w: %s→%s", ErrMissingBarrier, pair[0], pair[1])
		}
	}

	return p.checkHazards()
}

// Run validates the plan and drives exec through it.
//
// Parameters:
//   - exec: the executor
//
// Returns:
//   - error: the validation error or the first executor error, annotated with the failing step
func (p FramePlan) Run(exec StageExecutor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, step := range p.Steps {
		if step.Barrier != nil {
			if err := exec.Barrier(*step.Barrier); err != nil {
				return fmt.Errorf("barrier %s→%s: %w", step.Barrier.After, step.Barrier.Before, err)
			}
			continue
		}
		if err := exec.ExecuteStage(*step.Stage); err != nil {
			return fmt.Errorf("stage %s: %w", *step.Stage, err)
		}
	}
	return nil
}

// neighbours returns the stages directly before and after step i.
func (p FramePlan) neighbours(i int) (Stage, Stage, bool) {
	var prev, next *Stage
	for j := i - 1; j >= 0 && prev == nil; j-- {
		prev = p.Steps[j].Stage
	}
	for j := i + 1; j < len(p.Steps) && next == nil; j++ {
		next = p.Steps[j].Stage
	}
	if prev == nil || next == nil {
		return 0, 0, false
	}
	return *prev, *next, true
}

func (p FramePlan) hasBarrier(after, before Stage) bool {
	for _, step := range p.Steps {
		if step.Barrier != nil && step.Barrier.After == after && step.Barrier.Before == before {
			return true
		}
	}
	return false
}

func (p FramePlan) checkHazards() error {
	// pending holds resources written since the last barrier that covered them.
	pending := map[Resource]Stage{}
	for _, step := range p.Steps {
		if step.Barrier != nil {
			for _, r := range step.Barrier.Resources {
				delete(pending, r)
			}
			continue
		}
		stage := *step.Stage
		for _, a := range step.Accesses {
			if !a.Access.reads() {
				continue
			}
			if writer, ok := pending[a.Resource]; ok && writer != stage {
				return fmt.Errorf("%w: %s reads %s written by %s", ErrHazard, stage, a.Resource, writer)
			}
		}
		for _, a := range step.Accesses {
			if a.Access == AccessWrite {
				pending[a.Resource] = stage
			}
		}
	}
	return nil
}
