// Package emulator executes the particle frame plan on the CPU. It mirrors the GPU buffers one to one and runs the
// stage kernels on a worker pool, which makes the pipeline observable for tests and headless runs.
package emulator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

// Fragment is the rasterised mesh coverage of one pixel.
type Fragment struct {
	Depth float32
	Noise float32
	Spawn float32
}

// CoverageFunc reports the mesh fragment covering pixel (x, y), if any.
type CoverageFunc func(x, y uint32) (Fragment, bool)

// Frame is the host input of one emulated frame.
type Frame struct {
	Coverage              CoverageFunc
	InverseViewProjection [16]float32
	Model                 particles.GPUModelUniform
	System                particles.GPUParticleSystem
}

// SlotWrite records one particle store write of the simulation stage.
type SlotWrite struct {
	Frame      uint64
	Invocation uint32
	Slot       uint32
}

// FrameStats summarises one emulated frame.
type FrameStats struct {
	Frame    uint64
	Emitted  uint32
	Dropped  uint32
	Dispatch particles.GPUDispatchIndirectCommand
	Draw     particles.GPUDrawIndirectCommand
	Global   particles.GPUGlobalParticleData
	Barriers int
}

type emulatorImpl struct {
	mu sync.Mutex

	logger  *zap.Logger
	metrics *metrics.Metrics

	pool       worker.DynamicWorkerPool
	numWorkers int
	plan       particles.FramePlan

	width  uint32
	height uint32

	// GPU buffer mirrors
	counter   atomic.Uint32
	dropped   atomic.Uint32
	cmd       particles.GPUCommandArguments
	global    particles.GPUGlobalParticleData
	jobs      []particles.GPUAppendJob
	particles []particles.GPUParticle
	depth     []float32

	frame    Frame
	frameNum uint64
	barriers int

	// jobCapacity caps the job queue below one slot per pixel when non-zero
	jobCapacity uint32

	instrument bool
	writesMu   sync.Mutex
	writes     []SlotWrite
}

// Emulator runs whole frames of the particle pipeline on the CPU.
type Emulator interface {
	// Step runs one frame through the frame plan.
	//
	// Parameters:
	//   - frame: the host input of the frame
	//
	// Returns:
	//   - FrameStats: the counters of the frame
	//   - error: error if the frame plan is invalid or a stage fails
	Step(frame Frame) (FrameStats, error)

	// Resize changes the framebuffer size, which reallocates the depth buffer and the job queue.
	// The ring state and particle store are kept.
	//
	// Parameters:
	//   - width, height: the new framebuffer size in pixels
	Resize(width, height uint32)

	// Global returns a copy of the ring state.
	Global() particles.GPUGlobalParticleData

	// Commands returns a copy of the command argument block.
	Commands() particles.GPUCommandArguments

	// Jobs returns a copy of the valid entries of the append job queue.
	Jobs() []particles.GPUAppendJob

	// Particles returns a copy of the particle store.
	Particles() []particles.GPUParticle

	// SlotWrites returns the recorded simulation writes when instrumentation is enabled.
	SlotWrites() []SlotWrite

	// Close stops the worker pool.
	Close()
}

var _ Emulator = &emulatorImpl{}

// NewEmulator creates an emulator for a framebuffer of width x height pixels and a ring of maxParticles slots.
//
// Parameters:
//   - width, height: the framebuffer size in pixels
//   - maxParticles: the ring capacity
//   - options: functional options
//
// Returns:
//   - Emulator: the emulator
//   - error: error if a size is zero
func NewEmulator(width, height, maxParticles uint32, options ...EmulatorBuilderOption) (Emulator, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("emulator: invalid framebuffer %dx%d", width, height)
	}
	if maxParticles == 0 {
		return nil, fmt.Errorf("emulator: particle capacity must be positive")
	}

	e := &emulatorImpl{
		logger:     zap.NewNop(),
		numWorkers: 4,
		plan:       particles.DefaultFramePlan(),
		global:     particles.NewGlobalParticleData(maxParticles),
		particles:  make([]particles.GPUParticle, maxParticles),
	}
	for _, opt := range options {
		opt(e)
	}
	e.pool = worker.NewDynamicWorkerPool(e.numWorkers, 256, 1*time.Second)
	e.resize(width, height)

	if e.metrics != nil {
		e.metrics.ParticleCapacity.Set(float64(maxParticles))
	}
	return e, nil
}

func (e *emulatorImpl) Step(frame Frame) (FrameStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.frame = frame
	e.frameNum++
	e.barriers = 0
	if err := e.plan.Run(e); err != nil {
		return FrameStats{}, err
	}

	stats := FrameStats{
		Frame:    e.frameNum,
		Emitted:  e.cmd.ParticleCount,
		Dropped:  e.dropped.Load(),
		Dispatch: e.cmd.Dispatch,
		Draw:     e.cmd.Draw,
		Global:   e.global,
		Barriers: e.barriers,
	}
	if e.metrics != nil {
		e.metrics.FramesTotal.Inc()
		e.metrics.EmittedTotal.Add(float64(stats.Emitted))
		e.metrics.DroppedTotal.Add(float64(stats.Dropped))
		e.metrics.RenderCount.Set(float64(stats.Global.RenderCount))
	}
	e.logger.Debug("emulated frame",
		zap.Uint64("frame", stats.Frame),
		zap.Uint32("emitted", stats.Emitted),
		zap.Uint32("render_count", stats.Global.RenderCount),
		zap.Uint32("particle_index", stats.Global.ParticleIndex))
	return stats, nil
}

// ExecuteStage implements particles.StageExecutor.
func (e *emulatorImpl) ExecuteStage(stage particles.Stage) error {
	start := time.Now()
	defer func() { e.metrics.ObserveStage(stage.String(), time.Since(start)) }()

	switch stage {
	case particles.StageClear:
		e.cmd = particles.GPUCommandArguments{}
		e.counter.Store(0)
		e.dropped.Store(0)
	case particles.StageDepthPrepass:
		e.depthPrepass()
	case particles.StageEmission:
		e.emission()
	case particles.StageCommandDerivation:
		e.cmd.ParticleCount = e.counter.Load()
		particles.DeriveCommands(&e.cmd, &e.global, uint32(len(e.jobs)))
	case particles.StageSimulation:
		e.simulation()
	case particles.StageIndirectRender, particles.StageComposition:
		// rasterisation is not emulated; the draw command is already final
	default:
		return fmt.Errorf("unknown stage %s", stage)
	}
	return nil
}

// Barrier implements particles.StageExecutor. Every stage waits for its tasks before returning, so a barrier only
// has to be counted.
func (e *emulatorImpl) Barrier(b particles.Barrier) error {
	e.barriers++
	return nil
}

func (e *emulatorImpl) Resize(width, height uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resize(width, height)
}

func (e *emulatorImpl) resize(width, height uint32) {
	e.width, e.height = width, height
	jobs := width * height
	if e.jobCapacity > 0 {
		jobs = min(jobs, e.jobCapacity)
	}
	e.jobs = make([]particles.GPUAppendJob, jobs)
	e.depth = make([]float32, int(width)*int(height))
	if e.metrics != nil {
		e.metrics.JobCapacity.Set(float64(len(e.jobs)))
	}
}

func (e *emulatorImpl) Global() particles.GPUGlobalParticleData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.global
}

func (e *emulatorImpl) Commands() particles.GPUCommandArguments {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmd
}

func (e *emulatorImpl) Jobs() []particles.GPUAppendJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := min(int(e.counter.Load()), len(e.jobs))
	out := make([]particles.GPUAppendJob, n)
	copy(out, e.jobs[:n])
	return out
}

func (e *emulatorImpl) Particles() []particles.GPUParticle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]particles.GPUParticle, len(e.particles))
	copy(out, e.particles)
	return out
}

func (e *emulatorImpl) SlotWrites() []SlotWrite {
	e.writesMu.Lock()
	defer e.writesMu.Unlock()
	out := make([]SlotWrite, len(e.writes))
	copy(out, e.writes)
	return out
}

func (e *emulatorImpl) Close() {
	e.pool.Stop()
}

// forRows runs fn for every framebuffer row on the worker pool and waits for all of them.
func (e *emulatorImpl) forRows(fn func(y uint32)) {
	var wg sync.WaitGroup
	for y := range e.height {
		wg.Add(1)
		row := y
		e.pool.SubmitTask(worker.Task{
			ID: int(row),
			Do: func() (any, error) {
				defer wg.Done()
				fn(row)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (e *emulatorImpl) depthPrepass() {
	cover := e.frame.Coverage
	e.forRows(func(y uint32) {
		for x := range e.width {
			d := float32(1)
			if cover != nil {
				if f, ok := cover(x, y); ok {
					d = f.Depth
				}
			}
			e.depth[y*e.width+x] = d
		}
	})
}

func (e *emulatorImpl) emission() {
	cover := e.frame.Coverage
	if cover == nil {
		return
	}
	model := e.frame.Model
	e.forRows(func(y uint32) {
		for x := range e.width {
			f, ok := cover(x, y)
			// depth test LessEqual against the prepass
			if !ok || f.Depth > e.depth[y*e.width+x] {
				continue
			}
			if !particles.ShouldEmit(f.Spawn, f.Noise, model.AlphaReference, model.DeltaAlphaEstimation) {
				continue
			}
			if !particles.Emit(&e.counter, e.jobs, [2]float32{float32(x) + 0.5, float32(y) + 0.5}) {
				e.dropped.Add(1)
			}
		}
	})
}

func (e *emulatorImpl) simulation() {
	groups := e.cmd.Dispatch.X
	if groups == 0 {
		return
	}
	in := particles.SimulationInput{
		InverseViewProjection: e.frame.InverseViewProjection,
		Viewport:              [2]float32{float32(e.width), float32(e.height)},
		System:                e.frame.System,
	}
	global := e.global

	var wg sync.WaitGroup
	for g := range groups {
		wg.Add(1)
		group := g
		e.pool.SubmitTask(worker.Task{
			ID: int(group),
			Do: func() (any, error) {
				defer wg.Done()
				for local := range uint32(particles.ComputeWorkgroupSize) {
					i := group*particles.ComputeWorkgroupSize + local
					slot, ok := particles.SimulationSlot(global, i)
					if !ok {
						continue
					}
					job := e.jobs[i]
					e.particles[slot] = particles.SimulateParticle(job, e.sampleDepth(job.ScreenPos), i, in)
					if e.instrument {
						e.recordWrite(SlotWrite{Frame: e.frameNum, Invocation: i, Slot: slot})
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (e *emulatorImpl) sampleDepth(pos [2]float32) float32 {
	x := min(uint32(max(pos[0], 0)), e.width-1)
	y := min(uint32(max(pos[1], 0)), e.height-1)
	return e.depth[y*e.width+x]
}

func (e *emulatorImpl) recordWrite(w SlotWrite) {
	e.writesMu.Lock()
	e.writes = append(e.writes, w)
	e.writesMu.Unlock()
}
