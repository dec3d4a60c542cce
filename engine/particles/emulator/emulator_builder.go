package emulator

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

type EmulatorBuilderOption func(*emulatorImpl)

// WithLogger sets the logger frames are reported to at debug level.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - EmulatorBuilderOption: a function that sets the logger
func WithLogger(logger *zap.Logger) EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics publishes frame counters and stage timings to m.
//
// Parameters:
//   - m: the metrics collectors
//
// Returns:
//   - EmulatorBuilderOption: a function that sets the metrics
func WithMetrics(m *metrics.Metrics) EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		e.metrics = m
	}
}

// WithWorkers sets the size of the worker pool that runs fragment rows and simulation workgroups.
//
// Parameters:
//   - n: the number of workers
//
// Returns:
//   - EmulatorBuilderOption: a function that sets the worker count
func WithWorkers(n int) EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		if n > 0 {
			e.numWorkers = n
		}
	}
}

// WithJobCapacity caps the append job queue, which otherwise holds one job per pixel. Zero keeps the default.
//
// Parameters:
//   - n: the maximum number of jobs per frame
//
// Returns:
//   - EmulatorBuilderOption: a function that sets the queue cap
func WithJobCapacity(n uint32) EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		e.jobCapacity = n
	}
}

// WithInstrumentation records every particle store write, see Emulator.SlotWrites.
//
// Returns:
//   - EmulatorBuilderOption: a function that enables write recording
func WithInstrumentation() EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		e.instrument = true
	}
}

// WithFramePlan replaces the default frame plan. Invalid plans make Step fail.
func WithFramePlan(plan particles.FramePlan) EmulatorBuilderOption {
	return func(e *emulatorImpl) {
		e.plan = plan
	}
}
