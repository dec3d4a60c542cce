package scene

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/particles"
	"github.com/Carmen-Shannon/oxy-particles/metrics"
	"go.uber.org/zap"
)

type SystemBuilderOption func(*systemImpl)

// WithSystemLogger sets the logger of the particle system.
//
// Parameters:
//   - logger: the logger, nil keeps the no-op logger
//
// Returns:
//   - SystemBuilderOption: a function that sets the logger
func WithSystemLogger(logger *zap.Logger) SystemBuilderOption {
	return func(s *systemImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSystemMetrics publishes stage timings and buffer capacities to m.
//
// Parameters:
//   - m: the metrics collectors
//
// Returns:
//   - SystemBuilderOption: a function that sets the metrics
func WithSystemMetrics(m *metrics.Metrics) SystemBuilderOption {
	return func(s *systemImpl) {
		s.metrics = m
	}
}

// WithSystemFramePlan replaces the default frame plan. The plan is validated by NewSystem.
//
// Parameters:
//   - plan: the frame plan
//
// Returns:
//   - SystemBuilderOption: a function that sets the frame plan
func WithSystemFramePlan(plan particles.FramePlan) SystemBuilderOption {
	return func(s *systemImpl) {
		s.plan = plan
	}
}
