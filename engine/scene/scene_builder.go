package scene

import (
	"math/rand/v2"

	"go.uber.org/zap"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithLogger sets the logger tunable changes are reported to.
//
// Parameters:
//   - logger: the logger, nil keeps the no-op logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) SceneBuilderOption {
	return func(s *scene) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSeed makes the per-frame random scalar reproducible.
//
// Parameters:
//   - seed: the PCG seed
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSeed(seed uint64) SceneBuilderOption {
	return func(s *scene) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithModelMatrix places the mesh in the world.
//
// Parameters:
//   - model: the model matrix (column-major)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithModelMatrix(model [16]float32) SceneBuilderOption {
	return func(s *scene) {
		s.model = model
	}
}
