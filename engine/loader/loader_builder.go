package loader

import (
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
	"go.uber.org/zap"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger sets the logger load results are reported to.
//
// Parameters:
//   - logger: the logger to use, nil keeps the no-op logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *zap.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger.Named("loader")
		}
	}
}

// WithFitRadius recentres every loaded mesh on the origin and scales it to fit a sphere of the given radius, so
// any asset sits in front of the default camera.
//
// Parameters:
//   - radius: the bounding radius, zero keeps the geometry as authored
//
// Returns:
//   - LoaderBuilderOption: a function that applies the fit option to a loader
func WithFitRadius(radius float32) LoaderBuilderOption {
	return func(l *loader) {
		l.fitRadius = max(radius, 0)
	}
}

// WithMesh pre-populates the cache with a mesh.
//
// Parameters:
//   - key: the cache key for the mesh
//   - m: the mesh to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the mesh option to a loader
func WithMesh(key string, m *mesh.Mesh) LoaderBuilderOption {
	return func(l *loader) {
		l.meshCache[key] = m
	}
}
