// Package loader imports mesh geometry from model files. The dissolve only needs positions, normals and the first
// uv set, so materials, skins and animations in the file are ignored.
package loader

import (
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
	"go.uber.org/zap"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu     sync.RWMutex
	logger *zap.Logger

	meshCache map[string]*mesh.Mesh
	fitRadius float32

	backend loaderBackend
}

// Loader loads and caches meshes. The file format is abstracted behind a backend selected by extension.
type Loader interface {
	// Load imports a model file and caches the result by path. A cached mesh is returned without touching the file.
	//
	// Parameters:
	//   - path: the file path to the model file (.gltf or .glb)
	//
	// Returns:
	//   - *mesh.Mesh: the loaded mesh
	//   - error: error if the format is unsupported or loading fails
	Load(path string) (*mesh.Mesh, error)

	// LoadReader imports a model from a stream and caches it by name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *mesh.Mesh: the loaded mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*mesh.Mesh, error)

	// Get retrieves a cached mesh by name. Returns nil if not found.
	Get(name string) *mesh.Mesh

	// Meshes returns a copy of the mesh cache.
	Meshes() map[string]*mesh.Mesh
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: the configured loader
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		logger:    zap.NewNop(),
		meshCache: make(map[string]*mesh.Mesh),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*mesh.Mesh, error) {
	if m := l.Get(path); m != nil {
		return m, nil
	}
	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}
	m, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return l.store(path, m), nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*mesh.Mesh, error) {
	if l.backend == nil {
		return nil, fmt.Errorf("loader has no backend")
	}
	m, err := l.backend.LoadReader(r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return l.store(name, m), nil
}

func (l *loader) Get(name string) *mesh.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Meshes() map[string]*mesh.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.meshCache)
}

// resolveBackend picks the backend for the file extension of path.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
		if l.backend == nil {
			return nil, fmt.Errorf("no backend for %s", ext)
		}
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported model format %q", ext)
	}
}

func (l *loader) store(name string, m *mesh.Mesh) *mesh.Mesh {
	if l.fitRadius > 0 {
		fitToRadius(m, l.fitRadius)
	}
	l.logger.Info("mesh loaded",
		zap.String("name", name),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("triangles", len(m.Indices)/3))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.meshCache[name] = m
	return m
}

// fitToRadius moves the centre of the bounding box of m to the origin and scales it so the farthest vertex lies at
// radius. Normals are unaffected by a uniform scale.
func fitToRadius(m *mesh.Mesh, radius float32) {
	if len(m.Vertices) == 0 {
		return
	}
	lo, hi := m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for c := range 3 {
			lo[c] = min(lo[c], v.Position[c])
			hi[c] = max(hi[c], v.Position[c])
		}
	}
	center := [3]float32{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}

	var farthest float32
	for i := range m.Vertices {
		p := &m.Vertices[i].Position
		*p = common.Sub3(*p, center)
		farthest = max(farthest, common.Length3(*p))
	}
	if farthest < 1e-9 {
		return
	}
	scale := radius / farthest
	for i := range m.Vertices {
		p := &m.Vertices[i].Position
		p[0], p[1], p[2] = p[0]*scale, p[1]*scale, p[2]*scale
	}
}
