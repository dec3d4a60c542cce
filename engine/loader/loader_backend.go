package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
)

// loaderBackend loads mesh geometry from files or streams of one format.
type loaderBackend interface {
	// Load imports the geometry of the file at path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *mesh.Mesh: the imported geometry
	//   - error: error if loading fails
	Load(path string) (*mesh.Mesh, error)

	// LoadReader imports geometry from a stream.
	//
	// Parameters:
	//   - r: the reader providing the data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *mesh.Mesh: the imported geometry
	//   - error: error if loading fails
	LoadReader(r io.Reader, isGLB bool) (*mesh.Mesh, error)
}
