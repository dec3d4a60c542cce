package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
)

// gltfLoaderBackendImpl parses glTF and GLB files and flattens their scene into one mesh.
type gltfLoaderBackendImpl struct{}

var _ loaderBackend = &gltfLoaderBackendImpl{}

func newGLTFLoaderBackend() loaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string) (*mesh.Mesh, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(parser).ExtractScene()
}

func (b *gltfLoaderBackendImpl) LoadReader(r io.Reader, isGLB bool) (*mesh.Mesh, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r, isGLB); err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(parser).ExtractScene()
}
