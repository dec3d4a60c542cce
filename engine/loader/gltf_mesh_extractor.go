package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/mesh"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor flattens the triangle geometry of a parsed document into one mesh.
type gltfMeshExtractor interface {
	// ExtractScene merges every triangle primitive reachable from the default scene, with node transforms applied.
	// Documents without scenes fall back to the root nodes, and documents without nodes to the raw meshes.
	//
	// Returns:
	//   - *mesh.Mesh: the merged geometry
	//   - error: error if an accessor cannot be read or no triangles were found
	ExtractScene() (*mesh.Mesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractScene() (*mesh.Mesh, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}

	out := &mesh.Mesh{}
	var identity [16]float32
	common.Identity(identity[:])

	if len(doc.Nodes) == 0 {
		for i := range doc.Meshes {
			if err := e.appendMesh(out, i, identity); err != nil {
				return nil, err
			}
		}
	} else {
		visited := make([]bool, len(doc.Nodes))
		for _, root := range rootNodes(doc) {
			if err := e.appendNode(out, root, identity, visited); err != nil {
				return nil, err
			}
		}
	}

	if len(out.Indices) == 0 {
		return nil, fmt.Errorf("document contains no triangle geometry")
	}
	return out, nil
}

// rootNodes returns the nodes of the default scene, or every node that is nobody's child.
func rootNodes(doc *gltfDocument) []int {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}
	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

func (e *gltfMeshExtractorImpl) appendNode(out *mesh.Mesh, index int, parent [16]float32, visited []bool) error {
	doc := e.parser.Document()
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if visited[index] {
		return fmt.Errorf("node %d is reachable twice, the hierarchy must be a tree", index)
	}
	visited[index] = true

	node := &doc.Nodes[index]
	local := nodeMatrix(node)
	var world [16]float32
	common.Mul4(world[:], parent[:], local[:])

	if node.Mesh != nil {
		if err := e.appendMesh(out, *node.Mesh, world); err != nil {
			return fmt.Errorf("node %q: %w", node.Name, err)
		}
	}
	for _, c := range node.Children {
		if err := e.appendNode(out, c, world, visited); err != nil {
			return err
		}
	}
	return nil
}

func (e *gltfMeshExtractorImpl) appendMesh(out *mesh.Mesh, meshIndex int, world [16]float32) error {
	doc := e.parser.Document()
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", meshIndex)
	}
	m := &doc.Meshes[meshIndex]
	for i := range m.Primitives {
		prim := &m.Primitives[i]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			continue
		}
		if err := e.appendPrimitive(out, prim, world); err != nil {
			return fmt.Errorf("mesh %q primitive %d: %w", m.Name, i, err)
		}
	}
	return nil
}

// appendPrimitive reads one triangle primitive and appends it to out in world space.
func (e *gltfMeshExtractorImpl) appendPrimitive(out *mesh.Mesh, prim *gltfPrimitive, world [16]float32) error {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("missing POSITION attribute")
	}
	positions, err := e.parser.ReadVec3Accessor(posIdx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = e.parser.ReadVec3Accessor(idx); err != nil {
			return fmt.Errorf("normals: %w", err)
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = e.parser.ReadVec2Accessor(idx); err != nil {
			return fmt.Errorf("texcoords: %w", err)
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = e.parser.ReadIndicesAccessor(*prim.Indices); err != nil {
			return fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return fmt.Errorf("index %d out of range of %d vertices", idx, len(positions))
		}
	}

	normalMatrix := normalMatrixOf(world)
	vertices := make([]mesh.GPUVertex, len(positions))
	for i, p := range positions {
		wp := common.TransformVec4(world[:], [4]float32{p[0], p[1], p[2], 1})
		vertices[i].Position = [3]float32{wp[0], wp[1], wp[2]}
		if i < len(normals) {
			n := common.TransformVec4(normalMatrix[:], [4]float32{normals[i][0], normals[i][1], normals[i][2], 0})
			vertices[i].Normal = common.Normalize3([3]float32{n[0], n[1], n[2]}, [3]float32{0, 1, 0})
		}
		if i < len(uvs) {
			vertices[i].TexCoord = uvs[i]
		}
	}
	if len(normals) < len(positions) {
		generateNormals(vertices, indices)
	}

	base := uint32(len(out.Vertices))
	out.Vertices = append(out.Vertices, vertices...)
	for _, idx := range indices {
		out.Indices = append(out.Indices, base+idx)
	}
	return nil
}

// nodeMatrix returns the local transform of a node: its matrix, or T * R * S with absent parts left at identity.
func nodeMatrix(n *gltfNode) [16]float32 {
	if n.Matrix != nil {
		return *n.Matrix
	}
	t, q, sc := [3]float32{}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}
	if n.Translation != nil {
		t = *n.Translation
	}
	if n.Rotation != nil {
		q = *n.Rotation
	}
	if n.Scale != nil {
		sc = *n.Scale
	}
	var m [16]float32
	common.ComposeTRS(m[:], t, q, sc)
	return m
}

// normalMatrixOf returns the inverse transpose of world, or world itself when it is singular.
func normalMatrixOf(world [16]float32) [16]float32 {
	var inv [16]float32
	if !common.Invert4(inv[:], world[:]) {
		return world
	}
	common.Transpose4(inv[:], inv[:])
	return inv
}

// generateNormals computes smooth vertex normals by accumulating the area weighted face normals of every triangle
// onto its vertices.
//
// Parameters:
//   - vertices: the vertex slice to write normal data into
//   - indices: the triangle index buffer, a multiple of 3
func generateNormals(vertices []mesh.GPUVertex, indices []uint32) {
	accum := make([][3]float32, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0, p1, p2 := vertices[i0].Position, vertices[i1].Position, vertices[i2].Position

		face := common.Cross3(common.Sub3(p1, p0), common.Sub3(p2, p0))
		for _, idx := range [3]uint32{i0, i1, i2} {
			accum[idx][0] += face[0]
			accum[idx][1] += face[1]
			accum[idx][2] += face[2]
		}
	}
	for i := range vertices {
		vertices[i].Normal = common.Normalize3(accum[i], [3]float32{0, 1, 0})
	}
}
