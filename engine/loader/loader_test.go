package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadBuffer packs 4 positions (float32 vec3), 4 uvs (normalized uint16 vec2) and 6 uint16 indices.
func quadBuffer() []byte {
	var buf bytes.Buffer
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	for _, p := range positions {
		_ = binary.Write(&buf, binary.LittleEndian, p)
	}
	uvs := [][2]uint16{{0, 0}, {math.MaxUint16, 0}, {math.MaxUint16, math.MaxUint16}, {0, math.MaxUint16}}
	for _, uv := range uvs {
		_ = binary.Write(&buf, binary.LittleEndian, uv)
	}
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 2, 0, 2, 3})
	return buf.Bytes()
}

// quadDocument describes quadBuffer as one mesh placed by a translated child node.
func quadDocument(bufferURI string, byteLength int) map[string]any {
	buffer := map[string]any{"byteLength": byteLength}
	if bufferURI != "" {
		buffer["uri"] = bufferURI
	}
	return map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes": []any{
			map[string]any{"name": "root", "children": []int{1}, "scale": []float32{2, 2, 2}},
			map[string]any{"name": "quad", "mesh": 0, "translation": []float32{0, 0, 5}},
		},
		"meshes": []any{map[string]any{
			"name": "quad",
			"primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": 0, "TEXCOORD_0": 1},
				"indices":    2,
			}},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": 5123, "normalized": true, "count": 4, "type": "VEC2"},
			map[string]any{"bufferView": 2, "componentType": 5123, "count": 6, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 48},
			map[string]any{"buffer": 0, "byteOffset": 48, "byteLength": 16},
			map[string]any{"buffer": 0, "byteOffset": 64, "byteLength": 12},
		},
		"buffers": []any{buffer},
	}
}

func quadGLTF(t *testing.T) []byte {
	t.Helper()
	bin := quadBuffer()
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(bin)
	data, err := json.Marshal(quadDocument(uri, len(bin)))
	require.NoError(t, err)
	return data
}

func quadGLB(t *testing.T) []byte {
	t.Helper()
	bin := quadBuffer()
	jsonData, err := json.Marshal(quadDocument("", len(bin)))
	require.NoError(t, err)
	for len(jsonData)%4 != 0 {
		jsonData = append(jsonData, ' ')
	}
	for len(bin)%4 != 0 {
		bin = append(bin, 0)
	}

	var buf bytes.Buffer
	total := 12 + 8 + len(jsonData) + 8 + len(bin)
	_ = binary.Write(&buf, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	_ = binary.Write(&buf, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(jsonData)), ChunkType: gltfGLBChunkJSON})
	buf.Write(jsonData)
	_ = binary.Write(&buf, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	buf.Write(bin)
	return buf.Bytes()
}

func TestLoadReaderAppliesNodeTransforms(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	m, err := l.LoadReader("quad", bytes.NewReader(quadGLTF(t)), false)
	require.NoError(t, err)

	require.Len(t, m.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	// Scale 2 from the parent after the child's translation.
	assert.Equal(t, [3]float32{0, 0, 10}, m.Vertices[0].Position)
	assert.Equal(t, [3]float32{2, 2, 10}, m.Vertices[2].Position)
	assert.InDelta(t, 1, m.Vertices[2].TexCoord[0], 1e-6)
	assert.InDelta(t, 1, m.Vertices[3].TexCoord[1], 1e-6)

	// Counter-clockwise in the xy plane, so the generated normals face +z.
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Normal[2], 1e-6)
	}
	assert.Same(t, m, l.Get("quad"))
}

func TestLoadGLBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.glb")
	require.NoError(t, os.WriteFile(path, quadGLB(t), 0o644))

	l := NewLoader(BackendTypeGLTF, WithFitRadius(1))
	m, err := l.Load(path)
	require.NoError(t, err)
	require.Len(t, m.Vertices, 4)

	var farthest float64
	for _, v := range m.Vertices {
		p := v.Position
		farthest = max(farthest, math.Sqrt(float64(p[0]*p[0]+p[1]*p[1]+p[2]*p[2])))
	}
	assert.InDelta(t, 1, farthest, 1e-5)
	assert.InDelta(t, 0, m.Vertices[0].Position[2], 1e-6)

	again, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Len(t, l.Meshes(), 1)
}

func TestLoadGLTFWithExternalBuffer(t *testing.T) {
	dir := t.TempDir()
	bin := quadBuffer()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.bin"), bin, 0o644))
	data, err := json.Marshal(quadDocument("quad.bin", len(bin)))
	require.NoError(t, err)
	path := filepath.Join(dir, "quad.gltf")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := NewLoader(BackendTypeGLTF).Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Indices, 6)
}

func TestLoadRejectsBadInput(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)

	_, err := l.Load("model.obj")
	assert.ErrorContains(t, err, "unsupported model format")

	_, err = l.LoadReader("v1", strings.NewReader(`{"asset":{"version":"1.0"}}`), false)
	assert.ErrorIs(t, err, errInvalidGLTFVersion)

	_, err = l.LoadReader("empty", strings.NewReader(`{"asset":{"version":"2.0"}}`), false)
	assert.ErrorContains(t, err, "no triangle geometry")

	_, err = l.LoadReader("magic", bytes.NewReader(make([]byte, 16)), true)
	assert.ErrorIs(t, err, errInvalidGLBMagic)

	doc := quadDocument("data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString(quadBuffer()), 76)
	doc["accessors"].([]any)[0].(map[string]any)["count"] = 40
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = l.LoadReader("short", bytes.NewReader(data), false)
	assert.ErrorIs(t, err, errAccessorRange)
}

func TestNodeMatrixRotation(t *testing.T) {
	// 90 degrees about +y maps +x to -z.
	s := float32(math.Sqrt2 / 2)
	m := nodeMatrix(&gltfNode{Rotation: &[4]float32{0, s, 0, s}})
	assert.InDelta(t, 0, m[0], 1e-6)
	assert.InDelta(t, -1, m[2], 1e-6)
}
