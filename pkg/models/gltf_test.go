package models

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

func TestLoadGLBInvalidPath(t *testing.T) {
	_, err := LoadGLB("/nonexistent/path.glb")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestGLTFLoaderCreation(t *testing.T) {
	loader := NewGLTFLoader()
	if loader == nil {
		t.Error("NewGLTFLoader returned nil")
		return
	}
	if !loader.CalculateNormals {
		t.Error("CalculateNormals should default to true")
	}
	if !loader.SmoothNormals {
		t.Error("SmoothNormals should default to true")
	}
}

// writeTestGLB saves a single coloured, textured-coordinate triangle plus a
// line primitive that the loader must skip.
func writeTestGLB(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})                    // 0..36
	binary.Write(&buf, le, [][2]float32{{0, 0}, {1, 0}, {0, 1}})                             // 36..60
	binary.Write(&buf, le, [][4]uint8{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}}) // 60..72
	binary.Write(&buf, le, []uint16{0, 1, 2, 0})                                             // 72..80, padded
	data := buf.Bytes()

	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0"},
		Buffers: []*gltf.Buffer{{ByteLength: len(data), Data: data}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: 36},
			{Buffer: 0, ByteOffset: 36, ByteLength: 24},
			{Buffer: 0, ByteOffset: 60, ByteLength: 12},
			{Buffer: 0, ByteOffset: 72, ByteLength: 6},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: gltf.Index(0), ComponentType: gltf.ComponentFloat, Count: 3, Type: gltf.AccessorVec3},
			{BufferView: gltf.Index(1), ComponentType: gltf.ComponentFloat, Count: 3, Type: gltf.AccessorVec2},
			{BufferView: gltf.Index(2), ComponentType: gltf.ComponentUbyte, Normalized: true, Count: 3, Type: gltf.AccessorVec4},
			{BufferView: gltf.Index(3), ComponentType: gltf.ComponentUshort, Count: 3, Type: gltf.AccessorScalar},
		},
		Materials: []*gltf.Material{{
			Name:                 "paint",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorFactor: &[4]float64{0.5, 1, 1, 1}},
		}},
		Meshes: []*gltf.Mesh{{
			Name: "tri",
			Primitives: []*gltf.Primitive{
				{
					Attributes: map[string]int{gltf.POSITION: 0, gltf.TEXCOORD_0: 1, gltf.COLOR_0: 2},
					Indices:    gltf.Index(3),
					Material:   gltf.Index(0),
				},
				{
					Attributes: map[string]int{gltf.POSITION: 0},
					Mode:       gltf.PrimitiveLines,
				},
			},
		}},
	}

	path := filepath.Join(t.TempDir(), "tri.glb")
	if err := gltf.SaveBinary(doc, path); err != nil {
		t.Fatalf("SaveBinary() error = %v", err)
	}
	return path
}

func TestGLTFLoad(t *testing.T) {
	mesh, err := Load(writeTestGLB(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if mesh.VertexCount() != 3 || mesh.TriangleCount() != 1 || len(mesh.UVs) != 3 {
		t.Fatalf("Load() = %d vertices, %d triangles, %d uvs, want 3, 1, 3",
			mesh.VertexCount(), mesh.TriangleCount(), len(mesh.UVs))
	}

	f := mesh.Faces[0]
	if f.V != [3]int{0, 1, 2} || f.UV != [3]int{0, 1, 2} || f.Material != 0 {
		t.Errorf("face = %+v, want winding and UV indices 0 1 2 with material 0", f)
	}
	if uv := mesh.UVs[2]; uv.X != 0 || uv.Y != 1 {
		t.Errorf("UV 2 = %v, want (0, 1) unflipped", uv)
	}

	// COLOR_0 is tinted by the material base color.
	wantColors := [][3]float64{{0.5, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i, want := range wantColors {
		c := mesh.Vertices[i].Color
		if math.Abs(c.X-want[0]) > 1e-9 || math.Abs(c.Y-want[1]) > 1e-9 || math.Abs(c.Z-want[2]) > 1e-9 {
			t.Errorf("vertex %d color = %v, want %v", i, c, want)
		}
	}

	// Normals are computed for a CCW triangle in the XY plane.
	if n := mesh.Vertices[0].Normal; math.Abs(n.Z-1) > 1e-9 {
		t.Errorf("normal = %v, want +Z", n)
	}
	if mesh.BoundsMax.X != 1 || mesh.BoundsMax.Y != 1 {
		t.Errorf("bounds max = %v, want (1, 1, 0)", mesh.BoundsMax)
	}
}

// Quantized attributes in an interleaved buffer view are denormalized.
func TestGLTFLoadQuantized(t *testing.T) {
	doc := gltf.NewDocument()
	attrs, err := modeler.WritePrimitiveAttributes(doc,
		modeler.PrimitiveAttribute{Name: gltf.POSITION, Data: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}},
		modeler.PrimitiveAttribute{Name: gltf.TEXCOORD_0, Data: [][2]uint8{{0, 0}, {255, 0}, {0, 51}}},
		modeler.PrimitiveAttribute{Name: gltf.COLOR_0, Data: [][4]uint16{{65535, 0, 0, 65535}, {0, 65535, 0, 65535}, {0, 0, 32768, 65535}}},
	)
	if err != nil {
		t.Fatalf("WritePrimitiveAttributes() error = %v", err)
	}
	if doc.BufferViews[0].ByteStride == 0 {
		t.Fatal("attributes were not interleaved")
	}
	indices := modeler.WriteIndices(doc, []uint16{0, 1, 2})
	doc.Meshes = []*gltf.Mesh{{
		Name:       "quantized",
		Primitives: []*gltf.Primitive{{Attributes: attrs, Indices: gltf.Index(indices)}},
	}}
	path := filepath.Join(t.TempDir(), "quantized.glb")
	if err := gltf.SaveBinary(doc, path); err != nil {
		t.Fatalf("SaveBinary() error = %v", err)
	}

	mesh, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if mesh.VertexCount() != 3 || mesh.TriangleCount() != 1 {
		t.Fatalf("Load() = %d vertices, %d triangles, want 3, 1", mesh.VertexCount(), mesh.TriangleCount())
	}
	if p := mesh.Vertices[1].Position; p.X != 1 || p.Y != 0 {
		t.Errorf("position 1 = %v, want (1, 0, 0)", p)
	}

	wantUV := [][2]float64{{0, 0}, {1, 0}, {0, 0.2}}
	for i, want := range wantUV {
		uv := mesh.UVs[i]
		if math.Abs(uv.X-want[0]) > 1e-6 || math.Abs(uv.Y-want[1]) > 1e-6 {
			t.Errorf("UV %d = %v, want %v", i, uv, want)
		}
	}
	if c := mesh.Vertices[2].Color; math.Abs(c.Z-32768.0/65535) > 1e-6 || c.X != 0 {
		t.Errorf("vertex 2 color = %v, want (0, 0, %v)", c, 32768.0/65535)
	}
}

func TestGLTFLoadBadIndices(t *testing.T) {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	indices := modeler.WriteIndices(doc, []uint16{0, 1, 5})
	doc.Meshes = []*gltf.Mesh{{
		Name:       "broken",
		Primitives: []*gltf.Primitive{{Attributes: gltf.PrimitiveAttributes{gltf.POSITION: pos}, Indices: gltf.Index(indices)}},
	}}
	path := filepath.Join(t.TempDir(), "broken.glb")
	if err := gltf.SaveBinary(doc, path); err != nil {
		t.Fatalf("SaveBinary() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want index out of range")
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("model.fbx"); err == nil {
		t.Error("Load(.fbx) error = nil, want unsupported format")
	}
}
