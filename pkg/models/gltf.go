package models

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/render"
)

// GLTFLoader loads GLTF/GLB files into Mesh format.
type GLTFLoader struct {
	// Options
	CalculateNormals bool
	SmoothNormals    bool
}

// NewGLTFLoader creates a new GLTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		CalculateNormals: true,
		SmoothNormals:    true,
	}
}

// LoadGLB loads a binary GLTF (.glb) file.
func LoadGLB(path string) (*Mesh, error) {
	loader := NewGLTFLoader()
	return loader.Load(path)
}

// Load loads a GLTF or GLB file and returns a Mesh.
func (l *GLTFLoader) Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	mesh := NewMesh(filepath.Base(path))
	mesh.Materials = readMaterials(doc, filepath.Dir(path))

	for _, m := range doc.Meshes {
		if err := l.processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.Len() > 0.001 {
			hasNormals = true
			break
		}
	}

	if l.CalculateNormals && !hasNormals {
		if l.SmoothNormals {
			mesh.CalculateSmoothNormals()
		} else {
			mesh.CalculateNormals()
		}
	}

	mesh.CalculateBounds()

	render.Logger().Debug("loaded gltf",
		"path", path,
		"vertices", mesh.VertexCount(),
		"uvs", len(mesh.UVs),
		"triangles", mesh.TriangleCount(),
		"materials", mesh.MaterialCount())

	return mesh, nil
}

// processMesh extracts geometry from a GLTF mesh.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for pi, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			render.Logger().Warn("skipping non-triangle primitive", "mesh", m.Name, "primitive", pi, "mode", prim.Mode)
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			render.Logger().Warn("skipping primitive without positions", "mesh", m.Name, "primitive", pi)
			continue
		}

		positions, err := readVec3(doc, posIdx, modeler.ReadPosition)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		var normals [][3]float64
		if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
			if normals, err = readVec3(doc, idx, modeler.ReadNormal); err != nil {
				return fmt.Errorf("read normals: %w", err)
			}
		}

		var uvs [][2]float64
		if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
			if uvs, err = readUVs(doc, idx); err != nil {
				return fmt.Errorf("read uvs: %w", err)
			}
		}

		var colors [][3]float64
		if idx, ok := prim.Attributes[gltf.COLOR_0]; ok {
			if colors, err = readColors(doc, idx); err != nil {
				return fmt.Errorf("read colors: %w", err)
			}
		}

		material := -1
		tint := White
		if prim.Material != nil && *prim.Material < len(mesh.Materials) {
			material = *prim.Material
			c := mesh.Materials[material].BaseColor
			tint = math3d.V3(c[0], c[1], c[2])
		}

		baseVertex := len(mesh.Vertices)
		baseUV := len(mesh.UVs)

		for i, p := range positions {
			v := MeshVertex{
				Position: math3d.V3(p[0], p[1], p[2]),
				Color:    tint,
			}
			if i < len(normals) {
				v.Normal = math3d.V3(normals[i][0], normals[i][1], normals[i][2])
			}
			if i < len(colors) {
				v.Color = tint.Mul(math3d.V3(colors[i][0], colors[i][1], colors[i][2]))
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}
		// TEXCOORD_0 already has its origin at the top-left of the image.
		for _, uv := range uvs {
			mesh.UVs = append(mesh.UVs, math3d.V2(uv[0], uv[1]))
		}

		var indices []int
		if prim.Indices != nil {
			if indices, err = readIndices(doc, *prim.Indices); err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			f := Face{Material: material}
			for j := range 3 {
				idx := indices[i+j]
				if idx >= len(positions) {
					return fmt.Errorf("index %d out of range for %d vertices", idx, len(positions))
				}
				f.V[j] = baseVertex + idx
				if len(uvs) > 0 {
					f.UV[j] = baseUV + idx
				}
			}
			mesh.Faces = append(mesh.Faces, f)
		}
	}

	return nil
}

// readMaterials converts the document materials, decoding base color
// textures. A texture that fails to decode is logged and left out.
func readMaterials(doc *gltf.Document, dir string) []Material {
	mats := make([]Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		mat := Material{Name: gm.Name, BaseColor: [4]float64{1, 1, 1, 1}}
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				mat.BaseColor = *pbr.BaseColorFactor
			}
			if pbr.BaseColorTexture != nil {
				img, err := decodeTexture(doc, dir, pbr.BaseColorTexture.Index)
				if err != nil {
					render.Logger().Warn("skipping base color texture", "material", gm.Name, "err", err)
				} else {
					mat.BaseMap = img
					mat.HasTexture = true
				}
			}
		}
		mats[i] = mat
	}
	return mats
}

// decodeTexture decodes the image behind a texture, embedded or external.
func decodeTexture(doc *gltf.Document, dir string, texIdx int) (image.Image, error) {
	if texIdx < 0 || texIdx >= len(doc.Textures) || doc.Textures[texIdx].Source == nil {
		return nil, fmt.Errorf("texture %d has no image", texIdx)
	}
	img := doc.Images[*doc.Textures[texIdx].Source]

	var data []byte
	switch {
	case img.BufferView != nil:
		if *img.BufferView >= len(doc.BufferViews) {
			return nil, fmt.Errorf("image buffer view %d out of range", *img.BufferView)
		}
		var err error
		if data, err = modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView]); err != nil {
			return nil, fmt.Errorf("read image buffer: %w", err)
		}
	case img.URI != "":
		var err error
		if data, err = os.ReadFile(filepath.Join(dir, img.URI)); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	default:
		return nil, fmt.Errorf("image has neither buffer view nor uri")
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return decoded, nil
}

// readVec3 reads a float VEC3 accessor such as POSITION or NORMAL.
func readVec3(doc *gltf.Document, accessorIdx int, read func(*gltf.Document, *gltf.Accessor, [][3]float32) ([][3]float32, error)) ([][3]float64, error) {
	acr, err := accessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	data, err := read(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	out := make([][3]float64, len(data))
	for i, v := range data {
		out[i] = [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
	}
	return out, nil
}

// readUVs reads TEXCOORD_0. Normalized integer coordinates map to [0, 1].
func readUVs(doc *gltf.Document, accessorIdx int) ([][2]float64, error) {
	acr, err := accessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	data, err := modeler.ReadTextureCoord(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	out := make([][2]float64, len(data))
	for i, v := range data {
		out[i] = [2]float64{float64(v[0]), float64(v[1])}
	}
	return out, nil
}

// readColors reads COLOR_0 as linear RGB. Alpha is dropped. Float colors
// are taken as is; modeler.ReadColor would re-encode them as sRGB.
func readColors(doc *gltf.Document, accessorIdx int) ([][3]float64, error) {
	acr, err := accessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	raw, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, err
	}

	ub := func(v uint8) float64 { return float64(gltf.DenormalizeUbyte(v)) }
	us := func(v uint16) float64 { return float64(gltf.DenormalizeUshort(v)) }
	var out [][3]float64
	switch data := raw.(type) {
	case [][3]float32:
		for _, v := range data {
			out = append(out, [3]float64{float64(v[0]), float64(v[1]), float64(v[2])})
		}
	case [][4]float32:
		for _, v := range data {
			out = append(out, [3]float64{float64(v[0]), float64(v[1]), float64(v[2])})
		}
	case [][3]uint8:
		for _, v := range data {
			out = append(out, [3]float64{ub(v[0]), ub(v[1]), ub(v[2])})
		}
	case [][4]uint8:
		for _, v := range data {
			out = append(out, [3]float64{ub(v[0]), ub(v[1]), ub(v[2])})
		}
	case [][3]uint16:
		for _, v := range data {
			out = append(out, [3]float64{us(v[0]), us(v[1]), us(v[2])})
		}
	case [][4]uint16:
		for _, v := range data {
			out = append(out, [3]float64{us(v[0]), us(v[1]), us(v[2])})
		}
	default:
		return nil, fmt.Errorf("unsupported color accessor: %v / %v", acr.Type, acr.ComponentType)
	}
	return out, nil
}

// readIndices reads index data from a GLTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	acr, err := accessor(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	data, err := modeler.ReadIndices(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	result := make([]int, len(data))
	for i, v := range data {
		result[i] = int(v)
	}
	return result, nil
}

func accessor(doc *gltf.Document, idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", idx)
	}
	return doc.Accessors[idx], nil
}
