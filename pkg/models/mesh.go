// Package models provides triangle meshes and the loaders that read them
// from glTF, GLB and Wavefront OBJ files.
package models

import (
	"image"

	"github.com/taigrr/diffrast/pkg/math3d"
)

// Mesh is an indexed triangle mesh. Geometry and texture coordinates have
// separate index topologies: Face.V indexes Vertices and Face.UV indexes
// UVs, so a vertex on a texture seam is stored once with several UVs.
type Mesh struct {
	Name      string
	Vertices  []MeshVertex
	UVs       []math3d.Vec2 // normalized, origin at the top-left of the image
	Faces     []Face
	Materials []Material

	// Bounding box (calculated on load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// MeshVertex holds the per-vertex attributes.
type MeshVertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	Color    math3d.Vec3 // linear RGB in 0-1 range
}

// Face is a triangle. Its winding is counter-clockwise when seen from the
// front.
type Face struct {
	V        [3]int // Indices into Mesh.Vertices
	UV       [3]int // Indices into Mesh.UVs, zero when the mesh has none
	Material int    // Index into Mesh.Materials (-1 for no material)
}

// Material is the subset of a glTF PBR material the renderer uses.
type Material struct {
	Name       string
	BaseColor  [4]float64  // RGBA in 0-1 range
	BaseMap    image.Image // Optional base color texture
	HasTexture bool
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: make([]MeshVertex, 0),
		UVs:      make([]math3d.Vec2, 0),
		Faces:    make([]Face, 0),
	}
}

// White is the default vertex color.
var White = math3d.V3(1, 1, 1)

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.BoundsMax.Sub(m.BoundsMin)
}

// Radius returns half the diagonal of the bounding box.
func (m *Mesh) Radius() float64 {
	return m.Size().Len() / 2
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// HasUVs reports whether the mesh carries texture coordinates.
func (m *Mesh) HasUVs() bool {
	return len(m.UVs) > 0
}

func (m *Mesh) faceNormal(f Face) math3d.Vec3 {
	v0 := m.Vertices[f.V[0]].Position
	v1 := m.Vertices[f.V[1]].Position
	v2 := m.Vertices[f.V[2]].Position
	return v1.Sub(v0).Cross(v2.Sub(v0))
}

// CalculateNormals assigns each face normal to the face's vertices. With
// shared vertices the last face written wins.
func (m *Mesh) CalculateNormals() {
	for _, f := range m.Faces {
		normal := m.faceNormal(f).Normalize()
		for _, v := range f.V {
			m.Vertices[v].Normal = normal
		}
	}
}

// CalculateSmoothNormals computes area-weighted averaged normals.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Zero3()
	}

	for _, f := range m.Faces {
		normal := m.faceNormal(f) // unnormalized, so larger faces weigh more
		for _, v := range f.V {
			m.Vertices[v].Normal = m.Vertices[v].Normal.Add(normal)
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// Transform applies a transformation matrix to all vertices.
func (m *Mesh) Transform(mat math3d.Mat4) {
	for i := range m.Vertices {
		m.Vertices[i].Position = mat.MulVec3(m.Vertices[i].Position)
		// Rotation part only; non-uniform scales skew the normals.
		m.Vertices[i].Normal = mat.MulVec3Dir(m.Vertices[i].Normal).Normalize()
	}
	m.CalculateBounds()
}

// Normalize centers the mesh on the origin and scales it to fit a sphere of
// the given radius.
func (m *Mesh) Normalize(radius float64) {
	m.CalculateBounds()
	r := m.Radius()
	if r == 0 {
		return
	}
	m.Transform(math3d.ScaleUniform(radius / r).Mul(math3d.Translate(m.Center().Negate())))
}

// Positions returns a copy of the vertex positions.
func (m *Mesh) Positions() []math3d.Vec3 {
	p := make([]math3d.Vec3, len(m.Vertices))
	for i, v := range m.Vertices {
		p[i] = v.Position
	}
	return p
}

// WeldedIndices maps every vertex to the lowest-numbered vertex sharing its
// position. Loaders split vertices along normal and UV seams; welding
// recovers the connectivity of the surface.
func (m *Mesh) WeldedIndices() []int {
	first := make(map[math3d.Vec3]int, len(m.Vertices))
	ids := make([]int, len(m.Vertices))
	for i, v := range m.Vertices {
		if j, ok := first[v.Position]; ok {
			ids[i] = j
			continue
		}
		first[v.Position] = i
		ids[i] = i
	}
	return ids
}

// Clone creates a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	clone := &Mesh{
		Name:      m.Name,
		Vertices:  make([]MeshVertex, len(m.Vertices)),
		UVs:       make([]math3d.Vec2, len(m.UVs)),
		Faces:     make([]Face, len(m.Faces)),
		Materials: make([]Material, len(m.Materials)),
		BoundsMin: m.BoundsMin,
		BoundsMax: m.BoundsMax,
	}
	copy(clone.Vertices, m.Vertices)
	copy(clone.UVs, m.UVs)
	copy(clone.Faces, m.Faces)
	copy(clone.Materials, m.Materials)
	return clone
}

// GetMaterial returns the material at index i.
// Returns nil if index is out of bounds or -1.
func (m *Mesh) GetMaterial(i int) *Material {
	if i < 0 || i >= len(m.Materials) {
		return nil
	}
	return &m.Materials[i]
}

// MaterialCount returns the number of materials.
func (m *Mesh) MaterialCount() int {
	return len(m.Materials)
}

// BaseMap returns the first base color texture among the materials, or nil.
func (m *Mesh) BaseMap() image.Image {
	for _, mat := range m.Materials {
		if mat.HasTexture && mat.BaseMap != nil {
			return mat.BaseMap
		}
	}
	return nil
}
