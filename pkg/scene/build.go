// Package scene turns a mesh seen through a camera into the flat scene
// record the renderer consumes, and maps scene gradients back onto the
// mesh.
package scene

import (
	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/models"
	"github.com/taigrr/diffrast/pkg/render"
)

// Light is an ambient term plus one directional light.
type Light struct {
	Direction   math3d.Vec3 // towards the light, world space
	Ambient     float64
	Directional float64
}

// DefaultLight lights the model from the upper front right.
func DefaultLight() Light {
	return Light{
		Direction:   math3d.V3(0.4, 0.8, 1).Normalize(),
		Ambient:     0.3,
		Directional: 0.7,
	}
}

// Shade returns the Lambert intensity for a unit normal.
func (l Light) Shade(n math3d.Vec3) float64 {
	return l.Ambient + l.Directional*max(0, n.Dot(l.Direction.Normalize()))
}

// Options configure Build.
type Options struct {
	Width    int
	Height   int
	Channels int // 1 (grey) or 3 (RGB); zero means 3

	Clockwise       bool
	BackfaceCulling bool

	Light      Light           // zero value means DefaultLight
	Texture    *render.Texture // nil renders vertex colors
	Background []float64       // Channels·Height·Width, nil for black

	// Gradients allocates the scene's gradient twins.
	Gradients bool
}

// Model pairs a mesh with the scene it renders into. Topology, colors,
// shading and texture are fixed by Build; Project refreshes the camera
// dependent arrays.
type Model struct {
	Mesh  *models.Mesh
	Scene *render.Scene

	welded []int
}

// Build creates the scene for a mesh. Vertex colors are multiplied by the
// light; textured triangles get the light through Scene.Shade instead. The
// texture is used only when the mesh has UVs.
func Build(mesh *models.Mesh, opts Options) (*Model, error) {
	if opts.Channels == 0 {
		opts.Channels = 3
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, &render.InvalidSceneError{Field: "size", Reason: "width and height must be positive"}
	}
	if opts.Channels != 1 && opts.Channels != 3 {
		return nil, &render.InvalidSceneError{Field: "nb_colors", Reason: "mesh colors map to 1 or 3 channels"}
	}
	if opts.Light == (Light{}) {
		opts.Light = DefaultLight()
	}

	C := opts.Channels
	s := render.NewScene(opts.Width, opts.Height, C)
	if opts.Background != nil {
		if len(opts.Background) != len(s.Background) {
			return nil, &render.SizeMismatchError{Field: "background", Got: len(opts.Background), Want: len(s.Background)}
		}
		copy(s.Background, opts.Background)
	}
	s.Clockwise = opts.Clockwise
	s.BackfaceCulling = opts.BackfaceCulling

	nv, nt := mesh.VertexCount(), mesh.TriangleCount()
	s.IJ = make([]float64, 2*nv)
	s.Depths = make([]float64, nv)
	s.Shade = make([]float64, nv)
	s.Colors = make([]float64, C*nv)
	for i, v := range mesh.Vertices {
		shade := opts.Light.Shade(v.Normal)
		s.Shade[i] = shade
		if C == 1 {
			s.Colors[i] = shade * (0.299*v.Color.X + 0.587*v.Color.Y + 0.114*v.Color.Z)
		} else {
			s.Colors[3*i] = shade * v.Color.X
			s.Colors[3*i+1] = shade * v.Color.Y
			s.Colors[3*i+2] = shade * v.Color.Z
		}
	}

	textured := opts.Texture != nil && mesh.HasUVs()
	if opts.Texture != nil && !textured {
		render.Logger().Warn("mesh has no texture coordinates, ignoring texture", "mesh", mesh.Name)
	}

	s.Faces = make([]int, 3*nt)
	s.FacesUV = make([]int, 3*nt)
	s.EdgeFlags = make([]bool, 3*nt)
	s.Textured = make([]bool, nt)
	s.Shaded = make([]bool, nt)
	for k, f := range mesh.Faces {
		copy(s.Faces[3*k:], f.V[:])
		if textured {
			copy(s.FacesUV[3*k:], f.UV[:])
		}
		s.Textured[k] = textured
		s.Shaded[k] = textured
	}

	if textured {
		if err := opts.Texture.Bind(s); err != nil {
			return nil, err
		}
		// Normalized coordinates map onto texel edges; texel centre i sits
		// at UV i+1.
		w, h := float64(s.TextureWidth), float64(s.TextureHeight)
		s.UV = make([]float64, 2*len(mesh.UVs))
		for i, uv := range mesh.UVs {
			s.UV[2*i] = uv.X*w + 0.5
			s.UV[2*i+1] = uv.Y*h + 0.5
		}
	} else {
		s.UV = []float64{1, 1}
	}

	if opts.Gradients {
		s.NewGradients()
	}

	render.Logger().Debug("built scene",
		"mesh", mesh.Name,
		"vertices", nv,
		"triangles", nt,
		"textured", textured,
		"width", opts.Width,
		"height", opts.Height)

	return &Model{Mesh: mesh, Scene: s, welded: mesh.WeldedIndices()}, nil
}

// Project writes the pixel positions and depths of the mesh as seen by cam
// into the scene and recomputes the silhouette flags.
func (m *Model) Project(cam *render.Camera) Visibility {
	s := m.Scene
	for i, v := range m.Mesh.Vertices {
		s.IJ[2*i], s.IJ[2*i+1], s.Depths[i] = cam.Project(v.Position, s.Width, s.Height)
	}
	SilhouetteEdges(s, m.welded, s.EdgeFlags)

	vis := CameraFrustum(cam).Classify(Bounds{Min: m.Mesh.BoundsMin, Max: m.Mesh.BoundsMax})
	render.Logger().Debug("projected model", "mesh", m.Mesh.Name, "visibility", vis)
	return vis
}

// ProjectAdjoint maps the scene's IJB gradient back through cam onto world
// vertex positions. Depth is not differentiated.
func (m *Model) ProjectAdjoint(cam *render.Camera) []math3d.Vec3 {
	s := m.Scene
	grads := make([]math3d.Vec3, len(m.Mesh.Vertices))
	for i, v := range m.Mesh.Vertices {
		grads[i] = cam.ProjectAdjoint(v.Position, s.Width, s.Height, s.IJB[2*i], s.IJB[2*i+1])
	}
	return grads
}

// SilhouetteEdges sets flags[3k+n] for every edge n of triangle k that
// borders exactly one front-facing triangle: the open boundary of the
// visible surface and its fold lines against back faces. welded maps
// vertices to a canonical index per position so edges split along seams
// still pair up; nil means vertices are already unique.
func SilhouetteEdges(s *render.Scene, welded []int, flags []bool) {
	type edgeKey [2]int
	key := func(k, n int) edgeKey {
		c := render.EdgeCorners(n)
		a, b := s.Faces[3*k+c[0]], s.Faces[3*k+c[1]]
		if welded != nil {
			a, b = welded[a], welded[b]
		}
		if a > b {
			a, b = b, a
		}
		return edgeKey{a, b}
	}

	nt := s.NumTriangles()
	front := make(map[edgeKey]int, 3*nt)
	for k := range nt {
		if area, _ := s.SignedArea(k); area > 0 {
			for n := range 3 {
				front[key(k, n)]++
			}
		}
	}
	for k := range nt {
		for n := range 3 {
			flags[3*k+n] = front[key(k, n)] == 1
		}
	}
}
