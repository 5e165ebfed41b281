package render

// Scene is the flat description of what to rasterize. All arrays are owned
// by the caller and shared by reference; the renderer only reads the primal
// arrays and accumulates into the gradient arrays.
//
// Layouts:
//   - IJ[2v] is the column (x) and IJ[2v+1] the row (y) of vertex v, in pixels
//   - UV is 1-based, in texels: UV 1 addresses the first texel centre
//   - Colors[C*v+c], Background[C*(y*W+x)+c], Texture[C*(v*Wt+u)+c]
type Scene struct {
	Faces   []int // 3 vertex indices per triangle
	FacesUV []int // 3 UV indices per triangle

	IJ     []float64
	Depths []float64 // negative means behind the camera
	UV     []float64
	Shade  []float64
	Colors []float64

	Texture    []float64
	Background []float64

	EdgeFlags []bool // silhouette flag per triangle edge
	Textured  []bool
	Shaded    []bool

	Clockwise       bool
	BackfaceCulling bool

	NbColors      int
	Height        int
	Width         int
	TextureHeight int
	TextureWidth  int

	// Gradient twins, same shapes as their primals. Only read in adjoint mode.
	UVB      []float64
	IJB      []float64
	ShadeB   []float64
	ColorsB  []float64
	TextureB []float64
}

// NewScene creates an empty scene with a zero background of the given size.
func NewScene(width, height, channels int) *Scene {
	return &Scene{
		Faces:      []int{},
		FacesUV:    []int{},
		IJ:         []float64{},
		Depths:     []float64{},
		UV:         []float64{},
		Shade:      []float64{},
		Colors:     []float64{},
		Texture:    []float64{},
		Background: make([]float64, width*height*channels),
		EdgeFlags:  []bool{},
		Textured:   []bool{},
		Shaded:     []bool{},
		NbColors:   channels,
		Height:     height,
		Width:      width,
	}
}

// NumTriangles returns the number of triangles.
func (s *Scene) NumTriangles() int { return len(s.Faces) / 3 }

// NumVertices returns the number of geometry vertices.
func (s *Scene) NumVertices() int { return len(s.IJ) / 2 }

// NumUV returns the number of texture-coordinate vertices.
func (s *Scene) NumUV() int { return len(s.UV) / 2 }

// NewGradients allocates zeroed gradient twins for every differentiable array.
func (s *Scene) NewGradients() {
	s.UVB = make([]float64, len(s.UV))
	s.IJB = make([]float64, len(s.IJ))
	s.ShadeB = make([]float64, len(s.Shade))
	s.ColorsB = make([]float64, len(s.Colors))
	s.TextureB = make([]float64, len(s.Texture))
}

// ZeroGradients clears the gradient twins in place. Adjoint renders
// accumulate, so call this between independent gradient evaluations.
func (s *Scene) ZeroGradients() {
	clear(s.UVB)
	clear(s.IJB)
	clear(s.ShadeB)
	clear(s.ColorsB)
	clear(s.TextureB)
}

// SignedArea returns the oriented area of triangle k, positive when front
// facing under the scene's winding convention. It returns 0 and behind=true
// when any vertex of the triangle is behind the camera.
func (s *Scene) SignedArea(k int) (area float64, behind bool) {
	f := s.Faces[3*k : 3*k+3]
	for _, v := range f {
		if s.Depths[v] < 0 {
			return 0, true
		}
	}
	ux := s.IJ[2*f[1]] - s.IJ[2*f[0]]
	uy := s.IJ[2*f[1]+1] - s.IJ[2*f[0]+1]
	vx := s.IJ[2*f[2]] - s.IJ[2*f[0]]
	vy := s.IJ[2*f[2]+1] - s.IJ[2*f[0]+1]
	area = 0.5 * (ux*vy - vx*uy)
	if !s.Clockwise {
		area = -area
	}
	return area, false
}
