package render

import (
	"fmt"
	"math"
	"slices"
	"testing"
)

// gradScene builds a 24x20 RGB scene with a quad split into two triangles in
// front of a third, partially hidden triangle. Vertex positions are chosen
// away from pixel centres so that small perturbations never move a pixel
// across an edge.
func gradScene(textured bool) *Scene {
	s := NewScene(24, 20, 3)
	s.IJ = []float64{
		3.3, 2.7,
		4.1, 16.6,
		17.8, 3.4,
		19.2, 15.3,
		8.6, 6.2,
		22.4, 8.9,
		12.7, 18.8,
	}
	s.Depths = []float64{1.0, 1.3, 1.1, 1.6, 3.0, 3.2, 2.9}
	s.Faces = []int{0, 1, 2, 2, 1, 3, 4, 6, 5}
	s.FacesUV = slices.Clone(s.Faces)
	s.UV = []float64{
		1.2, 1.3,
		1.4, 3.7,
		4.6, 1.1,
		4.8, 3.9,
		2.3, 1.7,
		4.1, 2.2,
		3.3, 3.6,
	}
	s.Shade = []float64{0.9, 1.2, 0.6, 1.0, 0.8, 1.1, 0.7}
	for v := range 7 {
		s.Colors = append(s.Colors,
			0.5+0.4*math.Sin(float64(3*v)),
			0.5+0.4*math.Sin(float64(3*v+1)),
			0.5+0.4*math.Sin(float64(3*v+2)))
	}
	// The quad diagonal (edges 1 of both quad triangles) is interior.
	s.EdgeFlags = []bool{
		true, false, true,
		false, true, true,
		true, true, true,
	}
	s.Textured = []bool{textured, textured, textured}
	s.Shaded = []bool{true, true, true}
	s.BackfaceCulling = true

	s.TextureWidth, s.TextureHeight = 5, 4
	s.Texture = make([]float64, 5*4*3)
	for i := range s.Texture {
		s.Texture[i] = 0.5 + 0.45*math.Cos(1.7*float64(i))
	}
	for i := range s.Background {
		s.Background[i] = 0.3 + 0.2*math.Sin(0.37*float64(i))
	}
	return s
}

// lossWeights returns fixed pseudo-random weights for a linear loss.
func lossWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Sin(12.9898*float64(i)+0.5) * 0.5
	}
	return w
}

// observedImage returns a fixed target image for error-mode tests.
func observedImage(n int) []float64 {
	obs := make([]float64, n)
	for i := range obs {
		obs[i] = 0.5 + 0.4*math.Cos(0.73*float64(i))
	}
	return obs
}

// loss renders s and returns Σ w·image, or Σ w·err in error mode.
func loss(t *testing.T, s *Scene, w []float64, opts Options) float64 {
	t.Helper()
	fb := mustRender(t, s, opts)
	out := fb.Image
	if opts.AntialiasError {
		out = fb.Err
	}
	var l float64
	for i, v := range out {
		l += w[i] * v
	}
	return l
}

// analyticGradients runs the adjoint for the linear loss with weights w.
func analyticGradients(t *testing.T, s *Scene, w []float64, opts Options) {
	t.Helper()
	fb := mustRender(t, s, opts)
	s.NewGradients()
	grad := &OutputGradients{Image: make([]float64, len(fb.Image))}
	if opts.AntialiasError {
		grad.Err = slices.Clone(w)
	} else {
		copy(grad.Image, w)
	}
	if err := RenderAdjoint(s, fb, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}
}

type gradParam struct {
	name   string
	primal func(*Scene) []float64
	grad   func(*Scene) []float64
}

var (
	ijParam      = gradParam{"ij", func(s *Scene) []float64 { return s.IJ }, func(s *Scene) []float64 { return s.IJB }}
	colorsParam  = gradParam{"colors", func(s *Scene) []float64 { return s.Colors }, func(s *Scene) []float64 { return s.ColorsB }}
	uvParam      = gradParam{"uv", func(s *Scene) []float64 { return s.UV }, func(s *Scene) []float64 { return s.UVB }}
	shadeParam   = gradParam{"shade", func(s *Scene) []float64 { return s.Shade }, func(s *Scene) []float64 { return s.ShadeB }}
	textureParam = gradParam{"texture", func(s *Scene) []float64 { return s.Texture }, func(s *Scene) []float64 { return s.TextureB }}
)

// checkGradients compares the adjoint against central finite differences of
// loss for every entry of the given parameters.
func checkGradients(t *testing.T, s *Scene, opts Options, params ...gradParam) {
	t.Helper()
	n := len(s.Background)
	if opts.AntialiasError {
		n = s.Width * s.Height
		opts.Observed = observedImage(len(s.Background))
	}
	w := lossWeights(n)

	analyticGradients(t, s, w, opts)

	const eps = 1e-6
	for _, p := range params {
		x := p.primal(s)
		g := p.grad(s)
		for i := range x {
			orig := x[i]
			x[i] = orig + eps
			lp := loss(t, s, w, opts)
			x[i] = orig - eps
			lm := loss(t, s, w, opts)
			x[i] = orig

			num := (lp - lm) / (2 * eps)
			if math.Abs(g[i]-num) > 1e-4*max(1, math.Abs(num)) {
				t.Errorf("d loss / d %s[%d] = %v, want %v", p.name, i, g[i], num)
			}
		}
	}
}

func TestGradients(t *testing.T) {
	tests := []struct {
		textured bool
		errMode  bool
		params   []gradParam
	}{
		{false, false, []gradParam{ijParam, colorsParam}},
		{false, true, []gradParam{ijParam, colorsParam}},
		{true, false, []gradParam{ijParam, uvParam, shadeParam, textureParam}},
		{true, true, []gradParam{ijParam, uvParam, shadeParam, textureParam}},
	}
	for _, tc := range tests {
		name := fmt.Sprintf("textured=%v/error=%v", tc.textured, tc.errMode)
		t.Run(name, func(t *testing.T) {
			for _, sigma := range []float64{0, 1, 1.7} {
				s := gradScene(tc.textured)
				checkGradients(t, s, Options{Sigma: sigma, AntialiasError: tc.errMode}, tc.params...)
			}
		})
	}
}

// Textured triangles that are not shaded only contribute their edges, which
// take the vertex colours.
func TestGradientsTexturedUnshaded(t *testing.T) {
	for _, errMode := range []bool{false, true} {
		s := gradScene(true)
		s.Shaded = []bool{false, false, false}
		checkGradients(t, s, Options{Sigma: 1.2, AntialiasError: errMode}, ijParam, colorsParam)
	}
}

// Gradients of a squared-image loss for the single triangle of the first
// rendering scenario, shifted off the pixel grid.
func TestGradientsSquaredLoss(t *testing.T) {
	var v [3][2]float64
	for i, p := range scenario1 {
		v[i] = [2]float64{p[0] + 0.31, p[1] + 0.17}
	}
	s := triangleScene(v, []float64{1, 0, 0})
	opts := Options{Sigma: 1}

	sq := func() float64 {
		fb := mustRender(t, s, opts)
		var l float64
		for _, x := range fb.Image {
			l += x * x
		}
		return l
	}

	fb := mustRender(t, s, opts)
	s.NewGradients()
	grad := &OutputGradients{Image: make([]float64, len(fb.Image))}
	for i, x := range fb.Image {
		grad.Image[i] = 2 * x
	}
	if err := RenderAdjoint(s, fb, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}

	const eps = 1e-6
	for i := range s.IJ {
		orig := s.IJ[i]
		s.IJ[i] = orig + eps
		lp := sq()
		s.IJ[i] = orig - eps
		lm := sq()
		s.IJ[i] = orig

		num := (lp - lm) / (2 * eps)
		if math.Abs(s.IJB[i]-num) > 1e-4*max(1, math.Abs(num)) {
			t.Errorf("d loss / d ij[%d] = %v, want %v", i, s.IJB[i], num)
		}
	}
}

// Adjoint calls accumulate into the gradient twins.
func TestGradientsAccumulate(t *testing.T) {
	s := gradScene(false)
	opts := Options{Sigma: 1}
	w := lossWeights(len(s.Background))

	analyticGradients(t, s, w, opts)
	once := slices.Clone(s.IJB)

	fb := mustRender(t, s, opts)
	grad := &OutputGradients{Image: slices.Clone(w)}
	if err := RenderAdjoint(s, fb, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}
	for i := range once {
		if math.Abs(s.IJB[i]-2*once[i]) > 1e-9*max(1, math.Abs(once[i])) {
			t.Errorf("IJB[%d] after two adjoints = %v, want %v", i, s.IJB[i], 2*once[i])
		}
	}
}
