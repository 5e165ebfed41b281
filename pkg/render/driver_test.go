package render

import (
	"errors"
	"math"
	"slices"
	"testing"
)

// triangleScene returns a 16x16 RGB scene with a single untextured triangle
// whose corners are v, front facing under the counter-clockwise convention.
func triangleScene(v [3][2]float64, color []float64) *Scene {
	s := NewScene(16, 16, 3)
	s.Faces = []int{0, 1, 2}
	s.FacesUV = []int{0, 0, 0}
	s.UV = []float64{1, 1}
	for _, p := range v {
		s.IJ = append(s.IJ, p[0], p[1])
	}
	s.Depths = []float64{1, 1, 1}
	s.Shade = []float64{1, 1, 1}
	for range 3 {
		s.Colors = append(s.Colors, color...)
	}
	s.EdgeFlags = []bool{true, true, true}
	s.Textured = []bool{false}
	s.Shaded = []bool{false}
	s.BackfaceCulling = true
	return s
}

// addTriangle appends an untextured triangle with its own three vertices.
func addTriangle(s *Scene, v [3][2]float64, z [3]float64, color []float64) {
	base := s.NumVertices()
	for i := range 3 {
		s.Faces = append(s.Faces, base+i)
		s.FacesUV = append(s.FacesUV, 0)
		s.IJ = append(s.IJ, v[i][0], v[i][1])
		s.Depths = append(s.Depths, z[i])
		s.Shade = append(s.Shade, 1)
		s.Colors = append(s.Colors, color...)
		s.EdgeFlags = append(s.EdgeFlags, true)
	}
	s.Textured = append(s.Textured, false)
	s.Shaded = append(s.Shaded, false)
}

func emptyScene(w, h, c int) *Scene {
	s := NewScene(w, h, c)
	s.UV = []float64{1, 1}
	s.BackfaceCulling = true
	return s
}

func mustRender(t *testing.T, s *Scene, opts Options) *Framebuffer {
	t.Helper()
	fb := NewFramebuffer(s.Width, s.Height, s.NbColors)
	if _, err := Render(s, fb, opts); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return fb
}

var scenario1 = [3][2]float64{{2, 2}, {2, 13}, {13, 2}}

func TestRenderSingleTriangle(t *testing.T) {
	s := triangleScene(scenario1, []float64{1, 0, 0})
	fb := mustRender(t, s, Options{Sigma: 1})

	for y := range 16 {
		for x := range 16 {
			r := fb.At(x, y, 0)
			switch {
			case x >= 3 && y >= 3 && x+y <= 14:
				if r != 1 || fb.At(x, y, 1) != 0 || fb.At(x, y, 2) != 0 {
					t.Errorf("interior pixel (%d,%d) = %v, want red", x, y, r)
				}
				if fb.Depth[y*16+x] != 1 {
					t.Errorf("depth(%d,%d) = %v, want 1", x, y, fb.Depth[y*16+x])
				}
			case x == 0 || y == 0 || x+y >= 17:
				if r != 0 {
					t.Errorf("outside pixel (%d,%d) = %v, want 0", x, y, r)
				}
				if !math.IsInf(fb.Depth[y*16+x], 1) {
					t.Errorf("depth(%d,%d) = %v, want +Inf", x, y, fb.Depth[y*16+x])
				}
			}
		}
	}

	// (8,8) lies 1/√2 outside the hypotenuse, inside its antialiasing ramp.
	want := 1 - 1/math.Sqrt2
	if got := fb.At(8, 8, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("ramp pixel (8,8) = %v, want %v", got, want)
	}

	// Pixels exactly on the axis-aligned edges take the full edge colour.
	for _, p := range [][2]int{{2, 7}, {7, 2}} {
		if got := fb.At(p[0], p[1], 0); math.Abs(got-1) > 1e-9 {
			t.Errorf("edge pixel (%d,%d) = %v, want 1", p[0], p[1], got)
		}
	}
}

// Moving an edge onto a pixel centre does not make the image jump.
func TestRenderEdgeContinuity(t *testing.T) {
	at := func(dx float64) float64 {
		v := scenario1
		v[0][0] += dx
		v[1][0] += dx
		return mustRender(t, triangleScene(v, []float64{1, 0, 0}), Options{Sigma: 1}).At(2, 7, 0)
	}
	base := at(0)
	for _, dx := range []float64{1e-9, 1e-6, -1e-6} {
		if got := at(dx); math.Abs(got-base) > 1e-5 {
			t.Errorf("pixel (2,7) with edge moved by %v = %v, want close to %v", dx, got, base)
		}
	}
}

func TestRenderStats(t *testing.T) {
	s := emptyScene(16, 16, 1)
	addTriangle(s, scenario1, [3]float64{1, 1, 1}, []float64{1})
	// Back facing: same corners in the opposite order.
	addTriangle(s, [3][2]float64{{2, 2}, {13, 2}, {2, 13}}, [3]float64{2, 2, 2}, []float64{1})
	// Degenerate.
	addTriangle(s, [3][2]float64{{1, 1}, {5, 5}, {9, 9}}, [3]float64{1, 1, 1}, []float64{1})
	// One vertex behind the camera.
	addTriangle(s, scenario1, [3]float64{1, -1, 1}, []float64{1})

	fb := NewFramebuffer(16, 16, 1)
	stats, err := Render(s, fb, Options{Sigma: 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := Stats{Triangles: 4, Culled: 2, BehindCamera: 1, Filled: 1, Edges: 3}
	if stats != want {
		t.Errorf("Render() stats = %+v, want %+v", stats, want)
	}
}

func TestRenderBackfaceCullingDisabled(t *testing.T) {
	s := triangleScene([3][2]float64{{2, 2}, {13, 2}, {2, 13}}, []float64{0, 1, 0})
	s.BackfaceCulling = false

	fb := mustRender(t, s, Options{Sigma: 1})
	if got := fb.At(5, 5, 1); got != 1 {
		t.Errorf("back facing pixel (5,5) = %v, want 1", got)
	}
	// Back faces are filled but never get antialiased edges.
	if got := fb.At(8, 8, 1); got != 0 {
		t.Errorf("pixel (8,8) outside back face = %v, want 0", got)
	}

	s.Clockwise = true
	s.BackfaceCulling = true
	fb = mustRender(t, s, Options{Sigma: 1})
	if got := fb.At(5, 5, 1); got != 1 {
		t.Errorf("clockwise front face pixel (5,5) = %v, want 1", got)
	}
}

func TestRenderTexturedUnshaded(t *testing.T) {
	s := triangleScene(scenario1, []float64{1, 1, 1})
	s.Textured[0] = true
	s.Texture = make([]float64, 2*2*3)
	s.TextureWidth, s.TextureHeight = 2, 2
	for i := range s.Background {
		s.Background[i] = 0.25
	}

	fb := mustRender(t, s, Options{})
	if !slices.Equal(fb.Image, s.Background) {
		t.Error("textured unshaded triangle was filled")
	}

	// Its silhouette edges are still blended from the vertex colours.
	fb = mustRender(t, s, Options{Sigma: 1})
	if got := fb.At(5, 5, 0); got != 0.25 {
		t.Errorf("interior pixel (5,5) = %v, want background 0.25", got)
	}
	T := 1 / math.Sqrt2
	if got, want := fb.At(8, 8, 0), 0.25*T+(1-T); math.Abs(got-want) > 1e-12 {
		t.Errorf("ramp pixel (8,8) = %v, want %v", got, want)
	}
}

// With every triangle culled the output is exactly the background.
func TestRenderAllCulled(t *testing.T) {
	s := emptyScene(16, 16, 3)
	addTriangle(s, [3][2]float64{{2, 2}, {13, 2}, {2, 13}}, [3]float64{1, 1, 1}, []float64{1, 0, 0})
	addTriangle(s, [3][2]float64{{3.5, 1.2}, {14.1, 6.3}, {1.7, 12.8}}, [3]float64{2, 2, 2}, []float64{0, 1, 0})
	addTriangle(s, scenario1, [3]float64{1, -1, 1}, []float64{0, 0, 1})
	for i := range s.Background {
		s.Background[i] = float64(i%11) / 11
	}

	fb := NewFramebuffer(16, 16, 3)
	for i := range fb.Image {
		fb.Image[i] = 0.5
	}
	stats, err := Render(s, fb, Options{Sigma: 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if stats.Filled != 0 || stats.Edges != 0 {
		t.Errorf("Render() stats = %+v, want nothing drawn", stats)
	}
	if !slices.Equal(fb.Image, s.Background) {
		t.Error("image differs from background")
	}
	for i, d := range fb.Depth {
		if !math.IsInf(d, 1) {
			t.Fatalf("depth[%d] = %v, want +Inf", i, d)
		}
	}
}

// A textured quad over a 2x2 checker reproduces the bilinear interpolation
// of the checker at every covered pixel.
func TestRenderTexturedChecker(t *testing.T) {
	s := emptyScene(16, 16, 3)
	const x0, x1 = 2.0, 13.0
	s.IJ = []float64{x0, x0, x0, x1, x1, x0, x1, x1}
	s.Depths = []float64{1, 1, 1, 1}
	s.Faces = []int{0, 1, 2, 2, 1, 3}
	s.FacesUV = slices.Clone(s.Faces)
	s.UV = []float64{1, 1, 1, 2, 2, 1, 2, 2}
	s.Shade = []float64{1, 1, 1, 1}
	s.Colors = make([]float64, 4*3)
	s.EdgeFlags = []bool{true, false, true, false, true, true}
	s.Textured = []bool{true, true}
	s.Shaded = []bool{true, true}
	s.TextureWidth, s.TextureHeight = 2, 2
	s.Texture = []float64{
		1, 1, 1, 0, 0, 0,
		0, 0, 0, 1, 1, 1,
	}

	fb := mustRender(t, s, Options{Sigma: 1})
	for y := 3; y <= 12; y++ {
		for x := 3; x <= 12; x++ {
			ex := (float64(x) - x0) / (x1 - x0)
			ey := (float64(y) - x0) / (x1 - x0)
			want := (1-ex)*(1-ey) + ex*ey
			for c := range 3 {
				if got := fb.At(x, y, c); math.Abs(got-want) > 1e-9 {
					t.Errorf("pixel (%d,%d,%d) = %v, want %v", x, y, c, got, want)
				}
			}
		}
	}
}

// Background pixels not covered by any triangle or edge ramp keep the
// background value exactly.
func TestRenderBackgroundFidelity(t *testing.T) {
	s := triangleScene([3][2]float64{{4.3, 3.7}, {5.1, 11.2}, {12.6, 4.4}}, []float64{0.2, 0.4, 0.6})
	for i := range s.Background {
		s.Background[i] = float64(i%7) / 7
	}
	fb := mustRender(t, s, Options{Sigma: 1})
	for y := range 16 {
		for x := range 16 {
			if x > 1 && x < 15 && y > 1 && y < 14 {
				continue
			}
			for c := range 3 {
				i := 3*(y*16+x) + c
				if fb.Image[i] != s.Background[i] {
					t.Errorf("pixel (%d,%d,%d) = %v, want background %v", x, y, c, fb.Image[i], s.Background[i])
				}
			}
		}
	}
}

func TestRenderOcclusion(t *testing.T) {
	near := [3][2]float64{{1, 1}, {1, 14}, {14, 1}}
	far := [3][2]float64{{4, 4}, {4, 9}, {9, 4}}

	both := emptyScene(16, 16, 3)
	addTriangle(both, far, [3]float64{2, 2, 2}, []float64{0, 0, 1})
	addTriangle(both, near, [3]float64{1, 1, 1}, []float64{1, 0, 0})

	alone := emptyScene(16, 16, 3)
	addTriangle(alone, near, [3]float64{1, 1, 1}, []float64{1, 0, 0})

	opts := Options{Sigma: 1}
	got := mustRender(t, both, opts)
	want := mustRender(t, alone, opts)
	if !slices.Equal(got.Image, want.Image) {
		t.Error("hidden triangle changed the image")
	}

	both.NewGradients()
	grad := &OutputGradients{Image: make([]float64, len(got.Image))}
	for i := range grad.Image {
		grad.Image[i] = 1
	}
	if err := RenderAdjoint(both, got, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}
	for i, g := range both.ColorsB[:9] {
		if g != 0 {
			t.Errorf("ColorsB[%d] of hidden triangle = %v, want 0", i, g)
		}
	}
	if both.ColorsB[9] == 0 {
		t.Error("visible triangle got no colour gradient")
	}
}

// Without edge antialiasing the image does not depend on the order in which
// triangles at distinct depths are listed.
func TestRenderOrderInvariance(t *testing.T) {
	tris := []struct {
		v     [3][2]float64
		z     [3]float64
		color []float64
	}{
		{[3][2]float64{{1.5, 1.2}, {2.1, 13.8}, {13.4, 2.6}}, [3]float64{3, 3.2, 2.9}, []float64{1, 0, 0}},
		{[3][2]float64{{5.2, 3.1}, {4.7, 14.6}, {14.9, 9.3}}, [3]float64{2, 2.1, 1.8}, []float64{0, 1, 0}},
		{[3][2]float64{{0.3, 7.4}, {8.8, 15.1}, {11.6, 0.4}}, [3]float64{1.1, 1.4, 1.2}, []float64{0, 0, 1}},
	}
	render := func(order []int) []float64 {
		s := emptyScene(16, 16, 3)
		for _, k := range order {
			addTriangle(s, tris[k].v, tris[k].z, tris[k].color)
		}
		s.BackfaceCulling = false
		return mustRender(t, s, Options{}).Image
	}

	want := render([]int{0, 1, 2})
	for _, order := range [][]int{{2, 1, 0}, {1, 0, 2}, {2, 0, 1}} {
		if got := render(order); !slices.Equal(got, want) {
			t.Errorf("order %v changed the image", order)
		}
	}
}

func TestRenderSmallSigma(t *testing.T) {
	s := triangleScene([3][2]float64{{2.3, 1.8}, {3.1, 12.7}, {13.6, 2.9}}, []float64{0.9, 0.5, 0.1})
	sharp := mustRender(t, s, Options{})
	soft := mustRender(t, s, Options{Sigma: 1e-9})
	for i := range sharp.Image {
		if math.Abs(sharp.Image[i]-soft.Image[i]) > 1e-6 {
			t.Fatalf("image[%d] = %v with sigma 1e-9, want %v", i, soft.Image[i], sharp.Image[i])
		}
	}
}

// After the adjoint pass the framebuffer holds the image as it was before
// the edge pass, that is the sigma = 0 render.
func TestRenderAdjointRestoresFramebuffer(t *testing.T) {
	s := gradScene(false)
	opts := Options{Sigma: 1.3}

	fill := mustRender(t, s, Options{})
	fb := mustRender(t, s, opts)
	s.NewGradients()
	grad := &OutputGradients{Image: make([]float64, len(fb.Image))}
	for i := range grad.Image {
		grad.Image[i] = math.Sin(float64(i))
	}
	if err := RenderAdjoint(s, fb, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}
	for i := range fb.Image {
		if math.Abs(fb.Image[i]-fill.Image[i]) > 1e-9 {
			t.Fatalf("restored image[%d] = %v, want %v", i, fb.Image[i], fill.Image[i])
		}
	}
}

// In error mode the adjoint restores the error buffer as it stood before the
// edge pass.
func TestRenderAdjointRestoresErrorBuffer(t *testing.T) {
	s := gradScene(false)
	obs := observedImage(len(s.Background))
	opts := Options{Sigma: 1.3, AntialiasError: true, Observed: obs}

	fill := mustRender(t, s, Options{AntialiasError: true, Observed: obs})
	fb := mustRender(t, s, opts)
	s.NewGradients()
	grad := &OutputGradients{
		Image: make([]float64, len(fb.Image)),
		Err:   make([]float64, len(fb.Err)),
	}
	for i := range grad.Err {
		grad.Err[i] = math.Cos(float64(i))
	}
	if err := RenderAdjoint(s, fb, grad, opts); err != nil {
		t.Fatalf("RenderAdjoint() error = %v", err)
	}
	for i := range fb.Err {
		if math.Abs(fb.Err[i]-fill.Err[i]) > 1e-9 {
			t.Fatalf("restored err[%d] = %v, want %v", i, fb.Err[i], fill.Err[i])
		}
	}
	if !slices.Equal(fb.Image, fill.Image) {
		t.Error("error mode changed the image")
	}
}

func TestRenderErrorMode(t *testing.T) {
	obsScene := triangleScene(scenario1, []float64{0.5, 0, 0})
	opts := Options{Sigma: 1}
	obs := mustRender(t, obsScene, opts)

	s := triangleScene(scenario1, []float64{1, 0, 0})
	opts.AntialiasError = true
	opts.Observed = obs.Image
	fb := mustRender(t, s, opts)

	filled, ramp := 0, 0
	var sum float64
	for p, e := range fb.Err {
		sum += e
		switch {
		case !math.IsInf(fb.Depth[p], 1):
			filled++
			if math.Abs(e-0.25) > 1e-12 {
				t.Errorf("err[%d] = %v on filled pixel, want 0.25", p, e)
			}
		case e != 0:
			ramp++
		}
	}
	if lo, hi := 0.25*float64(filled), 0.25*float64(filled)+float64(ramp); sum < lo || sum > hi {
		t.Errorf("error sum = %v, want within [%v, %v]", sum, lo, hi)
	}
}

func TestRenderDeterministic(t *testing.T) {
	for _, textured := range []bool{false, true} {
		s := gradScene(textured)
		opts := Options{Sigma: 1.1}
		a := mustRender(t, s, opts)
		b := mustRender(t, s, opts)
		if !slices.Equal(a.Image, b.Image) || !slices.Equal(a.Depth, b.Depth) {
			t.Errorf("textured=%v: repeated renders differ", textured)
		}

		adjoint := func(fb *Framebuffer) []float64 {
			s.NewGradients()
			grad := &OutputGradients{Image: slices.Clone(fb.Image)}
			if err := RenderAdjoint(s, fb, grad, opts); err != nil {
				t.Fatalf("RenderAdjoint() error = %v", err)
			}
			return slices.Concat(s.IJB, s.ColorsB, s.UVB, s.ShadeB, s.TextureB)
		}
		if !slices.Equal(adjoint(a), adjoint(b)) {
			t.Errorf("textured=%v: repeated adjoints differ", textured)
		}
	}
}

func TestRenderRejectsBeforeWriting(t *testing.T) {
	s := triangleScene(scenario1, []float64{1, 0, 0})
	s.Faces[2] = 7
	fb := NewFramebuffer(16, 16, 3)
	for i := range fb.Image {
		fb.Image[i] = 0.5
	}
	_, err := Render(s, fb, Options{Sigma: 1})
	if !errors.Is(err, ErrInvalidScene) {
		t.Fatalf("Render() error = %v, want ErrInvalidScene", err)
	}
	for i, v := range fb.Image {
		if v != 0.5 {
			t.Fatalf("image[%d] = %v after rejected render, want 0.5", i, v)
		}
	}
}

func TestRenderBufferChecks(t *testing.T) {
	s := triangleScene(scenario1, []float64{1, 0, 0})
	tests := []struct {
		name  string
		fb    *Framebuffer
		opts  Options
		field string
	}{
		{"wrong width", NewFramebuffer(15, 16, 3), Options{}, "framebuffer.width"},
		{"wrong channels", NewFramebuffer(16, 16, 1), Options{}, "framebuffer.channels"},
		{"missing observed", NewFramebuffer(16, 16, 3), Options{AntialiasError: true}, "observed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Render(s, tc.fb, tc.opts)
			var se *SizeMismatchError
			if !errors.As(err, &se) || se.Field != tc.field {
				t.Errorf("Render() error = %v, want size mismatch on %q", err, tc.field)
			}
		})
	}

	t.Run("negative sigma", func(t *testing.T) {
		_, err := Render(s, NewFramebuffer(16, 16, 3), Options{Sigma: -1})
		if !errors.Is(err, ErrInvalidScene) {
			t.Errorf("Render() error = %v, want ErrInvalidScene", err)
		}
	})
	t.Run("nil gradients", func(t *testing.T) {
		s.NewGradients()
		fb := mustRender(t, s, Options{})
		if err := RenderAdjoint(s, fb, nil, Options{}); !errors.Is(err, ErrInvalidScene) {
			t.Errorf("RenderAdjoint() error = %v, want ErrInvalidScene", err)
		}
	})
}

func BenchmarkRender(b *testing.B) {
	s := gradScene(true)
	fb := NewFramebuffer(s.Width, s.Height, s.NbColors)
	opts := Options{Sigma: 1}

	for b.Loop() {
		Render(s, fb, opts)
	}
}

func BenchmarkRenderAdjoint(b *testing.B) {
	s := gradScene(true)
	s.NewGradients()
	fb := NewFramebuffer(s.Width, s.Height, s.NbColors)
	grad := &OutputGradients{Image: make([]float64, len(fb.Image))}
	opts := Options{Sigma: 1}

	for b.Loop() {
		Render(s, fb, opts)
		for i := range grad.Image {
			grad.Image[i] = 1
		}
		RenderAdjoint(s, fb, grad, opts)
	}
}
