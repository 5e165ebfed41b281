package render

import (
	"cmp"
	"math"
	"slices"
)

// Options control a render.
type Options struct {
	// Sigma is the width in pixels of the antialiasing ramp drawn outside
	// silhouette edges. Zero disables edge antialiasing.
	Sigma float64

	// AntialiasError makes the edge pass blend the squared error against
	// Observed into Framebuffer.Err instead of blending colour into the image.
	AntialiasError bool

	// Observed is the C·H·W target image, required when AntialiasError is set.
	Observed []float64
}

// Stats summarizes what a forward render drew.
type Stats struct {
	Triangles    int
	Culled       int // back facing or degenerate
	BehindCamera int
	Filled       int
	Edges        int
}

// OutputGradients carries the gradients of a loss with respect to the render
// outputs into RenderAdjoint.
type OutputGradients struct {
	// Image is the C·H·W gradient of the image. RenderAdjoint consumes it in
	// place. In error mode it is only scratch and is overwritten.
	Image []float64

	// Err is the H·W gradient of the error buffer, error mode only. It is
	// consumed in place.
	Err []float64
}

// edgeVertices lists, for edge n of a face (v0, v1, v2), the two face
// corners it joins.
var edgeVertices = [3][2]int{{1, 0}, {2, 1}, {0, 2}}

// EdgeCorners returns the face corners joined by edge n, which is the
// layout of Scene.EdgeFlags[3k+n].
func EdgeCorners(n int) [2]int { return edgeVertices[n] }

// schedule is the far-to-near triangle order shared by the forward and
// adjoint passes.
type schedule struct {
	order  []int
	area   []float64
	behind []bool
}

func (s *Scene) schedule() schedule {
	nt := s.NumTriangles()
	sc := schedule{
		order:  make([]int, nt),
		area:   make([]float64, nt),
		behind: make([]bool, nt),
	}
	sumDepth := make([]float64, nt)
	for k := range nt {
		sc.order[k] = k
		for _, v := range s.Faces[3*k : 3*k+3] {
			sumDepth[k] += s.Depths[v]
		}
		sc.area[k], sc.behind[k] = s.SignedArea(k)
	}
	// Stable, so equal depths keep index order.
	slices.SortStableFunc(sc.order, func(a, b int) int {
		return cmp.Compare(sumDepth[b], sumDepth[a])
	})
	return sc
}

// fillable reports whether triangle k is rasterized by the fill pass.
// Degenerate and behind-camera triangles (area 0) never are.
func (s *Scene) fillable(area float64) bool {
	return area > 0 || (area < 0 && !s.BackfaceCulling)
}

func (s *Scene) triangle(k int) (v [3][2]float64, z [3]float64) {
	for i, vi := range s.Faces[3*k : 3*k+3] {
		v[i] = [2]float64{s.IJ[2*vi], s.IJ[2*vi+1]}
		z[i] = s.Depths[vi]
	}
	return v, z
}

func (s *Scene) triangleUV(k int) (uv [3][2]float64, shade [3]float64) {
	for i := range 3 {
		t := s.FacesUV[3*k+i]
		uv[i] = [2]float64{s.UV[2*t] - 1, s.UV[2*t+1] - 1}
		shade[i] = s.Shade[s.Faces[3*k+i]]
	}
	return uv, shade
}

func (s *Scene) vertexColors(vs []int, src []float64) [][]float64 {
	C := s.NbColors
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = src[C*v : C*v+C]
	}
	return out
}

// edge gathers the endpoints of edge n of triangle k.
func (s *Scene) edge(k, n int) (vs [2]int, v [2][2]float64, z [2]float64) {
	for i, corner := range edgeVertices[n] {
		vi := s.Faces[3*k+corner]
		vs[i] = vi
		v[i] = [2]float64{s.IJ[2*vi], s.IJ[2*vi+1]}
		z[i] = s.Depths[vi]
	}
	return vs, v, z
}

func (s *Scene) edgeUV(k, n int) (uv [2][2]float64, shade [2]float64) {
	for i, corner := range edgeVertices[n] {
		t := s.FacesUV[3*k+corner]
		uv[i] = [2]float64{s.UV[2*t] - 1, s.UV[2*t+1] - 1}
		shade[i] = s.Shade[s.Faces[3*k+corner]]
	}
	return uv, shade
}

func (s *Scene) checkBuffers(fb *Framebuffer, opts Options, grad *OutputGradients) error {
	if fb == nil {
		return &InvalidSceneError{Field: "framebuffer", Reason: "missing"}
	}
	pixels := s.Width * s.Height
	checks := []struct {
		name      string
		got, want int
	}{
		{"framebuffer.width", fb.Width, s.Width},
		{"framebuffer.height", fb.Height, s.Height},
		{"framebuffer.channels", fb.Channels, s.NbColors},
		{"image", len(fb.Image), s.NbColors * pixels},
		{"depth", len(fb.Depth), pixels},
	}
	if opts.AntialiasError {
		checks = append(checks, []struct {
			name      string
			got, want int
		}{
			{"observed", len(opts.Observed), s.NbColors * pixels},
			{"err", len(fb.Err), pixels},
		}...)
	}
	if grad != nil {
		checks = append(checks, struct {
			name      string
			got, want int
		}{"image_b", len(grad.Image), s.NbColors * pixels})
		if opts.AntialiasError {
			checks = append(checks, struct {
				name      string
				got, want int
			}{"err_b", len(grad.Err), pixels})
		}
	}
	for _, c := range checks {
		if c.got != c.want {
			return &SizeMismatchError{Field: c.name, Got: c.got, Want: c.want}
		}
	}
	if math.IsNaN(opts.Sigma) || opts.Sigma < 0 {
		return &InvalidSceneError{Field: "sigma", Reason: "must be a non-negative number"}
	}
	return nil
}

// Render draws the scene into fb. The image starts as the background and the
// depth buffer as +Inf. Triangles are filled far to near with a depth test;
// if opts.Sigma is positive the flagged silhouette edges of front-facing
// triangles are then blended in the same order.
//
// Invalid scenes are rejected before fb is touched.
func Render(s *Scene, fb *Framebuffer, opts Options) (Stats, error) {
	var stats Stats
	if err := s.Validate(false); err != nil {
		return stats, err
	}
	if err := s.checkBuffers(fb, opts, nil); err != nil {
		return stats, err
	}

	copy(fb.Image, s.Background)
	for i := range fb.Depth {
		fb.Depth[i] = math.Inf(1)
	}

	sc := s.schedule()
	dst := fb.canvas()
	tex := s.texView()
	stats.Triangles = len(sc.order)

	for _, k := range sc.order {
		switch {
		case sc.behind[k]:
			stats.BehindCamera++
			continue
		case !s.fillable(sc.area[k]):
			stats.Culled++
			continue
		}
		v, z := s.triangle(k)
		switch {
		case s.Textured[k] && s.Shaded[k]:
			uv, shade := s.triangleUV(k)
			fillTextured(dst, tex, &v, &z, &uv, &shade)
		case !s.Textured[k]:
			fillInterpolated(dst, &v, &z, s.vertexColors(s.Faces[3*k:3*k+3], s.Colors))
		default:
			continue
		}
		stats.Filled++
	}

	C := s.NbColors
	if opts.AntialiasError {
		for p := range fb.Err {
			fb.Err[p] = squaredError(fb.Image[C*p:C*p+C], opts.Observed[C*p:C*p+C])
		}
	}

	if opts.Sigma > 0 {
		for _, k := range sc.order {
			if sc.area[k] <= 0 {
				continue
			}
			for n := range 3 {
				if s.EdgeFlags[3*k+n] {
					s.drawEdge(dst, tex, opts, fb.Err, k, n)
					stats.Edges++
				}
			}
		}
	}

	Logger().Debug("render",
		"triangles", stats.Triangles,
		"filled", stats.Filled,
		"culled", stats.Culled,
		"behind", stats.BehindCamera,
		"edges", stats.Edges,
		"sigma", opts.Sigma)
	return stats, nil
}

// drawEdge blends edge n of triangle k. Textured triangles that are not
// shaded are never filled but still get their edges drawn from the vertex
// colours.
func (s *Scene) drawEdge(dst *canvas, tex textureView, opts Options, errBuf []float64, k, n int) {
	vs, v, z := s.edge(k, n)
	switch {
	case s.Textured[k] && s.Shaded[k]:
		uv, shade := s.edgeUV(k, n)
		if opts.AntialiasError {
			edgeTexturedError(dst, opts.Observed, errBuf, tex, opts.Sigma, s.Clockwise, &v, &z, &uv, &shade)
		} else {
			edgeTextured(dst, tex, opts.Sigma, s.Clockwise, &v, &z, &uv, &shade)
		}
	default:
		colors := s.vertexColors(vs[:], s.Colors)
		if opts.AntialiasError {
			edgeInterpolatedError(dst, opts.Observed, errBuf, opts.Sigma, s.Clockwise, &v, &z, colors)
		} else {
			edgeInterpolated(dst, opts.Sigma, s.Clockwise, &v, &z, colors)
		}
	}
}

// RenderAdjoint back-propagates grad through the render that produced fb and
// accumulates the result into the scene's gradient twins (UVB, IJB, ShadeB,
// ColorsB, TextureB). fb must hold the output of Render called with the same
// scene and options.
//
// The edge blends are undone in place, so on return fb.Image (and fb.Err in
// error mode) holds the state after the fill pass and before any edge was
// drawn. grad is consumed in place.
func RenderAdjoint(s *Scene, fb *Framebuffer, grad *OutputGradients, opts Options) error {
	if err := s.Validate(true); err != nil {
		return err
	}
	if grad == nil {
		return &InvalidSceneError{Field: "image_b", Reason: "missing"}
	}
	if err := s.checkBuffers(fb, opts, grad); err != nil {
		return err
	}

	sc := s.schedule()
	dst := fb.canvas()
	tex := s.texView()

	if opts.Sigma > 0 {
		for it := len(sc.order) - 1; it >= 0; it-- {
			k := sc.order[it]
			if sc.area[k] <= 0 {
				continue
			}
			for n := 2; n >= 0; n-- {
				if s.EdgeFlags[3*k+n] {
					s.drawEdgeAdjoint(dst, tex, opts, fb.Err, grad, k, n)
				}
			}
		}
	}

	C := s.NbColors
	if opts.AntialiasError {
		for p, g := range grad.Err {
			for c := range C {
				i := C*p + c
				grad.Image[i] = -2 * (opts.Observed[i] - fb.Image[i]) * g
			}
		}
	}

	for it := len(sc.order) - 1; it >= 0; it-- {
		k := sc.order[it]
		if sc.behind[k] || !s.fillable(sc.area[k]) {
			continue
		}
		v, z := s.triangle(k)
		var vB [3][2]float64
		switch {
		case s.Textured[k] && s.Shaded[k]:
			uv, shade := s.triangleUV(k)
			var uvB [3][2]float64
			var shadeB [3]float64
			fillTexturedAdjoint(dst, grad.Image, tex, s.TextureB, &v, &vB, &z, &uv, &uvB, &shade, &shadeB)
			s.addTriangleUVB(k, &uvB, &shadeB)
		case !s.Textured[k]:
			f := s.Faces[3*k : 3*k+3]
			fillInterpolatedAdjoint(dst, grad.Image, &v, &vB, &z, s.vertexColors(f, s.Colors), s.vertexColors(f, s.ColorsB))
		default:
			continue
		}
		s.addTriangleIJB(k, &vB)
	}
	return nil
}

func (s *Scene) drawEdgeAdjoint(dst *canvas, tex textureView, opts Options, errBuf []float64, grad *OutputGradients, k, n int) {
	vs, v, z := s.edge(k, n)
	var vB [2][2]float64
	switch {
	case s.Textured[k] && s.Shaded[k]:
		uv, shade := s.edgeUV(k, n)
		var uvB [2][2]float64
		var shadeB [2]float64
		if opts.AntialiasError {
			edgeTexturedErrorAdjoint(dst, opts.Observed, errBuf, grad.Err, tex, s.TextureB, opts.Sigma, s.Clockwise, &v, &vB, &z, &uv, &uvB, &shade, &shadeB)
		} else {
			edgeTexturedAdjoint(dst, grad.Image, tex, s.TextureB, opts.Sigma, s.Clockwise, &v, &vB, &z, &uv, &uvB, &shade, &shadeB)
		}
		for i, corner := range edgeVertices[n] {
			t := s.FacesUV[3*k+corner]
			s.UVB[2*t] += uvB[i][0]
			s.UVB[2*t+1] += uvB[i][1]
			s.ShadeB[vs[i]] += shadeB[i]
		}
	default:
		colors := s.vertexColors(vs[:], s.Colors)
		colorsB := s.vertexColors(vs[:], s.ColorsB)
		if opts.AntialiasError {
			edgeInterpolatedErrorAdjoint(dst, opts.Observed, errBuf, grad.Err, opts.Sigma, s.Clockwise, &v, &vB, &z, colors, colorsB)
		} else {
			edgeInterpolatedAdjoint(dst, grad.Image, opts.Sigma, s.Clockwise, &v, &vB, &z, colors, colorsB)
		}
	}
	for i, vi := range vs {
		s.IJB[2*vi] += vB[i][0]
		s.IJB[2*vi+1] += vB[i][1]
	}
}

// Kernels accumulate into zeroed per-triangle locals which are then added to
// the global gradient arrays, so vertices shared between triangles (or
// repeated within one face) accumulate correctly.

func (s *Scene) addTriangleIJB(k int, vB *[3][2]float64) {
	for i, vi := range s.Faces[3*k : 3*k+3] {
		s.IJB[2*vi] += vB[i][0]
		s.IJB[2*vi+1] += vB[i][1]
	}
}

func (s *Scene) addTriangleUVB(k int, uvB *[3][2]float64, shadeB *[3]float64) {
	for i := range 3 {
		t := s.FacesUV[3*k+i]
		s.UVB[2*t] += uvB[i][0]
		s.UVB[2*t+1] += uvB[i][1]
		s.ShadeB[s.Faces[3*k+i]] += shadeB[i]
	}
}
