package render

import "github.com/taigrr/diffrast/pkg/math3d"

// canvas is what a kernel draws into: a channel-interleaved image and the
// matching depth buffer.
type canvas struct {
	image    []float64
	depth    []float64
	width    int
	height   int
	channels int
}

// attributeMap composes per-vertex attribute vectors with a pixel-to-vertex
// weight matrix: m[3i+j] = Σ_k attr[k][i]·w[3k+j].
func attributeMap(m []float64, attr [][]float64, w []float64) {
	for i := range len(m) / 3 {
		for j := range 3 {
			var sum float64
			for k := range attr {
				sum += attr[k][i] * w[3*k+j]
			}
			m[3*i+j] = sum
		}
	}
}

// attributeMapAdjoint accumulates the gradients of attributeMap.
func attributeMapAdjoint(mB []float64, attr, attrB [][]float64, w, wB []float64) {
	for i := range len(mB) / 3 {
		for j := range 3 {
			g := mB[3*i+j]
			for k := range attr {
				attrB[k][i] += g * w[3*k+j]
				wB[3*k+j] += g * attr[k][i]
			}
		}
	}
}

// fillInterpolated rasterizes a triangle whose colour is the barycentric
// interpolation of per-vertex colours, with a strict less-than depth test.
func fillInterpolated(dst *canvas, v *[3][2]float64, z *[3]float64, colors [][]float64) {
	st := newTriangleStencil(v, dst.height)
	C := dst.channels

	xy1ToA := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	xy1ToZ := st.xy1ToBary.VecMul(*z)
	a0y := make([]float64, C)

	for h := range 2 {
		for y := st.yBegin[h]; y <= st.yEnd[h]; y++ {
			t := [3]float64{0, float64(y), 1}
			math3d.MulNx3Vec(a0y, xy1ToA, t)
			z0y := math3d.Dot3(xy1ToZ[:], t[:])

			xBegin, xEnd := st.xRange(h, y, dst.width)
			for x := xBegin; x <= xEnd; x++ {
				idx := y*dst.width + x
				fx := float64(x)
				Z := z0y + xy1ToZ[0]*fx
				if Z < dst.depth[idx] {
					dst.depth[idx] = Z
					for k := range C {
						dst.image[C*idx+k] = a0y[k] + xy1ToA[3*k]*fx
					}
				}
			}
		}
	}
}

// fillInterpolatedAdjoint back-propagates imageB through the pixels this
// triangle owns (depth equal to its own), consuming and clearing imageB there.
func fillInterpolatedAdjoint(dst *canvas, imageB []float64, v, vB *[3][2]float64, z *[3]float64, colors, colorsB [][]float64) {
	st := newTriangleStencil(v, dst.height)
	C := dst.channels

	xy1ToA := make([]float64, 3*C)
	xy1ToAB := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	xy1ToZ := st.xy1ToBary.VecMul(*z)
	a0yB := make([]float64, C)

	for h := range 2 {
		for y := st.yBegin[h]; y <= st.yEnd[h]; y++ {
			t := [3]float64{0, float64(y), 1}
			clear(a0yB)
			z0y := math3d.Dot3(xy1ToZ[:], t[:])

			xBegin, xEnd := st.xRange(h, y, dst.width)
			for x := xBegin; x <= xEnd; x++ {
				idx := y*dst.width + x
				fx := float64(x)
				Z := z0y + xy1ToZ[0]*fx
				if Z != dst.depth[idx] {
					continue
				}
				for k := range C {
					g := imageB[C*idx+k]
					a0yB[k] += g
					xy1ToAB[3*k] += g * fx
					imageB[C*idx+k] = 0
				}
			}
			math3d.MulNx3VecAdjoint(a0yB, xy1ToAB, t)
		}
	}

	var baryB, baryToXY1B math3d.Mat3
	attributeMapAdjoint(xy1ToAB, colors, colorsB, st.xy1ToBary[:], baryB[:])
	math3d.InverseAdjoint(st.baryToXY1, &baryToXY1B, baryB)
	for vi := range 3 {
		for d := range 2 {
			vB[vi][d] += baryToXY1B[3*d+vi]
		}
	}
}

// fillTextured rasterizes a Gouraud-shaded textured triangle: each pixel is
// the bilinear texture sample at the interpolated UV times the interpolated
// shade.
func fillTextured(dst *canvas, tex textureView, v *[3][2]float64, z *[3]float64, uv *[3][2]float64, shade *[3]float64) {
	st := newTriangleStencil(v, dst.height)
	C := dst.channels

	var xy1ToUV [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:], uv[2][:]}, st.xy1ToBary[:])
	xy1ToL := st.xy1ToBary.VecMul(*shade)
	xy1ToZ := st.xy1ToBary.VecMul(*z)
	A := make([]float64, C)

	for h := range 2 {
		for y := st.yBegin[h]; y <= st.yEnd[h]; y++ {
			t := [3]float64{0, float64(y), 1}
			var uv0y [2]float64
			math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)
			l0y := math3d.Dot3(xy1ToL[:], t[:])
			z0y := math3d.Dot3(xy1ToZ[:], t[:])

			xBegin, xEnd := st.xRange(h, y, dst.width)
			for x := xBegin; x <= xEnd; x++ {
				idx := y*dst.width + x
				fx := float64(x)
				Z := z0y + xy1ToZ[0]*fx
				if Z >= dst.depth[idx] {
					continue
				}
				dst.depth[idx] = Z
				L := l0y + xy1ToL[0]*fx
				p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
				bilinearSample(A, tex, p)
				for k := range C {
					dst.image[C*idx+k] = A[k] * L
				}
			}
		}
	}
}

// fillTexturedAdjoint is the adjoint of fillTextured.
func fillTexturedAdjoint(dst *canvas, imageB []float64, tex textureView, texB []float64, v, vB *[3][2]float64, z *[3]float64, uv, uvB *[3][2]float64, shade, shadeB *[3]float64) {
	st := newTriangleStencil(v, dst.height)
	C := dst.channels

	var xy1ToUV, xy1ToUVB [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:], uv[2][:]}, st.xy1ToBary[:])
	xy1ToL := st.xy1ToBary.VecMul(*shade)
	var xy1ToLB [3]float64
	xy1ToZ := st.xy1ToBary.VecMul(*z)
	A := make([]float64, C)
	AB := make([]float64, C)

	for h := range 2 {
		for y := st.yBegin[h]; y <= st.yEnd[h]; y++ {
			t := [3]float64{0, float64(y), 1}
			var uv0y, uv0yB [2]float64
			math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)
			l0y := math3d.Dot3(xy1ToL[:], t[:])
			l0yB := 0.0
			z0y := math3d.Dot3(xy1ToZ[:], t[:])

			xBegin, xEnd := st.xRange(h, y, dst.width)
			for x := xBegin; x <= xEnd; x++ {
				idx := y*dst.width + x
				fx := float64(x)
				Z := z0y + xy1ToZ[0]*fx
				if Z != dst.depth[idx] {
					continue
				}
				L := l0y + xy1ToL[0]*fx
				p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
				bilinearSample(A, tex, p)

				LB := 0.0
				for k := range C {
					g := imageB[C*idx+k]
					AB[k] = g * L
					LB += g * A[k]
					imageB[C*idx+k] = 0
				}
				var pB [2]float64
				bilinearSampleAdjoint(AB, tex, texB, p, &pB)

				for k := range 2 {
					uv0yB[k] += pB[k]
					xy1ToUVB[3*k] += pB[k] * fx
				}
				l0yB += LB
				xy1ToLB[0] += LB * fx
			}
			math3d.MulNx3VecAdjoint(uv0yB[:], xy1ToUVB[:], t)
			math3d.Dot3Adjoint(l0yB, xy1ToLB[:], t[:])
		}
	}

	var baryB, baryToXY1B math3d.Mat3
	attributeMapAdjoint(xy1ToUVB[:],
		[][]float64{uv[0][:], uv[1][:], uv[2][:]},
		[][]float64{uvB[0][:], uvB[1][:], uvB[2][:]},
		st.xy1ToBary[:], baryB[:])
	math3d.VecMulAdjoint(xy1ToLB, *shade, shadeB, st.xy1ToBary, &baryB)
	math3d.InverseAdjoint(st.baryToXY1, &baryToXY1B, baryB)
	for vi := range 3 {
		for d := range 2 {
			vB[vi][d] += baryToXY1B[3*d+vi]
		}
	}
}
