package render

import "github.com/taigrr/diffrast/pkg/math3d"

// Edge kernels blend a silhouette edge into what is already drawn:
//
//	cur = T·cur + (1-T)·new
//
// where T ramps from 0 on the edge line to 1 at distance sigma outward. The
// depth buffer is read, never written.
//
// The adjoints undo each blend in place by dividing by T. A pixel with T = 0
// lies exactly on the edge line and was overwritten outright, so its prior
// value cannot be restored: the adjoint leaves it as drawn, passes the full
// gradient to the edge colour and none to the layers below or to T.
//
// The error variants blend the squared distance to an observed image into a
// per-pixel error buffer instead of blending colour.

// edgeDepth returns the pixel-to-depth map of an edge.
func edgeDepth(st *edgeStencil, z *[2]float64) [3]float64 {
	var m [3]float64
	math3d.MulMat(1, 2, 3, m[:], z[:], st.xy1ToBary[:])
	return m
}

// edgeInterpolated blends an edge whose colour interpolates the two endpoint
// colours.
func edgeInterpolated(dst *canvas, sigma float64, clockwise bool, v *[2][2]float64, z *[2]float64, colors [][]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	xy1ToZ := edgeDepth(&st, z)
	xy1ToA := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	a0y := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		math3d.MulNx3Vec(a0y, xy1ToA, t)
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		z0y := math3d.Dot3(xy1ToZ[:], t[:])

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			for k := range C {
				dst.image[C*idx+k] = T*dst.image[C*idx+k] + (1-T)*(a0y[k]+xy1ToA[3*k]*fx)
			}
		}
	}
}

// edgeInterpolatedAdjoint reverses edgeInterpolated: it restores the image to
// its state before the edge was blended, scales imageB for the layers below,
// and accumulates vertex and colour gradients.
func edgeInterpolatedAdjoint(dst *canvas, imageB []float64, sigma float64, clockwise bool, v, vB *[2][2]float64, z *[2]float64, colors, colorsB [][]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	tIncB := 0.0
	var baryB [6]float64
	var transpB [3]float64
	xy1ToZ := edgeDepth(&st, z)
	xy1ToA := make([]float64, 3*C)
	xy1ToAB := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	a0y := make([]float64, C)
	a0yB := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		math3d.MulNx3Vec(a0y, xy1ToA, t)
		clear(a0yB)
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		t0yB := 0.0
		z0y := math3d.Dot3(xy1ToZ[:], t[:])

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			TB := 0.0
			for k := range C {
				i := C*idx + k
				A := a0y[k] + xy1ToA[3*k]*fx
				g := imageB[i]
				AB := (1 - T) * g
				if T > 0 {
					TB -= g * A
					dst.image[i] = (dst.image[i] - (1-T)*A) / T
					TB += g * dst.image[i]
				}
				imageB[i] = g * T

				a0yB[k] += AB
				xy1ToAB[3*k] += AB * fx
			}
			t0yB += TB
			tIncB += TB * fx
		}
		math3d.MulNx3VecAdjoint(a0yB, xy1ToAB, t)
		for k := range 3 {
			transpB[k] += t0yB * t[k]
		}
	}

	attributeMapAdjoint(xy1ToAB, colors, colorsB, st.xy1ToBary[:], baryB[:])
	transpB[0] += tIncB
	edgeStencilAdjoint(v, vB, sigma, clockwise, &baryB, &transpB)
}

// edgeTextured blends a textured, Gouraud-shaded edge.
func edgeTextured(dst *canvas, tex textureView, sigma float64, clockwise bool, v *[2][2]float64, z *[2]float64, uv *[2][2]float64, shade *[2]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	xy1ToZ := edgeDepth(&st, z)
	var xy1ToL [3]float64
	math3d.MulMat(1, 2, 3, xy1ToL[:], shade[:], st.xy1ToBary[:])
	var xy1ToUV [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:]}, st.xy1ToBary[:])
	A := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		z0y := math3d.Dot3(xy1ToZ[:], t[:])
		l0y := math3d.Dot3(xy1ToL[:], t[:])
		var uv0y [2]float64
		math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			L := l0y + xy1ToL[0]*fx
			p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
			bilinearSample(A, tex, p)
			for k := range C {
				dst.image[C*idx+k] = T*dst.image[C*idx+k] + (1-T)*A[k]*L
			}
		}
	}
}

// edgeTexturedAdjoint reverses edgeTextured.
func edgeTexturedAdjoint(dst *canvas, imageB []float64, tex textureView, texB []float64, sigma float64, clockwise bool, v, vB *[2][2]float64, z *[2]float64, uv, uvB *[2][2]float64, shade, shadeB *[2]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	tIncB := 0.0
	var baryB [6]float64
	var transpB [3]float64
	xy1ToZ := edgeDepth(&st, z)
	var xy1ToL, xy1ToLB [3]float64
	math3d.MulMat(1, 2, 3, xy1ToL[:], shade[:], st.xy1ToBary[:])
	var xy1ToUV, xy1ToUVB [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:]}, st.xy1ToBary[:])
	A := make([]float64, C)
	AB := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		t0yB := 0.0
		z0y := math3d.Dot3(xy1ToZ[:], t[:])
		l0y := math3d.Dot3(xy1ToL[:], t[:])
		l0yB := 0.0
		var uv0y, uv0yB [2]float64
		math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			L := l0y + xy1ToL[0]*fx
			p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
			bilinearSample(A, tex, p)

			TB, LB := 0.0, 0.0
			for k := range C {
				i := C*idx + k
				g := imageB[i]
				AB[k] = L * (1 - T) * g
				LB += g * (1 - T) * A[k]
				if T > 0 {
					TB -= g * A[k] * L
					dst.image[i] = (dst.image[i] - (1-T)*A[k]*L) / T
					TB += g * dst.image[i]
				}
				imageB[i] = g * T
			}
			var pB [2]float64
			bilinearSampleAdjoint(AB, tex, texB, p, &pB)

			for k := range 2 {
				uv0yB[k] += pB[k]
				xy1ToUVB[3*k] += pB[k] * fx
			}
			l0yB += LB
			xy1ToLB[0] += LB * fx
			t0yB += TB
			tIncB += TB * fx
		}
		for k := range 3 {
			transpB[k] += t0yB * t[k]
		}
		math3d.MulNx3VecAdjoint(uv0yB[:], xy1ToUVB[:], t)
		math3d.Dot3Adjoint(l0yB, xy1ToLB[:], t[:])
	}

	attributeMapAdjoint(xy1ToUVB[:],
		[][]float64{uv[0][:], uv[1][:]},
		[][]float64{uvB[0][:], uvB[1][:]},
		st.xy1ToBary[:], baryB[:])
	math3d.MulMatAdjoint(1, 2, 3, xy1ToLB[:], shade[:], shadeB[:], st.xy1ToBary[:], baryB[:])
	transpB[0] += tIncB
	edgeStencilAdjoint(v, vB, sigma, clockwise, &baryB, &transpB)
}

// squaredError returns Σ_k (a[k] − b[k])².
func squaredError(a, b []float64) float64 {
	var s float64
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}

// edgeInterpolatedError blends the squared error of an interpolated edge
// against obs into errBuf.
func edgeInterpolatedError(dst *canvas, obs, errBuf []float64, sigma float64, clockwise bool, v *[2][2]float64, z *[2]float64, colors [][]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	xy1ToZ := edgeDepth(&st, z)
	xy1ToA := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	a0y := make([]float64, C)
	A := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		math3d.MulNx3Vec(a0y, xy1ToA, t)
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		z0y := math3d.Dot3(xy1ToZ[:], t[:])

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			for k := range C {
				A[k] = a0y[k] + xy1ToA[3*k]*fx
			}
			e := squaredError(A, obs[C*idx:C*idx+C])
			errBuf[idx] = T*errBuf[idx] + (1-T)*e
		}
	}
}

// edgeInterpolatedErrorAdjoint reverses edgeInterpolatedError, restoring
// errBuf and scaling errB in place.
func edgeInterpolatedErrorAdjoint(dst *canvas, obs, errBuf, errB []float64, sigma float64, clockwise bool, v, vB *[2][2]float64, z *[2]float64, colors, colorsB [][]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	tIncB := 0.0
	var baryB [6]float64
	var transpB [3]float64
	xy1ToZ := edgeDepth(&st, z)
	xy1ToA := make([]float64, 3*C)
	xy1ToAB := make([]float64, 3*C)
	attributeMap(xy1ToA, colors, st.xy1ToBary[:])
	a0y := make([]float64, C)
	a0yB := make([]float64, C)
	A := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		math3d.MulNx3Vec(a0y, xy1ToA, t)
		clear(a0yB)
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		t0yB := 0.0
		z0y := math3d.Dot3(xy1ToZ[:], t[:])

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			for k := range C {
				A[k] = a0y[k] + xy1ToA[3*k]*fx
			}
			o := obs[C*idx : C*idx+C]
			e := squaredError(A, o)

			g := errB[idx]
			eB := (1 - T) * g
			TB := 0.0
			if T > 0 {
				TB = -e * g
				errBuf[idx] = (errBuf[idx] - (1-T)*e) / T
				TB += g * errBuf[idx]
			}
			errB[idx] = g * T

			for k := range C {
				diffB := 2 * (A[k] - o[k]) * eB
				a0yB[k] += diffB
				xy1ToAB[3*k] += diffB * fx
			}
			t0yB += TB
			tIncB += TB * fx
		}
		math3d.MulNx3VecAdjoint(a0yB, xy1ToAB, t)
		for k := range 3 {
			transpB[k] += t0yB * t[k]
		}
	}

	attributeMapAdjoint(xy1ToAB, colors, colorsB, st.xy1ToBary[:], baryB[:])
	transpB[0] += tIncB
	edgeStencilAdjoint(v, vB, sigma, clockwise, &baryB, &transpB)
}

// edgeTexturedError blends the squared error of a textured edge against obs
// into errBuf.
func edgeTexturedError(dst *canvas, obs, errBuf []float64, tex textureView, sigma float64, clockwise bool, v *[2][2]float64, z *[2]float64, uv *[2][2]float64, shade *[2]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	xy1ToZ := edgeDepth(&st, z)
	var xy1ToL [3]float64
	math3d.MulMat(1, 2, 3, xy1ToL[:], shade[:], st.xy1ToBary[:])
	var xy1ToUV [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:]}, st.xy1ToBary[:])
	A := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		z0y := math3d.Dot3(xy1ToZ[:], t[:])
		l0y := math3d.Dot3(xy1ToL[:], t[:])
		var uv0y [2]float64
		math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			L := l0y + xy1ToL[0]*fx
			p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
			bilinearSample(A, tex, p)
			for k := range C {
				A[k] *= L
			}
			e := squaredError(A, obs[C*idx:C*idx+C])
			errBuf[idx] = T*errBuf[idx] + (1-T)*e
		}
	}
}

// edgeTexturedErrorAdjoint reverses edgeTexturedError.
func edgeTexturedErrorAdjoint(dst *canvas, obs, errBuf, errB []float64, tex textureView, texB []float64, sigma float64, clockwise bool, v, vB *[2][2]float64, z *[2]float64, uv, uvB *[2][2]float64, shade, shadeB *[2]float64) {
	st, ok := newEdgeStencil(v, dst.height, sigma, clockwise)
	if !ok {
		return
	}
	C := dst.channels
	tInc := st.xy1ToTransp[0]
	tIncB := 0.0
	var baryB [6]float64
	var transpB [3]float64
	xy1ToZ := edgeDepth(&st, z)
	var xy1ToL, xy1ToLB [3]float64
	math3d.MulMat(1, 2, 3, xy1ToL[:], shade[:], st.xy1ToBary[:])
	var xy1ToUV, xy1ToUVB [6]float64
	attributeMap(xy1ToUV[:], [][]float64{uv[0][:], uv[1][:]}, st.xy1ToBary[:])
	A := make([]float64, C)
	AB := make([]float64, C)

	for y := st.yBegin; y <= st.yEnd; y++ {
		t := [3]float64{0, float64(y), 1}
		t0y := math3d.Dot3(st.xy1ToTransp[:], t[:])
		t0yB := 0.0
		z0y := math3d.Dot3(xy1ToZ[:], t[:])
		l0y := math3d.Dot3(xy1ToL[:], t[:])
		l0yB := 0.0
		var uv0y, uv0yB [2]float64
		math3d.MulNx3Vec(uv0y[:], xy1ToUV[:], t)

		xBegin, xEnd := st.xRange(y, dst.width)
		for x := xBegin; x <= xEnd; x++ {
			idx := y*dst.width + x
			fx := float64(x)
			if z0y+xy1ToZ[0]*fx >= dst.depth[idx] {
				continue
			}
			T := t0y + tInc*fx
			L := l0y + xy1ToL[0]*fx
			p := [2]float64{uv0y[0] + xy1ToUV[0]*fx, uv0y[1] + xy1ToUV[3]*fx}
			bilinearSample(A, tex, p)
			o := obs[C*idx : C*idx+C]
			var e float64
			for k := range C {
				d := A[k]*L - o[k]
				e += d * d
			}

			g := errB[idx]
			eB := (1 - T) * g
			TB := 0.0
			if T > 0 {
				TB = -e * g
				errBuf[idx] = (errBuf[idx] - (1-T)*e) / T
				TB += g * errBuf[idx]
			}
			errB[idx] = g * T

			LB := 0.0
			for k := range C {
				diffB := 2 * (A[k]*L - o[k]) * eB
				AB[k] = diffB * L
				LB += diffB * A[k]
			}
			var pB [2]float64
			bilinearSampleAdjoint(AB, tex, texB, p, &pB)

			for k := range 2 {
				uv0yB[k] += pB[k]
				xy1ToUVB[3*k] += pB[k] * fx
			}
			l0yB += LB
			xy1ToLB[0] += LB * fx
			t0yB += TB
			tIncB += TB * fx
		}
		for k := range 3 {
			transpB[k] += t0yB * t[k]
		}
		math3d.MulNx3VecAdjoint(uv0yB[:], xy1ToUVB[:], t)
		math3d.Dot3Adjoint(l0yB, xy1ToLB[:], t[:])
	}

	attributeMapAdjoint(xy1ToUVB[:],
		[][]float64{uv[0][:], uv[1][:]},
		[][]float64{uvB[0][:], uvB[1][:]},
		st.xy1ToBary[:], baryB[:])
	math3d.MulMatAdjoint(1, 2, 3, xy1ToLB[:], shade[:], shadeB[:], st.xy1ToBary[:], baryB[:])
	transpB[0] += tIncB
	edgeStencilAdjoint(v, vB, sigma, clockwise, &baryB, &transpB)
}
