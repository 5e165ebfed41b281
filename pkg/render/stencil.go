package render

import (
	"math"

	"github.com/taigrr/diffrast/pkg/math3d"
)

// floorSat returns ⌊f⌋ saturated to [lo, hi]. NaN maps to lo.
func floorSat(f float64, lo, hi int) int {
	if !(f >= float64(lo)) {
		return lo
	}
	if f >= float64(hi) {
		return hi
	}
	return int(math.Floor(f))
}

// edgeEquation returns (a, b) such that the line through p and q is x = a·y + b.
func edgeEquation(p, q [2]float64) [2]float64 {
	a := (p[0] - q[0]) / (p[1] - q[1])
	return [2]float64{a, p[0] - a*p[1]}
}

// sortY returns the vertex indices ordered by increasing y.
func sortY(v *[3][2]float64) [3]int {
	order := [3]int{0, 1, 2}
	y := [3]float64{v[0][1], v[1][1], v[2][1]}
	if y[0] > y[1] {
		y[0], y[1] = y[1], y[0]
		order[0], order[1] = order[1], order[0]
	}
	if y[0] > y[2] {
		y[0], y[2] = y[2], y[0]
		order[0], order[2] = order[2], order[0]
	}
	if y[1] > y[2] {
		y[1], y[2] = y[2], y[1]
		order[1], order[2] = order[2], order[1]
	}
	return order
}

// triangleStencil holds the rasterization setup shared by the triangle
// kernels and their adjoints. A triangle is scanned as two halves split at
// its middle vertex; each half has its own rows and bounding edges.
type triangleStencil struct {
	baryToXY1 math3d.Mat3 // rows: x of each vertex, y of each vertex, ones
	xy1ToBary math3d.Mat3

	edges [3][2]float64 // x = a·y + b for (V0,V1), (V1,V2), (V2,V0)

	yBegin, yEnd [2]int
	left, right  [2]int
}

func newTriangleStencil(v *[3][2]float64, height int) triangleStencil {
	var s triangleStencil
	for vi := range 3 {
		for d := range 2 {
			s.baryToXY1[3*d+vi] = v[vi][d]
		}
		s.baryToXY1[6+vi] = 1
	}
	s.xy1ToBary = s.baryToXY1.Inverse()

	s.edges[0] = edgeEquation(v[0], v[1])
	s.edges[1] = edgeEquation(v[1], v[2])
	s.edges[2] = edgeEquation(v[2], v[0])

	order := sortY(v)
	y0, y1, y2 := v[order[0]][1], v[order[1]][1], v[order[2]][1]

	s.yBegin[0] = floorSat(y0, -1, height) + 1
	s.yEnd[0] = floorSat(y1, -1, height)
	s.yBegin[1] = floorSat(y1, -1, height) + 1
	s.yEnd[1] = floorSat(y2, -1, height)
	for h := range 2 {
		s.yBegin[h] = max(s.yBegin[h], 0)
		s.yEnd[h] = min(s.yEnd[h], height-1)
	}

	// The two edges meeting at the top vertex bound the upper half, the two
	// meeting at the bottom vertex bound the lower half.
	id := order[0]
	if s.edges[id][0] < s.edges[(id+2)%3][0] {
		s.left[0], s.right[0] = id, (id+2)%3
	} else {
		s.left[0], s.right[0] = (id+2)%3, id
	}
	id = order[2]
	if s.edges[id][0] < s.edges[(id+2)%3][0] {
		s.left[1], s.right[1] = (id+2)%3, id
	} else {
		s.left[1], s.right[1] = id, (id+2)%3
	}
	return s
}

// xRange returns the inclusive pixel span of row y in half h, clipped to the
// image. The span is empty when xEnd < xBegin.
func (s *triangleStencil) xRange(h, y, width int) (xBegin, xEnd int) {
	l := s.edges[s.left[h]]
	r := s.edges[s.right[h]]
	lx := l[0]*float64(y) + l[1]
	rx := r[0]*float64(y) + r[1]
	if math.IsNaN(lx) || math.IsNaN(rx) {
		return 0, -1
	}
	xBegin = max(0, 1+floorSat(lx, -2, width))
	xEnd = min(width-1, floorSat(rx, -1, width))
	return xBegin, xEnd
}

// edgeStencil is the parallelogram of width sigma swept outward from a
// silhouette edge. Pixel (x, y) maps linearly to two coordinates along the
// edge and to a transparency T that is 0 on the edge line and 1 at distance
// sigma.
type edgeStencil struct {
	xy1ToBary   [6]float64
	xy1ToTransp [3]float64

	// Half-planes a·x + b·y + c ≥ 0 bounding the parallelogram. Rows with a
	// non-zero x coefficient are scaled so that |a| = 1.
	ineq [4][3]float64

	yBegin, yEnd int
}

// edgeNormal returns the unnormalised outward normal of the edge v0→v1.
func edgeNormal(v *[2][2]float64, clockwise bool) [2]float64 {
	if clockwise {
		return [2]float64{v[0][1] - v[1][1], v[1][0] - v[0][0]}
	}
	return [2]float64{v[1][1] - v[0][1], v[0][0] - v[1][0]}
}

// edgeToXY1 builds the matrix whose columns are the two vertices and the
// unit normal as a direction.
func edgeToXY1(v *[2][2]float64, n [2]float64) math3d.Mat3 {
	var m math3d.Mat3
	for vi := range 2 {
		for d := range 2 {
			m[3*d+vi] = v[vi][d]
		}
		m[6+vi] = 1
	}
	m[2] = n[0]
	m[5] = n[1]
	m[8] = 0
	return m
}

// newEdgeStencil sets up the stencil of edge v. It reports false for a
// zero-length edge, which has no normal and renders nothing.
func newEdgeStencil(v *[2][2]float64, height int, sigma float64, clockwise bool) (edgeStencil, bool) {
	var s edgeStencil
	nt := edgeNormal(v, clockwise)
	norm := math.Sqrt(nt[0]*nt[0] + nt[1]*nt[1])
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return s, false
	}
	n := [2]float64{nt[0] / norm, nt[1] / norm}

	xy1ToEdge := edgeToXY1(v, n).Inverse()
	copy(s.xy1ToBary[:], xy1ToEdge[:6])
	for k := range 3 {
		s.xy1ToTransp[k] = xy1ToEdge[6+k] / sigma
	}

	for k := range 2 {
		copy(s.ineq[k][:], s.xy1ToBary[3*k:3*k+3])
	}
	copy(s.ineq[2][:], s.xy1ToTransp[:])
	s.ineq[3] = [3]float64{-s.xy1ToTransp[0], -s.xy1ToTransp[1], 1 - s.xy1ToTransp[2]}
	for k := range s.ineq {
		if a := math.Abs(s.ineq[k][0]); a != 0 {
			for j := range 3 {
				s.ineq[k][j] /= a
			}
		}
	}

	s.yBegin = height
	s.yEnd = -1
	for k := range 2 {
		s.yBegin = min(s.yBegin, floorSat(v[k][1]-sigma, -1, height)+1)
		s.yEnd = max(s.yEnd, floorSat(v[k][1]+sigma, -1, height))
	}
	s.yBegin = max(s.yBegin, 0)
	s.yEnd = min(s.yEnd, height-1)
	return s, true
}

// xRange intersects the stencil half-planes with row y. The span is empty
// when xEnd < xBegin.
func (s *edgeStencil) xRange(y, width int) (xBegin, xEnd int) {
	xBegin, xEnd = 0, width-1
	fy := float64(y)
	for _, q := range s.ineq {
		c := q[1]*fy + q[2]
		switch {
		case math.IsNaN(c):
			return 0, -1
		case q[0] < 0:
			xEnd = min(xEnd, floorSat(c, -1, width))
		case q[0] > 0:
			xBegin = max(xBegin, 1+floorSat(-c, -2, width))
		case c < 0:
			// Edge parallel to the row: the whole row is on the wrong side.
			return 0, -1
		}
	}
	return xBegin, xEnd
}

// edgeStencilAdjoint accumulates into vB the gradient of the edge vertices
// given the gradients of the pixel-to-edge and pixel-to-transparency maps.
func edgeStencilAdjoint(v *[2][2]float64, vB *[2][2]float64, sigma float64, clockwise bool, baryB *[6]float64, transpB *[3]float64) {
	nt := edgeNormal(v, clockwise)
	invNorm := 1 / math.Sqrt(nt[0]*nt[0]+nt[1]*nt[1])
	n := [2]float64{nt[0] * invNorm, nt[1] * invNorm}
	m := edgeToXY1(v, n)

	var xy1ToEdgeB, mB math3d.Mat3
	for k := range 3 {
		xy1ToEdgeB[6+k] += transpB[k] / sigma
	}
	for k := range 6 {
		xy1ToEdgeB[k] += baryB[k]
	}
	math3d.InverseAdjoint(m, &mB, xy1ToEdgeB)

	for vi := range 2 {
		for d := range 2 {
			vB[vi][d] += mB[3*d+vi]
		}
	}
	nB := [2]float64{mB[2], mB[5]}

	var ntB [2]float64
	invNormB := 0.0
	for k := range 2 {
		ntB[k] += nB[k] * invNorm
		invNormB += nB[k] * nt[k]
	}
	normB := -invNormB * invNorm * invNorm
	sqB := normB * 0.5 * invNorm
	ntB[0] += 2 * nt[0] * sqB
	ntB[1] += 2 * nt[1] * sqB

	if clockwise {
		vB[0][1] += ntB[0]
		vB[1][1] -= ntB[0]
		vB[1][0] += ntB[1]
		vB[0][0] -= ntB[1]
	} else {
		vB[0][1] -= ntB[0]
		vB[1][1] += ntB[0]
		vB[1][0] -= ntB[1]
		vB[0][0] += ntB[1]
	}
}
