package math3d

// Mat3 is a 3x3 matrix stored in row-major order.
//
// Memory layout (indices):
// | 0 1 2 |
// | 3 4 5 |
// | 6 7 8 |
//
// Unlike Mat4 the layout is row-major because the rasterizer builds these
// matrices row by row from screen-space vertex coordinates.
type Mat3 [9]float64

// cofactors returns the transposed cofactor matrix of s.
func (s Mat3) cofactors() Mat3 {
	var t Mat3
	t[0] = s[4]*s[8] - s[7]*s[5]
	t[3] = -(s[3]*s[8] - s[6]*s[5])
	t[6] = s[3]*s[7] - s[6]*s[4]
	t[1] = -(s[1]*s[8] - s[7]*s[2])
	t[4] = s[0]*s[8] - s[6]*s[2]
	t[7] = -(s[0]*s[7] - s[6]*s[1])
	t[2] = s[1]*s[5] - s[4]*s[2]
	t[5] = -(s[0]*s[5] - s[3]*s[2])
	t[8] = s[0]*s[4] - s[3]*s[1]
	return t
}

// Determinant returns the determinant of the matrix.
func (s Mat3) Determinant() float64 {
	t := s.cofactors()
	return s[0]*t[0] + s[1]*t[3] + s[2]*t[6]
}

// Inverse returns the inverse of the matrix.
// A singular matrix yields non-finite entries; callers that can meet
// degenerate input check the determinant first.
func (s Mat3) Inverse() Mat3 {
	t := s.cofactors()
	invDet := 1 / (s[0]*t[0] + s[1]*t[3] + s[2]*t[6])
	for k := range t {
		t[k] *= invDet
	}
	return t
}

// InverseAdjoint accumulates into sB the gradient with respect to s given
// the gradient tB of its inverse.
func InverseAdjoint(s Mat3, sB *Mat3, tB Mat3) {
	tp := s.cofactors()
	invDet := 1 / (s[0]*tp[0] + s[1]*tp[3] + s[2]*tp[6])

	var tpB Mat3
	invDetB := 0.0
	for k := range tp {
		invDetB += tp[k] * tB[k]
		tpB[k] += invDet * tB[k]
	}
	detB := -invDetB * invDet * invDet

	sB[0] += tp[0] * detB
	tpB[0] += s[0] * detB
	sB[1] += tp[3] * detB
	tpB[3] += s[1] * detB
	sB[2] += tp[6] * detB
	tpB[6] += s[2] * detB

	// tp[0] = s4*s8 - s7*s5
	sB[4] += s[8] * tpB[0]
	sB[8] += s[4] * tpB[0]
	sB[7] -= s[5] * tpB[0]
	sB[5] -= s[7] * tpB[0]

	// tp[3] = -(s3*s8 - s6*s5)
	sB[3] -= s[8] * tpB[3]
	sB[8] -= s[3] * tpB[3]
	sB[6] += s[5] * tpB[3]
	sB[5] += s[6] * tpB[3]

	// tp[6] = s3*s7 - s6*s4
	sB[3] += s[7] * tpB[6]
	sB[7] += s[3] * tpB[6]
	sB[6] -= s[4] * tpB[6]
	sB[4] -= s[6] * tpB[6]

	// tp[1] = -(s1*s8 - s7*s2)
	sB[1] -= s[8] * tpB[1]
	sB[8] -= s[1] * tpB[1]
	sB[7] += s[2] * tpB[1]
	sB[2] += s[7] * tpB[1]

	// tp[4] = s0*s8 - s6*s2
	sB[0] += s[8] * tpB[4]
	sB[8] += s[0] * tpB[4]
	sB[6] -= s[2] * tpB[4]
	sB[2] -= s[6] * tpB[4]

	// tp[7] = -(s0*s7 - s6*s1)
	sB[0] -= s[7] * tpB[7]
	sB[7] -= s[0] * tpB[7]
	sB[6] += s[1] * tpB[7]
	sB[1] += s[6] * tpB[7]

	// tp[2] = s1*s5 - s4*s2
	sB[1] += s[5] * tpB[2]
	sB[5] += s[1] * tpB[2]
	sB[4] -= s[2] * tpB[2]
	sB[2] -= s[4] * tpB[2]

	// tp[5] = -(s0*s5 - s3*s2)
	sB[0] -= s[5] * tpB[5]
	sB[5] -= s[0] * tpB[5]
	sB[3] += s[2] * tpB[5]
	sB[2] += s[3] * tpB[5]

	// tp[8] = s0*s4 - s3*s1
	sB[0] += s[4] * tpB[8]
	sB[4] += s[0] * tpB[8]
	sB[3] -= s[1] * tpB[8]
	sB[1] -= s[3] * tpB[8]
}

// VecMul returns the row vector product v·m, that is r[i] = Σ_j m[3j+i]·v[j].
func (m Mat3) VecMul(v [3]float64) [3]float64 {
	var r [3]float64
	for i := range 3 {
		for j := range 3 {
			r[i] += m[3*j+i] * v[j]
		}
	}
	return r
}

// VecMulAdjoint accumulates the gradients of v·m into vB and mB given rB.
func VecMulAdjoint(rB, v [3]float64, vB *[3]float64, m Mat3, mB *Mat3) {
	for i := range 3 {
		for j := range 3 {
			mB[3*j+i] += rB[i] * v[j]
			vB[j] += rB[i] * m[3*j+i]
		}
	}
}
