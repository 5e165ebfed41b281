package math3d

// Dense helpers over flat row-major slices. The adjoint variants accumulate
// into the supplied gradient buffers and never clear them.

// MulNx3Vec sets r[i] = Σ_j m[3i+j]·v[j] for the first len(r) rows of m.
func MulNx3Vec(r, m []float64, v [3]float64) {
	for i := range r {
		r[i] = m[3*i]*v[0] + m[3*i+1]*v[1] + m[3*i+2]*v[2]
	}
}

// MulNx3VecAdjoint accumulates mB[3i+j] += rB[i]·v[j].
func MulNx3VecAdjoint(rB, mB []float64, v [3]float64) {
	for i := range rB {
		for j := range 3 {
			mB[3*i+j] += rB[i] * v[j]
		}
	}
}

// MulMat sets ab = a·b where a is I×J and b is J×K.
func MulMat(I, J, K int, ab, a, b []float64) {
	for i := range I {
		for k := range K {
			var sum float64
			for j := range J {
				sum += a[i*J+j] * b[j*K+k]
			}
			ab[K*i+k] = sum
		}
	}
}

// MulMatAdjoint accumulates the gradients of ab = a·b into aB and bB.
func MulMatAdjoint(I, J, K int, abB, a, aB, b, bB []float64) {
	for i := range I {
		for k := range K {
			g := abB[K*i+k]
			for j := range J {
				aB[i*J+j] += g * b[j*K+k]
				bB[j*K+k] += g * a[i*J+j]
			}
		}
	}
}

// Dot3 returns the dot product of the first three entries of a and b.
func Dot3(a, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Dot3Adjoint accumulates aB[i] += rB·b[i].
func Dot3Adjoint(rB float64, aB, b []float64) {
	for i := range 3 {
		aB[i] += rB * b[i]
	}
}
