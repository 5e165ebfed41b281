package render

import "math"

// textureView addresses a channel-interleaved texture whose u axis is
// contiguous: texel (u, v) channel c lives at data[C*(v*width+u)+c].
type textureView struct {
	data     []float64
	width    int
	height   int
	channels int
}

func (s *Scene) texView() textureView {
	return textureView{data: s.Texture, width: s.TextureWidth, height: s.TextureHeight, channels: s.NbColors}
}

// bilinearCell locates the 2x2 texel cell used to sample p. Points outside
// the texture are clamped to the border cell with the fraction pinned to 0 or
// 1, and the axis is reported as out.
func (t textureView) bilinearCell(p [2]float64) (fp [2]int, e [2]float64, out [2]bool) {
	size := [2]int{t.width, t.height}
	for k := range 2 {
		f := math.Floor(p[k])
		switch {
		case !(f >= 0):
			fp[k], e[k], out[k] = 0, 0, true
		case f > float64(size[k]-2):
			fp[k], e[k], out[k] = size[k]-2, 1, true
		default:
			fp[k] = int(f)
			e[k] = p[k] - f
		}
	}
	return fp, e, out
}

// indices returns the offsets of texels (0,0), (1,0), (0,1), (1,1) of the cell.
func (t textureView) indices(fp [2]int) (i00, i10, i01, i11 int) {
	c := t.channels
	i00 = c * (fp[0] + t.width*fp[1])
	i10 = c * (fp[0] + 1 + t.width*fp[1])
	i01 = c * (fp[0] + t.width*(fp[1]+1))
	i11 = c * (fp[0] + 1 + t.width*(fp[1]+1))
	return
}

// bilinearSample writes into out the bilinear interpolation of the texture at
// p, in zero-based texel coordinates.
func bilinearSample(out []float64, t textureView, p [2]float64) {
	fp, e, _ := t.bilinearCell(p)
	i00, i10, i01, i11 := t.indices(fp)
	I := t.data
	for k := range out {
		t1 := (1-e[0])*I[i00+k] + e[0]*I[i10+k]
		t2 := (1-e[0])*I[i01+k] + e[0]*I[i11+k]
		out[k] = t1*(1-e[1]) + t2*e[1]
	}
}

// bilinearSampleAdjoint accumulates the gradients of bilinearSample into the
// texture gradient texB and into pB. Clamped axes receive no gradient.
func bilinearSampleAdjoint(outB []float64, t textureView, texB []float64, p [2]float64, pB *[2]float64) {
	fp, e, out := t.bilinearCell(p)
	i00, i10, i01, i11 := t.indices(fp)
	I := t.data
	var eB [2]float64
	for k, g := range outB {
		t1 := (1-e[0])*I[i00+k] + e[0]*I[i10+k]
		t2 := (1-e[0])*I[i01+k] + e[0]*I[i11+k]
		eB[1] += g * (t2 - t1)

		t1B := g * (1 - e[1])
		t2B := g * e[1]
		eB[0] += t1B*(I[i10+k]-I[i00+k]) + t2B*(I[i11+k]-I[i01+k])

		texB[i00+k] += (1 - e[0]) * (1 - e[1]) * g
		texB[i10+k] += e[0] * (1 - e[1]) * g
		texB[i01+k] += (1 - e[0]) * e[1] * g
		texB[i11+k] += e[0] * e[1] * g
	}
	for k := range 2 {
		if !out[k] {
			pB[k] += eB[k]
		}
	}
}
