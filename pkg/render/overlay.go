package render

import "math"

// DrawLine draws a one pixel line between two pixel centres with
// Bresenham's algorithm. Pixels outside the image are skipped. c holds one
// value per channel.
func (fb *Framebuffer) DrawLine(x0, y0, x1, y1 int, c []float64) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		fb.setPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (fb *Framebuffer) setPixel(x, y int, c []float64) {
	if x < 0 || x >= fb.Width || y < 0 || y >= fb.Height {
		return
	}
	copy(fb.Image[fb.Channels*(y*fb.Width+x):][:fb.Channels], c)
}

// DrawSilhouette draws the flagged edges of the front-facing triangles of s
// on top of the image, the same edges the renderer antialiases. It returns
// the number of edges drawn.
func (fb *Framebuffer) DrawSilhouette(s *Scene, c []float64) int {
	var drawn int
	for k := range s.NumTriangles() {
		if area, behind := s.SignedArea(k); behind || area <= 0 {
			continue
		}
		for n := range 3 {
			if !s.EdgeFlags[3*k+n] {
				continue
			}
			corners := EdgeCorners(n)
			a, b := s.Faces[3*k+corners[0]], s.Faces[3*k+corners[1]]
			fb.DrawLine(
				pixel(s.IJ[2*a]), pixel(s.IJ[2*a+1]),
				pixel(s.IJ[2*b]), pixel(s.IJ[2*b+1]),
				c)
			drawn++
		}
	}
	return drawn
}

// pixel returns the pixel whose centre is nearest to coordinate v.
func pixel(v float64) int {
	return int(math.Round(v))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
