package scene

import (
	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/render"
)

// Plane is the half space Normal·p + D >= 0.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// normalize scales the plane equation so the normal has unit length.
func (p *Plane) normalize() {
	n := p.Normal.Len()
	if n == 0 {
		return
	}
	p.Normal = p.Normal.Scale(1 / n)
	p.D /= n
}

// Distance returns the signed distance from the plane to a point, positive
// on the side the normal points to.
func (p Plane) Distance(point math3d.Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum is the six inward-facing planes of a view volume, ordered left,
// right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustum extracts the planes of a column-major view-projection matrix
// (Gribb/Hartmann).
func NewFrustum(m math3d.Mat4) Frustum {
	// Row i of m is m[i], m[i+4], m[i+8], m[i+12].
	row := func(i int) [4]float64 { return [4]float64{m[i], m[i+4], m[i+8], m[i+12]} }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	var f Frustum
	for i, r := range [6][4]float64{
		add4(r3, r0, 1), add4(r3, r0, -1),
		add4(r3, r1, 1), add4(r3, r1, -1),
		add4(r3, r2, 1), add4(r3, r2, -1),
	} {
		f.Planes[i] = Plane{Normal: math3d.V3(r[0], r[1], r[2]), D: r[3]}
		f.Planes[i].normalize()
	}
	return f
}

func add4(a, b [4]float64, s float64) [4]float64 {
	return [4]float64{a[0] + s*b[0], a[1] + s*b[1], a[2] + s*b[2], a[3] + s*b[3]}
}

// CameraFrustum returns the view volume of a camera.
func CameraFrustum(cam *render.Camera) Frustum {
	return NewFrustum(cam.ViewProjectionMatrix())
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min math3d.Vec3
	Max math3d.Vec3
}

// corner picks, per axis, Max where the mask is set and Min elsewhere.
func (b Bounds) corner(x, y, z bool) math3d.Vec3 {
	pick := func(max bool, lo, hi float64) float64 {
		if max {
			return hi
		}
		return lo
	}
	return math3d.V3(pick(x, b.Min.X, b.Max.X), pick(y, b.Min.Y, b.Max.Y), pick(z, b.Min.Z, b.Max.Z))
}

// ContainsPoint reports whether p is inside every plane.
func (f Frustum) ContainsPoint(p math3d.Vec3) bool {
	for _, pl := range f.Planes {
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// Intersects reports whether any part of b may be inside the frustum. It
// tests the corner furthest along each plane normal, so it can report true
// for boxes just outside a frustum edge.
func (f Frustum) Intersects(b Bounds) bool {
	for _, pl := range f.Planes {
		n := pl.Normal
		if pl.Distance(b.corner(n.X >= 0, n.Y >= 0, n.Z >= 0)) < 0 {
			return false
		}
	}
	return true
}

// Contains reports whether b lies entirely inside the frustum.
func (f Frustum) Contains(b Bounds) bool {
	for _, pl := range f.Planes {
		n := pl.Normal
		if pl.Distance(b.corner(n.X < 0, n.Y < 0, n.Z < 0)) < 0 {
			return false
		}
	}
	return true
}

// Visibility classifies a model against a camera's view volume.
type Visibility int

const (
	Hidden Visibility = iota
	Clipped
	Inside
)

func (v Visibility) String() string {
	switch v {
	case Hidden:
		return "hidden"
	case Clipped:
		return "clipped"
	case Inside:
		return "inside"
	}
	return "unknown"
}

// Classify tests b against the frustum.
func (f Frustum) Classify(b Bounds) Visibility {
	switch {
	case !f.Intersects(b):
		return Hidden
	case f.Contains(b):
		return Inside
	default:
		return Clipped
	}
}
