package render

import (
	"math"

	"github.com/taigrr/diffrast/pkg/math3d"
)

// Camera is a perspective pinhole camera with Euler-angle orientation.
type Camera struct {
	// Position in world space
	Position math3d.Vec3

	// Orientation (Euler angles in radians)
	Pitch float64 // Rotation around X axis (look up/down)
	Yaw   float64 // Rotation around Y axis (look left/right)
	Roll  float64 // Rotation around Z axis (tilt)

	// Projection parameters
	FOV         float64 // Vertical field of view in radians
	AspectRatio float64 // Width / Height
	Near        float64 // Near clipping plane
	Far         float64 // Far clipping plane

	viewMatrix math3d.Mat4
	projMatrix math3d.Mat4
	viewDirty  bool
	projDirty  bool
}

// NewCamera creates a camera at the origin looking down -Z.
func NewCamera(aspect float64) *Camera {
	return &Camera{
		FOV:         math.Pi / 3, // 60 degrees
		AspectRatio: aspect,
		Near:        0.05,
		Far:         1000,
		viewDirty:   true,
		projDirty:   true,
	}
}

// SetPosition sets the camera position.
func (c *Camera) SetPosition(pos math3d.Vec3) {
	c.Position = pos
	c.viewDirty = true
}

// SetFOV sets the field of view (in radians).
func (c *Camera) SetFOV(fov float64) {
	c.FOV = fov
	c.projDirty = true
}

// ViewMatrix returns the world-to-camera transform.
func (c *Camera) ViewMatrix() math3d.Mat4 {
	if c.viewDirty {
		rot := math3d.RotateZ(-c.Roll).Mul(
			math3d.RotateX(-c.Pitch)).Mul(
			math3d.RotateY(-c.Yaw))
		c.viewMatrix = rot.Mul(math3d.Translate(c.Position.Negate()))
		c.viewDirty = false
	}
	return c.viewMatrix
}

// ProjectionMatrix returns the OpenGL-style projection matrix.
func (c *Camera) ProjectionMatrix() math3d.Mat4 {
	if c.projDirty {
		c.projMatrix = math3d.Perspective(c.FOV, c.AspectRatio, c.Near, c.Far)
		c.projDirty = false
	}
	return c.projMatrix
}

// ViewProjectionMatrix returns the combined view-projection matrix.
func (c *Camera) ViewProjectionMatrix() math3d.Mat4 {
	return c.ProjectionMatrix().Mul(c.ViewMatrix())
}

// LookAt makes the camera look at a target point.
func (c *Camera) LookAt(target math3d.Vec3) {
	dir := target.Sub(c.Position).Normalize()

	c.Pitch = math.Asin(dir.Y)
	c.Yaw = math.Atan2(-dir.X, -dir.Z)
	c.Roll = 0

	c.viewDirty = true
}

// Orbit places the camera at the given distance from target, rotated by yaw
// around the vertical axis and by pitch above the horizontal plane, and aims
// it at target.
func (c *Camera) Orbit(target math3d.Vec3, distance, yaw, pitch float64) {
	offset := math3d.V3(
		math.Sin(yaw)*math.Cos(pitch),
		math.Sin(pitch),
		math.Cos(yaw)*math.Cos(pitch),
	).Scale(distance)
	c.SetPosition(target.Add(offset))
	c.LookAt(target)
}

// focal returns the focal lengths in pixels for a width×height image.
func (c *Camera) focal(width, height int) (fx, fy float64) {
	f := 1 / math.Tan(c.FOV/2)
	return 0.5 * float64(width) * f / c.AspectRatio, 0.5 * float64(height) * f
}

// Project maps a world point to pixel coordinates and depth. Pixel centres
// sit at integer coordinates, so the image spans [-0.5, W-0.5] horizontally.
// depth is the distance along the viewing axis. Points closer than the near
// plane get a negative depth, which makes the renderer skip their triangles.
func (c *Camera) Project(p math3d.Vec3, width, height int) (x, y, depth float64) {
	v := c.ViewMatrix().MulVec3(p)
	d := -v.Z
	if d < c.Near {
		return 0, 0, math.Min(d, -c.Near)
	}
	fx, fy := c.focal(width, height)
	x = 0.5*float64(width) - 0.5 + fx*v.X/d
	y = 0.5*float64(height) - 0.5 - fy*v.Y/d
	return x, y, d
}

// ProjectAdjoint returns the gradient with respect to the world point p
// given the gradients xB and yB of its projected pixel coordinates. Depth is
// treated as non-differentiable. Points behind the near plane get zero.
func (c *Camera) ProjectAdjoint(p math3d.Vec3, width, height int, xB, yB float64) math3d.Vec3 {
	m := c.ViewMatrix()
	v := m.MulVec3(p)
	d := -v.Z
	if d < c.Near {
		return math3d.Zero3()
	}
	fx, fy := c.focal(width, height)

	vxB := fx / d * xB
	vyB := -fy / d * yB
	dB := -fx*v.X/(d*d)*xB + fy*v.Y/(d*d)*yB
	vzB := -dB

	// Transpose of the rotation part (column-major).
	return math3d.V3(
		m[0]*vxB+m[1]*vyB+m[2]*vzB,
		m[4]*vxB+m[5]*vyB+m[6]*vzB,
		m[8]*vxB+m[9]*vyB+m[10]*vzB,
	)
}
