// Package fit adjusts a scene by gradient descent so its render matches an
// observed image.
package fit

import (
	"context"
	"math"

	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/render"
	"github.com/taigrr/diffrast/pkg/scene"
)

// Defaults for the step schedule.
const (
	DefaultInertia = 0.96
	DefaultDamping = 0.05
)

// Fitter minimizes the squared difference between the render of a scene and
// an observed image. Each step moves the parameters with a damped momentum
// update:
//
//	speed = (1-damping)·(speed·inertia + (1-inertia)·clamp(-g·factor, ±max))
//
// A Fitter built with New moves the 2D vertex positions in Scene.IJ; one
// built with NewMesh moves the 3D mesh vertices and re-projects them through
// the camera. Both also fit the vertex colors, kept within [0, 1].
type Fitter struct {
	Scene    *render.Scene
	Observed []float64

	// Sigma is the edge antialiasing width used while fitting.
	Sigma float64
	// ErrorMode blends the squared error along edges instead of the colors,
	// so the energy is the sum of the error buffer.
	ErrorMode bool

	Inertia float64
	Damping float64

	StepFactorIJ    float64 // pixels per unit gradient
	StepMaxIJ       float64
	StepFactorMesh  float64 // world units per unit gradient
	StepMaxMesh     float64
	StepFactorColor float64
	StepMaxColor    float64

	// FitColors enables the color update.
	FitColors bool

	model  *scene.Model
	camera *render.Camera

	fb   *render.Framebuffer
	grad render.OutputGradients

	speedIJ    []float64
	speedMesh  []math3d.Vec3
	speedColor []float64
	iter       int
}

// New returns a fitter for the 2D vertex positions and colors of s.
func New(s *render.Scene, observed []float64) (*Fitter, error) {
	pixels := s.Width * s.Height
	if len(observed) != s.NbColors*pixels {
		return nil, &render.SizeMismatchError{Field: "observed", Got: len(observed), Want: s.NbColors * pixels}
	}
	if s.IJB == nil {
		s.NewGradients()
	}
	return &Fitter{
		Scene:           s,
		Observed:        observed,
		Sigma:           1,
		Inertia:         DefaultInertia,
		Damping:         DefaultDamping,
		StepFactorIJ:    0.01,
		StepMaxIJ:       0.5,
		StepFactorMesh:  0.0005,
		StepMaxMesh:     0.05,
		StepFactorColor: 0.001,
		StepMaxColor:    0.05,
		FitColors:       true,
		fb:              render.NewFramebuffer(s.Width, s.Height, s.NbColors),
		grad: render.OutputGradients{
			Image: make([]float64, s.NbColors*pixels),
			Err:   make([]float64, pixels),
		},
		speedIJ:    make([]float64, len(s.IJ)),
		speedColor: make([]float64, len(s.Colors)),
	}, nil
}

// NewMesh returns a fitter for the world-space vertices and colors of a
// model seen through cam.
func NewMesh(m *scene.Model, cam *render.Camera, observed []float64) (*Fitter, error) {
	f, err := New(m.Scene, observed)
	if err != nil {
		return nil, err
	}
	f.model = m
	f.camera = cam
	f.speedMesh = make([]math3d.Vec3, len(m.Mesh.Vertices))
	m.Project(cam)
	return f, nil
}

// Framebuffer returns the render of the last step, restored to its state
// before the edge pass.
func (f *Fitter) Framebuffer() *render.Framebuffer { return f.fb }

// Iterations returns the number of completed steps.
func (f *Fitter) Iterations() int { return f.iter }

func (f *Fitter) options() render.Options {
	return render.Options{Sigma: f.Sigma, AntialiasError: f.ErrorMode, Observed: f.Observed}
}

// Energy renders the current parameters and returns the loss without
// computing gradients.
func (f *Fitter) Energy() (float64, error) {
	if _, err := render.Render(f.Scene, f.fb, f.options()); err != nil {
		return 0, err
	}
	return f.energy(), nil
}

func (f *Fitter) energy() float64 {
	var e float64
	if f.ErrorMode {
		for _, v := range f.fb.Err {
			e += v
		}
		return e
	}
	for i, v := range f.fb.Image {
		d := v - f.Observed[i]
		e += d * d
	}
	return e
}

// Step renders, back-propagates the loss and updates the parameters once.
// It returns the energy of the parameters before the update.
func (f *Fitter) Step() (float64, error) {
	s := f.Scene
	opts := f.options()

	if _, err := render.Render(s, f.fb, opts); err != nil {
		return 0, err
	}
	energy := f.energy()

	if f.ErrorMode {
		for i := range f.grad.Err {
			f.grad.Err[i] = 1
		}
	} else {
		for i, v := range f.fb.Image {
			f.grad.Image[i] = 2 * (v - f.Observed[i])
		}
	}

	s.ZeroGradients()
	if err := render.RenderAdjoint(s, f.fb, &f.grad, opts); err != nil {
		return 0, err
	}

	if f.model != nil {
		grads := f.model.ProjectAdjoint(f.camera)
		verts := f.model.Mesh.Vertices
		for i, g := range grads {
			f.speedMesh[i] = math3d.V3(
				f.momentum(f.speedMesh[i].X, g.X, f.StepFactorMesh, f.StepMaxMesh),
				f.momentum(f.speedMesh[i].Y, g.Y, f.StepFactorMesh, f.StepMaxMesh),
				f.momentum(f.speedMesh[i].Z, g.Z, f.StepFactorMesh, f.StepMaxMesh),
			)
			verts[i].Position = verts[i].Position.Add(f.speedMesh[i])
		}
		f.model.Mesh.CalculateBounds()
		f.model.Project(f.camera)
	} else {
		for i, g := range s.IJB {
			f.speedIJ[i] = f.momentum(f.speedIJ[i], g, f.StepFactorIJ, f.StepMaxIJ)
			s.IJ[i] += f.speedIJ[i]
		}
	}

	if f.FitColors {
		for i, g := range s.ColorsB {
			f.speedColor[i] = f.momentum(f.speedColor[i], g, f.StepFactorColor, f.StepMaxColor)
			s.Colors[i] = min(max(s.Colors[i]+f.speedColor[i], 0), 1)
		}
	}

	f.iter++
	render.Logger().Info("fit step", "iter", f.iter, "energy", energy)
	return energy, nil
}

func (f *Fitter) momentum(speed, g, factor, limit float64) float64 {
	step := min(max(-g*factor, -limit), limit)
	return (1 - f.Damping) * (speed*f.Inertia + (1-f.Inertia)*step)
}

// Run steps until n iterations are done, the context is cancelled, or a
// step fails. progress, if non-nil, is called after every step. It returns
// the lowest energy seen.
func (f *Fitter) Run(ctx context.Context, n int, progress func(iter int, energy float64)) (float64, error) {
	best := math.Inf(1)
	for range n {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		e, err := f.Step()
		if err != nil {
			return best, err
		}
		best = min(best, e)
		if progress != nil {
			progress(f.iter, e)
		}
	}
	return best, nil
}
