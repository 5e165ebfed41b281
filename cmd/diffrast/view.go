package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/taigrr/diffrast/internal/config"
	"github.com/taigrr/diffrast/pkg/models"
	"github.com/taigrr/diffrast/pkg/render"
	"github.com/taigrr/diffrast/pkg/scene"
)

// RotationAxis tracks position and velocity for one orbit angle. Velocity
// decays to zero through a critically damped spring.
type RotationAxis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64
}

func NewRotationAxis(fps int) RotationAxis {
	return RotationAxis{
		velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Update applies velocity to position and decays velocity toward 0.
func (a *RotationAxis) Update() {
	a.Position += a.Velocity
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// OrbitState is the camera orbit around the model.
type OrbitState struct {
	Yaw, Pitch RotationAxis
	Distance   float64
	fps        int
	pitch0     float64
	distance0  float64
}

func NewOrbitState(fps int, pitch, distance float64) *OrbitState {
	o := &OrbitState{fps: fps, pitch0: pitch, distance0: distance}
	o.Reset()
	return o
}

func (o *OrbitState) Update() {
	o.Yaw.Update()
	o.Pitch.Update()
	// Stay short of the poles, where LookAt loses the yaw.
	const limit = math.Pi/2 - 0.05
	o.Pitch.Position = min(max(o.Pitch.Position, -limit), limit)
}

func (o *OrbitState) ApplyImpulse(yaw, pitch float64) {
	o.Yaw.Velocity += yaw
	o.Pitch.Velocity += pitch
}

func (o *OrbitState) Zoom(factor float64) {
	o.Distance = min(max(o.Distance*factor, 0.5*o.distance0), 8*o.distance0)
}

func (o *OrbitState) Reset() {
	o.Yaw = NewRotationAxis(o.fps)
	o.Pitch = NewRotationAxis(o.fps)
	o.Pitch.Position = o.pitch0
	o.Distance = o.distance0
}

// preview holds the render state for the current terminal size.
type preview struct {
	model  *scene.Model
	camera *render.Camera
	fb     *render.Framebuffer
}

// newPreview builds a scene for a terminal of cols×rows cells. Each cell
// shows two pixels stacked vertically.
func newPreview(mesh *models.Mesh, cfg config.Config, cols, rows int) (*preview, error) {
	w, h := max(cols, 1), max(2*rows, 2)
	opts, err := sceneOptions(mesh, cfg, w, h)
	if err != nil {
		return nil, err
	}
	model, err := scene.Build(mesh, opts)
	if err != nil {
		return nil, err
	}
	return &preview{
		model:  model,
		camera: newCamera(cfg, w, h),
		fb:     render.NewFramebuffer(w, h, model.Scene.NbColors),
	}, nil
}

func (p *preview) draw(o *OrbitState, sigma float64, showEdges bool) (render.Stats, error) {
	mesh := p.model.Mesh
	p.camera.Orbit(mesh.Center(), o.Distance, o.Yaw.Position, o.Pitch.Position)
	p.model.Project(p.camera)
	stats, err := render.Render(p.model.Scene, p.fb, render.Options{Sigma: sigma})
	if err != nil {
		return stats, err
	}
	if showEdges {
		p.fb.DrawSilhouette(p.model.Scene, edgeColor)
	}
	return stats, nil
}

func runView(ctx context.Context, mesh *models.Mesh, cfg config.Config, fps int, showEdges bool) error {
	term := uv.DefaultTerminal()

	cols, rows, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}

	pv, err := newPreview(mesh, cfg, cols, rows)
	if err != nil {
		return err
	}

	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(cols, rows)

	// Any-event mouse tracking in SGR mode.
	fmt.Fprint(os.Stdout, "\x1b[?1003h")
	fmt.Fprint(os.Stdout, "\x1b[?1006h")

	cleanup := func() {
		fmt.Fprint(os.Stdout, "\x1b[?1003l")
		fmt.Fprint(os.Stdout, "\x1b[?1006l")
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}
	defer cleanup()

	orbit := NewOrbitState(fps, cfg.PitchRadians(), cfg.CameraDistance*mesh.Radius())

	var mouseDown bool
	var lastMouseX, lastMouseY int

	handle := func(ev uv.Event) (quit bool, err error) {
		switch ev := ev.(type) {
		case uv.WindowSizeEvent:
			cols, rows = ev.Width, ev.Height
			term.Erase()
			term.Resize(cols, rows)
			if pv, err = newPreview(mesh, cfg, cols, rows); err != nil {
				return true, err
			}

		case uv.KeyPressEvent:
			switch {
			case ev.MatchString("escape"), ev.MatchString("ctrl+c"):
				return true, nil
			case ev.MatchString("w", "up"):
				orbit.ApplyImpulse(0, 0.05)
			case ev.MatchString("s", "down"):
				orbit.ApplyImpulse(0, -0.05)
			case ev.MatchString("a", "left"):
				orbit.ApplyImpulse(-0.05, 0)
			case ev.MatchString("d", "right"):
				orbit.ApplyImpulse(0.05, 0)
			case ev.MatchString("space"):
				orbit.ApplyImpulse((rand.Float64()-0.5)*0.5, (rand.Float64()-0.5)*0.2)
			case ev.MatchString("r"):
				orbit.Reset()
			case ev.MatchString("+", "="):
				orbit.Zoom(0.9)
			case ev.MatchString("-", "_"):
				orbit.Zoom(1 / 0.9)
			case ev.MatchString("e"):
				showEdges = !showEdges
			}

		case uv.MouseClickEvent:
			mouseDown = true
			lastMouseX, lastMouseY = ev.X, ev.Y

		case uv.MouseReleaseEvent:
			mouseDown = false

		case uv.MouseMotionEvent:
			if mouseDown {
				orbit.ApplyImpulse(float64(ev.X-lastMouseX)*0.01, float64(ev.Y-lastMouseY)*0.01)
				lastMouseX, lastMouseY = ev.X, ev.Y
			}

		case uv.MouseWheelEvent:
			switch ev.Button {
			case uv.MouseWheelUp:
				orbit.Zoom(0.9)
			case uv.MouseWheelDown:
				orbit.Zoom(1 / 0.9)
			}
		}
		return false, nil
	}

	events := term.Events()
	targetDuration := time.Second / time.Duration(fps)
	for {
		now := time.Now()

	drain:
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				quit, err := handle(ev)
				if err != nil {
					return err
				}
				if quit {
					return nil
				}
			default:
				break drain
			}
		}

		orbit.Update()
		stats, err := pv.draw(orbit, cfg.Sigma, showEdges)
		if err != nil {
			return err
		}
		pv.fb.Draw(term, term.Bounds())
		if err := term.Display(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		render.Logger().Debug("preview frame", "filled", stats.Filled, "edges", stats.Edges)

		if elapsed := time.Since(now); elapsed < targetDuration {
			time.Sleep(targetDuration - elapsed)
		}
	}
}
