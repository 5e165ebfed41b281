// Package batch renders turntable views of a model in parallel.
package batch

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taigrr/diffrast/pkg/models"
	"github.com/taigrr/diffrast/pkg/render"
	"github.com/taigrr/diffrast/pkg/scene"
)

// Config holds orbit rendering parameters.
type Config struct {
	Scene scene.Options // size, channels, light, texture, background

	Sigma    float64
	Frames   int
	Workers  int
	FOV      float64 // radians
	Distance float64 // world units from the model centre
	Pitch    float64 // radians above the horizon

	OutputDir string
	Ext       string // ".webp" or ".png"

	// Edges, if non-nil, is the color the silhouette is drawn in on top
	// of each frame.
	Edges []float64
}

// Result holds the outcome of one frame.
type Result struct {
	Frame      int     `json:"frame"`
	Yaw        float64 `json:"yaw"`
	Path       string  `json:"path"`
	Visibility string  `json:"visibility"`
	Filled     int     `json:"filled"`
	Edges      int     `json:"edges"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

// worker owns the mutable render state of one goroutine. The mesh is shared
// and only read.
type worker struct {
	model  *scene.Model
	camera *render.Camera
	fb     *render.Framebuffer
}

func newWorker(mesh *models.Mesh, cfg Config) (*worker, error) {
	model, err := scene.Build(mesh, cfg.Scene)
	if err != nil {
		return nil, err
	}
	s := model.Scene
	cam := render.NewCamera(float64(s.Width) / float64(s.Height))
	cam.SetFOV(cfg.FOV)
	return &worker{
		model:  model,
		camera: cam,
		fb:     render.NewFramebuffer(s.Width, s.Height, s.NbColors),
	}, nil
}

// Yaw returns the yaw of frame i of n, evenly spaced over a full turn.
func Yaw(i, n int) float64 {
	return 2 * math.Pi * float64(i) / float64(n)
}

// FrameName returns the file name of frame i.
func FrameName(i int, ext string) string {
	return fmt.Sprintf("frame_%04d%s", i, ext)
}

func (w *worker) render(cfg Config, i int) Result {
	res := Result{Frame: i, Yaw: Yaw(i, cfg.Frames)}
	mesh := w.model.Mesh

	w.camera.Orbit(mesh.Center(), cfg.Distance, res.Yaw, cfg.Pitch)
	vis := w.model.Project(w.camera)
	res.Visibility = vis.String()
	if vis == scene.Hidden {
		render.Logger().Warn("model outside view", "frame", i, "yaw", res.Yaw)
	}

	stats, err := render.Render(w.model.Scene, w.fb, render.Options{Sigma: cfg.Sigma})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Filled = stats.Filled
	if cfg.Edges != nil {
		res.Edges = w.fb.DrawSilhouette(w.model.Scene, cfg.Edges)
	}

	res.Path = filepath.Join(cfg.OutputDir, FrameName(i, cfg.Ext))
	if err := w.fb.Save(res.Path); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Run renders cfg.Frames views of mesh orbiting its centre and writes them
// to cfg.OutputDir. Results are returned in frame order.
func Run(mesh *models.Mesh, cfg Config) ([]Result, error) {
	if cfg.Frames <= 0 {
		return nil, fmt.Errorf("batch: frames must be positive, got %d", cfg.Frames)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Ext == "" {
		cfg.Ext = ".png"
	}
	if cfg.FOV <= 0 {
		cfg.FOV = math.Pi / 3
	}
	if cfg.Distance <= 0 {
		cfg.Distance = 3 * mesh.Radius()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	// Workers are built before any frame is written.
	workers := make([]*worker, min(cfg.Workers, cfg.Frames))
	for i := range workers {
		w, err := newWorker(mesh, cfg)
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		workers[i] = w
	}

	results := make([]Result, cfg.Frames)
	var processed atomic.Int64
	total := int64(cfg.Frames)
	start := time.Now()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := processed.Load()
				rate := float64(p) / time.Since(start).Seconds()
				render.Logger().Info("rendering", "done", p, "total", total, "per_sec", fmt.Sprintf("%.1f", rate))
			}
		}
	}()

	frames := make(chan int, len(workers)*2)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range frames {
				results[i] = w.render(cfg, i)
				processed.Add(1)
			}
		}()
	}

	for i := range cfg.Frames {
		frames <- i
	}
	close(frames)
	wg.Wait()
	close(done)

	render.Logger().Info("orbit rendered",
		"frames", cfg.Frames,
		"workers", len(workers),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return results, nil
}
