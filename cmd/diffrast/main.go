// diffrast - differentiable software rasterizer
// Render OBJ and glTF models to images, render turntable batches, fit a
// model to a target image, or preview it in the terminal.
//
// Commands:
//
//	diffrast render model.glb            - Render one view to -o
//	diffrast orbit model.glb             - Render --frames views around the model
//	diffrast fit model.obj target.png    - Fit vertices and colors to a target image
//	diffrast view model.glb              - Interactive terminal preview
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/taigrr/diffrast/internal/batch"
	"github.com/taigrr/diffrast/internal/config"
	"github.com/taigrr/diffrast/pkg/fit"
	"github.com/taigrr/diffrast/pkg/models"
	"github.com/taigrr/diffrast/pkg/render"
	"github.com/taigrr/diffrast/pkg/scene"
)

var edgeColor = []float64{1, 0.2, 0.2}

// options holds the command line flags shared by every command.
type options struct {
	configPath string
	flags      config.Flags
	output     string
	edges      bool
	verbose    bool
	fps        int

	cfg config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fang.Execute(ctx, rootCmd()); err != nil {
		cancel()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "diffrast",
		Short: "Differentiable software rasterizer",
		Long: "Render OBJ and glTF models with antialiased silhouettes, render turntable\n" +
			"batches, and fit a model's geometry and colors to a target image.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "JSON config file")
	pf.IntVar(&o.flags.Width, "width", 0, "image width (overrides config)")
	pf.IntVar(&o.flags.Height, "height", 0, "image height (overrides config)")
	pf.Float64Var(&o.flags.Sigma, "sigma", -1, "edge antialiasing width in pixels (overrides config)")
	pf.StringVar(&o.flags.Texture, "texture", "", "texture image or \"checker\", replaces the model's own (overrides config)")
	pf.StringVar(&o.flags.Background, "bg", "", "background image (overrides config)")
	pf.BoolVar(&o.edges, "edges", false, "draw the silhouette edges on top of the render")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(renderCmd(o), orbitCmd(o), fitCmd(o), viewCmd(o))
	return root
}

// setup installs the logger and resolves the configuration.
func (o *options) setup() error {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	render.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	o.cfg = config.Default()
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	o.cfg.Resolve(o.flags)
	return nil
}

func (o *options) outputPath() string {
	if o.output != "" {
		return o.output
	}
	return "render" + o.cfg.Extension()
}

func loadMesh(path string) (*models.Mesh, error) {
	mesh, err := models.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	mesh.Normalize(1)
	fmt.Printf("Loaded: %s (%d vertices, %d triangles)\n", filepath.Base(path), mesh.VertexCount(), mesh.TriangleCount())
	return mesh, nil
}

func renderCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <model>",
		Short: "Render one view of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := loadMesh(args[0])
			if err != nil {
				return err
			}
			return runRender(mesh, o)
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output image, .png or .webp")
	return cmd
}

func orbitCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orbit <model>",
		Short: "Render turntable views of a model in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := loadMesh(args[0])
			if err != nil {
				return err
			}
			return runOrbit(mesh, o, filepath.Base(args[0]))
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.flags.Frames, "frames", 0, "frame count (overrides config)")
	f.IntVar(&o.flags.Workers, "workers", 0, "worker count (overrides config)")
	f.StringVar(&o.flags.OutputDir, "out", "", "output directory (overrides config)")
	f.BoolVar(&o.flags.PNG, "png", false, "write PNG instead of WebP")
	return cmd
}

func fitCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit <model> <target>",
		Short: "Fit a model's vertices and colors to a target image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := loadMesh(args[0])
			if err != nil {
				return err
			}
			return runFit(cmd.Context(), mesh, o, args[1])
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.flags.Iterations, "iters", 0, "iterations (overrides config)")
	f.StringVarP(&o.output, "output", "o", "", "image of the fitted render, .png or .webp")
	return cmd
}

func viewCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <model>",
		Short: "Preview a model in the terminal",
		Long: "Preview a model in the terminal.\n\n" +
			"Controls: mouse drag or W/A/S/D to orbit, scroll or +/- to zoom,\n" +
			"space for a random spin, R to reset, E to toggle edges, Esc to quit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := loadMesh(args[0])
			if err != nil {
				return err
			}
			return runView(cmd.Context(), mesh, o.cfg, max(o.fps, 1), o.edges)
		},
	}
	cmd.Flags().IntVar(&o.fps, "fps", 30, "target FPS")
	return cmd
}

// sceneOptions resolves the texture and background of cfg for a width×height
// render.
func sceneOptions(mesh *models.Mesh, cfg config.Config, width, height int) (scene.Options, error) {
	opts := scene.Options{
		Width:           width,
		Height:          height,
		Channels:        cfg.Channels,
		Clockwise:       cfg.Clockwise,
		BackfaceCulling: cfg.BackfaceCulling,
		Light:           cfg.Light(),
	}

	switch {
	case cfg.Texture == config.CheckerTexture:
		light, dark := []float64{0.8, 0.8, 0.8}, []float64{0.4, 0.4, 0.4}
		opts.Texture = render.NewCheckerTexture(64, 64, 8, light[:cfg.Channels], dark[:cfg.Channels])
	case cfg.Texture != "":
		tex, err := render.LoadTexture(cfg.Texture, cfg.Channels)
		if err != nil {
			return opts, fmt.Errorf("load texture: %w", err)
		}
		opts.Texture = tex
	case mesh.BaseMap() != nil:
		opts.Texture = render.TextureFromImage(mesh.BaseMap(), cfg.Channels)
	}

	if cfg.Background != "" {
		img, err := render.LoadImage(cfg.Background)
		if err != nil {
			return opts, fmt.Errorf("load background: %w", err)
		}
		opts.Background = render.ImageToBuffer(img, width, height, cfg.Channels)
	}
	return opts, nil
}

func newCamera(cfg config.Config, width, height int) *render.Camera {
	cam := render.NewCamera(float64(width) / float64(height))
	cam.SetFOV(cfg.FOVRadians())
	return cam
}

// frontCamera looks at the model from the front at the configured distance
// and elevation.
func frontCamera(mesh *models.Mesh, cfg config.Config) *render.Camera {
	cam := newCamera(cfg, cfg.Width, cfg.Height)
	cam.Orbit(mesh.Center(), cfg.CameraDistance*mesh.Radius(), 0, cfg.PitchRadians())
	return cam
}

func runRender(mesh *models.Mesh, o *options) error {
	cfg := o.cfg
	opts, err := sceneOptions(mesh, cfg, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	model, err := scene.Build(mesh, opts)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	if vis := model.Project(frontCamera(mesh, cfg)); vis == scene.Hidden {
		fmt.Println("Warning: model is outside the view")
	}

	fb := render.NewFramebuffer(cfg.Width, cfg.Height, model.Scene.NbColors)
	start := time.Now()
	stats, err := render.Render(model.Scene, fb, render.Options{Sigma: cfg.Sigma})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if o.edges {
		fb.DrawSilhouette(model.Scene, edgeColor)
	}

	path := o.outputPath()
	if err := fb.Save(path); err != nil {
		return err
	}
	fmt.Printf("Rendered %d/%d triangles, %d edges in %v -> %s\n",
		stats.Filled, stats.Triangles, stats.Edges, time.Since(start).Round(time.Millisecond), path)
	return nil
}

func runOrbit(mesh *models.Mesh, o *options, name string) error {
	cfg := o.cfg
	opts, err := sceneOptions(mesh, cfg, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	bcfg := batch.Config{
		Scene:     opts,
		Sigma:     cfg.Sigma,
		Frames:    cfg.Frames,
		Workers:   cfg.Workers,
		FOV:       cfg.FOVRadians(),
		Distance:  cfg.CameraDistance * mesh.Radius(),
		Pitch:     cfg.PitchRadians(),
		OutputDir: cfg.OutputDir,
		Ext:       cfg.Extension(),
	}
	if o.edges {
		bcfg.Edges = edgeColor
	}

	fmt.Printf("Rendering %d frames with %d workers...\n", cfg.Frames, cfg.Workers)
	start := time.Now()
	results, err := batch.Run(mesh, bcfg)
	if err != nil {
		return err
	}

	manifest := batch.NewManifest(name, bcfg, results)
	if err := batch.WriteManifest(filepath.Join(cfg.OutputDir, "manifest.json"), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	for _, r := range results {
		if !r.Success {
			fmt.Fprintf(os.Stderr, "  frame %d: %s\n", r.Frame, r.Error)
		}
	}
	fmt.Printf("Done: %d/%d frames in %v -> %s\n",
		manifest.Succeeded, len(results), time.Since(start).Round(time.Millisecond), cfg.OutputDir)
	if manifest.Failed > 0 {
		return fmt.Errorf("%d frames failed", manifest.Failed)
	}
	return nil
}

func runFit(ctx context.Context, mesh *models.Mesh, o *options, target string) error {
	cfg := o.cfg
	img, err := render.LoadImage(target)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}
	observed := render.ImageToBuffer(img, cfg.Width, cfg.Height, cfg.Channels)

	opts, err := sceneOptions(mesh, cfg, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	model, err := scene.Build(mesh, opts)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	f, err := fit.NewMesh(model, frontCamera(mesh, cfg), observed)
	if err != nil {
		return err
	}
	f.Sigma = cfg.Sigma
	f.ErrorMode = cfg.FitErrorMode

	initial, err := f.Energy()
	if err != nil {
		return err
	}
	fmt.Printf("Fitting %d iterations, initial energy %.4f\n", cfg.FitIterations, initial)

	start := time.Now()
	best, err := f.Run(ctx, cfg.FitIterations, func(iter int, e float64) {
		if iter%10 == 0 {
			fmt.Printf("[%d/%d] energy %.4f\n", iter, cfg.FitIterations, e)
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("fit: %w", err)
	}

	final, err := f.Energy()
	if err != nil {
		return err
	}
	fb := f.Framebuffer()
	if o.edges {
		fb.DrawSilhouette(model.Scene, edgeColor)
	}
	path := o.outputPath()
	if err := fb.Save(path); err != nil {
		return err
	}
	fmt.Printf("Done: %d iterations in %v, energy %.4f -> %.4f (best %.4f) -> %s\n",
		f.Iterations(), time.Since(start).Round(time.Millisecond), initial, final, best, path)
	return nil
}
