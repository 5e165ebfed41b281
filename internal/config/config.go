package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/scene"
)

// CheckerTexture is the Texture value that selects a generated checkerboard.
const CheckerTexture = "checker"

// Config holds render, batch and fit settings.
type Config struct {
	// Image
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Channels   int     `json:"channels"`
	Sigma      float64 `json:"sigma"`
	Background string  `json:"background"` // image path, resampled to the output size
	Texture    string  `json:"texture"`    // image path or CheckerTexture, overrides the model's own

	// Geometry
	Clockwise       bool `json:"clockwise"`
	BackfaceCulling bool `json:"backface_culling"`

	// Camera and light
	FOV            float64    `json:"fov_deg"`
	CameraDistance float64    `json:"camera_distance"` // in model radii
	Pitch          float64    `json:"pitch_deg"`
	LightDir       [3]float64 `json:"light_dir"`
	Ambient        float64    `json:"ambient"`
	Directional    float64    `json:"directional"`

	// Batch
	Frames    int    `json:"frames"`
	Workers   int    `json:"workers"`
	WebP      bool   `json:"webp"`
	OutputDir string `json:"output_dir"`

	// Fit
	FitIterations int  `json:"fit_iterations"`
	FitErrorMode  bool `json:"fit_error_mode"`
}

// Default returns the settings used when no config file is given.
func Default() Config {
	l := scene.DefaultLight()
	return Config{
		Width:           320,
		Height:          240,
		Channels:        3,
		Sigma:           1,
		BackfaceCulling: true,
		FOV:             60,
		CameraDistance:  3,
		Pitch:           20,
		LightDir:        [3]float64{l.Direction.X, l.Direction.Y, l.Direction.Z},
		Ambient:         l.Ambient,
		Directional:     l.Directional,
		Frames:          36,
		WebP:            true,
		OutputDir:       "renders",
		FitIterations:   200,
	}
}

// Load reads a JSON config file. Fields missing from the file keep their
// Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// Relative paths are relative to the config file.
	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Background, &cfg.Texture, &cfg.OutputDir} {
		if *p != "" && *p != CheckerTexture && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}

	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	Width      int
	Height     int
	Sigma      float64 // negative means unset
	Background string
	Texture    string
	Frames     int
	Workers    int
	OutputDir  string
	Iterations int
	PNG        bool
}

// Resolve applies the CLI overrides, then fills any field left invalid with
// its default. CLI flags take priority when non-zero/non-empty.
func (c *Config) Resolve(flags Flags) {
	if flags.Width > 0 {
		c.Width = flags.Width
	}
	if flags.Height > 0 {
		c.Height = flags.Height
	}
	if flags.Sigma >= 0 {
		c.Sigma = flags.Sigma
	}
	if flags.Background != "" {
		c.Background = flags.Background
	}
	if flags.Texture != "" {
		c.Texture = flags.Texture
	}
	if flags.Frames > 0 {
		c.Frames = flags.Frames
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Iterations > 0 {
		c.FitIterations = flags.Iterations
	}
	if flags.PNG {
		c.WebP = false
	}

	d := Default()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.Channels != 1 && c.Channels != 3 {
		c.Channels = d.Channels
	}
	if c.Sigma < 0 || math.IsNaN(c.Sigma) {
		c.Sigma = d.Sigma
	}
	if c.FOV <= 0 || c.FOV >= 180 {
		c.FOV = d.FOV
	}
	if c.CameraDistance <= 0 {
		c.CameraDistance = d.CameraDistance
	}
	if c.LightDir == [3]float64{} {
		c.LightDir = d.LightDir
	}
	if c.Frames <= 0 {
		c.Frames = d.Frames
	}
	if c.FitIterations <= 0 {
		c.FitIterations = d.FitIterations
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Light returns the configured light.
func (c *Config) Light() scene.Light {
	return scene.Light{
		Direction:   math3d.V3(c.LightDir[0], c.LightDir[1], c.LightDir[2]),
		Ambient:     c.Ambient,
		Directional: c.Directional,
	}
}

// FOVRadians returns the vertical field of view in radians.
func (c *Config) FOVRadians() float64 {
	return c.FOV * math.Pi / 180
}

// PitchRadians returns the orbit elevation in radians.
func (c *Config) PitchRadians() float64 {
	return c.Pitch * math.Pi / 180
}

// Extension returns the output image extension.
func (c *Config) Extension() string {
	if c.WebP {
		return ".webp"
	}
	return ".png"
}
