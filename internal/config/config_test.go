package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diffrast.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{"width": 64, "sigma": 0, "texture": "wood.png", "webp": false}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Width != 64 {
		t.Errorf("Width = %d, want 64", cfg.Width)
	}
	if cfg.Height != Default().Height {
		t.Errorf("Height = %d, want default %d", cfg.Height, Default().Height)
	}
	if cfg.Sigma != 0 {
		t.Errorf("Sigma = %v, want explicit 0 kept", cfg.Sigma)
	}
	if want := filepath.Join(filepath.Dir(path), "wood.png"); cfg.Texture != want {
		t.Errorf("Texture = %q, want %q", cfg.Texture, want)
	}
	if cfg.Extension() != ".png" {
		t.Errorf("Extension() = %q, want .png", cfg.Extension())
	}
}

func TestLoadCheckerTexture(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"texture": "checker"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Texture != CheckerTexture {
		t.Errorf("Texture = %q, want %q", cfg.Texture, CheckerTexture)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
	if _, err := Load(writeConfig(t, `{"width": "wide"}`)); err == nil {
		t.Error("Load(bad json) error = nil, want error")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		flags Flags
		check func(t *testing.T, c Config)
	}{
		{
			"flags override",
			Default(),
			Flags{Width: 100, Sigma: 2.5, Frames: 4, Workers: 3, PNG: true, Iterations: 7},
			func(t *testing.T, c Config) {
				if c.Width != 100 || c.Sigma != 2.5 || c.Frames != 4 || c.Workers != 3 || c.WebP || c.FitIterations != 7 {
					t.Errorf("Resolve() = %+v, want flag values", c)
				}
			},
		},
		{
			"unset sigma flag keeps file value",
			Config{Sigma: 0.5},
			Flags{Sigma: -1},
			func(t *testing.T, c Config) {
				if c.Sigma != 0.5 {
					t.Errorf("Sigma = %v, want 0.5", c.Sigma)
				}
			},
		},
		{
			"zero config gets defaults",
			Config{},
			Flags{Sigma: -1},
			func(t *testing.T, c Config) {
				d := Default()
				if c.Width != d.Width || c.Channels != 3 || c.FOV != d.FOV || c.LightDir != d.LightDir || c.OutputDir != d.OutputDir {
					t.Errorf("Resolve() = %+v, want defaults", c)
				}
				if c.Workers != runtime.NumCPU() {
					t.Errorf("Workers = %d, want %d", c.Workers, runtime.NumCPU())
				}
			},
		},
		{
			"invalid values replaced",
			Config{Channels: 4, Sigma: -3, FOV: 200},
			Flags{Sigma: -1},
			func(t *testing.T, c Config) {
				if c.Channels != 3 || c.Sigma != 1 || c.FOV != 60 {
					t.Errorf("Resolve() = channels %d sigma %v fov %v, want 3 1 60", c.Channels, c.Sigma, c.FOV)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.cfg
			c.Resolve(tc.flags)
			tc.check(t, c)
		})
	}
}

func TestLight(t *testing.T) {
	c := Default()
	l := c.Light()
	if l.Ambient != c.Ambient || l.Direction.X != c.LightDir[0] {
		t.Errorf("Light() = %+v, want config values", l)
	}
	if got := c.FOVRadians(); got < 1.047 || got > 1.048 {
		t.Errorf("FOVRadians() = %v, want π/3", got)
	}
}
