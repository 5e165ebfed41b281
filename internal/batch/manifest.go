package batch

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest describes a finished orbit render.
type Manifest struct {
	Model     string   `json:"model"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Sigma     float64  `json:"sigma"`
	Distance  float64  `json:"distance"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Frames    []Result `json:"frames"`
}

// NewManifest summarizes results.
func NewManifest(model string, cfg Config, results []Result) Manifest {
	m := Manifest{
		Model:    model,
		Width:    cfg.Scene.Width,
		Height:   cfg.Scene.Height,
		Sigma:    cfg.Sigma,
		Distance: cfg.Distance,
		Frames:   results,
	}
	for _, r := range results {
		if r.Success {
			m.Succeeded++
		} else {
			m.Failed++
		}
	}
	return m
}

// WriteManifest writes the manifest JSON file.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
