package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Load reads a mesh, choosing the loader by file extension.
func Load(path string) (*Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".glb", ".gltf":
		return NewGLTFLoader().Load(path)
	case ".obj":
		return LoadOBJ(path)
	default:
		return nil, fmt.Errorf("unsupported model format %q", ext)
	}
}
