package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/taigrr/diffrast/pkg/math3d"
	"github.com/taigrr/diffrast/pkg/render"
)

// LoadOBJ loads a Wavefront OBJ file.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj: %w", err)
	}
	defer f.Close()

	mesh, err := ParseOBJ(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return mesh, nil
}

// ParseOBJ reads OBJ geometry: v (with optional r g b), vt, vn and f.
// Polygons are fan-triangulated. Materials, groups and other statements
// are ignored.
func ParseOBJ(r io.Reader, name string) (*Mesh, error) {
	mesh := NewMesh(name)
	var normals []math3d.Vec3
	hasNormals := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "v":
			vals, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			v := MeshVertex{Position: math3d.V3(vals[0], vals[1], vals[2]), Color: White}
			if len(vals) >= 6 {
				v.Color = math3d.V3(vals[3], vals[4], vals[5])
			}
			mesh.Vertices = append(mesh.Vertices, v)

		case "vt":
			vals, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			// OBJ puts the texture origin at the bottom-left.
			mesh.UVs = append(mesh.UVs, math3d.V2(vals[0], 1-vals[1]))

		case "vn":
			vals, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			normals = append(normals, math3d.V3(vals[0], vals[1], vals[2]))

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			corners := make([]objCorner, len(fields)-1)
			for i, tok := range fields[1:] {
				c, err := parseCorner(tok, len(mesh.Vertices), len(mesh.UVs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if c.n >= 0 {
					mesh.Vertices[c.v].Normal = normals[c.n]
					hasNormals = true
				}
				corners[i] = c
			}
			for i := 1; i+1 < len(corners); i++ {
				a, b, c := corners[0], corners[i], corners[i+1]
				f := Face{V: [3]int{a.v, b.v, c.v}, Material: -1}
				if a.t >= 0 && b.t >= 0 && c.t >= 0 {
					f.UV = [3]int{a.t, b.t, c.t}
				}
				mesh.Faces = append(mesh.Faces, f)
			}

		default:
			// mtllib, usemtl, o, g, s and friends
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read obj: %w", err)
	}

	if !hasNormals {
		mesh.CalculateSmoothNormals()
	}
	mesh.CalculateBounds()

	render.Logger().Debug("loaded obj",
		"name", name,
		"vertices", mesh.VertexCount(),
		"uvs", len(mesh.UVs),
		"triangles", mesh.TriangleCount())

	return mesh, nil
}

// objCorner holds the zero-based indices of a face corner; -1 when absent.
type objCorner struct {
	v, t, n int
}

// parseCorner parses "v", "v/vt", "v//vn" or "v/vt/vn".
func parseCorner(tok string, nv, nt, nn int) (objCorner, error) {
	c := objCorner{t: -1, n: -1}
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return c, fmt.Errorf("bad face corner %q", tok)
	}

	var err error
	if c.v, err = objIndex(parts[0], nv); err != nil {
		return c, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.t, err = objIndex(parts[1], nt); err != nil {
			return c, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.n, err = objIndex(parts[2], nn); err != nil {
			return c, err
		}
	}
	return c, nil
}

// objIndex resolves a one-based or negative (relative) OBJ index.
func objIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %w", s, err)
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	}
	return 0, fmt.Errorf("index %d out of range for %d elements", i, n)
}

func parseFloats(fields []string, minCount int) ([]float64, error) {
	if len(fields) < minCount {
		return nil, fmt.Errorf("expected %d values, got %d", minCount, len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", f, err)
		}
		vals[i] = v
	}
	return vals, nil
}
