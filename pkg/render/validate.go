package render

import "fmt"

// Validate checks that every array the renderer reads is present, that every
// index is in range, and that array lengths agree with the scene sizes. When
// adjoint is true the gradient twins are checked as well.
func (s *Scene) Validate(adjoint bool) error {
	required := []struct {
		name string
		nil  bool
	}{
		{"faces", s.Faces == nil},
		{"faces_uv", s.FacesUV == nil},
		{"depths", s.Depths == nil},
		{"uv", s.UV == nil},
		{"ij", s.IJ == nil},
		{"shade", s.Shade == nil},
		{"colors", s.Colors == nil},
		{"edgeflags", s.EdgeFlags == nil},
		{"textured", s.Textured == nil},
		{"shaded", s.Shaded == nil},
		{"texture", s.Texture == nil},
		{"background", s.Background == nil},
	}
	if adjoint {
		required = append(required, []struct {
			name string
			nil  bool
		}{
			{"uv_b", s.UVB == nil},
			{"ij_b", s.IJB == nil},
			{"shade_b", s.ShadeB == nil},
			{"colors_b", s.ColorsB == nil},
			{"texture_b", s.TextureB == nil},
		}...)
	}
	for _, r := range required {
		if r.nil {
			return &InvalidSceneError{Field: r.name, Reason: "missing"}
		}
	}

	if s.NbColors <= 0 {
		return &InvalidSceneError{Field: "nb_colors", Reason: "must be positive"}
	}
	if s.Width <= 0 || s.Height <= 0 {
		return &InvalidSceneError{Field: "size", Reason: fmt.Sprintf("%dx%d", s.Width, s.Height)}
	}
	if len(s.Faces)%3 != 0 {
		return &SizeMismatchError{Field: "faces", Got: len(s.Faces), Want: 3 * s.NumTriangles()}
	}
	if len(s.IJ)%2 != 0 {
		return &SizeMismatchError{Field: "ij", Got: len(s.IJ), Want: 2 * s.NumVertices()}
	}
	if len(s.UV)%2 != 0 {
		return &SizeMismatchError{Field: "uv", Got: len(s.UV), Want: 2 * s.NumUV()}
	}

	nt, nv, nuv := s.NumTriangles(), s.NumVertices(), s.NumUV()
	for k, v := range s.Faces {
		if v < 0 || v >= nv {
			return &InvalidSceneError{Field: "faces", Reason: fmt.Sprintf("index %d at %d out of range [0,%d)", v, k, nv)}
		}
	}
	if len(s.FacesUV) != 3*nt {
		return &SizeMismatchError{Field: "faces_uv", Got: len(s.FacesUV), Want: 3 * nt}
	}
	for k, v := range s.FacesUV {
		if v < 0 || v >= nuv {
			return &InvalidSceneError{Field: "faces_uv", Reason: fmt.Sprintf("index %d at %d out of range [0,%d)", v, k, nuv)}
		}
	}

	c := s.NbColors
	sizes := []struct {
		name      string
		got, want int
	}{
		{"depths", len(s.Depths), nv},
		{"shade", len(s.Shade), nv},
		{"colors", len(s.Colors), c * nv},
		{"edgeflags", len(s.EdgeFlags), 3 * nt},
		{"textured", len(s.Textured), nt},
		{"shaded", len(s.Shaded), nt},
		{"background", len(s.Background), c * s.Height * s.Width},
		{"texture", len(s.Texture), c * s.TextureHeight * s.TextureWidth},
	}
	if adjoint {
		sizes = append(sizes, []struct {
			name      string
			got, want int
		}{
			{"uv_b", len(s.UVB), len(s.UV)},
			{"ij_b", len(s.IJB), len(s.IJ)},
			{"shade_b", len(s.ShadeB), len(s.Shade)},
			{"colors_b", len(s.ColorsB), len(s.Colors)},
			{"texture_b", len(s.TextureB), len(s.Texture)},
		}...)
	}
	for _, sz := range sizes {
		if sz.got != sz.want {
			return &SizeMismatchError{Field: sz.name, Got: sz.got, Want: sz.want}
		}
	}

	for k := range nt {
		if s.Textured[k] && s.Shaded[k] {
			if s.TextureWidth < 2 || s.TextureHeight < 2 {
				return &InvalidSceneError{
					Field:  "texture",
					Reason: fmt.Sprintf("textured triangles need at least 2x2 texels, have %dx%d", s.TextureWidth, s.TextureHeight),
				}
			}
			break
		}
	}
	return nil
}
