// Package render implements a differentiable software rasterizer: a forward
// pass that draws triangles with depth testing and antialiased silhouette
// edges, and an adjoint pass that back-propagates image gradients onto vertex
// positions, colours, texture coordinates, shading and texels.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// Framebuffer holds the outputs of a render: a channel-interleaved image, a
// depth buffer, and the squared-error buffer used when rendering against an
// observed image.
type Framebuffer struct {
	Width    int
	Height   int
	Channels int

	Image []float64 // Image[C*(y*W+x)+c]
	Depth []float64 // Depth[y*W+x], +Inf where nothing was drawn
	Err   []float64 // Err[y*W+x], only written in error mode
}

// NewFramebuffer allocates a framebuffer with the given dimensions.
func NewFramebuffer(width, height, channels int) *Framebuffer {
	return &Framebuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Image:    make([]float64, width*height*channels),
		Depth:    make([]float64, width*height),
		Err:      make([]float64, width*height),
	}
}

// At returns the value of channel c at pixel (x, y).
func (fb *Framebuffer) At(x, y, c int) float64 {
	return fb.Image[fb.Channels*(y*fb.Width+x)+c]
}

// Clone returns a deep copy of the framebuffer.
func (fb *Framebuffer) Clone() *Framebuffer {
	return &Framebuffer{
		Width:    fb.Width,
		Height:   fb.Height,
		Channels: fb.Channels,
		Image:    append([]float64(nil), fb.Image...),
		Depth:    append([]float64(nil), fb.Depth...),
		Err:      append([]float64(nil), fb.Err...),
	}
}

func (fb *Framebuffer) canvas() *canvas {
	return &canvas{
		image:    fb.Image,
		depth:    fb.Depth,
		width:    fb.Width,
		height:   fb.Height,
		channels: fb.Channels,
	}
}

func toByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// ToImage converts the image buffer to an 8-bit image, clamping values to
// [0, 1]. One channel is read as grey, two as grey and alpha, three as RGB
// and four as RGBA.
func (fb *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	C := fb.Channels
	for y := range fb.Height {
		for x := range fb.Width {
			p := fb.Image[C*(y*fb.Width+x) : C*(y*fb.Width+x)+C]
			var c color.RGBA
			switch C {
			case 1:
				g := toByte(p[0])
				c = color.RGBA{g, g, g, 255}
			case 2:
				g := toByte(p[0] * p[1])
				c = color.RGBA{g, g, g, toByte(p[1])}
			default:
				c = color.RGBA{toByte(p[0]), toByte(p[1]), toByte(p[2]), 255}
				if C >= 4 {
					a := toByte(p[3])
					// image.RGBA stores premultiplied colour.
					c.R = uint8(uint16(c.R) * uint16(a) / 255)
					c.G = uint8(uint16(c.G) * uint16(a) / 255)
					c.B = uint8(uint16(c.B) * uint16(a) / 255)
					c.A = a
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// SavePNG saves the image buffer as a PNG file.
func (fb *Framebuffer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, fb.ToImage()); err != nil {
		return fmt.Errorf("encode png %s: %w", path, err)
	}
	return nil
}

// SaveWebP saves the image buffer as a lossless WebP file.
func (fb *Framebuffer) SaveWebP(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := nativewebp.Encode(f, fb.ToImage(), nil); err != nil {
		return fmt.Errorf("encode webp %s: %w", path, err)
	}
	return nil
}

// Save writes the image buffer, choosing the format from the file extension.
func (fb *Framebuffer) Save(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		return fb.SaveWebP(path)
	case ".png", "":
		return fb.SavePNG(path)
	default:
		return fmt.Errorf("save %s: unsupported image format", path)
	}
}
