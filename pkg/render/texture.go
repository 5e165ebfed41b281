package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"

	_ "github.com/ftrvxmtrx/tga" // Register TGA decoder
	_ "golang.org/x/image/bmp"   // Register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Texture is a floating-point image with interleaved channels, laid out the
// way Scene.Texture expects: Data[C*(y*Width+x)+c], values nominally in [0, 1].
type Texture struct {
	Width    int
	Height   int
	Channels int
	Data     []float64
}

// NewTexture creates a black texture with the given dimensions.
func NewTexture(width, height, channels int) *Texture {
	return &Texture{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]float64, width*height*channels),
	}
}

// LoadImage decodes an image file. PNG, JPEG, TGA, BMP, TIFF and WebP are
// supported.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// LoadTexture loads a texture from an image file.
func LoadTexture(path string, channels int) (*Texture, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return TextureFromImage(img, channels), nil
}

// TextureFromImage converts an image to a texture with the given number of
// channels (1 grey, 2 grey and alpha, 3 RGB, 4 RGBA).
func TextureFromImage(img image.Image, channels int) *Texture {
	b := img.Bounds()
	tex := NewTexture(b.Dx(), b.Dy(), channels)
	fillBuffer(tex.Data, img, channels)
	return tex
}

// ImageToBuffer resamples img to width×height and returns it as a
// channel-interleaved buffer, suitable for Scene.Background or
// Options.Observed.
func ImageToBuffer(img image.Image, width, height, channels int) []float64 {
	src := img
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}
	buf := make([]float64, width*height*channels)
	fillBuffer(buf, src, channels)
	return buf
}

func fillBuffer(buf []float64, img image.Image, channels int) {
	b := img.Bounds()
	w := b.Dx()
	for y := range b.Dy() {
		for x := range w {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			px := buf[channels*(y*w+x) : channels*(y*w+x)+channels]
			switch channels {
			case 1, 2:
				px[0] = (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
				if channels == 2 {
					px[1] = float64(c.A) / 255
				}
			default:
				rgba := [4]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255, float64(c.A) / 255}
				copy(px, rgba[:])
			}
		}
	}
}

// NewCheckerTexture creates a checkerboard of two colours with squares of
// checkSize texels.
func NewCheckerTexture(width, height, checkSize int, c1, c2 []float64) *Texture {
	tex := NewTexture(width, height, len(c1))
	for y := range height {
		for x := range width {
			c := c2
			if (x/checkSize+y/checkSize)%2 == 0 {
				c = c1
			}
			copy(tex.Data[tex.Channels*(y*width+x):], c)
		}
	}
	return tex
}

// Bind installs the texture into the scene and allocates a matching
// gradient buffer when the scene already carries gradients.
func (t *Texture) Bind(s *Scene) error {
	if t.Channels != s.NbColors {
		return &SizeMismatchError{Field: "texture channels", Got: t.Channels, Want: s.NbColors}
	}
	s.Texture = t.Data
	s.TextureWidth = t.Width
	s.TextureHeight = t.Height
	if s.TextureB != nil {
		s.TextureB = make([]float64, len(t.Data))
	}
	return nil
}
