package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw renders the image buffer onto a terminal screen. Each terminal row
// shows two image rows using the upper half block with the top pixel as
// foreground and the bottom pixel as background, so the framebuffer height
// should be twice the number of rows in area.
func (fb *Framebuffer) Draw(scr uv.Screen, area uv.Rectangle) {
	for row := area.Min.Y; row < area.Max.Y; row++ {
		topY := (row - area.Min.Y) * 2
		botY := topY + 1
		if topY >= fb.Height {
			break
		}

		for col := area.Min.X; col < area.Max.X; col++ {
			x := col - area.Min.X
			if x >= fb.Width {
				break
			}
			cell := &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: fb.pixelColor(x, topY),
					Bg: fb.pixelColor(x, botY),
				},
			}
			scr.SetCell(col, row, cell)
		}
	}
}

// pixelColor returns the 8-bit colour of pixel (x, y), or nil outside the
// buffer so the terminal default shows through.
func (fb *Framebuffer) pixelColor(x, y int) color.Color {
	if x < 0 || x >= fb.Width || y < 0 || y >= fb.Height {
		return nil
	}
	C := fb.Channels
	p := fb.Image[C*(y*fb.Width+x) : C*(y*fb.Width+x)+C]
	if C < 3 {
		g := toByte(p[0])
		return color.RGBA{g, g, g, 255}
	}
	return color.RGBA{toByte(p[0]), toByte(p[1]), toByte(p[2]), 255}
}
