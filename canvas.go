package main

import (
	"image"
	"image/color"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

//---------------- Monochrome Canvas ----------------

// Canvas is a 1-bit framebuffer sized for the keyboard OLED. Pixels are
// stored row-major, true meaning lit.
type Canvas struct {
	W, H int
	Pix  []bool
}

func NewCanvas(w, h int) *Canvas {
	return &Canvas{W: w, H: h, Pix: make([]bool, w*h)}
}

// Clone returns a deep copy, used when handing frames to the preview server.
func (c *Canvas) Clone() *Canvas {
	out := &Canvas{W: c.W, H: c.H, Pix: make([]bool, len(c.Pix))}
	copy(out.Pix, c.Pix)
	return out
}

func (c *Canvas) Clear(on bool) {
	for i := range c.Pix {
		c.Pix[i] = on
	}
}

// SetPixel turns one pixel on or off. Coordinates outside the canvas are
// silently ignored so shapes can hang over the edges.
func (c *Canvas) SetPixel(x, y int, on bool) {
	if x < 0 || y < 0 || x >= c.W || y >= c.H {
		return
	}
	c.Pix[y*c.W+x] = on
}

func (c *Canvas) PixelAt(x, y int) bool {
	if x < 0 || y < 0 || x >= c.W || y >= c.H {
		return false
	}
	return c.Pix[y*c.W+x]
}

func (c *Canvas) InvertPixel(x, y int) {
	if x < 0 || y < 0 || x >= c.W || y >= c.H {
		return
	}
	c.Pix[y*c.W+x] = !c.Pix[y*c.W+x]
}

func (c *Canvas) FillRect(x, y, w, h int, on bool) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c.SetPixel(x+dx, y+dy, on)
		}
	}
}

// InvertRect flips every pixel in the block, used to stamp shapes that stay
// visible on both dark and filled backgrounds.
func (c *Canvas) InvertRect(x, y, w, h int) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c.InvertPixel(x+dx, y+dy)
		}
	}
}

// BorderRect draws a one pixel outline.
func (c *Canvas) BorderRect(x, y, w, h int, on bool) {
	if w <= 0 || h <= 0 {
		return
	}
	for dx := 0; dx < w; dx++ {
		c.SetPixel(x+dx, y, on)
		c.SetPixel(x+dx, y+h-1, on)
	}
	for dy := 0; dy < h; dy++ {
		c.SetPixel(x, y+dy, on)
		c.SetPixel(x+w-1, y+dy, on)
	}
}

// DrawLine draws with Bresenham's algorithm. Both endpoints are included.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int, on bool) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		c.SetPixel(x0, y0, on)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) InvertLine(x0, y0, x1, y1 int) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		c.InvertPixel(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Blit copies src onto the canvas with its top-left corner at (x0, y0).
// Parts falling outside the destination are clipped.
func (c *Canvas) Blit(src *Canvas, x0, y0 int) {
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			c.SetPixel(x0+x, y0+y, src.Pix[y*src.W+x])
		}
	}
}

//---------------- Image Adapter ----------------

// Canvas doubles as a draw.Image so the periph display tooling and the
// stdlib image pipeline can target it directly.

func (c *Canvas) ColorModel() color.Model { return image1bit.BitModel }

func (c *Canvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.W, c.H) }

func (c *Canvas) At(x, y int) color.Color {
	if c.PixelAt(x, y) {
		return image1bit.On
	}
	return image1bit.Off
}

func (c *Canvas) Set(x, y int, col color.Color) {
	c.SetPixel(x, y, bool(image1bit.BitModel.Convert(col).(image1bit.Bit)))
}
