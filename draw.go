package main

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

//---------------- Tiny Bitmap Font ----------------

// tinyFont is a 4x5 pixel font with 1px strokes. Each glyph is five rows;
// in a row, bit n is column n with bit 0 leftmost.
var tinyFont = map[rune][5]byte{
	'0': {0b0110, 0b1001, 0b1001, 0b1001, 0b0110},
	'1': {0b0010, 0b0011, 0b0010, 0b0010, 0b0111},
	'2': {0b0110, 0b1000, 0b0100, 0b0010, 0b1111},
	'3': {0b0110, 0b1000, 0b0110, 0b1000, 0b0110},
	'4': {0b1001, 0b1001, 0b1111, 0b1000, 0b1000},
	'5': {0b1111, 0b0001, 0b0111, 0b1000, 0b0111},
	'6': {0b0110, 0b0001, 0b0111, 0b1001, 0b0110},
	'7': {0b1111, 0b1000, 0b0100, 0b0010, 0b0010},
	'8': {0b0110, 0b1001, 0b0110, 0b1001, 0b0110},
	'9': {0b0110, 0b1001, 0b1110, 0b1000, 0b0110},
	'A': {0b0110, 0b1001, 0b1111, 0b1001, 0b1001},
	'B': {0b0111, 0b1001, 0b0111, 0b1001, 0b0111},
	'C': {0b0110, 0b0001, 0b0001, 0b0001, 0b0110},
	'D': {0b0111, 0b1001, 0b1001, 0b1001, 0b0111},
	'E': {0b1111, 0b0001, 0b0111, 0b0001, 0b1111},
	'F': {0b1111, 0b0001, 0b0111, 0b0001, 0b0001},
	'G': {0b0110, 0b0001, 0b1101, 0b1001, 0b0110},
	'H': {0b1001, 0b1001, 0b1111, 0b1001, 0b1001},
	'I': {0b0111, 0b0010, 0b0010, 0b0010, 0b0111},
	'J': {0b1100, 0b1000, 0b1000, 0b1001, 0b0110},
	'K': {0b1001, 0b0101, 0b0011, 0b0101, 0b1001},
	'L': {0b0001, 0b0001, 0b0001, 0b0001, 0b1111},
	'M': {0b1001, 0b1111, 0b0101, 0b1001, 0b1001},
	'N': {0b1001, 0b1011, 0b1101, 0b1001, 0b1001},
	'O': {0b0110, 0b1001, 0b1001, 0b1001, 0b0110},
	'P': {0b0111, 0b1001, 0b0111, 0b0001, 0b0001},
	'Q': {0b0110, 0b1001, 0b1001, 0b0101, 0b1110},
	'R': {0b0111, 0b1001, 0b0111, 0b0101, 0b1001},
	'S': {0b0110, 0b0001, 0b0110, 0b1000, 0b0110},
	'T': {0b1111, 0b0010, 0b0010, 0b0010, 0b0010},
	'U': {0b1001, 0b1001, 0b1001, 0b1001, 0b0110},
	'V': {0b1001, 0b1001, 0b1001, 0b0110, 0b0110},
	'W': {0b1001, 0b1001, 0b0101, 0b1111, 0b1001},
	'X': {0b1001, 0b1001, 0b0110, 0b1001, 0b1001},
	'Y': {0b1001, 0b1001, 0b0110, 0b0010, 0b0010},
	'Z': {0b1111, 0b1000, 0b0100, 0b0010, 0b1111},
	'.': {0b0000, 0b0000, 0b0000, 0b0000, 0b0010},
	'/': {0b1000, 0b0100, 0b0110, 0b0010, 0b0001},
	':': {0b0000, 0b0010, 0b0000, 0b0010, 0b0000},
	'-': {0b0000, 0b0000, 0b1111, 0b0000, 0b0000},
	'%': {0b1001, 0b0100, 0b0110, 0b0010, 0b1001},
	' ': {0b0000, 0b0000, 0b0000, 0b0000, 0b0000},
}

// DrawTextScaled renders text with the tiny font at an integer scale.
// Advance is 5*scale, leaving a one column gap between glyphs. Characters
// without a glyph still advance the cursor.
func (c *Canvas) DrawTextScaled(x, y int, text string, scale int) {
	s := scale
	if s < 1 {
		s = 1
	}
	cursorX := x
	for _, ch := range text {
		if glyph, ok := tinyFont[unicode.ToUpper(ch)]; ok {
			for row := 0; row < 5; row++ {
				for col := 0; col < 4; col++ {
					if glyph[row]>>uint(col)&1 == 1 {
						c.FillRect(cursorX+col*s, y+row*s, s, s, true)
					}
				}
			}
		}
		cursorX += 5 * s
	}
}

// InvertTextScaled is DrawTextScaled flipping pixels instead of setting
// them, for text placed over filled bars.
func (c *Canvas) InvertTextScaled(x, y int, text string, scale int) {
	s := scale
	if s < 1 {
		s = 1
	}
	cursorX := x
	for _, ch := range text {
		if glyph, ok := tinyFont[unicode.ToUpper(ch)]; ok {
			for row := 0; row < 5; row++ {
				for col := 0; col < 4; col++ {
					if glyph[row]>>uint(col)&1 == 1 {
						c.InvertRect(cursorX+col*s, y+row*s, s, s)
					}
				}
			}
		}
		cursorX += 5 * s
	}
}

func (c *Canvas) DrawTextTiny(x, y int, text string) {
	c.DrawTextScaled(x, y, text, 1)
}

//---------------- Logo Loading ----------------

// loadLogoImage reads a logo file and thresholds it onto a w x h canvas.
// PNG, JPEG, GIF and SVG are accepted; SVG is rasterized at the target
// size, raster formats are rescaled to it.
func loadLogoImage(filePath string, w, h int) (*Canvas, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".svg":
		icon, err := oksvg.ReadIconStream(f)
		if err != nil {
			return nil, fmt.Errorf("parse svg %s: %v", filePath, err)
		}
		icon.SetTarget(0, 0, float64(w), float64(h))
		scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
		icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	case ".png", ".jpg", ".jpeg", ".gif":
		var src image.Image
		switch ext {
		case ".png":
			src, err = png.Decode(f)
		case ".jpg", ".jpeg":
			src, err = jpeg.Decode(f)
		case ".gif":
			src, err = gif.Decode(f)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %v", filePath, err)
		}
		draw.NearestNeighbor.Scale(rgba, rgba.Bounds(), src, src.Bounds(), draw.Src, nil)
	default:
		return nil, fmt.Errorf("unsupported logo format: %s", ext)
	}

	cv := NewCanvas(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := rgba.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			luma := (299*r + 587*g + 114*b) / 1000
			cv.SetPixel(x, y, luma >= 0x8000)
		}
	}
	return cv, nil
}

//---------------- Preview Rendering ----------------

const (
	PREVIEW_SCALE     = 4
	PREVIEW_MARGIN    = 16
	PREVIEW_CAPTION_H = 18
)

var (
	previewLit   = color.RGBA{0xE9, 0xF2, 0xFF, 0xFF}
	previewUnlit = color.RGBA{0x15, 0x19, 0x1E, 0xFF}
	previewBezel = color.RGBA{0x40, 0x46, 0x4E, 0xFF}
	previewMatte = color.RGBA{0x23, 0x27, 0x2D, 0xFF}
)

// renderPreview scales a frame up for the HTTP preview, drawing it inside
// a rounded bezel with a caption strip underneath.
func renderPreview(c *Canvas, caption string) *image.RGBA {
	imgW := c.W*PREVIEW_SCALE + 2*PREVIEW_MARGIN
	imgH := c.H*PREVIEW_SCALE + 2*PREVIEW_MARGIN + PREVIEW_CAPTION_H
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH))
	draw.Draw(img, img.Bounds(), image.NewUniform(previewMatte), image.Point{}, draw.Src)

	gc := draw2dimg.NewGraphicContext(img)
	gc.SetFillColor(previewUnlit)
	gc.SetStrokeColor(previewBezel)
	gc.SetLineWidth(2)
	draw2dkit.RoundedRectangle(gc, 4, 4, float64(imgW-4), float64(imgH-PREVIEW_CAPTION_H-4), 14, 14)
	gc.FillStroke()

	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			if !c.Pix[y*c.W+x] {
				continue
			}
			px := PREVIEW_MARGIN + x*PREVIEW_SCALE
			py := PREVIEW_MARGIN + y*PREVIEW_SCALE
			// one pixel gap between dots
			drawRect(img, px, py, PREVIEW_SCALE-1, PREVIEW_SCALE-1, previewLit)
		}
	}

	drawText(img, caption, PREVIEW_MARGIN, imgH-PREVIEW_CAPTION_H, basicfont.Face7x13, previewLit)
	return img
}

func drawRect(img *image.RGBA, x0, y0, width, height int, c color.Color) {
	for y := y0; y < y0+height; y++ {
		for x := x0; x < x0+width; x++ {
			img.Set(x, y, c)
		}
	}
}

// drawText draws a string onto an *image.RGBA at (x,y) using the specified
// font face and color, returning the finishing pen position.
func drawText(img *image.RGBA, text string, posX, posY int, face font.Face, clr color.Color) (finishX, finishY int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
	}
	y := posY + face.Metrics().Ascent.Round()
	d.Dot = fixed.P(posX, y)
	d.DrawString(text)
	return d.Dot.X.Ceil(), posY + face.Metrics().Height.Round()
}
