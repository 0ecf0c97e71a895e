package main

import "log"

//---------------- Boot Animation ----------------

// bootAnimation reveals the logo left to right over a fixed number of
// frames, then retires itself for the rest of the run.
type bootAnimation struct {
	steps int
	step  int
	logo  *Canvas
}

func newBootAnimation(cfg BootConfig, w, h int) *bootAnimation {
	ba := &bootAnimation{steps: cfg.Steps}
	if cfg.Logo != "" {
		logo, err := loadLogoImage(cfg.Logo, w, h)
		if err != nil {
			log.Printf("boot logo %s: %v, using built-in", cfg.Logo, err)
		} else {
			ba.logo = logo
		}
	}
	if ba.logo == nil {
		ba.logo = builtinLogo(w, h)
	}
	return ba
}

func (b *bootAnimation) Name() string { return "boot" }

func (b *bootAnimation) Sample(c *Collector) error { return nil }

func (b *bootAnimation) Render(dst *Canvas) {
	b.step++
	t := float64(b.step) / float64(b.steps)
	if t > 1 {
		t = 1
	}
	reveal := int(easeInOut(t) * float64(dst.W))
	for y := 0; y < b.logo.H && y < dst.H; y++ {
		for x := 0; x < reveal && x < b.logo.W; x++ {
			dst.SetPixel(x, y, b.logo.PixelAt(x, y))
		}
	}
}

func (b *bootAnimation) Done() bool { return b.step >= b.steps }

// builtinLogo fills in when no logo file is configured: the project name
// in heavy type inside a border.
func builtinLogo(w, h int) *Canvas {
	cv := NewCanvas(w, h)
	cv.BorderRect(0, 0, w, h, true)
	title := "STAINED"
	sub := "STEEL"
	scale := 2
	cv.DrawTextScaled((w-len(title)*5*scale)/2, h/2-11, title, scale)
	cv.DrawTextScaled((w-len(sub)*5*scale)/2, h/2+1, sub, scale)
	return cv
}
