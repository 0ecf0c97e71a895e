package main

//---------------- Frame Compositor ----------------

// Compositor assembles the full frame from the widgets' cached canvases.
// Later entries stamp over earlier ones where regions overlap.
type Compositor struct {
	canvas     *Canvas
	background bool
}

func newCompositor(w, h int, background bool) *Compositor {
	return &Compositor{canvas: NewCanvas(w, h), background: background}
}

// Compose rebuilds the frame: background first, then every live widget
// cache blitted at its region in declaration order.
func (c *Compositor) Compose(states []*widgetState) *Canvas {
	c.canvas.Clear(c.background)
	for _, st := range states {
		if st.retired {
			continue
		}
		c.canvas.Blit(st.cached, st.region.Min.X, st.region.Min.Y)
	}
	return c.canvas
}
