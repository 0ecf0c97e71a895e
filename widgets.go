package main

import (
	"fmt"
	"math"
	"time"
)

//---------------- Widget Interface ----------------

// Widget is one dashboard element. Sample pulls fresh data from the
// collector, Render paints it onto the widget's own region-sized canvas.
type Widget interface {
	Name() string
	Sample(c *Collector) error
	Render(dst *Canvas)
}

// finisher is implemented by widgets that retire themselves, like the
// boot animation.
type finisher interface {
	Done() bool
}

// newWidget builds the renderer for one profile entry.
func newWidget(wc WidgetConfig) (Widget, error) {
	switch wc.Type {
	case "cpu":
		return &cpuMonitor{cfg: wc}, nil
	case "volume":
		return &volumeSlider{cfg: wc}, nil
	case "memory":
		return &ramMonitor{cfg: wc}, nil
	case "network":
		return &networkMonitor{cfg: wc}, nil
	case "keyboard":
		return &keyboardCluster{}, nil
	case "lock":
		return &lockIndicator{key: wc.Key}, nil
	case "ping":
		return &pingMeter{host: wc.Host}, nil
	case "audio":
		return &audioScope{}, nil
	}
	return nil, fmt.Errorf("unknown widget type %q", wc.Type)
}

// drawNoData marks a widget whose first sample has not arrived yet.
func drawNoData(dst *Canvas) {
	dst.DrawTextTiny((dst.W-10)/2, (dst.H-5)/2, "--")
}

//---------------- Bar Helpers ----------------

func barDirection(cfg WidgetConfig, def string) string {
	if cfg.Bar != nil {
		return cfg.Bar.Direction
	}
	return def
}

func barBorder(cfg WidgetConfig, def bool) bool {
	if cfg.Bar != nil {
		return cfg.Bar.Border
	}
	return def
}

// drawBar fills the canvas proportionally to percent, optionally inside a
// one pixel border. Vertical bars fill bottom-up, horizontal ones left to
// right.
func drawBar(dst *Canvas, percent float64, direction string, border bool) {
	p := clampPercent(percent)
	if border {
		dst.BorderRect(0, 0, dst.W, dst.H, true)
	}
	innerX, innerY, innerW, innerH := 0, 0, dst.W, dst.H
	if border {
		innerX, innerY, innerW, innerH = 1, 1, dst.W-2, dst.H-2
	}
	if innerW <= 0 || innerH <= 0 {
		return
	}
	if direction == "vertical" {
		fillH := int(math.Round(float64(innerH) * p / 100))
		dst.FillRect(innerX, innerY+innerH-fillH, innerW, fillH, true)
	} else {
		fillW := int(math.Round(float64(innerW) * p / 100))
		dst.FillRect(innerX, innerY, fillW, innerH, true)
	}
}

//---------------- CPU ----------------

type cpuMonitor struct {
	cfg WidgetConfig
	pct float64
}

func (w *cpuMonitor) Name() string { return "cpu" }

func (w *cpuMonitor) Sample(c *Collector) error {
	pct, err := c.CPUPercent()
	if err != nil {
		return err
	}
	w.pct = pct
	return nil
}

func (w *cpuMonitor) Render(dst *Canvas) {
	drawBar(dst, w.pct, barDirection(w.cfg, "vertical"), barBorder(w.cfg, false))
	drawChipIcon(dst)
}

// chipBitmap is the 8x9 processor icon stamped near the top of the cpu
// bar, in invert so it stays visible as the fill rises past it.
var chipBitmap = [9][8]byte{
	{0, 0, 1, 0, 0, 1, 0, 0}, // top pins
	{0, 1, 1, 1, 1, 1, 1, 0}, // top edge
	{0, 1, 0, 0, 0, 0, 1, 0}, // body
	{1, 1, 0, 0, 0, 0, 1, 1}, // side pins
	{0, 1, 0, 1, 1, 0, 1, 0}, // body + die mark
	{1, 1, 0, 0, 0, 0, 1, 1}, // side pins
	{0, 1, 0, 0, 0, 0, 1, 0}, // body
	{0, 1, 1, 1, 1, 1, 1, 0}, // bottom edge
	{0, 0, 1, 0, 0, 1, 0, 0}, // bottom pins
}

func drawChipIcon(dst *Canvas) {
	ox := (dst.W - 8) / 2
	oy := 2
	for row := range chipBitmap {
		for col, px := range chipBitmap[row] {
			if px == 1 {
				dst.InvertPixel(ox+col, oy+row)
			}
		}
	}
}

//---------------- Volume ----------------

type volumeSlider struct {
	cfg WidgetConfig
	vol volumeSample
}

func (w *volumeSlider) Name() string { return "volume" }

func (w *volumeSlider) Sample(c *Collector) error {
	vol, err := c.Volume()
	if err != nil {
		return err
	}
	w.vol = vol
	return nil
}

func (w *volumeSlider) Render(dst *Canvas) {
	pct := w.vol.Percent
	if w.vol.Muted {
		pct = 0
	}
	drawBar(dst, pct, barDirection(w.cfg, "horizontal"), barBorder(w.cfg, true))

	if w.cfg.ShowIcon {
		drawSpeakerIcon(dst, pct, w.vol.Muted)
	}

	scale := 2
	text := fmt.Sprintf("%3d%%", int(math.Round(pct)))
	if w.vol.Muted {
		text = "MUTE"
	}
	textPx := len(text) * 5 * scale
	textH := 5 * scale
	leftBound := 1
	if w.cfg.ShowIcon {
		leftBound = 14
	}
	textX := dst.W - 2 - textPx + 1
	if textX < leftBound {
		textX = leftBound
	}
	textY := (dst.H - textH) / 2
	if textY < 0 {
		textY = 0
	}
	dst.InvertTextScaled(textX, textY, text, scale)
}

// drawSpeakerIcon stamps a speaker with up to three volume waves, all in
// invert so it reads over the bar fill. Muted replaces the waves with a
// slash across the speaker.
func drawSpeakerIcon(dst *Canvas, pct float64, muted bool) {
	cx := 2
	top := 3
	bot := dst.H - 4
	cy := dst.H / 2
	half := (bot - top) / 2

	bodyW := 3
	bodyHalf := half * 2 / 3
	dst.InvertRect(cx, cy-bodyHalf, bodyW, bodyHalf*2+1)

	dst.InvertLine(cx+bodyW, cy-bodyHalf, cx+bodyW+3, top)
	dst.InvertLine(cx+bodyW, cy+bodyHalf, cx+bodyW+3, bot)
	dst.InvertLine(cx+bodyW+3, top, cx+bodyW+3, bot)

	if muted {
		dst.InvertLine(cx, bot, cx+bodyW+3, top)
		return
	}

	waves := 0
	switch {
	case pct <= 0:
	case pct <= 33:
		waves = 1
	case pct <= 66:
		waves = 2
	default:
		waves = 3
	}
	if waves >= 1 {
		h := half / 3
		for dy := -h; dy <= h; dy++ {
			dst.InvertPixel(cx+bodyW+5, cy+dy)
		}
	}
	if waves >= 2 {
		h := half * 2 / 3
		for dy := -h; dy <= h; dy++ {
			dst.InvertPixel(cx+bodyW+7, cy+dy)
		}
	}
	if waves >= 3 {
		for dy := -half; dy <= half; dy++ {
			dst.InvertPixel(cx+bodyW+9, cy+dy)
		}
	}
}

//---------------- Memory ----------------

type ramMonitor struct {
	cfg     WidgetConfig
	pct     float64
	history []float64
}

func (w *ramMonitor) Name() string { return "memory" }

func (w *ramMonitor) Sample(c *Collector) error {
	pct, err := c.MemPercent()
	if err != nil {
		return err
	}
	w.push(pct)
	return nil
}

// push records a reading in the rolling history, trimming it to the
// configured length (region width when the profile does not set one).
func (w *ramMonitor) push(pct float64) {
	w.pct = pct

	histLen := w.cfg.Position.W
	if histLen < 1 {
		histLen = 1
	}
	if w.cfg.Graph != nil {
		histLen = w.cfg.Graph.History
	}
	if histLen < 2 {
		histLen = 2
	}
	w.history = append(w.history, pct)
	if len(w.history) > histLen {
		w.history = append(w.history[:0], w.history[len(w.history)-histLen:]...)
	}
}

func (w *ramMonitor) Render(dst *Canvas) {
	drawGraph(dst, w.history)
	text := fmt.Sprintf("%3d%%", int(math.Round(w.pct)))
	dst.DrawTextTiny(dst.W-len(text)*5-1, 1, text)
}

// drawGraph plots history across the full width, oldest sample at the
// left edge, with a checkerboard dither under the line.
func drawGraph(dst *Canvas, history []float64) {
	if len(history) < 2 || dst.W <= 1 || dst.H <= 1 {
		return
	}
	n := len(history)
	bottom := dst.H - 1

	// per-column line height, linearly interpolated between samples
	colY := make([]int, 0, dst.W)
	prevX := 0
	prevY := dst.H - 1 - int(history[0]/100*float64(dst.H-1))
	for i := 1; i < n; i++ {
		x := i * (dst.W - 1) / (n - 1)
		vy := dst.H - 1 - int(history[i]/100*float64(dst.H-1))
		dx := x - prevX
		for cx := prevX; cx <= x; cx++ {
			t := 0.0
			if dx != 0 {
				t = float64(cx-prevX) / float64(dx)
			}
			colY = append(colY, int(math.Round(float64(prevY)+t*float64(vy-prevY))))
		}
		prevX = x + 1
		prevY = vy
	}

	for ci, ly := range colY {
		for fy := ly + 1; fy <= bottom; fy++ {
			if (ci+fy)%2 == 0 {
				dst.SetPixel(ci, fy, true)
			}
		}
		dst.SetPixel(ci, ly, true)
	}
}

//---------------- Network ----------------

type networkMonitor struct {
	cfg  WidgetConfig
	down float64
	up   float64
}

func (w *networkMonitor) Name() string { return "network" }

func (w *networkMonitor) Sample(c *Collector) error {
	down, up, err := c.NetworkRate(w.cfg.Interface)
	if err != nil {
		return err
	}
	w.down, w.up = down, up
	return nil
}

func (w *networkMonitor) Render(dst *Canvas) {
	upVal, upUnit := humanRate(w.up)
	dnVal, dnUnit := humanRate(w.down)
	rightEdge := dst.W - 5

	dst.DrawTextTiny(1, 1, "U "+upVal)
	dst.DrawTextTiny(rightEdge, 1, upUnit)

	dst.DrawTextTiny(1, 10, "D "+dnVal)
	dst.DrawTextTiny(rightEdge, 10, dnUnit)
}

//---------------- Lock Keys ----------------

// lockIndicator shows a single lock key: caps and scroll as chevrons,
// num as the animated padlock.
type lockIndicator struct {
	key  string
	on   bool
	anim padlockAnim
}

func (w *lockIndicator) Name() string { return "lock" }

func (w *lockIndicator) Sample(c *Collector) error {
	st := c.LockState()
	switch w.key {
	case "caps":
		w.on = st.caps
	case "num":
		w.on = st.num
	case "scroll":
		w.on = st.scroll
	}
	return nil
}

func (w *lockIndicator) Render(dst *Canvas) {
	x := (dst.W - 9) / 2
	y := (dst.H - 10) / 2
	if y < 1 {
		y = 1
	}
	switch w.key {
	case "caps":
		drawChevron(dst, x, y, true, w.on)
	case "num":
		w.anim.observe(w.on)
		drawPadlock(dst, x, y, 9, w.on, &w.anim)
	case "scroll":
		drawChevron(dst, x, y, false, w.on)
	}
}

// keyboardCluster is the combined strip: caps chevron, num padlock and
// scroll chevron, right-aligned in its region.
type keyboardCluster struct {
	state lockState
	anim  padlockAnim
}

func (w *keyboardCluster) Name() string { return "keyboard" }

func (w *keyboardCluster) Sample(c *Collector) error {
	w.state = c.LockState()
	return nil
}

func (w *keyboardCluster) Render(dst *Canvas) {
	w.anim.observe(w.state.num)

	iconW := 9
	gap := 1
	startX := dst.W - (iconW*3 + gap*2) - 1
	if startX < 0 {
		startX = 0
	}
	y := 1

	drawChevron(dst, startX, y, true, w.state.caps)
	numX := startX + iconW + gap
	drawPadlock(dst, numX, y, iconW, w.state.num, &w.anim)
	drawChevron(dst, numX+iconW+gap, y, false, w.state.scroll)
}

// Chevron arrows as 9x10 bitmaps, one uint16 per row, bit 0 being the
// leftmost pixel. On is solid, off outline.
var (
	chevronUpSolid = [10]uint16{
		0x010, // ....X....
		0x038, // ...XXX...
		0x07C, // ..XXXXX..
		0x0FE, // .XXXXXXX.
		0x1FF, // XXXXXXXXX
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
	}
	chevronUpOutline = [10]uint16{
		0x010, // ....X....
		0x028, // ...X.X...
		0x044, // ..X...X..
		0x082, // .X.....X.
		0x1EF, // XXXX.XXXX
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x038, // ...XXX...
	}
	chevronDownSolid = [10]uint16{
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x038, // ...XXX...
		0x1FF, // XXXXXXXXX
		0x0FE, // .XXXXXXX.
		0x07C, // ..XXXXX..
		0x038, // ...XXX...
		0x010, // ....X....
	}
	chevronDownOutline = [10]uint16{
		0x038, // ...XXX...
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x028, // ...X.X...
		0x1EF, // XXXX.XXXX
		0x082, // .X.....X.
		0x044, // ..X...X..
		0x028, // ...X.X...
		0x010, // ....X....
	}
)

func drawChevron(dst *Canvas, x, y int, up, on bool) {
	var bitmap *[10]uint16
	switch {
	case up && on:
		bitmap = &chevronUpSolid
	case up:
		bitmap = &chevronUpOutline
	case on:
		bitmap = &chevronDownSolid
	default:
		bitmap = &chevronDownOutline
	}
	for row, bits := range bitmap {
		for col := 0; col < 9; col++ {
			if bits>>uint(col)&1 == 1 {
				dst.SetPixel(x+col, y+row, true)
			}
		}
	}
}

// padlockAnim eases the shackle between open and closed when the key
// toggles. Six frames per transition.
type padlockAnim struct {
	prevSet bool
	prev    bool
	step    int
	length  int
	from    bool
	to      bool
}

func (a *padlockAnim) observe(now bool) {
	if a.length == 0 {
		a.length = 6
	}
	// the first observation settles the steady state without animating
	if !a.prevSet {
		a.prev = now
		a.prevSet = true
		a.step = a.length
		return
	}
	if a.prev != now {
		a.from = a.prev
		a.to = now
		a.step = 0
	}
	a.prev = now
}

// openness is the shackle lift in pixels, 0 closed to 3 open, advancing
// the animation one frame per call.
func (a *padlockAnim) openness(on bool) int {
	if a.length == 0 {
		a.length = 6
	}
	open := 0
	if !on {
		open = 3
	}
	if a.step < a.length {
		from, to := 0.0, 0.0
		if !a.from {
			from = 3
		}
		if !a.to {
			to = 3
		}
		t := float64(a.step) / float64(a.length)
		open = int(math.Round(from + (to-from)*t))
		a.step++
	}
	return open
}

// drawPadlock draws a rounded shackle over a rectangular body. On fills
// the body with a keyhole dot, off leaves an outline with the shackle
// lifted open.
func drawPadlock(dst *Canvas, x, y, w int, on bool, anim *padlockAnim) {
	openness := anim.openness(on)

	bodyX := x + 1
	bodyY := y + 6
	bodyW := w - 2
	bodyH := 5

	if on {
		dst.FillRect(bodyX, bodyY, bodyW, bodyH, true)
		dst.SetPixel(x+w/2, bodyY+2, false)
	} else {
		dst.BorderRect(bodyX, bodyY, bodyW, bodyH, true)
	}

	shackleTop := y + 2 - openness
	left := x + 2
	right := x + w - 3

	dst.DrawLine(left, bodyY, left, shackleTop+1, true)
	dst.DrawLine(left+1, shackleTop, right-1, shackleTop, true)
	if openness <= 1 {
		dst.DrawLine(right, shackleTop+1, right, bodyY, true)
	} else {
		dst.DrawLine(right, shackleTop+openness, right, shackleTop+openness+1, true)
	}
}

//---------------- Audio Scope ----------------

// audioScope traces the sink's live output, oscilloscope style, with the
// smoothed level as a strip along the bottom edge.
type audioScope struct {
	level    float64
	waveform []float64
}

func (w *audioScope) Name() string { return "audio" }

func (w *audioScope) Sample(c *Collector) error {
	level, waveform, err := c.AudioLevel()
	if err != nil {
		return err
	}
	w.level, w.waveform = level, waveform
	return nil
}

func (w *audioScope) Render(dst *Canvas) {
	mid := (dst.H - 1) / 2
	if len(w.waveform) < 2 {
		// silence, flat trace
		dst.DrawLine(0, mid, dst.W-1, mid, true)
	} else {
		half := float64(dst.H-2) / 2
		n := len(w.waveform)
		prevY := mid
		for x := 0; x < dst.W; x++ {
			s := w.waveform[x*(n-1)/max(dst.W-1, 1)]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			y := mid - int(math.Round(s*half))
			if x == 0 {
				dst.SetPixel(x, y, true)
			} else {
				dst.DrawLine(x-1, prevY, x, y, true)
			}
			prevY = y
		}
	}

	fillW := int(math.Round(w.level / 100 * float64(dst.W)))
	dst.FillRect(0, dst.H-1, fillW, 1, true)
}

//---------------- Ping ----------------

// pingMeter shows round trip time to a fixed host.
type pingMeter struct {
	host string
	rtt  time.Duration
}

func (w *pingMeter) Name() string { return "ping" }

func (w *pingMeter) Sample(c *Collector) error {
	rtt, err := c.PingRTT(w.host)
	if err != nil {
		return err
	}
	w.rtt = rtt
	return nil
}

func (w *pingMeter) Render(dst *Canvas) {
	ms := w.rtt.Milliseconds()
	text := fmt.Sprintf("P %dMS", ms)
	if ms > 999 {
		text = "P ---"
	}
	ty := (dst.H - 5) / 2
	if ty < 0 {
		ty = 0
	}
	dst.DrawTextTiny(1, ty, text)
}
