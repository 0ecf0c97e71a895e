package main

import (
	"bytes"
	"fmt"
	"image/png"
	"log"
	"strconv"
	"sync"
	"time"

	svg "github.com/ajstarks/svgo"
	"github.com/gofiber/fiber/v2"
)

//---------------- Shared Snapshot ----------------

// preview is the tick loop's published copy of the latest frame plus the
// counters the status endpoint reports. The loop writes it once per
// tick, the handlers only ever read, so the live canvas stays single
// owner.
var preview struct {
	mu       sync.RWMutex
	frame    *Canvas
	name     string
	started  time.Time
	ticks    uint64
	written  uint64
	device   string
	failures int
	widgets  []widgetStatus
}

func initPreview(name string) {
	preview.mu.Lock()
	preview.name = name
	preview.started = time.Now()
	preview.mu.Unlock()
}

// publishPreview hands a finished canvas to the HTTP handlers.
func publishPreview(c *Canvas, ticks uint64, device string, failures int, written uint64, widgets []widgetStatus) {
	frame := c.Clone()
	preview.mu.Lock()
	preview.frame = frame
	preview.ticks = ticks
	preview.device = device
	preview.failures = failures
	preview.written = written
	preview.widgets = widgets
	preview.mu.Unlock()
}

//---------------- Routes ----------------

func newHTTPApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/frame.png", serveFramePNG)
	app.Get("/frame.svg", serveFrameSVG)
	app.Get("/status", serveStatus)
	app.Get("/healthz", serveHealthz)
	return app
}

func serveHTTP(listen string) {
	app := newHTTPApp()
	log.Printf("preview server on http://%s", listen)
	if err := app.Listen(listen); err != nil {
		log.Printf("preview server: %v", err)
	}
}

func serveFramePNG(c *fiber.Ctx) error {
	preview.mu.RLock()
	frame := preview.frame
	caption := fmt.Sprintf("%s  tick %d  device %s", preview.name, preview.ticks, preview.device)
	preview.mu.RUnlock()

	if frame == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("no frame composed yet")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, renderPreview(frame, caption)); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("failed to encode frame")
	}
	c.Set("Content-Type", "image/png")
	c.Set("Content-Length", strconv.Itoa(buf.Len()))
	return c.Send(buf.Bytes())
}

// serveFrameSVG renders the frame as vector art, one square per lit
// pixel, so the preview scales cleanly in a browser.
func serveFrameSVG(c *fiber.Ctx) error {
	preview.mu.RLock()
	frame := preview.frame
	preview.mu.RUnlock()

	if frame == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("no frame composed yet")
	}

	const cell = 6
	imgW := frame.W*cell + 2*cell
	imgH := frame.H*cell + 2*cell

	var buf bytes.Buffer
	s := svg.New(&buf)
	s.Start(imgW, imgH)
	s.Roundrect(0, 0, imgW, imgH, 8, 8, "fill:#15191e")
	for y := 0; y < frame.H; y++ {
		for x := 0; x < frame.W; x++ {
			if frame.PixelAt(x, y) {
				s.Square(cell+x*cell, cell+y*cell, cell-1, "fill:#e9f2ff")
			}
		}
	}
	s.End()

	c.Set("Content-Type", "image/svg+xml")
	return c.Send(buf.Bytes())
}

func serveStatus(c *fiber.Ctx) error {
	preview.mu.RLock()
	defer preview.mu.RUnlock()
	return c.JSON(fiber.Map{
		"name":           preview.name,
		"uptime_s":       int(time.Since(preview.started).Seconds()),
		"ticks":          preview.ticks,
		"frames_written": preview.written,
		"device_state":   preview.device,
		"write_failures": preview.failures,
		"widgets":        preview.widgets,
	})
}

func serveHealthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}
