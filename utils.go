package main

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/holoplot/go-evdev"
)

//---------------- Small Helpers ----------------

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// easeInOut maps linear progress 0..1 onto a sinusoidal ease.
func easeInOut(t float64) float64 {
	return 0.5 * (1 - math.Cos(math.Pi*t))
}

// humanRate formats a bytes/second rate, returning the value and its unit
// separately so the two can be pinned to opposite edges of a widget.
func humanRate(bytesPerSec float64) (string, string) {
	units := []string{"B", "K", "M", "G"}
	v := bytesPerSec
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f", v), units[i]
	}
	return fmt.Sprintf("%.1f", v), units[i]
}

//---------------- Keyboard LED Watcher ----------------

// lockState is one snapshot of the three lock keys.
type lockState struct {
	caps, num, scroll bool
}

// ledWatcher mirrors LED events from the keyboard's input device. Until
// the first event arrives the sysfs poll in the collector is the source
// of truth.
type ledWatcher struct {
	mu    sync.Mutex
	seen  bool
	state lockState
}

func (w *ledWatcher) snapshot() (lockState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.seen
}

func (w *ledWatcher) set(code evdev.EvCode, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch code {
	case evdev.LED_CAPSL:
		w.state.caps = on
	case evdev.LED_NUML:
		w.state.num = on
	case evdev.LED_SCROLLL:
		w.state.scroll = on
	default:
		return
	}
	w.seen = true
}

// startLedWatcher finds the first input device whose name contains
// inputName and tails its LED events. The device is not grabbed, key
// events keep flowing to the session. The reader exits on the first read
// error and the sysfs fallback takes over again.
func startLedWatcher(inputName string) *ledWatcher {
	w := &ledWatcher{}
	go func() {
		devicePaths, err := evdev.ListDevicePaths()
		if err != nil {
			log.Printf("led watcher: list input devices: %v", err)
			return
		}
		for _, p := range devicePaths {
			if !strings.Contains(p.Name, inputName) {
				continue
			}
			d, err := evdev.Open(p.Path)
			if err != nil {
				log.Printf("led watcher: open %s: %v", p.Path, err)
				continue
			}
			log.Printf("led watcher: following %s (%s)", p.Name, p.Path)
			for {
				ev, err := d.ReadOne()
				if err != nil {
					log.Printf("led watcher: read %s: %v", p.Path, err)
					return
				}
				if ev.Type == evdev.EV_LED {
					w.set(ev.Code, ev.Value > 0)
				}
			}
		}
		log.Printf("led watcher: no input device matching %q", inputName)
	}()
	return w
}
