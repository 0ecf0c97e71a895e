package main

import (
	"image"
	"log"
	"time"
)

//---------------- Widget Scheduler ----------------

// widgetState tracks one widget's cached rendering and when it last
// sampled. The cache always holds the most recent successful render,
// sized to the widget's region.
type widgetState struct {
	widget     Widget
	kind       string
	region     image.Rectangle
	cadence    time.Duration
	lastSample time.Time
	cached     *Canvas
	rendered   bool
	retired    bool
}

// due reports whether the widget should resample at now. A zero cadence
// means every tick, and a widget that has never rendered is always due.
func (st *widgetState) due(now time.Time) bool {
	if !st.rendered {
		return true
	}
	return now.Sub(st.lastSample) >= st.cadence
}

// Scheduler decides per tick which widgets resample and rerender. States
// keep profile order, which is also compositing order.
type Scheduler struct {
	states     []*widgetState
	background bool
}

func newScheduler(background bool) *Scheduler {
	return &Scheduler{background: background}
}

func (s *Scheduler) add(w Widget, kind string, region image.Rectangle, cadence time.Duration) {
	s.states = append(s.states, &widgetState{
		widget:  w,
		kind:    kind,
		region:  region,
		cadence: cadence,
		cached:  NewCanvas(region.Dx(), region.Dy()),
	})
}

// Tick runs one scheduling pass: every due widget samples and rerenders
// its cache. Sample failures are logged and absorbed, the stale cache (or
// a placeholder before the first success) keeps compositing. Widgets that
// are not due are left completely untouched.
func (s *Scheduler) Tick(now time.Time, col *Collector) {
	for _, st := range s.states {
		if st.retired || !st.due(now) {
			continue
		}
		if err := st.widget.Sample(col); err != nil {
			log.Printf("sample %s: %v", st.widget.Name(), err)
			st.lastSample = now
			if !st.rendered {
				st.cached.Clear(s.background)
				drawNoData(st.cached)
			}
			continue
		}
		st.cached.Clear(s.background)
		st.widget.Render(st.cached)
		st.rendered = true
		st.lastSample = now
		if f, ok := st.widget.(finisher); ok && f.Done() {
			st.retired = true
		}
	}
}

// widgetStatus is the status endpoint's view of one widget.
type widgetStatus struct {
	Type       string    `json:"type"`
	LastSample time.Time `json:"last_sample"`
	CadenceMs  int64     `json:"cadence_ms"`
	Retired    bool      `json:"retired"`
}

func (s *Scheduler) statuses() []widgetStatus {
	out := make([]widgetStatus, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, widgetStatus{
			Type:       st.kind,
			LastSample: st.lastSample,
			CadenceMs:  st.cadence.Milliseconds(),
			Retired:    st.retired,
		})
	}
	return out
}
