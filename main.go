package main

import (
	"errors"
	"flag"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

//---------------- Panel Constants ----------------

const (
	OLED_WIDTH  = 128
	OLED_HEIGHT = 40

	MIN_REFRESH_MS = 33

	DEFAULT_PROFILE_PATH       = "profiles/dashboard.json"
	DEFAULT_WRITE_RETRIES      = 3
	DEFAULT_RETRY_BACKOFF_MS   = 20
	DEFAULT_MAX_WRITE_FAILURES = 10
	DEFAULT_BOOT_STEPS         = 24
)

//---------------- Startup ----------------

func main() {
	configPath := flag.String("config", "", "profile file overriding the default search path")
	one := flag.Bool("one", false, "render and send a single frame, then exit")
	flag.Parse()

	profile := mustLoadProfile(*configPath)

	var leds *ledWatcher
	if profile.Device.InputName != "" {
		leds = startLedWatcher(profile.Device.InputName)
	}
	collector := newCollector(leds)
	defer collector.Close()

	sched, err := buildScheduler(profile, *one)
	if err != nil {
		log.Fatalf("profile widgets: %v", err)
	}
	comp := newCompositor(profile.Display.Width, profile.Display.Height, profile.Display.Background > 0)

	sender, err := newHidSender(profile)
	if err != nil {
		log.Fatalf("device config: %v", err)
	}

	initPreview(profileName(profile))
	if profile.HTTPListen != "" {
		go serveHTTP(profile.HTTPListen)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.Printf("running %s at %dms/frame", profileName(profile), profile.RefreshRateMs)

	if err := runLoop(profile, sched, comp, collector, sender, *one, stop); err != nil {
		log.Printf("giving up: %v", err)
		sender.Close()
		collector.Close()
		os.Exit(1)
	}

	if err := sender.Halt(); err != nil {
		log.Printf("blank on shutdown: %v", err)
	}
	sender.Close()
}

// mustLoadProfile resolves and loads the profile. The built-in layout
// only applies when no file exists anywhere on the search path; an
// explicit -config that fails to load is fatal, never silently replaced.
func mustLoadProfile(override string) *Profile {
	path := resolveConfigPath(override)
	if path == "" {
		log.Printf("no profile found, using built-in defaults")
		return defaultProfile()
	}
	p, err := loadProfile(path)
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}
	log.Printf("profile %s loaded from %s", profileName(p), path)
	return p
}

func profileName(p *Profile) string {
	if p.ConfigName == "" {
		return "dashboard"
	}
	return p.ConfigName
}

// buildScheduler instantiates every enabled widget in declaration order,
// then appends the boot animation last so it covers the whole panel
// until it completes. Single-shot runs skip the animation, the one frame
// they push should be the dashboard itself.
func buildScheduler(p *Profile, oneShot bool) (*Scheduler, error) {
	s := newScheduler(p.Display.Background > 0)
	for i := range p.Widgets {
		wc := &p.Widgets[i]
		if !wc.isEnabled() {
			continue
		}
		w, err := newWidget(*wc)
		if err != nil {
			return nil, err
		}
		pos := wc.Position
		s.add(w, wc.Type, image.Rect(pos.X, pos.Y, pos.X+pos.W, pos.Y+pos.H), wc.cadence())
	}
	if p.bootEnabled() && !oneShot {
		boot := newBootAnimation(p.Boot, p.Display.Width, p.Display.Height)
		s.add(boot, "boot", image.Rect(0, 0, p.Display.Width, p.Display.Height), 0)
	}
	return s, nil
}

//---------------- Master Tick Loop ----------------

// frameSink is the slice of the transport the loop needs, split out so
// tests can run ticks against a fake device.
type frameSink interface {
	Send(packet []byte) error
	cooldown() time.Duration
	stats() (state string, failures int, written uint64)
}

// runLoop drives scheduler, compositor, packer and transport in strict
// sequence, one tick per refresh interval, sleeping away whatever the
// tick did not use. Returns nil on clean shutdown or after the single
// shot; a device that stays unreachable past its failure budget surfaces
// as an error and the caller exits non-zero.
func runLoop(p *Profile, sched *Scheduler, comp *Compositor, col *Collector, sink frameSink, one bool, stop <-chan os.Signal) error {
	tick := time.Duration(p.RefreshRateMs) * time.Millisecond
	var ticks uint64

	for {
		started := time.Now()

		sched.Tick(started, col)
		canvas := comp.Compose(sched.states)
		packet := packFrame(canvas)

		if err := sink.Send(packet); err != nil {
			if errors.Is(err, errDeviceGone) {
				return err
			}
			log.Printf("send: %v", err)
		}

		ticks++
		state, failures, written := sink.stats()
		publishPreview(canvas, ticks, state, failures, written, sched.statuses())

		if one {
			return nil
		}

		// elapsed-compensated sleep, stretched while the device is down
		pause := tick - time.Since(started)
		if cd := sink.cooldown(); cd > pause {
			pause = cd
		}
		if pause <= 0 {
			select {
			case <-stop:
				return nil
			default:
			}
			continue
		}
		select {
		case <-stop:
			return nil
		case <-time.After(pause):
		}
	}
}
