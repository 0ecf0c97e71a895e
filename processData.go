package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ping/ping"
)

//---------------- Metric Collection ----------------

type netSnapshot struct {
	iface  string
	rx, tx uint64
	at     time.Time
}

// Collector owns the metric sources and the small amount of state their
// deltas need. It is only ever driven from the tick loop, so no locking.
type Collector struct {
	prevCPUTotal uint64
	prevCPUIdle  uint64
	prevCPUSet   bool

	prevNet netSnapshot

	capsPath    string
	numPath     string
	scrollPath  string
	ledResolved bool
	leds        *ledWatcher

	audio *audioMonitor

	volumeTimeout time.Duration
	pingTimeout   time.Duration
}

func newCollector(leds *ledWatcher) *Collector {
	return &Collector{
		leds:          leds,
		audio:         &audioMonitor{},
		volumeTimeout: 300 * time.Millisecond,
		pingTimeout:   500 * time.Millisecond,
	}
}

// Close stops the audio capture child, if one is running.
func (c *Collector) Close() {
	c.audio.stop()
}

// CPUPercent returns aggregate load since the previous call. The first
// call only seeds the counters and reports zero.
func (c *Collector) CPUPercent() (float64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}
	total, idle, err := parseCPUStat(string(data))
	if err != nil {
		return 0, err
	}
	prevTotal, prevIdle := c.prevCPUTotal, c.prevCPUIdle
	seeded := c.prevCPUSet
	c.prevCPUTotal, c.prevCPUIdle = total, idle
	c.prevCPUSet = true
	if !seeded || total <= prevTotal {
		return 0, nil
	}
	dTotal := float64(total - prevTotal)
	dIdle := float64(idle - prevIdle)
	return clampPercent((dTotal - dIdle) / dTotal * 100), nil
}

func (c *Collector) MemPercent() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	return parseMemInfo(string(data)), nil
}

// NetworkRate returns receive and transmit bytes/second since the last
// call. The first call, and any call after the interface changed, seeds
// the counters and reports zero.
func (c *Collector) NetworkRate(preferred string) (down, up float64, err error) {
	data, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return 0, 0, err
	}
	iface, rx, tx, ok := parseNetDev(string(data), preferred)
	if !ok {
		return 0, 0, fmt.Errorf("no usable interface in /proc/net/dev")
	}
	now := time.Now()
	prev := c.prevNet
	c.prevNet = netSnapshot{iface: iface, rx: rx, tx: tx, at: now}
	if prev.iface != iface || prev.at.IsZero() {
		return 0, 0, nil
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 || rx < prev.rx || tx < prev.tx {
		return 0, 0, nil
	}
	return float64(rx-prev.rx) / dt, float64(tx-prev.tx) / dt, nil
}

// LockState reads the three lock keys. LED events from the input device
// win once one has been seen, sysfs is the fallback. A missing LED simply
// reads as off.
func (c *Collector) LockState() lockState {
	if c.leds != nil {
		if st, ok := c.leds.snapshot(); ok {
			return st
		}
	}
	if !c.ledResolved {
		c.resolveLedPaths()
	}
	return lockState{
		caps:   ledOn(c.capsPath),
		num:    ledOn(c.numPath),
		scroll: ledOn(c.scrollPath),
	}
}

func (c *Collector) resolveLedPaths() {
	c.ledResolved = true
	entries, err := os.ReadDir("/sys/class/leds")
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join("/sys/class/leds", name, "brightness")
		switch {
		case strings.Contains(name, "::capslock"):
			if c.capsPath == "" {
				c.capsPath = p
			}
		case strings.Contains(name, "::numlock"):
			if c.numPath == "" {
				c.numPath = p
			}
		case strings.Contains(name, "::scrolllock"):
			if c.scrollPath == "" {
				c.scrollPath = p
			}
		}
	}
}

func ledOn(path string) bool {
	if path == "" {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return err == nil && v > 0
}

func (c *Collector) Volume() (volumeSample, error) {
	return readVolume(c.volumeTimeout)
}

// AudioLevel reports what the default sink is currently playing. The
// underlying capture starts lazily on first use.
func (c *Collector) AudioLevel() (float64, []float64, error) {
	return c.audio.Level()
}

// PingRTT sends a single ICMP echo and waits up to the ping timeout for
// the reply.
func (c *Collector) PingRTT(host string) (time.Duration, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = c.pingTimeout
	if err := pinger.Run(); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no reply from %s", host)
	}
	return stats.AvgRtt, nil
}

//---------------- /proc Parsers ----------------

// parseCPUStat pulls the aggregate counters out of the first /proc/stat
// line. Fields that fail to parse are skipped, the kernel appends new
// ones over time.
func parseCPUStat(content string) (total, idle uint64, err error) {
	line, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(line, "cpu") {
		return 0, 0, fmt.Errorf("unexpected /proc/stat leader %q", line)
	}
	var vals []uint64
	for _, f := range strings.Fields(line)[1:] {
		v, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) < 5 {
		return 0, 0, fmt.Errorf("short cpu line in /proc/stat")
	}
	for _, v := range vals {
		total += v
	}
	idle = vals[3] + vals[4]
	return total, idle, nil
}

// parseMemInfo computes used percent from MemTotal and MemAvailable.
func parseMemInfo(content string) float64 {
	var total, avail float64
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = firstNumber(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			avail = firstNumber(line)
		}
	}
	if total <= 0 {
		return 0
	}
	return clampPercent((total - avail) / total * 100)
}

func firstNumber(line string) float64 {
	for _, f := range strings.Fields(line) {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return v
		}
	}
	return 0
}

// parseNetDev scans /proc/net/dev for the preferred interface, falling
// back to the first one that is not loopback.
func parseNetDev(content, preferred string) (iface string, rx, tx uint64, ok bool) {
	lines := strings.Split(content, "\n")
	if len(lines) <= 2 {
		return "", 0, 0, false
	}
	for _, line := range lines[2:] {
		name, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || name == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 16 {
			continue
		}
		r, err1 := strconv.ParseUint(fields[0], 10, 64)
		t, err2 := strconv.ParseUint(fields[8], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if name == preferred {
			return name, r, t, true
		}
		if !ok {
			iface, rx, tx, ok = name, r, t, true
		}
	}
	return iface, rx, tx, ok
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
