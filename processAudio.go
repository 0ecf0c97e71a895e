package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

//---------------- Volume Probes ----------------

// volumeSample is one reading of the default audio sink.
type volumeSample struct {
	Percent float64
	Muted   bool
}

// readVolume queries the default sink, trying wpctl, then pactl, then
// amixer. Every probe runs under the same timeout so a hung mixer cannot
// stall the tick loop.
func readVolume(timeout time.Duration) (volumeSample, error) {
	if out, ok := runMixerCmd(timeout, "wpctl", "get-volume", "@DEFAULT_AUDIO_SINK@"); ok {
		if s, ok := parseWpctlVolume(out); ok {
			return s, nil
		}
	}
	if out, ok := runMixerCmd(timeout, "pactl", "get-sink-volume", "@DEFAULT_SINK@"); ok {
		if s, ok := parsePactlVolume(out); ok {
			return s, nil
		}
	}
	if out, ok := runMixerCmd(timeout, "amixer", "get", "Master"); ok {
		if s, ok := parseAmixerVolume(out); ok {
			return s, nil
		}
	}
	return volumeSample{}, fmt.Errorf("no volume source responded")
}

func runMixerCmd(timeout time.Duration, name string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", false
	}
	return string(out), true
}

// parseWpctlVolume reads wpctl's "Volume: 0.37" form, where the value is
// a fraction of full scale.
func parseWpctlVolume(out string) (volumeSample, bool) {
	if strings.Contains(out, "[MUTED]") {
		return volumeSample{Muted: true}, true
	}
	for _, token := range strings.Fields(out) {
		if v, err := strconv.ParseFloat(token, 64); err == nil {
			return volumeSample{Percent: clampPercent(v * 100)}, true
		}
	}
	return volumeSample{}, false
}

// parsePactlVolume reads pactl's channel listing. pactl does not report
// mute state on this command, so the flag stays false.
func parsePactlVolume(out string) (volumeSample, bool) {
	if pct, ok := parsePercentFromText(out); ok {
		return volumeSample{Percent: pct}, true
	}
	return volumeSample{}, false
}

func parseAmixerVolume(out string) (volumeSample, bool) {
	if strings.Contains(out, "[off]") {
		return volumeSample{Muted: true}, true
	}
	if pct, ok := parsePercentFromText(out); ok {
		return volumeSample{Percent: pct}, true
	}
	return volumeSample{}, false
}

// parsePercentFromText finds the first percentage token in mixer output,
// accepting both the "[37%]" and bare "37%" forms.
func parsePercentFromText(input string) (float64, bool) {
	for _, token := range strings.Fields(input) {
		if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "%]") {
			v := strings.TrimSuffix(strings.TrimPrefix(token, "["), "%]")
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return clampPercent(parsed), true
			}
		}
		if v, found := strings.CutSuffix(token, "%"); found {
			v = strings.TrimFunc(v, func(r rune) bool {
				return (r < '0' || r > '9') && r != '.'
			})
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return clampPercent(parsed), true
			}
		}
	}
	return 0, false
}

//---------------- Output Level Monitor ----------------

const (
	AUDIO_SAMPLE_RATE = 8000
	AUDIO_WINDOW      = 128 // samples per level reading

	audioBufferCap    = 4096
	audioProbeBackoff = 1500 * time.Millisecond
)

// audioMonitor tails the default sink's monitor source through parec and
// folds the raw samples into a smoothed output level. A reader goroutine
// drains the child's pipe so parec never blocks; Level only touches the
// shared tail buffer under the lock. When the child dies the next Level
// call reprobes, rate limited so a missing parec does not fork every
// tick.
type audioMonitor struct {
	mu        sync.Mutex
	buf       []byte
	cmd       *exec.Cmd
	running   bool
	lastProbe time.Time
	ema       float64
}

// Level returns the smoothed output level in percent and the raw sample
// window behind it, newest last. An idle sink yields level 0 and no
// waveform.
func (m *audioMonitor) Level() (float64, []float64, error) {
	m.mu.Lock()
	running := m.running
	sinceProbe := time.Since(m.lastProbe)
	m.mu.Unlock()

	if !running {
		if sinceProbe < audioProbeBackoff {
			return 0, nil, fmt.Errorf("audio monitor down")
		}
		if err := m.start(); err != nil {
			return 0, nil, err
		}
	}

	m.mu.Lock()
	tail := m.buf
	if window := AUDIO_WINDOW * 2; len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	raw := make([]byte, len(tail)-len(tail)%2)
	copy(raw, tail)
	m.mu.Unlock()

	if len(raw) < 24 {
		return m.smooth(0), nil, nil
	}

	waveform := make([]float64, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		waveform = append(waveform, float64(int16(binary.LittleEndian.Uint16(raw[i:])))/32768)
	}
	level := levelFromSamples(waveform)
	if level == 0 {
		waveform = nil
	}
	return m.smooth(level), waveform, nil
}

func (m *audioMonitor) start() error {
	m.mu.Lock()
	m.lastProbe = time.Now()
	m.mu.Unlock()

	source, err := defaultSinkMonitor(300 * time.Millisecond)
	if err != nil {
		return err
	}
	cmd := exec.Command("parec",
		"-d", source,
		"--raw", "--format=s16le",
		fmt.Sprintf("--rate=%d", AUDIO_SAMPLE_RATE),
		"--channels=1",
		"--latency-msec=20", "--process-time-msec=20")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start parec: %w", err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.running = true
	m.buf = m.buf[:0]
	m.mu.Unlock()

	go m.follow(stdout, cmd)
	return nil
}

// follow keeps only the newest bytes of the capture stream. Exits on the
// first read error; the next Level call reprobes.
func (m *audioMonitor) follow(r io.Reader, cmd *exec.Cmd) {
	chunk := make([]byte, 512)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			m.mu.Lock()
			m.buf = append(m.buf, chunk[:n]...)
			if len(m.buf) > audioBufferCap {
				m.buf = append(m.buf[:0], m.buf[len(m.buf)-audioBufferCap:]...)
			}
			m.mu.Unlock()
		}
		if err != nil {
			m.mu.Lock()
			m.running = false
			m.buf = m.buf[:0]
			m.mu.Unlock()
			cmd.Wait()
			return
		}
	}
}

func (m *audioMonitor) stop() {
	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.running = false
	m.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// smooth trims the ambient noise floor off a raw reading and applies
// exponential smoothing so the meter does not flicker. Readings that
// never clear the floor report as silence.
func (m *audioMonitor) smooth(raw float64) float64 {
	trimmed := raw - 1.4
	if trimmed < 0 {
		trimmed = 0
	}
	m.mu.Lock()
	m.ema = m.ema*0.80 + trimmed*0.20
	v := m.ema
	m.mu.Unlock()
	if v < 0.7 {
		return 0
	}
	return clampPercent(v)
}

// levelFromSamples maps one window of raw samples onto the 0..100 meter
// scale. The RMS floor and full-scale point match what a typical desktop
// sink idles and peaks at.
func levelFromSamples(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	rms := math.Sqrt(sumSq / float64(len(samples)))
	if rms < 0.0008 {
		return 0
	}
	normalized := (rms - 0.0008) / 0.018
	if normalized > 1 {
		normalized = 1
	}
	return normalized * 100
}

// defaultSinkMonitor names the monitor source of the default sink,
// e.g. "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor".
func defaultSinkMonitor(timeout time.Duration) (string, error) {
	out, ok := runMixerCmd(timeout, "pactl", "get-default-sink")
	if !ok {
		return "", fmt.Errorf("pactl get-default-sink failed")
	}
	sink := strings.TrimSpace(out)
	if sink == "" {
		return "", fmt.Errorf("no default sink reported")
	}
	return sink + ".monitor", nil
}
