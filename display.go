package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

//---------------- Device Constants ----------------

const (
	APEX5_VENDOR_ID  = 0x1038
	APEX5_PRODUCT_ID = 0x161C
	APEX5_INTERFACE  = "mi_01"
)

// hidrawSysRoot is a variable so discovery tests can point it at a fake
// sysfs tree.
var hidrawSysRoot = "/sys/class/hidraw"

var (
	errDeviceNotFound = errors.New("hidraw device not found")
	errDeviceGone     = errors.New("device unreachable")
)

//---------------- Sender State Machine ----------------

type senderState int

const (
	senderClosed senderState = iota
	senderOpen
	senderDegraded
)

func (s senderState) String() string {
	switch s {
	case senderOpen:
		return "open"
	case senderDegraded:
		return "degraded"
	}
	return "closed"
}

// HidSender owns the keyboard's raw HID handle and pushes one packet per
// tick. A failing write walks a bounded retry ladder, then one full
// close-and-reopen reconnect; only a streak of maxFailures failed ticks
// escalates to errDeviceGone, which the run loop treats as fatal. Any
// fully successful send resets the streak.
type HidSender struct {
	vid, pid    uint16
	iface       string
	retries     int
	backoff     time.Duration
	maxFailures int

	// injected in tests
	openDevice func() (io.WriteCloser, error)
	sleep      func(time.Duration)

	dev      io.WriteCloser
	state    senderState
	failures int
	written  uint64
}

func newHidSender(p *Profile) (*HidSender, error) {
	vid, pid, err := p.deviceIDs()
	if err != nil {
		return nil, err
	}
	s := &HidSender{
		vid:         vid,
		pid:         pid,
		iface:       p.Device.Interface,
		retries:     *p.Device.WriteRetries,
		backoff:     time.Duration(*p.Device.RetryBackoffMs) * time.Millisecond,
		maxFailures: *p.Device.MaxWriteFailures,
		sleep:       time.Sleep,
	}
	s.openDevice = s.openHidraw
	return s, nil
}

// Open locates and opens the configured device if no handle is held.
func (s *HidSender) Open() error {
	if s.dev != nil {
		return nil
	}
	dev, err := s.openDevice()
	if err != nil {
		return err
	}
	s.dev = dev
	s.state = senderOpen
	return nil
}

func (s *HidSender) openHidraw() (io.WriteCloser, error) {
	path, err := discoverHidraw(s.vid, s.pid, s.iface)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	log.Printf("device: writing to %s", path)
	return f, nil
}

// Send pushes one packet through the retry and reconnect ladder. The
// returned error is recoverable unless it wraps errDeviceGone.
func (s *HidSender) Send(packet []byte) error {
	if len(packet) != PACKET_SIZE {
		return fmt.Errorf("bad packet size %d, want %d", len(packet), PACKET_SIZE)
	}
	if err := s.trySend(packet); err != nil {
		s.state = senderDegraded
		s.failures++
		if s.failures >= s.maxFailures {
			return fmt.Errorf("%w after %d failed ticks: %v", errDeviceGone, s.failures, err)
		}
		return err
	}
	s.state = senderOpen
	s.failures = 0
	s.written++
	return nil
}

func (s *HidSender) trySend(packet []byte) error {
	if err := s.Open(); err != nil {
		return err
	}
	err := s.writeRetry(packet)
	if err == nil {
		return nil
	}
	// the handle may be stale after an unplug, reconnect once and rewrite
	s.dropHandle()
	if openErr := s.Open(); openErr != nil {
		return fmt.Errorf("reconnect after %v: %w", err, openErr)
	}
	if retryErr := s.writePacket(packet); retryErr != nil {
		return fmt.Errorf("rewrite after reconnect: %w", retryErr)
	}
	return nil
}

// writeRetry attempts the write retries+1 times, doubling the backoff
// between attempts.
func (s *HidSender) writeRetry(packet []byte) error {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.writePacket(packet)
		if err == nil {
			return nil
		}
		if attempt >= s.retries {
			return err
		}
		s.sleep(delay)
		delay *= 2
	}
}

func (s *HidSender) writePacket(packet []byte) error {
	n, err := s.dev.Write(packet)
	if err != nil {
		return err
	}
	if n != len(packet) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(packet))
	}
	return nil
}

func (s *HidSender) dropHandle() {
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	s.state = senderClosed
}

// Close releases the device handle on shutdown.
func (s *HidSender) Close() error {
	var err error
	if s.dev != nil {
		err = s.dev.Close()
		s.dev = nil
	}
	s.state = senderClosed
	return err
}

// cooldown is the extra sleep the run loop adds while the device is
// down, so an unplugged keyboard does not busy-poll discovery. It grows
// with the failure streak and caps at two seconds.
func (s *HidSender) cooldown() time.Duration {
	if s.state != senderDegraded {
		return 0
	}
	d := 50 * time.Millisecond << uint(min(s.failures, 5))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// stats feeds the status endpoint. Only called from the tick loop, which
// also owns every mutation.
func (s *HidSender) stats() (state string, failures int, written uint64) {
	return s.state.String(), s.failures, s.written
}

//---------------- Device Discovery ----------------

// discoverHidraw walks the hidraw class directory for a node whose
// parent HID device matches vid:pid. A node on the wanted USB interface
// wins; otherwise the first id match is used, since single-interface
// keyboards expose only one node anyway.
func discoverHidraw(vid, pid uint16, iface string) (string, error) {
	entries, err := os.ReadDir(hidrawSysRoot)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", errDeviceNotFound, hidrawSysRoot, err)
	}
	fallback := ""
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "hidraw") {
			continue
		}
		sysPath := filepath.Join(hidrawSysRoot, name)
		uevent, err := os.ReadFile(filepath.Join(sysPath, "device", "uevent"))
		if err != nil {
			continue
		}
		devVid, devPid, ok := parseHidID(string(uevent))
		if !ok || devVid != vid || devPid != pid {
			continue
		}
		candidate := "/dev/" + name
		if fallback == "" {
			fallback = candidate
		}
		if hidInterfaceOf(sysPath) == iface {
			return candidate, nil
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("%w (vid %04X pid %04X interface %s)", errDeviceNotFound, vid, pid, iface)
}

// parseHidID pulls vendor and product out of a hidraw uevent's HID_ID
// line, formatted like HID_ID=0003:00001038:0000161C.
func parseHidID(uevent string) (vid, pid uint16, ok bool) {
	for _, line := range strings.Split(uevent, "\n") {
		id, found := strings.CutPrefix(strings.TrimSpace(line), "HID_ID=")
		if !found {
			continue
		}
		parts := strings.Split(id, ":")
		if len(parts) < 3 {
			continue
		}
		v, err1 := strconv.ParseUint(parts[1], 16, 16)
		p, err2 := strconv.ParseUint(parts[2], 16, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		return uint16(v), uint16(p), true
	}
	return 0, 0, false
}

// hidInterfaceOf derives the USB interface tag ("mi_01") for a hidraw
// node by canonicalizing its device symlink.
func hidInterfaceOf(sysPath string) string {
	resolved, err := filepath.EvalSymlinks(filepath.Join(sysPath, "device"))
	if err != nil {
		return ""
	}
	return hidInterfaceFromPath(resolved)
}

// hidInterfaceFromPath finds the bus-address:config.interface segment of
// a canonical sysfs device path, e.g. 1-5:1.1, and maps the interface
// number to the mi_XX form the profile uses.
func hidInterfaceFromPath(devicePath string) string {
	for _, segment := range strings.Split(devicePath, "/") {
		left, right, found := strings.Cut(segment, ":")
		if !found || !strings.Contains(left, "-") {
			continue
		}
		_, ifaceNum, found := strings.Cut(right, ".")
		if !found {
			continue
		}
		n, err := strconv.ParseUint(ifaceNum, 10, 8)
		if err != nil {
			continue
		}
		return fmt.Sprintf("mi_%02d", n)
	}
	return ""
}

//---------------- display.Drawer Surface ----------------

// The sender doubles as a periph display so generic image pipelines can
// treat the keyboard screen like any other panel.
var _ display.Drawer = (*HidSender)(nil)

func (s *HidSender) String() string {
	return fmt.Sprintf("apex5 oled %dx%d (%s)", OLED_WIDTH, OLED_HEIGHT, s.state)
}

// Halt blanks the panel so it does not keep showing the last frame.
func (s *HidSender) Halt() error {
	return s.Send(blankPacket())
}

func (s *HidSender) ColorModel() color.Model {
	return image1bit.BitModel
}

func (s *HidSender) Bounds() image.Rectangle {
	return image.Rect(0, 0, OLED_WIDTH, OLED_HEIGHT)
}

// Draw packs the intersecting part of src into a full frame and pushes
// it immediately.
func (s *HidSender) Draw(dstRect image.Rectangle, src image.Image, srcPts image.Point) error {
	cv := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
	r := dstRect.Intersect(cv.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cv.Set(x, y, src.At(srcPts.X+x-dstRect.Min.X, srcPts.Y+y-dstRect.Min.Y))
		}
	}
	return s.Send(packFrame(cv))
}
