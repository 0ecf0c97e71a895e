package main

import (
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

//---------------- Fakes ----------------

// fakeHidDevice stands in for the hidraw handle. failWrites makes the
// next n writes error, short truncates writes without erroring.
type fakeHidDevice struct {
	failWrites int
	short      bool
	writes     int
	closes     int
	last       []byte
}

func (d *fakeHidDevice) Write(p []byte) (int, error) {
	d.writes++
	if d.failWrites > 0 {
		d.failWrites--
		return 0, errors.New("write error: no such device")
	}
	if d.short {
		return len(p) / 2, nil
	}
	d.last = append(d.last[:0], p...)
	return len(p), nil
}

func (d *fakeHidDevice) Close() error {
	d.closes++
	return nil
}

func testSender(open func() (io.WriteCloser, error), retries, maxFailures int) *HidSender {
	return &HidSender{
		vid:         APEX5_VENDOR_ID,
		pid:         APEX5_PRODUCT_ID,
		iface:       APEX5_INTERFACE,
		retries:     retries,
		backoff:     time.Microsecond,
		maxFailures: maxFailures,
		openDevice:  open,
		sleep:       func(time.Duration) {},
	}
}

// openerFor hands out the given devices in order, then reports the
// device missing.
func openerFor(devs ...io.WriteCloser) func() (io.WriteCloser, error) {
	i := 0
	return func() (io.WriteCloser, error) {
		if i >= len(devs) {
			return nil, errDeviceNotFound
		}
		d := devs[i]
		i++
		return d, nil
	}
}

//---------------- Send ----------------

func TestSendRetriesTransientFailures(t *testing.T) {
	dev := &fakeHidDevice{failWrites: 2}
	s := testSender(openerFor(dev), 3, 10)

	if err := s.Send(blankPacket()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if dev.writes != 3 {
		t.Errorf("writes = %d; want 3 (two failures, one success)", dev.writes)
	}
	if dev.closes != 0 {
		t.Errorf("device was reopened despite the retry succeeding")
	}
	state, failures, written := s.stats()
	if state != "open" || failures != 0 || written != 1 {
		t.Errorf("stats() = %s, %d, %d; want open, 0, 1", state, failures, written)
	}
}

func TestSendReconnectsWhenRetriesExhausted(t *testing.T) {
	dead := &fakeHidDevice{failWrites: 1 << 30}
	fresh := &fakeHidDevice{}
	s := testSender(openerFor(dead, fresh), 1, 10)

	if err := s.Send(blankPacket()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if dead.writes != 2 {
		t.Errorf("dead handle got %d writes; want 2 retry attempts", dead.writes)
	}
	if dead.closes != 1 {
		t.Errorf("dead handle closes = %d; want 1", dead.closes)
	}
	if fresh.writes != 1 {
		t.Errorf("fresh handle writes = %d; want exactly the rewrite", fresh.writes)
	}
	state, _, _ := s.stats()
	if state != "open" {
		t.Errorf("state after reconnect = %s; want open", state)
	}
}

func TestSendEscalatesAfterFailureBudget(t *testing.T) {
	s := testSender(openerFor(), 0, 3)

	for tick := 1; tick <= 2; tick++ {
		err := s.Send(blankPacket())
		if err == nil {
			t.Fatalf("tick %d: Send() succeeded with no device", tick)
		}
		if errors.Is(err, errDeviceGone) {
			t.Fatalf("tick %d: escalated before the failure budget", tick)
		}
	}

	err := s.Send(blankPacket())
	if !errors.Is(err, errDeviceGone) {
		t.Fatalf("Send() after 3 failed ticks = %v; want errDeviceGone", err)
	}
	state, failures, _ := s.stats()
	if state != "degraded" || failures != 3 {
		t.Errorf("stats() = %s, %d; want degraded, 3", state, failures)
	}
}

func TestSendSuccessResetsFailureStreak(t *testing.T) {
	dev := &fakeHidDevice{}
	attempts := 0
	s := testSender(func() (io.WriteCloser, error) {
		attempts++
		if attempts <= 2 {
			return nil, errDeviceNotFound
		}
		return dev, nil
	}, 0, 10)

	s.Send(blankPacket())
	s.Send(blankPacket())
	if _, failures, _ := s.stats(); failures != 2 {
		t.Fatalf("failures = %d after two dead ticks; want 2", failures)
	}

	if err := s.Send(blankPacket()); err != nil {
		t.Fatalf("Send() error once the device is back: %v", err)
	}
	state, failures, written := s.stats()
	if state != "open" || failures != 0 || written != 1 {
		t.Errorf("stats() = %s, %d, %d; want open, 0, 1", state, failures, written)
	}

	// a short write is recoverable and restarts the streak at one
	dev.short = true
	if err := s.Send(blankPacket()); err == nil {
		t.Fatalf("Send() succeeded despite short writes")
	}
	state, failures, _ = s.stats()
	if state != "degraded" || failures != 1 {
		t.Errorf("stats() = %s, %d; want degraded, 1", state, failures)
	}
}

func TestSendRejectsWrongPacketSize(t *testing.T) {
	s := testSender(openerFor(&fakeHidDevice{}), 0, 10)
	if err := s.Send([]byte{0x61, 0x00}); err == nil {
		t.Fatalf("Send() accepted a malformed packet")
	}
	if _, failures, _ := s.stats(); failures != 0 {
		t.Errorf("a rejected packet must not count against the device")
	}
}

func TestCooldownGrowsWithFailureStreak(t *testing.T) {
	s := testSender(openerFor(), 0, 100)

	if got := s.cooldown(); got != 0 {
		t.Fatalf("cooldown() = %v before any failure; want 0", got)
	}

	prev := time.Duration(0)
	for tick := 0; tick < 8; tick++ {
		s.Send(blankPacket())
		got := s.cooldown()
		if got < prev {
			t.Fatalf("cooldown shrank from %v to %v while still failing", prev, got)
		}
		if got > 2*time.Second {
			t.Fatalf("cooldown() = %v; want capped at 2s", got)
		}
		prev = got
	}
	if prev < 100*time.Millisecond {
		t.Errorf("cooldown() = %v after 8 failed ticks; want at least 100ms", prev)
	}
}

func TestHaltBlanksThePanel(t *testing.T) {
	dev := &fakeHidDevice{}
	s := testSender(openerFor(dev), 0, 10)

	if err := s.Halt(); err != nil {
		t.Fatalf("Halt() error: %v", err)
	}
	if len(dev.last) != PACKET_SIZE {
		t.Fatalf("Halt() wrote %d bytes; want %d", len(dev.last), PACKET_SIZE)
	}
	if dev.last[0] != PACKET_HEADER {
		t.Errorf("packet header = %#x; want %#x", dev.last[0], PACKET_HEADER)
	}
	for i, b := range dev.last[1:] {
		if b != 0 {
			t.Fatalf("payload byte %d = %#x; want a blank frame", i+1, b)
		}
	}
}

func TestDrawPushesPackedImage(t *testing.T) {
	dev := &fakeHidDevice{}
	s := testSender(openerFor(dev), 0, 10)

	if got := s.Bounds(); got != image.Rect(0, 0, OLED_WIDTH, OLED_HEIGHT) {
		t.Fatalf("Bounds() = %v", got)
	}

	src := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
	src.SetPixel(8, 0, true)
	if err := s.Draw(s.Bounds(), src, image.Point{}); err != nil {
		t.Fatalf("Draw() error: %v", err)
	}
	if len(dev.last) != PACKET_SIZE {
		t.Fatalf("Draw() wrote %d bytes; want %d", len(dev.last), PACKET_SIZE)
	}
	if dev.last[2] != 0x80 {
		t.Errorf("payload byte 1 = %#x; want pixel (8,0) packed as 0x80", dev.last[2])
	}
}

func TestSenderStateString(t *testing.T) {
	tests := []struct {
		state senderState
		want  string
	}{
		{senderClosed, "closed"},
		{senderOpen, "open"},
		{senderDegraded, "degraded"},
		{senderState(99), "closed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("senderState(%d).String() = %s; want %s", tt.state, got, tt.want)
		}
	}
}

//---------------- Discovery ----------------

func TestParseHidID(t *testing.T) {
	tests := []struct {
		name    string
		uevent  string
		wantVid uint16
		wantPid uint16
		wantOk  bool
	}{
		{
			name:    "apex uevent",
			uevent:  "DRIVER=hid-generic\nHID_ID=0003:00001038:0000161C\nHID_NAME=SteelSeries Apex 5\n",
			wantVid: 0x1038,
			wantPid: 0x161C,
			wantOk:  true,
		},
		{name: "no id line", uevent: "DRIVER=hid-generic\nHID_NAME=Mouse\n"},
		{name: "too few fields", uevent: "HID_ID=0003:1038\n"},
		{name: "garbage hex", uevent: "HID_ID=0003:zzzz:161c\n"},
		{name: "id out of range", uevent: "HID_ID=0003:123456789:161C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vid, pid, ok := parseHidID(tt.uevent)
			if ok != tt.wantOk || vid != tt.wantVid || pid != tt.wantPid {
				t.Errorf("parseHidID() = %04X, %04X, %t; want %04X, %04X, %t",
					vid, pid, ok, tt.wantVid, tt.wantPid, tt.wantOk)
			}
		})
	}
}

func TestHidInterfaceFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/sys/devices/pci0000:00/0000:00:14.0/usb1/1-5/1-5:1.1/0003:1038:161C.0006/hidraw/hidraw2", "mi_01"},
		{"/sys/devices/pci0000:00/0000:00:14.0/usb1/1-5/1-5:1.0/0003:1038:161C.0005/hidraw/hidraw1", "mi_00"},
		{"/sys/devices/usb2/2-1/2-1.4/2-1.4:1.2/0003:046D:C52B.0001", "mi_02"},
		{"/sys/devices/platform/i8042/serio0/input/input3", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := hidInterfaceFromPath(tt.path); got != tt.want {
			t.Errorf("hidInterfaceFromPath(%q) = %q; want %q", tt.path, got, tt.want)
		}
	}
}

func TestDiscoverHidraw(t *testing.T) {
	tmp := t.TempDir()
	classDir := filepath.Join(tmp, "class")
	devicesDir := filepath.Join(tmp, "devices")

	makeNode := func(name, hidID, usbSegment string) {
		t.Helper()
		target := filepath.Join(devicesDir, usbSegment, "hid")
		if err := os.MkdirAll(target, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(target, "uevent"), []byte(hidID), 0o644); err != nil {
			t.Fatal(err)
		}
		nodeDir := filepath.Join(classDir, name)
		if err := os.MkdirAll(nodeDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, filepath.Join(nodeDir, "device")); err != nil {
			t.Fatal(err)
		}
	}

	makeNode("hidraw0", "HID_ID=0003:0000046D:0000C52B\n", "1-3:1.0")
	makeNode("hidraw1", "HID_ID=0003:00001038:0000161C\n", "1-5:1.0")
	makeNode("hidraw2", "HID_ID=0003:00001038:0000161C\n", "1-5:1.1")
	if err := os.MkdirAll(filepath.Join(classDir, "mice"), 0o755); err != nil {
		t.Fatal(err)
	}

	oldRoot := hidrawSysRoot
	hidrawSysRoot = classDir
	defer func() { hidrawSysRoot = oldRoot }()

	path, err := discoverHidraw(0x1038, 0x161C, "mi_01")
	if err != nil {
		t.Fatalf("discoverHidraw() error: %v", err)
	}
	if path != "/dev/hidraw2" {
		t.Errorf("discoverHidraw() = %s; want the mi_01 node /dev/hidraw2", path)
	}

	// no node on the wanted interface falls back to the first id match
	path, err = discoverHidraw(0x1038, 0x161C, "mi_07")
	if err != nil {
		t.Fatalf("discoverHidraw() fallback error: %v", err)
	}
	if path != "/dev/hidraw1" {
		t.Errorf("discoverHidraw() fallback = %s; want /dev/hidraw1", path)
	}

	_, err = discoverHidraw(0xDEAD, 0xBEEF, "mi_01")
	if !errors.Is(err, errDeviceNotFound) {
		t.Errorf("discoverHidraw() with unknown ids = %v; want errDeviceNotFound", err)
	}
}

func TestDiscoverHidrawMissingRoot(t *testing.T) {
	oldRoot := hidrawSysRoot
	hidrawSysRoot = filepath.Join(t.TempDir(), "nope")
	defer func() { hidrawSysRoot = oldRoot }()

	_, err := discoverHidraw(0x1038, 0x161C, "mi_01")
	if !errors.Is(err, errDeviceNotFound) {
		t.Errorf("discoverHidraw() = %v; want errDeviceNotFound", err)
	}
}

func TestNewHidSenderReadsProfile(t *testing.T) {
	p := defaultProfile()

	s, err := newHidSender(p)
	if err != nil {
		t.Fatalf("newHidSender() error: %v", err)
	}
	if s.vid != 0x1038 || s.pid != 0x161C || s.iface != "mi_01" {
		t.Errorf("sender ids = %04X:%04X %s; want the Apex defaults", s.vid, s.pid, s.iface)
	}
	if s.retries != DEFAULT_WRITE_RETRIES || s.maxFailures != DEFAULT_MAX_WRITE_FAILURES {
		t.Errorf("budgets = %d, %d; want profile defaults", s.retries, s.maxFailures)
	}
	if s.backoff != DEFAULT_RETRY_BACKOFF_MS*time.Millisecond {
		t.Errorf("backoff = %v; want %dms", s.backoff, DEFAULT_RETRY_BACKOFF_MS)
	}
	state, _, _ := s.stats()
	if state != "closed" {
		t.Errorf("fresh sender state = %s; want closed", state)
	}

	bad := defaultProfile()
	bad.Device.VendorID = "0xZZZZ"
	if _, err := newHidSender(bad); err == nil {
		t.Errorf("newHidSender() accepted a bad vendor id")
	}
}
