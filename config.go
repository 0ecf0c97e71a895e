package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//---------------- Profile Structs ----------------

// Region is a widget's placement on the panel.
type Region struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

type DisplayConfig struct {
	Width      int `json:"width" yaml:"width"`
	Height     int `json:"height" yaml:"height"`
	Background int `json:"background" yaml:"background"`
}

// DeviceConfig selects the HID device and bounds the write error budgets.
// Vendor and product ids are hex strings like "0x1038"; empty means the
// Apex 5 defaults. Budgets are pointers so an explicit zero survives
// unmarshaling.
type DeviceConfig struct {
	VendorID         string `json:"vendor_id" yaml:"vendor_id"`
	ProductID        string `json:"product_id" yaml:"product_id"`
	Interface        string `json:"interface" yaml:"interface"`
	InputName        string `json:"input_name" yaml:"input_name"`
	WriteRetries     *int   `json:"write_retries" yaml:"write_retries"`
	RetryBackoffMs   *int   `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	MaxWriteFailures *int   `json:"max_write_failures" yaml:"max_write_failures"`
}

type BootConfig struct {
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	Steps   int    `json:"steps" yaml:"steps"`
	Logo    string `json:"logo" yaml:"logo"`
}

type BarConfig struct {
	Direction string `json:"direction" yaml:"direction"`
	Border    bool   `json:"border" yaml:"border"`
}

type GraphConfig struct {
	History int `json:"history" yaml:"history"`
}

// WidgetConfig is one entry of the profile's widget list. Interface, Key
// and Host only apply to the network, lock and ping kinds.
type WidgetConfig struct {
	Type          string       `json:"type" yaml:"type"`
	Enabled       *bool        `json:"enabled" yaml:"enabled"`
	RefreshRateMs *int         `json:"refresh_rate_ms" yaml:"refresh_rate_ms"`
	Position      Region       `json:"position" yaml:"position"`
	Interface     string       `json:"interface" yaml:"interface"`
	Key           string       `json:"key" yaml:"key"`
	Host          string       `json:"host" yaml:"host"`
	ShowIcon      bool         `json:"show_icon" yaml:"show_icon"`
	Bar           *BarConfig   `json:"bar" yaml:"bar"`
	Graph         *GraphConfig `json:"graph" yaml:"graph"`
}

// Profile represents the overall dashboard config file.
type Profile struct {
	ConfigName    string         `json:"config_name" yaml:"config_name"`
	RefreshRateMs int            `json:"refresh_rate_ms" yaml:"refresh_rate_ms"`
	Display       DisplayConfig  `json:"display" yaml:"display"`
	Device        DeviceConfig   `json:"device" yaml:"device"`
	Boot          BootConfig     `json:"boot" yaml:"boot"`
	HTTPListen    string         `json:"http_listen" yaml:"http_listen"`
	Widgets       []WidgetConfig `json:"widgets" yaml:"widgets"`
}

func (w *WidgetConfig) isEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// cadence returns how often the widget resamples. Zero means every tick.
func (w *WidgetConfig) cadence() time.Duration {
	if w.RefreshRateMs != nil {
		return time.Duration(*w.RefreshRateMs) * time.Millisecond
	}
	switch w.Type {
	case "volume":
		return 100 * time.Millisecond
	case "audio":
		return 25 * time.Millisecond
	case "network":
		return time.Second
	case "keyboard", "lock":
		return 50 * time.Millisecond
	case "ping":
		return 5 * time.Second
	}
	return 0
}

func (p *Profile) bootEnabled() bool {
	return p.Boot.Enabled == nil || *p.Boot.Enabled
}

// deviceIDs resolves the configured USB ids, falling back to the Apex 5.
func (p *Profile) deviceIDs() (uint16, uint16, error) {
	vid, err := parseHexID(p.Device.VendorID, APEX5_VENDOR_ID)
	if err != nil {
		return 0, 0, err
	}
	pid, err := parseHexID(p.Device.ProductID, APEX5_PRODUCT_ID)
	if err != nil {
		return 0, 0, err
	}
	return vid, pid, nil
}

// parseHexID parses USB ids written like "0x1038" or "161c".
func parseHexID(s string, fallback uint16) (uint16, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad usb id %q: %v", s, err)
	}
	return uint16(v), nil
}

//---------------- Loading and Validation ----------------

// loadProfile reads and unmarshals a profile file, picking the codec from
// the extension, then fills defaults and validates.
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %v", path, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return &p, nil
}

// resolveConfigPath picks the profile file: the -config flag if given,
// then ./profiles/dashboard.json, then the per-user config dir. Empty
// means nothing was found and the built-in profile applies.
func resolveConfigPath(override string) string {
	if override != "" {
		return override
	}
	if _, err := os.Stat(DEFAULT_PROFILE_PATH); err == nil {
		return DEFAULT_PROFILE_PATH
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "stained-steel", "dashboard.json")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (p *Profile) applyDefaults() {
	if p.RefreshRateMs < MIN_REFRESH_MS {
		p.RefreshRateMs = MIN_REFRESH_MS
	}
	if p.Display.Width == 0 && p.Display.Height == 0 {
		p.Display.Width, p.Display.Height = OLED_WIDTH, OLED_HEIGHT
	}
	if p.Device.Interface == "" {
		p.Device.Interface = APEX5_INTERFACE
	}
	if p.Device.WriteRetries == nil {
		p.Device.WriteRetries = intPtr(DEFAULT_WRITE_RETRIES)
	}
	if p.Device.RetryBackoffMs == nil {
		p.Device.RetryBackoffMs = intPtr(DEFAULT_RETRY_BACKOFF_MS)
	}
	if p.Device.MaxWriteFailures == nil {
		p.Device.MaxWriteFailures = intPtr(DEFAULT_MAX_WRITE_FAILURES)
	}
	if p.Boot.Steps <= 0 {
		p.Boot.Steps = DEFAULT_BOOT_STEPS
	}
	for i := range p.Widgets {
		w := &p.Widgets[i]
		if w.Bar != nil && w.Bar.Direction == "" {
			w.Bar.Direction = "horizontal"
		}
		// legacy profiles label the caps lock key CruseCTRL
		if w.Type == "lock" && strings.EqualFold(w.Key, "crusectrl") {
			w.Key = "caps"
		}
	}
}

// Validate rejects profiles the renderer cannot honor. Disabled widgets
// are not checked.
func (p *Profile) Validate() error {
	if p.Display.Width != OLED_WIDTH || p.Display.Height != OLED_HEIGHT {
		return fmt.Errorf("display must be %dx%d, got %dx%d",
			OLED_WIDTH, OLED_HEIGHT, p.Display.Width, p.Display.Height)
	}
	if _, _, err := p.deviceIDs(); err != nil {
		return err
	}
	if *p.Device.WriteRetries < 0 {
		return fmt.Errorf("write_retries must be >= 0")
	}
	if *p.Device.RetryBackoffMs < 0 {
		return fmt.Errorf("retry_backoff_ms must be >= 0")
	}
	if *p.Device.MaxWriteFailures < 1 {
		return fmt.Errorf("max_write_failures must be >= 1")
	}
	for i := range p.Widgets {
		w := &p.Widgets[i]
		if !w.isEnabled() {
			continue
		}
		switch w.Type {
		case "cpu", "volume", "audio", "memory", "network", "keyboard", "lock", "ping":
		default:
			return fmt.Errorf("widget %d: unknown type %q", i, w.Type)
		}
		pos := w.Position
		if pos.W <= 0 || pos.H <= 0 {
			return fmt.Errorf("widget %d (%s): empty region", i, w.Type)
		}
		if pos.X < 0 || pos.Y < 0 || pos.X+pos.W > p.Display.Width || pos.Y+pos.H > p.Display.Height {
			return fmt.Errorf("widget %d (%s): region %dx%d at (%d,%d) leaves the %dx%d panel",
				i, w.Type, pos.W, pos.H, pos.X, pos.Y, p.Display.Width, p.Display.Height)
		}
		switch w.Type {
		case "lock":
			switch w.Key {
			case "caps", "num", "scroll":
			default:
				return fmt.Errorf("widget %d (lock): key must be caps, num or scroll, got %q", i, w.Key)
			}
		case "ping":
			if w.Host == "" {
				return fmt.Errorf("widget %d (ping): host is required", i)
			}
		}
	}
	return nil
}

// defaultProfile is the compiled-in layout used when no profile file is
// found: cpu bar on the left, network and memory stacked in the middle,
// lock cluster and volume on the right.
func defaultProfile() *Profile {
	p := &Profile{
		ConfigName:    "built-in",
		RefreshRateMs: MIN_REFRESH_MS,
		Display:       DisplayConfig{Width: OLED_WIDTH, Height: OLED_HEIGHT},
		Widgets: []WidgetConfig{
			{
				Type:          "cpu",
				Position:      Region{X: 0, Y: 0, W: 12, H: 40},
				Bar:           &BarConfig{Direction: "vertical", Border: true},
				RefreshRateMs: intPtr(250),
			},
			{Type: "network", Position: Region{X: 14, Y: 0, W: 50, H: 19}},
			{
				Type:     "memory",
				Position: Region{X: 14, Y: 20, W: 50, H: 20},
				Graph:    &GraphConfig{History: 50},
			},
			{Type: "keyboard", Position: Region{X: 66, Y: 2, W: 62, H: 14}},
			{Type: "volume", Position: Region{X: 66, Y: 24, W: 62, H: 16}, ShowIcon: true},
		},
	}
	p.applyDefaults()
	return p
}

func intPtr(v int) *int { return &v }
