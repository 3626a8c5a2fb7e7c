// Package config holds the call runtime configuration: how the bridge reaches
// the hosting process, which ICE servers to use, which media device to open,
// and call timing.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how the bridge reaches the hosting process.
type Mode string

const (
	ModeListen Mode = "listen" // serve WebSocket, the host connects to us
	ModeDial   Mode = "dial"   // connect to the host's WebSocket
)

// Device selects the local media source.
type Device string

const (
	DeviceCapture   Device = "capture"   // camera + microphone via mediadevices
	DeviceSynthetic Device = "synthetic" // generated tracks, no hardware
)

// Config is the full runtime configuration.
type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
	ICE    ICEConfig    `yaml:"ice"`
	Media  MediaConfig  `yaml:"media"`
	Call   CallConfig   `yaml:"call"`
	Debug  bool         `yaml:"debug"`
}

type BridgeConfig struct {
	Mode    Mode     `yaml:"mode"`
	Listen  string   `yaml:"listen"`  // listen mode: address to bind
	URL     string   `yaml:"url"`     // dial mode: ws(s):// URL of the host
	PIN     string   `yaml:"pin"`     // listen mode: required ?pin= query value, generated when empty
	Origins []string `yaml:"origins"` // accepted Origin headers; empty accepts only same-host or none
	Origin  string   `yaml:"origin"`  // dial mode: Origin header to present
}

// ICEServer mirrors one entry of the peer connection's ICE server list.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type ICEConfig struct {
	Servers []ICEServer `yaml:"servers"`
}

type MediaConfig struct {
	Device    Device `yaml:"device"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FrameRate int    `yaml:"frame_rate"`
}

type CallConfig struct {
	ShutdownDelay time.Duration `yaml:"shutdown_delay"` // window close delay after teardown
	TickInterval  time.Duration `yaml:"tick_interval"`  // call duration tick while connected
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Mode:   ModeListen,
			Listen: "127.0.0.1:0",
		},
		ICE: ICEConfig{
			Servers: []ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
			},
		},
		Media: MediaConfig{
			Device:    DeviceCapture,
			Width:     640,
			Height:    480,
			FrameRate: 30,
		},
		Call: CallConfig{
			ShutdownDelay: 2 * time.Second,
			TickInterval:  time.Second,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Bridge.Mode {
	case ModeListen:
		if c.Bridge.Listen == "" {
			errs = append(errs, errors.New("bridge.listen is required in listen mode"))
		}
	case ModeDial:
		if err := validateWSURL(c.Bridge.URL); err != nil {
			errs = append(errs, fmt.Errorf("bridge.url: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("bridge.mode: unknown mode %q", c.Bridge.Mode))
	}

	for i, s := range c.ICE.Servers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d]: no urls", i))
		}
	}

	switch c.Media.Device {
	case DeviceCapture, DeviceSynthetic:
	default:
		errs = append(errs, fmt.Errorf("media.device: unknown device %q", c.Media.Device))
	}

	if c.Call.ShutdownDelay < 0 {
		errs = append(errs, errors.New("call.shutdown_delay must not be negative"))
	}
	if c.Call.TickInterval <= 0 {
		errs = append(errs, errors.New("call.tick_interval must be positive"))
	}

	return errors.Join(errs...)
}

func validateWSURL(raw string) error {
	if raw == "" {
		return errors.New("required in dial mode")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
