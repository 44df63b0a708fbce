// services/headstage/config.go
package headstage

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"headstage-go/types"
)

// Config is the service configuration loaded by headstagectl.
type Config struct {
	Serial  SerialConfig   `yaml:"serial"`
	Devices []DeviceConfig `yaml:"devices"`
}

// SerialConfig describes the control-link serial port.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DeviceConfig declares one named device and its initial parameters.
type DeviceConfig struct {
	Name    string           `yaml:"name"`
	Kind    types.DeviceKind `yaml:"kind"`
	Address uint32           `yaml:"address"`

	// SkipInitialization skips the deserializer setup on camera bring-up.
	// Leave false unless the previous bring-up on this exact hardware was
	// verified successful.
	SkipInitialization bool `yaml:"skip_initialization"`

	// SettleDelay overrides the post-clock-enable settling delay.
	SettleDelay time.Duration `yaml:"settle_delay"`

	Stim      *types.StimParams      `yaml:"stim"`
	Miniscope *types.MiniscopeParams `yaml:"miniscope"`
}

// Default returns a configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults; missing fields fall back to default values.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Kind == types.KindMiniscope && d.Miniscope != nil {
			if d.Miniscope.FrameRate == 0 {
				d.Miniscope.FrameRate = types.FrameRate30
			}
			if d.Miniscope.Gain == "" {
				d.Miniscope.Gain = types.GainLow
			}
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("config: device with empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("config: duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case types.KindStimulator, types.KindMiniscope:
		default:
			return fmt.Errorf("config: device %q has unknown kind %q", d.Name, d.Kind)
		}
		if d.Kind == types.KindMiniscope && d.Miniscope != nil {
			if !d.Miniscope.FrameRate.Valid() {
				return fmt.Errorf("config: device %q: unsupported frame rate %d", d.Name, d.Miniscope.FrameRate)
			}
			if !d.Miniscope.Gain.Valid() {
				return fmt.Errorf("config: device %q: unknown gain %q", d.Name, d.Miniscope.Gain)
			}
		}
	}
	return nil
}
