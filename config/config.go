// Package config loads runtime settings: defaults, overlaid by an optional
// YAML file, overlaid by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"wandcaster/ble"
	"wandcaster/gesture"
	"wandcaster/motion"
	"wandcaster/protocol"
	"wandcaster/publish"
	"wandcaster/session"
)

// Device describes how to find and keep the wand.
type Device struct {
	// ID is the wand MAC address; empty takes the first MCW- device seen.
	ID               string        `yaml:"id"`
	SpellLengthIndex int           `yaml:"spell_length_index"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ResolveTimeout   time.Duration `yaml:"resolve_timeout"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	AutoReconnect    bool          `yaml:"auto_reconnect"`
	KeepAlive        time.Duration `yaml:"keep_alive"`
	QueueSize        int           `yaml:"queue_size"`
}

// Session holds casting timings.
type Session struct {
	ResetDelay time.Duration `yaml:"reset_delay"`
	// Vibrate is the buzz length when casting starts; 0 disables feedback.
	Vibrate time.Duration `yaml:"vibrate"`
}

// HTTP holds the dashboard listener.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string             `yaml:"log_level"`
	Device    Device             `yaml:"device"`
	Command   ble.ChannelConfig  `yaml:"command"`
	Motion    motion.Config      `yaml:"motion"`
	Detection gesture.Options    `yaml:"detection"`
	Session   Session            `yaml:"session"`
	HTTP      HTTP               `yaml:"http"`
	MQTT      publish.MQTTConfig `yaml:"mqtt"`
}

// Default returns the built-in configuration.
func Default() Config {
	scan := ble.DefaultScanConfig()
	link := ble.DefaultLinkConfig()
	return Config{
		LogLevel: "info",
		Device: Device{
			SpellLengthIndex: protocol.DefaultSpellLengthIndex,
			ConnectTimeout:   scan.ConnectTimeout,
			ResolveTimeout:   ble.DefaultBlueZConfig().ResolveTimeout,
			RetryDelay:       scan.RetryDelay,
			AutoReconnect:    scan.AutoReconnect,
			KeepAlive:        30 * time.Second,
			QueueSize:        link.QueueSize,
		},
		Command: ble.DefaultChannelConfig(),
		Motion:  motion.DefaultConfig(),
		Detection: gesture.Options{
			Mode:      gesture.ModeTemplate,
			Threshold: gesture.DefaultThreshold,
			Floor:     gesture.DefaultFloor,
			Timeout:   gesture.DefaultTimeout,
		},
		Session: Session{
			ResetDelay: session.DefaultConfig().ResetDelay,
			Vibrate:    60 * time.Millisecond,
		},
		HTTP: HTTP{Addr: ":8080"},
		MQTT: publish.DefaultMQTTConfig(),
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var err error
	if _, lerr := logrus.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	if idx := c.Device.SpellLengthIndex; idx != protocol.SpellLengthIndexLive && idx != protocol.SpellLengthIndexLegacy {
		err = multierr.Append(err, fmt.Errorf("device.spell_length_index must be %d or %d, got %d",
			protocol.SpellLengthIndexLive, protocol.SpellLengthIndexLegacy, idx))
	}
	if c.Command.Attempts < 1 {
		err = multierr.Append(err, fmt.Errorf("command.attempts must be at least 1, got %d", c.Command.Attempts))
	}
	if c.Command.Timeout <= 0 {
		err = multierr.Append(err, errors.New("command.timeout must be positive"))
	}
	if c.Motion.SampleRate <= 0 {
		err = multierr.Append(err, errors.New("motion.sample_rate must be positive"))
	}
	if c.Motion.MaxPoints <= 0 {
		err = multierr.Append(err, errors.New("motion.max_points must be positive"))
	}
	for name, a := range map[string]float64{
		"motion.gravity_alpha": c.Motion.GravityAlpha,
		"motion.smooth_alpha":  c.Motion.SmoothAlpha,
	} {
		if a <= 0 || a > 1 {
			err = multierr.Append(err, fmt.Errorf("%s must be in (0, 1], got %g", name, a))
		}
	}
	if _, merr := gesture.ParseMode(string(c.Detection.Mode)); merr != nil {
		err = multierr.Append(err, merr)
	}
	if t := c.Detection.Threshold; t < 0 || t > 1 {
		err = multierr.Append(err, fmt.Errorf("detection.threshold must be in [0, 1], got %g", t))
	}
	if f := c.Detection.Floor; f < 0 || f > 1 {
		err = multierr.Append(err, fmt.Errorf("detection.floor must be in [0, 1], got %g", f))
	}
	if c.Detection.Mode == gesture.ModeRemote && (c.Detection.RemoteURL == "" || c.Detection.ModelPath == "") {
		err = multierr.Append(err, errors.New("detection mode remote needs remote_url and model"))
	}
	if c.Session.Vibrate < 0 || c.Session.Vibrate.Milliseconds() > 0xFFFF {
		err = multierr.Append(err, fmt.Errorf("session.vibrate out of range: %s", c.Session.Vibrate))
	}
	return err
}

// ScanConfig derives the reconnect loop settings.
func (c Config) ScanConfig() ble.ScanConfig {
	return ble.ScanConfig{
		DeviceID:       c.Device.ID,
		ConnectTimeout: c.Device.ConnectTimeout,
		RetryDelay:     c.Device.RetryDelay,
		AutoReconnect:  c.Device.AutoReconnect,
	}
}

// LinkConfig derives the per-connection settings.
func (c Config) LinkConfig() ble.LinkConfig {
	return ble.LinkConfig{
		Channel:          c.Command,
		QueueSize:        c.Device.QueueSize,
		SpellLengthIndex: c.Device.SpellLengthIndex,
	}
}

// SessionConfig derives the session settings.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		ResetDelay:      c.Session.ResetDelay,
		ClassifyTimeout: c.Detection.Timeout,
	}
}
