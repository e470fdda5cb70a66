// Package config loads and saves the midiseq settings file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/james-see/midiseq/pkg/midifile"
)

// Config is the content of config.json.
type Config struct {
	// BufferSize is the per-track read buffer, 0 to load tracks in memory.
	BufferSize int `json:"bufferSize"`
	// ReuseEvents iterates with borrowed events instead of copies.
	ReuseEvents bool `json:"reuseEvents,omitempty"`
	// OutputPort is the MIDI output port name or number used by play.
	OutputPort string `json:"outputPort,omitempty"`
	// SerialDevice, when set, is used instead of OutputPort.
	SerialDevice string `json:"serialDevice,omitempty"`
	// ResetOnPlay sends all notes off before and after playback.
	ResetOnPlay bool   `json:"resetOnPlay"`
	LogLevel    string `json:"logLevel,omitempty"`
	ServerPort  int    `json:"serverPort,omitempty"`
}

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:  midifile.DefaultOptions().BufferSize,
		ResetOnPlay: true,
		LogLevel:    "info",
		ServerPort:  8080,
	}
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiseq"), nil
}

// Path returns the full path to config.json
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Keys missing from the file keep their
// default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	if cfg.BufferSize < 0 {
		return nil, errors.Errorf("invalid config file %s: bufferSize %d is negative", path, cfg.BufferSize)
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write config")
}

// FileOptions returns the options for midifile.Open.
func (c *Config) FileOptions(logger *log.Logger) midifile.Options {
	return midifile.Options{BufferSize: c.BufferSize, Logger: logger}
}

// Level returns the configured log level, info when unset or unknown.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
