// Package config is the explicit configuration object threaded
// through the composition roots. The file format is JSONC; the file
// location defaults to the user config dir but can be overridden.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errPollInterval       = errors.New("workday_poll_seconds cannot be negative")
	errNoConfigPath       = errors.New("no config path to save to")
)

// DefaultWorkdayPollSeconds is how often the workday query checks for
// a day rollover when the config does not say otherwise.
const DefaultWorkdayPollSeconds = 30

// ConfigFileName is the file name used inside the config directory.
const ConfigFileName = "config.json"

// Config holds all configuration options.
type Config struct {
	DataDir               string `json:"data_dir,omitempty"`
	DefaultTaskCollection int64  `json:"default_task_collection,omitempty"`
	DefaultNoteCollection int64  `json:"default_note_collection,omitempty"`
	WorkdayPollSeconds    int    `json:"workday_poll_seconds,omitempty"`

	path string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		WorkdayPollSeconds: DefaultWorkdayPollSeconds,
	}
}

// New returns the defaults bound to path, for fresh setups where no
// file exists yet.
func New(path string) Config {
	cfg := DefaultConfig()
	cfg.path = path

	return cfg
}

// PollInterval returns the workday poll period as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.WorkdayPollSeconds) * time.Second
}

// DefaultPath returns the per-user config file location, honoring
// XDG_CONFIG_HOME. Empty when no home directory can be determined.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gtd", ConfigFileName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "gtd", ConfigFileName)
}

// Load reads the config file at path, or the default location when
// path is empty. An explicitly given file must exist; the default one
// is optional and missing means defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	mustExist := path != ""
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}

	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return cfg, nil
		}

		return Config{}, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	fileCfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	cfg = merge(cfg, fileCfg)
	cfg.path = path

	if validateErr := validate(cfg); validateErr != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, validateErr)
	}

	return cfg, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if unmarshalErr := json.Unmarshal(standardized, &cfg); unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.DefaultTaskCollection != 0 {
		base.DefaultTaskCollection = overlay.DefaultTaskCollection
	}

	if overlay.DefaultNoteCollection != 0 {
		base.DefaultNoteCollection = overlay.DefaultNoteCollection
	}

	if overlay.WorkdayPollSeconds != 0 {
		base.WorkdayPollSeconds = overlay.WorkdayPollSeconds
	}

	return base
}

func validate(cfg Config) error {
	if cfg.WorkdayPollSeconds < 0 {
		return errPollInterval
	}

	return nil
}

// Save writes the config back to the file it was loaded from,
// atomically, creating the directory if needed.
func (c *Config) Save() error {
	if c.path == "" {
		return errNoConfigPath
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}

	data = append(data, '\n')

	if writeErr := atomic.WriteFile(c.path, bytes.NewReader(data)); writeErr != nil {
		return fmt.Errorf("cannot write config: %w", writeErr)
	}

	return nil
}
