package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/goldrun/internal/artifact"
)

// DefaultFile is the settings file looked up when --config is not given.
const DefaultFile = ".goldrun.yml"

// HistoryOff disables the history store when used as history_db.
const HistoryOff = "off"

// Settings holds persistent CLI defaults loaded from a config file.
type Settings struct {
	Engine        string   `yaml:"engine"`
	DataEnv       string   `yaml:"data_env"`   // env var naming the data root
	OutputDir     string   `yaml:"output_dir"` // holds new/ and original/
	RunDir        string   `yaml:"run_dir"`    // reports, engine logs, history
	ConfigPattern string   `yaml:"config_pattern"`
	Extensions    []string `yaml:"extensions"`

	MaxRuntime       time.Duration `yaml:"max_runtime"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	MtimeGranularity time.Duration `yaml:"mtime_granularity"`

	// EngineEnv adds variables to the engine environment; "env:NAME"
	// values are copied from the harness environment.
	EngineEnv map[string]string `yaml:"engine_env"`

	FailFast  bool   `yaml:"fail_fast"`
	HistoryDB string `yaml:"history_db"` // empty = <run_dir>/history.db, "off" disables
}

// Defaults returns the settings used when no config file is present.
func Defaults() Settings {
	return Settings{
		Engine:           "WindNinja_cli",
		DataEnv:          "WINDNINJA_DATA",
		OutputDir:        "output",
		RunDir:           ".goldrun",
		ConfigPattern:    "*.cfg",
		Extensions:       append([]string(nil), artifact.DefaultExtensions...),
		MaxRuntime:       30 * time.Minute,
		MtimeGranularity: time.Second,
	}
}

// LoadSettings reads a YAML config file over Defaults. Keys absent from
// the file keep their default; explicit zero durations disable the limit.
// If the file does not exist, it returns Defaults and nil error.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &s, nil
}

// Validate rejects settings no run could use.
func (s *Settings) Validate() error {
	switch {
	case s.Engine == "":
		return errors.New("engine must not be empty")
	case s.DataEnv == "":
		return errors.New("data_env must not be empty")
	case s.OutputDir == "":
		return errors.New("output_dir must not be empty")
	case s.RunDir == "":
		return errors.New("run_dir must not be empty")
	case s.MaxRuntime < 0:
		return fmt.Errorf("max_runtime must not be negative, got %s", s.MaxRuntime)
	case s.IdleTimeout < 0:
		return fmt.Errorf("idle_timeout must not be negative, got %s", s.IdleTimeout)
	case s.MtimeGranularity < 0:
		return fmt.Errorf("mtime_granularity must not be negative, got %s", s.MtimeGranularity)
	}
	if s.ConfigPattern != "" {
		if _, err := filepath.Match(s.ConfigPattern, ""); err != nil {
			return fmt.Errorf("config_pattern %q: %w", s.ConfigPattern, err)
		}
	}
	return nil
}

// HistoryPath returns the history database location, or false when
// history is disabled.
func (s *Settings) HistoryPath() (string, bool) {
	switch s.HistoryDB {
	case HistoryOff:
		return "", false
	case "":
		return filepath.Join(s.RunDir, "history.db"), true
	default:
		return s.HistoryDB, true
	}
}
