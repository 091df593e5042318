// Package config provides configuration loading and validation for MDEventDB.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	boxcontroller "MDEventDB/box_controller"
	diskbuffer "MDEventDB/disk_buffer"
	"MDEventDB/types"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete configuration of a workspace.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Extents    []types.Extent   `yaml:"extents" validate:"required,min=1"`
	Storage    StorageConfig    `yaml:"storage"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

// ControllerConfig mirrors the box controller settings.
type ControllerConfig struct {
	NumDims        int    `yaml:"num_dims" validate:"min=1,max=32"`
	SplitThreshold uint64 `yaml:"split_threshold" validate:"gt=0"`
	// SplitInto is the per-dimension fan-out; empty means 1 along every dimension.
	SplitInto    []int `yaml:"split_into" validate:"omitempty,dive,min=1"`
	SplitTopInto []int `yaml:"split_top_into,omitempty" validate:"omitempty,dive,min=1"`
	MaxDepth     int   `yaml:"max_depth" validate:"min=0,max=64"`
	// SignificantEvents is the batch size past which a bulk load always splits.
	SignificantEvents uint64 `yaml:"significant_events" validate:"gt=0"`
	// Zero keeps the controller defaults.
	AddingEventsPerTask       uint64 `yaml:"adding_events_per_task"`
	AddingEventsTasksPerBlock uint64 `yaml:"adding_events_tasks_per_block"`
}

// StorageConfig selects where leaf events are paged to.
type StorageConfig struct {
	// Backend is one of none (events stay in memory), memory, file or badger.
	Backend           string `yaml:"backend" validate:"oneof=none memory file badger"`
	Path              string `yaml:"path"`
	WriteBufferEvents uint64 `yaml:"write_buffer_events" validate:"gt=0"`
	ReadCacheEvents   int64  `yaml:"read_cache_events" validate:"gte=0"`
}

type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	SegmentSize int64  `yaml:"segment_size" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// DefaultConfig is a 3-dimensional unit cube split 2x2x2, held in memory.
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			NumDims:           3,
			SplitThreshold:    boxcontroller.DefaultSplitThreshold,
			SplitInto:         []int{2, 2, 2},
			MaxDepth:          boxcontroller.DefaultMaxDepth,
			SignificantEvents: boxcontroller.DefaultSignificantEventsNumber,
		},
		Extents: []types.Extent{{Min: 0, Max: 1}, {Min: 0, Max: 1}, {Min: 0, Max: 1}},
		Storage: StorageConfig{
			Backend:           "none",
			WriteBufferEvents: diskbuffer.DefaultWriteBufferEvents,
			ReadCacheEvents:   diskbuffer.DefaultReadCacheEvents,
		},
		Journal: JournalConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks field ranges and the consistency between sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	nd := c.Controller.NumDims
	if len(c.Extents) != nd {
		return fmt.Errorf("%w: %d extents for %d dimensions", ErrInvalidConfig, len(c.Extents), nd)
	}
	for d, ext := range c.Extents {
		if !(ext.Max > ext.Min) {
			return fmt.Errorf("%w: extents[%d] %s is empty", ErrInvalidConfig, d, ext)
		}
	}
	if n := len(c.Controller.SplitInto); n != 0 && n != nd {
		return fmt.Errorf("%w: split_into has %d entries for %d dimensions", ErrInvalidConfig, n, nd)
	}
	if n := len(c.Controller.SplitTopInto); n != 0 && n != nd {
		return fmt.Errorf("%w: split_top_into has %d entries for %d dimensions", ErrInvalidConfig, n, nd)
	}
	if (c.Controller.AddingEventsPerTask == 0) != (c.Controller.AddingEventsTasksPerBlock == 0) {
		return fmt.Errorf("%w: adding_events_per_task and adding_events_tasks_per_block must be set together", ErrInvalidConfig)
	}
	if c.Storage.Backend != "none" && c.Storage.Backend != "memory" && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required for the %s backend", ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}

// Build returns an unsealed controller configured from c.
func (c ControllerConfig) Build() (*boxcontroller.BoxController, error) {
	if c.NumDims < 1 {
		return nil, fmt.Errorf("%w: num_dims must be at least 1", ErrInvalidConfig)
	}
	bc := boxcontroller.New(c.NumDims)

	steps := []func() error{
		func() error { return bc.SetSplitThreshold(c.SplitThreshold) },
		func() error { return bc.SetSignificantEventsNumber(c.SignificantEvents) },
		func() error { return bc.SetMaxDepth(c.MaxDepth) },
	}
	for dim, n := range c.SplitInto {
		steps = append(steps, func() error { return bc.SetSplitIntoDim(dim, n) })
	}
	for dim, n := range c.SplitTopInto {
		steps = append(steps, func() error { return bc.SetSplitTopInto(dim, n) })
	}
	if c.AddingEventsPerTask > 0 {
		steps = append(steps, func() error {
			return bc.SetAddingEventsParameters(c.AddingEventsPerTask, c.AddingEventsTasksPerBlock)
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return bc, nil
}

// StoreConfig translates the storage section for diskbuffer.NewStore. The
// second result is false for the none backend.
func (s StorageConfig) StoreConfig(logger *slog.Logger) (diskbuffer.Config, bool) {
	if s.Backend == "none" || s.Backend == "" {
		return diskbuffer.Config{}, false
	}
	return diskbuffer.Config{
		Backend:           diskbuffer.Backend(s.Backend),
		WriteBufferEvents: s.WriteBufferEvents,
		ReadCacheEvents:   s.ReadCacheEvents,
		Logger:            logger,
	}, true
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromFile loads a YAML file over the defaults and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
