package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Audio    AudioConfig  `yaml:"audio"`
	Engine   EngineConfig `yaml:"engine"`
	LogLevel string       `yaml:"log_level"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	FrameSize      int     `yaml:"frame_size"`      // samples per capture read
	BufferDuration float64 `yaml:"buffer_duration"` // ring buffer length, seconds
	DumpPath       string  `yaml:"dump_path"`       // optional WAV dump of the session
}

// EngineConfig holds the hybrid engine and backend-switching settings.
type EngineConfig struct {
	DefaultBackend string  `yaml:"default_backend"` // "light" or "heavy"
	LightModelPath string  `yaml:"light_model_path"`
	HeavyModelPath string  `yaml:"heavy_model_path"`
	WindowSeconds  float64 `yaml:"window_seconds"` // heavy backend transcription window

	CPUThreshold     float64 `yaml:"cpu_threshold"` // percent
	MemThreshold     float64 `yaml:"mem_threshold"` // percent
	HysteresisMargin float64 `yaml:"hysteresis_margin"`
	CooldownSeconds  float64 `yaml:"cooldown_seconds"`
	CheckEvery       int     `yaml:"check_every"` // evaluate every N chunks
	CheckInterval    float64 `yaml:"check_interval_seconds"`
	TempThreshold    float64 `yaml:"temp_threshold"` // °C, 0 disables
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "smartlog")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the default directory for downloaded models.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "smartlog", "models")
}

// Default returns a Config with sensible default values. Thresholds and
// throttles are deliberately configuration, not constants.
func Default() *Config {
	models := DefaultModelsDir()

	return &Config{
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			FrameSize:      1600, // ~100ms at 16kHz
			BufferDuration: 10,
		},
		Engine: EngineConfig{
			DefaultBackend:   "light",
			LightModelPath:   filepath.Join(models, "vosk-model-small-en-us-0.15"),
			HeavyModelPath:   filepath.Join(models, "ggml-base.en.bin"),
			WindowSeconds:    3,
			CPUThreshold:     80,
			MemThreshold:     85,
			HysteresisMargin: 10,
			CooldownSeconds:  30,
			CheckEvery:       10,
			CheckInterval:    5,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in model paths is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Engine.LightModelPath = expandTilde(cfg.Engine.LightModelPath)
	cfg.Engine.HeavyModelPath = expandTilde(cfg.Engine.HeavyModelPath)
	cfg.Audio.DumpPath = expandTilde(cfg.Audio.DumpPath)

	return cfg, nil
}

// Cooldown returns the switch cooldown as a duration.
func (e EngineConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownSeconds * float64(time.Second))
}

// CheckIntervalDuration returns the resource-check interval as a duration.
func (e EngineConfig) CheckIntervalDuration() time.Duration {
	return time.Duration(e.CheckInterval * float64(time.Second))
}

// RingDuration returns the ring buffer length as a duration.
func (a AudioConfig) RingDuration() time.Duration {
	return time.Duration(a.BufferDuration * float64(time.Second))
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be > 0")
	}
	if c.Audio.BufferDuration <= 0 {
		return fmt.Errorf("audio.buffer_duration must be > 0")
	}

	frameBytes := c.Audio.FrameSize * c.Audio.Channels * 2
	ringBytes := int(c.Audio.BufferDuration * float64(c.Audio.SampleRate) * float64(c.Audio.Channels) * 2)
	if frameBytes > ringBytes {
		return fmt.Errorf("audio.frame_size (%d bytes) exceeds the ring buffer (%d bytes); increase audio.buffer_duration", frameBytes, ringBytes)
	}

	switch c.Engine.DefaultBackend {
	case "light", "heavy":
	default:
		return fmt.Errorf("engine.default_backend must be \"light\" or \"heavy\", got %q", c.Engine.DefaultBackend)
	}

	if c.Engine.LightModelPath == "" {
		return fmt.Errorf("engine.light_model_path must not be empty")
	}
	if c.Engine.HeavyModelPath == "" {
		return fmt.Errorf("engine.heavy_model_path must not be empty")
	}
	if c.Engine.WindowSeconds <= 0 {
		return fmt.Errorf("engine.window_seconds must be > 0")
	}

	if c.Engine.CPUThreshold <= 0 || c.Engine.CPUThreshold > 100 {
		return fmt.Errorf("engine.cpu_threshold must be in (0, 100], got %g", c.Engine.CPUThreshold)
	}
	if c.Engine.MemThreshold <= 0 || c.Engine.MemThreshold > 100 {
		return fmt.Errorf("engine.mem_threshold must be in (0, 100], got %g", c.Engine.MemThreshold)
	}
	if c.Engine.HysteresisMargin < 0 || c.Engine.HysteresisMargin >= c.Engine.CPUThreshold {
		return fmt.Errorf("engine.hysteresis_margin must be in [0, cpu_threshold), got %g", c.Engine.HysteresisMargin)
	}
	if c.Engine.CooldownSeconds < 0 {
		return fmt.Errorf("engine.cooldown_seconds must be >= 0")
	}
	if c.Engine.CheckEvery < 0 {
		return fmt.Errorf("engine.check_every must be >= 0")
	}
	if c.Engine.CheckInterval < 0 {
		return fmt.Errorf("engine.check_interval_seconds must be >= 0")
	}
	if c.Engine.TempThreshold < 0 {
		return fmt.Errorf("engine.temp_threshold must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
