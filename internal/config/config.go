// Package config loads Nebulite's engine-level settings: target FPS,
// resolution, the Resources/ root, and log level, from YAML with .env
// overrides.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EngineConfig is the process-wide configuration GlobalSpace is built
// from.
type EngineConfig struct {
	BinaryName    string  `yaml:"binary_name"`
	ResourcesRoot string  `yaml:"resources_root"`
	TargetFPS     int     `yaml:"target_fps"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Scale         float64 `yaml:"scale"`
	LogLevel      string  `yaml:"log_level"`
	StateName     string  `yaml:"state_name"`
}

// Default returns the engine's baseline configuration.
func Default() EngineConfig {
	return EngineConfig{
		BinaryName:    "nebulite",
		ResourcesRoot: "Resources",
		TargetFPS:     60,
		Width:         1280,
		Height:        720,
		Scale:         1.0,
		LogLevel:      "info",
		StateName:     "default",
	}
}

// Load reads path (YAML) over Default, then applies .env overrides for
// RESOURCES_ROOT and NEBULITE_LOG_LEVEL (godotenv.Load is best-effort: a
// missing .env is not an error). A missing or unreadable path falls back to
// Default without error — engine config is the one layer this module lets
// be entirely absent (a bare `nebulite` invocation with no config.yml
// should still run).
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	_ = godotenv.Load()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	if v := os.Getenv("RESOURCES_ROOT"); v != "" {
		cfg.ResourcesRoot = v
	}
	if v := os.Getenv("NEBULITE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// ZerologLevel parses LogLevel into a zerolog.Level, defaulting to Info on
// an unrecognized value.
func (c EngineConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// FrameNanos returns the target per-frame budget in nanoseconds, or 0 if
// TargetFPS is unset/non-positive (uncapped).
func (c EngineConfig) FrameNanos() int64 {
	if c.TargetFPS <= 0 {
		return 0
	}
	return int64(1e9) / int64(c.TargetFPS)
}

// String renders the config for startup logging.
func (c EngineConfig) String() string {
	return c.BinaryName + "@" + c.StateName + " " + strconv.Itoa(c.Width) + "x" + strconv.Itoa(c.Height)
}
