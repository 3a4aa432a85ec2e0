// Package config loads and validates the declarative build configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"
)

// EngineBackend selects the pixel engine adapter.
type EngineBackend string

const (
	EngineStd  EngineBackend = "std"
	EngineVips EngineBackend = "vips"
)

// EncodeOptions carries free-form, format-specific encode parameters
// (quality, lossless, progressive, ...). Kept as a map so semantically
// identical configurations fingerprint identically regardless of key order.
type EncodeOptions map[string]interface{}

// ResizeConfig declares resize constraints for a transform. A zero axis is
// derived from the other one, preserving aspect ratio.
type ResizeConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TransformConfig is one named, declared image operation applied to every
// matched source.
type TransformConfig struct {
	Resize  *ResizeConfig            `yaml:"resize"`
	Formats map[string]EncodeOptions `yaml:"formats"`
	Dest    string                   `yaml:"dest"` // destination path template
}

// ProfileConfig is a named set of source glob + destination rules +
// transforms, processed independently.
type ProfileConfig struct {
	Src               string                     `yaml:"src"`
	DestFolder        string                     `yaml:"destFolder"`
	Formats           map[string]EncodeOptions   `yaml:"formats"` // profile-wide encode defaults
	Transforms        map[string]TransformConfig `yaml:"transforms"`
	MeasureBrightness bool                       `yaml:"measureBrightness"`
}

// Config is the top-level configuration. All fields have safe defaults so
// callers can start from Default() and override only what they need.
type Config struct {
	InfoFile    string        `yaml:"infoFile"` // snapshot file path
	Dry         bool          `yaml:"dry"`      // plan only, execute nothing
	Engine      EngineBackend `yaml:"engine"`
	Concurrency int           `yaml:"concurrency"` // max concurrent operations
	LogLevel    string        `yaml:"logLevel"`    // "debug", "info", "warn", "error"

	Profiles map[string]ProfileConfig `yaml:"profiles"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		InfoFile:    "bronze.json",
		Engine:      EngineStd,
		Concurrency: runtime.NumCPU(),
		LogLevel:    "info",
	}
}

// Load reads a YAML configuration file over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.InfoFile == "" {
		return errors.New("config: infoFile must be set")
	}
	if c.Concurrency < 0 {
		return errors.New("config: concurrency must not be negative")
	}
	switch c.Engine {
	case EngineStd, EngineVips, "":
	default:
		return fmt.Errorf("config: unknown engine %q", c.Engine)
	}
	for name, profile := range c.Profiles {
		if profile.Src == "" {
			return fmt.Errorf("config: profile %q has no src pattern", name)
		}
		if profile.DestFolder == "" {
			return fmt.Errorf("config: profile %q has no destFolder", name)
		}
		if len(profile.Transforms) == 0 {
			return fmt.Errorf("config: profile %q declares no transforms", name)
		}
	}
	return nil
}

// EffectiveFormats resolves the formats a transform produces, overlaying the
// profile-wide encode defaults under the transform-level options. A
// transform without its own formats inherits the profile's whole set.
func (t TransformConfig) EffectiveFormats(defaults map[string]EncodeOptions) map[string]EncodeOptions {
	declared := t.Formats
	if len(declared) == 0 {
		declared = defaults
	}

	merged := make(map[string]EncodeOptions, len(declared))
	for name, opts := range declared {
		eff := EncodeOptions{}
		for k, v := range opts {
			eff[k] = v
		}
		if base, ok := defaults[name]; ok {
			// mergo fills keys the transform did not set itself.
			if err := mergo.Merge(&eff, base); err != nil {
				continue
			}
		}
		merged[name] = eff
	}
	return merged
}
