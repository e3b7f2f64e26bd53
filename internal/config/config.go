// Package config provides XDG paths and config file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/keyprint/internal/model"
)

// FileConfig represents the config file. Absent keys stay nil so defaults and
// CLI flags are not overridden.
type FileConfig struct {
	Store         StoreConfig      `toml:"store" yaml:"store"`
	Log           LogConfig        `toml:"log" yaml:"log"`
	PolicySection PolicyConfig     `toml:"policy" yaml:"policy"`
	Enrollment    EnrollmentConfig `toml:"enrollment" yaml:"enrollment"`
}

// StoreConfig selects where profiles live.
type StoreConfig struct {
	Backend       *string `toml:"backend" yaml:"backend"`
	Path          *string `toml:"path" yaml:"path"`
	RedisAddr     *string `toml:"redis-addr" yaml:"redis_addr"`
	RedisPassword *string `toml:"redis-password" yaml:"redis_password"`
	RedisDB       *int    `toml:"redis-db" yaml:"redis_db"`
	RedisPrefix   *string `toml:"redis-prefix" yaml:"redis_prefix"`
}

// LogConfig maps logger settings.
type LogConfig struct {
	Level  *string `toml:"level" yaml:"level"`
	Format *string `toml:"format" yaml:"format"`
}

// PolicyConfig maps verification policy settings.
type PolicyConfig struct {
	Allow         *float64 `toml:"allow" yaml:"allow"`
	StepUp        *float64 `toml:"step-up" yaml:"step_up"`
	Deny          *float64 `toml:"deny" yaml:"deny"`
	UpdateOnAllow *bool    `toml:"update-on-allow" yaml:"update_on_allow"`
	AdaptRate     *float64 `toml:"adapt-rate" yaml:"adapt_rate"`
}

// EnrollmentConfig maps enrollment targets and the prompt phrase file.
type EnrollmentConfig struct {
	MinRounds     *int    `toml:"min-rounds" yaml:"min_rounds"`
	MinKeystrokes *int    `toml:"min-keystrokes" yaml:"min_keystrokes"`
	MinDigraphs   *int    `toml:"min-digraphs" yaml:"min_digraphs"`
	Phrases       *string `toml:"phrases" yaml:"phrases"`
}

// LoadConfig reads a config file from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

// Policy converts the policy and enrollment sections. Unset values stay nil or
// zero so the scoring defaults apply.
func (c FileConfig) Policy() model.Policy {
	p := model.Policy{
		AllowThreshold:  c.PolicySection.Allow,
		StepUpThreshold: c.PolicySection.StepUp,
		DenyThreshold:   c.PolicySection.Deny,
		UpdateOnAllow:   c.PolicySection.UpdateOnAllow,
		AdaptRate:       c.PolicySection.AdaptRate,
	}
	if c.Enrollment.MinRounds != nil {
		p.Enrollment.MinRounds = *c.Enrollment.MinRounds
	}
	if c.Enrollment.MinKeystrokes != nil {
		p.Enrollment.MinKeystrokes = *c.Enrollment.MinKeystrokes
	}
	if c.Enrollment.MinDigraphs != nil {
		p.Enrollment.MinDigraphs = *c.Enrollment.MinDigraphs
	}
	return p
}
