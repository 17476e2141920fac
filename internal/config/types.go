package config

import (
	"time"

	"github.com/cadre-oss/patternmem/internal/resolver"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "patternmem.yaml"

// Config represents the pattern memory configuration (patternmem.yaml)
type Config struct {
	MaxPatterns             int              `yaml:"max_patterns" json:"max_patterns" mapstructure:"max_patterns" validate:"gte=0"`
	TTLDays                 int              `yaml:"ttl_days" json:"ttl_days" mapstructure:"ttl_days" validate:"gte=0"`
	DefaultStrategy         string           `yaml:"default_strategy" json:"default_strategy" mapstructure:"default_strategy" validate:"required,strategy"`
	TeamPriorityCategory    string           `yaml:"team_priority_category" json:"team_priority_category" mapstructure:"team_priority_category"`
	DefaultChoiceConfidence float64          `yaml:"default_choice_confidence" json:"default_choice_confidence" mapstructure:"default_choice_confidence" validate:"gte=0,lte=1"`
	Weights                 resolver.Weights `yaml:"weights" json:"weights" mapstructure:"weights"`
	Snapshot                SnapshotConfig   `yaml:"snapshot" json:"snapshot" mapstructure:"snapshot"`
	Logging                 LoggingConfig    `yaml:"logging" json:"logging" mapstructure:"logging"`
	Server                  ServerConfig     `yaml:"server" json:"server" mapstructure:"server"`
	Hooks                   HooksConfig      `yaml:"hooks" json:"hooks" mapstructure:"hooks"`
}

// SnapshotConfig configures on-disk persistence
type SnapshotConfig struct {
	Driver        string `yaml:"driver" json:"driver" mapstructure:"driver" validate:"oneof=none ndjson sqlite"`
	Path          string `yaml:"path" json:"path" mapstructure:"path" validate:"required_unless=Driver none"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`
	File   string `yaml:"file,omitempty" json:"file,omitempty" mapstructure:"file"` // also write logs here
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr" validate:"required"`
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks" mapstructure:"hooks" validate:"dive"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name" mapstructure:"name" validate:"required"`
	Type     string   `yaml:"type" json:"type" mapstructure:"type" validate:"oneof=shell webhook log"`
	Events   []string `yaml:"events" json:"events" mapstructure:"events"`         // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking" mapstructure:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty" mapstructure:"command" validate:"required_if=Type shell"`
	URL      string   `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url" validate:"required_if=Type webhook"`
	Level    string   `yaml:"level,omitempty" json:"level,omitempty" mapstructure:"level"` // for log hooks (debug, info, warn)
}

// TTL returns the record time-to-live. Zero disables expiry.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// Strategy returns the configured default strategy.
func (c *Config) Strategy() resolver.Strategy {
	return resolver.Strategy(c.DefaultStrategy)
}

// TeamConfig returns the store-wide team preferences.
func (c *Config) TeamConfig() resolver.TeamConfig {
	return resolver.TeamConfig{Priority: c.TeamPriorityCategory}
}

// ParsedFlushInterval returns the snapshot flush interval, defaulting to one
// minute.
func (s *SnapshotConfig) ParsedFlushInterval() (time.Duration, error) {
	if s.FlushInterval == "" {
		return time.Minute, nil
	}
	return time.ParseDuration(s.FlushInterval)
}
