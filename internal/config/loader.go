package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/cadre-oss/patternmem/internal/resolver"
	"github.com/cadre-oss/patternmem/internal/session"
	"github.com/cadre-oss/patternmem/internal/store"
)

// Load loads patternmem.yaml from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if no file exists
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(content)
}

// Parse decodes YAML over the defaults, so keys left out keep their default
// and an explicit zero (max_patterns: 0, ttl_days: 0) is preserved.
func Parse(content []byte) (*Config, error) {
	// Interpolate environment variables
	content = []byte(interpolateEnv(string(content)))

	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

var (
	envPattern = regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	replace := func(re *regexp.Regexp) func(string) string {
		return func(match string) string {
			if val := os.Getenv(re.FindStringSubmatch(match)[1]); val != "" {
				return val
			}
			return match // keep original if not found
		}
	}
	content = envPattern.ReplaceAllStringFunc(content, replace(envPattern))
	return varPattern.ReplaceAllStringFunc(content, replace(varPattern))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxPatterns:             store.DefaultMaxPatterns,
		TTLDays:                 int(store.DefaultTTL.Hours() / 24),
		DefaultStrategy:         string(resolver.DefaultStrategy),
		TeamPriorityCategory:    resolver.PriorityBalanced,
		DefaultChoiceConfidence: session.DefaultChoiceConfidence,
		Weights:                 resolver.DefaultWeights(),
		Snapshot: SnapshotConfig{
			Driver:        "ndjson",
			Path:          ".patternmem/patterns.ndjson",
			FlushInterval: "1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8420",
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = def.DefaultStrategy
	}
	if cfg.TeamPriorityCategory == "" {
		cfg.TeamPriorityCategory = def.TeamPriorityCategory
	}
	if cfg.Snapshot.Driver == "" {
		cfg.Snapshot.Driver = def.Snapshot.Driver
	}
	if cfg.Snapshot.Driver == "sqlite" && cfg.Snapshot.Path == def.Snapshot.Path {
		cfg.Snapshot.Path = ".patternmem/patterns.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
}
