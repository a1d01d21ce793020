package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ContextRule names two annotation sets whose methods must not call each other.
type ContextRule struct {
	Name string   `yaml:"name" validate:"required"`
	A    []string `yaml:"a" validate:"required,min=1,dive,required"`
	B    []string `yaml:"b" validate:"required,min=1,dive,required"`
}

// Neo4jConfig holds the connection used by `gcg export neo4j`.
type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"GCG_NEO4J_URI" validate:"omitempty,uri"`
	User     string `yaml:"user" env:"GCG_NEO4J_USER"`
	Password string `yaml:"password,omitempty" env:"GCG_NEO4J_PASSWORD"`
	Database string `yaml:"database,omitempty" env:"GCG_NEO4J_DATABASE"`
}

// Config holds all configuration for gcg
type Config struct {
	// IncludeUncertain keeps edges to overrides without type evidence.
	IncludeUncertain bool `yaml:"include_uncertain" env:"GCG_INCLUDE_UNCERTAIN"`
	// StrictTypes fails the run on constructor calls of unknown type.
	StrictTypes bool `yaml:"strict_types" env:"GCG_STRICT_TYPES"`

	// Source selection
	IncludeTests bool     `yaml:"include_tests" env:"GCG_INCLUDE_TESTS"`
	Exclude      []string `yaml:"exclude" env:"GCG_EXCLUDE"`

	// Contexts replaces the built-in UI/worker thread rule when set.
	Contexts []ContextRule `yaml:"contexts" validate:"dive"`

	// Output
	Output      string `yaml:"output" env:"GCG_OUTPUT" validate:"oneof=text json msgpack dot"`
	MetricsFile string `yaml:"metrics_file,omitempty" env:"GCG_METRICS_FILE"`
	Trace       bool   `yaml:"trace" env:"GCG_TRACE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"GCG_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogJSON  bool   `yaml:"log_json" env:"GCG_LOG_JSON"`

	Neo4j Neo4jConfig `yaml:"neo4j"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output:   "text",
		LogLevel: "info",
		Neo4j: Neo4jConfig{
			URI:  "neo4j://localhost:7687",
			User: "neo4j",
		},
	}
}

// GlobalPath returns the global config file path (~/.gcg/config.yaml)
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gcg", "config.yaml")
	}
	return filepath.Join(home, ".gcg", "config.yaml")
}

// ProjectPath returns the project-level config file path under root.
func ProjectPath(root string) string {
	return filepath.Join(root, ".gcg", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables (GCG_*)
// 2. Project-level config (<root>/.gcg/config.yaml)
// 3. Global config (~/.gcg/config.yaml)
// 4. Defaults
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalPath(), ProjectPath(root)} {
		if err := mergeFile(cfg, path, false); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path, true); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile unmarshals path over cfg. A missing file is only an error when
// required is set.
func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// The file may hold the Neo4j password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	bools := map[string]*bool{
		"GCG_INCLUDE_UNCERTAIN": &cfg.IncludeUncertain,
		"GCG_STRICT_TYPES":      &cfg.StrictTypes,
		"GCG_INCLUDE_TESTS":     &cfg.IncludeTests,
		"GCG_TRACE":             &cfg.Trace,
		"GCG_LOG_JSON":          &cfg.LogJSON,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = b
	}

	strs := map[string]*string{
		"GCG_OUTPUT":         &cfg.Output,
		"GCG_METRICS_FILE":   &cfg.MetricsFile,
		"GCG_LOG_LEVEL":      &cfg.LogLevel,
		"GCG_NEO4J_URI":      &cfg.Neo4j.URI,
		"GCG_NEO4J_USER":     &cfg.Neo4j.User,
		"GCG_NEO4J_PASSWORD": &cfg.Neo4j.Password,
		"GCG_NEO4J_DATABASE": &cfg.Neo4j.Database,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("GCG_EXCLUDE"); v != "" {
		cfg.Exclude = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Exclude = append(cfg.Exclude, p)
			}
		}
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	names := make(map[string]bool, len(c.Contexts))
	for _, rule := range c.Contexts {
		if names[rule.Name] {
			return fmt.Errorf("%w: duplicate context rule %q", ErrInvalidConfig, rule.Name)
		}
		names[rule.Name] = true

		inA := make(map[string]bool, len(rule.A))
		for _, a := range rule.A {
			inA[a] = true
		}
		for _, b := range rule.B {
			if inA[b] {
				return fmt.Errorf("%w: context rule %q lists %s on both sides", ErrInvalidConfig, rule.Name, b)
			}
		}
	}
	return nil
}
