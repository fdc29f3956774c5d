/*
PURPOSE:
  Defines the configuration structure and loading logic for kvharness.
  Adheres to "Config IS Code" philosophy: every knob the old scripts hid in
  shell variables is an explicit, immutable field here.

REQUIREMENTS:
  User-specified:
  - Allow configuration of the health endpoint, output locations and
    benchmark invocation defaults.

  Implementation-discovered:
  - Needs to support YAML files plus environment overrides (KVHARNESS_...).
  - Values must be validated before any process is touched.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/launch, internal/engine
  - Dependencies: github.com/spf13/viper, github.com/go-playground/validator/v10,
    gopkg.in/yaml.v3

ERROR HANDLING:
  - Returns explicit error if config file is invalid or fails validation.
  - A missing default config file is not an error (defaults apply).

IMPLEMENTATION RULES:
  - Struct tags carry both mapstructure (viper) and yaml (dump) names.
  - Defaults live in setDefaults only.

USAGE:
  cfg, err := config.Load("kvharness.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config, setDefaults and the validate tags.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/daryltucker/kvharness/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "KVHARNESS"

// DefaultFiles are searched in order when no --config is given.
var DefaultFiles = []string{"kvharness.yaml", "harness.yaml"}

// Config represents the full configuration for kvharness.
type Config struct {
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	OutputDir string          `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Models    ModelsConfig    `mapstructure:"models" yaml:"models"`
	Benchmark BenchmarkConfig `mapstructure:"benchmark" yaml:"benchmark"`
}

// ServerConfig controls the launcher and the health probe.
type ServerConfig struct {
	HealthURL    string        `mapstructure:"health_url" yaml:"health_url" validate:"required,url"`
	ModelsURL    string        `mapstructure:"models_url" yaml:"models_url" validate:"omitempty,url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" validate:"gt=0"`
	Port         int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	GracePeriod  time.Duration `mapstructure:"grace_period" yaml:"grace_period" validate:"gte=0"`
	StateDir     string        `mapstructure:"state_dir" yaml:"state_dir" validate:"required"`
	LogDir       string        `mapstructure:"log_dir" yaml:"log_dir" validate:"required"`
	ResultsRoot  string        `mapstructure:"results_root" yaml:"results_root" validate:"required"`
}

// ModelsConfig maps model sizes to served model identifiers.
type ModelsConfig struct {
	Small string `mapstructure:"small" yaml:"small" validate:"required"`
	Large string `mapstructure:"large" yaml:"large" validate:"required"`
}

// For returns the model identifier and tensor-parallel degree for size.
// The small model runs on one GPU, the large one on four.
func (m ModelsConfig) For(size model.ModelSize) (string, int, error) {
	switch size {
	case model.Size8B:
		return m.Small, 1, nil
	case model.Size70B:
		return m.Large, 4, nil
	}
	return "", 0, fmt.Errorf("invalid model size %q (expected %s or %s)", size, model.Size8B, model.Size70B)
}

// BenchmarkConfig holds the fixed benchmark flag values for both grids.
type BenchmarkConfig struct {
	Command             []string      `mapstructure:"command" yaml:"command" validate:"required,min=1"`
	OutputLen           int           `mapstructure:"output_len" yaml:"output_len" validate:"min=1"`
	RepeatCount         int           `mapstructure:"repeat_count" yaml:"repeat_count" validate:"min=1"`
	MaxInflightRequests int           `mapstructure:"max_inflight_requests" yaml:"max_inflight_requests" validate:"min=1"`
	PointTimeout        time.Duration `mapstructure:"point_timeout" yaml:"point_timeout" validate:"gte=0"`
	Reuse               ReuseConfig   `mapstructure:"reuse" yaml:"reuse"`
	ISL                 ISLConfig     `mapstructure:"isl" yaml:"isl"`
}

// ReuseConfig is the fixed part of the reuse-rate grid.
type ReuseConfig struct {
	NumDocuments   int    `mapstructure:"num_documents" yaml:"num_documents" validate:"min=1"`
	DocumentLength int    `mapstructure:"document_length" yaml:"document_length" validate:"min=1"`
	RepeatMode     string `mapstructure:"repeat_mode" yaml:"repeat_mode" validate:"required"`
}

// ISLConfig is the fixed part of the input-sequence-length grid.
type ISLConfig struct {
	TokenBudget  int    `mapstructure:"token_budget" yaml:"token_budget" validate:"min=1"`
	MinDocuments int    `mapstructure:"min_documents" yaml:"min_documents" validate:"min=1"`
	HitMissRatio string `mapstructure:"hit_miss_ratio" yaml:"hit_miss_ratio" validate:"required"`
	RepeatMode   string `mapstructure:"repeat_mode" yaml:"repeat_mode" validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("output_dir", "./results")

	v.SetDefault("server.health_url", "http://localhost:8000/health")
	v.SetDefault("server.models_url", "http://localhost:8000/v1/models")
	v.SetDefault("server.probe_timeout", 5*time.Second)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grace_period", 5*time.Second)
	v.SetDefault("server.state_dir", "./.kvharness")
	v.SetDefault("server.log_dir", "./logs")
	v.SetDefault("server.results_root", "/results")

	v.SetDefault("models.small", "meta-llama/Llama-3.1-8B-Instruct")
	v.SetDefault("models.large", "meta-llama/Llama-3.1-70B-Instruct")

	v.SetDefault("benchmark.command", []string{"python3", "kv_cache_benchmark.py"})
	v.SetDefault("benchmark.output_len", 100)
	v.SetDefault("benchmark.repeat_count", 2)
	v.SetDefault("benchmark.max_inflight_requests", 4)
	v.SetDefault("benchmark.point_timeout", time.Duration(0))
	v.SetDefault("benchmark.reuse.num_documents", 20)
	v.SetDefault("benchmark.reuse.document_length", 10000)
	v.SetDefault("benchmark.reuse.repeat_mode", "random")
	v.SetDefault("benchmark.isl.token_budget", 350000)
	v.SetDefault("benchmark.isl.min_documents", 4)
	v.SetDefault("benchmark.isl.hit_miss_ratio", "1:0")
	v.SetDefault("benchmark.isl.repeat_mode", "tile")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; a decode failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads configuration from a file and the environment.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file is found, defaults plus environment overrides are returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
