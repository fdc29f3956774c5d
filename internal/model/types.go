/*
PURPOSE:
  Defines the core data structures shared by the launcher and the sweep runner.
  Everything here is a transient, process-lifetime value.

REQUIREMENTS:
  User-specified:
  - A closed set of named run configurations and two model sizes.
  - A fully resolved launch description (argv, env, wrapper).
  - Ordered sweep points and one result record per attempted point.

  Implementation-discovered:
  - Env must be an explicit map attached to the LaunchSpec, never ambient state.
  - Output naming must be derivable from the bundle alone (dir + prefix).

ARCHITECTURE INTEGRATION:
  - Used by: internal/launch, internal/engine, internal/output, internal/cli
  - Shared across boundaries.

ERROR HANDLING:
  - Parse functions return descriptive errors for values outside the closed sets.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - LaunchSpec is built once and consumed once.

USAGE:
  cfg, err := model.ParseRunConfiguration("production", "70B")
  bundle := model.OutputBundle{Dir: "./results", Prefix: "baseline_8B_20260101_120000"}

SELF-HEALING INSTRUCTIONS:
  - When adding a configuration, add it to AllConfigs and to the launch templates.

RELATED FILES:
  - internal/launch/resolver.go
  - internal/engine/grid.go

MAINTENANCE:
  - Update when the benchmark log contract or CSV layout changes.
*/

package model

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ConfigName is one of the named deployment profiles.
type ConfigName string

const (
	ConfigBaseline   ConfigName = "baseline"
	ConfigProduction ConfigName = "production"
	ConfigConnector  ConfigName = "connector"
	ConfigLMCache    ConfigName = "lmcache"
	ConfigTRTLLM     ConfigName = "trtllm"
)

// AllConfigs lists every configuration the launcher accepts.
var AllConfigs = []ConfigName{ConfigBaseline, ConfigProduction, ConfigConnector, ConfigLMCache, ConfigTRTLLM}

// SweepConfigs lists the configurations the sweep runner accepts.
var SweepConfigs = []ConfigName{ConfigBaseline, ConfigProduction, ConfigConnector, ConfigLMCache}

// ModelSize selects the model identifier and tensor-parallel degree.
type ModelSize string

const (
	Size8B  ModelSize = "8B"
	Size70B ModelSize = "70B"
)

// DefaultModelSize is used when the operator omits the size argument.
const DefaultModelSize = Size8B

// ParseConfigName validates name against allowed.
func ParseConfigName(name string, allowed []ConfigName) (ConfigName, error) {
	for _, c := range allowed {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown configuration %q (expected one of %s)", name, joinConfigs(allowed))
}

// ParseModelSize validates a model size selector.
func ParseModelSize(s string) (ModelSize, error) {
	switch ModelSize(s) {
	case Size8B, Size70B:
		return ModelSize(s), nil
	}
	return "", fmt.Errorf("invalid model size %q (expected %s or %s)", s, Size8B, Size70B)
}

func joinConfigs(cs []ConfigName) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

// RunConfiguration is the parsed (config, size) pair.
type RunConfiguration struct {
	Name ConfigName
	Size ModelSize
}

func (rc RunConfiguration) String() string {
	return fmt.Sprintf("%s/%s", rc.Name, rc.Size)
}

// ParseRunConfiguration parses a launcher configuration. An empty size selects the default.
func ParseRunConfiguration(name, size string) (RunConfiguration, error) {
	return parseRunConfiguration(name, size, AllConfigs)
}

// ParseSweepConfiguration parses a sweep configuration (trtllm is not sweepable).
func ParseSweepConfiguration(name, size string) (RunConfiguration, error) {
	return parseRunConfiguration(name, size, SweepConfigs)
}

func parseRunConfiguration(name, size string, allowed []ConfigName) (RunConfiguration, error) {
	c, err := ParseConfigName(name, allowed)
	if err != nil {
		return RunConfiguration{}, err
	}
	if size == "" {
		return RunConfiguration{Name: c, Size: DefaultModelSize}, nil
	}
	s, err := ParseModelSize(size)
	if err != nil {
		return RunConfiguration{}, err
	}
	return RunConfiguration{Name: c, Size: s}, nil
}

// Wrapper is a diagnostic tool prefixed to the server command.
type Wrapper struct {
	Tool       string   `yaml:"tool"`
	Args       []string `yaml:"args"`
	OutputPath string   `yaml:"output_path"`
}

// LaunchSpec is the fully resolved description of the server process.
type LaunchSpec struct {
	Config     RunConfiguration  `yaml:"-"`
	Model      string            `yaml:"model"`
	Executable string            `yaml:"executable"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	Wrapper    *Wrapper          `yaml:"wrapper,omitempty"`
	// Files maps absolute paths to contents that must exist before start.
	Files   map[string][]byte `yaml:"-"`
	LogPath string            `yaml:"log_path"`
}

// Command returns the complete argv including any wrapper prefix.
func (ls *LaunchSpec) Command() []string {
	var argv []string
	if ls.Wrapper != nil {
		argv = append(argv, ls.Wrapper.Tool)
		argv = append(argv, ls.Wrapper.Args...)
	}
	argv = append(argv, ls.Executable)
	return append(argv, ls.Args...)
}

// Environ returns the launch env as sorted KEY=VALUE pairs.
func (ls *LaunchSpec) Environ() []string {
	keys := make([]string, 0, len(ls.Env))
	for k := range ls.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+ls.Env[k])
	}
	return out
}

// HasArg reports whether flag appears in Args.
func (ls *LaunchSpec) HasArg(flag string) bool {
	return ls.argIndex(flag) >= 0
}

// ArgValue returns the value following flag, or "".
func (ls *LaunchSpec) ArgValue(flag string) string {
	i := ls.argIndex(flag)
	if i < 0 || i+1 >= len(ls.Args) {
		return ""
	}
	return ls.Args[i+1]
}

func (ls *LaunchSpec) argIndex(flag string) int {
	for i, a := range ls.Args {
		if a == flag {
			return i
		}
	}
	return -1
}

// SweepKind names a grid.
type SweepKind string

const (
	SweepReuse SweepKind = "reuse"
	SweepISL   SweepKind = "isl"
)

// SweepPoint is one grid coordinate.
type SweepPoint struct {
	Index          int       `json:"index"`
	Kind           SweepKind `json:"kind"`
	ReuseRate      int       `json:"reuse_rate,omitempty"`
	ISL            int       `json:"isl,omitempty"`
	NumDocuments   int       `json:"num_documents"`
	DocumentLength int       `json:"document_length"`
	HitMissRatio   string    `json:"hit_miss_ratio"`
	RepeatMode     string    `json:"repeat_mode"`
}

// Coordinate is the first CSV column for the point.
func (p SweepPoint) Coordinate() string {
	if p.Kind == SweepISL {
		return fmt.Sprintf("%d", p.ISL)
	}
	return fmt.Sprintf("%d", p.ReuseRate)
}

// Metadata is the second CSV column for the point.
func (p SweepPoint) Metadata() string {
	if p.Kind == SweepISL {
		return fmt.Sprintf("%d", p.NumDocuments)
	}
	return p.HitMissRatio
}

// Slug is the filename-safe point label.
func (p SweepPoint) Slug() string {
	return string(p.Kind) + p.Coordinate()
}

// Field names of the scraped values.
const (
	FieldMeanTTFT    = "mean_ttft"
	FieldQueryTime   = "query_time"
	FieldPromptCount = "prompt_count"
)

// ResultRecord is the outcome of a single sweep point.
type ResultRecord struct {
	RunID       string        `json:"run_id"`
	Config      string        `json:"config"`
	Point       SweepPoint    `json:"point"`
	MeanTTFT    string        `json:"mean_ttft"`
	QueryTime   string        `json:"query_time"`
	PromptCount string        `json:"prompt_count"`
	Missing     []string      `json:"missing_fields,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	LogPath     string        `json:"log_path"`
	Error       string        `json:"error,omitempty"`
}

// Succeeded reports whether the record should contribute a CSV row.
func (r ResultRecord) Succeeded() bool {
	return r.Error == ""
}

// CSVRow is the summary row for the record.
func (r ResultRecord) CSVRow() []string {
	return []string{r.Point.Coordinate(), r.Point.Metadata(), r.MeanTTFT, r.QueryTime, r.PromptCount}
}

// CSVHeader returns the summary header for a sweep kind.
func CSVHeader(kind SweepKind) []string {
	if kind == SweepISL {
		return []string{"ISL", "Num_Docs", "Mean_TTFT", "Query_Time", "Prompt_Count"}
	}
	return []string{"Reuse_Rate", "Hit_Miss_Ratio", "Mean_TTFT", "Query_Time", "Prompt_Count"}
}

// TimestampLayout is used for every generated file name.
const TimestampLayout = "20060102_150405"

// DefaultPrefix builds {config}_{model_size}_{timestamp}.
func DefaultPrefix(rc RunConfiguration, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", rc.Name, rc.Size, now.Format(TimestampLayout))
}

// OutputBundle names every artifact of one sweep invocation.
type OutputBundle struct {
	Dir    string
	Prefix string
}

// LogPath is the raw benchmark log for p.
func (b OutputBundle) LogPath(p SweepPoint) string {
	return filepath.Join(b.Dir, fmt.Sprintf("%s_%s.log", b.Prefix, p.Slug()))
}

// SummaryPath is the CSV summary file.
func (b OutputBundle) SummaryPath() string {
	return filepath.Join(b.Dir, b.Prefix+"_summary.csv")
}

// RecordsPath is the JSON Lines record file.
func (b OutputBundle) RecordsPath() string {
	return filepath.Join(b.Dir, b.Prefix+"_results.jsonl")
}
