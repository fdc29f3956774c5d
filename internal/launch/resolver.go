/*
PURPOSE:
  Resolves a named run configuration plus model size into a LaunchSpec:
  executable, ordered arguments, environment and optional diagnostic wrapper.

REQUIREMENTS:
  User-specified:
  - Five fixed deployment profiles: baseline, production, connector, lmcache, trtllm.
  - 8B runs on one GPU, 70B on four.
  - Profile-specific environment must match the deployment profiles exactly.

  Implementation-discovered:
  - Tensor-parallel flag only when the degree is above 1.
  - TensorRT-LLM takes its KV cache settings from an extra-options YAML file,
    which becomes part of the LaunchSpec (Files) rather than a side effect here.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (serve)
  - Uses: internal/config, internal/model
  - Output consumed by: internal/engine.Supervisor

ERROR HANDLING:
  - Every invalid input fails before any process is touched.

IMPLEMENTATION RULES:
  - Resolve is deterministic for a given (config, options, now).
  - Templates are data, not branches scattered through the code.

USAGE:
  spec, err := launch.NewResolver(cfg).Resolve(rc, opts, time.Now())

SELF-HEALING INSTRUCTIONS:
  - Adding a profile: add a template to templates and the name to model.AllConfigs.

RELATED FILES:
  - internal/launch/wrapper.go
  - internal/launch/args.go

MAINTENANCE:
  - Update env tables when the serving stack changes its knobs.
*/

package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
	"gopkg.in/yaml.v3"
)

const (
	maxModelLen       = 131072
	gpuMemoryFraction = "0.90"
)

// ropeScaling extends the native 8k context of the base weights to maxModelLen.
var ropeScaling = map[string]any{
	"rope_type":                        "llama3",
	"factor":                           8.0,
	"original_max_position_embeddings": 8192,
	"low_freq_factor":                  1.0,
	"high_freq_factor":                 4.0,
}

// Connector describes a KV cache connector attached through --kv-transfer-config.
type Connector struct {
	Name       string
	Role       string
	ModulePath string
	Extra      map[string]any
}

func (c *Connector) transferConfig() (string, error) {
	payload := map[string]any{
		"kv_connector": c.Name,
		"kv_role":      c.Role,
	}
	if c.ModulePath != "" {
		payload["kv_connector_module_path"] = c.ModulePath
	}
	if len(c.Extra) > 0 {
		payload["kv_connector_extra_config"] = c.Extra
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type engineKind int

const (
	engineVLLM engineKind = iota
	engineTRTLLM
)

type template struct {
	engine        engineKind
	prefixCaching bool
	connector     *Connector
	env           map[string]string
}

var dynamoConnector = &Connector{
	Name:       "DynamoConnector",
	Role:       "kv_both",
	ModulePath: "kvbm.vllm_integration.connector",
}

var templates = map[model.ConfigName]template{
	model.ConfigBaseline: {
		engine:        engineVLLM,
		prefixCaching: false,
		env: map[string]string{
			"VLLM_LOGGING_LEVEL": "INFO",
		},
	},
	model.ConfigProduction: {
		engine:        engineVLLM,
		prefixCaching: true,
		connector:     dynamoConnector,
		env: map[string]string{
			"DYN_KVBM_CPU_CACHE_GB":                    "100",
			"DYN_KVBM_DISK_CACHE_GB":                   "0",
			"DYN_KVBM_LEADER_WORKER_INIT_TIMEOUT_SECS": "1200",
			"DYN_LOG":                                  "info",
			"VLLM_LOGGING_LEVEL":                       "INFO",
		},
	},
	model.ConfigConnector: {
		engine:        engineVLLM,
		prefixCaching: true,
		connector:     dynamoConnector,
		env: map[string]string{
			"DYN_KVBM_CPU_CACHE_GB":                    "20",
			"DYN_KVBM_DISK_CACHE_GB":                   "0",
			"DYN_KVBM_LEADER_WORKER_INIT_TIMEOUT_SECS": "1200",
			"DYN_LOG":                                  "debug",
			"VLLM_LOGGING_LEVEL":                       "DEBUG",
			"RUST_BACKTRACE":                           "1",
		},
	},
	model.ConfigLMCache: {
		engine:        engineVLLM,
		prefixCaching: true,
		connector: &Connector{
			Name: "LMCacheConnectorV1",
			Role: "kv_both",
		},
		env: map[string]string{
			"LMCACHE_CHUNK_SIZE":         "256",
			"LMCACHE_LOCAL_CPU":          "True",
			"LMCACHE_MAX_LOCAL_CPU_SIZE": "100",
			"LMCACHE_USE_EXPERIMENTAL":   "True",
			"VLLM_LOGGING_LEVEL":         "INFO",
		},
	},
	model.ConfigTRTLLM: {
		engine:        engineTRTLLM,
		prefixCaching: true,
		env: map[string]string{
			"TLLM_LOG_LEVEL": "INFO",
		},
	},
}

// Options are the operator toggles parsed from key=value arguments.
type Options struct {
	Profile  bool
	Sanitize SanitizerTool
	Eager    bool
	// ExtraEnv is merged over the template env (e.g. from --env-file).
	ExtraEnv map[string]string
	// DryRun skips directory creation.
	DryRun bool
}

// Resolver turns run configurations into launch specs.
type Resolver struct {
	cfg *config.Config
}

// NewResolver creates a Resolver bound to cfg.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve builds the LaunchSpec for rc.
func (r *Resolver) Resolve(rc model.RunConfiguration, opts Options, now time.Time) (*model.LaunchSpec, error) {
	tmpl, ok := templates[rc.Name]
	if !ok {
		return nil, fmt.Errorf("unknown configuration %q", rc.Name)
	}
	modelID, tp, err := r.cfg.Models.For(rc.Size)
	if err != nil {
		return nil, err
	}
	if opts.Profile && opts.Sanitize != SanitizeNone {
		return nil, ErrUnsupportedCombination
	}

	spec := &model.LaunchSpec{
		Config:  rc,
		Model:   modelID,
		Env:     make(map[string]string, len(tmpl.env)+len(opts.ExtraEnv)),
		Files:   map[string][]byte{},
		LogPath: filepath.Join(r.cfg.Server.LogDir, fmt.Sprintf("server_%s_%s_%s.log", rc.Name, rc.Size, now.Format(model.TimestampLayout))),
	}
	for k, v := range tmpl.env {
		spec.Env[k] = v
	}
	for k, v := range opts.ExtraEnv {
		spec.Env[k] = v
	}

	switch tmpl.engine {
	case engineVLLM:
		err = r.vllmArgs(spec, tmpl, tp, opts)
	case engineTRTLLM:
		err = r.trtllmArgs(spec, tmpl, tp, opts, now)
	}
	if err != nil {
		return nil, err
	}

	wrapper, err := r.wrapper(rc, opts, now)
	if err != nil {
		return nil, err
	}
	spec.Wrapper = wrapper
	return spec, nil
}

func (r *Resolver) vllmArgs(spec *model.LaunchSpec, tmpl template, tp int, opts Options) error {
	rope, err := json.Marshal(ropeScaling)
	if err != nil {
		return err
	}
	spec.Executable = "vllm"
	spec.Args = []string{
		"serve", spec.Model,
		"--port", strconv.Itoa(r.cfg.Server.Port),
		"--max-model-len", strconv.Itoa(maxModelLen),
		"--gpu-memory-utilization", gpuMemoryFraction,
		"--rope-scaling", string(rope),
	}
	if tmpl.prefixCaching {
		spec.Args = append(spec.Args, "--enable-prefix-caching")
	} else {
		spec.Args = append(spec.Args, "--no-enable-prefix-caching")
	}
	if tmpl.connector != nil {
		kv, err := tmpl.connector.transferConfig()
		if err != nil {
			return fmt.Errorf("encode kv transfer config: %w", err)
		}
		spec.Args = append(spec.Args, "--kv-transfer-config", kv)
	}
	if tp > 1 {
		spec.Args = append(spec.Args, "--tensor-parallel-size", strconv.Itoa(tp))
	}
	if opts.Eager {
		spec.Args = append(spec.Args, "--enforce-eager")
	}
	return nil
}

type trtllmOptions struct {
	KVCacheConfig struct {
		EnableBlockReuse      bool    `yaml:"enable_block_reuse"`
		FreeGPUMemoryFraction float64 `yaml:"free_gpu_memory_fraction"`
	} `yaml:"kv_cache_config"`
	CUDAGraphConfig *struct{} `yaml:"cuda_graph_config"`
}

func (r *Resolver) trtllmArgs(spec *model.LaunchSpec, tmpl template, tp int, opts Options, now time.Time) error {
	var extra trtllmOptions
	extra.KVCacheConfig.EnableBlockReuse = tmpl.prefixCaching
	extra.KVCacheConfig.FreeGPUMemoryFraction = 0.90
	if !opts.Eager {
		extra.CUDAGraphConfig = &struct{}{}
	}
	body, err := yaml.Marshal(&extra)
	if err != nil {
		return fmt.Errorf("encode trtllm options: %w", err)
	}
	optsPath := filepath.Join(r.cfg.Server.StateDir, fmt.Sprintf("trtllm_options_%s_%s.yaml", spec.Config.Size, now.Format(model.TimestampLayout)))
	spec.Files[optsPath] = body

	spec.Executable = "trtllm-serve"
	spec.Args = []string{
		spec.Model,
		"--port", strconv.Itoa(r.cfg.Server.Port),
		"--backend", "pytorch",
		"--max_seq_len", strconv.Itoa(maxModelLen),
		"--extra_llm_api_options", optsPath,
	}
	if tp > 1 {
		spec.Args = append(spec.Args, "--tp_size", strconv.Itoa(tp))
	}
	return nil
}

func (r *Resolver) wrapper(rc model.RunConfiguration, opts Options, now time.Time) (*model.Wrapper, error) {
	if !opts.Profile && opts.Sanitize == SanitizeNone {
		return nil, nil
	}
	dir := filepath.Join(r.cfg.Server.ResultsRoot, string(rc.Name))
	if !opts.DryRun {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
		}
	}
	ts := now.Format(model.TimestampLayout)
	if opts.Profile {
		return profilerWrapper(filepath.Join(dir, fmt.Sprintf("nsys_%s_%s", rc.Size, ts))), nil
	}
	return sanitizerWrapper(opts.Sanitize, filepath.Join(dir, fmt.Sprintf("sanitizer_%s_%s_%s.log", opts.Sanitize, rc.Size, ts))), nil
}
