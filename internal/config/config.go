// Package config loads and snapshots the refactor core's configuration.
// Values are read from a YAML file and then overridden from environment
// variables, mirroring the teacher's config-load-then-env-override idiom.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for one Build Orchestrator process.
type Config struct {
	Retry        RetryConfig        `yaml:"retry"`
	Denoise      DenoiseConfig      `yaml:"denoise"`
	Gate         GateConfig         `yaml:"gate"`
	Models       ModelsConfig       `yaml:"models"`
	Logging      LoggingConfig      `yaml:"logging"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts"`
	Graph        GraphConfig        `yaml:"graph"`
}

// RetryConfig governs C5's semantic-retry budget, independent of the
// transport-level backoff used by the adapters.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries"` // 0 = single-shot
}

// DenoiseConfig governs C3's sampling schedule and guidance.
type DenoiseConfig struct {
	Steps             int     `yaml:"steps"`
	Schedule          string  `yaml:"schedule"` // linear | cosine | sqrt
	BetaStart         float64 `yaml:"beta_start"`
	BetaEnd           float64 `yaml:"beta_end"`
	GuidanceScale     float64 `yaml:"guidance_scale"`
	FallbackEnabled   bool    `yaml:"fallback_enabled"`
	FallbackMaxPasses int     `yaml:"fallback_max_passes"`
	PlanningTimeout   string  `yaml:"planning_timeout"`
	GenerationTimeout string  `yaml:"generation_timeout"`
}

// GateConfig governs C4's safety gate.
type GateConfig struct {
	TypeCheckTimeout  string   `yaml:"type_check_timeout"`
	VersionProbeTimeout string `yaml:"version_probe_timeout"`
	CheckerPreference string   `yaml:"checker_preference"` // stricter-first | looser-first
}

// Preset is the diffusion backbone quality/cost tier.
type Preset string

const (
	PresetFast     Preset = "fast"
	PresetBalanced Preset = "balanced"
	PresetQuality  Preset = "quality"
	PresetMock     Preset = "mock"
)

// ModelsConfig configures the three remote model capabilities.
type ModelsConfig struct {
	PlannerAPIKey    string `yaml:"-"`
	CompressorAPIKey string `yaml:"-"`
	BackboneAPIKey   string `yaml:"-"`
	PlannerProvider  string `yaml:"planner_provider"`
	DiffusionPreset  Preset `yaml:"diffusion_preset"`
}

// LoggingConfig mirrors logging.Configure's parameters for YAML loading.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// ArtifactsConfig locates where the Ledger is persisted.
type ArtifactsConfig struct {
	Directory string `yaml:"directory"`
}

// GraphConfig configures the knowledge-graph capability adapter.
type GraphConfig struct {
	BaseURL    string `yaml:"base_url"`
	CachePath  string `yaml:"cache_path"` // sqlite cache db path; empty uses an in-memory cache
	Timeout    string `yaml:"timeout"`
}

// DefaultConfig returns the baseline configuration, mirroring the
// teacher's DefaultConfig() constructor.
func DefaultConfig() *Config {
	return &Config{
		Retry: RetryConfig{MaxRetries: 2},
		Denoise: DenoiseConfig{
			Steps:             20,
			Schedule:          "cosine",
			BetaStart:         0.0001,
			BetaEnd:           0.02,
			GuidanceScale:     1.5,
			FallbackEnabled:   true,
			FallbackMaxPasses: 2,
			PlanningTimeout:   "30s",
			GenerationTimeout: "150s",
		},
		Gate: GateConfig{
			TypeCheckTimeout:    "30s",
			VersionProbeTimeout: "5s",
			CheckerPreference:   "stricter-first",
		},
		Models: ModelsConfig{
			PlannerProvider: "gemini",
			DiffusionPreset: PresetBalanced,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Artifacts: ArtifactsConfig{
			Directory: "artifacts",
		},
		Graph: GraphConfig{
			Timeout: "10s",
		},
	}
}

// Load reads a YAML config file, falling back to defaults for any field
// the file omits, and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides reads the environment inputs enumerated in spec.md §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REFACTOR_PLANNER_API_KEY"); v != "" {
		c.Models.PlannerAPIKey = v
	}
	if v := os.Getenv("REFACTOR_COMPRESSOR_API_KEY"); v != "" {
		c.Models.CompressorAPIKey = v
	}
	if v := os.Getenv("REFACTOR_BACKBONE_API_KEY"); v != "" {
		c.Models.BackboneAPIKey = v
	}
	if v := os.Getenv("REFACTOR_PLANNER_PROVIDER"); v != "" {
		c.Models.PlannerProvider = v
	}
	if v := os.Getenv("REFACTOR_DIFFUSION_PRESET"); v != "" {
		c.Models.DiffusionPreset = Preset(v)
	}
	if v := os.Getenv("REFACTOR_ARTIFACTS_DIR"); v != "" {
		c.Artifacts.Directory = v
	}
	if v := os.Getenv("REFACTOR_TYPE_CHECKER_PREFERENCE"); v != "" {
		c.Gate.CheckerPreference = v
	}
	if v := os.Getenv("REFACTOR_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Snapshot produces the redacted map embedded in the Ledger's "config"
// field (spec.md §6) - API keys are deliberately omitted.
func (c *Config) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"retry.max_retries":       c.Retry.MaxRetries,
		"denoise.steps":           c.Denoise.Steps,
		"denoise.schedule":        c.Denoise.Schedule,
		"denoise.guidance_scale":  c.Denoise.GuidanceScale,
		"denoise.fallback":        c.Denoise.FallbackEnabled,
		"gate.checker_preference": c.Gate.CheckerPreference,
		"models.planner_provider": c.Models.PlannerProvider,
		"models.diffusion_preset": string(c.Models.DiffusionPreset),
	}
}

// ParseDuration is a small helper, used by orchestrator.NewFromConfig, to
// turn the string durations carried by Config into time.Duration,
// returning fallback for an empty or unparsable value.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
