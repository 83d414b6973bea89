package orchestrator

import (
	"fmt"
	"time"

	"codenerd/internal/adapters/graph"
	"codenerd/internal/adapters/models"
	"codenerd/internal/config"
	"codenerd/internal/denoise"
	"codenerd/internal/gate"
	"codenerd/internal/syntax"
)

const (
	defaultTypeCheckTimeout    = 30 * time.Second
	defaultVersionProbeTimeout = 5 * time.Second
	defaultGenerationTimeout   = 150 * time.Second
	defaultGraphTimeout        = 10 * time.Second
)

// NewFromConfig assembles a ready Orchestrator from a loaded Config,
// translating its string durations and schedule name into the typed
// values C3/C4 expect. It owns construction of the syntax engine,
// safety gate, and (when Graph.BaseURL is set) the knowledge-graph
// client that supplies the Condition's surrounding-context excerpt;
// the caller still supplies the backbone client since that choice
// (Gemini vs. mock, which API key) is an outer concern the core
// itself never decides.
func NewFromConfig(cfg *config.Config, backbone models.BackboneClient) (*Orchestrator, *syntax.Engine, error) {
	schedule, err := scheduleKind(cfg.Denoise.Schedule)
	if err != nil {
		return nil, nil, err
	}

	engine := syntax.NewEngine()
	driver := denoise.NewDriver(backbone, 0)

	typeCheckTimeout := config.ParseDuration(cfg.Gate.TypeCheckTimeout, defaultTypeCheckTimeout)
	versionProbeTimeout := config.ParseDuration(cfg.Gate.VersionProbeTimeout, defaultVersionProbeTimeout)
	g := gate.New(engine, typeCheckTimeout, versionProbeTimeout)

	graphClient, err := newGraphClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := denoise.Options{
		Steps:             cfg.Denoise.Steps,
		Schedule:          schedule,
		BetaStart:         cfg.Denoise.BetaStart,
		BetaEnd:           cfg.Denoise.BetaEnd,
		GuidanceScale:     cfg.Denoise.GuidanceScale,
		FallbackEnabled:   cfg.Denoise.FallbackEnabled,
		FallbackMaxPasses: cfg.Denoise.FallbackMaxPasses,
		Timeout:           config.ParseDuration(cfg.Denoise.GenerationTimeout, defaultGenerationTimeout),
	}

	o := New(engine, driver, g, graphClient, cfg.Retry.MaxRetries, opts, cfg.Denoise.FallbackMaxPasses)
	return o, engine, nil
}

// newGraphClient builds the knowledge-graph client when the config names
// a base URL, and returns a nil client otherwise - spec.md §6's "core
// degrades gracefully when the graph is empty" extends to it never
// being configured at all.
func newGraphClient(cfg *config.Config) (*graph.Client, error) {
	if cfg.Graph.BaseURL == "" {
		return nil, nil
	}
	cachePath := cfg.Graph.CachePath
	if cachePath == "" {
		cachePath = ":memory:"
	}
	timeout := config.ParseDuration(cfg.Graph.Timeout, defaultGraphTimeout)
	return graph.New(cfg.Graph.BaseURL, cachePath, timeout)
}

func scheduleKind(name string) (denoise.ScheduleKind, error) {
	switch denoise.ScheduleKind(name) {
	case denoise.Linear:
		return denoise.Linear, nil
	case denoise.Cosine:
		return denoise.Cosine, nil
	case denoise.Sqrt:
		return denoise.Sqrt, nil
	case "":
		return denoise.Cosine, nil
	default:
		return "", fmt.Errorf("unknown denoise schedule %q", name)
	}
}
