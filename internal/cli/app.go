package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/cache"
	"github.com/ppiankov/curator/internal/classify"
	"github.com/ppiankov/curator/internal/dedupe"
	"github.com/ppiankov/curator/internal/extract"
	"github.com/ppiankov/curator/internal/logging"
	"github.com/ppiankov/curator/internal/metrics"
	"github.com/ppiankov/curator/internal/model"
	"github.com/ppiankov/curator/internal/pipeline"
	"github.com/ppiankov/curator/internal/registry"
	"github.com/ppiankov/curator/internal/score"
)

// app is the wired set of components one command works with
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	registry *registry.Registry
	pipeline *pipeline.Pipeline // nil unless built with withPipeline
}

type appMode int

const (
	registryOnly appMode = iota
	withPipeline
)

// newApp loads configuration and opens the registry. withPipeline also
// builds the scorer, classifier, deduplicator and extractor; every
// configuration check runs before any document is touched.
func (o *options) newApp(mode appMode) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Output.Verbose, cfg.Output.JSONLogs)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	reg, err := registry.Open(cfg.Registry, registry.WithMetrics(m), registry.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open registry: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, metrics: m, registry: reg}

	if mode == withPipeline {
		if a.pipeline, err = buildPipeline(cfg, reg, m, logger); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// buildPipeline assembles every stage around an open registry
func buildPipeline(cfg *model.Config, reg *registry.Registry, m *metrics.Collector, logger *zap.Logger) (*pipeline.Pipeline, error) {
	scorer, err := score.NewScorer(cfg.Rubric, nil)
	if err != nil {
		return nil, fmt.Errorf("build scorer: %w", err)
	}
	thresholds, err := classify.NewThresholds(cfg.Thresholds, scorer.MaxScore())
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	heuristics, err := classify.NewHeuristics(cfg.Taxonomy, scorer.Criteria())
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	dd, err := dedupe.New(cfg.Dedupe)
	if err != nil {
		return nil, fmt.Errorf("build deduplicator: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
		pipeline.WithStrict(cfg.Pipeline.Strict),
	}
	if cfg.Extractor.Endpoint != "" {
		client, err := extract.NewClient(cfg.Extractor,
			extract.WithCache(cache.FromConfig(cfg.Cache)),
			extract.WithMetrics(m),
			extract.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build extractor: %w", err)
		}
		opts = append(opts, pipeline.WithExtractor(client))
	}

	return pipeline.New(scorer, classify.New(thresholds, heuristics), dd, reg, opts...), nil
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	if a.registry == nil {
		return nil
	}
	return a.registry.Close()
}
