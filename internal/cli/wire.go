package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cayyus/engineerverse/internal/config"
	"github.com/cayyus/engineerverse/internal/engine"
	"github.com/cayyus/engineerverse/internal/metrics"
	"github.com/cayyus/engineerverse/internal/taxonomy"
)

// curationStack is the in-process engine built from configuration.
type curationStack struct {
	sampler *engine.Sampler
	cache   *engine.BatchCache
}

// buildCuration creates the sampler and batch cache. recorder, logger and m
// may be nil; now overrides the cache clock when non-nil.
func buildCuration(cfg *config.Config, recorder engine.BatchRecorder, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) (*curationStack, error) {
	terms, err := taxonomy.InitialWeights(cfg.Taxonomy, nil)
	if err != nil {
		return nil, fmt.Errorf("initial weights: %w", err)
	}

	sampler := engine.NewSampler(terms,
		engine.WithFactors(cfg.Curation.DecayFactor, cfg.Curation.RecoveryFactor))

	opts := []engine.BatchCacheOption{
		engine.WithBatchSize(cfg.Curation.BatchSize),
		engine.WithCacheMetrics(m),
	}
	if recorder != nil {
		opts = append(opts, engine.WithRecorder(recorder))
	}
	if logger != nil {
		opts = append(opts, engine.WithCacheLogger(logger))
	}
	if now != nil {
		opts = append(opts, engine.WithClock(now))
	}

	return &curationStack{
		sampler: sampler,
		cache:   engine.NewBatchCache(sampler, cfg.Curation.CacheDuration(), opts...),
	}, nil
}

// newCurator wires a curator over stack using client for search.
func newCurator(cfg *config.Config, stack *curationStack, client engine.SearchClient, logger *slog.Logger, m *metrics.Metrics) *engine.Curator {
	opts := []engine.CuratorOption{
		engine.WithMetrics(m),
		engine.WithDefaultLimit(cfg.Curation.DefaultLimit),
		engine.WithSearchHardCap(cfg.Curation.SearchHardCap),
		engine.WithSearchTimeout(cfg.Curation.SearchTimeout()),
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	return engine.NewCurator(stack.cache, client, opts...)
}
