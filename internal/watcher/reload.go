package watcher

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/dedup"
	"github.com/hyperjump/kyujin/internal/ranking"
)

// Reloadable accepts a new scorer and deduplicator.
type Reloadable interface {
	Reload(scorer *ranking.Scorer, dd *dedup.Deduplicator)
}

// BuildPipeline creates the scorer and deduplicator described by cfg.
func BuildPipeline(cfg *config.Config) (*ranking.Scorer, *dedup.Deduplicator, error) {
	scorer, err := ranking.NewScorer(cfg.Scoring.Weights, cfg.Scoring.SourcePriors)
	if err != nil {
		return nil, nil, fmt.Errorf("build scorer: %w", err)
	}
	dd, err := dedup.New(scorer.Priors(), cfg.Dedup.FuzzyThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("build deduplicator: %w", err)
	}
	return scorer, dd, nil
}

// ReloadConfig returns an onChange callback that reloads the config at the changed path and
// swaps the new pipeline into target. Invalid configs are logged and ignored, leaving the
// running pipeline in place.
func ReloadConfig(target Reloadable, logger *zap.Logger) func(path string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(path string) {
		cfg, err := config.Load(path)
		if err != nil {
			logger.Warn("Config reload rejected", zap.String("path", path), zap.Error(err))
			return
		}
		scorer, dd, err := BuildPipeline(cfg)
		if err != nil {
			logger.Warn("Config reload rejected", zap.String("path", path), zap.Error(err))
			return
		}
		target.Reload(scorer, dd)
		logger.Info("Config reloaded", zap.String("path", path))
	}
}
