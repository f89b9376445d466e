package rules

import (
	"context"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/rs/zerolog"
)

// MinerConfig tunes the suggestion mining pass.
type MinerConfig struct {
	// MinSupport keeps only groups backed by strictly more than this many
	// llm-powered transactions.
	MinSupport int
	// Limit caps how many suggestions one mining pass returns.
	Limit int
}

// DefaultMinerConfig matches the aggregation the rule tooling has always run.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{MinSupport: 2, Limit: 10}
}

// Miner proposes candidate rules from transactions the model labeled. It
// never mutates the rule store; accepted candidates are materialized later
// through Store.BulkCreate.
type Miner struct {
	wh  Warehouse
	cfg MinerConfig
	log zerolog.Logger
}

// NewMiner creates a miner with the given config.
func NewMiner(wh Warehouse, cfg MinerConfig, log zerolog.Logger) *Miner {
	if cfg.MinSupport <= 0 {
		cfg.MinSupport = DefaultMinerConfig().MinSupport
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultMinerConfig().Limit
	}
	return &Miner{wh: wh, cfg: cfg, log: log}
}

// Mine aggregates llm-powered transactions into candidate rules, dropping
// every candidate whose match key already has a rule, active or inactive.
// Proposing those again would only ever produce duplicates or conflicts.
// Results stay ordered most-supported first.
func (m *Miner) Mine(ctx context.Context) ([]domain.RuleSuggestion, error) {
	candidates, err := m.wh.AggregateLabeledTransactions(ctx, m.cfg.MinSupport, m.cfg.Limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	existingKeys, err := m.wh.ListRuleKeys(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[domain.MatchKey]bool, len(existingKeys))
	for _, key := range existingKeys {
		known[key] = true
	}

	suggestions := candidates[:0]
	for _, c := range candidates {
		if known[c.Key()] {
			continue
		}
		suggestions = append(suggestions, c)
	}

	m.log.Info().
		Int("candidates", len(candidates)).
		Int("suggestions", len(suggestions)).
		Msg("mined rule suggestions")

	return suggestions, nil
}
