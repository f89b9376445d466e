package service

import (
	"context"

	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/rs/zerolog"
)

// MiningHook adapts the miner/cache pair to the engine's learning hook: a
// successful stage-2 pass triggers a mining run whose output is staged for
// bulk approval.
type MiningHook struct {
	Miner SuggestionMiner
	Cache *rules.SuggestionCache
	Log   zerolog.Logger
}

// OnTransactionsLabeled mines fresh suggestions and stages them. The engine
// treats any error here as advisory.
func (h *MiningHook) OnTransactionsLabeled(ctx context.Context) error {
	suggestions, err := h.Miner.Mine(ctx)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		return nil
	}

	h.Cache.Replace(suggestions)
	h.Log.Info().Int("suggestions", len(suggestions)).Msg("staged mined rule suggestions for approval")
	return nil
}
