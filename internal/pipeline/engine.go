// Package pipeline orchestrates the two-stage categorization engine:
// a deterministic rule pass over the warehouse, then a model-assisted pass
// over whatever the rules could not label, with the learning hook feeding
// newly labeled transactions back into rule mining.
package pipeline

import (
	"context"

	"github.com/dvloznov/txn-categorizer/internal/cancel"
	"github.com/rs/zerolog"
)

// Config tunes one categorization run.
type Config struct {
	// BatchSize caps how many uncategorized transactions go to the model in
	// one round trip.
	BatchSize int
	// MaxBatches caps how many stage-2 batches one run may process. The
	// cancellation token is consulted between batches.
	MaxBatches int
	// ModelName is recorded on labeling_runs rows.
	ModelName string
}

// DefaultConfig returns the single-batch configuration the engine has
// always run with.
func DefaultConfig() Config {
	return Config{BatchSize: 100, MaxBatches: 1}
}

// Result is the structured outcome of one categorization run. On error the
// counts still reflect everything committed before the failing stage.
type Result struct {
	RuleBasedCount int64

	BatchesRun     int
	ValidatedCount int
	SkippedCount   int
	LLMUpdated     int64

	// BacklogCleared is set when a fetch found no uncategorized rows left.
	BacklogCleared bool
	// Cancelled is set when the run stopped between batches on request.
	Cancelled bool
}

// Engine runs the categorization pipeline. One logical invocation per run;
// the only concurrency-safety mechanism across overlapping runs is the
// warehouse-side "only if still NULL" merge predicate.
type Engine struct {
	wh      Warehouse
	labeler Labeler
	hook    LearningHook
	token   *cancel.Token
	cfg     Config
	log     zerolog.Logger
}

// NewEngine assembles an engine. hook and token may be nil.
func NewEngine(wh Warehouse, labeler Labeler, hook LearningHook, token *cancel.Token, cfg Config, log zerolog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultConfig().MaxBatches
	}
	return &Engine{wh: wh, labeler: labeler, hook: hook, token: token, cfg: cfg, log: log}
}

// Run executes stage 1 once, then up to MaxBatches stage-2 batches. Stage-2
// failures preserve the stage-1 result; the returned Result always carries
// the counts committed so far.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	var res Result

	e.log.Info().Msg("stage 1: applying rule-based categorization")
	applied, err := e.wh.ApplyActiveRules(ctx)
	if err != nil {
		return res, err
	}
	res.RuleBasedCount = applied
	e.log.Info().Int64("rows", applied).Msg("rule-based categorization applied")

	for i := 0; i < e.cfg.MaxBatches; i++ {
		if e.token != nil && e.token.IsRequested() {
			e.log.Info().Int("batches_run", res.BatchesRun).Msg("cancellation requested; stopping between batches")
			res.Cancelled = true
			break
		}

		state := &BatchState{}
		if err := e.runBatch(ctx, state); err != nil {
			return res, err
		}
		if state.Done {
			res.BacklogCleared = true
			break
		}

		res.BatchesRun++
		res.ValidatedCount += len(state.Labels)
		res.SkippedCount += state.Skipped
		res.LLMUpdated += state.Updated

		e.log.Info().
			Int("batch", res.BatchesRun).
			Int("validated", len(state.Labels)).
			Int("skipped", state.Skipped).
			Int64("updated", state.Updated).
			Msg("stage 2 batch complete")

		if state.Updated == 0 {
			// The unlabeled rows are still NULL, so the next fetch would send
			// the identical batch back to the model. Rerunning is the
			// caller's decision, never automatic.
			e.log.Warn().Int("batch", res.BatchesRun).Msg("stage 2 batch made no progress; stopping")
			break
		}
	}

	if res.LLMUpdated > 0 && e.hook != nil {
		// Mining failures never roll back or fail the categorization result.
		if err := e.hook.OnTransactionsLabeled(ctx); err != nil {
			e.log.Warn().Err(err).Msg("learning hook failed; categorization result stands")
		}
	}

	return res, nil
}

func (e *Engine) runBatch(ctx context.Context, state *BatchState) error {
	steps := []Step{
		&fetchBatchStep{wh: e.wh, limit: e.cfg.BatchSize},
		&startRunStep{wh: e.wh, modelName: e.cfg.ModelName},
		&labelStep{wh: e.wh, labeler: e.labeler},
		&validateStep{wh: e.wh, log: e.log},
		&mergeStep{wh: e.wh},
		&finishRunStep{wh: e.wh, log: e.log},
	}

	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			return err
		}
		if state.Done {
			return nil
		}
	}
	return nil
}
