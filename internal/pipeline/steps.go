package pipeline

import (
	"context"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/dvloznov/txn-categorizer/internal/labeling"
	"github.com/dvloznov/txn-categorizer/internal/logger"
	"github.com/rs/zerolog"
)

// Step is a single stage-2 step operating on the shared batch state.
type Step interface {
	Execute(ctx context.Context, state *BatchState) error
}

// BatchState holds the shared state across the steps of one stage-2 batch.
type BatchState struct {
	Txns          []domain.UncategorizedTransaction
	LabelingRunID string
	RawResponse   string
	Labels        []domain.CategoryLabel
	Skipped       int
	Updated       int64

	// Done is set when no uncategorized transactions remained; the batch
	// terminates successfully without touching the model.
	Done bool
}

// fetchBatchStep selects the next batch of uncategorized transactions.
type fetchBatchStep struct {
	wh    Warehouse
	limit int
}

func (s *fetchBatchStep) Execute(ctx context.Context, state *BatchState) error {
	txns, err := s.wh.FetchUncategorized(ctx, s.limit)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		state.Done = true
		return nil
	}
	state.Txns = txns
	return nil
}

// startRunStep opens the labeling_runs bookkeeping row for this batch.
type startRunStep struct {
	wh        Warehouse
	modelName string
}

func (s *startRunStep) Execute(ctx context.Context, state *BatchState) error {
	runID, err := s.wh.StartLabelingRun(ctx, s.modelName, len(state.Txns))
	if err != nil {
		return err
	}
	state.LabelingRunID = runID
	return nil
}

// labelStep sends the batch to the model.
type labelStep struct {
	wh      Warehouse
	labeler Labeler
}

func (s *labelStep) Execute(ctx context.Context, state *BatchState) error {
	raw, err := s.labeler.LabelBatch(ctx, state.Txns)
	if err != nil {
		s.wh.MarkLabelingRunFailed(ctx, state.LabelingRunID, err, "")
		return err
	}
	state.RawResponse = raw
	return nil
}

// validateStep parses the raw response and drops malformed records. An
// unparsable payload fails the batch before any row is touched.
type validateStep struct {
	wh  Warehouse
	log zerolog.Logger
}

func (s *validateStep) Execute(ctx context.Context, state *BatchState) error {
	labels, skipped, err := labeling.DecodeLabels(logger.ForRun(s.log, state.LabelingRunID), state.RawResponse)
	if err != nil {
		s.wh.MarkLabelingRunFailed(ctx, state.LabelingRunID, err, state.RawResponse)
		return err
	}
	state.Labels = labels
	state.Skipped = skipped
	return nil
}

// mergeStep applies the validated labels through the staging merge.
type mergeStep struct {
	wh Warehouse
}

func (s *mergeStep) Execute(ctx context.Context, state *BatchState) error {
	if len(state.Labels) == 0 {
		return nil
	}
	updated, err := s.wh.MergeCategoryLabels(ctx, state.Labels)
	if err != nil {
		s.wh.MarkLabelingRunFailed(ctx, state.LabelingRunID, err, state.RawResponse)
		return err
	}
	state.Updated = updated
	return nil
}

// finishRunStep closes the bookkeeping row. Best-effort: a bookkeeping
// failure must not discard an already-applied merge.
type finishRunStep struct {
	wh  Warehouse
	log zerolog.Logger
}

func (s *finishRunStep) Execute(ctx context.Context, state *BatchState) error {
	err := s.wh.MarkLabelingRunSucceeded(ctx, state.LabelingRunID, int64(len(state.Labels)), state.Updated)
	if err != nil {
		log := logger.ForRun(s.log, state.LabelingRunID)
		log.Warn().Err(err).
			Msg("failed to close labeling run; merge result stands")
	}
	return nil
}
