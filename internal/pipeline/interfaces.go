package pipeline

import (
	"context"

	"github.com/dvloznov/txn-categorizer/internal/domain"
)

// Warehouse is the slice of the warehouse accessor the engine needs. The
// conditional "only if still NULL" update semantics live behind this
// interface, in the SQL, never client-side.
type Warehouse interface {
	ApplyActiveRules(ctx context.Context) (int64, error)
	FetchUncategorized(ctx context.Context, limit int) ([]domain.UncategorizedTransaction, error)
	MergeCategoryLabels(ctx context.Context, labels []domain.CategoryLabel) (int64, error)

	StartLabelingRun(ctx context.Context, modelName string, batchSize int) (string, error)
	MarkLabelingRunSucceeded(ctx context.Context, runID string, validated, updated int64) error
	MarkLabelingRunFailed(ctx context.Context, runID string, runErr error, rawResponse string)
}

// Labeler is the external model that labels a batch of transactions. It
// returns the raw response text; parsing and validation stay in the engine
// so the payload is available when validation fails.
type Labeler interface {
	LabelBatch(ctx context.Context, txns []domain.UncategorizedTransaction) (string, error)
}

// LearningHook is invoked after a successful stage-2 pass that updated at
// least one transaction. Hook failures must never fail the categorization
// result that was already achieved.
type LearningHook interface {
	OnTransactionsLabeled(ctx context.Context) error
}
