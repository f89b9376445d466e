package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ResetConfirmation is the literal a caller must supply before the
// destructive reset runs.
const ResetConfirmation = "CONFIRM"

// ResetResult reports a derived-field reset.
type ResetResult struct {
	Message   string `json:"message"`
	Confirmed bool   `json:"confirmed"`
	RowsReset int64  `json:"rows_reset"`
}

// ResetAllTransactions nulls every pipeline-written field on every
// transaction. Without the exact confirmation literal it does nothing and
// explains what is needed.
func (s *Service) ResetAllTransactions(ctx context.Context, confirmation string) (ResetResult, error) {
	if confirmation != ResetConfirmation {
		return ResetResult{
			Message: fmt.Sprintf("Confirmation needed: resetting all processed transaction data is destructive. Pass %q to proceed.",
				ResetConfirmation),
		}, nil
	}

	rows, err := s.wh.ResetDerivedFields(ctx)
	if err != nil {
		return ResetResult{Confirmed: true}, err
	}

	s.log.Info().Int64("rows", rows).Msg("reset derived transaction fields")
	return ResetResult{
		Message:   fmt.Sprintf("All derived fields reset on %d transactions.", rows),
		Confirmed: true,
		RowsReset: rows,
	}, nil
}

// SummaryLine is one category aggregate of a summary.
type SummaryLine struct {
	PrimaryCategory   string `json:"primary_category"`
	SecondaryCategory string `json:"secondary_category"`
	TransactionCount  int64  `json:"transaction_count"`
	TotalAmount       string `json:"total_amount"`
}

// SummaryResult reports a category summary over a date range.
type SummaryResult struct {
	Message string        `json:"message"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Lines   []SummaryLine `json:"lines"`
}

// SummarizeByCategory aggregates categorized transactions per category over
// the date range.
func (s *Service) SummarizeByCategory(ctx context.Context, start, end time.Time) (SummaryResult, error) {
	rows, err := s.wh.SummarizeByCategory(ctx, start, end)
	if err != nil {
		return SummaryResult{}, err
	}

	lines := make([]SummaryLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, SummaryLine{
			PrimaryCategory:   r.PrimaryCategory,
			SecondaryCategory: r.SecondaryCategory,
			TransactionCount:  r.TransactionCount,
			TotalAmount:       formatAmount(r.TotalAmount),
		})
	}

	return SummaryResult{
		Message: fmt.Sprintf("Summary for %s to %s: %d category group(s).",
			start.Format("2006-01-02"), end.Format("2006-01-02"), len(lines)),
		Start: start.Format("2006-01-02"),
		End:   end.Format("2006-01-02"),
		Lines: lines,
	}, nil
}

// LabelingRunLine is one labeling run in a history listing.
type LabelingRunLine struct {
	LabelingRunID  string `json:"labeling_run_id"`
	StartedTS      string `json:"started_ts"`
	FinishedTS     string `json:"finished_ts,omitempty"`
	ModelName      string `json:"model_name"`
	BatchSize      int64  `json:"batch_size"`
	ValidatedCount int64  `json:"validated_count"`
	UpdatedCount   int64  `json:"updated_count"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// RunHistoryResult reports the recent labeling runs.
type RunHistoryResult struct {
	Message string            `json:"message"`
	Runs    []LabelingRunLine `json:"runs"`
}

// defaultRunHistoryLimit caps a listing when the caller passes no limit.
const defaultRunHistoryLimit = 20

// ListLabelingRuns returns the most recent labeling runs, newest first, so an
// operator can see what each model invocation validated and applied.
func (s *Service) ListLabelingRuns(ctx context.Context, limit int) (RunHistoryResult, error) {
	if limit <= 0 {
		limit = defaultRunHistoryLimit
	}

	rows, err := s.wh.ListLabelingRuns(ctx, limit)
	if err != nil {
		return RunHistoryResult{}, err
	}

	runs := make([]LabelingRunLine, 0, len(rows))
	for _, r := range rows {
		line := LabelingRunLine{
			LabelingRunID:  r.LabelingRunID,
			StartedTS:      r.StartedTS.Format(time.RFC3339),
			ModelName:      r.ModelName,
			BatchSize:      r.BatchSize,
			ValidatedCount: r.ValidatedCount.Int64,
			UpdatedCount:   r.UpdatedCount.Int64,
			Status:         r.Status,
			ErrorMessage:   r.ErrorMessage,
		}
		if r.FinishedTS.Valid {
			line.FinishedTS = r.FinishedTS.Timestamp.Format(time.RFC3339)
		}
		runs = append(runs, line)
	}

	return RunHistoryResult{
		Message: fmt.Sprintf("Found %d labeling run(s).", len(runs)),
		Runs:    runs,
	}, nil
}

func formatAmount(amount *big.Rat) string {
	if amount == nil {
		return "0.00"
	}
	return amount.FloatString(2)
}

// ParseDateRange resolves a relative timeframe like "last 3 months" to a
// concrete [start, end] pair ending now. Unrecognized input defaults to the
// last 90 days.
func ParseDateRange(dateRange string, now time.Time) (time.Time, time.Time) {
	normalized := strings.ToLower(dateRange)
	switch {
	case strings.Contains(normalized, "12 months"):
		return now.AddDate(0, 0, -365), now
	case strings.Contains(normalized, "6 months"):
		return now.AddDate(0, 0, -180), now
	default:
		return now.AddDate(0, 0, -90), now
	}
}
