package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/cancel"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	infra "github.com/dvloznov/txn-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/pipeline"
	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/rs/zerolog"
)

// svcWarehouse fakes the service-facing warehouse slice.
type svcWarehouse struct {
	textRows  int64
	typeRows  int64
	resetRows int64
	summary   []infra.CategorySummaryRow
	runs      []infra.LabelingRunRow

	textErr  error
	typeErr  error
	resetErr error

	resetCalls int
	runsLimit  int
}

func (w *svcWarehouse) StandardizeTextFields(ctx context.Context) (int64, error) {
	return w.textRows, w.textErr
}

func (w *svcWarehouse) CorrectTransactionTypes(ctx context.Context) (int64, error) {
	return w.typeRows, w.typeErr
}

func (w *svcWarehouse) ResetDerivedFields(ctx context.Context) (int64, error) {
	w.resetCalls++
	return w.resetRows, w.resetErr
}

func (w *svcWarehouse) SummarizeByCategory(ctx context.Context, start, end time.Time) ([]infra.CategorySummaryRow, error) {
	return w.summary, nil
}

func (w *svcWarehouse) ListLabelingRuns(ctx context.Context, limit int) ([]infra.LabelingRunRow, error) {
	w.runsLimit = limit
	return w.runs, nil
}

// ruleWarehouse fakes the rule store's warehouse slice.
type ruleWarehouse struct {
	inserted []domain.Rule
}

func (w *ruleWarehouse) FindRuleByKey(ctx context.Context, key domain.MatchKey) (*domain.Rule, error) {
	return nil, nil
}

func (w *ruleWarehouse) InsertRule(ctx context.Context, rule domain.Rule) error {
	w.inserted = append(w.inserted, rule)
	return nil
}

func (w *ruleWarehouse) UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (bool, error) {
	return true, nil
}

func (w *ruleWarehouse) ListRuleKeys(ctx context.Context) ([]domain.MatchKey, error) {
	return nil, nil
}

func (w *ruleWarehouse) AggregateLabeledTransactions(ctx context.Context, minSupport, limit int) ([]domain.RuleSuggestion, error) {
	return nil, nil
}

type fakeRunner struct {
	result pipeline.Result
	err    error
}

func (r *fakeRunner) Run(ctx context.Context) (pipeline.Result, error) {
	return r.result, r.err
}

type fakeMiner struct {
	suggestions []domain.RuleSuggestion
	err         error
}

func (m *fakeMiner) Mine(ctx context.Context) ([]domain.RuleSuggestion, error) {
	return m.suggestions, m.err
}

type fakeArchiver struct {
	payloads []string
	err      error
}

func (a *fakeArchiver) ArchiveRawResponse(ctx context.Context, payload string) (string, error) {
	a.payloads = append(a.payloads, payload)
	return "gs://archive/object.txt", a.err
}

func newTestService(wh *svcWarehouse, runner Runner, miner SuggestionMiner, archiver Archiver) (*Service, *rules.SuggestionCache, *cancel.Token) {
	log := zerolog.Nop()
	cache := rules.NewSuggestionCache()
	token := cancel.NewToken()
	store := rules.NewStore(&ruleWarehouse{}, log)
	return New(wh, runner, store, miner, cache, token, archiver, log), cache, token
}

func TestRunCleanup(t *testing.T) {
	ctx := context.Background()

	wh := &svcWarehouse{textRows: 120, typeRows: 45}
	svc, _, _ := newTestService(wh, &fakeRunner{}, &fakeMiner{}, nil)

	res, err := svc.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup() error: %v", err)
	}
	if res.TextRowsUpdated != 120 || res.TypeRowsUpdated != 45 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if !strings.Contains(res.Message, "120") || !strings.Contains(res.Message, "45") {
		t.Errorf("message missing counts: %q", res.Message)
	}
}

func TestRunCleanupPartialFailure(t *testing.T) {
	ctx := context.Background()

	wh := &svcWarehouse{textRows: 10, typeErr: errors.New("type update failed")}
	svc, _, _ := newTestService(wh, &fakeRunner{}, &fakeMiner{}, nil)

	res, err := svc.RunCleanup(ctx)
	if err == nil {
		t.Fatal("RunCleanup() should propagate the failure")
	}
	// Committed text-field count survives the type-correction failure.
	if res.TextRowsUpdated != 10 {
		t.Errorf("TextRowsUpdated = %d, want 10", res.TextRowsUpdated)
	}
}

func TestRunCategorizationMessages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  pipeline.Result
		want string
	}{
		{
			"cancelled",
			pipeline.Result{Cancelled: true, BatchesRun: 1, RuleBasedCount: 3, LLMUpdated: 2},
			"cancelled",
		},
		{
			"rules cleared everything",
			pipeline.Result{RuleBasedCount: 50, BacklogCleared: true},
			"no transactions required model labeling",
		},
		{
			"model produced nothing valid",
			pipeline.Result{RuleBasedCount: 5, BatchesRun: 1, SkippedCount: 10},
			"no valid category suggestions",
		},
		{
			"normal completion",
			pipeline.Result{RuleBasedCount: 5, BatchesRun: 2, ValidatedCount: 40, LLMUpdated: 38, SkippedCount: 2},
			"38 model-labeled rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(&svcWarehouse{}, &fakeRunner{result: tt.run}, &fakeMiner{}, nil)
			res, err := svc.RunCategorization(ctx)
			if err != nil {
				t.Fatalf("RunCategorization() error: %v", err)
			}
			if !strings.Contains(strings.ToLower(res.Message), strings.ToLower(tt.want)) {
				t.Errorf("message %q missing %q", res.Message, tt.want)
			}
		})
	}
}

func TestRunCategorizationArchivesUnparsableResponse(t *testing.T) {
	ctx := context.Background()

	vErr := &domain.ValidationError{RawResponse: "not json", Err: errors.New("unmarshal failed")}
	runner := &fakeRunner{result: pipeline.Result{RuleBasedCount: 9}, err: vErr}
	archiver := &fakeArchiver{}

	svc, _, _ := newTestService(&svcWarehouse{}, runner, &fakeMiner{}, archiver)

	res, err := svc.RunCategorization(ctx)
	if !errors.Is(err, vErr) {
		t.Fatalf("RunCategorization() error = %v, want the validation error", err)
	}
	if res.Run.RuleBasedCount != 9 {
		t.Errorf("stage-1 count lost: %+v", res.Run)
	}
	if len(archiver.payloads) != 1 || archiver.payloads[0] != "not json" {
		t.Errorf("archiver payloads = %+v, want the raw response", archiver.payloads)
	}
}

func TestRunCategorizationArchiveFailureDoesNotMask(t *testing.T) {
	ctx := context.Background()

	vErr := &domain.ValidationError{RawResponse: "junk", Err: errors.New("bad payload")}
	runner := &fakeRunner{err: vErr}
	archiver := &fakeArchiver{err: errors.New("bucket gone")}

	svc, _, _ := newTestService(&svcWarehouse{}, runner, &fakeMiner{}, archiver)

	_, err := svc.RunCategorization(ctx)
	if !errors.Is(err, vErr) {
		t.Errorf("archival failure masked the validation error: %v", err)
	}
}

func TestSuggestAndBulkCreateFlow(t *testing.T) {
	ctx := context.Background()

	miner := &fakeMiner{suggestions: []domain.RuleSuggestion{
		{Identifier: "UBER", IdentifierType: domain.IdentifierMerchantName,
			PrimaryCategory: "Expense", SecondaryCategory: "Auto & Transport",
			TransactionType: domain.TransactionTypeDebit, Support: 4},
	}}
	svc, cache, _ := newTestService(&svcWarehouse{}, &fakeRunner{}, miner, nil)

	sugRes, err := svc.SuggestNewRules(ctx)
	if err != nil {
		t.Fatalf("SuggestNewRules() error: %v", err)
	}
	if len(sugRes.Suggestions) != 1 || cache.Len() != 1 {
		t.Fatalf("suggestions not staged: %+v (cache %d)", sugRes, cache.Len())
	}

	bulkRes, err := svc.BulkCreateRules(ctx)
	if err != nil {
		t.Fatalf("BulkCreateRules() error: %v", err)
	}
	if bulkRes.CreatedCount != 1 {
		t.Errorf("CreatedCount = %d, want 1", bulkRes.CreatedCount)
	}

	// The cache was consumed; approving again reports nothing to do.
	second, err := svc.BulkCreateRules(ctx)
	if err != nil {
		t.Fatalf("second BulkCreateRules() error: %v", err)
	}
	if second.CreatedCount != 0 || !strings.Contains(second.Message, "No suggestions available") {
		t.Errorf("second approval should be empty: %+v", second)
	}
}

func TestSuggestNewRulesEmpty(t *testing.T) {
	ctx := context.Background()

	svc, cache, _ := newTestService(&svcWarehouse{}, &fakeRunner{}, &fakeMiner{}, nil)

	res, err := svc.SuggestNewRules(ctx)
	if err != nil {
		t.Fatalf("SuggestNewRules() error: %v", err)
	}
	if len(res.Suggestions) != 0 || cache.Len() != 0 {
		t.Errorf("expected no staged suggestions, got %+v", res)
	}
}

func TestCancellationRoundTrip(t *testing.T) {
	svc, _, token := newTestService(&svcWarehouse{}, &fakeRunner{}, &fakeMiner{}, nil)

	msg := svc.RequestCancellation()
	if msg == "" {
		t.Error("RequestCancellation() returned empty message")
	}
	if !token.IsRequested() {
		t.Error("token not requested after RequestCancellation")
	}

	svc.ResetCancellation()
	if token.IsRequested() {
		t.Error("token still requested after ResetCancellation")
	}
}

func TestSummarizeByCategory(t *testing.T) {
	ctx := context.Background()

	wh := &svcWarehouse{summary: []infra.CategorySummaryRow{
		{PrimaryCategory: "Expense", SecondaryCategory: "Groceries", TransactionCount: 12, TotalAmount: big.NewRat(-43550, 100)},
		{PrimaryCategory: "Income", SecondaryCategory: "Payroll", TransactionCount: 2, TotalAmount: nil},
	}}
	svc, _, _ := newTestService(wh, &fakeRunner{}, &fakeMiner{}, nil)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	res, err := svc.SummarizeByCategory(ctx, start, end)
	if err != nil {
		t.Fatalf("SummarizeByCategory() error: %v", err)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(res.Lines))
	}
	if res.Lines[0].TotalAmount != "-435.50" {
		t.Errorf("TotalAmount = %q, want -435.50", res.Lines[0].TotalAmount)
	}
	if res.Lines[1].TotalAmount != "0.00" {
		t.Errorf("nil amount formatted as %q, want 0.00", res.Lines[1].TotalAmount)
	}
	if res.Start != "2025-01-01" || res.End != "2025-03-31" {
		t.Errorf("unexpected range: %s to %s", res.Start, res.End)
	}
}
