// Package service exposes the caller-facing operations of the
// categorization pipeline. Each operation returns a human-readable message
// plus structured counts so the (external) conversational layer can report
// outcomes without re-deriving them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/cancel"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	infra "github.com/dvloznov/txn-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/pipeline"
	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/rs/zerolog"
)

// Warehouse is the slice of the warehouse accessor the service calls
// directly (the engine and rule store hold their own slices).
type Warehouse interface {
	StandardizeTextFields(ctx context.Context) (int64, error)
	CorrectTransactionTypes(ctx context.Context) (int64, error)
	ResetDerivedFields(ctx context.Context) (int64, error)
	SummarizeByCategory(ctx context.Context, start, end time.Time) ([]infra.CategorySummaryRow, error)
	ListLabelingRuns(ctx context.Context, limit int) ([]infra.LabelingRunRow, error)
}

// Runner runs one categorization pass.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// SuggestionMiner mines candidate rules from model-labeled transactions.
type SuggestionMiner interface {
	Mine(ctx context.Context) ([]domain.RuleSuggestion, error)
}

// Archiver persists an unparsable labeling payload somewhere diagnosable.
type Archiver interface {
	ArchiveRawResponse(ctx context.Context, payload string) (string, error)
}

// Service wires the pipeline components behind the caller-facing surface.
// The suggestion cache and cancellation token are explicit state owned by
// the enclosing process, not package globals.
type Service struct {
	wh      Warehouse
	engine  Runner
	store   *rules.Store
	miner   SuggestionMiner
	cache   *rules.SuggestionCache
	token   *cancel.Token
	archive Archiver
	log     zerolog.Logger
}

// New assembles a service. archive may be nil when no archive bucket is
// configured.
func New(wh Warehouse, engine Runner, store *rules.Store, miner SuggestionMiner,
	cache *rules.SuggestionCache, token *cancel.Token, archive Archiver, log zerolog.Logger) *Service {
	return &Service{
		wh:      wh,
		engine:  engine,
		store:   store,
		miner:   miner,
		cache:   cache,
		token:   token,
		archive: archive,
		log:     log,
	}
}

// CleanupResult reports one cleanup pass.
type CleanupResult struct {
	Message         string `json:"message"`
	TextRowsUpdated int64  `json:"text_rows_updated"`
	TypeRowsUpdated int64  `json:"type_rows_updated"`
}

// RunCleanup standardizes cleaned text fields and corrects transaction
// types. Safe to re-run: a second pass finds nothing left to change.
func (s *Service) RunCleanup(ctx context.Context) (CleanupResult, error) {
	textRows, err := s.wh.StandardizeTextFields(ctx)
	if err != nil {
		return CleanupResult{}, err
	}

	typeRows, err := s.wh.CorrectTransactionTypes(ctx)
	if err != nil {
		return CleanupResult{TextRowsUpdated: textRows}, err
	}

	return CleanupResult{
		Message: fmt.Sprintf("Cleanup successful: standardized text fields on %d rows and corrected transaction types on %d rows.",
			textRows, typeRows),
		TextRowsUpdated: textRows,
		TypeRowsUpdated: typeRows,
	}, nil
}

// CategorizationResult reports one categorization run.
type CategorizationResult struct {
	Message string          `json:"message"`
	Run     pipeline.Result `json:"run"`
}

// RunCategorization executes the two-stage categorization pipeline. On a
// stage-2 failure the returned result still carries the committed stage-1
// counts, and the error identifies the failed stage.
func (s *Service) RunCategorization(ctx context.Context) (CategorizationResult, error) {
	run, err := s.engine.Run(ctx)
	if err != nil {
		// An unparsable labeling payload is archived for diagnosis before the
		// failure is surfaced. Best-effort; archival problems never mask the
		// validation error.
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) && s.archive != nil {
			if uri, archErr := s.archive.ArchiveRawResponse(ctx, vErr.RawResponse); archErr != nil {
				s.log.Warn().Err(archErr).Msg("failed to archive raw labeling response")
			} else {
				s.log.Info().Str("uri", uri).Msg("archived raw labeling response")
			}
		}
		return CategorizationResult{Run: run}, err
	}

	return CategorizationResult{Message: categorizationMessage(run), Run: run}, nil
}

func categorizationMessage(run pipeline.Result) string {
	switch {
	case run.Cancelled:
		return fmt.Sprintf("Categorization cancelled after %d batch(es): %d rule-based, %d model-labeled rows committed.",
			run.BatchesRun, run.RuleBasedCount, run.LLMUpdated)
	case run.BatchesRun == 0 && run.BacklogCleared:
		return fmt.Sprintf("Categorization complete: rules labeled %d rows; no transactions required model labeling.",
			run.RuleBasedCount)
	case run.ValidatedCount == 0 && run.BatchesRun > 0:
		return fmt.Sprintf("Categorization ran, but the model produced no valid category suggestions (%d rule-based rows committed).",
			run.RuleBasedCount)
	default:
		return fmt.Sprintf("Categorization complete: %d rule-based rows, %d model-labeled rows across %d batch(es) (%d records validated, %d skipped).",
			run.RuleBasedCount, run.LLMUpdated, run.BatchesRun, run.ValidatedCount, run.SkippedCount)
	}
}

// RuleResult reports a rule creation.
type RuleResult struct {
	Message string `json:"message"`
	RuleID  string `json:"rule_id"`
	Created bool   `json:"created"`
}

// CreateRule validates and creates a categorization rule.
func (s *Service) CreateRule(ctx context.Context, in rules.CreateRuleInput) (RuleResult, error) {
	res, err := s.store.Create(ctx, in)
	if err != nil {
		return RuleResult{}, err
	}

	if !res.Created {
		return RuleResult{
			Message: fmt.Sprintf("An identical rule already exists (%s); nothing to do.", res.RuleID),
			RuleID:  res.RuleID,
		}, nil
	}
	return RuleResult{
		Message: fmt.Sprintf("Created rule %s for %q.", res.RuleID, in.Identifier),
		RuleID:  res.RuleID,
		Created: true,
	}, nil
}

// StatusResult reports a rule status update.
type StatusResult struct {
	Message string `json:"message"`
	Updated bool   `json:"updated"`
}

// UpdateRuleStatus toggles a rule between active and inactive.
func (s *Service) UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (StatusResult, error) {
	updated, err := s.store.UpdateStatus(ctx, ruleID, status)
	if err != nil {
		return StatusResult{}, err
	}
	if !updated {
		return StatusResult{Message: fmt.Sprintf("No rule found with id %s.", ruleID)}, nil
	}
	return StatusResult{
		Message: fmt.Sprintf("Updated rule %s to %q.", ruleID, status),
		Updated: true,
	}, nil
}

// SuggestionsResult reports a mining pass.
type SuggestionsResult struct {
	Message     string                  `json:"message"`
	Suggestions []domain.RuleSuggestion `json:"suggestions"`
}

// SuggestNewRules mines candidate rules from model-labeled transactions and
// stages them in the suggestion cache for bulk approval, replacing any
// previous batch.
func (s *Service) SuggestNewRules(ctx context.Context) (SuggestionsResult, error) {
	suggestions, err := s.miner.Mine(ctx)
	if err != nil {
		return SuggestionsResult{}, err
	}
	if len(suggestions) == 0 {
		return SuggestionsResult{Message: "No new rule suggestions found at this time."}, nil
	}

	s.cache.Replace(suggestions)
	return SuggestionsResult{
		Message:     fmt.Sprintf("Found %d rule suggestion(s) awaiting approval.", len(suggestions)),
		Suggestions: suggestions,
	}, nil
}

// BulkResult reports a bulk approval.
type BulkResult struct {
	Message      string                  `json:"message"`
	CreatedCount int                     `json:"created_count"`
	Results      []rules.BulkEntryResult `json:"results"`
}

// BulkCreateRules materializes every cached suggestion as a rule. The cache
// is cleared even on partial failure; a second call reports no suggestions.
func (s *Service) BulkCreateRules(ctx context.Context) (BulkResult, error) {
	if s.cache.Len() == 0 {
		return BulkResult{Message: "No suggestions available. Run suggest first."}, nil
	}

	results := s.store.BulkCreate(ctx, s.cache)

	created := 0
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			s.log.Warn().Err(r.Err).Str("identifier", r.Suggestion.Identifier).Msg("bulk rule creation entry failed")
			continue
		}
		if r.Created {
			created++
		}
	}

	msg := fmt.Sprintf("Approved suggestions: created %d rule(s)", created)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	msg += "."

	return BulkResult{Message: msg, CreatedCount: created, Results: results}, nil
}

// RequestCancellation flags the current long-running operation to stop
// between units of work. Already-committed updates stay committed.
func (s *Service) RequestCancellation() string {
	s.token.Request()
	return "Cancellation requested. The current process will stop shortly."
}

// ResetCancellation clears the flag so the next run can proceed.
func (s *Service) ResetCancellation() {
	s.token.Reset()
}
