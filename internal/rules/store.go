// Package rules owns the rule store accessor and the suggestion mining loop
// that proposes new deterministic rules from model-labeled transactions.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/cleanup"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/dvloznov/txn-categorizer/internal/taxonomy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Warehouse is the slice of the warehouse accessor the rule store needs.
type Warehouse interface {
	FindRuleByKey(ctx context.Context, key domain.MatchKey) (*domain.Rule, error)
	InsertRule(ctx context.Context, rule domain.Rule) error
	UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (bool, error)
	ListRuleKeys(ctx context.Context) ([]domain.MatchKey, error)
	AggregateLabeledTransactions(ctx context.Context, minSupport, limit int) ([]domain.RuleSuggestion, error)
}

// Store validates and persists categorization rules.
type Store struct {
	wh  Warehouse
	log zerolog.Logger
}

// NewStore creates a rule store over the given warehouse accessor.
func NewStore(wh Warehouse, log zerolog.Logger) *Store {
	return &Store{wh: wh, log: log}
}

// CreateRuleInput is the caller-supplied shape of a new rule.
type CreateRuleInput struct {
	PrimaryCategory   string
	SecondaryCategory string
	Identifier        string
	IdentifierType    domain.IdentifierType
	TransactionType   domain.TransactionType

	// Optional; default to "general" and 0.99 as the original rule tooling did.
	PersonaType     string
	ConfidenceScore *float64
}

// CreateResult reports the outcome of a Create call.
type CreateResult struct {
	RuleID string
	// Created is false when an identical rule already existed and the call
	// short-circuited as a no-op.
	Created bool
}

const defaultConfidence = 0.99

// Create validates the input, checks the match key, and inserts a new active
// rule. An existing rule with the same key and the same assignment makes the
// call a no-op success; one with a different assignment is a conflict.
//
// The check-then-insert is not atomic against a concurrent writer creating
// the same key in between; callers needing a strict guarantee must serialize
// rule creation externally.
func (s *Store) Create(ctx context.Context, in CreateRuleInput) (CreateResult, error) {
	if err := taxonomy.Validate(in.PrimaryCategory, in.SecondaryCategory); err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidCategory, err)
	}
	if in.TransactionType != domain.TransactionTypeDebit && in.TransactionType != domain.TransactionTypeCredit {
		return CreateResult{}, domain.ErrInvalidTransactionType
	}
	if in.IdentifierType != domain.IdentifierMerchantName && in.IdentifierType != domain.IdentifierDescription {
		return CreateResult{}, domain.ErrInvalidIdentifierType
	}

	confidence := defaultConfidence
	if in.ConfidenceScore != nil {
		confidence = *in.ConfidenceScore
	}
	if confidence < 0 || confidence > 1 {
		return CreateResult{}, domain.ErrInvalidConfidence
	}

	persona := in.PersonaType
	if persona == "" {
		persona = "general"
	}

	// Rules join against cleaned fields, so the identifier must be in
	// cleaned form too or the rule would never match anything.
	identifier := cleanup.NormalizeText(in.Identifier)
	if identifier == "" {
		return CreateResult{}, fmt.Errorf("identifier is empty after normalization")
	}

	key := domain.MatchKey{
		Identifier:      identifier,
		IdentifierType:  in.IdentifierType,
		TransactionType: in.TransactionType,
	}

	existing, err := s.wh.FindRuleByKey(ctx, key)
	if err != nil {
		return CreateResult{}, err
	}
	if existing != nil {
		if existing.PrimaryCategory == in.PrimaryCategory && existing.SecondaryCategory == in.SecondaryCategory {
			s.log.Info().
				Str("rule_id", existing.RuleID).
				Str("identifier", identifier).
				Msg("identical rule already exists; create is a no-op")
			return CreateResult{RuleID: existing.RuleID, Created: false}, nil
		}
		return CreateResult{}, &domain.RuleConflictError{Existing: *existing}
	}

	rule := domain.Rule{
		RuleID:            uuid.NewString(),
		Identifier:        identifier,
		IdentifierType:    in.IdentifierType,
		TransactionType:   in.TransactionType,
		PrimaryCategory:   in.PrimaryCategory,
		SecondaryCategory: in.SecondaryCategory,
		PersonaType:       persona,
		ConfidenceScore:   confidence,
		Status:            domain.RuleStatusActive,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.wh.InsertRule(ctx, rule); err != nil {
		return CreateResult{}, err
	}

	s.log.Info().
		Str("rule_id", rule.RuleID).
		Str("identifier", identifier).
		Str("category", rule.PrimaryCategory+"/"+rule.SecondaryCategory).
		Msg("created rule")

	return CreateResult{RuleID: rule.RuleID, Created: true}, nil
}

// UpdateStatus toggles a rule between active and inactive. Returns false
// when no rule with the given id exists.
func (s *Store) UpdateStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (bool, error) {
	if status != domain.RuleStatusActive && status != domain.RuleStatusInactive {
		return false, domain.ErrInvalidStatus
	}

	matched, err := s.wh.UpdateRuleStatus(ctx, ruleID, status)
	if err != nil {
		return false, err
	}
	if !matched {
		s.log.Warn().Str("rule_id", ruleID).Msg("rule status update matched no rule")
	}
	return matched, nil
}

// BulkEntryResult is the per-suggestion outcome of a bulk approval.
type BulkEntryResult struct {
	Suggestion domain.RuleSuggestion
	RuleID     string
	Created    bool
	Err        error
}

// BulkCreate consumes the entire suggestion cache, creating a rule per
// entry. The cache is cleared unconditionally, even on partial failure, so a
// stale batch can never be re-applied.
func (s *Store) BulkCreate(ctx context.Context, cache *SuggestionCache) []BulkEntryResult {
	suggestions := cache.Drain()

	results := make([]BulkEntryResult, 0, len(suggestions))
	for _, sg := range suggestions {
		res, err := s.Create(ctx, CreateRuleInput{
			PrimaryCategory:   sg.PrimaryCategory,
			SecondaryCategory: sg.SecondaryCategory,
			Identifier:        sg.Identifier,
			IdentifierType:    sg.IdentifierType,
			TransactionType:   sg.TransactionType,
		})
		results = append(results, BulkEntryResult{
			Suggestion: sg,
			RuleID:     res.RuleID,
			Created:    res.Created,
			Err:        err,
		})
	}

	return results
}
