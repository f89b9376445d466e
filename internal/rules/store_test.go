package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/rs/zerolog"
)

// mockWarehouse is a hand-rolled in-memory rules.Warehouse.
type mockWarehouse struct {
	rulesByKey map[domain.MatchKey]*domain.Rule
	inserted   []domain.Rule

	updateMatched bool
	keys          []domain.MatchKey
	candidates    []domain.RuleSuggestion

	findErr   error
	insertErr error
	listErr   error
	aggErr    error
}

func newMockWarehouse() *mockWarehouse {
	return &mockWarehouse{rulesByKey: make(map[domain.MatchKey]*domain.Rule)}
}

func (m *mockWarehouse) FindRuleByKey(ctx context.Context, key domain.MatchKey) (*domain.Rule, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.rulesByKey[key], nil
}

func (m *mockWarehouse) InsertRule(ctx context.Context, rule domain.Rule) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, rule)
	m.rulesByKey[rule.Key()] = &rule
	return nil
}

func (m *mockWarehouse) UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (bool, error) {
	return m.updateMatched, nil
}

func (m *mockWarehouse) ListRuleKeys(ctx context.Context) ([]domain.MatchKey, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.keys, nil
}

func (m *mockWarehouse) AggregateLabeledTransactions(ctx context.Context, minSupport, limit int) ([]domain.RuleSuggestion, error) {
	if m.aggErr != nil {
		return nil, m.aggErr
	}
	return m.candidates, nil
}

func validInput() CreateRuleInput {
	return CreateRuleInput{
		PrimaryCategory:   "Expense",
		SecondaryCategory: "Coffee Shop",
		Identifier:        "STARBUCKS 1234",
		IdentifierType:    domain.IdentifierMerchantName,
		TransactionType:   domain.TransactionTypeDebit,
	}
}

func TestStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active rule with defaults", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		res, err := store.Create(ctx, validInput())
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if !res.Created || res.RuleID == "" {
			t.Fatalf("Create() = %+v, want created with rule ID", res)
		}

		if len(wh.inserted) != 1 {
			t.Fatalf("inserted %d rules, want 1", len(wh.inserted))
		}
		rule := wh.inserted[0]
		if rule.Status != domain.RuleStatusActive {
			t.Errorf("new rule status = %q, want active", rule.Status)
		}
		if rule.PersonaType != "general" {
			t.Errorf("persona = %q, want general", rule.PersonaType)
		}
		if rule.ConfidenceScore != 0.99 {
			t.Errorf("confidence = %v, want 0.99", rule.ConfidenceScore)
		}
	})

	t.Run("normalizes identifier before matching", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		in := validInput()
		in.Identifier = "  starbucks #1234 "
		if _, err := store.Create(ctx, in); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if wh.inserted[0].Identifier != "STARBUCKS 1234" {
			t.Errorf("stored identifier = %q, want normalized form", wh.inserted[0].Identifier)
		}
	})

	t.Run("identical rule is a no-op", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		first, err := store.Create(ctx, validInput())
		if err != nil {
			t.Fatalf("first Create() error: %v", err)
		}

		second, err := store.Create(ctx, validInput())
		if err != nil {
			t.Fatalf("second Create() error: %v", err)
		}
		if second.Created {
			t.Error("second Create() reported created, want no-op")
		}
		if second.RuleID != first.RuleID {
			t.Errorf("no-op returned rule ID %q, want existing %q", second.RuleID, first.RuleID)
		}
		if len(wh.inserted) != 1 {
			t.Errorf("inserted %d rules, want 1", len(wh.inserted))
		}
	})

	t.Run("same key with different assignment conflicts", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		if _, err := store.Create(ctx, validInput()); err != nil {
			t.Fatalf("Create() error: %v", err)
		}

		in := validInput()
		in.SecondaryCategory = "Food & Dining"
		_, err := store.Create(ctx, in)

		var conflict *domain.RuleConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected *domain.RuleConflictError, got %v", err)
		}
		if conflict.Existing.SecondaryCategory != "Coffee Shop" {
			t.Errorf("conflict carries wrong existing rule: %+v", conflict.Existing)
		}
	})

	t.Run("inactive rule with same key still conflicts", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		existing := domain.Rule{
			RuleID:            "r-old",
			Identifier:        "STARBUCKS 1234",
			IdentifierType:    domain.IdentifierMerchantName,
			TransactionType:   domain.TransactionTypeDebit,
			PrimaryCategory:   "Expense",
			SecondaryCategory: "Food & Dining",
			Status:            domain.RuleStatusInactive,
		}
		wh.rulesByKey[existing.Key()] = &existing

		_, err := store.Create(ctx, validInput())
		var conflict *domain.RuleConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected conflict against inactive rule, got %v", err)
		}
	})

	t.Run("input validation", func(t *testing.T) {
		badConfidence := 1.5
		tests := []struct {
			name    string
			mutate  func(*CreateRuleInput)
			wantErr error
		}{
			{"bad category", func(in *CreateRuleInput) { in.SecondaryCategory = "Lattes" }, domain.ErrInvalidCategory},
			{"zero transaction type", func(in *CreateRuleInput) { in.TransactionType = domain.TransactionTypeZero }, domain.ErrInvalidTransactionType},
			{"bad identifier type", func(in *CreateRuleInput) { in.IdentifierType = "merchant_raw" }, domain.ErrInvalidIdentifierType},
			{"confidence out of range", func(in *CreateRuleInput) { in.ConfidenceScore = &badConfidence }, domain.ErrInvalidConfidence},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				wh := newMockWarehouse()
				store := NewStore(wh, zerolog.Nop())

				in := validInput()
				tt.mutate(&in)

				_, err := store.Create(ctx, in)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
				}
				if len(wh.inserted) != 0 {
					t.Error("invalid input must not insert a rule")
				}
			})
		}
	})

	t.Run("identifier empty after normalization", func(t *testing.T) {
		wh := newMockWarehouse()
		store := NewStore(wh, zerolog.Nop())

		in := validInput()
		in.Identifier = "***"
		if _, err := store.Create(ctx, in); err == nil {
			t.Error("Create() with separator-only identifier should fail")
		}
	})
}

func TestStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown status", func(t *testing.T) {
		store := NewStore(newMockWarehouse(), zerolog.Nop())
		_, err := store.UpdateStatus(ctx, "r1", "paused")
		if !errors.Is(err, domain.ErrInvalidStatus) {
			t.Errorf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
		}
	})

	t.Run("reports unmatched rule", func(t *testing.T) {
		wh := newMockWarehouse()
		wh.updateMatched = false
		store := NewStore(wh, zerolog.Nop())

		matched, err := store.UpdateStatus(ctx, "missing", domain.RuleStatusInactive)
		if err != nil {
			t.Fatalf("UpdateStatus() error: %v", err)
		}
		if matched {
			t.Error("UpdateStatus() matched a missing rule")
		}
	})
}

func TestStoreBulkCreate(t *testing.T) {
	ctx := context.Background()

	suggestions := []domain.RuleSuggestion{
		{Identifier: "UBER", IdentifierType: domain.IdentifierMerchantName,
			PrimaryCategory: "Expense", SecondaryCategory: "Auto & Transport",
			TransactionType: domain.TransactionTypeDebit, Support: 5},
		{Identifier: "BAD ONE", IdentifierType: domain.IdentifierMerchantName,
			PrimaryCategory: "Expense", SecondaryCategory: "Not A Category",
			TransactionType: domain.TransactionTypeDebit, Support: 3},
	}

	wh := newMockWarehouse()
	store := NewStore(wh, zerolog.Nop())
	cache := NewSuggestionCache()
	cache.Replace(suggestions)

	results := store.BulkCreate(ctx, cache)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Created || results[0].Err != nil {
		t.Errorf("first entry should succeed: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("second entry should fail on taxonomy validation")
	}

	// Cache drains even with partial failure.
	if cache.Len() != 0 {
		t.Errorf("cache holds %d suggestions after bulk create, want 0", cache.Len())
	}
	if len(wh.inserted) != 1 {
		t.Errorf("inserted %d rules, want 1", len(wh.inserted))
	}
}
