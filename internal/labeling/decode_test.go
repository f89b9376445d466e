package labeling

import (
	"errors"
	"testing"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/rs/zerolog"
)

func TestDecodeLabels(t *testing.T) {
	log := zerolog.Nop()

	t.Run("plain JSON array", func(t *testing.T) {
		raw := `[
			{"transaction_id": "t1", "primary_category": "Expense", "secondary_category": "Groceries"},
			{"transaction_id": "t2", "primary_category": "Income", "secondary_category": "Payroll"}
		]`

		labels, skipped, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if skipped != 0 {
			t.Errorf("skipped = %d, want 0", skipped)
		}
		if len(labels) != 2 {
			t.Fatalf("got %d labels, want 2", len(labels))
		}
		if labels[0].TransactionID != "t1" || labels[0].PrimaryCategory != "Expense" {
			t.Errorf("unexpected first label: %+v", labels[0])
		}
	})

	t.Run("markdown fenced response", func(t *testing.T) {
		raw := "```json\n[{\"transaction_id\": \"t1\", \"primary_category\": \"Expense\", \"secondary_category\": \"Coffee Shop\"}]\n```"

		labels, _, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if len(labels) != 1 || labels[0].SecondaryCategory != "Coffee Shop" {
			t.Errorf("unexpected labels: %+v", labels)
		}
	})

	t.Run("prose around the array", func(t *testing.T) {
		raw := `Here are the labels you asked for:
[{"transaction_id": "t9", "primary_category": "Transfer", "secondary_category": "Internal Transfer"}]
Let me know if you need anything else.`

		labels, _, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if len(labels) != 1 || labels[0].TransactionID != "t9" {
			t.Errorf("unexpected labels: %+v", labels)
		}
	})

	t.Run("single object is wrapped", func(t *testing.T) {
		raw := `{"transaction_id": "t1", "primary_category": "Expense", "secondary_category": "Shopping"}`

		labels, skipped, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if skipped != 0 || len(labels) != 1 {
			t.Errorf("got %d labels (%d skipped), want 1 (0 skipped)", len(labels), skipped)
		}
	})

	t.Run("single object with an array-valued field survives", func(t *testing.T) {
		raw := `{"transaction_id": "t1", "primary_category": "Expense", "secondary_category": "Shopping", "alternatives": ["Groceries"]}`

		labels, skipped, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if skipped != 0 || len(labels) != 1 {
			t.Fatalf("got %d labels (%d skipped), want 1 (0 skipped)", len(labels), skipped)
		}
		if labels[0].TransactionID != "t1" {
			t.Errorf("unexpected label: %+v", labels[0])
		}
	})

	t.Run("invalid records are dropped and counted", func(t *testing.T) {
		raw := `[
			{"transaction_id": "t1", "primary_category": "Expense", "secondary_category": "Groceries"},
			{"transaction_id": "", "primary_category": "Expense", "secondary_category": "Groceries"},
			{"transaction_id": "t3", "primary_category": "Expense"},
			{"transaction_id": "t4", "primary_category": "Expense", "secondary_category": "Payroll"},
			{"transaction_id": "t5", "primary_category": 7, "secondary_category": "Groceries"},
			"not an object"
		]`

		labels, skipped, err := DecodeLabels(log, raw)
		if err != nil {
			t.Fatalf("DecodeLabels() error: %v", err)
		}
		if len(labels) != 1 {
			t.Errorf("got %d labels, want 1", len(labels))
		}
		if skipped != 5 {
			t.Errorf("skipped = %d, want 5", skipped)
		}
	})

	t.Run("unparsable payload yields ValidationError with raw response", func(t *testing.T) {
		raw := "I could not categorize these transactions."

		labels, _, err := DecodeLabels(log, raw)
		if err == nil {
			t.Fatal("DecodeLabels() on unparsable payload returned nil error")
		}
		if labels != nil {
			t.Errorf("expected no labels, got %+v", labels)
		}

		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected *domain.ValidationError, got %T", err)
		}
		if vErr.RawResponse != raw {
			t.Errorf("ValidationError.RawResponse = %q, want original payload", vErr.RawResponse)
		}
	})
}

func TestCleanResponseText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already clean", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[1,2]\n```", "[1,2]"},
		{"bare fence", "```\n[1,2]\n```", "[1,2]"},
		{"fence without newline", "```", "```"},
		{"surrounding prose", "Sure!\n[1,2]\nAnything else?", "[1,2]"},
		{"bare object with array field", `{"a":[1]}`, `{"a":[1]}`},
		{"whitespace only trim", "  [1]  ", "[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanResponseText(tt.raw); got != tt.want {
				t.Errorf("cleanResponseText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
