package cleanup

import (
	"math/big"
	"testing"

	"github.com/dvloznov/txn-categorizer/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lowercase with punctuation", "starbucks #1234", "STARBUCKS 1234"},
		{"card suffix", "AMZN Mktp US*Z12AB3", "AMZN MKTP US Z12AB3"},
		{"collapses separator runs", "UBER   *TRIP -- HELP.UBER.COM", "UBER TRIP HELP UBER COM"},
		{"leading and trailing junk", "  **PAYPAL** ", "PAYPAL"},
		{"only separators", "***---", ""},
		{"empty", "", ""},
		{"already clean", "TESCO STORES 3297", "TESCO STORES 3297"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.raw); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	inputs := []string{
		"starbucks #1234",
		"AMZN Mktp US*Z12AB3",
		"  spaced   out  ",
		"CLEAN ALREADY",
	}

	for _, raw := range inputs {
		once := NormalizeText(raw)
		twice := NormalizeText(once)
		if once != twice {
			t.Errorf("NormalizeText not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}

func TestTransactionTypeForAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Rat
		want   domain.TransactionType
	}{
		{"negative is debit", big.NewRat(-2550, 100), domain.TransactionTypeDebit},
		{"positive is credit", big.NewRat(120000, 100), domain.TransactionTypeCredit},
		{"zero", big.NewRat(0, 1), domain.TransactionTypeZero},
		{"nil amount", nil, domain.TransactionTypeZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransactionTypeForAmount(tt.amount); got != tt.want {
				t.Errorf("TransactionTypeForAmount() = %v, want %v", got, tt.want)
			}
		})
	}
}
