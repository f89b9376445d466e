package labeling

import (
	"strings"
	"testing"

	"github.com/dvloznov/txn-categorizer/internal/domain"
)

func TestBuildLabelingPrompt(t *testing.T) {
	txns := []domain.UncategorizedTransaction{
		{TransactionID: "t1", DescriptionCleaned: "UBER TRIP", MerchantNameCleaned: "UBER"},
		{TransactionID: "t2", DescriptionCleaned: "TESCO STORES 3297", MerchantNameCleaned: "TESCO"},
	}

	prompt, err := buildLabelingPrompt(txns)
	if err != nil {
		t.Fatalf("buildLabelingPrompt() error: %v", err)
	}

	for _, want := range []string{
		"Valid Categories:",
		`"transaction_id":"t1"`,
		`"merchant_name_cleaned":"TESCO"`,
		"STRICT JSON array",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// The prompt only carries cleaned projections, never raw fields.
	if strings.Contains(prompt, "raw") {
		t.Errorf("prompt unexpectedly mentions raw fields:\n%s", prompt)
	}
}
