package labeling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/dvloznov/txn-categorizer/internal/taxonomy"
)

// buildLabelingPrompt renders the categorization prompt for one batch. Only
// the transaction id and the cleaned text fields are sent; raw fields and
// amounts never leave the warehouse.
func buildLabelingPrompt(txns []domain.UncategorizedTransaction) (string, error) {
	payload, err := json.Marshal(txns)
	if err != nil {
		return "", fmt.Errorf("marshal transactions: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expert financial transaction categorizer. ")
	b.WriteString("Categorize every transaction in the JSON data below.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("1. For each transaction, determine the correct primary_category and secondary_category.\n")
	b.WriteString("2. You MUST use only the categories listed under \"Valid Categories\".\n")
	b.WriteString("3. Output a STRICT JSON array of objects, nothing else.\n")
	b.WriteString("4. Each object MUST have exactly three string keys: ")
	b.WriteString("\"transaction_id\", \"primary_category\", \"secondary_category\".\n")
	b.WriteString("5. Do NOT wrap the response in code fences or Markdown. ")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n\n")

	b.WriteString(taxonomy.PromptSection())

	b.WriteString("\nTransactions to Categorize:\n")
	b.Write(payload)
	b.WriteString("\n")

	return b.String(), nil
}
