// Package taxonomy holds the closed category taxonomy shared by rule
// validation, the labeling prompt, and labeling response validation.
// All three consumers must see the exact same category set, so the
// taxonomy is a fixed in-process map rather than warehouse state.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
)

// Categories maps each primary category to its valid secondary categories.
var Categories = map[string][]string{
	"Income": {
		"Gig Income", "Payroll", "Other Income", "Refund",
		"Interest Income", "Peer-to-Peer Credit",
	},
	"Expense": {
		"Groceries", "Pharmacy", "Office Supplies", "Food & Dining",
		"Coffee Shop", "Shopping", "Entertainment", "Health & Wellness",
		"Auto & Transport", "Travel & Vacation", "Loan Payment",
		"Rent Payment", "Software & Tech", "Medical", "Insurance",
		"Bills & Utilities", "ATM Withdrawal", "Peer-to-Peer Debit",
		"Fees & Charges", "Business Services", "Other Expense",
		"Mortgage Payment", "Streaming Services",
	},
	"Transfer": {
		"Internal Transfer", "External Transfer", "Credit Card Payment",
	},
}

// IsValid reports whether the primary/secondary pair belongs to the taxonomy.
func IsValid(primary, secondary string) bool {
	secondaries, ok := Categories[primary]
	if !ok {
		return false
	}
	for _, s := range secondaries {
		if s == secondary {
			return true
		}
	}
	return false
}

// Validate returns a descriptive error when the pair is outside the taxonomy.
func Validate(primary, secondary string) error {
	secondaries, ok := Categories[primary]
	if !ok {
		return fmt.Errorf("invalid primary category %q; valid primaries: %v", primary, Primaries())
	}
	for _, s := range secondaries {
		if s == secondary {
			return nil
		}
	}
	return fmt.Errorf("invalid secondary category %q for primary %q; valid secondaries: %v",
		secondary, primary, secondaries)
}

// Primaries returns the primary category names in a stable order.
func Primaries() []string {
	names := make([]string, 0, len(Categories))
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PromptSection renders the taxonomy as the "Valid Categories" section of the
// labeling prompt.
func PromptSection() string {
	var b strings.Builder
	b.WriteString("Valid Categories:\n")
	for _, primary := range Primaries() {
		b.WriteString(primary + ":\n")
		for _, secondary := range Categories[primary] {
			b.WriteString("  - " + secondary + "\n")
		}
	}
	return b.String()
}
