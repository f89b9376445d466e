package domain

import (
	"time"
)

// TransactionType is derived from the sign of a transaction's amount.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "Debit"
	TransactionTypeCredit TransactionType = "Credit"
	// TransactionTypeZero is the sentinel for zero-amount rows.
	TransactionTypeZero TransactionType = "Zero"
)

// IdentifierType names the cleaned transaction field a rule matches against.
type IdentifierType string

const (
	IdentifierMerchantName IdentifierType = "merchant_name_cleaned"
	IdentifierDescription  IdentifierType = "description_cleaned"
)

// CategorizationMethod records which stage labeled a transaction.
type CategorizationMethod string

const (
	MethodRuleBased  CategorizationMethod = "rule-based"
	MethodLLMPowered CategorizationMethod = "llm-powered"
)

// RuleStatus is the lifecycle state of a rule. Rules are never deleted.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
)

// Rule is a deterministic match condition mapped to a category assignment.
type Rule struct {
	RuleID string

	Identifier      string
	IdentifierType  IdentifierType
	TransactionType TransactionType

	PrimaryCategory   string
	SecondaryCategory string

	PersonaType     string
	ConfidenceScore float64
	Status          RuleStatus

	CreatedAt time.Time
}

// MatchKey identifies the uniqueness scope of a rule: two rules with the
// same key may not carry different category assignments.
type MatchKey struct {
	Identifier      string
	IdentifierType  IdentifierType
	TransactionType TransactionType
}

// Key returns the rule's match key.
func (r Rule) Key() MatchKey {
	return MatchKey{
		Identifier:      r.Identifier,
		IdentifierType:  r.IdentifierType,
		TransactionType: r.TransactionType,
	}
}

// RuleSuggestion is a mined, unmaterialized candidate rule awaiting approval.
type RuleSuggestion struct {
	Identifier        string
	IdentifierType    IdentifierType
	PrimaryCategory   string
	SecondaryCategory string
	TransactionType   TransactionType

	// Support is the number of llm-powered transactions backing the candidate.
	Support int64
}

// Key returns the suggestion's match key.
func (s RuleSuggestion) Key() MatchKey {
	return MatchKey{
		Identifier:      s.Identifier,
		IdentifierType:  s.IdentifierType,
		TransactionType: s.TransactionType,
	}
}

// UncategorizedTransaction is the projection of a transaction sent to the
// labeling service. Raw fields never leave the warehouse.
type UncategorizedTransaction struct {
	TransactionID       string `json:"transaction_id"`
	DescriptionCleaned  string `json:"description_cleaned"`
	MerchantNameCleaned string `json:"merchant_name_cleaned"`
}

// CategoryLabel is one validated record returned by the labeling service.
type CategoryLabel struct {
	TransactionID     string `json:"transaction_id"`
	PrimaryCategory   string `json:"primary_category"`
	SecondaryCategory string `json:"secondary_category"`
}
