package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// TransactionRow mirrors the txns.transactions schema. Raw fields are owned
// by the warehouse and immutable once ingested; the cleaned and category
// fields are the only ones this pipeline writes.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	DescriptionRaw  string     `bigquery:"description_raw"`  // REQUIRED
	MerchantNameRaw string     `bigquery:"merchant_name_raw"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`            // REQUIRED NUMERIC
	TransactionDate civil.Date `bigquery:"transaction_date"`  // REQUIRED

	DescriptionCleaned  bigquery.NullString `bigquery:"description_cleaned"`
	MerchantNameCleaned bigquery.NullString `bigquery:"merchant_name_cleaned"`
	TransactionType     bigquery.NullString `bigquery:"transaction_type"`

	PrimaryCategory      bigquery.NullString `bigquery:"primary_category"`
	SecondaryCategory    bigquery.NullString `bigquery:"secondary_category"`
	CategorizationMethod bigquery.NullString `bigquery:"categorization_method"`
	RuleID               bigquery.NullString `bigquery:"rule_id"`
}

// RuleRow mirrors the txns.rules schema.
type RuleRow struct {
	RuleID string `bigquery:"rule_id"` // REQUIRED

	Identifier      string `bigquery:"identifier"`
	IdentifierType  string `bigquery:"identifier_type"`
	TransactionType string `bigquery:"transaction_type"`

	PrimaryCategory   string `bigquery:"primary_category"`
	SecondaryCategory string `bigquery:"secondary_category"`

	PersonaType     string  `bigquery:"persona_type"`
	ConfidenceScore float64 `bigquery:"confidence_score"`
	Status          string  `bigquery:"status"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// LabelingRunRow mirrors the txns.labeling_runs schema. One row per stage-2
// model invocation.
type LabelingRunRow struct {
	LabelingRunID string `bigquery:"labeling_run_id"`

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`

	ModelName string `bigquery:"model_name"`
	BatchSize int64  `bigquery:"batch_size"`

	ValidatedCount bigquery.NullInt64 `bigquery:"validated_count"`
	UpdatedCount   bigquery.NullInt64 `bigquery:"updated_count"`

	Status       string `bigquery:"status"`
	ErrorMessage string `bigquery:"error_message"`

	// RawResponse is retained (truncated) when validation fails so the
	// payload can be inspected later.
	RawResponse bigquery.NullString `bigquery:"raw_response"`
}

// CategorySummaryRow is one aggregate line of the category summary query.
type CategorySummaryRow struct {
	PrimaryCategory   string   `bigquery:"primary_category"`
	SecondaryCategory string   `bigquery:"secondary_category"`
	TransactionCount  int64    `bigquery:"transaction_count"`
	TotalAmount       *big.Rat `bigquery:"total_amount"`
}
