package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
)

// Client is the warehouse accessor. It holds a shared BigQuery client so a
// pipeline run does not open a new connection per statement.
type Client struct {
	client *bigquery.Client
}

// NewClient creates a warehouse client for the configured project.
func NewClient(ctx context.Context) (*Client, error) {
	client, err := bigquery.NewClient(ctx, ProjectID())
	if err != nil {
		return nil, fmt.Errorf("NewClient: bigquery client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases the underlying BigQuery connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// StandardizeTextFields delegates to StandardizeTextFieldsWithClient.
func (c *Client) StandardizeTextFields(ctx context.Context) (int64, error) {
	return StandardizeTextFieldsWithClient(ctx, c.client)
}

// CorrectTransactionTypes delegates to CorrectTransactionTypesWithClient.
func (c *Client) CorrectTransactionTypes(ctx context.Context) (int64, error) {
	return CorrectTransactionTypesWithClient(ctx, c.client)
}

// ApplyActiveRules delegates to ApplyActiveRulesWithClient.
func (c *Client) ApplyActiveRules(ctx context.Context) (int64, error) {
	return ApplyActiveRulesWithClient(ctx, c.client)
}

// FetchUncategorized delegates to FetchUncategorizedWithClient.
func (c *Client) FetchUncategorized(ctx context.Context, limit int) ([]domain.UncategorizedTransaction, error) {
	return FetchUncategorizedWithClient(ctx, c.client, limit)
}

// MergeCategoryLabels delegates to MergeCategoryLabelsWithClient.
func (c *Client) MergeCategoryLabels(ctx context.Context, labels []domain.CategoryLabel) (int64, error) {
	return MergeCategoryLabelsWithClient(ctx, c.client, labels)
}

// FindRuleByKey delegates to FindRuleByKeyWithClient.
func (c *Client) FindRuleByKey(ctx context.Context, key domain.MatchKey) (*domain.Rule, error) {
	return FindRuleByKeyWithClient(ctx, c.client, key)
}

// InsertRule delegates to InsertRuleWithClient.
func (c *Client) InsertRule(ctx context.Context, rule domain.Rule) error {
	return InsertRuleWithClient(ctx, c.client, rule)
}

// UpdateRuleStatus delegates to UpdateRuleStatusWithClient.
func (c *Client) UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) (bool, error) {
	return UpdateRuleStatusWithClient(ctx, c.client, ruleID, status)
}

// ListRuleKeys delegates to ListRuleKeysWithClient.
func (c *Client) ListRuleKeys(ctx context.Context) ([]domain.MatchKey, error) {
	return ListRuleKeysWithClient(ctx, c.client)
}

// AggregateLabeledTransactions delegates to AggregateLabeledTransactionsWithClient.
func (c *Client) AggregateLabeledTransactions(ctx context.Context, minSupport, limit int) ([]domain.RuleSuggestion, error) {
	return AggregateLabeledTransactionsWithClient(ctx, c.client, minSupport, limit)
}

// StartLabelingRun delegates to StartLabelingRunWithClient.
func (c *Client) StartLabelingRun(ctx context.Context, modelName string, batchSize int) (string, error) {
	return StartLabelingRunWithClient(ctx, c.client, modelName, batchSize)
}

// MarkLabelingRunSucceeded delegates to MarkLabelingRunSucceededWithClient.
func (c *Client) MarkLabelingRunSucceeded(ctx context.Context, runID string, validated, updated int64) error {
	return MarkLabelingRunSucceededWithClient(ctx, c.client, runID, validated, updated)
}

// MarkLabelingRunFailed delegates to MarkLabelingRunFailedWithClient.
func (c *Client) MarkLabelingRunFailed(ctx context.Context, runID string, runErr error, rawResponse string) {
	MarkLabelingRunFailedWithClient(ctx, c.client, runID, runErr, rawResponse)
}

// ListLabelingRuns delegates to ListLabelingRunsWithClient.
func (c *Client) ListLabelingRuns(ctx context.Context, limit int) ([]LabelingRunRow, error) {
	return ListLabelingRunsWithClient(ctx, c.client, limit)
}

// SummarizeByCategory delegates to SummarizeByCategoryWithClient.
func (c *Client) SummarizeByCategory(ctx context.Context, start, end time.Time) ([]CategorySummaryRow, error) {
	return SummarizeByCategoryWithClient(ctx, c.client, start, end)
}

// ResetDerivedFields delegates to ResetDerivedFieldsWithClient.
func (c *Client) ResetDerivedFields(ctx context.Context) (int64, error) {
	return ResetDerivedFieldsWithClient(ctx, c.client)
}
