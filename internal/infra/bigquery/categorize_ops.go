package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

// ApplyActiveRulesWithClient runs the stage-1 deterministic pass: every
// active rule is merged onto transactions whose primary_category is still
// NULL, joining on the rule's identifier field and transaction type. One
// MERGE per identifier type so a transaction matching both a merchant rule
// and a description rule can never trip BigQuery's multiple-source-row
// error; the NULL predicate makes the second statement skip rows the first
// one already labeled.
func ApplyActiveRulesWithClient(ctx context.Context, client *bigquery.Client) (int64, error) {
	var total int64
	for _, identifierType := range []domain.IdentifierType{
		domain.IdentifierMerchantName,
		domain.IdentifierDescription,
	} {
		affected, err := applyRulesForIdentifierType(ctx, client, identifierType)
		if err != nil {
			return total, err
		}
		total += affected
	}
	return total, nil
}

func applyRulesForIdentifierType(ctx context.Context, client *bigquery.Client, identifierType domain.IdentifierType) (int64, error) {
	// identifierType resolves to a column name from a closed enum, never
	// caller input.
	q := client.Query(fmt.Sprintf(`
		MERGE %s AS T
		USING (
			SELECT rule_id, primary_category, secondary_category, identifier, transaction_type
			FROM %s
			WHERE status = 'active' AND identifier_type = @identifier_type
		) AS R
		ON T.%s = R.identifier AND T.transaction_type = R.transaction_type
		WHEN MATCHED AND T.primary_category IS NULL THEN
			UPDATE SET
				primary_category = R.primary_category,
				secondary_category = R.secondary_category,
				categorization_method = 'rule-based',
				rule_id = R.rule_id
	`, tableFQN(transactionsTable), tableFQN(rulesTable), string(identifierType)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "identifier_type", Value: string(identifierType)},
	}

	return runDML(ctx, q, "ApplyActiveRules")
}

// FetchUncategorizedWithClient selects up to limit transactions that still
// have no primary category, projected down to the fields the labeling
// service is allowed to see.
func FetchUncategorizedWithClient(ctx context.Context, client *bigquery.Client, limit int) ([]domain.UncategorizedTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT transaction_id, description_cleaned, merchant_name_cleaned
		FROM %s
		WHERE primary_category IS NULL
		LIMIT @batch_limit
	`, tableFQN(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "FetchUncategorized", Err: fmt.Errorf("query read: %w", err)}
	}

	var txns []domain.UncategorizedTransaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.WarehouseError{Op: "FetchUncategorized", Err: fmt.Errorf("iter next: %w", err)}
		}
		// A NULL cleaned field loads as an invalid NullString, whose StringVal
		// is the empty string the labeler expects.
		txns = append(txns, domain.UncategorizedTransaction{
			TransactionID:       r.TransactionID,
			DescriptionCleaned:  r.DescriptionCleaned.StringVal,
			MerchantNameCleaned: r.MerchantNameCleaned.StringVal,
		})
	}

	return txns, nil
}

// MergeCategoryLabelsWithClient applies validated model labels through a
// per-run staging table and a conditional MERGE. The update predicate
// re-checks that primary_category is still NULL at apply time, so a
// concurrent run cannot overwrite a label that landed in between. The
// staging table is dropped on every exit path.
func MergeCategoryLabelsWithClient(ctx context.Context, client *bigquery.Client, labels []domain.CategoryLabel) (int64, error) {
	if len(labels) == 0 {
		return 0, nil
	}

	staging := newStagingTable(client)
	if err := staging.create(ctx); err != nil {
		return 0, err
	}
	defer staging.drop(context.WithoutCancel(ctx))

	if err := staging.load(ctx, labels); err != nil {
		return 0, err
	}

	q := client.Query(fmt.Sprintf(`
		MERGE %s AS T
		USING %s AS S
		ON T.transaction_id = S.transaction_id
		WHEN MATCHED AND T.primary_category IS NULL THEN
			UPDATE SET
				primary_category = S.primary_category,
				secondary_category = S.secondary_category,
				categorization_method = 'llm-powered'
	`, tableFQN(transactionsTable), staging.fqn()))

	return runDML(ctx, q, "MergeCategoryLabels")
}
