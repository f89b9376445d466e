package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

// AggregateLabeledTransactionsWithClient groups llm-powered transactions by
// candidate rule key and assignment, keyed once by merchant name and once by
// description, keeping groups backed by more than minSupport transactions.
// Exclusion of keys that already have a rule happens in the miner, not here.
func AggregateLabeledTransactionsWithClient(ctx context.Context, client *bigquery.Client, minSupport, limit int) ([]domain.RuleSuggestion, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			identifier,
			identifier_type,
			primary_category,
			secondary_category,
			transaction_type,
			COUNT(*) AS transaction_count
		FROM (
			SELECT
				merchant_name_cleaned AS identifier,
				'merchant_name_cleaned' AS identifier_type,
				primary_category,
				secondary_category,
				transaction_type
			FROM %[1]s
			WHERE categorization_method = 'llm-powered'
			UNION ALL
			SELECT
				description_cleaned AS identifier,
				'description_cleaned' AS identifier_type,
				primary_category,
				secondary_category,
				transaction_type
			FROM %[1]s
			WHERE categorization_method = 'llm-powered'
		)
		WHERE identifier IS NOT NULL AND identifier != ''
		GROUP BY 1, 2, 3, 4, 5
		HAVING COUNT(*) > @min_support
		ORDER BY transaction_count DESC
		LIMIT @suggestion_limit
	`, tableFQN(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "min_support", Value: int64(minSupport)},
		{Name: "suggestion_limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "AggregateLabeledTransactions", Err: fmt.Errorf("query read: %w", err)}
	}

	var suggestions []domain.RuleSuggestion
	for {
		var r struct {
			Identifier        string `bigquery:"identifier"`
			IdentifierType    string `bigquery:"identifier_type"`
			PrimaryCategory   string `bigquery:"primary_category"`
			SecondaryCategory string `bigquery:"secondary_category"`
			TransactionType   string `bigquery:"transaction_type"`
			TransactionCount  int64  `bigquery:"transaction_count"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.WarehouseError{Op: "AggregateLabeledTransactions", Err: fmt.Errorf("iter next: %w", err)}
		}
		suggestions = append(suggestions, domain.RuleSuggestion{
			Identifier:        r.Identifier,
			IdentifierType:    domain.IdentifierType(r.IdentifierType),
			PrimaryCategory:   r.PrimaryCategory,
			SecondaryCategory: r.SecondaryCategory,
			TransactionType:   domain.TransactionType(r.TransactionType),
			Support:           r.TransactionCount,
		})
	}

	return suggestions, nil
}
