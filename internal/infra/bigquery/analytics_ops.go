package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

const dateFormat = "2006-01-02"

// SummarizeByCategoryWithClient aggregates categorized transactions within
// the date range into per-category counts and totals, largest totals first.
func SummarizeByCategoryWithClient(ctx context.Context, client *bigquery.Client, start, end time.Time) ([]CategorySummaryRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			primary_category,
			secondary_category,
			COUNT(*) AS transaction_count,
			SUM(amount) AS total_amount
		FROM %s
		WHERE primary_category IS NOT NULL
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		GROUP BY primary_category, secondary_category
		ORDER BY ABS(SUM(amount)) DESC
	`, tableFQN(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start.Format(dateFormat)},
		{Name: "end_date", Value: end.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "SummarizeByCategory", Err: fmt.Errorf("query read: %w", err)}
	}

	var rows []CategorySummaryRow
	for {
		var r CategorySummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.WarehouseError{Op: "SummarizeByCategory", Err: fmt.Errorf("iter next: %w", err)}
		}
		rows = append(rows, r)
	}

	return rows, nil
}
