package bigquery

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
)

const (
	defaultProjectID = "fsi-banking-agentspace"
	defaultDatasetID = "txns"

	transactionsTable = "transactions"
	rulesTable        = "rules"
	labelingRunsTable = "labeling_runs"
)

// ProjectID returns the warehouse project, overridable via TXN_BQ_PROJECT.
func ProjectID() string {
	if v := os.Getenv("TXN_BQ_PROJECT"); v != "" {
		return v
	}
	return defaultProjectID
}

// DatasetID returns the warehouse dataset, overridable via TXN_BQ_DATASET.
func DatasetID() string {
	if v := os.Getenv("TXN_BQ_DATASET"); v != "" {
		return v
	}
	return defaultDatasetID
}

// tableFQN returns the backtick-quoted fully qualified table name.
func tableFQN(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", ProjectID(), DatasetID(), table)
}

// runDML runs a parameterized DML query, waits for the job, and returns the
// number of affected rows. Any failure comes back as a *domain.WarehouseError.
func runDML(ctx context.Context, q *bigquery.Query, op string) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, &domain.WarehouseError{Op: op, Err: fmt.Errorf("running query: %w", err)}
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, &domain.WarehouseError{Op: op, Err: fmt.Errorf("waiting for job: %w", err)}
	}
	if err := status.Err(); err != nil {
		return 0, &domain.WarehouseError{Op: op, Err: fmt.Errorf("job error: %w", err)}
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}
