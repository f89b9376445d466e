package bigquery

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const maxStoredErrorLen = 2000

// StartLabelingRunWithClient records a labeling_runs row with status=RUNNING
// for one stage-2 model invocation and returns its id.
func StartLabelingRunWithClient(ctx context.Context, client *bigquery.Client, modelName string, batchSize int) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s
			(labeling_run_id, started_ts, model_name, batch_size, status, error_message)
		VALUES
			(@labeling_run_id, @started_ts, @model_name, @batch_size, @status, '')
	`, tableFQN(labelingRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "labeling_run_id", Value: runID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "model_name", Value: modelName},
		{Name: "batch_size", Value: int64(batchSize)},
		{Name: "status", Value: "RUNNING"},
	}

	if _, err := runDML(ctx, q, "StartLabelingRun"); err != nil {
		return "", err
	}
	return runID, nil
}

// MarkLabelingRunSucceededWithClient closes a labeling run as SUCCESS with
// its validated and applied counts.
func MarkLabelingRunSucceededWithClient(ctx context.Context, client *bigquery.Client, runID string, validated, updated int64) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = 'SUCCESS',
		    finished_ts = @finished_ts,
		    validated_count = @validated_count,
		    updated_count = @updated_count
		WHERE labeling_run_id = @labeling_run_id
	`, tableFQN(labelingRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "finished_ts", Value: time.Now()},
		{Name: "validated_count", Value: validated},
		{Name: "updated_count", Value: updated},
		{Name: "labeling_run_id", Value: runID},
	}

	_, err := runDML(ctx, q, "MarkLabelingRunSucceeded")
	return err
}

// MarkLabelingRunFailedWithClient closes a labeling run as FAILED. The raw
// model response, when available, is retained truncated for diagnosis.
// Best-effort: bookkeeping failures are logged, never propagated, so they
// cannot mask the error that got the run here.
func MarkLabelingRunFailedWithClient(ctx context.Context, client *bigquery.Client, runID string, runErr error, rawResponse string) {
	errMsg := ""
	if runErr != nil {
		errMsg = truncate(runErr.Error(), maxStoredErrorLen)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = 'FAILED',
		    finished_ts = @finished_ts,
		    error_message = @error_message,
		    raw_response = @raw_response
		WHERE labeling_run_id = @labeling_run_id
	`, tableFQN(labelingRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "raw_response", Value: truncate(rawResponse, maxStoredErrorLen)},
		{Name: "labeling_run_id", Value: runID},
	}

	if _, err := runDML(ctx, q, "MarkLabelingRunFailed"); err != nil {
		log.Printf("MarkLabelingRunFailed: updating run %s: %v", runID, err)
	}
}

// ListLabelingRunsWithClient returns the most recent labeling runs, newest
// first, for run-history inspection.
func ListLabelingRunsWithClient(ctx context.Context, client *bigquery.Client, limit int) ([]LabelingRunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT labeling_run_id, started_ts, finished_ts, model_name, batch_size,
		       validated_count, updated_count, status, error_message, raw_response
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @run_limit
	`, tableFQN(labelingRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "ListLabelingRuns", Err: fmt.Errorf("query read: %w", err)}
	}

	var runs []LabelingRunRow
	for {
		var r LabelingRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.WarehouseError{Op: "ListLabelingRuns", Err: fmt.Errorf("iter next: %w", err)}
		}
		runs = append(runs, r)
	}

	return runs, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
