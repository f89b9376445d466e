package bigquery

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/google/uuid"
)

// stagingRow is the shape of the per-run staging table used by the stage-2
// merge. The load goes through DML rather than the streaming inserter so the
// MERGE that follows never races a streaming buffer.
type stagingRow struct {
	TransactionID     string `bigquery:"transaction_id"`
	PrimaryCategory   string `bigquery:"primary_category"`
	SecondaryCategory string `bigquery:"secondary_category"`
}

// stagingTable is a scoped warehouse resource: created for one merge, dropped
// on every exit path. The table also carries an expiration so an interrupted
// process cannot leak it forever.
type stagingTable struct {
	client *bigquery.Client
	name   string
}

func newStagingTable(client *bigquery.Client) *stagingTable {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &stagingTable{
		client: client,
		name:   "_staging_labels_" + suffix,
	}
}

func (s *stagingTable) fqn() string {
	return tableFQN(s.name)
}

func (s *stagingTable) create(ctx context.Context) error {
	q := s.client.Query(fmt.Sprintf(`
		CREATE TABLE %s (
			transaction_id STRING,
			primary_category STRING,
			secondary_category STRING
		)
		OPTIONS (expiration_timestamp = TIMESTAMP_ADD(CURRENT_TIMESTAMP(), INTERVAL 1 HOUR))
	`, s.fqn()))

	_, err := runDML(ctx, q, "stagingTable.create")
	return err
}

func (s *stagingTable) load(ctx context.Context, labels []domain.CategoryLabel) error {
	rows := make([]stagingRow, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, stagingRow{
			TransactionID:     l.TransactionID,
			PrimaryCategory:   l.PrimaryCategory,
			SecondaryCategory: l.SecondaryCategory,
		})
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT INTO %s (transaction_id, primary_category, secondary_category)
		SELECT u.transaction_id, u.primary_category, u.secondary_category
		FROM UNNEST(@labels) AS u
	`, s.fqn()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "labels", Value: rows},
	}

	_, err := runDML(ctx, q, "stagingTable.load")
	return err
}

// drop removes the staging table. Best-effort: a failed drop is logged and
// the expiration cleans up behind it.
func (s *stagingTable) drop(ctx context.Context) {
	q := s.client.Query(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.fqn()))
	if _, err := runDML(ctx, q, "stagingTable.drop"); err != nil {
		log.Printf("stagingTable.drop: dropping %s: %v", s.name, err)
	}
}
