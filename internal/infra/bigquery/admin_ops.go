package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// ResetDerivedFieldsWithClient nulls every pipeline-written field on every
// transaction. Destructive; the service layer gates it behind an explicit
// confirmation string.
func ResetDerivedFieldsWithClient(ctx context.Context, client *bigquery.Client) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET
			merchant_name_cleaned = NULL,
			description_cleaned = NULL,
			primary_category = NULL,
			secondary_category = NULL,
			transaction_type = NULL,
			categorization_method = NULL,
			rule_id = NULL
		WHERE TRUE
	`, tableFQN(transactionsTable)))

	return runDML(ctx, q, "ResetDerivedFields")
}
