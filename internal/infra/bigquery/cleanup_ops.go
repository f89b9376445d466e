package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// StandardizeTextFieldsWithClient fills the cleaned text fields for every
// transaction where they are still NULL: uppercase, collapse non-alphanumeric
// runs to a single space, trim. Re-running it is a no-op because cleaned rows
// no longer match the predicate.
func StandardizeTextFieldsWithClient(ctx context.Context, client *bigquery.Client) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET
			merchant_name_cleaned = TRIM(REGEXP_REPLACE(UPPER(merchant_name_raw), r'[^A-Z0-9]+', ' ')),
			description_cleaned = TRIM(REGEXP_REPLACE(UPPER(description_raw), r'[^A-Z0-9]+', ' '))
		WHERE merchant_name_cleaned IS NULL OR description_cleaned IS NULL
	`, tableFQN(transactionsTable)))

	return runDML(ctx, q, "StandardizeTextFields")
}

// CorrectTransactionTypesWithClient recomputes transaction_type from the sign
// of amount for every row where it is NULL or inconsistent with the sign
// rule. Converges in one pass regardless of prior values.
func CorrectTransactionTypesWithClient(ctx context.Context, client *bigquery.Client) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET transaction_type = CASE
			WHEN amount < 0 THEN 'Debit'
			WHEN amount > 0 THEN 'Credit'
			ELSE 'Zero'
		END
		WHERE transaction_type IS NULL
		   OR (amount < 0 AND transaction_type != 'Debit')
		   OR (amount > 0 AND transaction_type != 'Credit')
		   OR (amount = 0 AND transaction_type != 'Zero')
	`, tableFQN(transactionsTable)))

	return runDML(ctx, q, "CorrectTransactionTypes")
}
