// Package cleanup mirrors the warehouse-side normalization rules in Go so
// that caller-supplied rule identifiers match the cleaned transaction fields
// they are joined against.
package cleanup

import (
	"math/big"
	"strings"

	"github.com/dvloznov/txn-categorizer/internal/domain"
)

// NormalizeText applies the same transform as the warehouse cleanup
// statement: uppercase, collapse every non-alphanumeric run to a single
// space, trim. Idempotent.
func NormalizeText(raw string) string {
	upper := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(upper))
	inSeparator := false
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if inSeparator && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSeparator = false
			b.WriteRune(r)
		} else {
			inSeparator = true
		}
	}
	return b.String()
}

// TransactionTypeForAmount maps an amount's sign to the transaction type:
// negative is Debit, positive is Credit, zero is the Zero sentinel.
func TransactionTypeForAmount(amount *big.Rat) domain.TransactionType {
	if amount == nil {
		return domain.TransactionTypeZero
	}
	switch amount.Sign() {
	case -1:
		return domain.TransactionTypeDebit
	case 1:
		return domain.TransactionTypeCredit
	default:
		return domain.TransactionTypeZero
	}
}
