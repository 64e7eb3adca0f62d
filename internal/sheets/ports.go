package sheets

import (
	"context"
	"errors"

	"saldo/internal/core"
)

// ErrPermanent marks write failures that retrying cannot fix, such as a
// missing sheet or revoked access.
var ErrPermanent = errors.New("permanent write failure")

// TransactionWriter appends a recorded transaction to an external ledger and
// returns a reference to the written row.
type TransactionWriter interface {
	AppendTransaction(ctx context.Context, month core.MonthKey, tx core.Transaction) (rowRef string, err error)
}

// Row is the column layout used by every TransactionWriter:
// month, description, amount, type.
func Row(month core.MonthKey, tx core.Transaction) []any {
	return []any{month.String(), tx.Description, tx.Amount, string(tx.Type)}
}
