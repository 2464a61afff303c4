// Package ledger is the sole writer of customer balances. The debit
// runs inside the caller's transaction and takes a row lock on the
// customer, so concurrent placements from one customer serialize here
// and the balance can never go negative.
package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Ledger struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{Pool: pool}
}

// AuthorizeAndDebit reserves and debits amount from the customer's
// balance. A false return means the balance was insufficient; nothing
// is written in that case.
func (l *Ledger) AuthorizeAndDebit(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) (bool, error) {
	row := tx.QueryRow(ctx, `SELECT balance FROM customers WHERE id=$1 FOR UPDATE`, customerID)
	var balance decimal.Decimal
	if err := row.Scan(&balance); err != nil {
		return false, err
	}
	if balance.LessThan(amount) {
		return false, nil
	}
	_, err := tx.Exec(ctx, `UPDATE customers SET balance = balance - $2 WHERE id=$1`, customerID, amount)
	if err != nil {
		return false, err
	}
	return true, nil
}

// CurrentBalance reads the committed balance. Used for statement
// annotation only; never for authorization decisions.
func (l *Ledger) CurrentBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	row := l.Pool.QueryRow(ctx, `SELECT balance FROM customers WHERE id=$1`, customerID)
	var balance decimal.Decimal
	err := row.Scan(&balance)
	return balance, err
}
