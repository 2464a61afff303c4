// Package pricing computes the charge for (service, customer,
// quantity): the customer's negotiated price when one exists, the
// service base price otherwise, times quantity.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Service struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) Service {
	return Service{Pool: pool}
}

// Price returns the total for quantity units. ok is false when no
// price is defined for the service at all.
func (s Service) Price(ctx context.Context, serviceID, customerID int64, quantity int) (decimal.Decimal, bool, error) {
	var unit decimal.Decimal

	row := s.Pool.QueryRow(ctx, `
		SELECT price FROM custom_prices WHERE service_id=$1 AND customer_id=$2
	`, serviceID, customerID)
	err := row.Scan(&unit)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.Pool.QueryRow(ctx, `SELECT price FROM services WHERE id=$1`, serviceID)
		err = row.Scan(&unit)
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	return unit.Mul(decimal.NewFromInt(int64(quantity))), true, nil
}
