package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("credit purchase not found")

const columns = `credit_purchase_id, user_id, idempotency_key, date, credits_purchased, purchase_amount, reference_id`

func Create(ctx context.Context, db sqlx.ExtContext, p *Purchase) error {
	const q = `
	INSERT INTO credit_purchases
		(user_id, idempotency_key, date, credits_purchased, purchase_amount, reference_id)
	VALUES
		(:user_id, :idempotency_key, :date, :credits_purchased, :purchase_amount, :reference_id)
	RETURNING credit_purchase_id`

	if err := database.NamedReturning(ctx, db, q, p, &p.ID); err != nil {
		return fmt.Errorf("inserting credit purchase: %w", err)
	}
	return nil
}

func FetchByKey(ctx context.Context, db sqlx.ExtContext, userID int64, key string) (Purchase, error) {
	q := `SELECT ` + columns + ` FROM credit_purchases WHERE user_id = $1 AND idempotency_key = $2`

	var p Purchase
	if err := database.GetContext(ctx, db, &p, q, userID, key); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, fmt.Errorf("selecting credit purchase: %w", err)
	}
	return p, nil
}

func ListByUser(ctx context.Context, db sqlx.ExtContext, userID int64) ([]Purchase, error) {
	q := `SELECT ` + columns + ` FROM credit_purchases WHERE user_id = $1 ORDER BY date DESC, credit_purchase_id DESC`

	ps := []Purchase{}
	if err := database.SelectContext(ctx, db, &ps, q, userID); err != nil {
		return nil, fmt.Errorf("selecting credit purchases of user[%d]: %w", userID, err)
	}
	return ps, nil
}
