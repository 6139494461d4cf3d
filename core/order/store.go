package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrDuplicate = errors.New("order already exists for idempotency key")
)

const orderColumns = `order_id, user_id, idempotency_key, status, total_price, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, o *Order) error {
	const q = `
	INSERT INTO orders
		(user_id, idempotency_key, status, total_price, created_at, updated_at)
	VALUES
		(:user_id, :idempotency_key, :status, :total_price, :created_at, :updated_at)
	RETURNING order_id`

	if err := database.NamedReturning(ctx, db, q, o, &o.ID); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func CreateItem(ctx context.Context, db sqlx.ExtContext, it *Item) error {
	const q = `
	INSERT INTO order_items
		(order_id, product_id, quantity, unit_price)
	VALUES
		(:order_id, :product_id, :quantity, :unit_price)
	RETURNING order_item_id`

	if err := database.NamedReturning(ctx, db, q, it, &it.ID); err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}
	return nil
}

// Fetch returns the order with its items.
func Fetch(ctx context.Context, db sqlx.ExtContext, id int64) (Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	return fetchOne(ctx, db, q, id)
}

// FetchByKey returns the order a user placed with the given idempotency key.
func FetchByKey(ctx context.Context, db sqlx.ExtContext, userID int64, key string) (Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`
	return fetchOne(ctx, db, q, userID, key)
}

func ListByUser(ctx context.Context, db sqlx.ExtContext, userID int64) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, order_id DESC`

	orders := []Order{}
	if err := database.SelectContext(ctx, db, &orders, q, userID); err != nil {
		return nil, fmt.Errorf("selecting orders of user[%d]: %w", userID, err)
	}

	for i := range orders {
		items, err := FetchItems(ctx, db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, orderID int64) ([]Item, error) {
	const q = `
	SELECT order_item_id, order_id, product_id, quantity, unit_price
	FROM order_items
	WHERE order_id = $1
	ORDER BY order_item_id`

	items := []Item{}
	if err := database.SelectContext(ctx, db, &items, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting items of order[%d]: %w", orderID, err)
	}
	return items, nil
}

func fetchOne(ctx context.Context, db sqlx.ExtContext, q string, args ...any) (Order, error) {
	var o Order
	if err := database.GetContext(ctx, db, &o, q, args...); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order: %w", err)
	}

	items, err := FetchItems(ctx, db, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}
