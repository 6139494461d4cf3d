package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("cart item not found")
	ErrQuantity = errors.New("quantity must be at least 1")

	// ErrChanged means the cart no longer holds the lines it was quoted with.
	ErrChanged = errors.New("cart changed since it was quoted")
)

// Add inserts the product into the cart or increments the quantity of the
// existing line.
func Add(ctx context.Context, db sqlx.ExtContext, userID, productID int64, quantity int) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrQuantity
	}

	if _, err := product.Fetch(ctx, db, productID); err != nil {
		return Item{}, err
	}

	const q = `
	INSERT INTO cart_items (user_id, product_id, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, product_id)
	DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	RETURNING cart_item_id, user_id, product_id, quantity`

	var it Item
	if err := database.GetContext(ctx, db, &it, q, userID, productID, quantity); err != nil {
		if errors.Is(err, database.ErrDBMissingRef) {
			return Item{}, product.ErrNotFound
		}
		return Item{}, fmt.Errorf("upserting cart item: %w", err)
	}
	return it, nil
}

// List returns the user's lines joined with current catalog prices, in the
// order they were first added.
func List(ctx context.Context, db sqlx.ExtContext, userID int64) ([]Line, error) {
	const q = `
	SELECT
		c.cart_item_id, c.product_id, p.name, p.price, c.quantity
	FROM cart_items AS c
	JOIN products AS p ON p.product_id = c.product_id
	WHERE c.user_id = $1
	ORDER BY c.cart_item_id`

	lines := []Line{}
	if err := database.SelectContext(ctx, db, &lines, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart of user[%d]: %w", userID, err)
	}
	return lines, nil
}

func Remove(ctx context.Context, db sqlx.ExtContext, userID, productID int64) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	res, err := database.ExecContext(ctx, db, q, userID, productID)
	if err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear empties the user's cart. It takes an ExtContext so it can run inside
// a larger transaction.
func Clear(ctx context.Context, db sqlx.ExtContext, userID int64) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1`

	if _, err := database.ExecContext(ctx, db, q, userID); err != nil {
		return fmt.Errorf("clearing cart of user[%d]: %w", userID, err)
	}
	return nil
}

// Consume removes exactly the quoted quantities from the cart. Quantity
// added after the quote stays in the cart. If any quoted line has been removed
// or reduced it fails with ErrChanged; callers run it inside a transaction so
// the partial update is rolled back.
func Consume(ctx context.Context, tx sqlx.ExtContext, userID int64, lines []Line) error {
	const del = `
	DELETE FROM cart_items
	WHERE cart_item_id = $1 AND user_id = $2 AND quantity = $3`

	const dec = `
	UPDATE cart_items SET quantity = quantity - $3
	WHERE cart_item_id = $1 AND user_id = $2 AND quantity > $3`

	for _, l := range lines {
		n, err := affected(ctx, tx, del, l.ItemID, userID, l.Quantity)
		if err != nil {
			return fmt.Errorf("consuming cart item[%d]: %w", l.ItemID, err)
		}
		if n == 1 {
			continue
		}

		n, err = affected(ctx, tx, dec, l.ItemID, userID, l.Quantity)
		if err != nil {
			return fmt.Errorf("consuming cart item[%d]: %w", l.ItemID, err)
		}
		if n == 0 {
			return fmt.Errorf("cart item[%d]: %w", l.ItemID, ErrChanged)
		}
	}
	return nil
}

func affected(ctx context.Context, db sqlx.ExtContext, q string, args ...any) (int64, error) {
	res, err := database.ExecContext(ctx, db, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
