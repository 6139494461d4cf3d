package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("product not found")

func Create(ctx context.Context, db sqlx.ExtContext, p *Product) error {
	const q = `
	INSERT INTO products
		(name, description, price, featured_image, primary_image, secondary_image, date_added, date_modified)
	VALUES
		(:name, :description, :price, :featured_image, :primary_image, :secondary_image, :date_added, :date_modified)
	RETURNING product_id`

	if err := database.NamedReturning(ctx, db, q, p, &p.ID); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

// Fetch is the catalog lookup used by the cart and checkout paths.
func Fetch(ctx context.Context, db sqlx.ExtContext, id int64) (Product, error) {
	const q = `
	SELECT
		product_id, name, description, price, featured_image, primary_image,
		secondary_image, date_added, date_modified
	FROM products
	WHERE product_id = $1`

	var p Product
	if err := database.GetContext(ctx, db, &p, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%d]: %w", id, err)
	}
	return p, nil
}
