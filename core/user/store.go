package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrNotEnoughCredits = errors.New("not enough credits")
)

const columns = `user_id, email, password_hash, credits, is_admin, date_joined, date_modified, last_purchase`

func Create(ctx context.Context, db sqlx.ExtContext, u *User) error {
	const q = `
	INSERT INTO users
		(email, password_hash, credits, is_admin, date_joined, date_modified)
	VALUES
		(:email, :password_hash, :credits, :is_admin, :date_joined, :date_modified)
	RETURNING user_id`

	if err := database.NamedReturning(ctx, db, q, u, &u.ID); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id int64) (User, error) {
	q := `SELECT ` + columns + ` FROM users WHERE user_id = $1`

	var u User
	if err := database.GetContext(ctx, db, &u, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("selecting user[%d]: %w", id, err)
	}
	return u, nil
}

func FetchByEmail(ctx context.Context, db sqlx.ExtContext, email string) (User, error) {
	q := `SELECT ` + columns + ` FROM users WHERE email = $1`

	var u User
	if err := database.GetContext(ctx, db, &u, q, email); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return u, nil
}

// Lock takes a row lock on the user for the rest of the transaction.
func Lock(ctx context.Context, tx sqlx.ExtContext, id int64) error {
	var tmp int64
	q := `SELECT user_id FROM users WHERE user_id = $1 FOR UPDATE`
	if err := database.GetContext(ctx, tx, &tmp, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("locking user[%d]: %w", id, err)
	}
	return nil
}

func TouchLastPurchase(ctx context.Context, db sqlx.ExtContext, id int64, at time.Time) error {
	const q = `
	UPDATE users SET last_purchase = $2, date_modified = $2
	WHERE user_id = $1`

	res, err := database.ExecContext(ctx, db, q, id, at)
	if err != nil {
		return fmt.Errorf("updating last purchase of user[%d]: %w", id, err)
	}
	return expectOne(res, id)
}

// AddCredits adjusts the balance by delta. A negative delta fails with
// ErrNotEnoughCredits rather than taking the balance below zero.
func AddCredits(ctx context.Context, db sqlx.ExtContext, id int64, delta int, at time.Time) error {
	const q = `
	UPDATE users SET credits = credits + $2, date_modified = $3
	WHERE user_id = $1 AND credits + $2 >= 0`

	res, err := database.ExecContext(ctx, db, q, id, delta, at)
	if err != nil {
		return fmt.Errorf("updating credits of user[%d]: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := Fetch(ctx, db, id); err != nil {
			return err
		}
		return ErrNotEnoughCredits
	}
	return nil
}

type rowsAffecter interface{ RowsAffected() (int64, error) }

func expectOne(res rowsAffecter, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user[%d]: %w", id, ErrNotFound)
	}
	return nil
}
