// Package reconcile records gateway charges whose outcome is unknown. A user
// with such a charge may only retry with the same idempotency key until an
// operator resolves it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

type Kind string

const (
	KindCheckout Kind = "checkout"
	KindCredits  Kind = "credits"
)

var ErrNotFound = errors.New("no unresolved charge")

type Charge struct {
	UserID         int64     `json:"userId" db:"user_id"`
	Kind           Kind      `json:"kind" db:"kind"`
	IdempotencyKey string    `json:"idempotencyKey" db:"idempotency_key"`
	Amount         int       `json:"amount" db:"amount"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`

	// ReferenceID is set when the provider confirmed the charge but the
	// purchase could not be recorded.
	ReferenceID string `json:"referenceId,omitempty" db:"reference_id"`
}

// Matches reports whether a new attempt is the retry of this charge.
func (c Charge) Matches(kind Kind, key string, amount int) bool {
	return c.Kind == kind && c.IdempotencyKey == key && c.Amount == amount
}

// Mark stores the charge, replacing an earlier one of the same user.
func Mark(ctx context.Context, db sqlx.ExtContext, c Charge) error {
	const q = `
	INSERT INTO unresolved_charges
		(user_id, kind, idempotency_key, amount, reference_id, created_at)
	VALUES
		(:user_id, :kind, :idempotency_key, :amount, :reference_id, :created_at)
	ON CONFLICT (user_id) DO UPDATE SET
		kind = EXCLUDED.kind,
		idempotency_key = EXCLUDED.idempotency_key,
		amount = EXCLUDED.amount,
		reference_id = EXCLUDED.reference_id,
		created_at = EXCLUDED.created_at`

	if _, err := database.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("marking unresolved charge of user[%d]: %w", c.UserID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, userID int64) (Charge, error) {
	const q = `
	SELECT user_id, kind, idempotency_key, amount, reference_id, created_at
	FROM unresolved_charges
	WHERE user_id = $1`

	var c Charge
	if err := database.GetContext(ctx, db, &c, q, userID); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Charge{}, ErrNotFound
		}
		return Charge{}, fmt.Errorf("selecting unresolved charge of user[%d]: %w", userID, err)
	}
	return c, nil
}

func List(ctx context.Context, db sqlx.ExtContext) ([]Charge, error) {
	const q = `
	SELECT user_id, kind, idempotency_key, amount, reference_id, created_at
	FROM unresolved_charges
	ORDER BY created_at`

	charges := []Charge{}
	if err := database.SelectContext(ctx, db, &charges, q); err != nil {
		return nil, fmt.Errorf("selecting unresolved charges: %w", err)
	}
	return charges, nil
}

// Clear removes the user's unresolved charge. Clearing a user without one is
// not an error.
func Clear(ctx context.Context, db sqlx.ExtContext, userID int64) error {
	const q = `DELETE FROM unresolved_charges WHERE user_id = $1`

	if _, err := database.ExecContext(ctx, db, q, userID); err != nil {
		return fmt.Errorf("clearing unresolved charge of user[%d]: %w", userID, err)
	}
	return nil
}

// Ledger is the unresolved_charges table behind one database handle.
type Ledger struct {
	db sqlx.ExtContext
}

func NewLedger(db sqlx.ExtContext) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) MarkUnresolved(ctx context.Context, c Charge) error {
	return Mark(ctx, l.db, c)
}

func (l *Ledger) ClearUnresolved(ctx context.Context, userID int64) error {
	return Clear(ctx, l.db, userID)
}
