package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/core/user"
	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
)

const creditsProvider = "credits"

// Store is the persistence the orchestrator needs.
type Store interface {
	FindOrder(ctx context.Context, userID int64, key string) (order.Order, error)
	Quote(ctx context.Context, userID int64) ([]cart.Line, error)
	Unresolved(ctx context.Context, userID int64) (reconcile.Charge, error)
	MarkUnresolved(ctx context.Context, c reconcile.Charge) error
	ClearUnresolved(ctx context.Context, userID int64) error

	// Finalize records a paid order for the quoted lines in one transaction.
	Finalize(ctx context.Context, f Finalization) (order.Order, error)
}

// Finalization is everything needed to record a paid order. Charge is nil
// when the order is paid with credits.
type Finalization struct {
	UserID         int64
	IdempotencyKey string
	Lines          []cart.Line
	Total          int
	Charge         *payment.Charge
	At             time.Time
}

// Record is the proof of payment behind an order.
type Record struct {
	ID          int64     `json:"id" db:"checkout_id"`
	UserID      int64     `json:"userId" db:"user_id"`
	OrderID     int64     `json:"orderId" db:"order_id"`
	Provider    string    `json:"provider" db:"provider"`
	ReferenceID string    `json:"referenceId" db:"reference_id"`
	Amount      int       `json:"amount" db:"amount"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindOrder(ctx context.Context, userID int64, key string) (order.Order, error) {
	return order.FetchByKey(ctx, p.db, userID, key)
}

func (p *Postgres) Quote(ctx context.Context, userID int64) ([]cart.Line, error) {
	return cart.List(ctx, p.db, userID)
}

func (p *Postgres) Unresolved(ctx context.Context, userID int64) (reconcile.Charge, error) {
	return reconcile.Fetch(ctx, p.db, userID)
}

func (p *Postgres) MarkUnresolved(ctx context.Context, c reconcile.Charge) error {
	return reconcile.Mark(ctx, p.db, c)
}

func (p *Postgres) ClearUnresolved(ctx context.Context, userID int64) error {
	return reconcile.Clear(ctx, p.db, userID)
}

func (p *Postgres) Finalize(ctx context.Context, f Finalization) (order.Order, error) {
	var ord order.Order

	err := database.Transaction(ctx, p.db, func(tx sqlx.ExtContext) error {
		if err := user.Lock(ctx, tx, f.UserID); err != nil {
			return err
		}

		if f.Charge == nil {
			if err := user.AddCredits(ctx, tx, f.UserID, -f.Total, f.At); err != nil {
				if errors.Is(err, user.ErrNotEnoughCredits) {
					return ErrInsufficientCredits
				}
				return err
			}
		}

		if err := cart.Consume(ctx, tx, f.UserID, f.Lines); err != nil {
			return err
		}

		ord = order.Order{
			UserID:         f.UserID,
			IdempotencyKey: f.IdempotencyKey,
			Status:         order.Paid,
			TotalPrice:     f.Total,
			CreatedAt:      f.At,
			UpdatedAt:      f.At,
		}
		if err := order.Create(ctx, tx, &ord); err != nil {
			return err
		}

		ord.Items = make([]order.Item, 0, len(f.Lines))
		for _, l := range f.Lines {
			it := order.Item{
				OrderID:   ord.ID,
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: l.Price,
			}
			if err := order.CreateItem(ctx, tx, &it); err != nil {
				return err
			}
			ord.Items = append(ord.Items, it)
		}

		rec := Record{
			UserID:    f.UserID,
			OrderID:   ord.ID,
			Provider:  creditsProvider,
			Amount:    f.Total,
			CreatedAt: f.At,
		}
		if f.Charge != nil {
			rec.Provider = f.Charge.Provider
			rec.ReferenceID = f.Charge.ReferenceID
		} else {
			rec.ReferenceID = fmt.Sprintf("credits-%d", ord.ID)
		}
		if err := createRecord(ctx, tx, &rec); err != nil {
			return err
		}

		if err := user.TouchLastPurchase(ctx, tx, f.UserID, f.At); err != nil {
			return err
		}

		return reconcile.Clear(ctx, tx, f.UserID)
	})

	if err != nil {
		return order.Order{}, fmt.Errorf("finalizing order of user[%d]: %w", f.UserID, err)
	}
	return ord, nil
}

func createRecord(ctx context.Context, db sqlx.ExtContext, rec *Record) error {
	const q = `
	INSERT INTO checkouts
		(user_id, order_id, provider, reference_id, amount, created_at)
	VALUES
		(:user_id, :order_id, :provider, :reference_id, :amount, :created_at)
	RETURNING checkout_id`

	if err := database.NamedReturning(ctx, db, q, rec, &rec.ID); err != nil {
		return fmt.Errorf("inserting checkout record: %w", err)
	}
	return nil
}

// FetchRecord returns the proof of payment of an order.
func FetchRecord(ctx context.Context, db sqlx.ExtContext, orderID int64) (Record, error) {
	const q = `
	SELECT checkout_id, user_id, order_id, provider, reference_id, amount, created_at
	FROM checkouts
	WHERE order_id = $1`

	var rec Record
	if err := database.GetContext(ctx, db, &rec, q, orderID); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Record{}, order.ErrNotFound
		}
		return Record{}, fmt.Errorf("selecting checkout of order[%d]: %w", orderID, err)
	}
	return rec, nil
}
