package order

import "time"

type Status string

const (
	Pending   Status = "pending"
	Paid      Status = "paid"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

type Order struct {
	ID             int64     `json:"id" db:"order_id"`
	UserID         int64     `json:"userId" db:"user_id"`
	IdempotencyKey string    `json:"idempotencyKey" db:"idempotency_key"`
	Status         Status    `json:"status" db:"status"`
	TotalPrice     int       `json:"totalPrice" db:"total_price"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
	Items          []Item    `json:"items" db:"-"`
}

// Item captures the unit price at purchase time; it is never re-read from
// the catalog.
type Item struct {
	ID        int64 `json:"id" db:"order_item_id"`
	OrderID   int64 `json:"orderId" db:"order_id"`
	ProductID int64 `json:"productId" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
	UnitPrice int   `json:"unitPrice" db:"unit_price"`
}

func (it Item) Total() int {
	return it.Quantity * it.UnitPrice
}

// ItemsTotal is the sum of quantity times unit price over the items. For a
// persisted order it equals TotalPrice.
func (o Order) ItemsTotal() int {
	var tot int
	for _, it := range o.Items {
		tot += it.Total()
	}
	return tot
}
