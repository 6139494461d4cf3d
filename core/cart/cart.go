package cart

// Item is a persisted cart row. (UserID, ProductID) is unique.
type Item struct {
	ID        int64 `json:"id" db:"cart_item_id"`
	UserID    int64 `json:"-" db:"user_id"`
	ProductID int64 `json:"productId" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
}

// Line is a cart row joined with the live catalog name and price.
type Line struct {
	ItemID    int64  `json:"-" db:"cart_item_id"`
	ProductID int64  `json:"productId" db:"product_id"`
	Name      string `json:"name" db:"name"`
	Price     int    `json:"price" db:"price"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

func (l Line) Total() int {
	return l.Price * l.Quantity
}

type Cart struct {
	Lines []Line `json:"items"`
	Total int    `json:"total"`
}

func New(lines []Line) Cart {
	if lines == nil {
		lines = []Line{}
	}
	return Cart{Lines: lines, Total: Total(lines)}
}

// Total sums price times quantity over the lines.
func Total(lines []Line) int {
	var tot int
	for _, l := range lines {
		tot += l.Total()
	}
	return tot
}

type ItemNew struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,gte=1,lte=1000"`
}
