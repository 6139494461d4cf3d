package product

import "time"

// Product prices are integers in minor currency units.
type Product struct {
	ID             int64     `json:"id" db:"product_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	Price          int       `json:"price" db:"price"`
	FeaturedImage  string    `json:"featuredImage" db:"featured_image"`
	PrimaryImage   string    `json:"primaryImage" db:"primary_image"`
	SecondaryImage string    `json:"secondaryImage" db:"secondary_image"`
	DateAdded      time.Time `json:"dateAdded" db:"date_added"`
	DateModified   time.Time `json:"dateModified" db:"date_modified"`
}

type ProductNew struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description"`
	Price          int    `json:"price" validate:"gte=0,lte=100000000"`
	FeaturedImage  string `json:"featuredImage" validate:"omitempty,url"`
	PrimaryImage   string `json:"primaryImage" validate:"omitempty,url"`
	SecondaryImage string `json:"secondaryImage" validate:"omitempty,url"`
}
