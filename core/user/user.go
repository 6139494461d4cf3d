package user

import (
	"time"

	"github.com/irsalhamdi/storefront/core/claims"
)

type User struct {
	ID           int64      `json:"id" db:"user_id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Credits      int        `json:"credits" db:"credits"`
	Admin        bool       `json:"admin" db:"is_admin"`
	DateJoined   time.Time  `json:"dateJoined" db:"date_joined"`
	DateModified time.Time  `json:"dateModified" db:"date_modified"`
	LastPurchase *time.Time `json:"lastPurchase,omitempty" db:"last_purchase"`
}

func (u User) Role() string {
	return claims.RoleFor(u.Admin)
}

type UserSignup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type UserLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
