package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// Product ordering columns.
const (
	OrderByCreatedAt = "created_at"
	OrderByName      = "name"
	OrderByPrice     = "current_price"
)

// Product is one tracked product URL owned by a user.
type Product struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	ImageURL     *string         `json:"image_url"`
	Category     *string         `json:"category"`
	IsInWishlist bool            `json:"is_in_wishlist"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Validate enforces the product invariants: a non-empty name and URL, an
// owner and a non-negative current price.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return apperrors.InvalidInput("name is required")
	case strings.TrimSpace(p.URL) == "":
		return apperrors.InvalidInput("url is required")
	case p.UserID == "":
		return apperrors.InvalidInput("user_id is required")
	case p.CurrentPrice.IsNegative():
		return apperrors.InvalidInput("current_price must not be negative")
	}
	return nil
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	IsInWishlist *bool
	CurrentPrice *decimal.Decimal
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.IsInWishlist == nil && p.CurrentPrice == nil
}

// Validate rejects negative prices.
func (p ProductPatch) Validate() error {
	if p.IsEmpty() {
		return apperrors.InvalidInput("update has no fields")
	}
	if p.CurrentPrice != nil && p.CurrentPrice.IsNegative() {
		return apperrors.InvalidInput("current_price must not be negative")
	}
	return nil
}

// Apply copies the patched fields onto product.
func (p ProductPatch) Apply(product *Product) {
	if p.IsInWishlist != nil {
		product.IsInWishlist = *p.IsInWishlist
	}
	if p.CurrentPrice != nil {
		product.CurrentPrice = *p.CurrentPrice
	}
}

// ProductQuery scopes a product listing to one user.
type ProductQuery struct {
	UserID    string
	OrderBy   string
	Ascending bool
}

// IsValidOrderBy checks the ordering column against the allowed set. An empty
// value means the default (created_at).
func IsValidOrderBy(column string) bool {
	switch column {
	case "", OrderByCreatedAt, OrderByName, OrderByPrice:
		return true
	}
	return false
}

// NullableString maps blank text to nil so optional columns are stored as
// NULL rather than an empty string.
func NullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
