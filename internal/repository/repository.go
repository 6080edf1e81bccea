package repository

import (
	"context"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// ProductRepository defines product persistence operations.
type ProductRepository interface {
	// Create inserts a product. ID and timestamps must already be set.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// List returns the products of one user in the requested order.
	List(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error)

	// Update applies a partial update and returns the updated product.
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
}

// PriceHistoryRepository defines price history persistence operations.
type PriceHistoryRepository interface {
	// List returns the history of one product ordered by recorded_at.
	List(ctx context.Context, query domain.HistoryQuery) ([]domain.PriceHistoryPoint, error)

	// Append stores a point and sets it as the product's current price in one
	// unit of work. It returns the updated product.
	Append(ctx context.Context, point *domain.PriceHistoryPoint) (*domain.Product, error)
}

// UserRepository defines user persistence operations.
type UserRepository interface {
	// Create inserts a new user. Emails are unique case-insensitively.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
