// Package backend is the remote data client boundary of the view layer:
// authentication, product and price history persistence, and realtime change
// notification. Views depend on Client only; Service is the production
// implementation.
package backend

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/pkg/middleware"
)

// ChangeHandler receives realtime change events.
type ChangeHandler func(domain.ChangeEvent)

// Subscription is an active realtime change stream.
type Subscription interface {
	Unsubscribe()
}

// Credentials are the email and password of the hosted auth flow.
type Credentials struct {
	Email    string
	Password string
}

// AuthClient resolves and manages the session of the calling user.
type AuthClient interface {
	// CurrentUser returns the signed-in user, or nil when the context carries
	// no valid session.
	CurrentUser(ctx context.Context) (*domain.User, error)
	SignOut(ctx context.Context) error
	SignUp(ctx context.Context, creds Credentials) (*domain.Session, error)
	SignIn(ctx context.Context, creds Credentials) (*domain.Session, error)
}

// Data reads and writes the products and price_history collections.
type Data interface {
	ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error)
	InsertProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error
	ListPriceHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.PriceHistoryPoint, error)
	RecordPrice(ctx context.Context, productID string, price decimal.Decimal, at time.Time) error
}

// Realtime subscribes to row changes of a collection.
type Realtime interface {
	Subscribe(ctx context.Context, collection string, mask domain.EventMask, handler ChangeHandler) (Subscription, error)
}

// Client is the full data client handed to the view layer.
type Client interface {
	AuthClient
	Data
	Realtime
}

// DetachSession returns a background context carrying the session of ctx, for
// work that outlives the request which started it.
func DetachSession(ctx context.Context) context.Context {
	return middleware.WithClaims(context.Background(), middleware.ClaimsFromContext(ctx))
}
