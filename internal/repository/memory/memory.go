// Package memory provides in-process repositories used by the memory backend
// driver and by tests. All repositories created from one Store share a lock,
// so a history append and the product price update are atomic together.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/PriceTracker/internal/domain"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// Store holds the tables.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	history  map[string][]domain.PriceHistoryPoint
	users    map[string]domain.User
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		history:  make(map[string][]domain.PriceHistoryPoint),
		users:    make(map[string]domain.User),
	}
}

// Products returns a product repository over the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// PriceHistory returns a price history repository over the store.
func (s *Store) PriceHistory() *PriceHistoryRepository { return &PriceHistoryRepository{s: s} }

// Users returns a user repository over the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// ProductRepository implements repository.ProductRepository in memory.
type ProductRepository struct {
	s *Store
}

// Create inserts a product.
func (r *ProductRepository) Create(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[p.ID]; ok {
		return apperrors.AlreadyExists("product", "id", p.ID)
	}
	if _, ok := r.s.users[p.UserID]; !ok {
		return apperrors.InvalidInput("user does not exist")
	}
	r.s.products[p.ID] = cloneProduct(*p)
	return nil
}

// GetByID retrieves a product.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	out := cloneProduct(p)
	return &out, nil
}

// List returns the products of one user.
func (r *ProductRepository) List(_ context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	if !domain.IsValidOrderBy(q.OrderBy) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cannot order products by %q", q.OrderBy))
	}

	r.s.mu.RLock()
	out := make([]domain.Product, 0)
	for _, p := range r.s.products {
		if p.UserID == q.UserID {
			out = append(out, cloneProduct(p))
		}
	}
	r.s.mu.RUnlock()

	less := productLess(q.OrderBy)
	sort.SliceStable(out, func(i, j int) bool {
		if q.Ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out, nil
}

// Update applies a partial update.
func (r *ProductRepository) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	patch.Apply(&p)
	p.UpdatedAt = time.Now().UTC()
	r.s.products[id] = p

	out := cloneProduct(p)
	return &out, nil
}

// productLess orders by the requested column with the id as tie-breaker,
// matching the SQL adapter.
func productLess(orderBy string) func(a, b domain.Product) bool {
	return func(a, b domain.Product) bool {
		switch orderBy {
		case domain.OrderByName:
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c < 0
			}
		case domain.OrderByPrice:
			if c := a.CurrentPrice.Cmp(b.CurrentPrice); c != 0 {
				return c < 0
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
}

func cloneProduct(p domain.Product) domain.Product {
	if p.ImageURL != nil {
		v := *p.ImageURL
		p.ImageURL = &v
	}
	if p.Category != nil {
		v := *p.Category
		p.Category = &v
	}
	return p
}

// PriceHistoryRepository implements repository.PriceHistoryRepository in memory.
type PriceHistoryRepository struct {
	s *Store
}

// List returns the points of one product ordered by recorded_at.
func (r *PriceHistoryRepository) List(_ context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
	r.s.mu.RLock()
	out := append(make([]domain.PriceHistoryPoint, 0, len(r.s.history[q.ProductID])), r.s.history[q.ProductID]...)
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			if q.Ascending {
				return a.RecordedAt.Before(b.RecordedAt)
			}
			return a.RecordedAt.After(b.RecordedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Append stores a point and moves the product's current price to it.
func (r *PriceHistoryRepository) Append(_ context.Context, pt *domain.PriceHistoryPoint) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[pt.ProductID]
	if !ok {
		return nil, apperrors.NotFound("product", pt.ProductID)
	}
	newest := true
	for _, existing := range r.s.history[pt.ProductID] {
		if existing.RecordedAt.After(pt.RecordedAt) {
			newest = false
			break
		}
	}
	r.s.history[pt.ProductID] = append(r.s.history[pt.ProductID], *pt)

	// a late observation is history only
	if newest {
		p.CurrentPrice = pt.Price
		p.UpdatedAt = pt.RecordedAt
		r.s.products[p.ID] = p
	}

	out := cloneProduct(p)
	return &out, nil
}

// UserRepository implements repository.UserRepository in memory.
type UserRepository struct {
	s *Store
}

// Create inserts a user. Emails are compared case-insensitively.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

// GetByID retrieves a user.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user", email)
}
