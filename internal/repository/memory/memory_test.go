package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/repository"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

var (
	_ repository.ProductRepository      = (*ProductRepository)(nil)
	_ repository.PriceHistoryRepository = (*PriceHistoryRepository)(nil)
	_ repository.UserRepository         = (*UserRepository)(nil)
)

func seedUser(t *testing.T, s *Store) *domain.User {
	t.Helper()
	u := &domain.User{ID: "u1", Email: "alice@example.com", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func newProduct(id, userID, name string, created time.Time) *domain.Product {
	return &domain.Product{
		ID: id, UserID: userID, Name: name, URL: "https://shop.example.com/" + id,
		CurrentPrice: decimal.RequireFromString("10.00"),
		CreatedAt:    created, UpdatedAt: created,
	}
}

func TestProductRepository_ListOrdering(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo := s.Products()
	require.NoError(t, repo.Create(ctx, newProduct("a", u.ID, "Zeta", base)))
	require.NoError(t, repo.Create(ctx, newProduct("b", u.ID, "Alpha", base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newProduct("c", u.ID, "Mid", base.Add(2*time.Hour))))

	got, err := repo.List(ctx, domain.ProductQuery{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})

	got, err = repo.List(ctx, domain.ProductQuery{UserID: u.ID, OrderBy: domain.OrderByName, Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "Zeta", got[2].Name)

	other, err := repo.List(ctx, domain.ProductQuery{UserID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestProductRepository_CreateErrors(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()

	p := newProduct("a", u.ID, "Lamp", time.Now())
	require.NoError(t, s.Products().Create(ctx, p))
	assert.ErrorIs(t, s.Products().Create(ctx, p), apperrors.ErrAlreadyExists)
	assert.ErrorIs(t, s.Products().Create(ctx, newProduct("b", "ghost", "Lamp", time.Now())), apperrors.ErrInvalidInput)
}

func TestProductRepository_ReturnsCopies(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()

	p := newProduct("a", u.ID, "Lamp", time.Now())
	p.Category = domain.NullableString("Home")
	require.NoError(t, s.Products().Create(ctx, p))

	got, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	*got.Category = "Garden"
	got.Name = "changed"

	again, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", again.Name)
	assert.Equal(t, "Home", *again.Category)
}

func TestProductRepository_Update(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()
	require.NoError(t, s.Products().Create(ctx, newProduct("a", u.ID, "Lamp", time.Now())))

	wish := true
	got, err := s.Products().Update(ctx, "a", domain.ProductPatch{IsInWishlist: &wish})
	require.NoError(t, err)
	assert.True(t, got.IsInWishlist)

	_, err = s.Products().Update(ctx, "missing", domain.ProductPatch{IsInWishlist: &wish})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	neg := decimal.NewFromInt(-1)
	_, err = s.Products().Update(ctx, "a", domain.ProductPatch{CurrentPrice: &neg})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPriceHistoryRepository_AppendAndList(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()
	require.NoError(t, s.Products().Create(ctx, newProduct("a", u.ID, "Lamp", time.Now())))

	t1 := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	prices := []string{"12.00", "9.50", "11.25"}
	// appended out of order on purpose
	for i, idx := range []int{2, 0, 1} {
		_, err := s.PriceHistory().Append(ctx, &domain.PriceHistoryPoint{
			ID:         string(rune('x' + i)),
			ProductID:  "a",
			Price:      decimal.RequireFromString(prices[idx]),
			RecordedAt: t1.Add(time.Duration(idx) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	pts, err := s.PriceHistory().List(ctx, domain.HistoryQuery{ProductID: "a", Ascending: true})
	require.NoError(t, err)
	require.Len(t, pts, 3)
	for i := 1; i < len(pts); i++ {
		assert.True(t, pts[i-1].RecordedAt.Before(pts[i].RecordedAt))
	}

	p, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("11.25").Equal(p.CurrentPrice), "latest observation wins")

	_, err = s.PriceHistory().Append(ctx, &domain.PriceHistoryPoint{ID: "z", ProductID: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPriceHistoryRepository_AppendLatePointKeepsCurrentPrice(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s)
	ctx := context.Background()
	require.NoError(t, s.Products().Create(ctx, newProduct("a", u.ID, "Lamp", time.Now())))

	t1 := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := s.PriceHistory().Append(ctx, &domain.PriceHistoryPoint{
		ID: "new", ProductID: "a", Price: decimal.RequireFromString("20.00"), RecordedAt: t1,
	})
	require.NoError(t, err)

	got, err := s.PriceHistory().Append(ctx, &domain.PriceHistoryPoint{
		ID: "old", ProductID: "a", Price: decimal.RequireFromString("25.00"), RecordedAt: t1.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(got.CurrentPrice))
	assert.True(t, t1.Equal(got.UpdatedAt))

	pts, err := s.PriceHistory().List(ctx, domain.HistoryQuery{ProductID: "a", Ascending: true})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, "old", pts[0].ID)

	p, err := s.Products().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(p.CurrentPrice))
}

func TestUserRepository_EmailCaseInsensitive(t *testing.T) {
	s := NewStore()
	seedUser(t, s)
	ctx := context.Background()

	err := s.Users().Create(ctx, &domain.User{ID: "u2", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	got, err := s.Users().GetByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = s.Users().GetByID(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
