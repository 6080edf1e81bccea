package addproduct

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/toast"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) CurrentUser(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockBackend) InsertProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

type toastRecorder struct {
	mu     sync.Mutex
	toasts []toast.Toast
}

func (r *toastRecorder) Notify(t toast.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *toastRecorder) last() toast.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toasts[len(r.toasts)-1]
}

type fixture struct {
	dialog  *Dialog
	backend *mockBackend
	toasts  *toastRecorder
	added   int
}

func newFixture() *fixture {
	f := &fixture{backend: new(mockBackend), toasts: &toastRecorder{}}
	f.dialog = New(f.backend, f.toasts, func(context.Context) { f.added++ }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

var alice = &domain.User{ID: "u1", Email: "alice@example.com"}

func validDraft() Draft {
	return Draft{
		Name:         "Desk Lamp",
		URL:          "https://shop.example.com/lamp",
		CurrentPrice: "24.99",
		ImageURL:     "",
		Category:     "  ",
	}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture()
	f.dialog.Open()
	f.dialog.SetDraft(validDraft())

	f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)
	f.backend.On("InsertProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.UserID == "u1" &&
			p.Name == "Desk Lamp" &&
			p.CurrentPrice.Equal(decimal.RequireFromString("24.99")) &&
			p.ImageURL == nil && p.Category == nil
	})).Return(&domain.Product{ID: "p1"}, nil).Once()

	require.NoError(t, f.dialog.Submit(context.Background()))

	state := f.dialog.State()
	assert.False(t, state.Open)
	assert.False(t, state.Submitting)
	assert.Equal(t, Draft{}, state.Draft)
	assert.Equal(t, 1, f.added)
	assert.Equal(t, "Success", f.toasts.last().Title)
	assert.Equal(t, "Product added to your tracker!", f.toasts.last().Description)
	assert.Equal(t, toast.VariantDefault, f.toasts.last().Variant)
	f.backend.AssertExpectations(t)
}

func TestSubmit_NotSignedIn(t *testing.T) {
	f := newFixture()
	f.dialog.Open()
	f.dialog.SetDraft(validDraft())
	f.backend.On("CurrentUser", mock.Anything).Return(nil, nil)

	err := f.dialog.Submit(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	assert.Equal(t, MsgNotSignedIn, f.toasts.last().Description)
	assert.Equal(t, toast.VariantDestructive, f.toasts.last().Variant)
	assert.True(t, f.dialog.State().Open)
	assert.Equal(t, validDraft(), f.dialog.Draft())
	f.backend.AssertNotCalled(t, "InsertProduct", mock.Anything, mock.Anything)
}

func TestSubmit_RejectsBadPrice(t *testing.T) {
	for _, price := range []string{"abc", "-1", "NaN", "Infinity", ""} {
		t.Run(price, func(t *testing.T) {
			f := newFixture()
			f.dialog.Open()
			draft := validDraft()
			draft.CurrentPrice = price
			f.dialog.SetDraft(draft)
			f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)

			err := f.dialog.Submit(context.Background())
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, f.toasts.last().Description, "current_price")
			assert.Equal(t, draft, f.dialog.Draft())
			assert.True(t, f.dialog.State().Open)
			f.backend.AssertNotCalled(t, "InsertProduct", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_RejectsBadURLs(t *testing.T) {
	f := newFixture()
	draft := validDraft()
	draft.URL = "not a url"
	draft.ImageURL = "also bad"
	f.dialog.SetDraft(draft)
	f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)

	err := f.dialog.Submit(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "url")
	assert.Contains(t, err.Error(), "image_url")
}

func TestSubmit_BackendFailure(t *testing.T) {
	f := newFixture()
	f.dialog.Open()
	f.dialog.SetDraft(validDraft())
	f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)
	f.backend.On("InsertProduct", mock.Anything, mock.Anything).Return(nil, errors.New("duplicate key value"))

	err := f.dialog.Submit(context.Background())
	require.Error(t, err)

	assert.Equal(t, "Error", f.toasts.last().Title)
	assert.Equal(t, "duplicate key value", f.toasts.last().Description)
	assert.True(t, f.dialog.State().Open)
	assert.Equal(t, validDraft(), f.dialog.Draft())
	assert.Zero(t, f.added)
}

func TestSubmit_KeepsOptionalFields(t *testing.T) {
	f := newFixture()
	draft := validDraft()
	draft.ImageURL = "https://cdn.example.com/lamp.jpg"
	draft.Category = "Home"
	f.dialog.SetDraft(draft)
	f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)
	f.backend.On("InsertProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ImageURL != nil && *p.ImageURL == draft.ImageURL && p.Category != nil && *p.Category == "Home"
	})).Return(&domain.Product{ID: "p1"}, nil)

	require.NoError(t, f.dialog.Submit(context.Background()))
}

func TestCloseKeepsDraft(t *testing.T) {
	f := newFixture()
	f.dialog.Open()
	f.dialog.SetDraft(validDraft())
	f.dialog.Close()

	assert.False(t, f.dialog.State().Open)
	assert.Equal(t, validDraft(), f.dialog.Draft())
}

func TestSubmit_KeepsDraftEditedDuringInsert(t *testing.T) {
	f := newFixture()
	f.dialog.Open()
	f.dialog.SetDraft(validDraft())

	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.On("CurrentUser", mock.Anything).Return(alice, nil)
	f.backend.On("InsertProduct", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&domain.Product{ID: "p1"}, nil).Once()

	done := make(chan error, 1)
	go func() { done <- f.dialog.Submit(context.Background()) }()
	<-started

	assert.ErrorIs(t, f.dialog.Submit(context.Background()), apperrors.ErrConflict)

	next := Draft{Name: "Desk Chair", URL: "https://shop.example.com/chair", CurrentPrice: "89.00"}
	f.dialog.SetDraft(next)
	close(release)
	require.NoError(t, <-done)

	state := f.dialog.State()
	assert.False(t, state.Open)
	assert.False(t, state.Submitting)
	assert.Equal(t, next, state.Draft)
	assert.Equal(t, 1, f.added)
	f.backend.AssertExpectations(t)
}
