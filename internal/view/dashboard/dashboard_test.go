package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/PriceTracker/internal/backend"
	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/card"
	"github.com/utafrali/PriceTracker/internal/view/history"
	"github.com/utafrali/PriceTracker/internal/view/toast"
	"github.com/utafrali/PriceTracker/pkg/middleware"
)

// --- Mock Client ---

type mockClient struct {
	mock.Mock

	mu      sync.Mutex
	handler backend.ChangeHandler
}

var _ backend.Client = (*mockClient)(nil)

func (m *mockClient) CurrentUser(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockClient) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockClient) SignUp(ctx context.Context, creds backend.Credentials) (*domain.Session, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockClient) SignIn(ctx context.Context, creds backend.Credentials) (*domain.Session, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockClient) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockClient) InsertProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockClient) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *mockClient) ListPriceHistory(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PriceHistoryPoint), args.Error(1)
}

func (m *mockClient) RecordPrice(ctx context.Context, productID string, price decimal.Decimal, at time.Time) error {
	return m.Called(ctx, productID, price, at).Error(0)
}

func (m *mockClient) Subscribe(ctx context.Context, collection string, mask domain.EventMask, handler backend.ChangeHandler) (backend.Subscription, error) {
	args := m.Called(ctx, collection, mask)
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(backend.Subscription), args.Error(1)
}

func (m *mockClient) emit(e domain.ChangeEvent) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h(e)
}

type fakeSubscription struct {
	unsubscribed atomic.Int32
}

func (s *fakeSubscription) Unsubscribe() { s.unsubscribed.Add(1) }

// --- Fixture ---

var alice = &domain.User{ID: "u1", Email: "alice@example.com"}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func aliceCtx() context.Context {
	return middleware.WithClaims(context.Background(), &middleware.Claims{UserID: alice.ID, TokenID: "jti-1"})
}

func product(id, name string, wish bool) domain.Product {
	return domain.Product{
		ID: id, UserID: alice.ID, Name: name, URL: "https://shop.example.com/" + id,
		CurrentPrice: decimal.RequireFromString("10.00"), IsInWishlist: wish,
	}
}

var listQuery = domain.ProductQuery{UserID: alice.ID, OrderBy: domain.OrderByCreatedAt}

func mountedDashboard(t *testing.T, client *mockClient, products []domain.Product, opts Options) (*Dashboard, *fakeSubscription) {
	t.Helper()
	sub := &fakeSubscription{}
	client.On("CurrentUser", mock.Anything).Return(alice, nil)
	client.On("Subscribe", mock.Anything, domain.CollectionProducts, domain.EventAll).Return(sub, nil).Once()
	client.On("ListProducts", mock.Anything, listQuery).Return(products, nil).Once()

	d := New(client, opts, discard())
	require.NoError(t, d.Mount(aliceCtx()))
	t.Cleanup(d.Unmount)
	return d, sub
}

func collectToasts(d *Dashboard) func() []toast.Toast {
	return func() []toast.Toast { return d.Toasts().Recent() }
}

// --- Tests ---

func TestMount_LoadsAndSplitsWishlist(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", true), product("2", "Chair", false)}, Options{})

	v := d.View()
	assert.False(t, v.Loading)
	assert.Equal(t, 2, v.All.Count)
	assert.Equal(t, 1, v.Wishlist.Count)
	assert.Equal(t, "1", v.Wishlist.Cards[0].ID)
	assert.Equal(t, "1", v.All.Cards[0].ID, "backend order is kept")
	assert.Nil(t, v.All.Empty)
	assert.Equal(t, alice.ID, d.UserID())
	client.AssertExpectations(t)
}

func TestMount_NoUser(t *testing.T) {
	client := new(mockClient)
	client.On("CurrentUser", mock.Anything).Return(nil, nil)
	d := New(client, Options{}, discard())

	require.NoError(t, d.Mount(context.Background()))
	defer d.Unmount()

	v := d.View()
	assert.False(t, v.Loading)
	assert.Zero(t, v.All.Count)
	require.NotNil(t, v.All.Empty)
	assert.Equal(t, EmptyAllTitle, v.All.Empty.Title)
	assert.Equal(t, EmptyWishlistTitle, v.Wishlist.Empty.Title)
	client.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestMount_LoadFailureToasts(t *testing.T) {
	client := new(mockClient)
	client.On("CurrentUser", mock.Anything).Return(alice, nil)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(&fakeSubscription{}, nil)
	client.On("ListProducts", mock.Anything, mock.Anything).Return(nil, errors.New("relation does not exist"))

	d := New(client, Options{}, discard())
	require.NoError(t, d.Mount(aliceCtx()))
	defer d.Unmount()

	toasts := d.Toasts().Recent()
	require.Len(t, toasts, 1)
	assert.Equal(t, "relation does not exist", toasts[0].Description)
	assert.Equal(t, toast.VariantDestructive, toasts[0].Variant)
	assert.False(t, d.View().Loading)
}

func TestToggleWishlist_SendsOneUpdateAndLeavesListAlone(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", true), product("2", "Chair", false)}, Options{})

	want := true
	client.On("UpdateProduct", mock.Anything, "2", domain.ProductPatch{IsInWishlist: &want}).Return(nil).Once()

	require.NoError(t, d.ToggleWishlist(aliceCtx(), "2"))
	client.AssertNumberOfCalls(t, "UpdateProduct", 1)

	assert.Equal(t, 1, d.View().Wishlist.Count, "no optimistic update")
	last := collectToasts(d)()
	assert.Equal(t, MsgAddedToWishlist, last[len(last)-1].Title)
	assert.Equal(t, "Chair", last[len(last)-1].Description)

	// the next reload moves it into the wishlist
	client.On("ListProducts", mock.Anything, listQuery).
		Return([]domain.Product{product("1", "Lamp", true), product("2", "Chair", true)}, nil).Once()
	d.Reload(aliceCtx())
	assert.Equal(t, 2, d.View().Wishlist.Count)
}

func TestToggleWishlist_Remove(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", true)}, Options{})

	client.On("UpdateProduct", mock.Anything, "1", mock.MatchedBy(func(p domain.ProductPatch) bool {
		return p.IsInWishlist != nil && !*p.IsInWishlist
	})).Return(nil).Once()

	require.NoError(t, d.ToggleWishlist(aliceCtx(), "1"))
	toasts := d.Toasts().Recent()
	assert.Equal(t, MsgRemovedFromWish, toasts[len(toasts)-1].Title)
}

func TestToggleWishlist_UnknownIDIsNoop(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{})

	require.NoError(t, d.ToggleWishlist(aliceCtx(), "missing"))
	client.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, d.Toasts().Recent())
}

func TestToggleWishlist_Failure(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{})
	client.On("UpdateProduct", mock.Anything, "1", mock.Anything).Return(errors.New("row level security"))

	assert.Error(t, d.ToggleWishlist(aliceCtx(), "1"))
	toasts := d.Toasts().Recent()
	require.Len(t, toasts, 1)
	assert.Equal(t, "Error", toasts[0].Title)
	assert.Equal(t, "row level security", toasts[0].Description)
	assert.False(t, d.View().All.Cards[0].Heart.Filled)
}

func TestCardIntentsReachDashboard(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{})
	client.On("UpdateProduct", mock.Anything, "1", mock.Anything).Return(nil).Once()

	c, ok := d.Card("1")
	require.True(t, ok)
	c.ToggleWishlist(aliceCtx())
	client.AssertNumberOfCalls(t, "UpdateProduct", 1)
}

func TestViewHistory(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{})

	_, ok := d.ViewHistory(aliceCtx(), "missing")
	assert.False(t, ok)
	assert.False(t, d.View().History.Open)

	client.On("ListPriceHistory", mock.Anything, domain.HistoryQuery{ProductID: "1", Ascending: true}).
		Return([]domain.PriceHistoryPoint{}, nil).Once()
	state, ok := d.ViewHistory(aliceCtx(), "1")
	require.True(t, ok)
	assert.True(t, state.Open)
	assert.Equal(t, "Lamp", state.Title)
	assert.Equal(t, history.StatusEmpty, state.Status)

	d.CloseHistory()
	assert.False(t, d.View().History.Open)
}

func TestImageFailedSurvivesReload(t *testing.T) {
	client := new(mockClient)
	p := product("1", "Lamp", false)
	img := "https://cdn.example.com/lamp.jpg"
	p.ImageURL = &img
	d, _ := mountedDashboard(t, client, []domain.Product{p}, Options{})

	assert.Equal(t, img, d.View().All.Cards[0].Image.Src)
	d.ImageFailed("1")
	d.ImageFailed("unknown")

	client.On("ListProducts", mock.Anything, listQuery).Return([]domain.Product{p}, nil).Once()
	d.Reload(aliceCtx())
	assert.Equal(t, card.PlaceholderText, d.View().All.Cards[0].Image.Placeholder)
}

type failingChecker struct{ calls atomic.Int32 }

func (f *failingChecker) Check(context.Context, string) error {
	f.calls.Add(1)
	return errors.New("404")
}

func TestImageCheckerRunsOncePerCard(t *testing.T) {
	client := new(mockClient)
	p := product("1", "Lamp", false)
	img := "https://cdn.example.com/lamp.jpg"
	p.ImageURL = &img
	checker := &failingChecker{}
	d, _ := mountedDashboard(t, client, []domain.Product{p}, Options{ImageChecker: checker})

	assert.Eventually(t, func() bool {
		return d.View().All.Cards[0].Image.Placeholder == card.PlaceholderText
	}, time.Second, 5*time.Millisecond)

	client.On("ListProducts", mock.Anything, listQuery).Return([]domain.Product{p}, nil).Once()
	d.Reload(aliceCtx())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestRealtimeBurstYieldsOneReload(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{ReloadDebounce: 30 * time.Millisecond})

	reloaded := make(chan struct{}, 4)
	client.On("ListProducts", mock.Anything, listQuery).
		Return([]domain.Product{product("1", "Lamp", false), product("2", "Chair", false)}, nil).
		Run(func(mock.Arguments) { reloaded <- struct{}{} })

	changes, cancel := d.ListChanges()
	defer cancel()

	for i := 0; i < 5; i++ {
		client.emit(domain.ChangeEvent{Collection: domain.CollectionProducts, Type: domain.ChangeUpdate, RecordID: "1"})
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after change events")
	}
	<-changes
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, reloaded, 0, "burst must collapse into one reload")
	assert.Equal(t, 2, d.View().All.Count)
}

func TestUnmount(t *testing.T) {
	client := new(mockClient)
	d, sub := mountedDashboard(t, client, nil, Options{ReloadDebounce: time.Hour})

	changes, _ := d.ListChanges()
	toasts, _ := d.Toasts().Subscribe()
	client.emit(domain.ChangeEvent{Collection: domain.CollectionProducts, Type: domain.ChangeInsert})

	d.Unmount()
	d.Unmount()

	assert.Equal(t, int32(1), sub.unsubscribed.Load())
	_, open := <-changes
	assert.False(t, open)
	_, open = <-toasts
	assert.False(t, open)

	// events after unmount are ignored
	client.emit(domain.ChangeEvent{Collection: domain.CollectionProducts, Type: domain.ChangeInsert})
	client.AssertNumberOfCalls(t, "ListProducts", 1)
}

func TestStaleReloadIsDropped(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, []domain.Product{product("1", "Lamp", false)}, Options{})

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	client.On("ListProducts", mock.Anything, listQuery).
		Return([]domain.Product{product("old", "Old", false)}, nil).
		Run(func(mock.Arguments) { close(slowStarted); <-releaseSlow }).Once()
	client.On("ListProducts", mock.Anything, listQuery).
		Return([]domain.Product{product("new", "New", false)}, nil).Once()

	done := make(chan struct{})
	go func() {
		d.Reload(aliceCtx())
		close(done)
	}()
	<-slowStarted
	d.Reload(aliceCtx())
	close(releaseSlow)
	<-done

	v := d.View()
	require.Equal(t, 1, v.All.Count)
	assert.Equal(t, "new", v.All.Cards[0].ID)
}

func TestReloadRacesListenerCancel(t *testing.T) {
	client := new(mockClient)
	d, _ := mountedDashboard(t, client, nil, Options{})
	client.On("ListProducts", mock.Anything, listQuery).Return([]domain.Product{product("1", "Lamp", false)}, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.Reload(aliceCtx())
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, cancel := d.ListChanges()
					cancel()
				}
			}
		}()
	}

	time.Sleep(300 * time.Millisecond)
	// unmounting closes the remaining listeners while reloads are still running
	d.Unmount()
	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestMountAfterUnmountFails(t *testing.T) {
	client := new(mockClient)
	d, sub := mountedDashboard(t, client, nil, Options{})

	d.Unmount()
	assert.ErrorIs(t, d.Mount(aliceCtx()), ErrUnmounted)
	assert.Equal(t, int32(1), sub.unsubscribed.Load())
	client.AssertNumberOfCalls(t, "Subscribe", 1)

	fresh := New(client, Options{}, discard())
	fresh.Unmount()
	assert.ErrorIs(t, fresh.Mount(aliceCtx()), ErrUnmounted)
}

func TestUnmountDuringMountReleasesSubscription(t *testing.T) {
	client := new(mockClient)
	sub := &fakeSubscription{}
	d := New(client, Options{}, discard())
	client.On("CurrentUser", mock.Anything).Return(alice, nil)
	client.On("Subscribe", mock.Anything, domain.CollectionProducts, domain.EventAll).
		Run(func(mock.Arguments) { d.Unmount() }).
		Return(sub, nil).Once()

	assert.ErrorIs(t, d.Mount(aliceCtx()), ErrUnmounted)
	assert.Equal(t, int32(1), sub.unsubscribed.Load())
	client.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
}
