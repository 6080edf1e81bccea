package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/toast"
)

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListPriceHistory(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PriceHistoryPoint), args.Error(1)
}

// funcBackend lets a test control each fetch.
type funcBackend func(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error)

func (f funcBackend) ListPriceHistory(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
	return f(ctx, q)
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

func (r *toastRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func threePoints() []domain.PriceHistoryPoint {
	t1 := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	return []domain.PriceHistoryPoint{
		{ID: "h1", ProductID: "p1", Price: decimal.RequireFromString("10.00"), RecordedAt: t1},
		{ID: "h2", ProductID: "p1", Price: decimal.RequireFromString("12.5"), RecordedAt: t1.Add(24 * time.Hour)},
		{ID: "h3", ProductID: "p1", Price: decimal.RequireFromString("11.25"), RecordedAt: t1.Add(48 * time.Hour)},
	}
}

func TestOpen_Ready(t *testing.T) {
	b := new(mockBackend)
	b.On("ListPriceHistory", mock.Anything, domain.HistoryQuery{ProductID: "p1", Ascending: true}).
		Return(threePoints(), nil).Once()
	d := New(b, &toastRecorder{}, discard())

	s := d.Open(context.Background(), "p1", "Desk Lamp")

	assert.True(t, s.Open)
	assert.Equal(t, StatusReady, s.Status)
	assert.Equal(t, "Desk Lamp", s.Title)
	assert.Equal(t, Description, s.Description)
	require.NotNil(t, s.Chart)
	require.Len(t, s.Chart.Points, 3)
	assert.Equal(t, Point{Date: "Jan 05", Price: 10, Tooltip: "$10.00"}, s.Chart.Points[0])
	assert.Equal(t, "Jan 06", s.Chart.Points[1].Date)
	assert.Equal(t, "$12.50", s.Chart.Points[1].Tooltip)
	assert.Equal(t, "Jan 07", s.Chart.Points[2].Date)
	b.AssertExpectations(t)
}

func TestOpen_Empty(t *testing.T) {
	b := new(mockBackend)
	b.On("ListPriceHistory", mock.Anything, mock.Anything).Return([]domain.PriceHistoryPoint{}, nil)
	d := New(b, &toastRecorder{}, discard())

	s := d.Open(context.Background(), "p1", "Desk Lamp")
	assert.Equal(t, StatusEmpty, s.Status)
	assert.Equal(t, EmptyText, s.Message)
	assert.Nil(t, s.Chart)
}

func TestOpen_EmptyIDDoesNotFetch(t *testing.T) {
	b := new(mockBackend)
	d := New(b, &toastRecorder{}, discard())

	s := d.Open(context.Background(), "", "")
	assert.True(t, s.Open)
	assert.Equal(t, StatusEmpty, s.Status)
	b.AssertNotCalled(t, "ListPriceHistory", mock.Anything, mock.Anything)
}

func TestOpen_FailureIsLoggedAndToasted(t *testing.T) {
	b := new(mockBackend)
	b.On("ListPriceHistory", mock.Anything, mock.Anything).Return(nil, errors.New("permission denied"))
	toasts := &toastRecorder{}
	d := New(b, toasts, discard())

	s := d.Open(context.Background(), "p1", "Desk Lamp")
	assert.Equal(t, StatusEmpty, s.Status)
	require.Equal(t, 1, toasts.len())
	assert.Equal(t, toast.VariantDestructive, toasts.toasts[0].Variant)
	assert.Contains(t, toasts.toasts[0].Description, "permission denied")
}

func TestReopenRefetches(t *testing.T) {
	b := new(mockBackend)
	b.On("ListPriceHistory", mock.Anything, mock.Anything).Return(threePoints(), nil).Twice()
	d := New(b, &toastRecorder{}, discard())

	d.Open(context.Background(), "p1", "Desk Lamp")
	d.Close()
	assert.False(t, d.State().Open)
	assert.Nil(t, d.State().Chart)

	d.Open(context.Background(), "p1", "Desk Lamp")
	b.AssertNumberOfCalls(t, "ListPriceHistory", 2)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	toasts := &toastRecorder{}
	backend := funcBackend(func(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
		if q.ProductID == "slow" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return threePoints(), nil
	})
	d := New(backend, toasts, discard())

	done := make(chan State)
	go func() { done <- d.Open(context.Background(), "slow", "Slow Product") }()
	<-started

	fast := d.Open(context.Background(), "p1", "Desk Lamp")
	assert.Equal(t, StatusReady, fast.Status)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}

	s := d.State()
	assert.Equal(t, "p1", s.ProductID)
	assert.Equal(t, StatusReady, s.Status)
	assert.Zero(t, toasts.len(), "superseded fetch must not raise a toast")
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := funcBackend(func(ctx context.Context, q domain.HistoryQuery) ([]domain.PriceHistoryPoint, error) {
		close(started)
		<-release
		return threePoints(), nil
	})
	d := New(backend, &toastRecorder{}, discard())

	done := make(chan struct{})
	go func() {
		d.Open(context.Background(), "p1", "Desk Lamp")
		close(done)
	}()
	<-started
	genBefore := d.Generation()
	d.Close()
	close(release)
	<-done

	assert.Greater(t, d.Generation(), genBefore)
	assert.False(t, d.State().Open)
	assert.Nil(t, d.State().Chart)
}

func TestBuildChart_YTicks(t *testing.T) {
	c := BuildChart(threePoints())
	labels := make([]string, 0, len(c.YTicks))
	for _, tk := range c.YTicks {
		labels = append(labels, tk.Label)
	}
	assert.Equal(t, []string{"$10", "$11", "$12", "$13"}, labels)
}

func TestBuildChart_SinglePoint(t *testing.T) {
	c := BuildChart(threePoints()[:1])
	require.Len(t, c.Points, 1)
	assert.NotEmpty(t, c.YTicks)
	assert.LessOrEqual(t, c.YTicks[0].Value, 10.0)
	assert.GreaterOrEqual(t, c.YTicks[len(c.YTicks)-1].Value, 10.0)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "$12.5", FormatTick(12.5))
	assert.Equal(t, "$12.50", FormatTooltip(12.5))
	assert.Equal(t, "Dec 31", FormatDate(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
}
