// Package history implements the price history dialog: it fetches the
// recorded prices of one product and shapes them into chart data.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/toast"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// Dialog texts.
const (
	Description  = "Price history over time"
	LoadingText  = "Loading history..."
	EmptyText    = "No price history available"
	TooltipLabel = "Price"
)

// Status of the dialog body.
type Status string

// Statuses.
const (
	StatusLoading Status = "loading"
	StatusEmpty   Status = "empty"
	StatusReady   Status = "ready"
)

// Backend is what the dialog needs from the data client.
type Backend interface {
	ListPriceHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.PriceHistoryPoint, error)
}

// State is a snapshot of the dialog.
type State struct {
	Open        bool   `json:"open"`
	ProductID   string `json:"product_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	Chart       *Chart `json:"chart,omitempty"`
}

// Dialog is the controlled history dialog of one dashboard. Every Open bumps
// a generation counter and cancels the fetch of the previous generation; a
// fetch result is applied only while its generation is current.
type Dialog struct {
	backend  Backend
	notifier toast.Notifier
	logger   *slog.Logger

	mu         sync.Mutex
	open       bool
	productID  string
	name       string
	status     Status
	chart      *Chart
	generation uint64
	cancel     context.CancelFunc
}

// New creates a closed dialog.
func New(backend Backend, notifier toast.Notifier, logger *slog.Logger) *Dialog {
	return &Dialog{backend: backend, notifier: notifier, logger: logger}
}

// Open shows the history of a product and fetches it. It returns once the
// fetch finished or was superseded. An empty productID opens the dialog
// without fetching.
func (d *Dialog) Open(ctx context.Context, productID, productName string) State {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.generation++
	gen := d.generation
	d.open = true
	d.productID = productID
	d.name = productName
	d.chart = nil

	if productID == "" {
		d.status = StatusEmpty
		state := d.stateLocked()
		d.mu.Unlock()
		return state
	}

	d.status = StatusLoading
	fetchCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	points, err := d.backend.ListPriceHistory(fetchCtx, domain.HistoryQuery{ProductID: productID, Ascending: true})

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		// superseded by a later Open or Close
		return d.stateLocked()
	}
	d.cancel = nil

	switch {
	case err != nil:
		d.status = StatusEmpty
		d.reportFailure(ctx, productID, err)
	case len(points) == 0:
		d.status = StatusEmpty
	default:
		d.status = StatusReady
		d.chart = BuildChart(points)
	}
	return d.stateLocked()
}

// reportFailure logs the error and raises a destructive toast. Cancellation
// of the caller's own context is not reported.
func (d *Dialog) reportFailure(ctx context.Context, productID string, err error) {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	d.logger.ErrorContext(ctx, "error loading price history",
		slog.String("product_id", productID),
		slog.String("error", err.Error()),
	)
	d.notifier.Notify(toast.Error(fmt.Sprintf("Could not load price history: %s", apperrors.Message(err))))
}

// Close hides the dialog, discards the history and abandons any fetch.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.generation++
	d.open = false
	d.productID = ""
	d.name = ""
	d.status = ""
	d.chart = nil
}

// State returns a snapshot of the dialog.
func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Generation returns the current generation.
func (d *Dialog) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

func (d *Dialog) stateLocked() State {
	if !d.open {
		return State{}
	}
	s := State{
		Open:        true,
		ProductID:   d.productID,
		Title:       d.name,
		Description: Description,
		Status:      d.status,
		Chart:       d.chart,
	}
	switch d.status {
	case StatusLoading:
		s.Message = LoadingText
	case StatusEmpty:
		s.Message = EmptyText
	}
	return s
}
