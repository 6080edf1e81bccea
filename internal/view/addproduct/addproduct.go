// Package addproduct implements the add-product dialog: a draft form whose
// submission inserts one product for the signed-in user.
package addproduct

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/toast"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/validator"
)

// Toast texts.
const (
	MsgNotSignedIn    = "You must be logged in to add products"
	MsgAddedTitle     = "Success"
	MsgAddedDetail    = "Product added to your tracker!"
	msgAlreadyRunning = "a submission is already in progress"
)

// Draft holds the form fields as typed.
type Draft struct {
	Name         string `json:"name" validate:"required"`
	URL          string `json:"url" validate:"required,url"`
	CurrentPrice string `json:"current_price" validate:"required,price"`
	ImageURL     string `json:"image_url" validate:"omitempty,url"`
	Category     string `json:"category"`
}

// Backend is what the dialog needs from the data client.
type Backend interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
	InsertProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
}

// State is a snapshot of the dialog.
type State struct {
	Open       bool  `json:"open"`
	Submitting bool  `json:"submitting"`
	Draft      Draft `json:"draft"`
}

// Dialog is the add-product dialog of one dashboard.
type Dialog struct {
	backend        Backend
	notifier       toast.Notifier
	onProductAdded func(ctx context.Context)
	logger         *slog.Logger

	mu         sync.Mutex
	open       bool
	submitting bool
	draft      Draft
}

// New creates a closed dialog with an empty draft. onProductAdded runs after
// every successful insert.
func New(backend Backend, notifier toast.Notifier, onProductAdded func(ctx context.Context), logger *slog.Logger) *Dialog {
	return &Dialog{
		backend:        backend,
		notifier:       notifier,
		onProductAdded: onProductAdded,
		logger:         logger,
	}
}

// Open shows the dialog.
func (d *Dialog) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
}

// Close hides the dialog. The draft is kept.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
}

// SetDraft replaces the draft.
func (d *Dialog) SetDraft(draft Draft) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draft = draft
}

// Draft returns the current draft.
func (d *Dialog) Draft() Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draft
}

// State returns a snapshot of the dialog.
func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Open: d.open, Submitting: d.submitting, Draft: d.draft}
}

// Submit inserts the draft as a product. Every failure is reported as a
// destructive toast and leaves the dialog and draft as they were; the error
// is returned as well for the transport layer.
func (d *Dialog) Submit(ctx context.Context) error {
	d.mu.Lock()
	if d.submitting {
		d.mu.Unlock()
		return apperrors.Conflict(msgAlreadyRunning)
	}
	d.submitting = true
	draft := d.draft
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.submitting = false
		d.mu.Unlock()
	}()

	user, err := d.backend.CurrentUser(ctx)
	if err != nil {
		return d.fail(ctx, err)
	}
	if user == nil {
		d.notifier.Notify(toast.Error(MsgNotSignedIn))
		return apperrors.Unauthorized(MsgNotSignedIn)
	}

	product, err := draft.toProduct(user.ID)
	if err != nil {
		return d.fail(ctx, err)
	}

	if _, err := d.backend.InsertProduct(ctx, product); err != nil {
		return d.fail(ctx, err)
	}

	d.notifier.Notify(toast.Info(MsgAddedTitle, MsgAddedDetail))

	d.mu.Lock()
	// edits made while the insert was in flight are kept
	if d.draft == draft {
		d.draft = Draft{}
	}
	d.open = false
	d.mu.Unlock()

	if d.onProductAdded != nil {
		d.onProductAdded(ctx)
	}
	return nil
}

func (d *Dialog) fail(ctx context.Context, err error) error {
	d.logger.WarnContext(ctx, "add product failed", slog.String("error", err.Error()))
	d.notifier.Notify(toast.Error(apperrors.Message(err)))
	return err
}

// toProduct validates the draft and converts it. Blank optional fields become
// NULL.
func (dr Draft) toProduct(userID string) (*domain.Product, error) {
	trimmed := Draft{
		Name:         strings.TrimSpace(dr.Name),
		URL:          strings.TrimSpace(dr.URL),
		CurrentPrice: strings.TrimSpace(dr.CurrentPrice),
		ImageURL:     strings.TrimSpace(dr.ImageURL),
		Category:     strings.TrimSpace(dr.Category),
	}
	if err := validator.Validate(trimmed); err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			return nil, apperrors.InvalidInput(valErr.Error())
		}
		return nil, apperrors.InvalidInput(err.Error())
	}

	price, err := validator.ParsePrice(trimmed.CurrentPrice)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	return &domain.Product{
		UserID:       userID,
		Name:         trimmed.Name,
		URL:          trimmed.URL,
		CurrentPrice: price,
		ImageURL:     domain.NullableString(trimmed.ImageURL),
		Category:     domain.NullableString(trimmed.Category),
	}, nil
}
