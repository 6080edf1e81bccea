// Package dashboard coordinates the product views of one signed-in user: it
// owns the authoritative product list, keeps it fresh through realtime
// change events and wires the card, add-product and history components.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/PriceTracker/internal/backend"
	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/addproduct"
	"github.com/utafrali/PriceTracker/internal/view/card"
	"github.com/utafrali/PriceTracker/internal/view/history"
	"github.com/utafrali/PriceTracker/internal/view/toast"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// View texts.
const (
	LoadingAllText        = "Loading products..."
	LoadingWishlistText   = "Loading wishlist..."
	EmptyAllTitle         = "No products tracked yet"
	EmptyAllDetail        = "Start tracking products to monitor their prices"
	EmptyWishlistTitle    = "Your wishlist is empty"
	EmptyWishlistDetail   = "Add products to your wishlist to get price drop notifications"
	MsgAddedToWishlist    = "Added to wishlist"
	MsgRemovedFromWish    = "Removed from wishlist"
	defaultReloadDebounce = 150 * time.Millisecond
)

// ErrUnmounted is returned by Mount once the dashboard has been unmounted.
// An unmounted dashboard is never mounted again.
var ErrUnmounted = errors.New("dashboard unmounted")

// ImageChecker reports whether an image URL can be loaded.
type ImageChecker interface {
	Check(ctx context.Context, imageURL string) error
}

// Options tune a dashboard.
type Options struct {
	// ReloadDebounce collapses bursts of change events into one reload.
	ReloadDebounce time.Duration
	// ImageChecker, when set, probes each card image once.
	ImageChecker ImageChecker
}

// Dashboard is the coordinator of one user's product views.
type Dashboard struct {
	client   backend.Client
	toasts   *toast.Hub
	add      *addproduct.Dialog
	history  *history.Dialog
	logger   *slog.Logger
	debounce time.Duration
	images   ImageChecker

	mountMu sync.Mutex

	mu         sync.RWMutex
	mounted    bool
	closed     bool
	loading    bool
	userID     string
	products   []domain.Product
	cards      map[string]*card.Card
	sub        backend.Subscription
	timer      *time.Timer
	bgCtx      context.Context
	bgCancel   context.CancelFunc
	reloadSeq  uint64
	appliedSeq uint64
	lastActive time.Time
	listeners  map[int]chan struct{}
	nextListen int
}

// New creates an unmounted dashboard.
func New(client backend.Client, opts Options, logger *slog.Logger) *Dashboard {
	if opts.ReloadDebounce < 0 {
		opts.ReloadDebounce = defaultReloadDebounce
	}
	d := &Dashboard{
		client:     client,
		toasts:     toast.NewHub(),
		logger:     logger,
		debounce:   opts.ReloadDebounce,
		images:     opts.ImageChecker,
		cards:      make(map[string]*card.Card),
		listeners:  make(map[int]chan struct{}),
		lastActive: time.Now(),
	}
	d.add = addproduct.New(client, d.toasts, d.Reload, logger)
	d.history = history.New(client, d.toasts, logger)
	return d
}

// Toasts returns the toast hub of the dashboard.
func (d *Dashboard) Toasts() *toast.Hub { return d.toasts }

// AddProduct returns the add-product dialog.
func (d *Dashboard) AddProduct() *addproduct.Dialog { return d.add }

// UserID returns the user the dashboard was mounted for, or "" when no user
// was signed in.
func (d *Dashboard) UserID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.userID
}

// Mount resolves the current user, loads the product list and subscribes to
// product changes. Without a signed-in user nothing is loaded and the view
// stays empty. Mounting a mounted dashboard does nothing; mounting an
// unmounted one fails with ErrUnmounted.
func (d *Dashboard) Mount(ctx context.Context) error {
	d.mountMu.Lock()
	defer d.mountMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrUnmounted
	}
	if d.mounted {
		d.mu.Unlock()
		return nil
	}
	d.mounted = true
	d.loading = true
	d.bgCtx, d.bgCancel = context.WithCancel(backend.DetachSession(ctx))
	d.mu.Unlock()

	user, err := d.client.CurrentUser(ctx)
	if err != nil {
		d.setLoading(false)
		d.toasts.Notify(toast.Error(apperrors.Message(err)))
		return err
	}
	if user == nil {
		d.setLoading(false)
		return nil
	}

	d.mu.Lock()
	d.userID = user.ID
	d.mu.Unlock()

	sub, err := d.client.Subscribe(ctx, domain.CollectionProducts, domain.EventAll, d.onChange)
	if err != nil {
		// explicit reloads still work without realtime updates
		d.logger.ErrorContext(ctx, "realtime subscription failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		d.toasts.Notify(toast.Error(apperrors.Message(err)))
	} else {
		d.mu.Lock()
		if d.closed {
			// unmounted while subscribing
			d.mu.Unlock()
			sub.Unsubscribe()
			return ErrUnmounted
		}
		d.sub = sub
		d.mu.Unlock()
	}

	_ = d.reload(ctx, TriggerMount)
	return nil
}

// Unmount tears down the subscription and any pending reload, closes the
// history dialog and ends the toast streams. It is final: a later Mount
// fails.
func (d *Dashboard) Unmount() {
	d.mu.Lock()
	d.closed = true
	if !d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = false
	sub := d.sub
	d.sub = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.bgCancel != nil {
		d.bgCancel()
	}
	for id, ch := range d.listeners {
		close(ch)
		delete(d.listeners, id)
	}
	d.mu.Unlock()

	// outside the lock: Unsubscribe waits for a running onChange
	if sub != nil {
		sub.Unsubscribe()
	}
	d.history.Close()
	d.toasts.Close()
}

// Reload fetches the product list again.
func (d *Dashboard) Reload(ctx context.Context) {
	_ = d.reload(ctx, TriggerExplicit)
}

// ReloadNow is Reload reporting the error for the transport layer.
func (d *Dashboard) ReloadNow(ctx context.Context) error {
	return d.reload(ctx, TriggerExplicit)
}

// reload replaces the product list with a fresh fetch. Results of a reload
// that started before an already applied one are dropped.
func (d *Dashboard) reload(ctx context.Context, trigger string) error {
	d.mu.Lock()
	d.reloadSeq++
	seq := d.reloadSeq
	d.mu.Unlock()

	err := d.fetch(ctx, seq)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		d.toasts.Notify(toast.Error(apperrors.Message(err)))
	}
	DashboardReloads.WithLabelValues(trigger, outcome).Inc()
	d.setLoading(false)
	return err
}

func (d *Dashboard) fetch(ctx context.Context, seq uint64) error {
	user, err := d.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	products, err := d.client.ListProducts(ctx, domain.ProductQuery{
		UserID:  user.ID,
		OrderBy: domain.OrderByCreatedAt,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "load products failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	d.mu.Lock()
	if seq < d.appliedSeq {
		d.mu.Unlock()
		return nil
	}
	d.appliedSeq = seq
	d.products = products
	fresh := d.syncCardsLocked()
	// Listener channels are closed under d.mu, so signal them under it too.
	for _, ch := range d.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	bgCtx := d.bgCtx
	d.mu.Unlock()

	d.probeImages(bgCtx, fresh)
	return nil
}

// syncCardsLocked keeps one card per product id across reloads, so a card's
// image failure survives them. It returns the cards created by this call.
func (d *Dashboard) syncCardsLocked() []*card.Card {
	seen := make(map[string]struct{}, len(d.products))
	var fresh []*card.Card
	for _, p := range d.products {
		seen[p.ID] = struct{}{}
		props := card.PropsFromProduct(p)
		if c, ok := d.cards[p.ID]; ok {
			c.SetProps(props)
			continue
		}
		c := card.New(props, card.Callbacks{
			OnToggleWishlist: func(ctx context.Context, id string) { _ = d.ToggleWishlist(ctx, id) },
			OnViewHistory:    func(ctx context.Context, id string) { d.ViewHistory(ctx, id) },
		})
		d.cards[p.ID] = c
		fresh = append(fresh, c)
	}
	for id := range d.cards {
		if _, ok := seen[id]; !ok {
			delete(d.cards, id)
		}
	}
	return fresh
}

func (d *Dashboard) probeImages(ctx context.Context, cards []*card.Card) {
	if d.images == nil || ctx == nil {
		return
	}
	for _, c := range cards {
		props := c.Props()
		if props.ImageURL == nil || *props.ImageURL == "" {
			continue
		}
		go func(c *card.Card, url string) {
			if err := d.images.Check(ctx, url); err != nil && ctx.Err() == nil {
				d.logger.DebugContext(ctx, "card image unavailable",
					slog.String("product_id", c.Props().ID),
					slog.String("error", err.Error()),
				)
				c.ImageFailed()
			}
		}(c, *props.ImageURL)
	}
}

// onChange schedules a debounced reload for a realtime change event.
func (d *Dashboard) onChange(event domain.ChangeEvent) {
	DashboardChangeEvents.WithLabelValues(string(event.Type)).Inc()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mounted {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	ctx := d.bgCtx
	d.timer = time.AfterFunc(d.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		_ = d.reload(ctx, TriggerRealtime)
	})
}

func (d *Dashboard) setLoading(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = v
}

func (d *Dashboard) find(id string) (domain.Product, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// ToggleWishlist flips the wishlist flag of a listed product. Unknown ids
// are ignored. The local list is left alone; the change arrives through the
// realtime subscription or the next reload.
func (d *Dashboard) ToggleWishlist(ctx context.Context, id string) error {
	p, ok := d.find(id)
	if !ok {
		return nil
	}

	want := !p.IsInWishlist
	if err := d.client.UpdateProduct(ctx, id, domain.ProductPatch{IsInWishlist: &want}); err != nil {
		d.toasts.Notify(toast.Error(apperrors.Message(err)))
		return err
	}

	title := MsgAddedToWishlist
	if p.IsInWishlist {
		title = MsgRemovedFromWish
	}
	d.toasts.Notify(toast.Info(title, p.Name))
	return nil
}

// ViewHistory opens the history dialog for a listed product. Unknown ids are
// ignored and report false.
func (d *Dashboard) ViewHistory(ctx context.Context, id string) (history.State, bool) {
	p, ok := d.find(id)
	if !ok {
		return d.history.State(), false
	}
	return d.history.Open(ctx, p.ID, p.Name), true
}

// CloseHistory closes the history dialog.
func (d *Dashboard) CloseHistory() {
	d.history.Close()
}

// ImageFailed records that a card's image failed to load. Unknown ids are
// ignored.
func (d *Dashboard) ImageFailed(id string) {
	d.mu.RLock()
	c, ok := d.cards[id]
	d.mu.RUnlock()
	if ok {
		c.ImageFailed()
	}
}

// Card returns the card of a listed product.
func (d *Dashboard) Card(id string) (*card.Card, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cards[id]
	return c, ok
}

// ListChanges returns a channel signalled after every applied reload and a
// cancel function. The channel closes on Unmount.
func (d *Dashboard) ListChanges() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := d.nextListen
	d.nextListen++
	d.listeners[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			if _, ok := d.listeners[id]; ok {
				delete(d.listeners, id)
				close(ch)
			}
			d.mu.Unlock()
		})
	}
}

func (d *Dashboard) touch(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastActive = now
}

func (d *Dashboard) idleSince() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastActive
}
