package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/PriceTracker/internal/backend"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/middleware"
)

// Registry holds one mounted dashboard per signed-in user.
type Registry struct {
	client  backend.Client
	opts    Options
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	dashboards map[string]*Dashboard
}

// NewRegistry creates an empty registry. Dashboards idle for longer than
// idleTTL are unmounted by Sweep.
func NewRegistry(client backend.Client, opts Options, idleTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		client:     client,
		opts:       opts,
		idleTTL:    idleTTL,
		logger:     logger,
		now:        time.Now,
		dashboards: make(map[string]*Dashboard),
	}
}

// Get returns the dashboard of the session user, mounting it on first use.
func (r *Registry) Get(ctx context.Context) (*Dashboard, error) {
	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	// A Remove or Sweep can unmount the dashboard between the lookup and
	// Mount; the next attempt then registers a fresh one.
	for attempt := 1; ; attempt++ {
		d := r.lookupOrCreate(userID)
		err := d.Mount(ctx)
		if errors.Is(err, ErrUnmounted) || (err == nil && !r.registered(userID, d)) {
			if attempt < maxGetAttempts {
				continue
			}
			return nil, apperrors.Conflict("dashboard is shutting down")
		}
		if err != nil {
			r.remove(userID, d)
			return nil, err
		}
		if d.UserID() != userID {
			// the session no longer resolves to this user
			r.remove(userID, d)
			return nil, apperrors.Unauthorized("session is no longer valid")
		}

		d.touch(r.now())
		return d, nil
	}
}

const maxGetAttempts = 3

func (r *Registry) lookupOrCreate(userID string) *Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[userID]
	if !ok {
		d = New(r.client, r.opts, r.logger.With(slog.String("user_id", userID)))
		r.dashboards[userID] = d
		DashboardsMounted.Inc()
	}
	return d
}

func (r *Registry) registered(userID string, d *Dashboard) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dashboards[userID] == d
}

// Remove unmounts the dashboard of a user, e.g. on sign-out.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	d, ok := r.dashboards[userID]
	r.mu.Unlock()
	if ok {
		r.remove(userID, d)
	}
}

// remove drops d if it is still the registered dashboard of userID.
func (r *Registry) remove(userID string, d *Dashboard) {
	r.mu.Lock()
	current, ok := r.dashboards[userID]
	if ok && current == d {
		delete(r.dashboards, userID)
		DashboardsMounted.Dec()
	}
	r.mu.Unlock()

	if ok && current == d {
		d.Unmount()
	}
}

// Len returns the number of dashboards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dashboards)
}

// Sweep unmounts dashboards idle for longer than the TTL and returns how
// many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	idle := make(map[string]*Dashboard)
	for userID, d := range r.dashboards {
		if d.idleSince().Before(cutoff) {
			idle[userID] = d
		}
	}
	r.mu.Unlock()

	for userID, d := range idle {
		r.remove(userID, d)
	}
	if len(idle) > 0 {
		r.logger.Info("unmounted idle dashboards", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle dashboards until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	every := r.idleTTL / 2
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close unmounts every dashboard.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.dashboards
	r.dashboards = make(map[string]*Dashboard)
	DashboardsMounted.Sub(float64(len(all)))
	r.mu.Unlock()

	for _, d := range all {
		d.Unmount()
	}
}
