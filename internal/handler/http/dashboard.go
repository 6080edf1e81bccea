package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/PriceTracker/internal/view/addproduct"
	"github.com/utafrali/PriceTracker/internal/view/dashboard"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/httputil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dashboards resolves the mounted dashboard of the session user.
type Dashboards interface {
	Get(ctx context.Context) (*dashboard.Dashboard, error)
	Remove(userID string)
}

// DashboardHandler exposes the session user's dashboard.
type DashboardHandler struct {
	dashboards Dashboards
	logger     *slog.Logger
	keepAlive  time.Duration
}

// NewDashboardHandler creates a new dashboard HTTP handler.
func NewDashboardHandler(dashboards Dashboards, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, logger: logger}
}

// dashboard resolves the dashboard or writes the error and returns nil.
func (h *DashboardHandler) dashboard(w http.ResponseWriter, r *http.Request) *dashboard.Dashboard {
	d, err := h.dashboards.Get(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil
	}
	return d
}

// productID reads and validates the {id} URL parameter.
func productID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// Get handles GET /api/v1/dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(w, r)
	if d == nil {
		return
	}
	httputil.WriteData(w, http.StatusOK, d.View())
}

// Reload handles POST /api/v1/dashboard/reload
func (h *DashboardHandler) Reload(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(w, r)
	if d == nil {
		return
	}
	if err := d.ReloadNow(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, d.View())
}

// AddProduct handles POST /api/v1/dashboard/products. The body is the
// dialog draft; field validation happens on submit so a rejected draft stays
// in the dialog.
func (h *DashboardHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(w, r)
	if d == nil {
		return
	}

	var draft addproduct.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&draft); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	dialog := d.AddProduct()
	dialog.Open()
	dialog.SetDraft(draft)
	if err := dialog.Submit(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, d.View())
}

// ToggleWishlist handles POST /api/v1/dashboard/products/{id}/wishlist.
// The listed product keeps its flag until the change comes back through a
// reload.
func (h *DashboardHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	d := h.dashboard(w, r)
	if d == nil {
		return
	}
	if _, listed := d.Card(id); !listed {
		httputil.WriteError(w, r, apperrors.NotFound("product", id), h.logger)
		return
	}

	if err := d.ToggleWishlist(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ImageError handles POST /api/v1/dashboard/products/{id}/image-error
func (h *DashboardHandler) ImageError(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	d := h.dashboard(w, r)
	if d == nil {
		return
	}
	c, listed := d.Card(id)
	if !listed {
		httputil.WriteError(w, r, apperrors.NotFound("product", id), h.logger)
		return
	}

	d.ImageFailed(id)
	httputil.WriteData(w, http.StatusOK, c.Render())
}

// History handles GET /api/v1/dashboard/products/{id}/history
func (h *DashboardHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	d := h.dashboard(w, r)
	if d == nil {
		return
	}

	state, listed := d.ViewHistory(r.Context(), id)
	if !listed {
		httputil.WriteError(w, r, apperrors.NotFound("product", id), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, state)
}

// CloseHistory handles DELETE /api/v1/dashboard/history
func (h *DashboardHandler) CloseHistory(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(w, r)
	if d == nil {
		return
	}
	d.CloseHistory()
	w.WriteHeader(http.StatusNoContent)
}
