package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SSE event names.
const (
	EventToast    = "toast"
	EventProducts = "products"
)

// keepAliveInterval spaces comment lines on idle streams so proxies keep
// the connection open.
const keepAliveInterval = 25 * time.Second

// Events handles GET /api/v1/dashboard/events as a Server-Sent Events stream.
// It sends the current dashboard first, then a "products" event after every
// applied reload and a "toast" event per notification. The stream ends when
// the client disconnects or the dashboard is unmounted.
func (h *DashboardHandler) Events(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard(w, r)
	if d == nil {
		return
	}

	toasts, cancelToasts := d.Toasts().Subscribe()
	defer cancelToasts()
	changes, cancelChanges := d.ListChanges()
	defer cancelChanges()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(name string, data any) bool {
		if err := writeEvent(w, name, data); err != nil {
			h.logger.DebugContext(r.Context(), "event stream write failed", slog.String("error", err.Error()))
			return false
		}
		return rc.Flush() == nil
	}

	if !send(EventProducts, d.View()) {
		return
	}

	interval := h.keepAlive
	if interval <= 0 {
		interval = keepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case t, ok := <-toasts:
			if !ok || !send(EventToast, t) {
				return
			}
		case _, ok := <-changes:
			if !ok || !send(EventProducts, d.View()) {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
