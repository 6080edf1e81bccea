// Package toast carries transient user notifications from the view layer to
// the user's open event streams.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Variant selects the styling of a toast.
type Variant string

// Toast variants.
const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is one notification.
type Toast struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
}

// New builds a toast with a fresh id.
func New(title, description string, variant Variant) Toast {
	return Toast{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Variant:     variant,
		CreatedAt:   time.Now().UTC(),
	}
}

// Info builds a default toast.
func Info(title, description string) Toast {
	return New(title, description, VariantDefault)
}

// Error builds the destructive "Error" toast carrying message.
func Error(message string) Toast {
	return New("Error", message, VariantDestructive)
}

// Notifier accepts toasts.
type Notifier interface {
	Notify(t Toast)
}

const (
	// subscriberBuffer bounds the toasts queued per stream.
	subscriberBuffer = 16
	// recentLimit is how many toasts Recent keeps.
	recentLimit = 20
)

// Hub fans toasts out to subscribers. A subscriber whose buffer is full
// misses the toast; Notify never blocks.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Toast
	recent  []Toast
	dropped int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Toast)}
}

// Notify delivers t to every subscriber and remembers it in Recent.
func (h *Hub) Notify(t Toast) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, t)
	if len(h.recent) > recentLimit {
		h.recent = h.recent[len(h.recent)-recentLimit:]
	}

	for _, ch := range h.subs {
		select {
		case ch <- t:
		default:
			h.dropped++
		}
	}
}

// Subscribe returns a channel of toasts and a cancel function that closes it.
func (h *Hub) Subscribe() (<-chan Toast, func()) {
	ch := make(chan Toast, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Recent returns the latest toasts, oldest first.
func (h *Hub) Recent() []Toast {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Toast(nil), h.recent...)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
