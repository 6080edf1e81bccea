// Package card presents one tracked product.
package card

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// PlaceholderText replaces the image when there is none or it failed to load.
const PlaceholderText = "No image"

// Props are the inputs of a card.
type Props struct {
	ID           string
	Name         string
	CurrentPrice decimal.Decimal
	ImageURL     *string
	Category     *string
	IsInWishlist bool
	URL          string
	// PriceChange is a percentage; zero hides the indicator.
	PriceChange float64
}

// PropsFromProduct maps a product to card props. Nothing computes a price
// change yet, so it is always zero.
func PropsFromProduct(p domain.Product) Props {
	return Props{
		ID:           p.ID,
		Name:         p.Name,
		CurrentPrice: p.CurrentPrice,
		ImageURL:     p.ImageURL,
		Category:     p.Category,
		IsInWishlist: p.IsInWishlist,
		URL:          p.URL,
	}
}

// Intent is a user action forwarded to the owner of the card.
type Intent func(ctx context.Context, productID string)

// Callbacks receive the card's intents. Nil callbacks are ignored.
type Callbacks struct {
	OnToggleWishlist Intent
	OnViewHistory    Intent
}

// Card is one card instance. Its only state is whether the image failed.
type Card struct {
	mu          sync.RWMutex
	props       Props
	callbacks   Callbacks
	imageFailed bool
}

// New creates a card.
func New(props Props, callbacks Callbacks) *Card {
	return &Card{props: props, callbacks: callbacks}
}

// SetProps replaces the props and keeps the image failure state.
func (c *Card) SetProps(props Props) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = props
}

// Props returns the current props.
func (c *Card) Props() Props {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props
}

// ImageFailed switches the card to the placeholder for good.
func (c *Card) ImageFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imageFailed = true
}

// ToggleWishlist forwards the wishlist intent.
func (c *Card) ToggleWishlist(ctx context.Context) {
	if f := c.callbacks.OnToggleWishlist; f != nil {
		f(ctx, c.Props().ID)
	}
}

// ViewHistory forwards the history intent.
func (c *Card) ViewHistory(ctx context.Context) {
	if f := c.callbacks.OnViewHistory; f != nil {
		f(ctx, c.Props().ID)
	}
}

// Image is the image area of a card.
type Image struct {
	Src         string `json:"src,omitempty"`
	Alt         string `json:"alt,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Heart is the wishlist toggle.
type Heart struct {
	Filled bool `json:"filled"`
}

// Direction of a price change.
type Direction string

// Directions.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Change is the price change indicator. A drop is good news.
type Change struct {
	Direction Direction `json:"direction"`
	Percent   string    `json:"percent"`
	Tone      string    `json:"tone"`
}

// Link is the outbound product link.
type Link struct {
	Href   string `json:"href"`
	Target string `json:"target"`
	Rel    string `json:"rel"`
}

// View is the rendered card.
type View struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	Image      Image   `json:"image"`
	Heart      Heart   `json:"heart"`
	PriceLabel string  `json:"price_label"`
	Change     *Change `json:"price_change,omitempty"`
	Link       Link    `json:"link"`
}

// Render returns the view of the card.
func (c *Card) Render() View {
	c.mu.RLock()
	p, failed := c.props, c.imageFailed
	c.mu.RUnlock()

	v := View{
		ID:         p.ID,
		Name:       p.Name,
		Heart:      Heart{Filled: p.IsInWishlist},
		PriceLabel: FormatPrice(p.CurrentPrice),
		Change:     changeIndicator(p.PriceChange),
		Link:       Link{Href: p.URL, Target: "_blank", Rel: "noopener noreferrer"},
	}
	if p.Category != nil {
		v.Category = *p.Category
	}
	if p.ImageURL != nil && *p.ImageURL != "" && !failed {
		v.Image = Image{Src: *p.ImageURL, Alt: p.Name}
	} else {
		v.Image = Image{Placeholder: PlaceholderText}
	}
	return v
}

// FormatPrice renders an amount as "$12.30".
func FormatPrice(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func changeIndicator(pct float64) *Change {
	if pct == 0 || math.IsNaN(pct) {
		return nil
	}
	ch := &Change{Percent: fmt.Sprintf("%.2f%%", math.Abs(pct))}
	if pct < 0 {
		ch.Direction, ch.Tone = DirectionDown, "success"
	} else {
		ch.Direction, ch.Tone = DirectionUp, "destructive"
	}
	return ch
}
