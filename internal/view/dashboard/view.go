package dashboard

import (
	"github.com/utafrali/PriceTracker/internal/view/addproduct"
	"github.com/utafrali/PriceTracker/internal/view/card"
	"github.com/utafrali/PriceTracker/internal/view/history"
)

// EmptyState is shown in place of an empty tab.
type EmptyState struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Tab is one product tab.
type Tab struct {
	Count   int         `json:"count"`
	Cards   []card.View `json:"cards"`
	Loading string      `json:"loading,omitempty"`
	Empty   *EmptyState `json:"empty,omitempty"`
}

// View is a snapshot of the dashboard.
type View struct {
	Loading    bool             `json:"loading"`
	All        Tab              `json:"all"`
	Wishlist   Tab              `json:"wishlist"`
	History    history.State    `json:"history"`
	AddProduct addproduct.State `json:"add_product"`
}

// View renders the dashboard. The wishlist is derived from the product list
// on every call.
func (d *Dashboard) View() View {
	d.mu.RLock()
	loading := d.loading
	all := make([]card.View, 0, len(d.products))
	wishlist := make([]card.View, 0)
	for _, p := range d.products {
		c, ok := d.cards[p.ID]
		if !ok {
			continue
		}
		cv := c.Render()
		all = append(all, cv)
		if p.IsInWishlist {
			wishlist = append(wishlist, cv)
		}
	}
	d.mu.RUnlock()

	v := View{
		Loading:    loading,
		All:        Tab{Count: len(all), Cards: all},
		Wishlist:   Tab{Count: len(wishlist), Cards: wishlist},
		History:    d.history.State(),
		AddProduct: d.add.State(),
	}
	switch {
	case loading:
		v.All.Loading = LoadingAllText
		v.Wishlist.Loading = LoadingWishlistText
	default:
		if len(all) == 0 {
			v.All.Empty = &EmptyState{Title: EmptyAllTitle, Detail: EmptyAllDetail}
		}
		if len(wishlist) == 0 {
			v.Wishlist.Empty = &EmptyState{Title: EmptyWishlistTitle, Detail: EmptyWishlistDetail}
		}
	}
	return v
}
