package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryPoint is one recorded price observation. Points are immutable.
type PriceHistoryPoint struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// HistoryQuery selects the history of one product.
type HistoryQuery struct {
	ProductID string
	Ascending bool
}
