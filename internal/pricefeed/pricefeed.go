// Package pricefeed consumes price observations from the external price
// update process and records them through the backend, which appends the
// history point and moves the product's current price.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/PriceTracker/internal/event"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	pkgkafka "github.com/utafrali/PriceTracker/pkg/kafka"
)

// IdempotencyTTL is how long processed event ids are remembered.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyPrefix namespaces processed event ids in Redis.
const IdempotencyPrefix = "pricefeed:processed:"

// PriceRecorder records an observed price for a product.
type PriceRecorder interface {
	RecordPrice(ctx context.Context, productID string, price decimal.Decimal, at time.Time) error
}

// Handler turns price.observed events into recorded prices.
type Handler struct {
	recorder PriceRecorder
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(recorder PriceRecorder, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Handle records one observation. Observations the backend rejects for good
// (unknown product, invalid price) are logged and acknowledged; anything else
// is returned so the consumer retries it.
func (h *Handler) Handle(ctx context.Context, e *pkgkafka.Event) error {
	var data event.PriceObservedData
	if err := e.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal price.observed data: %w", err)
	}

	if data.ProductID == "" {
		h.logger.WarnContext(ctx, "price observation without product id, skipping",
			slog.String("event_id", e.EventID),
		)
		return nil
	}

	err := h.recorder.RecordPrice(ctx, data.ProductID, data.Price, data.ObservedAt)
	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "price recorded",
			slog.String("product_id", data.ProductID),
			slog.String("price", data.Price.String()),
		)
		return nil
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidInput):
		h.logger.WarnContext(ctx, "price observation rejected",
			slog.String("event_id", e.EventID),
			slog.String("product_id", data.ProductID),
			slog.String("error", err.Error()),
		)
		return nil
	default:
		return fmt.Errorf("record price for product %s: %w", data.ProductID, err)
	}
}

// Config configures the feed's consumer.
type Config struct {
	Brokers []string
	GroupID string
}

// Feed is the running price.observed consumer.
type Feed struct {
	consumer *pkgkafka.Consumer
}

// New wires handler behind deduplication and the shared consumer. dlq may be nil.
func New(cfg Config, handler *Handler, store pkgkafka.IdempotencyStore, dlq *pkgkafka.DLQProducer, logger *slog.Logger) *Feed {
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    event.TopicPriceObserved,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		DLQ:      dlq,
	}, pkgkafka.IdempotentHandler(store, handler.Handle, logger), logger)
	return &Feed{consumer: consumer}
}

// Start consumes until ctx is canceled.
func (f *Feed) Start(ctx context.Context) error {
	return f.consumer.Start(ctx)
}

// Close stops the consumer.
func (f *Feed) Close() error {
	return f.consumer.Close()
}
