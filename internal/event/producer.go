package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/PriceTracker/internal/domain"
	pkgkafka "github.com/utafrali/PriceTracker/pkg/kafka"
)

// Kafka topics for product domain events.
var (
	TopicProductCreated = pkgkafka.Topic("product", "created")
	TopicProductUpdated = pkgkafka.Topic("product", "updated")
	TopicPriceObserved  = pkgkafka.Topic("price", "observed")
)

// AggregateTypeProduct is the aggregate type of product events.
const AggregateTypeProduct = "product"

// SourcePriceTracker identifies events published by this service.
const SourcePriceTracker = "pricetracker"

// ProductData is the payload of product.created and product.updated events.
type ProductData struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	IsInWishlist bool            `json:"is_in_wishlist"`
}

// PriceObservedData is the payload of price.observed events produced by the
// external price update process.
type PriceObservedData struct {
	ProductID  string          `json:"product_id"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes product domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product)
}

// PublishProductUpdated publishes a product.updated event.
func (p *Producer) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, product)
}

func (p *Producer) publish(ctx context.Context, topic string, product *domain.Product) error {
	data := ProductData{
		ID:           product.ID,
		UserID:       product.UserID,
		Name:         product.Name,
		URL:          product.URL,
		CurrentPrice: product.CurrentPrice,
		IsInWishlist: product.IsInWishlist,
	}

	event, err := pkgkafka.NewEvent(topic, product.ID, AggregateTypeProduct, SourcePriceTracker, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published product event",
		slog.String("topic", topic),
		slog.String("product_id", product.ID),
	)
	return nil
}
