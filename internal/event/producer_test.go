package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/PriceTracker/internal/domain"
	pkgkafka "github.com/utafrali/PriceTracker/pkg/kafka"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func testProduct() *domain.Product {
	return &domain.Product{
		ID:           "p1",
		UserID:       "u1",
		Name:         "Desk Lamp",
		URL:          "https://shop.example.com/lamp",
		CurrentPrice: decimal.RequireFromString("24.99"),
		IsInWishlist: true,
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "pricetracker.product.created", TopicProductCreated)
	assert.Equal(t, "pricetracker.product.updated", TopicProductUpdated)
	assert.Equal(t, "pricetracker.price.observed", TopicPriceObserved)
}

func TestProducer_PublishProductCreated(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	pub.On("Publish", mock.Anything, TopicProductCreated, mock.MatchedBy(func(e *pkgkafka.Event) bool {
		var data ProductData
		if err := e.UnmarshalData(&data); err != nil {
			return false
		}
		return e.AggregateID == "p1" &&
			e.AggregateType == AggregateTypeProduct &&
			e.Source == SourcePriceTracker &&
			data.Name == "Desk Lamp" &&
			data.CurrentPrice.Equal(decimal.RequireFromString("24.99")) &&
			data.IsInWishlist
	})).Return(nil).Once()

	require.NoError(t, p.PublishProductCreated(context.Background(), testProduct()))
	pub.AssertExpectations(t)
}

func TestProducer_PublishProductUpdated_Error(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	pub.On("Publish", mock.Anything, TopicProductUpdated, mock.Anything).Return(errors.New("broker down"))

	err := p.PublishProductUpdated(context.Background(), testProduct())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pricetracker.product.updated")
	assert.Contains(t, err.Error(), "broker down")
}
