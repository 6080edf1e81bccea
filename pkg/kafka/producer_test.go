package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka:9092"})
	assert.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	topic := "test.producer.publish"

	event, err := NewEvent("product.created", "prod-9", "product", "pricetracker", map[string]string{"name": "Lamp"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	before := testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultPublished))
	require.NoError(t, p.Publish(context.Background(), topic, event))

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, topic, msgs[0].Topic)
	assert.Equal(t, "prod-9", string(msgs[0].Key))

	carrier := NewHeaderCarrier(&msgs[0].Headers)
	assert.Equal(t, "product.created", carrier.Get("event_type"))
	assert.Equal(t, "pricetracker", carrier.Get("source"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))

	decoded, err := UnmarshalEvent(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultPublished)))
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: testLogger()}
	topic := "test.producer.error"

	event, err := NewEvent("product.updated", "prod-1", "product", "pricetracker", nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultFailed))
	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), topic)
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultFailed)))
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	topic := "test.producer.batch"

	var events []*Event
	for _, price := range []string{"19.99", "18.49", "21.00"} {
		e, err := NewEvent("price.observed", "prod-3", "product", "seed", map[string]string{"price": price})
		require.NoError(t, err)
		events = append(events, e.WithMetadata("origin", "seed"))
	}

	before := testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultPublished))
	require.NoError(t, p.PublishBatch(context.Background(), topic, events...))

	msgs := w.written()
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, "prod-3", string(msg.Key))
		assert.Equal(t, "seed", NewHeaderCarrier(&msgs[i].Headers).Get("meta.origin"))
	}
	assert.Equal(t, before+3, testutil.ToFloat64(ProducerMessages.WithLabelValues(topic, ResultPublished)))

	require.NoError(t, p.PublishBatch(context.Background(), topic))
	assert.Len(t, w.written(), 3)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_NoConnectionUntilPublish(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
