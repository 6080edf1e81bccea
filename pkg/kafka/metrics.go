package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer message results.
const (
	ResultReceived     = "received"
	ResultProcessed    = "processed"
	ResultFailed       = "failed"
	ResultDeadLettered = "dead_lettered"
	ResultPublished    = "published"
)

var (
	// ConsumerMessages counts consumed messages by topic, group and result.
	ConsumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_kafka_consumer_messages_total",
			Help: "Consumed Kafka messages by result.",
		},
		[]string{"topic", "consumer_group", "result"},
	)

	// ConsumerDuplicates counts deliveries skipped by the idempotency guard.
	ConsumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_kafka_consumer_duplicates_total",
			Help: "Redelivered Kafka events skipped by event id.",
		},
		[]string{"event_type"},
	)

	// ConsumerProcessingDuration observes handler time per message.
	ConsumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricetracker_kafka_consumer_processing_duration_seconds",
			Help:    "Kafka message handling time, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	// ProducerMessages counts publish attempts by topic and result.
	ProducerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_kafka_producer_messages_total",
			Help: "Kafka publish attempts by result.",
		},
		[]string{"topic", "result"},
	)

	// ProducerPublishDuration observes publish latency.
	ProducerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricetracker_kafka_producer_publish_duration_seconds",
			Help:    "Kafka publish latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
