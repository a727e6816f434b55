// Package metrics provides Prometheus metrics for fifoq.
// It tracks engine operations, message flow per queue and backing store
// latency so throughput and store health can be observed per instance.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "fifoq"
)

// Engine metrics track every queue operation.
var (
	// OperationsTotal counts engine operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of queue engine operations",
		},
		[]string{"operation", "result"}, // result: ok or an error kind
	)

	// OperationLatency measures engine operation latency, including
	// blocking dequeue waits.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of queue engine operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 10, 30, 60},
		},
		[]string{"operation"},
	)
)

// Message metrics track flow through individual queues.
var (
	// MessagesEnqueuedTotal counts messages appended per queue.
	MessagesEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_enqueued_total",
			Help:      "Total number of messages enqueued by this instance",
		},
		[]string{"queue"},
	)

	// MessagesDequeuedTotal counts messages removed per queue.
	MessagesDequeuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dequeued_total",
			Help:      "Total number of messages dequeued by this instance",
		},
		[]string{"queue"},
	)

	// DequeueEmptyTotal counts dequeues that timed out without a message.
	DequeueEmptyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dequeue_empty_total",
			Help:      "Total number of dequeues that returned no message",
		},
		[]string{"queue"},
	)

	// MessageQueueLatency measures time a message spent in the queue.
	MessageQueueLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_queue_latency_seconds",
			Help:      "Time between enqueue and dequeue of a message in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 60, 300, 1800, 3600},
		},
	)

	// QueueDepth is the last observed depth per queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Last observed number of messages in the queue",
		},
		[]string{"queue"},
	)
)

// Event feed metrics.
var (
	// EventsPublishedTotal counts lifecycle events handed to the publisher.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of queue lifecycle events handed to the publisher",
		},
		[]string{"type", "status"}, // status: success, failure
	)

	// EventsDeliveredTotal counts broker acknowledgements of published events.
	EventsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Total number of queue lifecycle events acknowledged or rejected by the broker",
		},
		[]string{"type", "status"}, // status: success, failure
	)
)

// Storage metrics track backing store operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 10, 60},
		},
		[]string{"store", "operation"},
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)

// ObserveStorage records one storage call.
func ObserveStorage(storeName, operation string, start time.Time, err error) {
	StorageOperationLatency.WithLabelValues(storeName, operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "failure"
	}
	StorageOperationsTotal.WithLabelValues(storeName, operation, status).Inc()
}

// ForgetQueue drops per-queue series after a queue is deleted.
func ForgetQueue(queue string) {
	QueueDepth.DeleteLabelValues(queue)
	MessagesEnqueuedTotal.DeleteLabelValues(queue)
	MessagesDequeuedTotal.DeleteLabelValues(queue)
	DequeueEmptyTotal.DeleteLabelValues(queue)
}
