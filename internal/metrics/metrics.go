package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with TradesDroppedTotal.
const (
	DropMalformed = "malformed"
	DropLate      = "late"
	DropInactive  = "inactive"
	DropStopped   = "stopped"
)

var (
	// System metrics
	GoroutinesCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_goroutines_count",
		Help: "The current number of goroutines",
	})

	MemoryAllocBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_memory_alloc_bytes",
		Help: "Current memory allocation in bytes",
	})

	HeapAllocBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_heap_alloc_bytes",
		Help: "Current heap allocation in bytes",
	})

	HeapObjectsCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_heap_objects_count",
		Help: "Current number of allocated heap objects",
	})

	GCPauseNanosTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_gc_pause_nanos_total",
		Help: "Total time spent in GC pause in nanoseconds",
	})

	// Feed metrics
	TradesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "footprint_trades_received_total",
		Help: "Total number of raw trades received from the upstream feed",
	}, []string{"provider"})

	FeedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_feed_reconnects_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_feed_connected",
		Help: "Whether an upstream connection is currently open (1) or not (0)",
	})

	FeedFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_feed_failed",
		Help: "Set to 1 once the reconnect budget is exhausted",
	})

	FeedSubscribedSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_feed_subscribed_symbols",
		Help: "Number of instruments in the active upstream subscription",
	})

	// Aggregator metrics
	TradesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_trades_applied_total",
		Help: "Total number of trades folded into a bar",
	})

	TradesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "footprint_trades_dropped_total",
		Help: "Total number of trades discarded before aggregation",
	}, []string{"reason"})

	BarsFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_bars_finalized_total",
		Help: "Total number of bars closed and appended to history",
	})

	ActiveInstruments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_active_instruments",
		Help: "Number of instruments with an in-progress bar",
	})

	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "footprint_apply_duration_seconds",
		Help:    "Duration of folding one trade into the current bar",
		Buckets: prometheus.ExponentialBuckets(0.000005, 2, 12),
	})

	InboxSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_inbox_size",
		Help: "Current number of trades waiting for the aggregator",
	})

	InboxCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_inbox_capacity",
		Help: "Capacity of the aggregator inbox",
	})

	// Hub metrics
	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_hub_subscribers",
		Help: "Number of registered update listeners",
	})

	HubEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "footprint_hub_events_total",
		Help: "Total number of events broadcast by kind",
	}, []string{"kind"})

	HubDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_hub_dropped_total",
		Help: "Total number of events dropped for slow listeners",
	})

	HubListenerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_hub_listener_panics_total",
		Help: "Total number of recovered listener panics",
	})

	// Sink metrics
	SinkBarsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_sink_bars_processed_total",
		Help: "Total number of finalized bars written to Redis",
	})

	SinkBarsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "footprint_sink_bars_dropped_total",
		Help: "Total number of finalized bars dropped before reaching a sink",
	}, []string{"stage"})

	RedisSetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_redis_set_total",
		Help: "Total number of Redis SET operations",
	})

	RedisSetErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_redis_set_errors_total",
		Help: "Total number of Redis SET errors",
	})

	RedisPublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_redis_publish_total",
		Help: "Total number of Redis PUBLISH operations",
	})

	RedisPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_redis_publish_errors_total",
		Help: "Total number of Redis PUBLISH errors",
	})

	RedisOperationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "footprint_redis_operation_duration_seconds",
		Help:    "Duration of Redis operations",
		Buckets: prometheus.DefBuckets,
	})

	KafkaPublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_kafka_publish_total",
		Help: "Total number of Kafka publish operations",
	})

	KafkaPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_kafka_publish_errors_total",
		Help: "Total number of Kafka publish errors",
	})

	KafkaRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_kafka_retries_total",
		Help: "Total number of Kafka publish retries",
	})

	KafkaOperationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "footprint_kafka_operation_duration_seconds",
		Help:    "Duration of Kafka operations",
		Buckets: prometheus.DefBuckets,
	})

	KafkaChanSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_kafka_channel_size",
		Help: "Current size of the Kafka channel",
	})

	KafkaChanCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_kafka_channel_capacity",
		Help: "Capacity of the Kafka channel",
	})

	// Downstream push metrics
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_stream_clients",
		Help: "Number of connected server-sent event clients",
	})

	StreamEventsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_stream_events_written_total",
		Help: "Total number of events written to stream clients",
	})
)
