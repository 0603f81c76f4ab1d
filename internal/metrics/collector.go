package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sampler is invoked on every collector tick, next to the runtime stats.
// Components use it to publish point-in-time gauges such as queue depth.
type Sampler func()

// StartCollector periodically refreshes runtime metrics and runs the given
// samplers. It stops when ctx is done or the returned function is called.
func StartCollector(ctx context.Context, interval time.Duration, samplers ...Sampler) func() {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	collectorCtx, cancel := context.WithCancel(ctx)
	go collect(collectorCtx, interval, samplers)

	return cancel
}

func collect(ctx context.Context, interval time.Duration, samplers []Sampler) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateRuntimeMetrics()
			for _, sample := range samplers {
				sample()
			}
		}
	}
}

func updateRuntimeMetrics() {
	GoroutinesCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	MemoryAllocBytes.Set(float64(memStats.Alloc))
	HeapAllocBytes.Set(float64(memStats.HeapAlloc))
	HeapObjectsCount.Set(float64(memStats.HeapObjects))
	GCPauseNanosTotal.Set(float64(memStats.PauseTotalNs))
}

// UpdateChannelMetrics records the length and capacity of a buffered channel
func UpdateChannelMetrics(chanLen, chanCap int, sizeGauge, capGauge prometheus.Gauge) {
	sizeGauge.Set(float64(chanLen))
	capGauge.Set(float64(chanCap))
}
