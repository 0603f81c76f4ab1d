package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MockTradesGeneratedTotal counts the trades produced by the simulated feed
	MockTradesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "footprint_mock_trades_generated_total",
		Help: "The total number of simulated trades generated",
	})

	// MockTradeRateGauge tracks the current simulated trade rate
	MockTradeRateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_mock_trades_rate",
		Help: "The current rate of simulated trades per second",
	})

	// MockTrafficSpikeActive indicates if a traffic spike is currently active
	MockTrafficSpikeActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "footprint_mock_traffic_spike_active",
		Help: "Indicates whether a simulated traffic spike is currently active (1) or not (0)",
	})
)
