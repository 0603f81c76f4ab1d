package aggregator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

// Publisher receives every bar event produced by the aggregator.
type Publisher interface {
	Broadcast(bar *footprint.Bar, kind hub.Kind)
}

type instrumentState struct {
	active  bool
	current *footprint.Bar
	history *footprint.History
}

// Aggregator folds trades into per-instrument footprint bars. All mutation
// happens on the goroutine running Run; queries may be called from anywhere.
type Aggregator struct {
	intervalMs int64
	capacity   int
	precision  int32

	inbox chan marketdata.RawTrade
	done  chan struct{}

	mu          sync.RWMutex
	instruments map[string]*instrumentState

	publisher Publisher
	logger    *logger.Logger
}

func NewAggregator(cfg *config.Config, publisher Publisher, log *logger.Logger) *Aggregator {
	inboxSize := cfg.InboxBuffer
	if inboxSize <= 0 {
		inboxSize = config.INBOX_BUFFER_DEFAULT
	}
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = footprint.DefaultHistoryCapacity
	}
	intervalMs := cfg.BarInterval.Milliseconds()
	if intervalMs <= 0 {
		intervalMs = config.BAR_INTERVAL_MS_DEFAULT
	}

	metrics.InboxCapacity.Set(float64(inboxSize))

	return &Aggregator{
		intervalMs:  intervalMs,
		capacity:    capacity,
		precision:   cfg.PricePrecision,
		inbox:       make(chan marketdata.RawTrade, inboxSize),
		done:        make(chan struct{}),
		instruments: make(map[string]*instrumentState),
		publisher:   publisher,
		logger:      log.Component("aggregator"),
	}
}

// Submit queues a raw trade for aggregation. It blocks while the inbox is
// full and returns false once Run has exited.
func (a *Aggregator) Submit(t marketdata.RawTrade) bool {
	select {
	case <-a.done:
		metrics.TradesDroppedTotal.WithLabelValues(metrics.DropStopped).Inc()
		return false
	default:
	}

	select {
	case a.inbox <- t:
		return true
	case <-a.done:
		metrics.TradesDroppedTotal.WithLabelValues(metrics.DropStopped).Inc()
		return false
	}
}

// Run applies queued trades until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("aggregator starting",
		logger.Int64("interval_ms", a.intervalMs),
		logger.Int("history_capacity", a.capacity),
		logger.Int32("price_precision", a.precision),
		logger.Int("inbox_buffer", cap(a.inbox)))
	defer close(a.done)

	for {
		select {
		case t := <-a.inbox:
			a.apply(t)
		case <-ctx.Done():
			a.logger.Info("aggregator stopped", logger.Int("pending_trades", len(a.inbox)))
			return nil
		}
	}
}

// InboxLen reports how many trades are waiting to be applied.
func (a *Aggregator) InboxLen() int {
	return len(a.inbox)
}

func (a *Aggregator) apply(raw marketdata.RawTrade) {
	timer := metrics.NewTimer(metrics.ApplyDuration)
	defer timer.ObserveDuration()

	t, err := raw.Parse()
	if err != nil {
		metrics.TradesDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
		a.logger.Warn("dropping malformed trade",
			logger.Error(err),
			logger.String("instrument", raw.Instrument),
			logger.Int64("trade_id", raw.TradeID),
			logger.String("price", raw.Price),
			logger.String("quantity", raw.Quantity))
		return
	}

	finalized, snapshot, ok := a.fold(t)
	if !ok {
		return
	}

	if finalized != nil {
		a.publisher.Broadcast(finalized, hub.KindFull)
	}
	a.publisher.Broadcast(snapshot, hub.KindPartial)
}

// fold mutates the instrument state under the write lock and returns the bar
// that was closed by this trade, if any, plus a snapshot of the current bar.
func (a *Aggregator) fold(t marketdata.Trade) (finalized, snapshot *footprint.Bar, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.stateLocked(t.Instrument)
	if !st.active {
		metrics.TradesDroppedTotal.WithLabelValues(metrics.DropInactive).Inc()
		a.logger.Debug("dropping trade for inactive instrument",
			logger.String("instrument", t.Instrument),
			logger.Int64("trade_id", t.TradeID))
		return nil, nil, false
	}

	bucket := footprint.BucketStart(t.ExecTimeMs, a.intervalMs)

	if st.current != nil && bucket < st.current.BucketStart {
		metrics.TradesDroppedTotal.WithLabelValues(metrics.DropLate).Inc()
		a.logger.Warn("dropping trade older than the current bar",
			logger.String("instrument", t.Instrument),
			logger.Int64("trade_id", t.TradeID),
			logger.Int64("bucket", bucket),
			logger.Int64("current_bucket", st.current.BucketStart))
		return nil, nil, false
	}

	if st.current == nil || st.current.BucketStart != bucket {
		if st.current != nil && !st.current.Empty() {
			st.current.Finalize()
			st.history.Push(st.current)
			finalized = st.current
			metrics.BarsFinalizedTotal.Inc()
			a.logger.Debug("bar finalized",
				logger.String("instrument", t.Instrument),
				logger.Int64("bucket", finalized.BucketStart),
				logger.Stringer("volume", finalized.TotalVolume))
		}
		if st.current == nil {
			metrics.ActiveInstruments.Inc()
		}
		st.current = footprint.NewBar(t.Instrument, bucket, a.intervalMs, a.precision)
	}

	if err := st.current.Apply(t); err != nil {
		a.logger.Error("failed to apply trade",
			logger.Error(err),
			logger.String("instrument", t.Instrument),
			logger.Int64("trade_id", t.TradeID))
		return nil, nil, false
	}
	metrics.TradesAppliedTotal.Inc()

	return finalized, st.current.Clone(), true
}

func (a *Aggregator) stateLocked(instrument string) *instrumentState {
	st, ok := a.instruments[instrument]
	if !ok {
		st = &instrumentState{
			active:  true,
			history: footprint.NewHistory(a.capacity),
		}
		a.instruments[instrument] = st
	}
	return st
}

// MarkActive creates state for instruments that do not have it yet and
// re-enables any that were stopped.
func (a *Aggregator) MarkActive(instruments []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, inst := range instruments {
		inst = strings.ToUpper(strings.TrimSpace(inst))
		if inst == "" {
			continue
		}
		a.stateLocked(inst).active = true
	}
}

// DiscardInProgress drops every in-progress bar and marks all instruments
// inactive. History is kept.
func (a *Aggregator) DiscardInProgress() {
	a.mu.Lock()
	defer a.mu.Unlock()

	discarded := 0
	for _, st := range a.instruments {
		st.active = false
		if st.current != nil {
			st.current = nil
			discarded++
		}
	}
	metrics.ActiveInstruments.Set(0)
	a.logger.Info("in-progress bars discarded", logger.Int("count", discarded))
}

// LatestBars returns up to n finalized bars for instrument, oldest first.
func (a *Aggregator) LatestBars(instrument string, n int) []*footprint.Bar {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.instruments[strings.ToUpper(instrument)]
	if !ok {
		return []*footprint.Bar{}
	}
	return st.history.Latest(n)
}

// CurrentBar returns a snapshot of the bar in progress.
func (a *Aggregator) CurrentBar(instrument string) (*footprint.Bar, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.instruments[strings.ToUpper(instrument)]
	if !ok || st.current == nil {
		return nil, false
	}
	return st.current.Clone(), true
}

// Instruments lists every instrument that has state, in lexical order.
func (a *Aggregator) Instruments() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.instruments))
	for inst := range a.instruments {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}
