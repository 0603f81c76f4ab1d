package hub

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
)

const defaultCloseTimeout = 5 * time.Second

// Kind names the event pushed to consumers.
type Kind string

const (
	// KindFull carries a finalized bar.
	KindFull Kind = "footprintUpdate"
	// KindPartial carries a snapshot of the bar in progress.
	KindPartial Kind = "footprintUpdatePartial"
)

// Listener receives bars in broadcast order. It runs on the subscriber's own
// goroutine. Bars must be treated as read-only.
type Listener func(bar *footprint.Bar, kind Kind)

type event struct {
	bar  *footprint.Bar
	kind Kind
}

type subscriber struct {
	id         uint64
	listener   Listener
	ch         chan event
	quit       chan struct{}
	onOverflow func()
	closeOnce  sync.Once
}

func (s *subscriber) stop() {
	s.closeOnce.Do(func() { close(s.quit) })
}

// Option configures a single registration.
type Option func(*subscriber)

// OnOverflow is invoked from Broadcast whenever an event is dropped because
// the subscriber's buffer is full. It must not block.
func OnOverflow(f func()) Option {
	return func(s *subscriber) { s.onOverflow = f }
}

// Hub fans bar events out to registered listeners. Broadcast never blocks:
// each listener owns a bounded queue and a slow listener only loses its own
// events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	closed bool

	wg           sync.WaitGroup
	closeTimeout time.Duration
	logger       *logger.Logger
}

func New(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:         make(map[uint64]*subscriber),
		buffer:       buffer,
		closeTimeout: defaultCloseTimeout,
		logger:       log.Component("hub"),
	}
}

// Register adds l and returns its id. Registering on a closed hub returns 0
// and the listener is never called.
func (h *Hub) Register(l Listener, opts ...Option) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	h.nextID++
	s := &subscriber{
		id:       h.nextID,
		listener: l,
		ch:       make(chan event, h.buffer),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	h.subs[s.id] = s
	metrics.HubSubscribers.Set(float64(len(h.subs)))

	h.wg.Add(1)
	go h.run(s)

	h.logger.Debug("listener registered", logger.Int64("id", int64(s.id)))
	return s.id
}

// Unregister removes the listener. Events already queued for it are discarded.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		metrics.HubSubscribers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()

	if ok {
		s.stop()
		h.logger.Debug("listener unregistered", logger.Int64("id", int64(id)))
	}
}

// Broadcast queues the event for every listener registered at call time.
func (h *Hub) Broadcast(bar *footprint.Bar, kind Kind) {
	h.mu.RLock()
	snapshot := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	metrics.HubEventsTotal.WithLabelValues(string(kind)).Inc()

	ev := event{bar: bar, kind: kind}
	for _, s := range snapshot {
		select {
		case s.ch <- ev:
		default:
			metrics.HubDroppedTotal.Inc()
			h.logger.Debug("listener buffer full, dropping event",
				logger.Int64("id", int64(s.id)),
				logger.String("kind", string(kind)),
				logger.String("instrument", bar.Instrument))
			if s.onOverflow != nil {
				s.onOverflow()
			}
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters every listener and waits for their goroutines to exit.
// A listener still blocked in its callback after closeTimeout is abandoned.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	metrics.HubSubscribers.Set(0)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(h.closeTimeout):
		h.logger.Warn("listeners still running after close timeout",
			logger.Duration("timeout", h.closeTimeout))
	}
}

func (h *Hub) run(s *subscriber) {
	defer h.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.ch:
			// quit wins over a queued event
			select {
			case <-s.quit:
				return
			default:
			}
			h.deliver(s, ev)
		}
	}
}

func (h *Hub) deliver(s *subscriber, ev event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HubListenerPanicsTotal.Inc()
			h.logger.Error("listener panicked",
				logger.Int64("id", int64(s.id)),
				logger.String("kind", string(ev.kind)),
				logger.Any("panic", r))
		}
	}()
	s.listener(ev.bar, ev.kind)
}

// Interest is the set of instruments a consumer cares about. An empty
// Interest accepts everything.
type Interest map[string]struct{}

func NewInterest(symbols ...string) Interest {
	in := make(Interest, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			in[s] = struct{}{}
		}
	}
	return in
}

func (in Interest) Accepts(instrument string) bool {
	if len(in) == 0 {
		return true
	}
	_, ok := in[strings.ToUpper(instrument)]
	return ok
}

// Symbols returns the instruments in lexical order.
func (in Interest) Symbols() []string {
	out := make([]string, 0, len(in))
	for s := range in {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
