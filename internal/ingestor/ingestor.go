package ingestor

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

// Stopper cancels a scheduled callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type Option func(*ConnectionManager)

// WithAfterFunc replaces the timer source used for reconnect backoff.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *ConnectionManager) { m.afterFunc = f }
}

// Status is a point-in-time view of the upstream connection.
type Status struct {
	Provider   string   `json:"provider"`
	Active     []string `json:"active"`
	Connected  bool     `json:"connected"`
	Connecting bool     `json:"connecting"`
	Attempt    int      `json:"attempt"`
	Failed     bool     `json:"failed"`
}

// ConnectionManager keeps one upstream connection open for the union of all
// requested instruments and reconnects with exponential backoff when it
// drops unexpectedly.
type ConnectionManager struct {
	ctx       context.Context
	transport interfaces.FeedTransport
	handler   interfaces.TradeHandler
	logger    *logger.Logger

	base        time.Duration
	maxAttempts int
	afterFunc   AfterFunc

	mu          sync.Mutex
	active      map[string]struct{}
	conn        interfaces.FeedConn
	connSymbols map[string]struct{}
	connecting  bool
	attempt     int
	disabled    bool
	failed      bool
	generation  uint64
	timer       Stopper
}

// NewConnectionManager builds a manager that dials through transport. ctx
// bounds every connection it opens. handler receives each raw trade.
func NewConnectionManager(
	ctx context.Context,
	transport interfaces.FeedTransport,
	handler interfaces.TradeHandler,
	cfg *config.Config,
	log *logger.Logger,
	opts ...Option,
) *ConnectionManager {
	base := cfg.ReconnectBase
	if base <= 0 {
		base = config.RECONNECT_BASE_MS_DEFAULT * time.Millisecond
	}
	maxAttempts := cfg.ReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.RECONNECT_MAX_ATTEMPTS_DEFAULT
	}

	provider := transport.Name()
	received := metrics.TradesReceivedTotal.WithLabelValues(provider)

	m := &ConnectionManager{
		ctx:       ctx,
		transport: transport,
		handler: func(t marketdata.RawTrade) {
			received.Inc()
			handler(t)
		},
		logger:      log.Component("ingestor").With(logger.String("provider", provider)),
		base:        base,
		maxAttempts: maxAttempts,
		afterFunc:   realAfterFunc,
		active:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// maxBackoffShift bounds the doubling so the delay cannot overflow.
const maxBackoffShift = 30

// BackoffDelay returns the wait before reconnect attempt n (1-based). The
// result saturates instead of overflowing.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := min(attempt-1, maxBackoffShift)
	if base > time.Duration(math.MaxInt64)>>shift {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

// EnsureSubscribed adds symbols to the active set and makes sure a connection
// covers all of them. It never waits on the network, cuts a pending backoff
// short and clears a previous persistent failure.
func (m *ConnectionManager) EnsureSubscribed(symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := m.active[s]; !ok {
			m.active[s] = struct{}{}
			added = append(added, s)
		}
	}

	m.disabled = false
	if m.timer != nil {
		// an explicit request skips the remaining backoff; attempt is kept
		m.timer.Stop()
		m.timer = nil
		m.logger.Info("dialing now instead of waiting for scheduled reconnect", logger.Int("attempt", m.attempt))
	}
	if m.failed {
		m.logger.Info("clearing persistent failure after external request")
		m.failed = false
		m.attempt = 0
		metrics.FeedFailed.Set(0)
	}

	if len(added) > 0 {
		m.logger.Info("instruments added to upstream subscription",
			logger.Strings("added", added),
			logger.Int("active", len(m.active)))
	}
	metrics.FeedSubscribedSymbols.Set(float64(len(m.active)))

	m.syncLocked()
	return nil
}

// StopAll clears the subscription, disables reconnects and closes the
// connection. Timers scheduled before the call never fire a reconnect.
func (m *ConnectionManager) StopAll() {
	m.mu.Lock()
	m.active = make(map[string]struct{})
	m.disabled = true
	m.failed = false
	m.attempt = 0
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.connSymbols = nil
	m.connecting = false
	m.mu.Unlock()

	metrics.FeedSubscribedSymbols.Set(0)
	metrics.FeedConnected.Set(0)
	metrics.FeedFailed.Set(0)

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("error closing upstream connection", logger.Error(err))
		}
	}
	m.logger.Info("upstream stream stopped")
}

func (m *ConnectionManager) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

func (m *ConnectionManager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Active returns the subscribed instruments in lexical order.
func (m *ConnectionManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.active)
}

func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Provider:   m.transport.Name(),
		Active:     sortedKeys(m.active),
		Connected:  m.conn != nil,
		Connecting: m.connecting,
		Attempt:    m.attempt,
		Failed:     m.failed,
	}
}

// syncLocked brings the connection in line with the active set.
func (m *ConnectionManager) syncLocked() {
	if m.disabled || m.failed || len(m.active) == 0 {
		return
	}
	// an in-flight dial or pending reconnect picks up the full set when it runs
	if m.connecting || m.timer != nil {
		return
	}
	if m.conn == nil {
		m.dialLocked()
		return
	}

	var missing []string
	for s := range m.active {
		if _, ok := m.connSymbols[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return
	}
	sort.Strings(missing)

	if inc, ok := m.conn.(interfaces.IncrementalFeedConn); ok {
		for _, s := range missing {
			m.connSymbols[s] = struct{}{}
		}
		go m.subscribe(inc, missing)
		return
	}

	m.logger.Info("reopening upstream connection for new instruments", logger.Strings("missing", missing))
	old := m.conn
	m.conn = nil
	m.connSymbols = nil
	metrics.FeedConnected.Set(0)
	go func() {
		if err := old.Close(); err != nil {
			m.logger.Warn("error closing replaced connection", logger.Error(err))
		}
	}()
	m.dialLocked()
}

func (m *ConnectionManager) subscribe(conn interfaces.IncrementalFeedConn, symbols []string) {
	if err := conn.Subscribe(symbols); err != nil {
		m.logger.Error("incremental subscribe failed, closing connection",
			logger.Error(err),
			logger.Strings("symbols", symbols))
		// the watcher treats this as an unexpected drop and reconnects on the full set
		_ = conn.Close()
		return
	}
	m.logger.Info("subscribed additional instruments", logger.Strings("symbols", symbols))
}

func (m *ConnectionManager) dialLocked() {
	m.generation++
	m.connecting = true
	gen := m.generation
	symbols := sortedKeys(m.active)

	m.logger.Info("opening upstream connection",
		logger.Strings("symbols", symbols),
		logger.Int("attempt", m.attempt))

	go func() {
		conn, err := m.transport.Open(m.ctx, symbols, m.handler)
		m.opened(gen, symbols, conn, err)
	}()
}

func (m *ConnectionManager) opened(gen uint64, symbols []string, conn interfaces.FeedConn, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.disabled {
		if conn != nil {
			go conn.Close()
		}
		return
	}
	m.connecting = false

	if err != nil {
		m.logger.Warn("upstream connection failed", logger.Error(err), logger.Int("attempt", m.attempt))
		m.scheduleReconnectLocked()
		return
	}

	m.conn = conn
	m.connSymbols = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		m.connSymbols[s] = struct{}{}
	}
	if m.attempt > 0 {
		m.logger.Info("upstream connection restored", logger.Int("after_attempts", m.attempt))
	}
	m.attempt = 0
	metrics.FeedConnected.Set(1)

	go m.watch(gen, conn)

	// instruments requested while the dial was in flight
	m.syncLocked()
}

func (m *ConnectionManager) watch(gen uint64, conn interfaces.FeedConn) {
	err := <-conn.Done()

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.disabled || m.conn != conn {
		return
	}
	m.conn = nil
	m.connSymbols = nil
	metrics.FeedConnected.Set(0)

	if len(m.active) == 0 || m.ctx.Err() != nil {
		return
	}
	m.logger.Warn("upstream connection closed unexpectedly", logger.Error(err))
	m.scheduleReconnectLocked()
}

func (m *ConnectionManager) scheduleReconnectLocked() {
	if m.attempt >= m.maxAttempts {
		m.failed = true
		metrics.FeedFailed.Set(1)
		m.logger.Error("reconnect attempts exhausted, giving up until the next subscription request",
			logger.Int("attempts", m.attempt),
			logger.Strings("symbols", sortedKeys(m.active)))
		return
	}

	m.attempt++
	delay := BackoffDelay(m.base, m.attempt)
	gen := m.generation
	metrics.FeedReconnectsTotal.Inc()

	m.logger.Info("scheduling reconnect",
		logger.Int("attempt", m.attempt),
		logger.Int("max_attempts", m.maxAttempts),
		logger.Duration("delay", delay))

	m.timer = m.afterFunc(delay, func() { m.reconnect(gen) })
}

func (m *ConnectionManager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.disabled {
		return
	}
	m.timer = nil
	if len(m.active) == 0 || m.conn != nil || m.connecting {
		return
	}
	m.dialLocked()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
