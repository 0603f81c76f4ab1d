package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

var ErrDialRefused = errors.New("mock dial refused")

// MockFeedConn implements interfaces.FeedConn for testing
type MockFeedConn struct {
	mu         sync.Mutex
	done       chan error
	endOnce    sync.Once
	closed     bool
	subscribed [][]string
	subErr     error
	handler    interfaces.TradeHandler
}

func newMockFeedConn(handler interfaces.TradeHandler) *MockFeedConn {
	return &MockFeedConn{
		done:    make(chan error, 1),
		handler: handler,
	}
}

func (c *MockFeedConn) Done() <-chan error {
	return c.done
}

func (c *MockFeedConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.end(nil)
	return nil
}

// Drop simulates the upstream closing the connection with err.
func (c *MockFeedConn) Drop(err error) {
	c.end(err)
}

func (c *MockFeedConn) end(err error) {
	c.endOnce.Do(func() {
		c.done <- err
		close(c.done)
	})
}

// Emit pushes a trade through the handler the connection was opened with.
func (c *MockFeedConn) Emit(t marketdata.RawTrade) {
	c.handler(t)
}

// SetSubscribeError makes incremental subscribes fail with err.
func (c *MockFeedConn) SetSubscribeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subErr = err
}

func (c *MockFeedConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockFeedConn) GetSubscribed() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// MockIncrementalFeedConn additionally implements interfaces.IncrementalFeedConn
type MockIncrementalFeedConn struct {
	*MockFeedConn
}

func (c *MockIncrementalFeedConn) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.subscribed = append(c.subscribed, append([]string(nil), symbols...))
	return nil
}

// MockFeedTransport implements interfaces.FeedTransport for testing
type MockFeedTransport struct {
	mu          sync.Mutex
	failures    int
	incremental bool
	opens       [][]string
	conns       []*MockFeedConn

	// Opened receives the symbol list of every Open call.
	Opened chan []string
}

func NewMockFeedTransport() *MockFeedTransport {
	return &MockFeedTransport{
		Opened: make(chan []string, 64),
	}
}

// SetFailures makes the next n Open calls fail.
func (m *MockFeedTransport) SetFailures(n int) *MockFeedTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	return m
}

func (m *MockFeedTransport) SetIncremental(incremental bool) *MockFeedTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incremental = incremental
	return m
}

func (m *MockFeedTransport) Name() string {
	return "mock"
}

func (m *MockFeedTransport) Open(ctx context.Context, symbols []string, handler interfaces.TradeHandler) (interfaces.FeedConn, error) {
	m.mu.Lock()
	m.opens = append(m.opens, append([]string(nil), symbols...))
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	var conn *MockFeedConn
	if !fail {
		conn = newMockFeedConn(handler)
		m.conns = append(m.conns, conn)
	}
	incremental := m.incremental
	m.mu.Unlock()

	m.Opened <- append([]string(nil), symbols...)

	if fail {
		return nil, ErrDialRefused
	}
	if incremental {
		return &MockIncrementalFeedConn{MockFeedConn: conn}, nil
	}
	return conn, nil
}

func (m *MockFeedTransport) GetOpens() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// GetConn returns the i-th successfully opened connection.
func (m *MockFeedTransport) GetConn(i int) *MockFeedConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.conns) {
		return nil
	}
	return m.conns[i]
}

// MockCacheClient implements the CacheClient interface for testing
type MockCacheClient struct {
	mu      sync.Mutex
	storage map[string]interface{}
	closed  bool
	err     error
}

func NewMockCacheClient() *MockCacheClient {
	return &MockCacheClient{
		storage: make(map[string]interface{}),
	}
}

func (m *MockCacheClient) SetError(err error) *MockCacheClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockCacheClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.storage[key] = value
	return nil
}

func (m *MockCacheClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockCacheClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockCacheClient) GetValue(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, exists := m.storage[key]
	return val, exists
}

// MockPubsubClient implements the PubsubClient interface for testing
type MockPubsubClient struct {
	mu              sync.Mutex
	publishedTopics map[string][]interface{}
	closed          bool
	err             error
}

func NewMockPubsubClient() *MockPubsubClient {
	return &MockPubsubClient{
		publishedTopics: make(map[string][]interface{}),
	}
}

func (m *MockPubsubClient) SetError(err error) *MockPubsubClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockPubsubClient) Publish(ctx context.Context, topic string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.publishedTopics[topic] = append(m.publishedTopics[topic], message)
	return nil
}

func (m *MockPubsubClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockPubsubClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockPubsubClient) GetPublished(topic string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishedTopics[topic]
}

// ProducedMessage is one record handed to MockKafkaProducer.
type ProducedMessage struct {
	Key       string
	Value     []byte
	Timestamp time.Time
}

// MockKafkaProducer implements the KafkaProducer interface for testing
type MockKafkaProducer struct {
	mu       sync.Mutex
	messages []ProducedMessage
	closed   bool
	err      error
}

func NewMockKafkaProducer() *MockKafkaProducer {
	return &MockKafkaProducer{
		messages: make([]ProducedMessage, 0),
	}
}

func (m *MockKafkaProducer) SetError(err error) *MockKafkaProducer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockKafkaProducer) Produce(ctx context.Context, key string, value []byte, ts time.Time) (partition int32, offset int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, 0, m.err
	}

	m.messages = append(m.messages, ProducedMessage{Key: key, Value: value, Timestamp: ts})
	return 0, int64(len(m.messages) - 1), nil
}

func (m *MockKafkaProducer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockKafkaProducer) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockKafkaProducer) GetProducedMessages() []ProducedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProducedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
