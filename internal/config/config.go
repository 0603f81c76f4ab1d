package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
)

const (
	BAR_INTERVAL_MS_DEFAULT = 60_000
	BAR_INTERVAL_MS_MIN     = 1_000

	HISTORY_CAPACITY_DEFAULT = 100
	PRICE_PRECISION_DEFAULT  = 5

	RECONNECT_BASE_MS_DEFAULT      = 1_000
	RECONNECT_MAX_ATTEMPTS_DEFAULT = 10
	RECONNECT_MAX_ATTEMPTS_MAX     = 30

	KEEPALIVE_INTERVAL_MS_DEFAULT = 20_000
	METRICS_INTERVAL_MS_DEFAULT   = 15_000

	HUB_BUFFER_DEFAULT   = 256
	INBOX_BUFFER_DEFAULT = 1024
	KAFKA_BUFFER_DEFAULT = 500
)

const (
	ProviderBinance = "binance"
	ProviderAlpaca  = "alpaca"
	ProviderMock    = "mock"
)

const DefaultBinanceWSBase = "wss://stream.binance.com:9443"

type Config struct {
	HTTPAddr string

	FeedProvider    string
	BinanceWSBase   string
	AlpacaAPIKey    string
	AlpacaAPISecret string

	BarInterval       time.Duration
	HistoryCapacity   int
	PricePrecision    int32
	ReconnectBase     time.Duration
	ReconnectAttempts int
	KeepAliveInterval time.Duration
	MetricsInterval   time.Duration

	KafkaBrokers        []string
	KafkaTopicFootprint string

	RedisCacheAddr string
	RedisCacheUser string
	RedisCachePw   string
	RedisCacheDB   int

	RedisPubsubAddr string
	RedisPubsubUser string
	RedisPubsubPw   string

	// Symbols are streamed right after startup; empty means wait for a client.
	Symbols []string

	HubBuffer     int
	InboxBuffer   int
	KafkaChanBuff int
}

func LoadConfig(getenv func(string) string, log *logger.Logger) (*Config, error) {
	log.Info("loading configuration from environment")

	barIntervalMs := intOrDefault(getenv, "BAR_INTERVAL_MS", BAR_INTERVAL_MS_DEFAULT, log)
	if barIntervalMs < BAR_INTERVAL_MS_MIN {
		log.Warn("bar interval too low, using minimum value",
			logger.Int("provided_ms", barIntervalMs),
			logger.Int("min_ms", BAR_INTERVAL_MS_MIN))
		barIntervalMs = BAR_INTERVAL_MS_MIN
	}

	precision := intOrDefault(getenv, "PRICE_PRECISION", PRICE_PRECISION_DEFAULT, log)
	if precision < 0 || precision > 18 {
		return nil, fmt.Errorf("PRICE_PRECISION must be between 0 and 18, got %d", precision)
	}

	reconnectAttempts := positiveOrDefault(getenv, "RECONNECT_MAX_ATTEMPTS", RECONNECT_MAX_ATTEMPTS_DEFAULT, log)
	if reconnectAttempts > RECONNECT_MAX_ATTEMPTS_MAX {
		log.Warn("reconnect attempts too high, using maximum value",
			logger.Int("provided", reconnectAttempts),
			logger.Int("max", RECONNECT_MAX_ATTEMPTS_MAX))
		reconnectAttempts = RECONNECT_MAX_ATTEMPTS_MAX
	}

	provider := strings.ToLower(strings.TrimSpace(getenv("FEED_PROVIDER")))
	switch provider {
	case "":
		provider = ProviderBinance
	case ProviderBinance, ProviderAlpaca, ProviderMock:
	default:
		return nil, fmt.Errorf("FEED_PROVIDER %q is not one of binance, alpaca, mock", provider)
	}
	if provider == ProviderAlpaca && (getenv("ALPACA_API_KEY") == "" || getenv("ALPACA_API_SECRET") == "") {
		return nil, fmt.Errorf("FEED_PROVIDER alpaca requires ALPACA_API_KEY and ALPACA_API_SECRET")
	}

	binanceBase := strings.TrimRight(getenv("BINANCE_WS_BASE"), "/")
	if binanceBase == "" {
		binanceBase = DefaultBinanceWSBase
	}

	// Redis cache DB handling
	redisCacheDB := 0
	if redisCacheDBStr := getenv("REDIS_CACHE_DB"); redisCacheDBStr != "" {
		db, err := strconv.Atoi(redisCacheDBStr)
		if err != nil {
			log.Error("invalid Redis cache DB value, must be a number",
				logger.String("value", redisCacheDBStr),
				logger.Error(err))
			return nil, fmt.Errorf("REDIS_CACHE_DB can't be parsed to a number: %w", err)
		}
		redisCacheDB = db
	}

	// Kafka broker configuration
	kafkaBrokers := splitList(getenv("KAFKA_BROKERS"), false)
	if len(kafkaBrokers) == 0 {
		log.Warn("no Kafka brokers specified, finalized bars will not be produced")
	}

	kafkaTopic := getenv("KAFKA_TOPIC_FOOTPRINT")
	if kafkaTopic == "" {
		kafkaTopic = "footprint-bars"
	}

	httpAddr := getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	cfg := &Config{
		HTTPAddr: httpAddr,

		FeedProvider:    provider,
		BinanceWSBase:   binanceBase,
		AlpacaAPIKey:    getenv("ALPACA_API_KEY"),
		AlpacaAPISecret: getenv("ALPACA_API_SECRET"),

		BarInterval:       time.Duration(barIntervalMs) * time.Millisecond,
		HistoryCapacity:   positiveOrDefault(getenv, "HISTORY_CAPACITY", HISTORY_CAPACITY_DEFAULT, log),
		PricePrecision:    int32(precision),
		ReconnectBase:     time.Duration(positiveOrDefault(getenv, "RECONNECT_BASE_MS", RECONNECT_BASE_MS_DEFAULT, log)) * time.Millisecond,
		ReconnectAttempts: reconnectAttempts,
		KeepAliveInterval: time.Duration(positiveOrDefault(getenv, "KEEPALIVE_INTERVAL_MS", KEEPALIVE_INTERVAL_MS_DEFAULT, log)) * time.Millisecond,
		MetricsInterval:   time.Duration(positiveOrDefault(getenv, "METRICS_INTERVAL_MS", METRICS_INTERVAL_MS_DEFAULT, log)) * time.Millisecond,

		KafkaBrokers:        kafkaBrokers,
		KafkaTopicFootprint: kafkaTopic,

		RedisCacheAddr: getenv("REDIS_CACHE_ADDR"),
		RedisCacheUser: getenv("REDIS_CACHE_UN"),
		RedisCachePw:   getenv("REDIS_CACHE_PW"),
		RedisCacheDB:   redisCacheDB,

		RedisPubsubAddr: getenv("REDIS_PUBSUB_ADDR"),
		RedisPubsubUser: getenv("REDIS_PUBSUB_UN"),
		RedisPubsubPw:   getenv("REDIS_PUBSUB_PW"),

		Symbols: splitList(getenv("SYMBOLS"), true),

		HubBuffer:     positiveOrDefault(getenv, "HUB_BUFFER", HUB_BUFFER_DEFAULT, log),
		InboxBuffer:   positiveOrDefault(getenv, "INBOX_BUFFER", INBOX_BUFFER_DEFAULT, log),
		KafkaChanBuff: KAFKA_BUFFER_DEFAULT,
	}

	// Log the configuration (hiding sensitive values)
	log.Info("configuration loaded successfully",
		logger.String("http_addr", cfg.HTTPAddr),
		logger.String("feed_provider", cfg.FeedProvider),
		logger.Duration("bar_interval", cfg.BarInterval),
		logger.Int("history_capacity", cfg.HistoryCapacity),
		logger.Int32("price_precision", cfg.PricePrecision),
		logger.Duration("reconnect_base", cfg.ReconnectBase),
		logger.Int("reconnect_attempts", cfg.ReconnectAttempts),
		logger.Duration("keepalive_interval", cfg.KeepAliveInterval),
		logger.Strings("kafka_brokers", cfg.KafkaBrokers),
		logger.String("kafka_topic", cfg.KafkaTopicFootprint),
		logger.String("redis_cache_addr", cfg.RedisCacheAddr),
		logger.Int("redis_cache_db", cfg.RedisCacheDB),
		logger.String("redis_pubsub_addr", cfg.RedisPubsubAddr),
		logger.Strings("symbols", cfg.Symbols),
		logger.Int("hub_buffer", cfg.HubBuffer),
		logger.Int("inbox_buffer", cfg.InboxBuffer))

	return cfg, nil
}

func intOrDefault(getenv func(string) string, key string, def int, log *logger.Logger) int {
	raw := getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("invalid integer value, using default",
			logger.String("key", key),
			logger.String("value", raw),
			logger.Int("default", def),
			logger.Error(err))
		return def
	}
	return v
}

func positiveOrDefault(getenv func(string) string, key string, def int, log *logger.Logger) int {
	v := intOrDefault(getenv, key, def, log)
	if v <= 0 {
		log.Warn("non-positive value, using default",
			logger.String("key", key),
			logger.Int("value", v),
			logger.Int("default", def))
		return def
	}
	return v
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// blanks. Symbols are upper-cased.
func splitList(raw string, upper bool) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if upper {
			s = strings.ToUpper(s)
		}
		out = append(out, s)
	}
	return out
}
