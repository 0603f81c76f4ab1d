package service

import (
	"errors"
	"strings"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/aggregator"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/ingestor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
)

var ErrNoSymbols = errors.New("no symbols requested")

// Streamer controls the upstream subscription.
type Streamer interface {
	EnsureSubscribed(symbols []string) error
	StopAll()
	Status() ingestor.Status
}

// Status describes the service for health reporting.
type Status struct {
	Feed        ingestor.Status `json:"feed"`
	Instruments []string        `json:"instruments"`
	Listeners   int             `json:"listeners"`
}

// FootprintService is the single entry point for queries and stream control.
type FootprintService struct {
	aggregator *aggregator.Aggregator
	streamer   Streamer
	hub        *hub.Hub
	logger     *logger.Logger
}

func NewFootprintService(agg *aggregator.Aggregator, streamer Streamer, h *hub.Hub, log *logger.Logger) *FootprintService {
	return &FootprintService{
		aggregator: agg,
		streamer:   streamer,
		hub:        h,
		logger:     log.Component("service"),
	}
}

// LatestBars returns up to n finalized bars, oldest first.
func (s *FootprintService) LatestBars(instrument string, n int) []*footprint.Bar {
	return s.aggregator.LatestBars(normalize(instrument), n)
}

// CurrentBar returns a snapshot of the bar in progress.
func (s *FootprintService) CurrentBar(instrument string) (*footprint.Bar, bool) {
	return s.aggregator.CurrentBar(normalize(instrument))
}

// StartStream adds symbols to the live stream. It never removes any.
func (s *FootprintService) StartStream(symbols []string) error {
	var clean []string
	for _, sym := range symbols {
		if sym = normalize(sym); sym != "" {
			clean = append(clean, sym)
		}
	}
	if len(clean) == 0 {
		return ErrNoSymbols
	}

	s.aggregator.MarkActive(clean)
	if err := s.streamer.EnsureSubscribed(clean); err != nil {
		return err
	}
	s.logger.Info("stream requested", logger.Strings("symbols", clean))
	return nil
}

// StopStream tears down the upstream connection and discards in-progress bars.
func (s *FootprintService) StopStream() {
	s.streamer.StopAll()
	s.aggregator.DiscardInProgress()
	s.logger.Info("stream stopped")
}

func (s *FootprintService) Subscribe(l hub.Listener, opts ...hub.Option) uint64 {
	return s.hub.Register(l, opts...)
}

func (s *FootprintService) Unsubscribe(id uint64) {
	s.hub.Unregister(id)
}

func (s *FootprintService) Status() Status {
	return Status{
		Feed:        s.streamer.Status(),
		Instruments: s.aggregator.Instruments(),
		Listeners:   s.hub.Len(),
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
