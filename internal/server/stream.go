package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
)

const keepAliveFrame = ": keep-alive\n\n"

type streamEvent struct {
	bar  *footprint.Bar
	kind hub.Kind
}

// handleFootprintStream pushes footprint events for the requested symbols.
// No symbols means every instrument. The client first receives the stored
// history and the bar in progress; events that race with that replay may
// arrive twice and are identified by instrument and bucketStart.
func (s *Server) handleFootprintStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming unsupported by response writer", logger.String("type", fmt.Sprintf("%T", w)))
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	interest := hub.NewInterest(splitSymbols(r.URL.Query().Get("symbols"))...)
	log := s.logger.With(logger.Strings("symbols", interest.Symbols()), logger.String("remote", r.RemoteAddr))

	events := make(chan streamEvent, s.clientBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	markOverflow := func() { overflowOnce.Do(func() { close(overflow) }) }

	id := s.svc.Subscribe(func(bar *footprint.Bar, kind hub.Kind) {
		if !interest.Accepts(bar.Instrument) {
			return
		}
		select {
		case events <- streamEvent{bar: bar, kind: kind}:
		default:
			markOverflow()
		}
	}, hub.OnOverflow(markOverflow))
	defer s.svc.Unsubscribe(id)

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log.Info("stream client attached")
	defer log.Info("stream client detached")

	symbols := interest.Symbols()
	if len(symbols) == 0 {
		symbols = s.svc.Status().Instruments
	}
	for _, sym := range symbols {
		for _, bar := range s.svc.LatestBars(sym, s.historySize) {
			if err := writeEvent(w, hub.KindFull, bar); err != nil {
				return
			}
		}
		if bar, ok := s.svc.CurrentBar(sym); ok {
			if err := writeEvent(w, hub.KindPartial, bar); err != nil {
				return
			}
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-overflow:
			log.Warn("stream client too slow, disconnecting", logger.Int("buffer", s.clientBuffer))
			return

		case ev := <-events:
			if err := writeEvent(w, ev.kind, ev.bar); err != nil {
				log.Debug("stream write failed", logger.Error(err))
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, keepAliveFrame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, kind hub.Kind, bar *footprint.Bar) error {
	data, err := footprint.EncodeBar(bar)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	metrics.StreamEventsWrittenTotal.Inc()
	return nil
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
