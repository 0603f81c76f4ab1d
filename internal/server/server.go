package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Footprints is what the HTTP layer needs from the footprint service.
type Footprints interface {
	LatestBars(instrument string, n int) []*footprint.Bar
	CurrentBar(instrument string) (*footprint.Bar, bool)
	StartStream(symbols []string) error
	StopStream()
	Subscribe(l hub.Listener, opts ...hub.Option) uint64
	Unsubscribe(id uint64)
	Status() service.Status
}

type Server struct {
	router     *mux.Router
	httpServer *http.Server
	svc        Footprints
	logger     *logger.Logger

	keepAlive    time.Duration
	clientBuffer int
	historySize  int
}

func New(cfg *config.Config, svc Footprints, log *logger.Logger) *Server {
	keepAlive := cfg.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = config.KEEPALIVE_INTERVAL_MS_DEFAULT * time.Millisecond
	}
	clientBuffer := cfg.HubBuffer
	if clientBuffer <= 0 {
		clientBuffer = config.HUB_BUFFER_DEFAULT
	}
	historySize := cfg.HistoryCapacity
	if historySize <= 0 {
		historySize = config.HISTORY_CAPACITY_DEFAULT
	}

	s := &Server{
		router:       mux.NewRouter(),
		svc:          svc,
		logger:       log.Component("server"),
		keepAlive:    keepAlive,
		clientBuffer: clientBuffer,
		historySize:  historySize,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/stream/footprint", s.handleFootprintStream).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/footprint").Subrouter()
	api.HandleFunc("/bars", s.handleLatestBars).Methods(http.MethodGet)
	api.HandleFunc("/current", s.handleCurrentBar).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStartStream).Methods(http.MethodPost)
	api.HandleFunc("/stream", s.handleStopStream).Methods(http.MethodDelete)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until ctx ends. Request contexts derive from ctx so open
// event streams end with it.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", logger.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
