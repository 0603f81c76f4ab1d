package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/service"
)

const maxBodyBytes = 64 << 10

type streamRequest struct {
	Symbols []string `json:"symbols"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	service.Status
	Time time.Time `json:"time"`
}

func (s *Server) handleLatestBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	count := s.historySize
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}

	data, err := footprint.EncodeBars(s.svc.LatestBars(symbol, count))
	if err != nil {
		s.logger.Error("could not encode bars", logger.Error(err), logger.String("symbol", symbol))
		s.writeError(w, http.StatusInternalServerError, "encoding failed")
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleCurrentBar(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	bar, ok := s.svc.CurrentBar(symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no bar in progress")
		return
	}
	data, err := footprint.EncodeBar(bar)
	if err != nil {
		s.logger.Error("could not encode bar", logger.Error(err), logger.String("symbol", symbol))
		s.writeError(w, http.StatusInternalServerError, "encoding failed")
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	var req streamRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"symbols\": [...]}")
		return
	}

	if err := s.svc.StartStream(req.Symbols); err != nil {
		if errors.Is(err, service.ErrNoSymbols) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("could not start stream", logger.Error(err), logger.Strings("symbols", req.Symbols))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.svc.Status())
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	s.svc.StopStream()
	s.writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status()
	code := http.StatusOK
	if status.Feed.Failed {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{Status: status, Time: time.Now().UTC()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("could not encode response", logger.Error(err))
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	writeRaw(w, code, data)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}

func writeRaw(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
