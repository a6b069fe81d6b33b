package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/evaluator"
	"github.com/alertline/alertline/internal/logbuffer"
	"github.com/alertline/alertline/internal/types"
	"github.com/alertline/alertline/internal/version"
)

const maxBodyBytes = 1 << 20

// Server provides the HTTP API
type Server struct {
	engine    *alerter.Engine
	evaluator *evaluator.Evaluator
	logger    zerolog.Logger
	addr      string
	startTime time.Time

	logBuffer      *logbuffer.Buffer
	metricsHandler http.Handler
	channels       []string

	versionMu sync.RWMutex
	version   version.Info
}

// NewServer creates a new API server
func NewServer(engine *alerter.Engine, eval *evaluator.Evaluator, logger zerolog.Logger, addr string) *Server {
	return &Server{
		engine:    engine,
		evaluator: eval,
		logger:    logger.With().Str("component", "api").Logger(),
		addr:      addr,
		startTime: time.Now(),
		version:   version.Get(),
	}
}

// SetLogBuffer exposes buffered log lines at /api/logs
func (s *Server) SetLogBuffer(lb *logbuffer.Buffer) {
	s.logBuffer = lb
}

// SetMetricsHandler serves h at /metrics
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metricsHandler = h
}

// SetChannels lists the configured notification channels in /status
func (s *Server) SetChannels(names []string) {
	s.channels = names
}

// SetVersion overrides the reported build information
func (s *Server) SetVersion(info version.Info) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = info
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleCreateAlert)
	mux.HandleFunc("GET /api/alerts/{id}", s.handleGetAlert)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", s.handleResolveAlert)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/observations", s.handleObservation)
	mux.HandleFunc("GET /api/logs", s.handleLogsAPI)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("address", s.addr).
			Msg("Starting HTTP API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns current state summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.versionMu.RLock()
	info := s.version
	s.versionMu.RUnlock()

	channels := s.channels
	if channels == nil {
		channels = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_alerts": s.engine.ActiveCount(),
		"channels":      channels,
		"time":          time.Now().UTC().Format(time.RFC3339),
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"version":       info.Version,
		"commit":        info.Commit,
		"build_date":    info.BuildDate,
	})
}

// handleAlerts returns active alerts, optionally filtered
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.Filter{
		Environment: q.Get("environment"),
		Source:      q.Get("source"),
	}
	if raw := q.Get("severity"); raw != "" {
		sev, err := types.ParseSeverity(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", alerter.ErrInvalidArgument, err))
			return
		}
		filter.Severity = sev
	}

	alerts := s.engine.GetActiveAlerts(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alerter.CreateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.engine.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if out.Merged {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	alert, ok := s.engine.GetAlertByID(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", alerter.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type resolveRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.engine.Resolve(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.engine.History()
	if id := r.URL.Query().Get("alert_id"); id != "" {
		filtered := history[:0]
		for _, entry := range history {
			if entry.Alert.ID == id {
				filtered = append(filtered, entry)
			}
		}
		history = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": history,
		"count":   len(history),
	})
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	if s.evaluator == nil {
		http.Error(w, "evaluator not configured", http.StatusServiceUnavailable)
		return
	}

	var obs evaluator.Observation
	if err := decodeBody(r, &obs, false); err != nil {
		writeError(w, err)
		return
	}

	out, raised, err := s.evaluator.Evaluate(r.Context(), obs)
	if err != nil {
		writeError(w, err)
		return
	}
	if !raised {
		writeJSON(w, http.StatusOK, map[string]any{"alert_raised": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alert_raised": true,
		"alert":        out.Alert,
		"merged":       out.Merged,
		"delivery":     out.Delivery,
	})
}

// handleLogsAPI returns recent log entries as JSON
func (s *Server) handleLogsAPI(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", alerter.ErrInvalidArgument))
			return
		}
		limit = n
	}

	entries := []logbuffer.Entry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.Recent(limit, r.URL.Query().Get("level"))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// decodeBody reads a JSON body. With allowEmpty an empty body leaves v untouched.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", alerter.ErrInvalidArgument, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, alerter.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alerter.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, alerter.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
