// Package control implements the Control Server (§4.J): a small HTTP API
// for reloading the registry, inspecting alert state, pausing an alert,
// validating a candidate definition, and injecting events.
package control

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/beyondessential/alertd/internal/alertdef"
	"github.com/beyondessential/alertd/internal/events"
	"github.com/beyondessential/alertd/internal/interval"
	"github.com/beyondessential/alertd/internal/registry"
	"github.com/beyondessential/alertd/internal/scheduler"
	"github.com/beyondessential/alertd/internal/state"
)

// DefaultBindAddrs are tried in order; the first one that succeeds wins.
// IPv6 loopback is preferred, matching the daemon's default posture of
// only listening on localhost.
var DefaultBindAddrs = []string{"[::1]:8271", "127.0.0.1:8271"}

// Server is the Control Server's HTTP surface.
type Server struct {
	Registry     *registry.Registry
	Scheduler    *scheduler.Scheduler
	State        state.Store
	IntervalFloor time.Duration
	Log          *zap.Logger

	router chi.Router
}

// New builds a Server with its routes wired.
func New(reg *registry.Registry, sched *scheduler.Scheduler, store state.Store, intervalFloor time.Duration, log *zap.Logger) *Server {
	s := &Server{Registry: reg, Scheduler: sched, State: store, IntervalFloor: intervalFloor, Log: log}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Post("/reload", s.handleReload)
	r.Get("/alerts", s.handleAlerts)
	r.Post("/pause", s.handlePause)
	r.Post("/validate", s.handleValidate)
	r.Post("/events", s.handleEvents)
	return r
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen binds to the first address in DefaultBindAddrs (or addrs, if
// given) that succeeds, returning the bound listener.
func Listen(addrs []string) (net.Listener, error) {
	if len(addrs) == 0 {
		addrs = DefaultBindAddrs
	}
	var lastErr error
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("binding control server: %w", lastErr)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.Scheduler.Reconcile(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

type alertSummary struct {
	File    string `json:"file"`
	Enabled bool   `json:"enabled"`
	Source  string `json:"source"`
	Detail  *alertDetail `json:"detail,omitempty"`
}

type alertDetail struct {
	Interval    string `json:"interval"`
	AlwaysSend  bool   `json:"always_send"`
	Triggered   bool   `json:"triggered"`
	LastFiredAt string `json:"last_fired_at,omitempty"`
	PausedUntil string `json:"paused_until,omitempty"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))

	defs := s.Registry.Definitions()
	summaries := make([]alertSummary, 0, len(defs))
	for _, def := range defs {
		summary := alertSummary{File: def.File, Enabled: def.Enabled, Source: string(def.Source.Kind)}
		if detail {
			entry, err := s.State.Get(r.Context(), def.File)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			d := &alertDetail{Interval: def.Interval, AlwaysSend: def.AlwaysSend, Triggered: entry.Triggered}
			if !entry.LastFiredAt.IsZero() {
				d.LastFiredAt = entry.LastFiredAt.Format(time.RFC3339)
			}
			if !entry.PausedUntil.IsZero() {
				d.PausedUntil = entry.PausedUntil.Format(time.RFC3339)
			}
			summary.Detail = d
		}
		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, summaries)
}

// defaultPauseDuration is applied when a pause request omits until, per
// the control API's documented default.
const defaultPauseDuration = 7 * 24 * time.Hour

type pauseRequest struct {
	Alert string `json:"alert"`
	Until string `json:"until"` // rfc3339 or a fuzzy-relative offset ("1 hour"); empty means "now + 1 week"
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Alert == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("alert is required"))
		return
	}

	if !s.Registry.Has(req.Alert) {
		writeError(w, http.StatusConflict, fmt.Errorf("cannot pause unknown alert %s", req.Alert))
		return
	}

	now := time.Now()
	until := now.Add(defaultPauseDuration)
	if req.Until != "" {
		parsed, err := parsePauseUntil(req.Until, now)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parsing until: %w", err))
			return
		}
		until = parsed
	}

	if err := s.State.Pause(r.Context(), req.Alert, until); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// parsePauseUntil accepts either an RFC3339 timestamp or a fuzzy-relative
// offset in the same grammar as an alert's interval ("1 hour", "30m",
// "3600"), applied to base.
func parsePauseUntil(s string, base time.Time) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed, nil
	}
	offset, err := interval.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a valid rfc3339 timestamp or relative offset: %w", err)
	}
	return base.Add(offset), nil
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// yamlPosition matches the "line N: " (and, where present, "column N: ")
// prefix yaml.v3 embeds in its error messages, so a rejected definition can
// point an editor at the offending line instead of only a bare message.
var yamlPosition = regexp.MustCompile(`line (\d+)(?:: column (\d+))?`)

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := readAll(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	def, err := alertdef.ParseDefinition(body, "<validate>")
	if err == nil {
		err = alertdef.Normalize(def, s.IntervalFloor, nil)
	}
	if err != nil {
		resp := validateResponse{Valid: false, Error: err.Error()}
		if m := yamlPosition.FindStringSubmatch(err.Error()); m != nil {
			resp.Line, _ = strconv.Atoi(m[1])
			if m[2] != "" {
				resp.Column, _ = strconv.Atoi(m[2])
			}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.Scheduler.HandleEvent(r.Context(), ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// requestIDHeader is set on every response so callers (and logs) can
// correlate a request across the Control Server and whatever it touches.
const requestIDHeader = "X-Request-Id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLog writes one operator-facing line per request via logrus, kept
// separate from the zap-based internal logging the rest of the daemon
// uses for its own operational concerns.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  rec.Header().Get(requestIDHeader),
		}).Info("control server request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
