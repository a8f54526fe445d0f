package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/internal/history"
	"github.com/PhucNguyen204/logwarden/pkg/engine"
	"github.com/PhucNguyen204/logwarden/pkg/matches"
	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

// Engine is the part of the engine exposed over HTTP.
type Engine interface {
	Stats() engine.Stats
	Rules() []*rule.Rule
	Matches() *matches.Matches
}

// TriggerStore lists persisted triggers.
type TriggerStore interface {
	ListTriggers(ctx context.Context, limit int, rule string) ([]matches.Trigger, error)
}

// AppServer serves the read-only status API.
type AppServer struct {
	engine  Engine
	history *history.History
	store   TriggerStore
	started time.Time
	log     zerolog.Logger
}

// NewAppServer builds the status API. history and store may be nil.
func NewAppServer(e Engine, h *history.History, store TriggerStore, log zerolog.Logger) *AppServer {
	return &AppServer{
		engine:  e,
		history: h,
		store:   store,
		started: time.Now(),
		log:     log.With().Str("component", "server").Logger(),
	}
}

// RegisterRoutes wires HTTP handlers.
func (s *AppServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.HandleFunc("/api/v1/counters", s.handleCounters)
	mux.HandleFunc("/api/v1/triggers", s.handleTriggers)
}

// Handler returns a mux with every route registered.
func (s *AppServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *AppServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("status server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ---- Handlers ----

func (s *AppServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *AppServer) handleStats(w http.ResponseWriter, r *http.Request) {
	type statsResp struct {
		engine.Stats
		Rules         int     `json:"rules"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	writeJSON(w, http.StatusOK, statsResp{
		Stats:         s.engine.Stats(),
		Rules:         len(s.engine.Rules()),
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

func (s *AppServer) handleRules(w http.ResponseWriter, r *http.Request) {
	type ruleResp struct {
		Name     string   `json:"name"`
		Filter   string   `json:"filter"`
		Patterns int      `json:"patterns"`
		Limit    int      `json:"limit"`
		Action   string   `json:"action"`
		Unit     string   `json:"unit,omitempty"`
		Keywords []string `json:"keywords,omitempty"`
		MaxKeys  int      `json:"max_keys,omitempty"`
	}
	rules := s.engine.Rules()
	out := make([]ruleResp, 0, len(rules))
	for _, ru := range rules {
		out = append(out, ruleResp{
			Name:     ru.Name(),
			Filter:   ru.FilterSource(),
			Patterns: ru.Filter().Len(),
			Limit:    ru.Limit(),
			Action:   ru.Action().String(),
			Unit:     ru.Unit(),
			Keywords: ru.Filter().Prefilter().Keywords(),
			MaxKeys:  ru.MaxKeys(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *AppServer) handleCounters(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Matches().Snapshot()
	if name := r.URL.Query().Get("rule"); name != "" {
		filtered := snap[:0:0]
		for _, c := range snap {
			if c.Rule == name {
				filtered = append(filtered, c)
			}
		}
		snap = filtered
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTriggers lists recent triggers from memory, or from the database
// with ?source=db.
func (s *AppServer) handleTriggers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 200
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	name := q.Get("rule")

	switch q.Get("source") {
	case "db":
		if s.store == nil {
			writeErr(w, http.StatusNotFound, errors.New("no database configured"))
			return
		}
		out, err := s.store.ListTriggers(r.Context(), limit, name)
		if err != nil {
			s.log.Error().Err(err).Msg("list triggers")
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "", "memory":
		out := []matches.Trigger{}
		if s.history != nil {
			out = append(out, s.history.List(limit, name)...)
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeErr(w, http.StatusBadRequest, errors.New("source must be memory or db"))
	}
}

// ---- Helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
