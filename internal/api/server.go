// Package api serves the simulation over HTTP.
// GET endpoints are public observation. POST endpoints drive the run and require
// the control bearer token; with no key configured they are refused unless
// OpenControl is set.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/smokersim/internal/engine"
	"github.com/talgya/smokersim/internal/history"
	"github.com/talgya/smokersim/internal/persistence"
)

// Accepted tick interval range for /api/v1/speed.
const (
	minIntervalMS = 1
	maxIntervalMS = 60 * 60 * 1000
)

// Server serves one engine over HTTP.
type Server struct {
	Eng         *engine.Engine
	History     *history.Recorder
	Hub         *Hub
	DB          *persistence.DB // nil = journal disabled
	Addr        string
	ControlKey  string // Bearer token for POST endpoints.
	OpenControl bool   // Accept unauthenticated POSTs when ControlKey is empty.
	StreamKey   string // Bearer token for the SSE stream. Empty = open.
	CORSOrigins []string

	// Active SSE connection count (atomic).
	sseConns int32

	httpServer *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	chartLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/lung", s.handleLung)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/v1/chart/life-expectancy.png", RateLimitMiddleware(chartLimiter, s.handleChart(history.RenderLifeExpectancy)))
	mux.HandleFunc("/api/v1/chart/risk.png", RateLimitMiddleware(chartLimiter, s.handleChart(history.RenderRisk)))

	// SSE streaming endpoint (optional bearer token).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Control endpoints (POST; GET where a read makes sense).
	mux.HandleFunc("/api/v1/start", s.controlOnly(s.handleStart))
	mux.HandleFunc("/api/v1/pause", s.controlOnly(s.handlePause))
	mux.HandleFunc("/api/v1/reset", s.controlOnly(s.handleReset))
	mux.HandleFunc("/api/v1/inputs", s.controlOnly(s.handleInputs))
	mux.HandleFunc("/api/v1/policy", s.controlOnly(s.handlePolicy))
	mux.HandleFunc("/api/v1/speed", s.controlOnly(s.handleSpeed))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "control_auth", s.ControlKey != "", "stream_auth", s.StreamKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerMatches(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// controlOnly requires the control bearer token on POST requests. Without a key,
// POSTs are refused unless OpenControl is set.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) controlOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			switch {
			case s.ControlKey == "" && !s.OpenControl:
				http.Error(w, "control disabled: no control key configured", http.StatusForbidden)
				return
			case s.ControlKey != "" && !bearerMatches(r, s.ControlKey):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Eng.Snapshot()
	writeJSON(w, map[string]any{
		"name":           "smokersim",
		"run_id":         s.Eng.RunID(),
		"phase":          snap.Phase,
		"outcome":        snap.Outcome,
		"tick":           snap.Tick,
		"age":            snap.Age,
		"interval_ms":    s.Eng.Interval().Milliseconds(),
		"ticking":        s.Eng.Ticking(),
		"journal":        s.DB != nil,
		"stream_clients": s.Hub.Clients(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.Frame{RunID: s.Eng.RunID(), Snapshot: s.Eng.Snapshot()})
}

func (s *Server) handleLung(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Eng.LungHealth())
}

func queryLimit(r *http.Request, def, ceiling int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= ceiling {
			return n
		}
	}
	return def
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 200)
	events := s.Eng.Events()

	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []engine.Event{}
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"run_id":  s.History.RunID(),
		"samples": s.History.Samples(),
	})
}

func (s *Server) handleChart(render func(w io.Writer, samples []history.Sample) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		err := render(&buf, s.History.Samples())
		if errors.Is(err, history.ErrNotEnoughPoints) {
			http.Error(w, "not enough history yet", http.StatusConflict)
			return
		}
		if err != nil {
			slog.Error("chart render failed", "path", r.URL.Path, "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.RecentRuns(queryLimit(r, 20, 100))
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleRunDetail serves GET /api/v1/runs/{id} with the run's events and samples.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if id == "" {
		s.handleRuns(w, r)
		return
	}

	run, err := s.DB.Run(id)
	if errors.Is(err, persistence.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load run failed", "run_id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	events, err := s.DB.RunEvents(id)
	if err != nil {
		slog.Error("load run events failed", "run_id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	samples, err := s.DB.RunSamples(id)
	if err != nil {
		slog.Error("load run samples failed", "run_id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"run":     run,
		"events":  events,
		"samples": samples,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.Eng.Start(); err != nil {
		if errors.Is(err, engine.ErrEnded) {
			http.Error(w, "run has ended; reset first", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.handleSnapshot(w, r)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.Eng.Pause()
	s.handleSnapshot(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.Eng.Reset()
	slog.Info("reset requested", "run_id", s.Eng.RunID())
	s.handleSnapshot(w, r)
}

type initialInputs struct {
	Age        float64 `json:"age"`
	Cigarettes float64 `json:"cigarettes_per_day"`
}

// handleInputs serves and updates the subject's starting values. An idle run is
// rebuilt at once; otherwise the values apply on the next reset.
func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Age        *float64 `json:"age"`
			Cigarettes *float64 `json:"cigarettes_per_day"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		s.Eng.Update(func(sim *engine.Simulation) {
			if req.Age != nil {
				sim.UpdateInitialAge(*req.Age)
			}
			if req.Cigarettes != nil {
				sim.UpdateInitialConsumption(*req.Cigarettes)
			}
		})
	}

	var out initialInputs
	s.Eng.View(func(sim *engine.Simulation) {
		out = initialInputs{Age: sim.InitialAge(), Cigarettes: sim.InitialCigarettes()}
	})
	writeJSON(w, out)
}

type policyRequest struct {
	FamilyInfluence     *bool    `json:"family_influence"`
	SocialInfluence     *float64 `json:"social_influence"`
	SmokerFriends       *bool    `json:"smoker_friends"`
	LifeStress          *float64 `json:"life_stress"`
	TaxRate             *float64 `json:"tax_rate"`
	PublicSmokingBan    *bool    `json:"public_smoking_ban"`
	MinSmokingAge       *float64 `json:"min_smoking_age"`
	RetirementAge       *float64 `json:"retirement_age"`
	SugarRecommendation *float64 `json:"sugar_recommendation"`
	OilRecommendation   *float64 `json:"oil_recommendation"`
}

func (p policyRequest) apply(sim *engine.Simulation) {
	if p.FamilyInfluence != nil {
		sim.SetFamilyInfluence(*p.FamilyInfluence)
	}
	// Checkbox first so an explicit value in the same request wins.
	if p.SmokerFriends != nil {
		sim.SetSmokerFriends(*p.SmokerFriends)
	}
	if p.SocialInfluence != nil {
		sim.SetSocialInfluence(*p.SocialInfluence)
	}
	if p.LifeStress != nil {
		sim.SetLifeStress(*p.LifeStress)
	}
	if p.TaxRate != nil {
		sim.SetTaxRate(*p.TaxRate)
	}
	if p.PublicSmokingBan != nil {
		sim.SetPublicSmokingBan(*p.PublicSmokingBan)
	}
	if p.MinSmokingAge != nil {
		sim.SetMinSmokingAge(*p.MinSmokingAge)
	}
	if p.RetirementAge != nil {
		sim.SetRetirementAge(*p.RetirementAge)
	}
	if p.SugarRecommendation != nil {
		sim.SetSugarRecommendation(*p.SugarRecommendation)
	}
	if p.OilRecommendation != nil {
		sim.SetOilRecommendation(*p.OilRecommendation)
	}
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req policyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		s.Eng.Update(req.apply)
		slog.Info("policy updated", "run_id", s.Eng.RunID())
	}

	var out map[string]any
	s.Eng.View(func(sim *engine.Simulation) {
		out = map[string]any{
			"inputs":                    sim.Inputs(),
			"public_smoking_multiplier": sim.Snapshot().PublicSmokingMultiplier,
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			IntervalMS int64 `json:"interval_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.IntervalMS < minIntervalMS || req.IntervalMS > maxIntervalMS {
			http.Error(w, fmt.Sprintf("interval_ms must be between %d and %d", minIntervalMS, maxIntervalMS), http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetInterval(time.Duration(req.IntervalMS) * time.Millisecond); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("tick interval changed", "interval_ms", req.IntervalMS)
	}

	writeJSON(w, map[string]int64{"interval_ms": s.Eng.Interval().Milliseconds()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
