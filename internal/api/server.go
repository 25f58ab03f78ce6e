package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"monitora-dashboard/internal/charts"
	"monitora-dashboard/internal/dashboard"
	"monitora-dashboard/internal/models"
	"monitora-dashboard/internal/poller"
	"monitora-dashboard/internal/view"

	"github.com/gorilla/mux"
)

// History is the recorded snapshot store behind the history endpoints
type History interface {
	QueryHistory(q models.HistoryQuery) ([]models.DeviceSnapshot, error)
	RecentFailures(limit int) ([]models.PollFailure, error)
	GetStats() (map[string]interface{}, error)
}

// Server represents the dashboard HTTP server
type Server struct {
	dash    *dashboard.Dashboard
	fuel    *dashboard.FuelPage
	history History
	hub     *Hub
	router  *mux.Router
}

// NewServer creates a server over both pages. history may be nil.
func NewServer(dash *dashboard.Dashboard, fuel *dashboard.FuelPage, history History) *Server {
	s := &Server{
		dash:    dash,
		fuel:    fuel,
		history: history,
		router:  mux.NewRouter(),
	}
	s.hub = NewHub(s.messages)
	dash.OnUpdate(func(dashboard.Update) { s.hub.Notify() })
	fuel.OnUpdate(func(dashboard.Update) { s.hub.Notify() })
	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.Handle("/ws", s.hub).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Pages
	api.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")
	api.HandleFunc("/fuel", s.handleFuel).Methods("GET")

	// User actions
	api.HandleFunc("/select", s.handleSelect).Methods("POST")
	api.HandleFunc("/filter", s.handleFilter).Methods("POST")
	api.HandleFunc("/range", s.handleRange).Methods("POST")
	api.HandleFunc("/fuel/mode", s.handleFuelMode).Methods("POST")
	api.HandleFunc("/fuel/select", s.handleFuelSelect).Methods("POST")
	api.HandleFunc("/retry/{resource}", s.handleRetry).Methods("POST")

	// Derived and recorded data
	api.HandleFunc("/charts/{metric}.png", s.handleChart).Methods("GET")
	api.HandleFunc("/history/{device_id}", s.handleHistory).Methods("GET")
	api.HandleFunc("/failures", s.handleFailures).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.Use(loggingMiddleware)
	api.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Run pushes page updates to websocket clients until ctx is done
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) messages() []Message {
	return []Message{
		{Type: dashboard.PageDashboard, Data: s.dash.Snapshot()},
		{Type: dashboard.PageFuel, Data: s.fuel.Snapshot()},
	}
}

// Middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"websocket_clients": s.hub.Count(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.dash.Snapshot())
}

func (s *Server) handleFuel(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.fuel.Snapshot())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.DeviceID == "" {
		s.dash.ClearSelection()
	} else {
		s.dash.Select(req.DeviceID)
	}
	respondJSON(w, http.StatusOK, s.dash.Selection())
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	f, err := view.ParseFilter(req.Filter)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.dash.SetFilter(f)
	respondJSON(w, http.StatusOK, s.dash.Selection())
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rng, err := view.ParseTimeRange(req.Minutes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.dash.SetRange(rng)
	respondJSON(w, http.StatusOK, s.dash.Selection())
}

func (s *Server) handleFuelMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	mode, err := view.ParseViewMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.fuel.SetMode(mode)
	respondJSON(w, http.StatusOK, s.fuel.Selection())
}

func (s *Server) handleFuelSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.DeviceID == "" {
		respondError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	s.fuel.Select(req.DeviceID)
	respondJSON(w, http.StatusOK, s.fuel.Selection())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	resource := mux.Vars(r)["resource"]

	err := s.dash.Retry(resource)
	if errors.Is(err, dashboard.ErrUnknownResource) {
		err = s.fuel.Retry(resource)
	}
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"retrying": resource})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	metric, err := charts.ParseMetric(mux.Vars(r)["metric"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	sel := s.dash.Selection()
	if sel.DeviceID == "" {
		respondError(w, http.StatusConflict, "no device selected")
		return
	}
	events, ok := s.dash.Events()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "events not loaded")
		return
	}

	var buf bytes.Buffer
	if err := charts.Render(&buf, sel.DeviceID, metric, view.ChartSeries(events)); err != nil {
		if errors.Is(err, charts.ErrNotEnoughData) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	start := time.Now()

	q := models.HistoryQuery{
		DeviceID: mux.Vars(r)["device_id"],
		Limit:    100, // default
	}

	var err error
	if q.Limit, err = queryInt(r, "limit", q.Limit, 1); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Offset, err = queryInt(r, "offset", 0, 0); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := models.ParseTime(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.StartTime = t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := models.ParseTime(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.EndTime = t
	}

	results, err := s.history.QueryHistory(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithMeta(w, results, &meta{
		Total:   len(results),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

// queryInt reads an integer query parameter, falling back to def when it is absent
func queryInt(r *http.Request, name string, def, floor int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return 0, fmt.Errorf("%s must be an integer >= %d", name, floor)
	}
	return n, nil
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}

	limit, err := queryInt(r, "limit", 50, 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	failures, err := s.history.RecentFailures(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, failures)
}

type statsResponse struct {
	Dashboard        []poller.Stats         `json:"dashboard"`
	Fuel             []poller.Stats         `json:"fuel"`
	History          map[string]interface{} `json:"history,omitempty"`
	WebsocketClients int                    `json:"websocket_clients"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Dashboard:        s.dash.Stats(),
		Fuel:             s.fuel.Stats(),
		WebsocketClients: s.hub.Count(),
	}
	if s.history != nil {
		stats, err := s.history.GetStats()
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.History = stats
	}
	respondJSON(w, http.StatusOK, resp)
}
