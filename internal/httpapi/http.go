// Package httpapi serves the query API, the chat WebSocket and the /ops
// endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"hermes/internal/config"
	"hermes/internal/conversation"
	"hermes/internal/metrics"
	"hermes/internal/service"
	"hermes/internal/store"
	"hermes/queue"
)

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg     config.Config
	service *service.Service
	store   *store.Store
	queue   *queue.Queue
	origins map[string]bool
	logger  zerolog.Logger
}

func NewRouter(cfg config.Config, svc *service.Service, st *store.Store, q *queue.Queue, logger zerolog.Logger) *Router {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}
	return &Router{
		cfg:     cfg,
		service: svc,
		store:   st,
		queue:   q,
		origins: origins,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.Handle("/api/data", r.cors(http.HandlerFunc(r.data)))
	mux.Handle("/api/query", r.cors(http.HandlerFunc(r.query)))
	mux.HandleFunc("/api/ws/chat", r.chat)
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/runs", r.runs)
	mux.HandleFunc("/ops/status", r.status)
	mux.Handle("/metrics", metrics.Handler())
}

func (r *Router) allowedOrigin(origin string) bool {
	return r.origins[strings.TrimRight(origin, "/")]
}

func (r *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if origin := req.Header.Get("Origin"); origin != "" && r.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) data(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ds, err := r.service.Dataset(req.Context())
	if err != nil {
		r.logger.Error().Err(err).Msg("load dataset")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, r.logger, ds.Rows())
}

type queryRequest struct {
	Query   string              `json:"query"`
	History []conversation.Turn `json:"history"`
}

func (r *Router) query(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body queryRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	st, err := r.service.Ask(req.Context(), "http", body.Query, body.History)
	if err != nil {
		writeAskError(w, r.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(st.Response); err != nil {
		r.logger.Warn().Err(err).Msg("write response")
	}
}

func writeAskError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if errors.Is(err, service.ErrBusy) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	logger.Error().Err(err).Msg("query failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (r *Router) runs(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.store.ListRuns(req.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, r.logger, list)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	recent, _ := r.store.ListRuns(req.Context(), 5)
	respondJSON(w, r.logger, map[string]any{
		"queue":         r.queue.Stats(),
		"workers":       r.cfg.WorkerCount,
		"history_limit": r.cfg.HistoryLimit,
		"recent_runs":   recent,
	})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !r.queue.Healthy() {
		http.Error(w, "queue not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, logger zerolog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn().Err(err).Msg("write json")
	}
}
