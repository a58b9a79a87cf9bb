// Package web serves the HTML polling console together with the JSON API,
// server-sent events, metrics and health endpoints.
package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manual-polling-tool/internal/api"
	"manual-polling-tool/internal/config"
	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/storage"
	"manual-polling-tool/internal/supervisor"
	assets "manual-polling-tool/web"
)

// Handler is the root http.Handler of the console.
type Handler struct {
	cfg           config.Config
	features      config.Features
	logger        *slog.Logger
	board         *form.Board
	store         storage.Store
	apiServer     *api.Server
	tracker       *supervisor.Tracker
	eventBus      *supervisor.EventBus
	metrics       *supervisor.Metrics
	healthChecker *supervisor.HealthChecker
	page          *template.Template
	staticFS      fs.FS
	notes         map[string]template.HTML
}

// NewHandler constructs the console handler. Everything except cfg, board
// and logger may be nil.
func NewHandler(
	cfg config.Config,
	board *form.Board,
	store storage.Store,
	apiServer *api.Server,
	tracker *supervisor.Tracker,
	eventBus *supervisor.EventBus,
	metrics *supervisor.Metrics,
	healthChecker *supervisor.HealthChecker,
	logger *slog.Logger,
) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	staticAssets, err := assets.Static()
	if err != nil {
		logger.Warn("failed to load static assets", "err", err)
	}

	notes := make(map[string]template.HTML, board.Registry().Len())
	for _, schema := range board.Registry().Schemas() {
		if schema.Notes != "" {
			notes[schema.ID] = RenderNotes(schema.Notes)
		}
	}

	return &Handler{
		cfg:           cfg,
		features:      cfg.Features(),
		logger:        logger,
		board:         board,
		store:         store,
		apiServer:     apiServer,
		tracker:       tracker,
		eventBus:      eventBus,
		metrics:       metrics,
		healthChecker: healthChecker,
		page:          page,
		staticFS:      staticAssets,
		notes:         notes,
	}, nil
}

// ServeHTTP routes console, API and operational endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS
	if h.cfg.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// API endpoints (when enabled)
	if h.features.API && h.apiServer != nil && h.apiServer.Handles(r.URL.Path) {
		h.apiServer.ServeHTTP(w, r)
		return
	}

	path := r.URL.Path
	switch {
	case h.features.Metrics && path == "/metrics" && r.Method == http.MethodGet:
		h.handleMetrics(w, r)
	case path == "/healthz":
		h.handleHealthz(w, r)
	case path == "/healthz/backend":
		h.handleHealthzBackend(w, r)
	case h.features.Events && path == "/events" && r.Method == http.MethodGet:
		h.handleSSEEvents(w, r)
	case path == "/debug/submissions" && r.Method == http.MethodGet:
		h.handleDebugSubmissions(w, r)
	case strings.HasPrefix(path, "/static/") && r.Method == http.MethodGet:
		h.handleStatic(w, r)
	case path == "/" && r.Method == http.MethodGet:
		h.handleIndex(w, r)
	case strings.HasPrefix(path, "/providers/"):
		h.routeProvider(w, r, strings.TrimPrefix(path, "/providers/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) routeProvider(w http.ResponseWriter, r *http.Request, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	ctrl, ok := h.board.Controller(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "submit" && r.Method == http.MethodPost:
		h.handleSubmit(w, r, ctrl)
	case action == "report.json" && r.Method == http.MethodGet:
		h.handleReport(w, r, ctrl)
	case action == "submit" || action == "report.json":
		w.Header().Set("Allow", allowedMethod(action))
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

func allowedMethod(action string) string {
	if action == "submit" {
		return http.MethodPost
	}
	return http.MethodGet
}

// handleIndex renders every provider panel; ?tab= selects the active one.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, r.URL.Query().Get("tab"), nil, "")
}

// handleSubmit runs a form-encoded submission and re-renders the console
// with the submitted provider active and its selections kept.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request, ctrl *form.Controller) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.RequestBodyMaxBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	schema := ctrl.Schema()
	st := form.StateFromValues(schema, r.PostForm)

	submitted := form.NewForm(schema, h.board.Seeder())
	submitted.Apply(st)

	code, notice := http.StatusOK, ""
	if _, err := ctrl.Submit(r.Context(), st); err != nil {
		code = http.StatusConflict
		if !errors.Is(err, form.ErrSubmissionInFlight) {
			code = http.StatusInternalServerError
			h.logger.Error("submit failed", "err", err, "provider", schema.ID)
		}
		notice = err.Error()
	}

	h.render(w, code, schema.ID, submitted, notice)
}

// handleReport downloads the current report of a provider.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request, ctrl *form.Controller) {
	report, ok := ctrl.Panel().Report()
	if !ok {
		http.Error(w, "no report available", http.StatusNotFound)
		return
	}
	api.WriteReport(w, report)
}

func (h *Handler) handleDebugSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		http.Error(w, "tracker not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.tracker.Snapshot())
}

func (h *Handler) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		http.Error(w, "event bus not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	eventCh := h.eventBus.Subscribe()
	defer h.eventBus.Unsubscribe(eventCh)

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sseData, err := supervisor.FormatSSEEvent(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte(sseData)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}

// handleHealthz reports liveness of the console itself. The backend being
// down does not make the console unhealthy; see /healthz/backend.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleHealthzBackend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.healthChecker == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy":    true,
			"checked":    false,
			"last_check": time.Now().Format(time.RFC3339),
		})
		return
	}

	healthy := h.healthChecker.Healthy()
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]any{
		"healthy":    healthy,
		"checked":    true,
		"last_check": h.healthChecker.LastCheck().Format(time.RFC3339),
	}
	if lastError := h.healthChecker.LastError(); lastError != "" {
		response["last_error"] = lastError
	}
	_ = json.NewEncoder(w).Encode(response)
}
