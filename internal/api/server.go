// Package api provides the versioned JSON API of the polling console.
// All endpoints are under /api/v1/ so they never collide with the HTML pages.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map"

	"manual-polling-tool/internal/config"
	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/storage"
)

const (
	// APIPrefix is the base path for all API endpoints.
	APIPrefix = "/api/v1"

	// Cache duration for overview responses (prevents refresh storms).
	overviewCacheDuration = 2 * time.Second
)

// Server handles API requests for the provider forms and submission history.
type Server struct {
	board  *form.Board
	store  storage.Store
	cfg    config.Config
	logger *slog.Logger

	// window -> *cachedOverview, named windows only
	overviewCache cmap.ConcurrentMap
}

// cachedWindows are the overview windows worth caching. Other durations are
// computed on every request so the cache stays bounded.
var cachedWindows = map[time.Duration]bool{
	time.Hour:          true,
	24 * time.Hour:     true,
	7 * 24 * time.Hour: true,
}

type cachedOverview struct {
	data      *OverviewResponse
	expiresAt time.Time
}

// NewServer creates a new API server. store may be nil when history is off.
func NewServer(board *form.Board, store storage.Store, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		board:         board,
		store:         store,
		cfg:           cfg,
		logger:        logger,
		overviewCache: cmap.New(),
	}
}

// ServeHTTP handles API requests.
// It expects paths starting with /api/v1/.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	if path == r.URL.Path {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case path == "/providers" && r.Method == http.MethodGet:
		s.handleListProviders(w, r)
	case strings.HasPrefix(path, "/providers/"):
		s.routeProvider(w, r, strings.TrimPrefix(path, "/providers/"))
	case path == "/submissions" && r.Method == http.MethodGet:
		s.handleListSubmissions(w, r)
	case strings.HasPrefix(path, "/submissions/") && r.Method == http.MethodGet:
		s.handleGetSubmission(w, r, strings.TrimPrefix(path, "/submissions/"))
	case path == "/overview" && r.Method == http.MethodGet:
		s.handleOverview(w, r)
	case path == "/config" && r.Method == http.MethodGet:
		s.handleConfig(w, r)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

// routeProvider dispatches /providers/{id}[/action].
func (s *Server) routeProvider(w http.ResponseWriter, r *http.Request, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	ctrl, ok := s.board.Controller(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown provider: "+id)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetProvider(w, r, ctrl)
	case action == "submit" && r.Method == http.MethodPost:
		s.handleSubmit(w, r, ctrl)
	case action == "panel" && r.Method == http.MethodGet:
		s.writeJSON(w, ctrl.Panel().View())
	case action == "report" && r.Method == http.MethodGet:
		s.handleReport(w, r, ctrl)
	case action == "submit", action == "panel", action == "report", action == "":
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

// Handles reports whether path belongs to the API.
func (s *Server) Handles(path string) bool {
	return strings.HasPrefix(path, APIPrefix)
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parseWindow(r *http.Request) time.Duration {
	w := r.URL.Query().Get("window")
	switch w {
	case "1h":
		return time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "24h", "":
		return 24 * time.Hour
	default:
		if d, err := time.ParseDuration(w); err == nil && d > 0 {
			return d
		}
		return 24 * time.Hour
	}
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
