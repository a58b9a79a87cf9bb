package api

import (
	"net/http"
	"time"

	"manual-polling-tool/internal/storage"
)

// OverviewResponse contains summary statistics and time series data.
type OverviewResponse struct {
	Summary   SummaryData            `json:"summary"`
	Series    SeriesData             `json:"series"`
	Providers []storage.ProviderStat `json:"providers"`
}

// SummaryData contains aggregate statistics.
type SummaryData struct {
	storage.Overview
	InFlight int `json:"in_flight"`
}

// SeriesData contains time-binned chart data.
type SeriesData struct {
	Submissions []storage.DataPoint `json:"submissions"`
	DurationP95 []storage.DataPoint `json:"duration_p95"`
	Rows        []storage.DataPoint `json:"rows"`
}

// handleOverview returns summary statistics and time series.
// GET /api/v1/overview?window=1h|24h|7d
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	window := parseWindow(r)
	cacheKey := window.String()
	cacheable := cachedWindows[window]

	if v, ok := s.overviewCache.Get(cacheKey); ok && cacheable {
		if cached := v.(*cachedOverview); time.Now().Before(cached.expiresAt) {
			s.writeJSON(w, cached.data)
			return
		}
	}

	overview, err := s.store.Overview(window)
	if err != nil {
		s.logger.Error("failed to get overview", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get overview")
		return
	}
	stats, err := s.store.ProviderStats(window)
	if err != nil {
		s.logger.Error("failed to get provider stats", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get overview")
		return
	}

	inFlight, _ := s.store.InFlightCount()
	submissions, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.SeriesSubmissions})
	durations, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.SeriesDurationP95})
	rows, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.SeriesRows})

	resp := &OverviewResponse{
		Summary: SummaryData{Overview: *overview, InFlight: inFlight},
		Series: SeriesData{
			Submissions: submissions,
			DurationP95: durations,
			Rows:        rows,
		},
		Providers: stats,
	}

	if cacheable {
		s.pruneOverviewCache(time.Now())
		s.overviewCache.Set(cacheKey, &cachedOverview{
			data:      resp,
			expiresAt: time.Now().Add(overviewCacheDuration),
		})
	}

	s.writeJSON(w, resp)
}

func (s *Server) pruneOverviewCache(now time.Time) {
	for k, v := range s.overviewCache.Items() {
		if !now.Before(v.(*cachedOverview).expiresAt) {
			s.overviewCache.Remove(k)
		}
	}
}

// SubmissionListResponse contains a page of submissions.
type SubmissionListResponse struct {
	Submissions []storage.Submission `json:"submissions"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// handleListSubmissions returns a paginated list of submissions.
// GET /api/v1/submissions?limit=50&offset=0&status=&provider=&window=24h
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 50)
	offset := parseInt(q.Get("offset"), 0)

	opts := storage.ListOptions{
		Limit:    limit,
		Offset:   offset,
		Window:   parseWindow(r),
		Provider: q.Get("provider"),
	}
	if status := q.Get("status"); status != "" {
		st := storage.Status(status)
		opts.Status = &st
	}

	subs, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("failed to list submissions", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	if subs == nil {
		subs = []storage.Submission{}
	}

	s.writeJSON(w, SubmissionListResponse{
		Submissions: subs,
		Limit:       limit,
		Offset:      offset,
	})
}

// handleGetSubmission returns a single submission.
// GET /api/v1/submissions/{id}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	sub, err := s.store.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get submission", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get submission")
		return
	}
	if sub == nil {
		s.writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	s.writeJSON(w, sub)
}

// ConfigResponse contains the non-secret runtime configuration.
type ConfigResponse struct {
	Mode             string `json:"mode"`
	BackendURL       string `json:"backend_url"`
	SubmitPolicy     string `json:"submit_policy"`
	SubmitTimeoutMs  int64  `json:"submit_timeout_ms"`
	DateLookbackDays int    `json:"date_lookback_days"`
	Storage          string `json:"storage"`
	StorageMaxRows   int    `json:"storage_max_rows"`
	Providers        int    `json:"providers"`
	Features         struct {
		API         bool `json:"api"`
		Events      bool `json:"events"`
		Metrics     bool `json:"metrics"`
		Storage     bool `json:"storage"`
		HealthCheck bool `json:"health_check"`
	} `json:"features"`
}

// handleConfig returns the current configuration.
// GET /api/v1/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	features := s.cfg.Features()

	resp := ConfigResponse{
		Mode:             string(s.cfg.Mode),
		BackendURL:       s.cfg.BackendURL,
		SubmitPolicy:     string(s.cfg.SubmitPolicy),
		SubmitTimeoutMs:  s.cfg.SubmitTimeout.Milliseconds(),
		DateLookbackDays: s.cfg.DateLookbackDays,
		Storage:          string(s.cfg.Storage),
		StorageMaxRows:   s.cfg.StorageMaxRows,
		Providers:        s.board.Registry().Len(),
	}
	resp.Features.API = features.API
	resp.Features.Events = features.Events
	resp.Features.Metrics = features.Metrics
	resp.Features.Storage = features.Storage
	resp.Features.HealthCheck = features.HealthCheck

	s.writeJSON(w, resp)
}
