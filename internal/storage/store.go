// Package storage keeps a history of form submissions.
// It stores metadata only: no credentials, payload values or report rows.
package storage

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a submission record.
type Status string

const (
	StatusInFlight Status = "in_flight"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	// StatusStale is a reply that was discarded because a newer submission
	// for the same provider had started.
	StatusStale Status = "stale"
)

// Submission is one submitted report request.
type Submission struct {
	ID       string `json:"id"`
	TSStart  int64  `json:"ts_start"` // unix ms
	TSEnd    *int64 `json:"ts_end"`   // nil until the reply arrives
	Status   Status `json:"status"`
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint"`

	// Selection shape
	Dimensions int `json:"dimensions"`
	Metrics    int `json:"metrics"`

	// Reply
	Rows          int    `json:"rows"`
	HTTPStatus    int    `json:"http_status"`
	ResponseBytes int64  `json:"response_bytes"`
	DurationMs    int    `json:"duration_ms"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SubmissionUpdate holds the fields set when a submission completes.
type SubmissionUpdate struct {
	TSEnd         *int64
	Status        *Status
	Rows          *int
	HTTPStatus    *int
	ResponseBytes *int64
	DurationMs    *int
	ErrorKind     *string
	Error         *string
}

// ListOptions filters for listing submissions.
type ListOptions struct {
	Limit    int
	Offset   int
	Status   *Status
	Provider string
	Window   time.Duration // only submissions started within this window
}

// Overview contains summary statistics for a time window.
type Overview struct {
	TotalSubmissions int     `json:"total_submissions"`
	SuccessCount     int     `json:"success_count"`
	FailedCount      int     `json:"failed_count"`
	StaleCount       int     `json:"stale_count"`
	SuccessRate      float64 `json:"success_rate"`
	AvgDurationMs    int     `json:"avg_duration_ms"`
	P95DurationMs    int     `json:"p95_duration_ms"`
	TotalRows        int     `json:"total_rows"`
	TotalBytes       int64   `json:"total_bytes"`
}

// ProviderStat is a per-provider rollup.
type ProviderStat struct {
	Provider        string  `json:"provider"`
	SubmissionCount int     `json:"submission_count"`
	SuccessRate     float64 `json:"success_rate"`
	DurationP95Ms   int     `json:"duration_p95_ms"`
	AvgRows         float64 `json:"avg_rows"`
	LastSubmittedAt int64   `json:"last_submitted_at"`
}

// DataPoint represents a single point in a time series.
type DataPoint struct {
	Timestamp int64   `json:"ts"` // unix ms (bin start)
	Value     float64 `json:"value"`
}

// Series metrics.
const (
	SeriesSubmissions = "submissions"
	SeriesDurationP95 = "duration_p95"
	SeriesRows        = "rows"
)

// SeriesOptions configures time series queries.
type SeriesOptions struct {
	Window   time.Duration
	Metric   string // submissions, duration_p95, rows
	Provider string // optional filter
}

// Store is the interface for submission history.
type Store interface {
	// Insert creates a record when a submission starts.
	Insert(sub *Submission) error

	// Update fills in the outcome.
	Update(id string, upd SubmissionUpdate) error

	// GetByID returns nil, nil when the id is unknown.
	GetByID(id string) (*Submission, error)

	// List returns submissions newest first.
	List(opts ListOptions) ([]Submission, error)

	Overview(window time.Duration) (*Overview, error)

	// ProviderStats is ordered by submission count, highest first.
	ProviderStats(window time.Duration) ([]ProviderStat, error)

	Series(opts SeriesOptions) ([]DataPoint, error)

	InFlightCount() (int, error)

	Close() error
}

// GetBinConfig returns the number of bins and interval for a time window.
func GetBinConfig(window time.Duration) (bins int, interval time.Duration) {
	switch {
	case window <= time.Hour:
		return 60, time.Minute
	case window <= 24*time.Hour:
		return 96, 15 * time.Minute
	default:
		return 168, time.Hour
	}
}

// p95 expects sorted input.
func p95(sorted []int) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func newBins(window time.Duration, now time.Time) ([]DataPoint, time.Time, time.Duration) {
	bins, interval := GetBinConfig(window)
	cutoff := now.Add(-window)
	points := make([]DataPoint, bins)
	for i := range points {
		points[i] = DataPoint{Timestamp: cutoff.Add(time.Duration(i) * interval).UnixMilli()}
	}
	return points, cutoff, interval
}

// binIndex maps a timestamp onto a bin. The window end is inclusive.
func binIndex(ts int64, cutoff time.Time, interval time.Duration, bins int) int {
	idx := int((ts - cutoff.UnixMilli()) / interval.Milliseconds())
	if idx == bins {
		idx--
	}
	return idx
}

// aggregateBin reduces the raw values that fell into one bin.
func aggregateBin(metric string, vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	switch metric {
	case SeriesSubmissions:
		return float64(len(vals))
	case SeriesRows:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum
	case SeriesDurationP95:
		sort.Float64s(vals)
		idx := int(float64(len(vals)) * 0.95)
		if idx >= len(vals) {
			idx = len(vals) - 1
		}
		return vals[idx]
	}
	return 0
}
