package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    ts_start INTEGER NOT NULL,
    ts_end INTEGER,
    status TEXT NOT NULL DEFAULT 'in_flight',
    provider TEXT NOT NULL,
    endpoint TEXT,

    dimensions INTEGER DEFAULT 0,
    metrics INTEGER DEFAULT 0,

    rows_fetched INTEGER DEFAULT 0,
    http_status INTEGER DEFAULT 0,
    response_bytes INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error_kind TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_submissions_ts_start ON submissions(ts_start);
CREATE INDEX IF NOT EXISTS idx_submissions_provider_ts ON submissions(provider, ts_start);
CREATE INDEX IF NOT EXISTS idx_submissions_status_ts ON submissions(status, ts_start);
`

const selectColumns = `
	id, ts_start, ts_end, status, provider, endpoint,
	dimensions, metrics,
	rows_fetched, http_status, response_bytes, duration_ms, error_kind, error
`

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	pruneMu sync.Mutex
	logger  *slog.Logger
}

// NewSQLiteStore opens (or creates) the history database at path.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// Insert creates a new submission record.
func (s *SQLiteStore) Insert(sub *Submission) error {
	_, err := s.db.Exec(`
		INSERT INTO submissions (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID, sub.TSStart, sub.TSEnd, string(sub.Status), sub.Provider, sub.Endpoint,
		sub.Dimensions, sub.Metrics,
		sub.Rows, sub.HTTPStatus, sub.ResponseBytes, sub.DurationMs, sub.ErrorKind, sub.Error,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	// Best effort, off the request path.
	go s.maybePrune()

	return nil
}

// Update fills in the outcome of a submission.
func (s *SQLiteStore) Update(id string, upd SubmissionUpdate) error {
	var sets []string
	var args []any

	if upd.TSEnd != nil {
		sets = append(sets, "ts_end = ?")
		args = append(args, *upd.TSEnd)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Rows != nil {
		sets = append(sets, "rows_fetched = ?")
		args = append(args, *upd.Rows)
	}
	if upd.HTTPStatus != nil {
		sets = append(sets, "http_status = ?")
		args = append(args, *upd.HTTPStatus)
	}
	if upd.ResponseBytes != nil {
		sets = append(sets, "response_bytes = ?")
		args = append(args, *upd.ResponseBytes)
	}
	if upd.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *upd.DurationMs)
	}
	if upd.ErrorKind != nil {
		sets = append(sets, "error_kind = ?")
		args = append(args, *upd.ErrorKind)
	}
	if upd.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *upd.Error)
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE submissions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// GetByID retrieves a single submission.
func (s *SQLiteStore) GetByID(id string) (*Submission, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM submissions WHERE id = ?`, id)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// List retrieves submissions with filtering, newest first.
func (s *SQLiteStore) List(opts ListOptions) ([]Submission, error) {
	query := `SELECT ` + selectColumns + ` FROM submissions WHERE 1=1`
	var args []any

	if opts.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*opts.Status))
	}
	if opts.Provider != "" {
		query += " AND provider = ?"
		args = append(args, opts.Provider)
	}
	if opts.Window > 0 {
		cutoff := time.Now().UnixMilli() - opts.Window.Milliseconds()
		query += " AND ts_start >= ?"
		args = append(args, cutoff)
	}

	query += " ORDER BY ts_start DESC, rowid DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Overview returns aggregate statistics.
func (s *SQLiteStore) Overview(window time.Duration) (*Overview, error) {
	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'stale' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status != 'in_flight' THEN duration_ms END), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN rows_fetched ELSE 0 END), 0),
			COALESCE(SUM(response_bytes), 0)
		FROM submissions
		WHERE ts_start >= ?
	`, cutoff)

	var o Overview
	var avgDur float64
	err := row.Scan(&o.TotalSubmissions, &o.SuccessCount, &o.FailedCount, &o.StaleCount,
		&avgDur, &o.TotalRows, &o.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("overview query: %w", err)
	}

	o.AvgDurationMs = int(avgDur)
	if o.TotalSubmissions > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalSubmissions)
	}

	durations, err := s.durations(cutoff, "")
	if err != nil {
		return nil, err
	}
	o.P95DurationMs = p95(durations)

	return &o, nil
}

// ProviderStats returns per-provider statistics.
func (s *SQLiteStore) ProviderStats(window time.Duration) ([]ProviderStat, error) {
	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	rows, err := s.db.Query(`
		SELECT
			provider,
			COUNT(*) AS submission_count,
			AVG(CASE WHEN status = 'success' THEN 1.0 ELSE 0.0 END),
			COALESCE(AVG(CASE WHEN status = 'success' THEN rows_fetched END), 0),
			MAX(ts_start)
		FROM submissions
		WHERE ts_start >= ? AND provider != ''
		GROUP BY provider
		ORDER BY submission_count DESC, provider ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("provider stats query: %w", err)
	}

	var stats []ProviderStat
	for rows.Next() {
		var ps ProviderStat
		if err := rows.Scan(&ps.Provider, &ps.SubmissionCount, &ps.SuccessRate, &ps.AvgRows, &ps.LastSubmittedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan provider stat: %w", err)
		}
		stats = append(stats, ps)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Single connection: the rows above must be closed before querying again.
	for i := range stats {
		durations, err := s.durations(cutoff, stats[i].Provider)
		if err != nil {
			return nil, err
		}
		stats[i].DurationP95Ms = p95(durations)
	}
	return stats, nil
}

// durations returns completed submission durations, sorted ascending.
func (s *SQLiteStore) durations(cutoff int64, provider string) ([]int, error) {
	query := `SELECT duration_ms FROM submissions WHERE ts_start >= ? AND status != 'in_flight'`
	args := []any{cutoff}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY duration_ms ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("duration query: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Series returns time-binned data for charts.
func (s *SQLiteStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	points, cutoff, interval := newBins(opts.Window, time.Now())

	baseWhere := "ts_start >= ?"
	args := []any{cutoff.UnixMilli()}
	if opts.Provider != "" {
		baseWhere += " AND provider = ?"
		args = append(args, opts.Provider)
	}

	var query string
	switch opts.Metric {
	case SeriesSubmissions:
		query = `SELECT ts_start, 1 FROM submissions WHERE ` + baseWhere
	case SeriesDurationP95:
		query = `SELECT ts_start, duration_ms FROM submissions WHERE ` + baseWhere + ` AND status != 'in_flight'`
	case SeriesRows:
		query = `SELECT ts_start, rows_fetched FROM submissions WHERE ` + baseWhere + ` AND status = 'success'`
	default:
		return points, nil
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("series query: %w", err)
	}
	defer rows.Close()

	binValues := make([][]float64, len(points))
	for rows.Next() {
		var tsStart int64
		var value float64
		if err := rows.Scan(&tsStart, &value); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		binIdx := binIndex(tsStart, cutoff, interval, len(points))
		if binIdx >= 0 && binIdx < len(points) {
			binValues[binIdx] = append(binValues[binIdx], value)
		}
	}

	for i, vals := range binValues {
		points[i].Value = aggregateBin(opts.Metric, vals)
	}
	return points, rows.Err()
}

// InFlightCount returns the number of in-flight submissions.
func (s *SQLiteStore) InFlightCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE status = 'in_flight'`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()
	return s.db.Close()
}

// maybePrune deletes the oldest rows once the table exceeds maxRows.
func (s *SQLiteStore) maybePrune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	if s.maxRows <= 0 {
		return
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&count); err != nil {
		if !errors.Is(err, sql.ErrConnDone) && !strings.Contains(err.Error(), "closed") {
			s.logger.Error("prune count query failed", "err", err)
		}
		return
	}
	if count <= s.maxRows {
		return
	}

	toDelete := count - s.maxRows
	const batchSize = 500
	if toDelete > batchSize {
		toDelete = batchSize
	}

	_, err := s.db.Exec(`
		DELETE FROM submissions WHERE id IN (
			SELECT id FROM submissions ORDER BY ts_start ASC, rowid ASC LIMIT ?
		)
	`, toDelete)
	if err != nil {
		s.logger.Error("prune failed", "err", err)
	} else {
		s.logger.Debug("pruned old submissions", "deleted", toDelete)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var tsEnd sql.NullInt64
	var status string
	var endpoint, errorKind, errMsg sql.NullString

	err := row.Scan(
		&sub.ID, &sub.TSStart, &tsEnd, &status, &sub.Provider, &endpoint,
		&sub.Dimensions, &sub.Metrics,
		&sub.Rows, &sub.HTTPStatus, &sub.ResponseBytes, &sub.DurationMs, &errorKind, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if tsEnd.Valid {
		sub.TSEnd = &tsEnd.Int64
	}
	sub.Status = Status(status)
	sub.Endpoint = endpoint.String
	sub.ErrorKind = errorKind.String
	sub.Error = errMsg.String
	return &sub, nil
}
