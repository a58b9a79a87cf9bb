package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory ring buffer.
// This is used when STORAGE=memory or as a fallback.
type MemoryStore struct {
	mu      sync.RWMutex
	subs    []Submission
	byID    map[string]int // ID -> index in subs
	maxRows int
	head    int // next write position
	count   int
}

// NewMemoryStore creates a new in-memory store holding at most maxRows.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows <= 0 {
		maxRows = 1
	}
	return &MemoryStore{
		subs:    make([]Submission, maxRows),
		byID:    make(map[string]int),
		maxRows: maxRows,
	}
}

// Insert adds a submission, evicting the oldest when full.
func (s *MemoryStore) Insert(sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.maxRows {
		delete(s.byID, s.subs[s.head].ID)
	}

	s.subs[s.head] = *sub
	s.byID[sub.ID] = s.head

	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// Update modifies an existing submission. Unknown ids are ignored.
func (s *MemoryStore) Update(id string, upd SubmissionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil
	}

	sub := &s.subs[idx]
	if upd.TSEnd != nil {
		v := *upd.TSEnd
		sub.TSEnd = &v
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.Rows != nil {
		sub.Rows = *upd.Rows
	}
	if upd.HTTPStatus != nil {
		sub.HTTPStatus = *upd.HTTPStatus
	}
	if upd.ResponseBytes != nil {
		sub.ResponseBytes = *upd.ResponseBytes
	}
	if upd.DurationMs != nil {
		sub.DurationMs = *upd.DurationMs
	}
	if upd.ErrorKind != nil {
		sub.ErrorKind = *upd.ErrorKind
	}
	if upd.Error != nil {
		sub.Error = *upd.Error
	}
	return nil
}

// GetByID retrieves a single submission.
func (s *MemoryStore) GetByID(id string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	sub := s.subs[idx]
	return &sub, nil
}

// List returns submissions matching the filter options, newest first.
func (s *MemoryStore) List(opts ListOptions) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := int64(0)
	if opts.Window > 0 {
		cutoff = time.Now().UnixMilli() - opts.Window.Milliseconds()
	}

	var filtered []Submission
	for _, sub := range s.collectOrdered() {
		if opts.Status != nil && sub.Status != *opts.Status {
			continue
		}
		if opts.Provider != "" && sub.Provider != opts.Provider {
			continue
		}
		if cutoff > 0 && sub.TSStart < cutoff {
			continue
		}
		filtered = append(filtered, sub)
	}

	if opts.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Overview returns aggregate statistics.
func (s *MemoryStore) Overview(window time.Duration) (*Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	var o Overview
	var durations []int
	for _, sub := range s.collectOrdered() {
		if sub.TSStart < cutoff {
			continue
		}

		o.TotalSubmissions++
		switch sub.Status {
		case StatusSuccess:
			o.SuccessCount++
			o.TotalRows += sub.Rows
		case StatusFailed:
			o.FailedCount++
		case StatusStale:
			o.StaleCount++
		}
		if sub.Status != StatusInFlight {
			durations = append(durations, sub.DurationMs)
		}
		o.TotalBytes += sub.ResponseBytes
	}

	if o.TotalSubmissions > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalSubmissions)
	}
	if len(durations) > 0 {
		sort.Ints(durations)
		sum := 0
		for _, d := range durations {
			sum += d
		}
		o.AvgDurationMs = sum / len(durations)
		o.P95DurationMs = p95(durations)
	}
	return &o, nil
}

// ProviderStats returns per-provider statistics.
func (s *MemoryStore) ProviderStats(window time.Duration) ([]ProviderStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	byProvider := make(map[string][]Submission)
	for _, sub := range s.collectOrdered() {
		if sub.TSStart < cutoff || sub.Provider == "" {
			continue
		}
		byProvider[sub.Provider] = append(byProvider[sub.Provider], sub)
	}

	stats := make([]ProviderStat, 0, len(byProvider))
	for provider, subs := range byProvider {
		ps := ProviderStat{
			Provider:        provider,
			SubmissionCount: len(subs),
		}

		var successCount, rowSum int
		var durations []int
		for _, sub := range subs {
			if sub.Status == StatusSuccess {
				successCount++
				rowSum += sub.Rows
			}
			if sub.Status != StatusInFlight {
				durations = append(durations, sub.DurationMs)
			}
			if sub.TSStart > ps.LastSubmittedAt {
				ps.LastSubmittedAt = sub.TSStart
			}
		}

		ps.SuccessRate = float64(successCount) / float64(len(subs))
		if successCount > 0 {
			ps.AvgRows = float64(rowSum) / float64(successCount)
		}
		sort.Ints(durations)
		ps.DurationP95Ms = p95(durations)

		stats = append(stats, ps)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].SubmissionCount != stats[j].SubmissionCount {
			return stats[i].SubmissionCount > stats[j].SubmissionCount
		}
		return stats[i].Provider < stats[j].Provider
	})
	return stats, nil
}

// Series returns time-binned data for charts.
func (s *MemoryStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, cutoff, interval := newBins(opts.Window, time.Now())
	binValues := make([][]float64, len(points))

	for _, sub := range s.collectOrdered() {
		if sub.TSStart < cutoff.UnixMilli() {
			continue
		}
		if opts.Provider != "" && sub.Provider != opts.Provider {
			continue
		}

		var value float64
		switch opts.Metric {
		case SeriesSubmissions:
			value = 1
		case SeriesDurationP95:
			if sub.Status == StatusInFlight {
				continue
			}
			value = float64(sub.DurationMs)
		case SeriesRows:
			if sub.Status != StatusSuccess {
				continue
			}
			value = float64(sub.Rows)
		default:
			return points, nil
		}

		binIdx := binIndex(sub.TSStart, cutoff, interval, len(points))
		if binIdx < 0 || binIdx >= len(points) {
			continue
		}
		binValues[binIdx] = append(binValues[binIdx], value)
	}

	for i, vals := range binValues {
		points[i].Value = aggregateBin(opts.Metric, vals)
	}
	return points, nil
}

// InFlightCount returns the number of in-flight submissions.
func (s *MemoryStore) InFlightCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for i := 0; i < s.count; i++ {
		if s.subs[i].Status == StatusInFlight {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// collectOrdered returns all submissions, most recently inserted first.
func (s *MemoryStore) collectOrdered() []Submission {
	if s.count == 0 {
		return nil
	}

	result := make([]Submission, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		result = append(result, s.subs[idx])
	}
	return result
}
