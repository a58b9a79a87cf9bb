package supervisor

import (
	"sync"
	"time"
)

// SubmissionStatus is the final state of a submission.
type SubmissionStatus string

const (
	StatusSuccess SubmissionStatus = "success"
	StatusFailed  SubmissionStatus = "failed"
	// StatusStale marks a reply that arrived after a newer submission for
	// the same provider had started; it was not shown.
	StatusStale SubmissionStatus = "stale"
)

// SubmissionInfo tracks the lifecycle of one form submission.
type SubmissionInfo struct {
	ID        string           `json:"id"`
	Provider  string           `json:"provider"`
	Endpoint  string           `json:"endpoint"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Status    SubmissionStatus `json:"status,omitempty"`
	Rows      int              `json:"rows"`
	Message   string           `json:"message,omitempty"`
}

// Tracker maintains in-flight and recent submissions.
type Tracker struct {
	mu          sync.RWMutex
	inFlight    map[string]*SubmissionInfo
	recent      []SubmissionInfo // circular buffer
	recentHead  int              // index of oldest entry (next to overwrite)
	recentCount int
	maxRecent   int
	eventBus    *EventBus
	metrics     *Metrics
}

// NewTracker creates a tracker keeping at most maxRecent finished submissions.
// eventBus and metrics may be nil.
func NewTracker(maxRecent int, eventBus *EventBus, metrics *Metrics) *Tracker {
	if maxRecent < 0 {
		maxRecent = 0
	}
	return &Tracker{
		inFlight:  make(map[string]*SubmissionInfo),
		recent:    make([]SubmissionInfo, maxRecent),
		maxRecent: maxRecent,
		eventBus:  eventBus,
		metrics:   metrics,
	}
}

// Start registers a submission as in-flight. message is the loading text
// shown while it runs.
func (t *Tracker) Start(id, provider, endpoint, message string) {
	now := time.Now()
	t.mu.Lock()
	t.inFlight[id] = &SubmissionInfo{
		ID:        id,
		Provider:  provider,
		Endpoint:  endpoint,
		StartTime: now,
		Message:   message,
	}
	inFlightCount := len(t.inFlight)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.UpdateInFlight(inFlightCount)
	}

	if t.eventBus != nil {
		t.eventBus.Publish(Event{
			Type:         EventSubmitStart,
			SubmissionID: id,
			Provider:     provider,
			Timestamp:    now,
			Message:      message,
		})
	}
}

// Get returns a copy of the in-flight submission, or nil.
func (t *Tracker) Get(id string) *SubmissionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.inFlight[id]
	if !ok {
		return nil
	}
	cp := *info
	return &cp
}

// Finish completes a submission and moves it to the recent buffer.
func (t *Tracker) Finish(id string, status SubmissionStatus, rows int, message string) {
	t.mu.Lock()
	info, ok := t.inFlight[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.inFlight, id)

	now := time.Now()
	info.EndTime = &now
	info.Status = status
	info.Rows = rows
	info.Message = message

	if t.maxRecent > 0 {
		t.recent[t.recentHead] = *info
		t.recentHead = (t.recentHead + 1) % t.maxRecent
		if t.recentCount < t.maxRecent {
			t.recentCount++
		}
	}
	inFlightCount := len(t.inFlight)
	duration := now.Sub(info.StartTime)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordSubmission(info.Provider, status, duration, rows)
		t.metrics.UpdateInFlight(inFlightCount)
	}

	if t.eventBus != nil {
		var eventType EventType
		switch status {
		case StatusSuccess:
			eventType = EventSubmitDone
		case StatusStale:
			eventType = EventSubmitStale
		default:
			eventType = EventSubmitFailed
		}
		t.eventBus.Publish(Event{
			Type:         eventType,
			SubmissionID: id,
			Provider:     info.Provider,
			Timestamp:    now,
			Status:       status,
			Rows:         rows,
			DurationMs:   duration.Milliseconds(),
			Message:      message,
		})
	}
}

// InFlight returns how many submissions are running for provider, or for
// all providers when provider is empty.
func (t *Tracker) InFlight(provider string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if provider == "" {
		return len(t.inFlight)
	}
	n := 0
	for _, info := range t.inFlight {
		if info.Provider == provider {
			n++
		}
	}
	return n
}

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	InFlight map[string]SubmissionInfo `json:"in_flight"`
	Recent   []SubmissionInfo          `json:"recent"`
}

// Snapshot returns a thread-safe snapshot of current tracking state.
// Recent entries are ordered oldest to newest.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := Snapshot{
		InFlight: make(map[string]SubmissionInfo, len(t.inFlight)),
		Recent:   make([]SubmissionInfo, 0, t.recentCount),
	}
	for id, info := range t.inFlight {
		snapshot.InFlight[id] = *info
	}

	if t.recentCount > 0 {
		start := 0
		if t.recentCount == t.maxRecent {
			start = t.recentHead
		}
		for i := 0; i < t.recentCount; i++ {
			idx := (start + i) % t.maxRecent
			snapshot.Recent = append(snapshot.Recent, t.recent[idx])
		}
	}
	return snapshot
}
