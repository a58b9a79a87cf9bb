package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T, maxRows int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), maxRows, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	store := newTestSQLite(t, 1000)

	sub := &Submission{
		ID:         "test-1",
		TSStart:    time.Now().UnixMilli(),
		Status:     StatusInFlight,
		Provider:   "applovin",
		Endpoint:   "/api/poll/applovin",
		Dimensions: 8,
		Metrics:    4,
	}
	if err := store.Insert(sub); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	got, err := store.GetByID("test-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil")
	}
	if got.Provider != "applovin" || got.Endpoint != "/api/poll/applovin" {
		t.Errorf("got %+v", got)
	}
	if got.Dimensions != 8 || got.Metrics != 4 {
		t.Errorf("selection = %d/%d, want 8/4", got.Dimensions, got.Metrics)
	}
	if got.TSEnd != nil {
		t.Error("TSEnd should be nil before completion")
	}

	missing, err := store.GetByID("nope")
	if err != nil || missing != nil {
		t.Errorf("GetByID(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := newTestSQLite(t, 1000)

	if err := store.Insert(&Submission{
		ID:       "test-update",
		TSStart:  time.Now().UnixMilli(),
		Status:   StatusInFlight,
		Provider: "gam",
	}); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	now := time.Now().UnixMilli()
	status := StatusFailed
	httpStatus := 500
	kind := "http"
	msg := "quota exceeded"
	if err := store.Update("test-update", SubmissionUpdate{
		TSEnd:      &now,
		Status:     &status,
		HTTPStatus: &httpStatus,
		ErrorKind:  &kind,
		Error:      &msg,
	}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := store.GetByID("test-update")
	if got.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", got.Status, StatusFailed)
	}
	if got.HTTPStatus != 500 || got.Error != "quota exceeded" || got.ErrorKind != "http" {
		t.Errorf("got %+v", got)
	}
	if got.TSEnd == nil || *got.TSEnd != now {
		t.Error("TSEnd not stored")
	}

	// Empty update is a no-op.
	if err := store.Update("test-update", SubmissionUpdate{}); err != nil {
		t.Fatalf("empty Update error: %v", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestSQLite(t, 1000)

	now := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		provider := "applovin"
		if i%2 == 1 {
			provider = "gam"
		}
		if err := store.Insert(&Submission{
			ID:       fmt.Sprintf("list-%d", i),
			TSStart:  now - int64(i*1000),
			Status:   StatusSuccess,
			Provider: provider,
		}); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	results, err := store.List(ListOptions{Limit: 5})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("List returned %d items, want 5", len(results))
	}
	if results[0].ID != "list-0" {
		t.Errorf("first = %s, want newest list-0", results[0].ID)
	}

	results, err = store.List(ListOptions{Provider: "gam"})
	if err != nil {
		t.Fatalf("List with provider error: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("List(gam) returned %d items, want 5", len(results))
	}

	results, err = store.List(ListOptions{Offset: 8})
	if err != nil {
		t.Fatalf("List with offset error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("List(offset 8) returned %d items, want 2", len(results))
	}

	failed := StatusFailed
	results, _ = store.List(ListOptions{Status: &failed})
	if len(results) != 0 {
		t.Errorf("List(failed) returned %d items, want 0", len(results))
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := newTestSQLite(t, 5)

	now := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		if err := store.Insert(&Submission{
			ID:       fmt.Sprintf("prune-%d", i),
			TSStart:  now + int64(i*100),
			Status:   StatusSuccess,
			Provider: "fyber",
		}); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}
	store.maybePrune()

	results, err := store.List(ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 rows after pruning, got %d", len(results))
	}
	if results[len(results)-1].ID != "prune-5" {
		t.Errorf("oldest kept = %s, want prune-5", results[len(results)-1].ID)
	}
}

func TestSQLiteStore_OverviewAndStats(t *testing.T) {
	store := newTestSQLite(t, 1000)

	now := time.Now().UnixMilli()
	subs := []Submission{
		{ID: "a", Provider: "applovin", Status: StatusSuccess, Rows: 10, DurationMs: 100, ResponseBytes: 1000},
		{ID: "b", Provider: "applovin", Status: StatusSuccess, Rows: 20, DurationMs: 200, ResponseBytes: 1000},
		{ID: "c", Provider: "applovin", Status: StatusFailed, DurationMs: 300},
		{ID: "d", Provider: "gam", Status: StatusStale, Rows: 5, DurationMs: 400},
		{ID: "e", Provider: "gam", Status: StatusInFlight},
	}
	for i := range subs {
		subs[i].TSStart = now
		if err := store.Insert(&subs[i]); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	o, err := store.Overview(time.Hour)
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}
	if o.TotalSubmissions != 5 || o.SuccessCount != 2 || o.FailedCount != 1 || o.StaleCount != 1 {
		t.Errorf("overview counts = %+v", o)
	}
	if o.TotalRows != 30 {
		t.Errorf("TotalRows = %d, want 30 (stale rows excluded)", o.TotalRows)
	}
	if o.TotalBytes != 2000 {
		t.Errorf("TotalBytes = %d, want 2000", o.TotalBytes)
	}
	if o.AvgDurationMs != 250 {
		t.Errorf("AvgDurationMs = %d, want 250", o.AvgDurationMs)
	}
	if o.P95DurationMs != 400 {
		t.Errorf("P95DurationMs = %d, want 400", o.P95DurationMs)
	}

	stats, err := store.ProviderStats(time.Hour)
	if err != nil {
		t.Fatalf("ProviderStats error: %v", err)
	}
	if len(stats) != 2 || stats[0].Provider != "applovin" {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[0].SubmissionCount != 3 || stats[0].AvgRows != 15 {
		t.Errorf("applovin stat = %+v", stats[0])
	}
	if stats[0].DurationP95Ms != 300 {
		t.Errorf("applovin p95 = %d, want 300", stats[0].DurationP95Ms)
	}

	n, err := store.InFlightCount()
	if err != nil || n != 1 {
		t.Errorf("InFlightCount = %d, %v; want 1", n, err)
	}

	points, err := store.Series(SeriesOptions{Window: time.Hour, Metric: SeriesSubmissions})
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	var total float64
	for _, p := range points {
		total += p.Value
	}
	if len(points) != 60 || total != 5 {
		t.Errorf("series bins=%d total=%v, want 60 bins and 5 submissions", len(points), total)
	}
}

func TestSQLiteStore_WALMode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "wal_test.db")
	store, err := NewSQLiteStore(dbPath, 1000, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}

	var mode string
	if err := store.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode query: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}
