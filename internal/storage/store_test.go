package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestGetBinConfig(t *testing.T) {
	tests := []struct {
		window       time.Duration
		wantBins     int
		wantInterval time.Duration
	}{
		{30 * time.Minute, 60, time.Minute},
		{time.Hour, 60, time.Minute},
		{2 * time.Hour, 96, 15 * time.Minute},
		{24 * time.Hour, 96, 15 * time.Minute},
		{48 * time.Hour, 168, time.Hour},
		{7 * 24 * time.Hour, 168, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			bins, interval := GetBinConfig(tt.window)
			if bins != tt.wantBins {
				t.Errorf("bins = %d, want %d", bins, tt.wantBins)
			}
			if interval != tt.wantInterval {
				t.Errorf("interval = %v, want %v", interval, tt.wantInterval)
			}
		})
	}
}

func TestAggregateBin(t *testing.T) {
	if got := aggregateBin(SeriesSubmissions, []float64{1, 1, 1}); got != 3 {
		t.Errorf("submissions = %v, want 3", got)
	}
	if got := aggregateBin(SeriesRows, []float64{2, 3}); got != 5 {
		t.Errorf("rows = %v, want 5", got)
	}
	if got := aggregateBin(SeriesDurationP95, []float64{300, 100, 200}); got != 300 {
		t.Errorf("duration_p95 = %v, want 300", got)
	}
	if got := aggregateBin(SeriesRows, nil); got != 0 {
		t.Errorf("empty bin = %v, want 0", got)
	}
}

func TestMemoryStore_RingBuffer(t *testing.T) {
	store := NewMemoryStore(3)

	now := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		_ = store.Insert(&Submission{
			ID:       fmt.Sprintf("m%d", i),
			TSStart:  now,
			Status:   StatusInFlight,
			Provider: "inmobi",
		})
	}

	if got, _ := store.GetByID("m0"); got != nil {
		t.Error("m0 should have been evicted")
	}

	list, _ := store.List(ListOptions{})
	if len(list) != 3 || list[0].ID != "m4" || list[2].ID != "m2" {
		t.Fatalf("list = %+v", list)
	}

	if n, _ := store.InFlightCount(); n != 3 {
		t.Errorf("InFlightCount = %d, want 3", n)
	}

	status := StatusSuccess
	rows := 7
	end := now + 10
	_ = store.Update("m4", SubmissionUpdate{Status: &status, Rows: &rows, TSEnd: &end})
	_ = store.Update("m0", SubmissionUpdate{Status: &status}) // evicted, ignored

	got, _ := store.GetByID("m4")
	if got.Status != StatusSuccess || got.Rows != 7 || got.TSEnd == nil {
		t.Errorf("updated = %+v", got)
	}
	if n, _ := store.InFlightCount(); n != 2 {
		t.Errorf("InFlightCount = %d, want 2", n)
	}
}

func TestMemoryStore_OverviewAndStats(t *testing.T) {
	store := NewMemoryStore(100)

	now := time.Now().UnixMilli()
	subs := []Submission{
		{ID: "a", Provider: "applovin", Status: StatusSuccess, Rows: 10, DurationMs: 100},
		{ID: "b", Provider: "applovin", Status: StatusSuccess, Rows: 20, DurationMs: 200},
		{ID: "c", Provider: "gam", Status: StatusFailed, DurationMs: 300},
		{ID: "old", Provider: "gam", Status: StatusSuccess, Rows: 99, DurationMs: 1},
	}
	for i := range subs {
		subs[i].TSStart = now
		if subs[i].ID == "old" {
			subs[i].TSStart = now - (2 * time.Hour).Milliseconds()
		}
		_ = store.Insert(&subs[i])
	}

	o, _ := store.Overview(time.Hour)
	if o.TotalSubmissions != 3 || o.SuccessCount != 2 || o.FailedCount != 1 {
		t.Errorf("overview = %+v", o)
	}
	if o.TotalRows != 30 || o.AvgDurationMs != 200 {
		t.Errorf("overview rows/duration = %+v", o)
	}

	stats, _ := store.ProviderStats(time.Hour)
	if len(stats) != 2 || stats[0].Provider != "applovin" || stats[0].SubmissionCount != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[1].SuccessRate != 0 {
		t.Errorf("gam success rate = %v, want 0", stats[1].SuccessRate)
	}

	list, _ := store.List(ListOptions{Window: time.Hour, Provider: "gam"})
	if len(list) != 1 || list[0].ID != "c" {
		t.Errorf("windowed list = %+v", list)
	}

	points, _ := store.Series(SeriesOptions{Window: time.Hour, Metric: SeriesRows})
	var total float64
	for _, p := range points {
		total += p.Value
	}
	if total != 30 {
		t.Errorf("rows series total = %v, want 30", total)
	}
}
