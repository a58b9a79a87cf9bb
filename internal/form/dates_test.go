package form

import (
	"testing"
	"time"

	"manual-polling-tool/internal/registry"
)

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(15 * time.Hour) }
}

func TestDefaultRange(t *testing.T) {
	tests := []struct {
		now       string
		days      int
		wantStart string
		wantEnd   string
	}{
		{"2024-03-15", 7, "2024-03-08", "2024-03-15"},
		{"2024-03-03", 7, "2024-02-25", "2024-03-03"},
		{"2024-01-02", 7, "2023-12-26", "2024-01-02"},
		{"2024-03-15", 0, "2024-03-08", "2024-03-15"},
		{"2024-03-15", 30, "2024-02-14", "2024-03-15"},
	}
	for _, tt := range tests {
		start, end := DefaultRange(fixedClock(tt.now)(), tt.days)
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("DefaultRange(%s, %d) = %s..%s, want %s..%s",
				tt.now, tt.days, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestDateSeeder_Seed(t *testing.T) {
	seeder := &DateSeeder{LookbackDays: 7, Now: fixedClock("2024-03-15")}

	start := &Input{Field: registry.Field{Key: "start_date", Role: registry.RoleStartDate}}
	end := &Input{Field: registry.Field{Key: "end_date", Role: registry.RoleEndDate}}
	other := &Input{Field: registry.Field{Key: "api_key", Role: registry.RoleText}}
	touched := &Input{Field: registry.Field{Key: "from", Role: registry.RoleStartDate}}
	touched.Set("2020-01-01")

	seeder.Seed([]*Input{start, end, other, touched, nil})

	if start.Value != "2024-03-08" {
		t.Errorf("start = %q, want 2024-03-08", start.Value)
	}
	if end.Value != "2024-03-15" {
		t.Errorf("end = %q, want 2024-03-15", end.Value)
	}
	if other.Value != "" {
		t.Errorf("non-date input was seeded: %q", other.Value)
	}
	if touched.Value != "2020-01-01" {
		t.Errorf("user value overwritten: %q", touched.Value)
	}
}

func TestDateSeeder_WallClock(t *testing.T) {
	var seeder *DateSeeder
	start, end := seeder.Range()

	today := time.Now().Format(DateLayout)
	if end != today {
		t.Errorf("end = %s, want today %s", end, today)
	}
	if _, err := time.Parse(DateLayout, start); err != nil {
		t.Errorf("start %q is not YYYY-MM-DD: %v", start, err)
	}
}
