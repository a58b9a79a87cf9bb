package form

import (
	"time"

	"manual-polling-tool/internal/registry"
)

const (
	// DateLayout is the format of every date input.
	DateLayout = "2006-01-02"
	// DefaultLookbackDays is the default distance between start and end date.
	DefaultLookbackDays = 7
)

// DefaultRange returns the seeded start and end dates for now.
func DefaultRange(now time.Time, lookbackDays int) (start, end string) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return now.AddDate(0, 0, -lookbackDays).Format(DateLayout), now.Format(DateLayout)
}

// DateSeeder fills date inputs with the default range.
type DateSeeder struct {
	LookbackDays int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewDateSeeder returns a seeder using the wall clock.
func NewDateSeeder(lookbackDays int) *DateSeeder {
	return &DateSeeder{LookbackDays: lookbackDays}
}

func (s *DateSeeder) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Range returns the current default start and end dates.
func (s *DateSeeder) Range() (start, end string) {
	days := DefaultLookbackDays
	if s != nil {
		days = s.LookbackDays
	}
	return DefaultRange(s.now(), days)
}

// Seed sets every untouched date input: end dates to today, start dates to
// today minus the lookback. Other inputs are left alone.
func (s *DateSeeder) Seed(inputs []*Input) {
	start, end := s.Range()
	for _, in := range inputs {
		if in == nil || in.touched {
			continue
		}
		switch in.Field.Role {
		case registry.RoleStartDate:
			in.Value = start
		case registry.RoleEndDate:
			in.Value = end
		}
	}
}
