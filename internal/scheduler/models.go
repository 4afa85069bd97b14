package scheduler

import (
	"time"

	id "heirloom/pkg/domain"
)

// Frequency names how often a user's triggers are re-evaluated.
// Realtime users are evaluated on every mutation rather than by the
// ticker, so the scheduler skips them.
type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyMinute   Frequency = "minute"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
)

var frequencyIntervals = map[Frequency]time.Duration{
	FrequencyMinute: time.Minute,
	FrequencyHourly: time.Hour,
	FrequencyDaily:  24 * time.Hour,
	FrequencyWeekly: 7 * 24 * time.Hour,
}

// Interval returns the tick interval, or zero for realtime.
func (f Frequency) Interval() time.Duration {
	return frequencyIntervals[f]
}

// Valid reports whether the frequency is a known value.
func (f Frequency) Valid() bool {
	if f == FrequencyRealtime {
		return true
	}
	_, ok := frequencyIntervals[f]
	return ok
}

// EvaluationSchedule is one user's standing evaluation cadence.
type EvaluationSchedule struct {
	UserID    id.UserID
	Frequency Frequency
	NextRun   time.Time
	LastRun   time.Time
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due reports whether the schedule should run at the given instant.
func (s EvaluationSchedule) Due(now time.Time) bool {
	if !s.Enabled || s.Frequency == FrequencyRealtime {
		return false
	}
	return !now.Before(s.NextRun)
}
