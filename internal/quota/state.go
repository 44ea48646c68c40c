// Package quota implements the free-tier usage gate: a daily analysis
// allowance, bonus analyses earned from rewarded ads, and the pro bypass.
package quota

import "time"

// DateLayout is the format of State.LastResetDate.
const DateLayout = "2006-01-02"

// State is one device's quota. It only changes through Reduce.
type State struct {
	DailyUsageCount int    `json:"dailyUsageCount" db:"daily_usage_count"`
	BonusQuota      int    `json:"bonusQuota" db:"bonus_quota"`
	LastResetDate   string `json:"lastResetDate" db:"last_reset_date"`
	IsPro           bool   `json:"isPro" db:"is_pro"`
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// DayObserved is emitted whenever the gate looks at the state. A date that
// differs from LastResetDate resets both counters.
type DayObserved struct {
	Date string
}

// AnalysisSucceeded consumes one analysis.
type AnalysisSucceeded struct{}

// AnalysisReleased returns an analysis reserved on Date that produced no
// result. It has no effect once the day has rolled over.
type AnalysisReleased struct {
	Date string
}

// RewardCredited grants one bonus analysis.
type RewardCredited struct{}

// ProChanged sets the entitlement.
type ProChanged struct {
	IsPro bool
}

func (DayObserved) event()       {}
func (AnalysisSucceeded) event() {}
func (AnalysisReleased) event()  {}
func (RewardCredited) event()    {}
func (ProChanged) event()        {}

// Reduce applies e to s and returns the new state. It has no side effects.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case DayObserved:
		if e.Date != "" && s.LastResetDate != e.Date {
			s.DailyUsageCount = 0
			s.BonusQuota = 0
			s.LastResetDate = e.Date
		}
	case AnalysisSucceeded:
		s.DailyUsageCount++
	case AnalysisReleased:
		if s.LastResetDate == e.Date && s.DailyUsageCount > 0 {
			s.DailyUsageCount--
		}
	case RewardCredited:
		s.BonusQuota++
	case ProChanged:
		s.IsPro = e.IsPro
	}
	return s
}

// Allowance is the number of analyses allowed today.
func (s State) Allowance(freeDailyLimit int) int {
	return freeDailyLimit + s.BonusQuota
}

// Remaining is how many analyses are left today, never negative.
func (s State) Remaining(freeDailyLimit int) int {
	if r := s.Allowance(freeDailyLimit) - s.DailyUsageCount; r > 0 {
		return r
	}
	return 0
}

// Today formats now in loc as a State date.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateLayout)
}
