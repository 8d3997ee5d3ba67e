// Package domain holds the productivity goal and rollup types.
//
// Goals resolve per metric: an agent-period override wins when set, the
// tenant default applies otherwise, and a missing value means the metric is
// disabled and excluded from compliance.
package domain

import (
	"fmt"
	"math"
	"time"

	"crm_core_backend/platform/apperr"

	"github.com/google/uuid"
)

// Granularity of a summary period.
const (
	GranularityMonthly = "monthly"
	GranularityWeekly  = "weekly"
)

// GoalSet carries one nullable target per metric. A nil pointer means
// "not set at this level", which is distinct from an explicit zero.
type GoalSet struct {
	Contacts  *int
	Captures  *int
	Sales     *int
	Calls     *int
	Visits    *int
	Proposals *int
}

// Goals is a fully resolved target set. Zero means the metric is disabled.
type Goals struct {
	Contacts  int `json:"contacts"`
	Captures  int `json:"captures"`
	Sales     int `json:"sales"`
	Calls     int `json:"calls"`
	Visits    int `json:"visits"`
	Proposals int `json:"proposals"`
}

// ResolveGoals merges the override on top of the tenant defaults.
func ResolveGoals(override, tenant GoalSet) Goals {
	pick := func(o, t *int) int {
		if o != nil {
			return *o
		}
		if t != nil {
			return *t
		}
		return 0
	}
	return Goals{
		Contacts:  pick(override.Contacts, tenant.Contacts),
		Captures:  pick(override.Captures, tenant.Captures),
		Sales:     pick(override.Sales, tenant.Sales),
		Calls:     pick(override.Calls, tenant.Calls),
		Visits:    pick(override.Visits, tenant.Visits),
		Proposals: pick(override.Proposals, tenant.Proposals),
	}
}

// Counters holds the actual activity counts for one agent and period.
type Counters struct {
	Contacts  int `json:"contacts"`
	Captures  int `json:"captures"`
	Sales     int `json:"sales"`
	Calls     int `json:"calls"`
	Visits    int `json:"visits"`
	Proposals int `json:"proposals"`
}

// Compliance returns the mean per-metric completion percentage, each metric
// capped at 100. Metrics with no goal are excluded; no enabled metrics
// yields zero. Rounded to two decimals to match the stored precision.
func Compliance(actual Counters, goals Goals) float64 {
	type pair struct{ actual, goal int }
	pairs := []pair{
		{actual.Contacts, goals.Contacts},
		{actual.Captures, goals.Captures},
		{actual.Sales, goals.Sales},
		{actual.Calls, goals.Calls},
		{actual.Visits, goals.Visits},
		{actual.Proposals, goals.Proposals},
	}

	var sum float64
	var enabled int
	for _, p := range pairs {
		if p.goal <= 0 {
			continue
		}
		ratio := float64(p.actual) / float64(p.goal)
		if ratio > 1 {
			ratio = 1
		}
		sum += ratio
		enabled++
	}
	if enabled == 0 {
		return 0
	}
	return math.Round(sum/float64(enabled)*100*100) / 100
}

// Summary is the cached rollup row for one agent and period.
type Summary struct {
	TenantID      uuid.UUID `json:"tenantId"`
	AgentID       uuid.UUID `json:"agentId"`
	Period        string    `json:"period"`
	Granularity   string    `json:"granularity"`
	Counters      Counters  `json:"counters"`
	PctCompliance float64   `json:"pctCompliance"`
	ComputedAt    time.Time `json:"computedAt"`
}

// Equivalent reports whether two summaries carry the same derived values,
// ignoring when they were computed. Used to skip rewriting unchanged rows.
func (s Summary) Equivalent(other Summary) bool {
	return s.TenantID == other.TenantID &&
		s.AgentID == other.AgentID &&
		s.Period == other.Period &&
		s.Granularity == other.Granularity &&
		s.Counters == other.Counters &&
		s.PctCompliance == other.PctCompliance
}

// ValidatePeriod checks the period string against the granularity:
// "2006-01" for monthly, "2006-W02" for ISO-week periods.
func ValidatePeriod(period, granularity string) error {
	switch granularity {
	case GranularityMonthly:
		if _, err := time.Parse("2006-01", period); err != nil {
			return apperr.Validation("period must be formatted as YYYY-MM")
		}
		return nil
	case GranularityWeekly:
		var year, week int
		if _, err := fmt.Sscanf(period, "%4d-W%2d", &year, &week); err != nil || week < 1 || week > 53 {
			return apperr.Validation("period must be formatted as YYYY-Www")
		}
		return nil
	default:
		return apperr.Validation("granularity must be monthly or weekly")
	}
}

// PeriodRange returns the half-open [from, to) UTC time range the period
// covers. ValidatePeriod must have accepted the inputs first.
func PeriodRange(period, granularity string) (time.Time, time.Time, error) {
	switch granularity {
	case GranularityMonthly:
		from, err := time.Parse("2006-01", period)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("period must be formatted as YYYY-MM")
		}
		return from, from.AddDate(0, 1, 0), nil
	case GranularityWeekly:
		var year, week int
		if _, err := fmt.Sscanf(period, "%4d-W%2d", &year, &week); err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("period must be formatted as YYYY-Www")
		}
		from := isoWeekStart(year, week)
		return from, from.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, apperr.Validation("granularity must be monthly or weekly")
	}
}

// isoWeekStart returns the Monday starting the given ISO week.
func isoWeekStart(year, week int) time.Time {
	// Jan 4 is always in ISO week 1.
	t := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, 1-weekday)
	return monday.AddDate(0, 0, (week-1)*7)
}

// CurrentPeriod formats now into the period string for a granularity.
func CurrentPeriod(now time.Time, granularity string) string {
	if granularity == GranularityWeekly {
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return now.Format("2006-01")
}
