package dispute

import (
	"math"
	"time"
)

// Metrics is the derived summary of one owner's cases. It is never stored.
type Metrics struct {
	TotalCases int
	// StatusCounts has an entry for every status in CaseStatuses, zero or not.
	StatusCounts     map[CaseStatus]int
	RequiresFollowUp int
	Overdue          int
	// ActiveTasks counts cases with at least one pending or in-progress task.
	ActiveTasks   int
	TotalDisputed float64
	// DisputedByCurrency splits TotalDisputed per ISO currency code.
	DisputedByCurrency map[string]float64
}

// Workspace is the read view returned by LoadWorkspace.
type Workspace struct {
	Cases       []Case
	Metrics     Metrics
	GeneratedAt time.Time
}

// Summarize folds cases into Metrics as of now. It does no I/O and does not
// modify cases.
func Summarize(cases []Case, now time.Time) Metrics {
	m := Metrics{
		TotalCases:         len(cases),
		StatusCounts:       make(map[CaseStatus]int, len(CaseStatuses)),
		DisputedByCurrency: make(map[string]float64),
	}
	for _, status := range CaseStatuses {
		m.StatusCounts[status] = 0
	}

	for _, c := range cases {
		if c.Status.Valid() {
			m.StatusCounts[c.Status]++
		}
		if c.RequiresFollowUp {
			m.RequiresFollowUp++
		}
		if amount, ok := finiteAmount(c.AmountDisputed); ok {
			m.TotalDisputed += amount
			m.DisputedByCurrency[c.Currency] += amount
		}
		if IsOverdue(c, now) {
			m.Overdue++
		}
		if hasActiveTask(c.Tasks) {
			m.ActiveTasks++
		}
	}
	return m
}

// IsOverdue reports whether c is past its due date without having reached a
// terminal status.
func IsOverdue(c Case, now time.Time) bool {
	return c.DueAt != nil && !c.Status.Terminal() && c.DueAt.Before(now)
}

func hasActiveTask(tasks []Task) bool {
	for _, t := range tasks {
		if t.Status.Valid() && t.Status.Active() {
			return true
		}
	}
	return false
}

func finiteAmount(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}
