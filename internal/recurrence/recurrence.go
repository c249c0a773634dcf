// Package recurrence expands a scheduled net's recurrence rule into the
// start times of the additional occurrences, covering roughly one year.
package recurrence

import (
	"errors"
	"time"
)

// Rule names how a scheduled net repeats.
type Rule string

const (
	None     Rule = "none"
	Daily    Rule = "daily"
	Weekly   Rule = "weekly"
	BiWeekly Rule = "bi-weekly"
	Monthly  Rule = "monthly"
)

// ErrUnknownRule is returned for rules outside the supported set.
var ErrUnknownRule = errors.New("unknown recurrence rule")

type step struct {
	days   int
	months int
	count  int
}

var steps = map[Rule]step{
	Daily:    {days: 1, count: 364},
	Weekly:   {days: 7, count: 51},
	BiWeekly: {days: 14, count: 25},
	Monthly:  {months: 1, count: 11},
}

// Parse validates s as a rule. The empty string means None.
func Parse(s string) (Rule, error) {
	r := Rule(s)
	if s == "" || r == None {
		return None, nil
	}
	if _, ok := steps[r]; !ok {
		return "", ErrUnknownRule
	}
	return r, nil
}

// Count returns how many occurrences beyond the first the rule produces.
func (r Rule) Count() int { return steps[r].count }

// Expand returns the start times that follow start under rule, excluding
// start itself. Every occurrence is offset from start rather than from the
// previous one. Monthly occurrences land in consecutive calendar months with
// the day clamped to the month's length (Jan 31 -> Feb 28 -> Mar 31), so no
// month is skipped or repeated. Results are strictly increasing.
func Expand(start time.Time, rule Rule) ([]time.Time, error) {
	if rule == None || rule == "" {
		return []time.Time{}, nil
	}
	st, ok := steps[rule]
	if !ok {
		return nil, ErrUnknownRule
	}
	out := make([]time.Time, 0, st.count)
	for i := 1; i <= st.count; i++ {
		if st.months > 0 {
			out = append(out, addMonths(start, st.months*i))
			continue
		}
		out = append(out, start.AddDate(0, 0, st.days*i))
	}
	return out, nil
}

// addMonths moves t forward n calendar months, keeping the time of day and
// clamping the day to the last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
