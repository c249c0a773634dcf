// Package report aggregates net operations into summary statistics and
// renders them as PDF or XLSX documents.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FilterError reports an invalid filter field.
type FilterError struct {
	Field  string
	Reason string
}

func (e *FilterError) Error() string { return e.Field + ": " + e.Reason }

// Filter selects the operations a report covers. Dates hold UTC midnight of
// the requested calendar day.
type Filter struct {
	OperatorID *uint64
	StartDate  *time.Time
	EndDate    *time.Time
}

const dateLayout = "2006-01-02"

// ParseFilter validates raw request values. An empty or "all" operatorID
// means every operator; otherwise it must be a positive integer id. Dates
// accept YYYY-MM-DD or RFC 3339; only the UTC calendar date is kept.
func ParseFilter(operatorID, startDate, endDate string) (Filter, error) {
	var f Filter

	operatorID = strings.TrimSpace(operatorID)
	if operatorID != "" && !strings.EqualFold(operatorID, "all") {
		id, err := strconv.ParseUint(operatorID, 10, 64)
		if err != nil || id == 0 {
			return f, &FilterError{Field: "operatorId", Reason: "must be \"all\" or a valid operator id"}
		}
		f.OperatorID = &id
	}

	var err error
	if f.StartDate, err = parseDate(startDate); err != nil {
		return f, &FilterError{Field: "startDate", Reason: "invalid date"}
	}
	if f.EndDate, err = parseDate(endDate); err != nil {
		return f, &FilterError{Field: "endDate", Reason: "invalid date"}
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, &FilterError{Field: "endDate", Reason: "must not be before startDate"}
	}
	return f, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return nil, err
		}
	}
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day, nil
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Millisecond)
}

// Window converts the date filter into inclusive start-time bounds:
//   - start only: that single day
//   - end only: everything up to the end of that day
//   - both: start of the first day through end of the last
func (f Filter) Window() (from, to *time.Time) {
	switch {
	case f.StartDate != nil && f.EndDate != nil:
		lo, hi := *f.StartDate, endOfDay(*f.EndDate)
		return &lo, &hi
	case f.StartDate != nil:
		lo, hi := *f.StartDate, endOfDay(*f.StartDate)
		return &lo, &hi
	case f.EndDate != nil:
		hi := endOfDay(*f.EndDate)
		return nil, &hi
	}
	return nil, nil
}

// DateRange describes the date filter for report headers.
func (f Filter) DateRange() string {
	switch {
	case f.StartDate != nil && f.EndDate != nil:
		return fmt.Sprintf("%s to %s", f.StartDate.Format(dateLayout), f.EndDate.Format(dateLayout))
	case f.StartDate != nil:
		return f.StartDate.Format(dateLayout)
	case f.EndDate != nil:
		return "Through " + f.EndDate.Format(dateLayout)
	}
	return "All Dates"
}
