package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/you/alarmchain/models"
)

// Granularity is the bucket size of a timeline
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity accepts daily, weekly or monthly (case-insensitive). Empty means monthly.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Monthly, nil
	case Daily, Weekly, Monthly:
		return g, nil
	}
	return "", &models.ValidationError{
		Field:  "granularity",
		Reason: fmt.Sprintf("%q is not one of daily, weekly, monthly", s),
	}
}

// Period is one timeline bucket
type Period struct {
	Period string    `json:"period"`
	Count  int       `json:"count"`
	Date   string    `json:"date"` // bucket start, YYYY-MM-DD
	Start  time.Time `json:"-"`
}

// BucketStart returns the first day of the bucket containing day.
// Weeks start on Monday.
func BucketStart(day time.Time, g Granularity) time.Time {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch g {
	case Weekly:
		offset := (int(start.Weekday()) + 6) % 7 // days since Monday
		return start.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
	return start
}

// PeriodLabel formats a bucket start for display
func PeriodLabel(start time.Time, g Granularity) string {
	switch g {
	case Weekly:
		return start.Format(models.DateLayout) + "/" + start.AddDate(0, 0, 6).Format(models.DateLayout)
	case Monthly:
		return start.Format("2006-01")
	}
	return start.Format(models.DateLayout)
}

// Timeline buckets records by date. Only non-empty buckets are returned,
// oldest first; counts sum to len(view).
func Timeline(view []*models.Incident, g Granularity) []Period {
	counts := make(map[time.Time]int)
	for _, rec := range view {
		counts[BucketStart(rec.Date, g)]++
	}

	periods := make([]Period, 0, len(counts))
	for start, n := range counts {
		periods = append(periods, Period{
			Period: PeriodLabel(start, g),
			Count:  n,
			Date:   start.Format(models.DateLayout),
			Start:  start,
		})
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Start.Before(periods[j].Start)
	})
	return periods
}

// PeriodCounts extracts the counts of a timeline
func PeriodCounts(periods []Period) []int {
	out := make([]int, len(periods))
	for i, p := range periods {
		out[i] = p.Count
	}
	return out
}

// FillDaily returns a continuous per-day series of at most lastN days ending at
// the latest record date, with zero for days without incidents.
func FillDaily(view []*models.Incident, lastN int) []int {
	if len(view) == 0 || lastN <= 0 {
		return []int{}
	}

	counts := make(map[time.Time]int)
	var first, last time.Time
	for i, rec := range view {
		d := rec.Day()
		counts[d]++
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}

	span := int(last.Sub(first).Hours()/24) + 1
	if span > lastN {
		span = lastN
	}
	series := make([]int, span)
	start := last.AddDate(0, 0, -(span - 1))
	for i := range series {
		series[i] = counts[start.AddDate(0, 0, i)]
	}
	return series
}
