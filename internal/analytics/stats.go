package analytics

import (
	"math"
	"time"

	"github.com/you/alarmchain/models"
)

// TrendThreshold is the relative change between half-series means that counts as a trend
const TrendThreshold = 0.10

// TrendDirection classifies a series
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend compares the mean of the second half of series against the first half.
// With an odd length the middle point belongs to neither half.
func Trend(series []int) TrendDirection {
	if len(series) < 2 {
		return TrendStable
	}
	half := len(series) / 2
	first := MeanOf(series[:half])
	second := MeanOf(series[len(series)-half:])

	if first == 0 {
		if second > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (second - first) / first
	switch {
	case change > TrendThreshold:
		return TrendIncreasing
	case change < -TrendThreshold:
		return TrendDecreasing
	}
	return TrendStable
}

// PercentileRank is the percentage of entities whose count is strictly lower
// than target. Raising target never lowers the result.
func PercentileRank(target int, distribution []int) float64 {
	if len(distribution) == 0 {
		return 0
	}
	lower := 0
	for _, n := range distribution {
		if n < target {
			lower++
		}
	}
	return Round2(float64(lower) / float64(len(distribution)) * 100)
}

// DailyAverage divides count by the calendar days spanned by [from, to], both included.
// An unset or inverted span yields 0.
func DailyAverage(count int, from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	days := int(to.Sub(from).Hours()/24) + 1
	return Round2(float64(count) / float64(days))
}

// DateSpan returns the earliest and latest record day of view
func DateSpan(view []*models.Incident) (first, last time.Time, ok bool) {
	for i, rec := range view {
		d := rec.Day()
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}
	return first, last, len(view) > 0
}

// Weekdays lists day names Monday first
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayCounts counts records per day of week, always returning all seven days
func WeekdayCounts(view []*models.Incident) Counts {
	var perDay [7]int
	for _, rec := range view {
		perDay[rec.Date.Weekday()]++
	}
	counts := make(Counts, len(Weekdays))
	for i, wd := range Weekdays {
		counts[i] = Bucket{Key: wd.String(), Count: perDay[wd], seen: i}
	}
	return counts
}

// Round2 rounds to two decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
