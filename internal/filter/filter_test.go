package filter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// sampleDataset has 100 records: 7 for train 12345, the rest spread over other trains
func sampleDataset() *dataset.Dataset {
	ds := &dataset.Dataset{Fingerprint: "sample"}
	for i := 0; i < 100; i++ {
		rec := models.Incident{
			Date:         day(i%28 + 1),
			TrainNo:      fmt.Sprintf("%d", 20000+i%31),
			Reason:       "Misuse",
			Category:     "Other",
			Direction:    models.DirectionDown,
			PostNames:    "Dadar",
			BroadSection: "CSMT-KYN",
			TypeOfCoach:  "AC",
		}
		if i < 7 {
			rec.TrainNo = "12345"
			rec.Direction = models.DirectionUp
		}
		if i%5 == 0 {
			rec.Category = "Safety"
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

func TestApply_EmptySpecIsIdentity(t *testing.T) {
	ds := sampleDataset()

	view, err := Apply(ds, models.FilterSpec{})
	require.NoError(t, err)
	require.Len(t, view, ds.Len())
	for i, rec := range view {
		assert.Same(t, &ds.Records[i], rec, "view must preserve order and share storage")
	}
}

func TestApply_TrainNumber(t *testing.T) {
	ds := sampleDataset()

	view, err := Apply(ds, models.FilterSpec{TrainNumbers: []string{"12345"}})
	require.NoError(t, err)
	assert.Len(t, view, 7)
	for _, rec := range view {
		assert.Equal(t, "12345", rec.TrainNo)
	}
}

func TestApply_OrWithinAndAcross(t *testing.T) {
	ds := sampleDataset()

	both, err := Apply(ds, models.FilterSpec{TrainNumbers: []string{"12345", "20010"}})
	require.NoError(t, err)

	onlySafety, err := Apply(ds, models.FilterSpec{
		TrainNumbers: []string{"12345", "20010"},
		Categories:   []string{"Safety"},
	})
	require.NoError(t, err)

	assert.Greater(t, len(both), 7)
	assert.Less(t, len(onlySafety), len(both))
	for _, rec := range onlySafety {
		assert.Equal(t, "Safety", rec.Category)
		assert.Contains(t, []string{"12345", "20010"}, rec.TrainNo)
	}
}

func TestApply_DateRangeInclusive(t *testing.T) {
	ds := sampleDataset()

	view, err := Apply(ds, models.FilterSpec{DateFrom: "2024-01-03", DateTo: "2024-01-05"})
	require.NoError(t, err)
	require.NotEmpty(t, view)
	for _, rec := range view {
		assert.False(t, rec.Date.Before(day(3)))
		assert.False(t, rec.Date.After(day(5)))
	}

	// i%28+1 in {3,4,5} -> 4 records per day for the first 84 rows, 3 per day after
	expected := 0
	for i := range ds.Records {
		if d := ds.Records[i].Date.Day(); d >= 3 && d <= 5 {
			expected++
		}
	}
	assert.Len(t, view, expected)
}

func TestApply_DirectionNormalized(t *testing.T) {
	ds := sampleDataset()

	view, err := Apply(ds, models.FilterSpec{Directions: []string{"up"}})
	require.NoError(t, err)
	assert.Len(t, view, 7)
}

func TestApply_NeverGrows(t *testing.T) {
	ds := sampleDataset()
	specs := []models.FilterSpec{
		{},
		{RPFPosts: []string{"Dadar"}},
		{Sections: []string{"nope"}},
		{CoachTypes: []string{"AC"}, Reasons: []string{"Misuse"}},
		{DateFrom: "2024-01-28"},
	}
	for _, spec := range specs {
		view, err := Apply(ds, spec)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(view), ds.Len())
	}
}

func TestCompile_RejectsInvertedRange(t *testing.T) {
	_, err := Compile(models.FilterSpec{DateFrom: "2024-02-01", DateTo: "2024-01-01"})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "date_from", vErr.Field)
}

func TestMatcher_Span(t *testing.T) {
	m, err := Compile(models.FilterSpec{DateFrom: "2024-01-05"})
	require.NoError(t, err)
	from, to := m.Span(day(1), day(28))
	assert.Equal(t, day(5), from)
	assert.Equal(t, day(28), to)

	m, err = Compile(models.FilterSpec{})
	require.NoError(t, err)
	from, to = m.Span(day(1), day(28))
	assert.Equal(t, day(1), from)
	assert.Equal(t, day(28), to)
}

func TestCompile_RejectsBadDate(t *testing.T) {
	_, err := Compile(models.FilterSpec{DateTo: "01-02-2024"})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "date_to", vErr.Field)
}

func TestMatches_StopsEarly(t *testing.T) {
	ds := sampleDataset()
	m, err := Compile(models.FilterSpec{})
	require.NoError(t, err)

	n := 0
	for range m.Matches(ds.Records) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestView_Where(t *testing.T) {
	ds := sampleDataset()
	view := All(ds).Where(func(rec *models.Incident) bool { return rec.TrainNo == "12345" })
	assert.Len(t, view, 7)
}
