package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/alarmchain/internal/analytics"
	"github.com/you/alarmchain/internal/cache"
	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/models"
)

const header = "DATE_M,Train No,Train From_To,Direction UP/Down,Daily/Non-daily,Time Analysis,POST_Names,STN/SEC from,Mid section,Broad section,COACH,Reason,CATEGORY,Type of coach,Remarks\n"

// registerCSV builds 120 valid rows spread over Jan-Mar 2024:
// 7 rows for train 12345, the rest over trains 20000-20009,
// 60% Safety / 40% Other, alternating UP/DN, 15 time slots.
func registerCSV() []byte {
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 120; i++ {
		train := fmt.Sprintf("%d", 20000+i%10)
		if i < 7 {
			train = "12345"
		}
		category := "Other"
		if i%5 < 3 {
			category = "Safety"
		}
		direction := "UP"
		if i%2 == 1 {
			direction = "DN"
		}
		fmt.Fprintf(&b, "%02d-%02d-2024,%s,CSMT_PUNE,%s,Daily,T%02d,Post%d,STN%d,MID%d,BS%d,S%d,Reason%d,%s,Sleeper,r%d\n",
			1+i%28, 1+(i/28)%3, train, direction, i%15, i%4, i%6, i%3, i%2, i%9, i%7, category, i)
	}
	return []byte(b.String())
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeLedger struct {
	mu      sync.Mutex
	uploads []models.Upload
	err     error
}

func (f *fakeLedger) RecordUpload(_ context.Context, u *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, *u)
	return nil
}

func (f *fakeLedger) RecentUploads(_ context.Context, limit int) ([]models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, nil
}

func setup(t *testing.T) (*Service, string) {
	t.Helper()
	svc := NewService(cache.NewStore(), nil, quietLogger())
	res, err := svc.Upload(context.Background(), []dataset.File{{Name: "acp.csv", Data: registerCSV()}})
	require.NoError(t, err)
	require.Equal(t, 120, res.TotalRecords)
	return svc, res.CacheKey
}

func TestUpload_Idempotent(t *testing.T) {
	store := cache.NewStore()
	ledger := &fakeLedger{}
	svc := NewService(store, ledger, quietLogger())
	files := []dataset.File{{Name: "acp.csv", Data: registerCSV()}}

	first, err := svc.Upload(context.Background(), files)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, 1, first.FileCount)
	assert.Zero(t, first.RejectedRows)

	second, err := svc.Upload(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.True(t, second.Reused)
	assert.Equal(t, 1, store.Len(), "identical bytes must not create a second dataset")

	require.Len(t, ledger.uploads, 2)
	assert.Equal(t, first.UploadID, ledger.uploads[0].ID)
	assert.True(t, ledger.uploads[1].Reused)
}

func TestUpload_ConcurrentIdenticalFiles(t *testing.T) {
	store := cache.NewStore()
	svc := NewService(store, nil, quietLogger())
	files := []dataset.File{{Name: "acp.csv", Data: registerCSV()}}

	var wg sync.WaitGroup
	keys := make([]string, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Upload(context.Background(), files)
			if assert.NoError(t, err) {
				keys[i] = res.CacheKey
			}
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, store.Len())
}

func TestUpload_LedgerFailureIsNotFatal(t *testing.T) {
	svc := NewService(cache.NewStore(), &fakeLedger{err: assert.AnError}, quietLogger())
	res, err := svc.Upload(context.Background(), []dataset.File{{Name: "acp.csv", Data: registerCSV()}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.CacheKey)
}

func TestUpload_Validation(t *testing.T) {
	csv := registerCSV()
	tests := []struct {
		name  string
		files []dataset.File
	}{
		{"no files", nil},
		{"too many files", []dataset.File{
			{Name: "a.csv", Data: csv}, {Name: "b.csv", Data: csv}, {Name: "c.csv", Data: csv}, {Name: "d.csv", Data: csv},
		}},
		{"not csv", []dataset.File{{Name: "a.xlsx", Data: csv}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := cache.NewStore()
			svc := NewService(store, nil, quietLogger())
			_, err := svc.Upload(context.Background(), tc.files)
			var vErr *models.ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Zero(t, store.Len())
		})
	}
}

func TestUpload_ParseErrorCachesNothing(t *testing.T) {
	store := cache.NewStore()
	svc := NewService(store, nil, quietLogger())

	_, err := svc.Upload(context.Background(), []dataset.File{{Name: "a.csv", Data: []byte("foo,bar\n1,2\n")}})
	var pErr *dataset.ParseError
	assert.ErrorAs(t, err, &pErr)
	assert.Zero(t, store.Len())
}

func TestUpload_MultipleFiles(t *testing.T) {
	svc := NewService(cache.NewStore(), nil, quietLogger())
	extra := []byte(header + "01-04-2024,99999,X_Y,UP,Daily,T01,P,S,M,B,C,R,Safety,AC,\nbad-date,1,,,,,,,,,,R,C,,\n")

	res, err := svc.Upload(context.Background(), []dataset.File{
		{Name: "q1.csv", Data: registerCSV()},
		{Name: "april.CSV", Data: extra},
	})
	require.NoError(t, err)
	assert.Equal(t, 121, res.TotalRecords)
	assert.Equal(t, 1, res.RejectedRows)
	assert.Equal(t, 2, res.FileCount)
}

func TestUnknownKey_IsNotFound(t *testing.T) {
	svc, _ := setup(t)
	const key = "does-not-exist"
	var spec models.FilterSpec

	calls := map[string]func() error{
		"filter options":  func() error { _, err := svc.FilterOptions(key); return err },
		"overview":        func() error { _, err := svc.Overview(key, spec); return err },
		"kpi":             func() error { _, err := svc.KPI(key, spec); return err },
		"train analytics": func() error { _, err := svc.TrainAnalytics(key, spec, "", 0); return err },
		"day analysis":    func() error { _, err := svc.DayAnalysis(key, spec); return err },
		"timeline":        func() error { _, err := svc.Timeline(key, spec, ""); return err },
		"train timeline":  func() error { _, err := svc.TrainTimeline(key, spec, "1", ""); return err },
		"train incidents": func() error { _, err := svc.TrainIncidents(key, spec, 0); return err },
		"train list":      func() error { _, err := svc.TrainList(key, spec, 0); return err },
		"train search":    func() error { _, err := svc.TrainSearch(key, ""); return err },
		"table":           func() error { _, err := svc.Table(key, models.NewTableRequest()); return err },
		"export":          func() error { _, err := svc.Export(key, spec, "csv"); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), ErrNotFound)
		})
	}
}

func TestKPI_EmptyResult(t *testing.T) {
	svc, key := setup(t)

	kpi, err := svc.KPI(key, models.FilterSpec{Categories: []string{"no such category"}})
	require.NoError(t, err)
	assert.Zero(t, kpi.TotalIncidents)
	assert.Zero(t, kpi.DailyAvg)
	assert.Nil(t, kpi.Percentile)
	assert.Equal(t, []int{}, kpi.MonthlyTrend)
	assert.Equal(t, []int{}, kpi.DailyTrend)

	b, err := json.Marshal(kpi)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_incidents":0,"daily_avg":0,"monthly_trend":[],"daily_trend":[],"trend":"stable"}`, string(b))
}

func TestKPI_Values(t *testing.T) {
	svc, key := setup(t)

	kpi, err := svc.KPI(key, models.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, 120, kpi.TotalIncidents)
	assert.Nil(t, kpi.Percentile, "percentile needs exactly one train")
	// Jan 1 to Mar 28 2024 is 88 days
	assert.Equal(t, analytics.Round2(120.0/88), kpi.DailyAvg)
	assert.Equal(t, []int{56, 36, 28}, kpi.MonthlyTrend)
	assert.Len(t, kpi.DailyTrend, 30)

	kpi, err = svc.KPI(key, models.FilterSpec{DateFrom: "2024-01-01", DateTo: "2024-01-10"})
	require.NoError(t, err)
	assert.Equal(t, analytics.Round2(float64(kpi.TotalIncidents)/10), kpi.DailyAvg)
}

func TestKPI_Percentile(t *testing.T) {
	svc, key := setup(t)

	// 12345 has 7 incidents, fewer than every other train
	kpi, err := svc.KPI(key, models.FilterSpec{TrainNumbers: []string{"12345"}})
	require.NoError(t, err)
	assert.Equal(t, 7, kpi.TotalIncidents)
	require.NotNil(t, kpi.Percentile)
	assert.Equal(t, 0.0, *kpi.Percentile)

	// 20008 has 12; 12345 and seven trains with 11 are strictly lower: 8 of 11
	kpi, err = svc.KPI(key, models.FilterSpec{TrainNumbers: []string{"20008"}})
	require.NoError(t, err)
	assert.Equal(t, 12, kpi.TotalIncidents)
	require.NotNil(t, kpi.Percentile)
	assert.Equal(t, 72.73, *kpi.Percentile)
}

func TestFilter_TrainScenario(t *testing.T) {
	svc, key := setup(t)

	ov, err := svc.Overview(key, models.FilterSpec{TrainNumbers: []string{"12345"}})
	require.NoError(t, err)
	assert.Equal(t, 7, ov.TotalIncidents)
	require.NotNil(t, ov.DateRange)
	assert.Equal(t, "2024-01-01", ov.DateRange.Min)
	assert.Equal(t, "2024-01-07", ov.DateRange.Max)
}

func TestOverview(t *testing.T) {
	svc, key := setup(t)

	ov, err := svc.Overview(key, models.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, 120, ov.TotalIncidents)
	assert.Equal(t, []string{"Safety", "Other"}, ov.TopCategories.Keys())
	assert.Equal(t, []int{72, 48}, ov.TopCategories.Values())
	assert.Len(t, ov.TopReasons, 5)
	assert.Equal(t, 60, ov.DirectionDistribution.Get("UP"))
	assert.Equal(t, 60, ov.DirectionDistribution.Get("DOWN"))
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, ov.MonthlyTrend.Keys())

	ov, err = svc.Overview(key, models.FilterSpec{Categories: []string{"none"}})
	require.NoError(t, err)
	assert.Zero(t, ov.TotalIncidents)
	assert.Nil(t, ov.DateRange)
}

func TestFilterOptions(t *testing.T) {
	svc, key := setup(t)

	opts, err := svc.FilterOptions(key)
	require.NoError(t, err)
	assert.Equal(t, DateRange{Min: "2024-01-01", Max: "2024-03-28"}, opts.DateRange)
	require.Len(t, opts.TrainNumbers, 11)
	assert.Equal(t, []string{"20007", "20008", "20009"}, opts.TrainNumbers[:3], "most incidents first, ties by first appearance")
	assert.Equal(t, "12345", opts.TrainNumbers[10])
	assert.Len(t, opts.RPFPosts, 4)
	assert.Equal(t, []string{"DOWN", "UP"}, opts.Directions)
	assert.Equal(t, []string{"Other", "Safety"}, opts.Categories)
	assert.Equal(t, []string{"Sleeper"}, opts.CoachTypes)
	assert.Equal(t, []string{"BS0", "BS1"}, opts.Sections)
}

func TestTrainAnalytics(t *testing.T) {
	svc, key := setup(t)

	ta, err := svc.TrainAnalytics(key, models.FilterSpec{}, "", 0)
	require.NoError(t, err)
	assert.Len(t, ta.Sections, 6)
	assert.Len(t, ta.Coaches, 9)
	assert.Len(t, ta.Reasons, 7)
	assert.Len(t, ta.MidSections, 3)
	require.Len(t, ta.TimeAnalysis, 12, "11 time slots plus Others")
	assert.Equal(t, analytics.OthersLabel, ta.TimeAnalysis[11].Key)
	assert.Equal(t, 120, ta.TimeAnalysis.Total())

	ta, err = svc.TrainAnalytics(key, models.FilterSpec{}, "12345.0", 2)
	require.NoError(t, err)
	assert.Len(t, ta.Coaches, 2)
	assert.Equal(t, 7, ta.TimeAnalysis.Total())

	_, err = svc.TrainAnalytics(key, models.FilterSpec{}, "", -1)
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDayAnalysis(t *testing.T) {
	svc, key := setup(t)

	da, err := svc.DayAnalysis(key, models.FilterSpec{})
	require.NoError(t, err)
	require.Len(t, da.DayAnalysis, 7)
	assert.Equal(t, "Monday", da.DayAnalysis[0].Key)
	assert.Equal(t, 120, da.DayAnalysis.Total())
}

func TestTimeline(t *testing.T) {
	svc, key := setup(t)

	tl, err := svc.Timeline(key, models.FilterSpec{}, "")
	require.NoError(t, err)
	assert.Equal(t, analytics.Monthly, tl.Granularity)
	require.Len(t, tl.Timeline, 3)
	assert.Equal(t, "2024-01", tl.Timeline[0].Period)

	for _, g := range []string{"daily", "weekly", "monthly"} {
		tl, err := svc.Timeline(key, models.FilterSpec{}, g)
		require.NoError(t, err)
		sum := 0
		for i, p := range tl.Timeline {
			sum += p.Count
			if i > 0 {
				assert.Greater(t, p.Date, tl.Timeline[i-1].Date)
			}
		}
		assert.Equal(t, 120, sum, g)
	}

	_, err = svc.Timeline(key, models.FilterSpec{}, "hourly")
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestTrainTimeline(t *testing.T) {
	svc, key := setup(t)

	tl, err := svc.TrainTimeline(key, models.FilterSpec{}, "12345", "")
	require.NoError(t, err)
	assert.Equal(t, analytics.Weekly, tl.Granularity)
	require.Len(t, tl.Timeline, 1, "Jan 1-7 2024 is one Monday-start week")
	assert.Equal(t, 7, tl.Timeline[0].Count)

	tl, err = svc.TrainTimeline(key, models.FilterSpec{}, "12345", "daily")
	require.NoError(t, err)
	assert.Len(t, tl.Timeline, 7)
}

func TestTrainRankings(t *testing.T) {
	svc, key := setup(t)

	ti, err := svc.TrainIncidents(key, models.FilterSpec{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []TrainCount{
		{TrainNo: "20007", IncidentCount: 12},
		{TrainNo: "20008", IncidentCount: 12},
		{TrainNo: "20009", IncidentCount: 12},
	}, ti.Trains)

	tl, err := svc.TrainList(key, models.FilterSpec{Directions: []string{"up"}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, tl.Trains)
	for i, tr := range tl.Trains {
		assert.Equal(t, "UP", tr.Direction)
		assert.Equal(t, "CSMT_PUNE", tr.TrainFromTo)
		assert.Equal(t, "Daily", tr.DailyType)
		if i > 0 {
			assert.LessOrEqual(t, tr.IncidentCount, tl.Trains[i-1].IncidentCount)
		}
	}
}

func TestTrainSearch(t *testing.T) {
	svc, key := setup(t)

	res, err := svc.TrainSearch(key, "200")
	require.NoError(t, err)
	require.Len(t, res.Trains, 10)
	assert.Equal(t, "20000", res.Trains[0])
	assert.Equal(t, "20009", res.Trains[9])

	res, err = svc.TrainSearch(key, " 123")
	require.NoError(t, err)
	assert.Equal(t, []string{"12345"}, res.Trains)

	res, err = svc.TrainSearch(key, "")
	require.NoError(t, err)
	assert.Len(t, res.Trains, 11)

	res, err = svc.TrainSearch(key, "9")
	require.NoError(t, err)
	assert.Empty(t, res.Trains)
}

func TestTable_Pagination(t *testing.T) {
	svc, key := setup(t)

	req := models.NewTableRequest()
	req.Page = 2
	page, err := svc.Table(key, req)
	require.NoError(t, err)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 50, page.PageSize)
	require.Len(t, page.Data, 50)
	assert.Equal(t, "r50", *page.Data[0]["remarks"], "page 2 starts at record 51")
	assert.Equal(t, "r99", *page.Data[49]["remarks"], "page 2 ends at record 100")

	req.Page = 3
	page, err = svc.Table(key, req)
	require.NoError(t, err)
	assert.Len(t, page.Data, 20)

	req.Page = 9
	page, err = svc.Table(key, req)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 3, page.TotalPages)
}

func TestTable_HugePageIsEmpty(t *testing.T) {
	svc, key := setup(t)

	for _, size := range []int{1, 2, 1000} {
		req := models.NewTableRequest()
		req.Page = math.MaxInt
		req.PageSize = size
		page, err := svc.Table(key, req)
		require.NoError(t, err, "page_size %d", size)
		assert.Empty(t, page.Data)
		assert.Equal(t, 120, page.Total)
		assert.Equal(t, math.MaxInt, page.Page)
	}
}

func TestTable_Sorting(t *testing.T) {
	svc, key := setup(t)

	req := models.NewTableRequest()
	req.SortBy = models.ColDate
	req.SortDesc = true
	page, err := svc.Table(key, req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-28", *page.Data[0]["date"])

	// Stable: equal train numbers keep dataset order
	req = models.NewTableRequest()
	req.SortBy = models.ColTrainNo
	page, err = svc.Table(key, req)
	require.NoError(t, err)
	assert.Equal(t, "12345", *page.Data[0]["train_no"])
	assert.Equal(t, "r0", *page.Data[0]["remarks"])
	assert.Equal(t, "r6", *page.Data[6]["remarks"])

	// The cached order is untouched
	page, err = svc.Table(key, models.NewTableRequest())
	require.NoError(t, err)
	assert.Equal(t, "r0", *page.Data[0]["remarks"])
}

func TestTable_Validation(t *testing.T) {
	svc, key := setup(t)
	var vErr *models.ValidationError

	for _, req := range []models.TableRequest{
		{Page: 0, PageSize: 50},
		{Page: 1, PageSize: 0},
		{Page: 1, PageSize: 1001},
		{Page: 1, PageSize: 50, SortBy: "nope"},
		{Page: 1, PageSize: 50, Filters: models.FilterSpec{DateFrom: "2024-02-01", DateTo: "2024-01-01"}},
	} {
		_, err := svc.Table(key, req)
		assert.ErrorAs(t, err, &vErr, "%+v", req)
	}
}

func TestExport(t *testing.T) {
	svc, key := setup(t)
	spec := models.FilterSpec{TrainNumbers: []string{"12345"}}

	csvOut, err := svc.Export(key, spec, "")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, csvOut.Format)
	assert.Equal(t, 7, csvOut.Records)
	lines := strings.Split(strings.TrimSpace(string(csvOut.Body)), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "date,day_name,train_no,"))
	assert.True(t, strings.HasSuffix(lines[0], ",remarks"))
	assert.True(t, strings.HasSuffix(csvOut.FileName, ".csv"))

	jsonOut, err := svc.Export(key, spec, "JSON")
	require.NoError(t, err)
	var doc struct {
		Data         []map[string]*string `json:"data"`
		TotalRecords int                  `json:"total_records"`
	}
	require.NoError(t, json.Unmarshal(jsonOut.Body, &doc))
	assert.Equal(t, 7, doc.TotalRecords)
	assert.Len(t, doc.Data, 7)
	assert.Nil(t, doc.Data[0]["duration"], "missing values export as null")

	yamlOut, err := svc.Export(key, spec, "yaml")
	require.NoError(t, err)
	assert.Contains(t, string(yamlOut.Body), "total_records: 7")

	_, err = svc.Export(key, spec, "xlsx")
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestStats(t *testing.T) {
	svc, key := setup(t)
	stats := svc.Stats()
	assert.Equal(t, 1, stats.CacheEntries)
	assert.Equal(t, []string{key}, stats.CacheKeys)
}
