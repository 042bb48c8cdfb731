package query

import (
	"sort"
	"strings"
	"time"

	"github.com/you/alarmchain/internal/analytics"
	"github.com/you/alarmchain/internal/filter"
	"github.com/you/alarmchain/internal/metrics"
	"github.com/you/alarmchain/models"
)

const (
	overviewTopN         = 5
	defaultTrainLimit    = 25
	defaultAnalyticsTopN = 10
	timeAnalysisTopN     = 11
	monthlyTrendMonths   = 12
	dailyTrendDays       = 30
	trainSearchMax       = 20
)

// FilterOptions lists the values available to each filter dropdown, over the whole dataset
func (s *Service) FilterOptions(key string) (*FilterOptions, error) {
	defer metrics.ObserveQuery("filter_options", time.Now())

	ds, err := s.Dataset(key)
	if err != nil {
		return nil, err
	}
	all := filter.All(ds)

	return &FilterOptions{
		DateRange: DateRange{
			Min: ds.MinDate.Format(models.DateLayout),
			Max: ds.MaxDate.Format(models.DateLayout),
		},
		TrainNumbers: analytics.GroupAndCount(all, analytics.Column(models.ColTrainNo)).Keys(),
		RPFPosts:     analytics.GroupAndCount(all, analytics.Column(models.ColPostNames)).Keys(),
		Directions:   distinct(all, models.ColDirection),
		Categories:   distinct(all, models.ColCategory),
		Reasons:      distinct(all, models.ColReason),
		CoachTypes:   distinct(all, models.ColTypeOfCoach),
		Sections:     distinct(all, models.ColBroadSection),
	}, nil
}

// distinct returns the sorted non-empty values of a column
func distinct(view filter.View, column string) []string {
	values := analytics.GroupAndCount(view, analytics.Column(column)).Keys()
	sort.Strings(values)
	return values
}

// Overview summarizes the filtered records
func (s *Service) Overview(key string, spec models.FilterSpec) (*Overview, error) {
	defer metrics.ObserveQuery("overview", time.Now())

	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}

	out := &Overview{
		TotalIncidents:        len(view),
		TopCategories:         analytics.TopN(analytics.GroupAndCount(view, analytics.Column(models.ColCategory)), overviewTopN),
		TopReasons:            analytics.TopN(analytics.GroupAndCount(view, analytics.Column(models.ColReason)), overviewTopN),
		DirectionDistribution: analytics.GroupAndCount(view, analytics.Column(models.ColDirection)),
		CoachTypeDistribution: analytics.GroupAndCount(view, analytics.Column(models.ColTypeOfCoach)),
		MonthlyTrend:          periodsToCounts(analytics.Timeline(view, analytics.Monthly)),
	}
	if first, last, ok := analytics.DateSpan(view); ok {
		out.DateRange = &DateRange{Min: first.Format(models.DateLayout), Max: last.Format(models.DateLayout)}
	}
	return out, nil
}

func periodsToCounts(periods []analytics.Period) analytics.Counts {
	counts := make(analytics.Counts, len(periods))
	for i, p := range periods {
		counts[i] = analytics.Bucket{Key: p.Period, Count: p.Count}
	}
	return counts
}

// KPI computes the headline numbers. The percentile is only set when exactly
// one train is selected and ranks it against every train of the dataset.
func (s *Service) KPI(key string, spec models.FilterSpec) (*KPI, error) {
	defer metrics.ObserveQuery("kpi", time.Now())

	ds, m, view, err := s.match(key, spec)
	if err != nil {
		return nil, err
	}
	from, to := m.Span(ds.MinDate, ds.MaxDate)

	monthly := analytics.PeriodCounts(analytics.Timeline(view, analytics.Monthly))
	if len(monthly) > monthlyTrendMonths {
		monthly = monthly[len(monthly)-monthlyTrendMonths:]
	}

	out := &KPI{
		TotalIncidents: len(view),
		MonthlyTrend:   monthly,
		DailyTrend:     analytics.FillDaily(view, dailyTrendDays),
		Trend:          analytics.Trend(monthly),
	}
	if len(view) > 0 {
		out.DailyAvg = analytics.DailyAverage(len(view), from, to)
	}

	if len(spec.TrainNumbers) == 1 {
		perTrain := analytics.GroupAndCount(filter.All(ds), analytics.Column(models.ColTrainNo))
		p := analytics.PercentileRank(len(view), perTrain.Values())
		out.Percentile = &p
	}
	return out, nil
}

// TrainAnalytics breaks the filtered records down by section, coach, reason,
// time slot and mid section. A non-empty trainNo restricts to that train.
func (s *Service) TrainAnalytics(key string, spec models.FilterSpec, trainNo string, limit int) (*TrainAnalytics, error) {
	defer metrics.ObserveQuery("train_analytics", time.Now())

	limit, err := limitOrDefault(limit, defaultAnalyticsTopN)
	if err != nil {
		return nil, err
	}
	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}
	view = restrictTrain(view, trainNo)

	top := func(column string) analytics.Counts {
		return analytics.TopN(analytics.GroupAndCount(view, analytics.Column(column)), limit)
	}
	return &TrainAnalytics{
		Sections:     top(models.ColStnSecFrom),
		Coaches:      top(models.ColCoach),
		Reasons:      top(models.ColReason),
		TimeAnalysis: analytics.TopNWithOthers(analytics.GroupAndCount(view, analytics.Column(models.ColTimeAnalysis)), timeAnalysisTopN),
		MidSections:  top(models.ColMidSection),
	}, nil
}

func restrictTrain(view filter.View, trainNo string) filter.View {
	trainNo = strings.TrimSuffix(strings.TrimSpace(trainNo), ".0")
	if trainNo == "" {
		return view
	}
	return view.Where(func(rec *models.Incident) bool { return rec.TrainNo == trainNo })
}

// DayAnalysis counts incidents per day of week
func (s *Service) DayAnalysis(key string, spec models.FilterSpec) (*DayAnalysis, error) {
	defer metrics.ObserveQuery("day_analysis", time.Now())

	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}
	return &DayAnalysis{DayAnalysis: analytics.WeekdayCounts(view)}, nil
}

// Timeline buckets the filtered records. Empty granularity means monthly.
func (s *Service) Timeline(key string, spec models.FilterSpec, granularity string) (*Timeline, error) {
	defer metrics.ObserveQuery("timeline", time.Now())

	g, err := analytics.ParseGranularity(granularity)
	if err != nil {
		return nil, err
	}
	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}
	return &Timeline{Granularity: g, Timeline: analytics.Timeline(view, g)}, nil
}

// TrainTimeline is Timeline restricted to one train. Without an explicit
// granularity a single train is bucketed weekly, since monthly is too coarse.
func (s *Service) TrainTimeline(key string, spec models.FilterSpec, trainNo, granularity string) (*Timeline, error) {
	defer metrics.ObserveQuery("train_timeline", time.Now())

	g, err := analytics.ParseGranularity(granularity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(granularity) == "" && strings.TrimSpace(trainNo) != "" {
		g = analytics.Weekly
	}
	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}
	view = restrictTrain(view, trainNo)
	return &Timeline{Granularity: g, Timeline: analytics.Timeline(view, g)}, nil
}

// TrainIncidents ranks trains by filtered incident count
func (s *Service) TrainIncidents(key string, spec models.FilterSpec, limit int) (*TrainIncidents, error) {
	defer metrics.ObserveQuery("train_incidents", time.Now())

	limit, err := limitOrDefault(limit, defaultTrainLimit)
	if err != nil {
		return nil, err
	}
	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}

	ranked := analytics.TopN(analytics.GroupAndCount(view, analytics.Column(models.ColTrainNo)), limit)
	trains := make([]TrainCount, len(ranked))
	for i, b := range ranked {
		trains[i] = TrainCount{TrainNo: b.Key, IncidentCount: b.Count}
	}
	return &TrainIncidents{Trains: trains}, nil
}

// TrainList ranks trains like TrainIncidents and adds route, direction and
// service type taken from each train's first matching record.
func (s *Service) TrainList(key string, spec models.FilterSpec, limit int) (*TrainList, error) {
	defer metrics.ObserveQuery("train_list", time.Now())

	limit, err := limitOrDefault(limit, defaultTrainLimit)
	if err != nil {
		return nil, err
	}
	_, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}

	firstSeen := make(map[string]*models.Incident)
	for _, rec := range view {
		if _, ok := firstSeen[rec.TrainNo]; !ok {
			firstSeen[rec.TrainNo] = rec
		}
	}

	ranked := analytics.TopN(analytics.GroupAndCount(view, analytics.Column(models.ColTrainNo)), limit)
	trains := make([]TrainSummary, len(ranked))
	for i, b := range ranked {
		rec := firstSeen[b.Key]
		trains[i] = TrainSummary{
			TrainNo:       b.Key,
			IncidentCount: b.Count,
			TrainFromTo:   rec.TrainFromTo,
			Direction:     string(rec.Direction),
			DailyType:     string(rec.DailyType),
		}
	}
	return &TrainList{Trains: trains}, nil
}

// TrainSearch returns train numbers starting with prefix (case-insensitive),
// ascending, at most 20. An empty prefix lists every train.
func (s *Service) TrainSearch(key, prefix string) (*TrainSearch, error) {
	defer metrics.ObserveQuery("train_search", time.Now())

	ds, err := s.Dataset(key)
	if err != nil {
		return nil, err
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	trains := distinct(filter.All(ds), models.ColTrainNo)
	if prefix == "" {
		return &TrainSearch{Trains: trains}, nil
	}

	matches := make([]string, 0, trainSearchMax)
	for _, t := range trains {
		if strings.HasPrefix(strings.ToLower(t), prefix) {
			matches = append(matches, t)
			if len(matches) == trainSearchMax {
				break
			}
		}
	}
	return &TrainSearch{Trains: matches}, nil
}
