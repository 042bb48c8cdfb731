package query

import (
	"github.com/google/uuid"

	"github.com/you/alarmchain/internal/analytics"
)

// UploadResult is returned by Upload
type UploadResult struct {
	CacheKey     string    `json:"cache_key"`
	TotalRecords int       `json:"total_records"`
	RejectedRows int       `json:"rejected_rows"`
	FileCount    int       `json:"file_count"`
	UploadID     uuid.UUID `json:"upload_id"`
	Reused       bool      `json:"reused"`
}

// DateRange is an observed or requested span, formatted YYYY-MM-DD
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// FilterOptions feeds the dashboard dropdowns
type FilterOptions struct {
	DateRange    DateRange `json:"date_range"`
	TrainNumbers []string  `json:"train_numbers"` // most incidents first
	RPFPosts     []string  `json:"rpf_posts"`     // most incidents first
	Directions   []string  `json:"directions"`
	Categories   []string  `json:"categories"`
	Reasons      []string  `json:"reasons"`
	CoachTypes   []string  `json:"coach_types"`
	Sections     []string  `json:"sections"`
}

// Overview is the summary shown above the charts
type Overview struct {
	TotalIncidents        int              `json:"total_incidents"`
	DateRange             *DateRange       `json:"date_range"`
	TopCategories         analytics.Counts `json:"top_categories"`
	TopReasons            analytics.Counts `json:"top_reasons"`
	DirectionDistribution analytics.Counts `json:"direction_distribution"`
	CoachTypeDistribution analytics.Counts `json:"coach_type_distribution"`
	MonthlyTrend          analytics.Counts `json:"monthly_trend"`
}

// KPI is the headline card data
type KPI struct {
	TotalIncidents int                      `json:"total_incidents"`
	Percentile     *float64                 `json:"percentile,omitempty"`
	DailyAvg       float64                  `json:"daily_avg"`
	MonthlyTrend   []int                    `json:"monthly_trend"`
	DailyTrend     []int                    `json:"daily_trend"`
	Trend          analytics.TrendDirection `json:"trend"`
}

// TrainAnalytics is the per-dimension breakdown bundle
type TrainAnalytics struct {
	Sections     analytics.Counts `json:"sections"`
	Coaches      analytics.Counts `json:"coaches"`
	Reasons      analytics.Counts `json:"reasons"`
	TimeAnalysis analytics.Counts `json:"time_analysis"`
	MidSections  analytics.Counts `json:"mid_sections"`
}

// DayAnalysis counts incidents per weekday, Monday first
type DayAnalysis struct {
	DayAnalysis analytics.Counts `json:"day_analysis"`
}

// Timeline is a chronological series of periods
type Timeline struct {
	Granularity analytics.Granularity `json:"granularity"`
	Timeline    []analytics.Period    `json:"timeline"`
}

// TrainCount is one ranked train
type TrainCount struct {
	TrainNo       string `json:"train_no"`
	IncidentCount int    `json:"incident_count"`
}

// TrainSummary is a ranked train with descriptive fields from its first matching record
type TrainSummary struct {
	TrainNo       string `json:"train_no"`
	IncidentCount int    `json:"incident_count"`
	TrainFromTo   string `json:"train_from_to"`
	Direction     string `json:"direction"`
	DailyType     string `json:"daily_type"`
}

// TrainIncidents ranks trains by incident count
type TrainIncidents struct {
	Trains []TrainCount `json:"trains"`
}

// TrainList ranks trains with descriptive fields
type TrainList struct {
	Trains []TrainSummary `json:"trains"`
}

// TrainSearch lists matching train numbers
type TrainSearch struct {
	Trains []string `json:"trains"`
}

// Row is one record keyed by column; missing values are nil (JSON null)
type Row map[string]*string

// TablePage is one page of the record table
type TablePage struct {
	Data       []Row    `json:"data"`
	Columns    []string `json:"columns"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Stats describes the cache for health checks
type Stats struct {
	CacheEntries int      `json:"cache_entries"`
	CacheKeys    []string `json:"-"`
}
