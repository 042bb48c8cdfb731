package models

import (
	"strings"
	"time"
)

// DateLayout is the ISO layout used for every date that leaves the service
const DateLayout = "2006-01-02"

// Direction is the normalized running direction of a train
type Direction string

const (
	DirectionUp      Direction = "UP"
	DirectionDown    Direction = "DOWN"
	DirectionUnknown Direction = ""
)

// ParseDirection normalizes the free-text "Direction UP/Down" column
func ParseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP", "U", "UP LINE":
		return DirectionUp
	case "DOWN", "DN", "D", "DOWN LINE":
		return DirectionDown
	default:
		return DirectionUnknown
	}
}

// ServiceType is the "Daily/Non-daily" classification of a train service
type ServiceType string

const (
	ServiceDaily    ServiceType = "Daily"
	ServiceNonDaily ServiceType = "Non-daily"
	ServiceUnknown  ServiceType = ""
)

// ParseServiceType normalizes the "Daily/Non-daily" column
func ParseServiceType(s string) ServiceType {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "", " ", "", "_", "").Replace(v)
	switch v {
	case "daily":
		return ServiceDaily
	case "nondaily":
		return ServiceNonDaily
	default:
		return ServiceUnknown
	}
}

// Incident is one parsed alarm chain pulling record.
// Fields that drive filtering or aggregation are typed; everything else
// from the upload is carried verbatim in Extra, keyed by canonical column name.
type Incident struct {
	// Required
	Date     time.Time `json:"date"`
	TrainNo  string    `json:"train_no"`
	Reason   string    `json:"reason"`
	Category string    `json:"category"`

	// Train context
	TrainFromTo string      `json:"train_from_to"`
	Direction   Direction   `json:"direction"`
	DailyType   ServiceType `json:"daily_type"`
	DayName     string      `json:"day_name"`

	// Timing
	TimeFrom     string `json:"time_from"`
	TimeTo       string `json:"time_to"`
	TimeAnalysis string `json:"time_analysis"`
	Duration     string `json:"duration"`

	// Location
	PostNames    string `json:"post_names"` // RPF post
	StnSecFrom   string `json:"stn_sec_from"`
	MidSection   string `json:"mid_section"`
	BroadSection string `json:"broad_section"`

	// Coach
	Coach       string `json:"coach"`
	TypeOfCoach string `json:"type_of_coach"`

	// Passthrough columns (remarks, escort, personnel, unknown headers...)
	Extra map[string]string `json:"-"`
}

// Column names of the typed fields, in the order they are exported
const (
	ColDate         = "date"
	ColDayName      = "day_name"
	ColTrainNo      = "train_no"
	ColTrainFromTo  = "train_from_to"
	ColDirection    = "direction"
	ColDailyType    = "daily_type"
	ColTimeFrom     = "time_from"
	ColTimeTo       = "time_to"
	ColTimeAnalysis = "time_analysis"
	ColDuration     = "duration"
	ColPostNames    = "post_names"
	ColStnSecFrom   = "stn_sec_from"
	ColMidSection   = "mid_section"
	ColBroadSection = "broad_section"
	ColCoach        = "coach"
	ColReason       = "reason"
	ColCategory     = "category"
	ColTypeOfCoach  = "type_of_coach"
)

// TypedColumns lists the typed columns in export order
var TypedColumns = []string{
	ColDate, ColDayName, ColTrainNo, ColTrainFromTo, ColDirection, ColDailyType,
	ColTimeFrom, ColTimeTo, ColTimeAnalysis, ColDuration, ColPostNames,
	ColStnSecFrom, ColMidSection, ColBroadSection, ColCoach, ColReason,
	ColCategory, ColTypeOfCoach,
}

// Value returns the string form of a column, typed or passthrough.
// Unknown columns and missing values return "".
func (i *Incident) Value(column string) string {
	switch column {
	case ColDate:
		if i.Date.IsZero() {
			return ""
		}
		return i.Date.Format(DateLayout)
	case ColDayName:
		return i.DayName
	case ColTrainNo:
		return i.TrainNo
	case ColTrainFromTo:
		return i.TrainFromTo
	case ColDirection:
		return string(i.Direction)
	case ColDailyType:
		return string(i.DailyType)
	case ColTimeFrom:
		return i.TimeFrom
	case ColTimeTo:
		return i.TimeTo
	case ColTimeAnalysis:
		return i.TimeAnalysis
	case ColDuration:
		return i.Duration
	case ColPostNames:
		return i.PostNames
	case ColStnSecFrom:
		return i.StnSecFrom
	case ColMidSection:
		return i.MidSection
	case ColBroadSection:
		return i.BroadSection
	case ColCoach:
		return i.Coach
	case ColReason:
		return i.Reason
	case ColCategory:
		return i.Category
	case ColTypeOfCoach:
		return i.TypeOfCoach
	}
	return i.Extra[column]
}

// Day truncates the incident date to midnight UTC
func (i *Incident) Day() time.Time {
	y, m, d := i.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
