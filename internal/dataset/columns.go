package dataset

import (
	"strings"

	"github.com/you/alarmchain/models"
)

// headerAliases maps the headers found in ACP register exports to canonical column names.
// Keys are normalized with normalizeHeader.
var headerAliases = map[string]string{
	"date_m":            models.ColDate,
	"day name_f":        models.ColDayName,
	"train no":          models.ColTrainNo,
	"train from_to":     models.ColTrainFromTo,
	"direction up/down": models.ColDirection,
	"daily/non-daily":   models.ColDailyType,
	"from":              models.ColTimeFrom,
	"to":                models.ColTimeTo,
	"time analysis":     models.ColTimeAnalysis,
	"duration":          models.ColDuration,
	"post_names":        models.ColPostNames,
	"south/north":       "south_north",
	"stn/sec from":      models.ColStnSecFrom,
	"mid section":       models.ColMidSection,
	"broad section":     models.ColBroadSection,
	"k.m.no":            "km_no",
	"km anlysis":        "km_analysis",
	"coach":             models.ColCoach,
	"coach no.":         "coach_no",
	"reason":            models.ColReason,
	"category":          models.ColCategory,
	"remarks":           "remarks",
	"escort":            "escort",
	"status":            "status",
	"punctuality loss":  "punctuality_loss",
	"type of coach":     models.ColTypeOfCoach,
	"pantry car":        "pantry_car",
	"other reasons":     "other_reasons",
	"guard":             "guard",
	"lp/alp":            "lp_alp",
	"tte":               "tte",
	"rectified by":      "rectified_by",
}

// requiredColumns must be present in the header of every uploaded file
var requiredColumns = []string{
	models.ColDate,
	models.ColTrainNo,
	models.ColReason,
	models.ColCategory,
}

// typedColumns is the set of canonical names stored in typed Incident fields
var typedColumns = func() map[string]bool {
	m := make(map[string]bool, len(models.TypedColumns))
	for _, c := range models.TypedColumns {
		m[c] = true
	}
	return m
}()

// knownCanonical holds every canonical name so snake_case headers are accepted as-is
var knownCanonical = func() map[string]bool {
	m := make(map[string]bool, len(headerAliases))
	for _, c := range headerAliases {
		m[c] = true
	}
	return m
}()

// normalizeHeader lowercases and collapses internal whitespace
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// canonicalColumn resolves a raw header to its canonical name.
// Unknown headers keep their trimmed original spelling.
func canonicalColumn(raw string) string {
	n := normalizeHeader(raw)
	if c, ok := headerAliases[n]; ok {
		return c
	}
	snake := strings.ReplaceAll(n, " ", "_")
	if knownCanonical[snake] {
		return snake
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
}

// makeIndex maps canonical column names to their position in the header.
// The first occurrence of a duplicated column wins.
func makeIndex(header []string) (map[string]int, []string) {
	idx := make(map[string]int, len(header))
	var extras []string
	for i, h := range header {
		c := canonicalColumn(h)
		if c == "" {
			continue
		}
		if _, dup := idx[c]; dup {
			continue
		}
		idx[c] = i
		if !typedColumns[c] {
			extras = append(extras, c)
		}
	}
	return idx, extras
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
