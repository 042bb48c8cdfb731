// Package filter narrows a dataset to the records matching a FilterSpec.
package filter

import (
	"iter"
	"strings"
	"time"

	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/models"
)

// View is an ordered, read-only subsequence of a dataset's records.
// It shares record storage with the dataset.
type View []*models.Incident

// Matcher is a compiled FilterSpec
type Matcher struct {
	from, to   *time.Time
	trains     set
	rpfPosts   set
	categories set
	reasons    set
	coachTypes set
	sections   set
	directions set
}

type set map[string]struct{}

func newSet(values []string, normalize func(string) string) set {
	if len(values) == 0 {
		return nil
	}
	s := make(set, len(values))
	for _, v := range values {
		s[normalize(v)] = struct{}{}
	}
	return s
}

// contains treats a nil set as "match all"
func (s set) contains(v string) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

func trim(s string) string { return strings.TrimSpace(s) }

func normalizeDirection(s string) string {
	if d := models.ParseDirection(s); d != models.DirectionUnknown {
		return string(d)
	}
	return strings.TrimSpace(s)
}

func normalizeTrain(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".0")
}

// Compile validates spec and prepares it for repeated matching
func Compile(spec models.FilterSpec) (*Matcher, error) {
	from, to, err := spec.DateRange()
	if err != nil {
		return nil, err
	}
	return &Matcher{
		from:       from,
		to:         to,
		trains:     newSet(spec.TrainNumbers, normalizeTrain),
		rpfPosts:   newSet(spec.RPFPosts, trim),
		categories: newSet(spec.Categories, trim),
		reasons:    newSet(spec.Reasons, trim),
		coachTypes: newSet(spec.CoachTypes, trim),
		sections:   newSet(spec.Sections, trim),
		directions: newSet(spec.Directions, normalizeDirection),
	}, nil
}

// Span returns the filter's date bounds, using from and to where a bound is unset
func (m *Matcher) Span(from, to time.Time) (time.Time, time.Time) {
	if m.from != nil {
		from = *m.from
	}
	if m.to != nil {
		to = *m.to
	}
	return from, to
}

// Match reports whether rec satisfies every populated constraint
func (m *Matcher) Match(rec *models.Incident) bool {
	if m.from != nil || m.to != nil {
		day := rec.Day()
		if m.from != nil && day.Before(*m.from) {
			return false
		}
		if m.to != nil && day.After(*m.to) {
			return false
		}
	}
	return m.trains.contains(rec.TrainNo) &&
		m.rpfPosts.contains(rec.PostNames) &&
		m.categories.contains(rec.Category) &&
		m.reasons.contains(rec.Reason) &&
		m.coachTypes.contains(rec.TypeOfCoach) &&
		m.sections.contains(rec.BroadSection) &&
		m.directions.contains(string(rec.Direction))
}

// Matches lazily yields matching records in dataset order
func (m *Matcher) Matches(records []models.Incident) iter.Seq[*models.Incident] {
	return func(yield func(*models.Incident) bool) {
		for i := range records {
			rec := &records[i]
			if m.Match(rec) && !yield(rec) {
				return
			}
		}
	}
}

// Collect materializes the matching records
func (m *Matcher) Collect(records []models.Incident) View {
	view := make(View, 0, len(records))
	for rec := range m.Matches(records) {
		view = append(view, rec)
	}
	return view
}

// Apply compiles spec and returns the matching view of ds
func Apply(ds *dataset.Dataset, spec models.FilterSpec) (View, error) {
	m, err := Compile(spec)
	if err != nil {
		return nil, err
	}
	return m.Collect(ds.Records), nil
}

// All returns every record of ds as a view
func All(ds *dataset.Dataset) View {
	view := make(View, len(ds.Records))
	for i := range ds.Records {
		view[i] = &ds.Records[i]
	}
	return view
}

// Where narrows an existing view with an extra predicate
func (v View) Where(pred func(*models.Incident) bool) View {
	out := make(View, 0, len(v))
	for _, rec := range v {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}
