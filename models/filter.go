package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FilterSpec is the wire shape of a dashboard filter.
// Empty fields match everything; dimensions are ANDed, values within a
// dimension are ORed.
type FilterSpec struct {
	DateFrom     string   `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo       string   `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TrainNumbers []string `json:"train_numbers,omitempty"`
	RPFPosts     []string `json:"rpf_posts,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`
	CoachTypes   []string `json:"coach_types,omitempty"`
	Sections     []string `json:"sections,omitempty"`
	Directions   []string `json:"directions,omitempty"`
}

// IsZero reports whether the filter constrains nothing
func (f FilterSpec) IsZero() bool {
	return f.DateFrom == "" && f.DateTo == "" &&
		len(f.TrainNumbers) == 0 && len(f.RPFPosts) == 0 &&
		len(f.Categories) == 0 && len(f.Reasons) == 0 &&
		len(f.CoachTypes) == 0 && len(f.Sections) == 0 &&
		len(f.Directions) == 0
}

// DateRange parses the optional bounds. A nil bound is open.
func (f FilterSpec) DateRange() (from, to *time.Time, err error) {
	if err := Validate(f); err != nil {
		return nil, nil, err
	}
	if f.DateFrom != "" {
		t, _ := time.Parse(DateLayout, strings.TrimSpace(f.DateFrom))
		from = &t
	}
	if f.DateTo != "" {
		t, _ := time.Parse(DateLayout, strings.TrimSpace(f.DateTo))
		to = &t
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, &ValidationError{
			Field:  "date_from",
			Reason: fmt.Sprintf("date_from %s is after date_to %s", f.DateFrom, f.DateTo),
		}
	}
	return from, to, nil
}

// TableRequest is the body of POST /table/{cacheKey}
type TableRequest struct {
	Filters  FilterSpec `json:"filters"`
	Page     int        `json:"page" validate:"gte=1"`
	PageSize int        `json:"page_size" validate:"gte=1,lte=1000"`
	SortBy   string     `json:"sort_by,omitempty"`
	SortDesc bool       `json:"sort_desc,omitempty"`
}

// NewTableRequest returns a request with the dashboard defaults (page 1, 50 rows)
func NewTableRequest() TableRequest {
	return TableRequest{Page: 1, PageSize: 50}
}

// ValidationError is returned for malformed client input.
// Input is rejected, never corrected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var validate = validator.New()

// Validate runs struct-tag validation and converts the first failure into a *ValidationError
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:  jsonFieldName(fe.Field()),
			Reason: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

// jsonFieldName maps Go field names to their wire names for error messages
func jsonFieldName(field string) string {
	switch field {
	case "DateFrom":
		return "date_from"
	case "DateTo":
		return "date_to"
	case "Page":
		return "page"
	case "PageSize":
		return "page_size"
	}
	return strings.ToLower(field)
}
