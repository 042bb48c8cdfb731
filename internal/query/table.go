package query

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/internal/filter"
	"github.com/you/alarmchain/internal/metrics"
	"github.com/you/alarmchain/models"
)

// Table returns one page of filtered records, optionally sorted by a column.
// Sorting is stable, so equal values keep dataset order.
func (s *Service) Table(key string, req models.TableRequest) (*TablePage, error) {
	defer metrics.ObserveQuery("table", time.Now())

	if err := models.Validate(req); err != nil {
		return nil, err
	}
	ds, view, err := s.view(key, req.Filters)
	if err != nil {
		return nil, err
	}
	columns := ds.Columns()

	if req.SortBy != "" {
		if !slices.Contains(columns, req.SortBy) {
			return nil, &models.ValidationError{
				Field:  "sort_by",
				Reason: fmt.Sprintf("unknown column %q", req.SortBy),
			}
		}
		view = sortView(view, req.SortBy, req.SortDesc)
	}

	total := len(view)
	start := total
	if req.Page-1 <= total/req.PageSize {
		start = min((req.Page-1)*req.PageSize, total)
	}
	end := start + min(req.PageSize, total-start)

	rows := make([]Row, 0, end-start)
	for _, rec := range view[start:end] {
		rows = append(rows, toRow(rec, columns))
	}

	return &TablePage{
		Data:       rows,
		Columns:    columns,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: (total + req.PageSize - 1) / req.PageSize,
	}, nil
}

// sortView returns a sorted copy; the cached record order is never touched
func sortView(view filter.View, column string, desc bool) filter.View {
	sorted := make(filter.View, len(view))
	copy(sorted, view)

	less := func(a, b *models.Incident) int {
		if column == models.ColDate {
			return a.Date.Compare(b.Date)
		}
		return strings.Compare(a.Value(column), b.Value(column))
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if desc {
			return less(sorted[i], sorted[j]) > 0
		}
		return less(sorted[i], sorted[j]) < 0
	})
	return sorted
}

func toRow(rec *models.Incident, columns []string) Row {
	row := make(Row, len(columns))
	for _, c := range columns {
		if v := rec.Value(c); v != "" {
			row[c] = &v
		} else {
			row[c] = nil
		}
	}
	return row
}

// ExportFormat selects the encoding of Export
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ParseExportFormat accepts csv, json or yaml. Empty means csv.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", &models.ValidationError{
		Field:  "format",
		Reason: fmt.Sprintf("%q is not one of csv, json, yaml", s),
	}
}

// ContentType returns the MIME type for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	}
	return "text/csv; charset=utf-8"
}

// Export is an encoded, unpaginated filtered record set
type Export struct {
	Format   ExportFormat
	FileName string
	Records  int
	Body     []byte
}

// exportDocument is the structured (JSON/YAML) export shape
type exportDocument struct {
	Data         []Row `json:"data" yaml:"data"`
	TotalRecords int   `json:"total_records" yaml:"total_records"`
}

// Export encodes every filtered record in the requested format
func (s *Service) Export(key string, spec models.FilterSpec, format string) (*Export, error) {
	defer metrics.ObserveQuery("export", time.Now())

	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	ds, view, err := s.view(key, spec)
	if err != nil {
		return nil, err
	}

	body, err := encodeExport(f, ds, view)
	if err != nil {
		return nil, fmt.Errorf("encode %s export: %w", f, err)
	}
	return &Export{
		Format:   f,
		FileName: fmt.Sprintf("acp_export_%s.%s", time.Now().UTC().Format("20060102_150405"), f),
		Records:  len(view),
		Body:     body,
	}, nil
}

func encodeExport(f ExportFormat, ds *dataset.Dataset, view filter.View) ([]byte, error) {
	columns := ds.Columns()

	if f == FormatCSV {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(columns); err != nil {
			return nil, err
		}
		line := make([]string, len(columns))
		for _, rec := range view {
			for i, c := range columns {
				line[i] = rec.Value(c)
			}
			if err := w.Write(line); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}

	doc := exportDocument{Data: make([]Row, len(view)), TotalRecords: len(view)}
	for i, rec := range view {
		doc.Data[i] = toRow(rec, columns)
	}
	if f == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.Marshal(doc)
}
