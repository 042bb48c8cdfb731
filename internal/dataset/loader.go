// Package dataset parses uploaded ACP register CSV exports into immutable record sets.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/you/alarmchain/models"
)

// File is one uploaded CSV
type File struct {
	Name string
	Data []byte
}

// Dataset is a parsed, immutable snapshot of one upload (one to three files).
// Records keep upload order; nothing mutates them after Parse returns.
type Dataset struct {
	Fingerprint  string
	Records      []models.Incident
	ExtraColumns []string // passthrough columns in first-seen header order
	FileNames    []string
	Rejected     int // rows excluded for a missing/unparseable required field
	SizeBytes    int64
	UploadedAt   time.Time
	MinDate      time.Time
	MaxDate      time.Time
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// FileCount returns how many files were combined into the dataset
func (d *Dataset) FileCount() int {
	return len(d.FileNames)
}

// Columns returns typed columns followed by passthrough columns
func (d *Dataset) Columns() []string {
	cols := make([]string, 0, len(models.TypedColumns)+len(d.ExtraColumns))
	cols = append(cols, models.TypedColumns...)
	return append(cols, d.ExtraColumns...)
}

// ParseError reports an upload that cannot produce a dataset at all
type ParseError struct {
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Fingerprint is the SHA-256 of the concatenated raw bytes of files, in order.
// Identical uploads always produce the same key.
func Fingerprint(files []File) string {
	h := sha256.New()
	for _, f := range files {
		h.Write(f.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Parse parses a single CSV file
func Parse(name string, data []byte) (*Dataset, error) {
	return ParseFiles([]File{{Name: name, Data: data}})
}

// ParseFiles parses every file and concatenates the records into one dataset.
// Row-level defects are tallied in Rejected; a file-level defect fails the whole upload.
func ParseFiles(files []File) (*Dataset, error) {
	if len(files) == 0 {
		return nil, &ParseError{Reason: "no files uploaded"}
	}

	ds := &Dataset{
		Fingerprint: Fingerprint(files),
		UploadedAt:  time.Now().UTC(),
	}
	seenExtra := make(map[string]bool)

	for _, f := range files {
		records, extras, rejected, err := parseFile(f)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, records...)
		ds.Rejected += rejected
		ds.FileNames = append(ds.FileNames, f.Name)
		ds.SizeBytes += int64(len(f.Data))
		for _, c := range extras {
			if !seenExtra[c] {
				seenExtra[c] = true
				ds.ExtraColumns = append(ds.ExtraColumns, c)
			}
		}
	}

	if len(ds.Records) == 0 {
		return nil, &ParseError{
			Reason: fmt.Sprintf("no valid rows (%d rejected)", ds.Rejected),
		}
	}

	ds.MinDate, ds.MaxDate = ds.Records[0].Day(), ds.Records[0].Day()
	for i := range ds.Records {
		d := ds.Records[i].Day()
		if d.Before(ds.MinDate) {
			ds.MinDate = d
		}
		if d.After(ds.MaxDate) {
			ds.MaxDate = d
		}
	}

	return ds, nil
}

func parseFile(f File) ([]models.Incident, []string, int, error) {
	data := bytes.TrimPrefix(f.Data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, nil, 0, &ParseError{File: f.Name, Reason: "file is not valid UTF-8 text"}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, 0, &ParseError{File: f.Name, Reason: "file is empty, header row missing"}
	}
	if err != nil {
		return nil, nil, 0, &ParseError{File: f.Name, Reason: "unreadable header row", Err: err}
	}

	idx, extras := makeIndex(header)
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, 0, &ParseError{
			File:   f.Name,
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		}
	}

	var records []models.Incident
	rejected := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				rejected++
				continue
			}
			return nil, nil, 0, &ParseError{File: f.Name, Reason: "read failed", Err: err}
		}

		rec, ok := parseRow(row, idx, extras)
		if !ok {
			rejected++
			continue
		}
		records = append(records, rec)
	}

	return records, extras, rejected, nil
}

// parseRow builds one Incident. ok is false when a required field is missing or unparseable.
func parseRow(row []string, idx map[string]int, extras []string) (models.Incident, bool) {
	date, ok := parseDate(getField(row, idx, models.ColDate))
	if !ok {
		return models.Incident{}, false
	}

	rec := models.Incident{
		Date:         date,
		TrainNo:      normalizeTrainNo(getField(row, idx, models.ColTrainNo)),
		Reason:       getField(row, idx, models.ColReason),
		Category:     getField(row, idx, models.ColCategory),
		TrainFromTo:  getField(row, idx, models.ColTrainFromTo),
		Direction:    models.ParseDirection(getField(row, idx, models.ColDirection)),
		DailyType:    models.ParseServiceType(getField(row, idx, models.ColDailyType)),
		DayName:      getField(row, idx, models.ColDayName),
		TimeFrom:     normalizeClock(getField(row, idx, models.ColTimeFrom)),
		TimeTo:       normalizeClock(getField(row, idx, models.ColTimeTo)),
		TimeAnalysis: getField(row, idx, models.ColTimeAnalysis),
		Duration:     getField(row, idx, models.ColDuration),
		PostNames:    getField(row, idx, models.ColPostNames),
		StnSecFrom:   getField(row, idx, models.ColStnSecFrom),
		MidSection:   getField(row, idx, models.ColMidSection),
		BroadSection: getField(row, idx, models.ColBroadSection),
		Coach:        getField(row, idx, models.ColCoach),
		TypeOfCoach:  getField(row, idx, models.ColTypeOfCoach),
	}
	if rec.TrainNo == "" || rec.Reason == "" || rec.Category == "" {
		return models.Incident{}, false
	}
	if rec.DayName == "" {
		rec.DayName = date.Weekday().String()
	}

	if len(extras) > 0 {
		rec.Extra = make(map[string]string, len(extras))
		for _, c := range extras {
			if v := getField(row, idx, c); v != "" {
				rec.Extra[c] = v
			}
		}
	}

	return rec, true
}

// dateLayouts are the day-first layouts seen in register exports.
// Single-digit day and month parse under the same layouts.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Some exports append a midnight time component
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeTrainNo strips the ".0" spreadsheets add to numeric train numbers
func normalizeTrainNo(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// normalizeClock turns "9:05", "09:05:00" into "09:05". Anything else is kept as written.
func normalizeClock(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04")
		}
	}
	return s
}
