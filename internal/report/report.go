// Package report renders query results as terminal or Markdown tables.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/you/alarmchain/internal/analytics"
	"github.com/you/alarmchain/internal/query"
)

// Mode controls the output format
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode accepts "table" (or empty) and "markdown"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown output format %q (want table or markdown)", s)
}

// Summary is everything the summarize command prints
type Summary struct {
	Upload     *query.UploadResult
	KPI        *query.KPI
	Overview   *query.Overview
	Days       *query.DayAnalysis
	TopTrains  *query.TrainList
	Monthly    *query.Timeline
	TrainLabel string // set when the summary is restricted to one train
}

func newWriter(mode Mode, title string) table.Writer {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
		w.SetTitle(title)
	}
	return w
}

func render(out io.Writer, mode Mode, title string, w table.Writer) {
	if mode == Markdown {
		fmt.Fprintf(out, "### %s\n\n%s\n\n", title, w.RenderMarkdown())
		return
	}
	fmt.Fprintf(out, "%s\n\n", w.Render())
}

// Write renders s to out
func Write(out io.Writer, mode Mode, s Summary) {
	headline(out, mode, s)
	counts(out, mode, "Top categories", "Category", s.Overview.TopCategories)
	counts(out, mode, "Top reasons", "Reason", s.Overview.TopReasons)
	counts(out, mode, "By day of week", "Day", s.Days.DayAnalysis)
	timeline(out, mode, s.Monthly)
	trains(out, mode, s.TopTrains)
}

func headline(out io.Writer, mode Mode, s Summary) {
	w := newWriter(mode, "Summary")
	w.AppendHeader(table.Row{"Metric", "Value"})
	w.AppendRow(table.Row{"Dataset", shortKey(s.Upload.CacheKey)})
	w.AppendRow(table.Row{"Records", s.Upload.TotalRecords})
	w.AppendRow(table.Row{"Rejected rows", s.Upload.RejectedRows})
	if s.TrainLabel != "" {
		w.AppendRow(table.Row{"Train", s.TrainLabel})
	}
	w.AppendRow(table.Row{"Incidents (filtered)", s.KPI.TotalIncidents})
	if s.Overview.DateRange != nil {
		w.AppendRow(table.Row{"Date range", s.Overview.DateRange.Min + " to " + s.Overview.DateRange.Max})
	}
	w.AppendRow(table.Row{"Daily average", fmt.Sprintf("%.2f", s.KPI.DailyAvg)})
	w.AppendRow(table.Row{"Trend", string(s.KPI.Trend)})
	if s.KPI.Percentile != nil {
		w.AppendRow(table.Row{"Percentile", fmt.Sprintf("%.2f", *s.KPI.Percentile)})
	}
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	render(out, mode, "Summary", w)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func counts(out io.Writer, mode Mode, title, label string, c analytics.Counts) {
	w := newWriter(mode, title)
	w.AppendHeader(table.Row{label, "Incidents", "Share"})
	total := c.Total()
	for _, b := range c {
		share := 0.0
		if total > 0 {
			share = float64(b.Count) / float64(total) * 100
		}
		w.AppendRow(table.Row{b.Key, b.Count, fmt.Sprintf("%.1f%%", share)})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	render(out, mode, title, w)
}

func timeline(out io.Writer, mode Mode, tl *query.Timeline) {
	w := newWriter(mode, "Monthly incidents")
	w.AppendHeader(table.Row{"Month", "Incidents"})
	sum := 0
	for _, p := range tl.Timeline {
		w.AppendRow(table.Row{p.Period, p.Count})
		sum += p.Count
	}
	w.AppendFooter(table.Row{"Total", sum})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	render(out, mode, "Monthly incidents", w)
}

func trains(out io.Writer, mode Mode, tl *query.TrainList) {
	w := newWriter(mode, "Most affected trains")
	w.AppendHeader(table.Row{"#", "Train", "Route", "Direction", "Service", "Incidents"})
	for i, t := range tl.Trains {
		w.AppendRow(table.Row{i + 1, t.TrainNo, t.TrainFromTo, t.Direction, t.DailyType, t.IncidentCount})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 30},
		{Number: 6, Align: text.AlignRight},
	})
	render(out, mode, "Most affected trains", w)
}
