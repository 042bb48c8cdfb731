package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/you/alarmchain/internal/cache"
	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/internal/query"
	"github.com/you/alarmchain/internal/report"
	"github.com/you/alarmchain/models"
)

var summarizeFlags struct {
	format string
	train  string
	from   string
	to     string
	top    int
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize FILE.csv [FILE.csv...]",
	Short: "Print a summary of 1-3 ACP register CSV files",
	Args:  cobra.RangeArgs(1, query.MaxFiles),
	RunE:  runSummarize,
}

func init() {
	f := summarizeCmd.Flags()
	f.StringVar(&summarizeFlags.format, "format", "table", "output format: table or markdown")
	f.StringVar(&summarizeFlags.train, "train", "", "restrict to one train number")
	f.StringVar(&summarizeFlags.from, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&summarizeFlags.to, "to", "", "last day, YYYY-MM-DD")
	f.IntVar(&summarizeFlags.top, "top", 10, "number of trains to list")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	mode, err := report.ParseMode(summarizeFlags.format)
	if err != nil {
		return err
	}

	files := make([]dataset.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, dataset.File{Name: filepath.Base(path), Data: data})
	}

	svc := query.NewService(cache.NewStore(), nil, logger)
	up, err := svc.Upload(cmd.Context(), files)
	if err != nil {
		return err
	}

	spec := models.FilterSpec{DateFrom: summarizeFlags.from, DateTo: summarizeFlags.to}
	if summarizeFlags.train != "" {
		spec.TrainNumbers = []string{summarizeFlags.train}
	}

	s := report.Summary{Upload: up, TrainLabel: summarizeFlags.train}
	if s.KPI, err = svc.KPI(up.CacheKey, spec); err != nil {
		return err
	}
	if s.Overview, err = svc.Overview(up.CacheKey, spec); err != nil {
		return err
	}
	if s.Days, err = svc.DayAnalysis(up.CacheKey, spec); err != nil {
		return err
	}
	if s.TopTrains, err = svc.TrainList(up.CacheKey, spec, summarizeFlags.top); err != nil {
		return err
	}
	if s.Monthly, err = svc.Timeline(up.CacheKey, spec, "monthly"); err != nil {
		return err
	}

	report.Write(cmd.OutOrStdout(), mode, s)
	return nil
}
