// Package query composes the filter and analytics packages into the
// operations served to the dashboard. Every operation resolves a cache key,
// narrows the dataset with a FilterSpec and shapes an aggregation.
package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/you/alarmchain/internal/cache"
	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/internal/filter"
	"github.com/you/alarmchain/internal/metrics"
	"github.com/you/alarmchain/models"
)

// MaxFiles is the most CSV files accepted in one upload
const MaxFiles = 3

const defaultUploadsLimit = 20

// ErrNotFound is returned (wrapped) for cache keys that do not resolve to a dataset
var ErrNotFound = cache.ErrNotFound

// UploadLedger records upload metadata. Implementations live in repository.
type UploadLedger interface {
	RecordUpload(ctx context.Context, u *models.Upload) error
	RecentUploads(ctx context.Context, limit int) ([]models.Upload, error)
}

// Service answers dashboard queries over cached datasets
type Service struct {
	store  *cache.Store
	ledger UploadLedger // optional
	logger *logrus.Logger
}

// NewService wires a Service. ledger may be nil.
func NewService(store *cache.Store, ledger UploadLedger, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, ledger: ledger, logger: logger}
}

// HasLedger reports whether upload history is recorded
func (s *Service) HasLedger() bool {
	return s.ledger != nil
}

// Upload parses 1 to 3 CSV files into one dataset and caches it under its fingerprint.
// Re-uploading identical bytes returns the same key without parsing again.
func (s *Service) Upload(ctx context.Context, files []dataset.File) (*UploadResult, error) {
	defer metrics.ObserveQuery("upload", time.Now())

	if err := validateFiles(files); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	key := dataset.Fingerprint(files)
	ds, hit, err := s.store.GetOrLoad(key, func() (*dataset.Dataset, error) {
		return dataset.ParseFiles(files)
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.logger.WithFields(logrus.Fields{
			"files": len(files),
			"error": err,
		}).Warn("Upload rejected")
		return nil, err
	}

	if hit {
		metrics.UploadsTotal.WithLabelValues("reused").Inc()
	} else {
		metrics.UploadsTotal.WithLabelValues("parsed").Inc()
		metrics.UploadRows.WithLabelValues("accepted").Add(float64(ds.Len()))
		metrics.UploadRows.WithLabelValues("rejected").Add(float64(ds.Rejected))
	}
	metrics.CacheEntries.Set(float64(s.store.Len()))

	upload := &models.Upload{
		ID:           uuid.New(),
		CacheKey:     ds.Fingerprint,
		FileNames:    fileNames(files),
		FileCount:    ds.FileCount(),
		TotalRecords: ds.Len(),
		RejectedRows: ds.Rejected,
		SizeBytes:    ds.SizeBytes,
		Reused:       hit,
		UploadedAt:   time.Now().UTC(),
	}
	if s.ledger != nil {
		// The dataset is already published; a ledger failure only loses history
		if err := s.ledger.RecordUpload(ctx, upload); err != nil {
			s.logger.WithError(err).WithField("cache_key", upload.CacheKey).Warn("Failed to record upload")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"cache_key": ds.Fingerprint,
		"records":   ds.Len(),
		"rejected":  ds.Rejected,
		"files":     ds.FileCount(),
		"reused":    hit,
	}).Info("Dataset uploaded")

	return &UploadResult{
		CacheKey:     ds.Fingerprint,
		TotalRecords: ds.Len(),
		RejectedRows: ds.Rejected,
		FileCount:    ds.FileCount(),
		UploadID:     upload.ID,
		Reused:       hit,
	}, nil
}

func validateFiles(files []dataset.File) error {
	if len(files) == 0 {
		return &models.ValidationError{Field: "files", Reason: "at least one CSV file is required"}
	}
	if len(files) > MaxFiles {
		return &models.ValidationError{
			Field:  "files",
			Reason: fmt.Sprintf("at most %d files per upload, got %d", MaxFiles, len(files)),
		}
	}
	for _, f := range files {
		if !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
			return &models.ValidationError{
				Field:  "files",
				Reason: fmt.Sprintf("%s is not a .csv file", f.Name),
			}
		}
	}
	return nil
}

func fileNames(files []dataset.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

// Uploads returns the most recent ledger entries, newest first
func (s *Service) Uploads(ctx context.Context, limit int) ([]models.Upload, error) {
	limit, err := limitOrDefault(limit, defaultUploadsLimit)
	if err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return []models.Upload{}, nil
	}
	return s.ledger.RecentUploads(ctx, limit)
}

// Stats reports cache occupancy
func (s *Service) Stats() Stats {
	return Stats{CacheEntries: s.store.Len(), CacheKeys: s.store.Keys()}
}

// Dataset resolves a cache key
func (s *Service) Dataset(key string) (*dataset.Dataset, error) {
	ds, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		return nil, fmt.Errorf("resolve dataset: %w", err)
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return ds, nil
}

// view resolves key and applies spec
func (s *Service) view(key string, spec models.FilterSpec) (*dataset.Dataset, filter.View, error) {
	ds, _, view, err := s.match(key, spec)
	return ds, view, err
}

// match is view that also hands back the compiled filter
func (s *Service) match(key string, spec models.FilterSpec) (*dataset.Dataset, *filter.Matcher, filter.View, error) {
	ds, err := s.Dataset(key)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := filter.Compile(spec)
	if err != nil {
		return nil, nil, nil, err
	}
	return ds, m, m.Collect(ds.Records), nil
}

// limitOrDefault rejects negative limits and substitutes def for zero
func limitOrDefault(limit, def int) (int, error) {
	switch {
	case limit < 0 || limit > 1000:
		return 0, &models.ValidationError{
			Field:  "limit",
			Reason: fmt.Sprintf("%d is outside 1..1000", limit),
		}
	case limit == 0:
		return def, nil
	}
	return limit, nil
}
