package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/internal/query"
	"github.com/you/alarmchain/models"
)

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk
const multipartMemory = 32 << 20

// UploadService is the write side of query.Service
type UploadService interface {
	Upload(ctx context.Context, files []dataset.File) (*query.UploadResult, error)
	Uploads(ctx context.Context, limit int) ([]models.Upload, error)
}

// UploadHandler accepts CSV uploads and lists the upload ledger
type UploadHandler struct {
	svc      UploadService
	maxBytes int64
	limiter  *rate.Limiter // nil = unlimited
	logger   *logrus.Logger
}

// NewUploadHandler creates a handler. perMinute <= 0 disables rate limiting.
func NewUploadHandler(svc UploadService, maxBytes int64, perMinute int, logger *logrus.Logger) *UploadHandler {
	h := &UploadHandler{svc: svc, maxBytes: maxBytes, logger: logger}
	if perMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return h
}

// PostUpload handles POST /upload
// Multipart form with 1-3 "files" parts, each a .csv
func (h *UploadHandler) PostUpload(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		retry := math.Ceil(1 / float64(h.limiter.Limit()))
		w.Header().Set("Retry-After", strconv.Itoa(max(int(retry), 1)))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many uploads, retry later",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, h.logger, "", err)
			return
		}
		writeError(w, h.logger, "", &models.ValidationError{Field: "files", Reason: err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]dataset.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, h.logger, "", fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, h.logger, "", fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		files = append(files, dataset.File{Name: fh.Filename, Data: data})
	}

	res, err := h.svc.Upload(r.Context(), files)
	if err != nil {
		writeError(w, h.logger, "", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetUploads handles GET /uploads?limit=
// Returns the most recent ledger entries, an empty list when no ledger is configured
func (h *UploadHandler) GetUploads(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, "", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	uploads, err := h.svc.Uploads(ctx, limit)
	if err != nil {
		writeError(w, h.logger, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}
