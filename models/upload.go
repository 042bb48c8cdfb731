package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload is one accepted upload as recorded in the upload ledger.
// Only metadata is stored; the dataset itself lives in process memory.
type Upload struct {
	ID           uuid.UUID `db:"id" json:"uploadId"`
	CacheKey     string    `db:"cache_key" json:"cacheKey"`
	FileNames    []string  `db:"file_names" json:"fileNames"`
	FileCount    int       `db:"file_count" json:"fileCount"`
	TotalRecords int       `db:"total_records" json:"totalRecords"`
	RejectedRows int       `db:"rejected_rows" json:"rejectedRows"`
	SizeBytes    int64     `db:"size_bytes" json:"sizeBytes"`
	Reused       bool      `db:"reused" json:"reused"` // true when the fingerprint was already cached
	UploadedAt   time.Time `db:"uploaded_at" json:"uploadedAt"`
}
