package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/you/alarmchain/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS uploads (
		id            UUID PRIMARY KEY,
		cache_key     TEXT NOT NULL,
		file_names    TEXT[] NOT NULL,
		file_count    INTEGER NOT NULL,
		total_records INTEGER NOT NULL,
		rejected_rows INTEGER NOT NULL,
		size_bytes    BIGINT NOT NULL,
		reused        BOOLEAN NOT NULL DEFAULT FALSE,
		uploaded_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_at ON uploads (uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_cache_key ON uploads (cache_key);
`

// UploadRepository records uploads in Postgres
type UploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository connects to databaseURL and applies the schema
func NewUploadRepository(ctx context.Context, databaseURL string) (*UploadRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &UploadRepository{pool: pool}, nil
}

func (r *UploadRepository) Close() {
	r.pool.Close()
}

// RecordUpload inserts one ledger entry
func (r *UploadRepository) RecordUpload(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (
			id, cache_key, file_names, file_count, total_records,
			rejected_rows, size_bytes, reused, uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		u.ID,
		u.CacheKey,
		u.FileNames,
		u.FileCount,
		u.TotalRecords,
		u.RejectedRows,
		u.SizeBytes,
		u.Reused,
		u.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// RecentUploads returns up to limit entries, newest first
func (r *UploadRepository) RecentUploads(ctx context.Context, limit int) ([]models.Upload, error) {
	query := `
		SELECT
			id,
			cache_key,
			file_names,
			file_count,
			total_records,
			rejected_rows,
			size_bytes,
			reused,
			uploaded_at
		FROM uploads
		ORDER BY uploaded_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}

	uploads, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Upload])
	if err != nil {
		return nil, fmt.Errorf("failed to scan uploads: %w", err)
	}
	return uploads, nil
}

// Ping checks database connectivity
func (r *UploadRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
