// Package repository stores upload metadata. Datasets themselves are never
// persisted; the ledger only records which uploads were accepted.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/you/alarmchain/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS uploads (
		id            TEXT PRIMARY KEY,
		cache_key     TEXT NOT NULL,
		file_names    TEXT NOT NULL,
		file_count    INTEGER NOT NULL,
		total_records INTEGER NOT NULL,
		rejected_rows INTEGER NOT NULL,
		size_bytes    INTEGER NOT NULL,
		reused        INTEGER NOT NULL DEFAULT 0,
		uploaded_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_at ON uploads (uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_cache_key ON uploads (cache_key);
`

// sqliteTimeLayout has a fixed width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// fileNameSep joins file names in the SQLite TEXT column; it cannot appear in a file name
const fileNameSep = "/"

// SQLiteUploadRepository records uploads in a SQLite file it owns
type SQLiteUploadRepository struct {
	db *sql.DB
}

// OpenSQLiteLedger creates the ledger file on first use and migrates it.
// Reopening an existing file leaves its rows alone.
func OpenSQLiteLedger(path string) (*SQLiteUploadRepository, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite ledger: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	return &SQLiteUploadRepository{db: db}, nil
}

// Close releases the ledger file
func (r *SQLiteUploadRepository) Close() error {
	return r.db.Close()
}

// RecordUpload inserts one ledger entry
func (r *SQLiteUploadRepository) RecordUpload(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (
			id, cache_key, file_names, file_count, total_records,
			rejected_rows, size_bytes, reused, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID.String(),
		u.CacheKey,
		strings.Join(u.FileNames, fileNameSep),
		u.FileCount,
		u.TotalRecords,
		u.RejectedRows,
		u.SizeBytes,
		u.Reused,
		u.UploadedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// RecentUploads returns up to limit entries, newest first
func (r *SQLiteUploadRepository) RecentUploads(ctx context.Context, limit int) ([]models.Upload, error) {
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
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	uploads := make([]models.Upload, 0, limit)
	for rows.Next() {
		var u models.Upload
		// SQLite stores ids and timestamps as text
		var idStr, fileNames, uploadedAtStr string
		err := rows.Scan(
			&idStr,
			&u.CacheKey,
			&fileNames,
			&u.FileCount,
			&u.TotalRecords,
			&u.RejectedRows,
			&u.SizeBytes,
			&u.Reused,
			&uploadedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}

		if u.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("invalid upload id %q: %w", idStr, err)
		}
		if u.UploadedAt, err = time.Parse(sqliteTimeLayout, uploadedAtStr); err != nil {
			return nil, fmt.Errorf("invalid uploaded_at %q: %w", uploadedAtStr, err)
		}
		if fileNames != "" {
			u.FileNames = strings.Split(fileNames, fileNameSep)
		}
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	return uploads, nil
}

// Ping checks database connectivity
func (r *SQLiteUploadRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
