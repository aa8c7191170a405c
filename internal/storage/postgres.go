/**
 * PostgreSQL Client for the Scan Worker
 *
 * Persists analysis jobs: status, the final AnalysisResult as JSONB and the
 * structured error of failed jobs.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
)

// Job statuses
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrJobNotFound is returned by GetJob for an unknown job ID
var ErrJobNotFound = errors.New("job not found")

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS scan;
	CREATE TABLE IF NOT EXISTS scan.analysis_jobs (
		id                 UUID PRIMARY KEY,
		image_ref          TEXT,
		image_sha256       TEXT,
		status             TEXT NOT NULL,
		result_type        TEXT,
		result             JSONB,
		error              JSONB,
		failed_regions     TEXT[],
		processing_time_ms BIGINT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS analysis_jobs_sha256_idx ON scan.analysis_jobs (image_sha256);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	ImageRef         string
	ImageSHA256      string
	Status           string
	Result           *analysis.Result
	Error            map[string]interface{}
	FailedRegions    []string
	ProcessingTimeMs int64
}

// JobRecord is a stored job as read back from the database
type JobRecord struct {
	JobID            string                 `json:"jobId"`
	ImageRef         string                 `json:"imageRef,omitempty"`
	ImageSHA256      string                 `json:"imageSha256,omitempty"`
	Status           string                 `json:"status"`
	Result           *analysis.Result       `json:"result,omitempty"`
	Error            map[string]interface{} `json:"error,omitempty"`
	FailedRegions    []string               `json:"failedRegions,omitempty"`
	ProcessingTimeMs int64                  `json:"processingTimeMs,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the jobs table when it does not exist yet
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row. Fields left empty in update keep
// their stored values, except error and failed regions which always follow
// the latest update.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	var resultType string
	var resultJSON, errorJSON []byte
	var err error
	if update.Result != nil {
		resultType = string(update.Result.Type)
		if resultJSON, err = json.Marshal(update.Result); err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = sanitizeJSONForPostgres(resultJSON)
	}
	if update.Error != nil {
		if errorJSON, err = json.Marshal(update.Error); err != nil {
			return fmt.Errorf("failed to marshal error: %w", err)
		}
		errorJSON = sanitizeJSONForPostgres(errorJSON)
	}

	query := `
		INSERT INTO scan.analysis_jobs (
			id, image_ref, image_sha256, status, result_type, result,
			error, failed_regions, processing_time_ms, created_at, updated_at
		) VALUES (
			$1::uuid, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''),
			$6::jsonb, $7::jsonb, $8, NULLIF($9, 0), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			image_ref = COALESCE(EXCLUDED.image_ref, scan.analysis_jobs.image_ref),
			image_sha256 = COALESCE(EXCLUDED.image_sha256, scan.analysis_jobs.image_sha256),
			result_type = COALESCE(EXCLUDED.result_type, scan.analysis_jobs.result_type),
			result = COALESCE(EXCLUDED.result, scan.analysis_jobs.result),
			error = EXCLUDED.error,
			failed_regions = EXCLUDED.failed_regions,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, scan.analysis_jobs.processing_time_ms),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,                   // $1 - id
		update.ImageRef,                // $2 - image_ref
		update.ImageSHA256,             // $3 - image_sha256
		update.Status,                  // $4 - status
		resultType,                     // $5 - result_type
		nullJSON(resultJSON),           // $6 - result
		nullJSON(errorJSON),            // $7 - error
		pq.Array(update.FailedRegions), // $8 - failed_regions
		update.ProcessingTimeMs,        // $9 - processing_time_ms
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, describePQError(err))
	}

	return nil
}

// GetJob retrieves a job by ID
func (p *PostgresClient) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, image_ref, image_sha256, status, result, error,
			failed_regions, processing_time_ms, created_at, updated_at
		FROM scan.analysis_jobs
		WHERE id = $1::uuid
	`

	var (
		rec                   JobRecord
		imageRef, imageSHA256 sql.NullString
		resultJSON, errorJSON []byte
		failedRegions         pq.StringArray
		processingTimeMs      sql.NullInt64
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID, &imageRef, &imageSHA256, &rec.Status, &resultJSON, &errorJSON,
		&failedRegions, &processingTimeMs, &rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", describePQError(err))
	}

	rec.ImageRef = imageRef.String
	rec.ImageSHA256 = imageSHA256.String
	rec.ProcessingTimeMs = processingTimeMs.Int64
	rec.FailedRegions = []string(failedRegions)

	if len(resultJSON) > 0 {
		var result analysis.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		rec.Result = &result
	}
	if len(errorJSON) > 0 {
		if err := json.Unmarshal(errorJSON, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// describePQError adds the SQLSTATE and detail of a server error to err
func describePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate=%s, detail=%s)", err, pqErr.Code, pqErr.Detail)
	}
	return err
}

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escape sequences JSONB rejects. Raw OCR
// text kept in echo names can carry NUL and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})
	return controlEscapePattern.ReplaceAll(result, []byte(" "))
}
