package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// JobResult is what a successful render records on the job.
type JobResult struct {
	FinalVideoURL  string
	PublicVideoURL string
	Duration       float64
}

// Store persists jobs. DB is the Postgres implementation, MemoryStore the
// in-process one used when no database is configured.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetJobAnalysis(ctx context.Context, id uuid.UUID, analysis *models.Analysis) error
	SetJobScenes(ctx context.Context, id uuid.UUID, scenes []models.Scene) error
	CompleteJob(ctx context.Context, id uuid.UUID, result JobResult) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// DB wraps a Postgres connection pool.
type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id               UUID PRIMARY KEY,
		script           TEXT NOT NULL,
		analysis         JSONB,
		scenes           JSONB NOT NULL DEFAULT '[]',
		status           TEXT NOT NULL,
		progress         INTEGER NOT NULL DEFAULT 0,
		attempts         INTEGER NOT NULL DEFAULT 0,
		final_video_url  TEXT,
		public_video_url TEXT,
		video_duration   DOUBLE PRECISION,
		error_message    TEXT,
		started_at       TIMESTAMPTZ,
		finished_at      TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Migrate creates the jobs table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
