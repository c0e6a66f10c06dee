package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			id, script, analysis, scenes, status, progress
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Script, job.Analysis, job.Scenes, job.Status, job.Progress,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT
			id, script, analysis, scenes, status, progress, attempts,
			final_video_url, public_video_url, video_duration, error_message,
			started_at, finished_at, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	var analysis []byte
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Script, &analysis, &job.Scenes, &job.Status,
		&job.Progress, &job.Attempts, &job.FinalVideoURL, &job.PublicVideoURL,
		&job.VideoDuration, &job.ErrorMessage, &job.StartedAt, &job.FinishedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if analysis != nil {
		job.Analysis = &models.Analysis{}
		if err := job.Analysis.Scan(analysis); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
	}

	return job, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	now := time.Now()
	query := `
		UPDATE jobs
		SET status = $1, started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE id = $3
	`

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query = `UPDATE jobs SET status = $1, finished_at = $2, updated_at = $2 WHERE id = $3`
	}

	return db.execOne(ctx, query, status, now, id)
}

func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `UPDATE jobs SET progress = $1, updated_at = $2 WHERE id = $3`
	return db.execOne(ctx, query, progress, time.Now(), id)
}

func (db *DB) SetJobAnalysis(ctx context.Context, id uuid.UUID, analysis *models.Analysis) error {
	query := `UPDATE jobs SET analysis = $1, updated_at = $2 WHERE id = $3`
	return db.execOne(ctx, query, analysis, time.Now(), id)
}

func (db *DB) SetJobScenes(ctx context.Context, id uuid.UUID, scenes []models.Scene) error {
	query := `UPDATE jobs SET scenes = $1, updated_at = $2 WHERE id = $3`
	return db.execOne(ctx, query, models.SceneList(scenes), time.Now(), id)
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result JobResult) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = 100, final_video_url = $2, public_video_url = $3,
			video_duration = $4, error_message = NULL, finished_at = $5, updated_at = $5
		WHERE id = $6
	`
	var public *string
	if result.PublicVideoURL != "" {
		public = &result.PublicVideoURL
	}
	return db.execOne(ctx, query,
		models.JobStatusCompleted, result.FinalVideoURL, public, result.Duration, time.Now(), id,
	)
}

func (db *DB) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, finished_at = $3, updated_at = $3, attempts = attempts + 1
		WHERE id = $4
	`
	return db.execOne(ctx, query, models.JobStatusFailed, errorMessage, time.Now(), id)
}

func (db *DB) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
