package db

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process memory. Jobs are deep-copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*models.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	return s.update(id, func(job *models.Job, now time.Time) {
		job.Status = status
		if status == models.JobStatusCompleted || status == models.JobStatusFailed {
			job.FinishedAt = &now
		} else if job.StartedAt == nil {
			job.StartedAt = &now
		}
	})
}

func (s *MemoryStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return s.update(id, func(job *models.Job, _ time.Time) {
		job.Progress = progress
	})
}

func (s *MemoryStore) SetJobAnalysis(ctx context.Context, id uuid.UUID, analysis *models.Analysis) error {
	return s.update(id, func(job *models.Job, _ time.Time) {
		job.Analysis = analysis
	})
}

func (s *MemoryStore) SetJobScenes(ctx context.Context, id uuid.UUID, scenes []models.Scene) error {
	return s.update(id, func(job *models.Job, _ time.Time) {
		job.Scenes = append(models.SceneList(nil), scenes...)
	})
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id uuid.UUID, result JobResult) error {
	return s.update(id, func(job *models.Job, now time.Time) {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.FinalVideoURL = &result.FinalVideoURL
		if result.PublicVideoURL != "" {
			job.PublicVideoURL = &result.PublicVideoURL
		}
		job.VideoDuration = &result.Duration
		job.ErrorMessage = nil
		job.FinishedAt = &now
	})
}

func (s *MemoryStore) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return s.update(id, func(job *models.Job, now time.Time) {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &errorMessage
		job.FinishedAt = &now
		job.Attempts++
	})
}

func (s *MemoryStore) update(id uuid.UUID, fn func(job *models.Job, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	updated := cloneJob(job)
	now := s.now()
	fn(updated, now)
	updated.UpdatedAt = now
	s.jobs[id] = cloneJob(updated)
	return nil
}

// cloneJob deep-copies through JSON, which is exactly the job's wire shape.
func cloneJob(job *models.Job) *models.Job {
	data, err := json.Marshal(job)
	if err != nil {
		panic("db: job is not serializable: " + err.Error())
	}
	var out models.Job
	if err := json.Unmarshal(data, &out); err != nil {
		panic("db: job is not serializable: " + err.Error())
	}
	return &out
}
