package db

import (
	"context"
	"errors"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// Both implementations must satisfy Store.
var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)

func newJob(t *testing.T, s *MemoryStore) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:     uuid.New(),
		Script: "Once upon a time.",
		Status: models.JobStatusQueued,
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := newJob(t, s)

	if err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusRendering); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if err := s.UpdateJobProgress(ctx, job.ID, 40); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}

	scenes := []models.Scene{{Index: 0, Description: "Dawn"}, {Index: 1, Description: "Dusk"}}
	if err := s.SetJobScenes(ctx, job.ID, scenes); err != nil {
		t.Fatalf("SetJobScenes: %v", err)
	}
	if err := s.CompleteJob(ctx, job.ID, JobResult{FinalVideoURL: "/output/final/a.mp4", Duration: 12}); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobStatusCompleted || got.Progress != 100 {
		t.Errorf("unexpected status/progress: %s %d", got.Status, got.Progress)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("expected started_at and finished_at to be set")
	}
	if got.FinalVideoURL == nil || *got.FinalVideoURL != "/output/final/a.mp4" {
		t.Errorf("unexpected final video url: %v", got.FinalVideoURL)
	}
	if got.PublicVideoURL != nil {
		t.Errorf("public url should stay empty, got %v", *got.PublicVideoURL)
	}
	if diff := cmp.Diff(models.SceneList(scenes), got.Scenes); diff != "" {
		t.Errorf("scenes mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := newJob(t, s)

	scenes := []models.Scene{{Index: 0, Description: "Dawn"}}
	if err := s.SetJobScenes(ctx, job.ID, scenes); err != nil {
		t.Fatal(err)
	}
	scenes[0].Description = "changed by caller"

	got, _ := s.GetJob(ctx, job.ID)
	if got.Scenes[0].Description != "Dawn" {
		t.Errorf("store shares scene storage with caller")
	}

	got.Scenes[0].Description = "changed by reader"
	again, _ := s.GetJob(ctx, job.ID)
	if again.Scenes[0].Description != "Dawn" {
		t.Errorf("store shares scene storage with reader")
	}
}

func TestMemoryStoreFailJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := newJob(t, s)

	if err := s.FailJob(ctx, job.ID, "scene 2: image is missing"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != models.JobStatusFailed || got.ErrorMessage == nil || got.Attempts != 1 {
		t.Errorf("unexpected failed job: %+v", got)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	missing := uuid.New()

	if _, err := s.GetJob(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateJobProgress(ctx, missing, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateJobProgress: expected ErrNotFound, got %v", err)
	}
}
