package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxScriptLength = 20000

type Handler struct {
	store  db.Store
	broker queue.Broker
}

func NewHandler(store db.Store, broker queue.Broker) *Handler {
	return &Handler{
		store:  store,
		broker: broker,
	}
}

// CreateJob handles POST /v1/jobs: stores the script and queues its analysis.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, ok := h.newJob(w, r, req.Script)
	if !ok {
		return
	}

	if err := queue.EnqueueAnalyze(r.Context(), h.broker, job.ID); err != nil {
		h.enqueueFailed(w, r, job.ID, err)
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateJobResponse{JobID: job.ID, Status: job.Status})
}

// Workflow handles POST /v1/workflow: one request from script to video.
func (h *Handler) Workflow(w http.ResponseWriter, r *http.Request) {
	var req models.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateRenderOptions(req.Options); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, ok := h.newJob(w, r, req.Script)
	if !ok {
		return
	}

	if err := queue.EnqueueWorkflow(r.Context(), h.broker, job.ID, req.Options); err != nil {
		h.enqueueFailed(w, r, job.ID, err)
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateJobResponse{JobID: job.ID, Status: job.Status})
}

func (h *Handler) newJob(w http.ResponseWriter, r *http.Request, script string) (*models.Job, bool) {
	script = strings.TrimSpace(script)
	if script == "" {
		respondError(w, http.StatusBadRequest, "Script is required")
		return nil, false
	}
	if len(script) > maxScriptLength {
		respondError(w, http.StatusBadRequest, "Script is too long")
		return nil, false
	}

	job := &models.Job{
		ID:     uuid.New(),
		Script: script,
		Scenes: models.SceneList{},
		Status: models.JobStatusQueued,
	}
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("failed to create job")
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return nil, false
	}
	return job, true
}

func (h *Handler) enqueueFailed(w http.ResponseWriter, r *http.Request, jobID uuid.UUID, err error) {
	log.Error().Err(err).Str("job", jobID.String()).Msg("failed to enqueue task")
	_ = h.store.FailJob(r.Context(), jobID, "failed to enqueue task")
	respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// UpdateAnalysis handles PUT /v1/jobs/{id}/analysis. Edited characters feed
// segmentation, image prompts and voice selection.
func (h *Handler) UpdateAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadIdleJob(w, r)
	if !ok {
		return
	}

	var analysis models.Analysis
	if err := json.NewDecoder(r.Body).Decode(&analysis); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if analysis.Characters == nil {
		analysis.Characters = []models.Character{}
	}

	if err := h.store.SetJobAnalysis(r.Context(), job.ID, &analysis); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save analysis")
		return
	}
	if job.Status == models.JobStatusFailed || job.Status == models.JobStatusAnalyzed {
		if err := h.store.UpdateJobStatus(r.Context(), job.ID, models.JobStatusAnalyzed); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to update job")
			return
		}
	}

	h.respondJob(w, r, job.ID, http.StatusOK)
}

// UpdateScenes handles PUT /v1/jobs/{id}/scenes. Scenes are renumbered in the
// order given.
func (h *Handler) UpdateScenes(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadIdleJob(w, r)
	if !ok {
		return
	}

	var req models.UpdateScenesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Scenes) == 0 {
		respondError(w, http.StatusBadRequest, "At least one scene is required")
		return
	}

	for i := range req.Scenes {
		req.Scenes[i].Index = i
		if req.Scenes[i].Characters == nil {
			req.Scenes[i].Characters = []string{}
		}
	}

	if err := h.store.SetJobScenes(r.Context(), job.ID, req.Scenes); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save scenes")
		return
	}
	h.respondJob(w, r, job.ID, http.StatusOK)
}

// Segment handles POST /v1/jobs/{id}/segment
func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	h.enqueueStep(w, r, false, func(jobID uuid.UUID) error {
		return queue.EnqueueSegment(r.Context(), h.broker, jobID)
	})
}

// GenerateImages handles POST /v1/jobs/{id}/images
func (h *Handler) GenerateImages(w http.ResponseWriter, r *http.Request) {
	h.enqueueStep(w, r, true, func(jobID uuid.UUID) error {
		return queue.EnqueueImages(r.Context(), h.broker, jobID)
	})
}

// GenerateAudio handles POST /v1/jobs/{id}/audio
func (h *Handler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	h.enqueueStep(w, r, true, func(jobID uuid.UUID) error {
		return queue.EnqueueAudio(r.Context(), h.broker, jobID)
	})
}

// Render handles POST /v1/jobs/{id}/render. The body is optional.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var opts models.RenderOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if err := validateRenderOptions(opts); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.enqueueStep(w, r, true, func(jobID uuid.UUID) error {
		return queue.EnqueueRender(r.Context(), h.broker, jobID, opts)
	})
}

// enqueueStep queues one pipeline step for an idle job and marks it queued.
func (h *Handler) enqueueStep(w http.ResponseWriter, r *http.Request, needScenes bool, enqueue func(uuid.UUID) error) {
	job, ok := h.loadIdleJob(w, r)
	if !ok {
		return
	}
	if needScenes && len(job.Scenes) == 0 {
		respondError(w, http.StatusConflict, "Job has no scenes yet")
		return
	}

	if err := h.store.UpdateJobStatus(r.Context(), job.ID, models.JobStatusQueued); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}
	if err := enqueue(job.ID); err != nil {
		h.enqueueFailed(w, r, job.ID, err)
		return
	}

	h.respondJob(w, r, job.ID, http.StatusAccepted)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return nil, false
	}

	job, err := h.store.GetJob(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("job", id.String()).Msg("failed to load job")
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return nil, false
	}
	return job, true
}

// loadIdleJob rejects jobs a worker is currently processing.
func (h *Handler) loadIdleJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return nil, false
	}
	if job.Status.Busy() {
		respondError(w, http.StatusConflict, "Job is busy ("+string(job.Status)+")")
		return nil, false
	}
	return job, true
}

func (h *Handler) respondJob(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int) {
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	respondJSON(w, status, job)
}

func validateRenderOptions(opts models.RenderOptions) error {
	return worker.RunOptions(opts, "").WithDefaults().Validate()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
