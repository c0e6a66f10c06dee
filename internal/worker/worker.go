package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/slideshow"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const dequeueTimeout = 5 * time.Second

// Analyzer reads characters, setting and narrative out of a script.
type Analyzer interface {
	AnalyzeScript(ctx context.Context, script string) (*models.Analysis, error)
}

// SceneImager renders and stores one scene picture.
type SceneImager interface {
	GenerateSceneImage(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*services.GeneratedImage, error)
}

// SceneVoicer voices one scene. A nil result means the scene is silent.
type SceneVoicer interface {
	GenerateSceneAudio(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*services.GeneratedAudio, error)
}

// Renderer assembles scenes into the final video.
type Renderer interface {
	Run(ctx context.Context, scenes []slideshow.Scene, opts slideshow.RunOptions) (*slideshow.FinalVideo, error)
}

// Publisher copies a finished video to public storage.
type Publisher interface {
	PublishVideo(ctx context.Context, jobID uuid.UUID, localPath string) (string, error)
}

// Deps are the collaborators of a Worker. Analyzer and Publisher are optional.
type Deps struct {
	Store               db.Store
	Broker              queue.Broker
	Analyzer            Analyzer
	Segmenter           *services.Segmenter
	Images              SceneImager
	Voices              SceneVoicer
	Renderer            Renderer
	Publisher           Publisher
	BackgroundMusicPath string // used when a render asks for no music of its own
}

type Worker struct {
	store               db.Store
	broker              queue.Broker
	analyzer            Analyzer
	segmenter           *services.Segmenter
	images              SceneImager
	voices              SceneVoicer
	renderer            Renderer
	publisher           Publisher
	backgroundMusicPath string
	uploadSem           chan struct{} // limits concurrent storage uploads
}

func New(d Deps) *Worker {
	segmenter := d.Segmenter
	if segmenter == nil {
		segmenter = services.NewSegmenter(nil)
	}
	return &Worker{
		store:               d.Store,
		broker:              d.Broker,
		analyzer:            d.Analyzer,
		segmenter:           segmenter,
		images:              d.Images,
		voices:              d.Voices,
		renderer:            d.Renderer,
		publisher:           d.Publisher,
		backgroundMusicPath: d.BackgroundMusicPath,
		uploadSem:           make(chan struct{}, 2),
	}
}

// uploadWithLimit wraps an upload call with a semaphore so concurrent renders
// do not saturate the storage connection.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Debug().Str("upload", label).Msg("uploading")
	return fn()
}

// Start consumes every queue with the given number of goroutines per queue
// and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Info().Int("concurrency", concurrency).Msg("worker started")

	handlers := map[string]func(context.Context, *queue.Task) error{
		queue.QueueAnalyze:  w.handleAnalyze,
		queue.QueueSegment:  w.handleSegment,
		queue.QueueImages:   w.handleImages,
		queue.QueueAudio:    w.handleAudio,
		queue.QueueRender:   w.handleRender,
		queue.QueueWorkflow: w.handleWorkflow,
	}

	for i := 0; i < concurrency; i++ {
		for _, name := range queue.Queues {
			go w.processQueue(ctx, name, handlers[name])
		}
	}

	<-ctx.Done()
	log.Info().Msg("worker shutting down")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Task) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.broker.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("queue", queueName).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, task, handler)
	}
}

// process runs one task; any handler error fails the job.
func (w *Worker) process(ctx context.Context, task *queue.Task, handler func(context.Context, *queue.Task) error) {
	logger := log.With().Str("task", task.Type).Str("job", task.JobID.String()).Logger()
	logger.Info().Msg("processing task")

	started := time.Now()
	if err := handler(ctx, task); err != nil {
		logger.Error().Err(err).Msg("task failed")
		// The job is failed even when the worker is shutting down.
		if ferr := w.store.FailJob(context.WithoutCancel(ctx), task.JobID, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record job failure")
		}
		return
	}
	logger.Info().Dur("took", time.Since(started)).Msg("task completed")
}

func (w *Worker) handleAnalyze(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return w.analyze(ctx, job)
}

func (w *Worker) handleSegment(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return w.segment(ctx, job)
}

func (w *Worker) handleImages(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return w.generateImages(ctx, job)
}

func (w *Worker) handleAudio(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return w.generateAudio(ctx, job)
}

func (w *Worker) handleRender(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	var opts models.RenderOptions
	if task.Options != nil {
		opts = *task.Options
	}
	return w.render(ctx, job, opts)
}

// handleWorkflow runs every step for a freshly created job: analysis,
// segmentation, per-scene image and voice, then the render.
func (w *Worker) handleWorkflow(ctx context.Context, task *queue.Task) error {
	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if err := w.analyze(ctx, job); err != nil {
		return err
	}
	if err := w.segment(ctx, job); err != nil {
		return err
	}
	if err := w.generateAssets(ctx, job); err != nil {
		return err
	}

	var opts models.RenderOptions
	if task.Options != nil {
		opts = *task.Options
	}
	return w.render(ctx, job, opts)
}

// setStatus moves the job along; the error is returned since a job we cannot
// update is a job nobody can follow.
func (w *Worker) setStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, progress int) error {
	if err := w.store.UpdateJobStatus(ctx, jobID, status); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if err := w.store.UpdateJobProgress(ctx, jobID, progress); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

var errNoScenes = errors.New("job has no scenes")
