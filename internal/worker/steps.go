package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/slideshow"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Job progress checkpoints, in percent.
const (
	progressAnalyzing  = 5
	progressAnalyzed   = 15
	progressSegmenting = 20
	progressSegmented  = 30
	progressAssets     = 35
	progressImages     = 55
	progressAudio      = 75
	progressRendering  = 80
)

// renderProgress maps pipeline states onto the tail of the job progress bar.
var renderProgress = map[slideshow.State]int{
	slideshow.StateProbingDurations: 82,
	slideshow.StateBuildingClips:    85,
	slideshow.StateMerging:          92,
	slideshow.StateCaptioning:       96,
}

func (w *Worker) analyze(ctx context.Context, job *models.Job) error {
	if err := w.setStatus(ctx, job.ID, models.JobStatusAnalyzing, progressAnalyzing); err != nil {
		return err
	}

	var analysis *models.Analysis
	if w.analyzer == nil {
		log.Warn().Str("job", job.ID.String()).Msg("no script analyzer configured, continuing without characters")
		analysis = &models.Analysis{Characters: []models.Character{}, Setting: models.JSONB{}, Narrative: models.JSONB{}}
	} else {
		var err error
		analysis, err = w.analyzer.AnalyzeScript(ctx, job.Script)
		if err != nil {
			return fmt.Errorf("failed to analyze script: %w", err)
		}
	}

	if err := w.store.SetJobAnalysis(ctx, job.ID, analysis); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	job.Analysis = analysis
	return w.setStatus(ctx, job.ID, models.JobStatusAnalyzed, progressAnalyzed)
}

func (w *Worker) segment(ctx context.Context, job *models.Job) error {
	if err := w.setStatus(ctx, job.ID, models.JobStatusSegmenting, progressSegmenting); err != nil {
		return err
	}

	scenes := w.segmenter.Segment(ctx, job.Script, job.Analysis)
	if len(scenes) == 0 {
		return fmt.Errorf("script produced no scenes")
	}

	if err := w.store.SetJobScenes(ctx, job.ID, scenes); err != nil {
		return fmt.Errorf("failed to save scenes: %w", err)
	}
	job.Scenes = scenes
	log.Info().Str("job", job.ID.String()).Int("scenes", len(scenes)).Msg("script segmented")
	return w.setStatus(ctx, job.ID, models.JobStatusSegmented, progressSegmented)
}

// generateImages renders scene pictures one at a time in index order.
func (w *Worker) generateImages(ctx context.Context, job *models.Job) error {
	if len(job.Scenes) == 0 {
		return errNoScenes
	}
	if err := w.setStatus(ctx, job.ID, models.JobStatusGeneratingImages, progressAssets); err != nil {
		return err
	}

	for i := range job.Scenes {
		img, err := w.images.GenerateSceneImage(ctx, job.ID, job.Scenes[i], job.Analysis)
		if err != nil {
			return fmt.Errorf("scene %d image: %w", job.Scenes[i].Index, err)
		}
		applyImage(&job.Scenes[i], img)
		w.stepProgress(ctx, job, i, progressAssets, progressImages)
	}

	if err := w.store.SetJobScenes(ctx, job.ID, job.Scenes); err != nil {
		return fmt.Errorf("failed to save scenes: %w", err)
	}
	return w.setStatus(ctx, job.ID, models.JobStatusImagesReady, progressImages)
}

// generateAudio voices scenes one at a time in index order.
func (w *Worker) generateAudio(ctx context.Context, job *models.Job) error {
	if len(job.Scenes) == 0 {
		return errNoScenes
	}
	if err := w.setStatus(ctx, job.ID, models.JobStatusGeneratingAudio, progressImages); err != nil {
		return err
	}

	for i := range job.Scenes {
		audio, err := w.voices.GenerateSceneAudio(ctx, job.ID, job.Scenes[i], job.Analysis)
		if err != nil {
			return fmt.Errorf("scene %d audio: %w", job.Scenes[i].Index, err)
		}
		applyAudio(&job.Scenes[i], audio)
		w.stepProgress(ctx, job, i, progressImages, progressAudio)
	}

	if err := w.store.SetJobScenes(ctx, job.ID, job.Scenes); err != nil {
		return fmt.Errorf("failed to save scenes: %w", err)
	}
	return w.setStatus(ctx, job.ID, models.JobStatusAudioReady, progressAudio)
}

// generateAssets walks scenes in index order; within a scene the picture and
// the narration are produced concurrently.
func (w *Worker) generateAssets(ctx context.Context, job *models.Job) error {
	if len(job.Scenes) == 0 {
		return errNoScenes
	}
	if err := w.setStatus(ctx, job.ID, models.JobStatusGeneratingImages, progressAssets); err != nil {
		return err
	}

	for i := range job.Scenes {
		scene := job.Scenes[i]
		var img *services.GeneratedImage
		var audio *services.GeneratedAudio

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			img, err = w.images.GenerateSceneImage(gctx, job.ID, scene, job.Analysis)
			if err != nil {
				return fmt.Errorf("scene %d image: %w", scene.Index, err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			audio, err = w.voices.GenerateSceneAudio(gctx, job.ID, scene, job.Analysis)
			if err != nil {
				return fmt.Errorf("scene %d audio: %w", scene.Index, err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		applyImage(&job.Scenes[i], img)
		applyAudio(&job.Scenes[i], audio)
		w.stepProgress(ctx, job, i, progressAssets, progressAudio)
	}

	if err := w.store.SetJobScenes(ctx, job.ID, job.Scenes); err != nil {
		return fmt.Errorf("failed to save scenes: %w", err)
	}
	return w.setStatus(ctx, job.ID, models.JobStatusAudioReady, progressAudio)
}

func (w *Worker) stepProgress(ctx context.Context, job *models.Job, done, from, to int) {
	p := from + (to-from)*(done+1)/len(job.Scenes)
	if err := w.store.UpdateJobProgress(ctx, job.ID, p); err != nil {
		log.Warn().Err(err).Str("job", job.ID.String()).Msg("failed to update progress")
	}
}

func applyImage(scene *models.Scene, img *services.GeneratedImage) {
	scene.ImagePath = img.Path
	scene.ImageURL = img.URL
}

func applyAudio(scene *models.Scene, audio *services.GeneratedAudio) {
	if audio == nil {
		scene.AudioPath, scene.AudioURL = "", ""
		return
	}
	scene.AudioPath = audio.Path
	scene.AudioURL = audio.URL
}

func (w *Worker) render(ctx context.Context, job *models.Job, opts models.RenderOptions) error {
	if len(job.Scenes) == 0 {
		return errNoScenes
	}
	if err := w.setStatus(ctx, job.ID, models.JobStatusRendering, progressRendering); err != nil {
		return err
	}

	runOpts := RunOptions(opts, w.backgroundMusicPath)
	runOpts.OnStateChange = func(s slideshow.State) {
		if p, ok := renderProgress[s]; ok {
			if err := w.store.UpdateJobProgress(ctx, job.ID, p); err != nil {
				log.Warn().Err(err).Str("job", job.ID.String()).Msg("failed to update progress")
			}
		}
	}

	scenes := SlideshowScenes(job.Scenes)
	final, err := w.renderer.Run(ctx, scenes, runOpts)

	var transitionErr *slideshow.TransitionError
	if errors.As(err, &transitionErr) && runOpts.UseTransitions {
		log.Warn().Err(err).Str("job", job.ID.String()).Msg("transition merge failed, rendering without transitions")
		runOpts.UseTransitions = false
		final, err = w.renderer.Run(ctx, scenes, runOpts)
	}
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	// Keep the resolved durations for the client timeline.
	if len(final.Scenes) == len(job.Scenes) {
		for i := range job.Scenes {
			job.Scenes[i].Duration = final.Scenes[i].Duration
		}
		if err := w.store.SetJobScenes(ctx, job.ID, job.Scenes); err != nil {
			log.Warn().Err(err).Str("job", job.ID.String()).Msg("failed to save resolved durations")
		}
	}

	result := db.JobResult{FinalVideoURL: final.URL, Duration: final.Duration}
	if w.publisher != nil {
		err := w.uploadWithLimit(ctx, job.ID.String(), func() error {
			url, err := w.publisher.PublishVideo(ctx, job.ID, final.Path)
			result.PublicVideoURL = url
			return err
		})
		if err != nil {
			// The local copy is still served from /output/final.
			log.Warn().Err(err).Str("job", job.ID.String()).Msg("failed to publish final video")
		}
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	log.Info().Str("job", job.ID.String()).Str("url", final.URL).Float64("duration", final.Duration).Str("strategy", final.Strategy).Msg("video ready")
	return nil
}

// RunOptions converts request options for the renderer. defaultMusic is used
// when the request names no music of its own.
func RunOptions(opts models.RenderOptions, defaultMusic string) slideshow.RunOptions {
	music := opts.BackgroundMusic
	if music == "" {
		music = defaultMusic
	}
	return slideshow.RunOptions{
		Transition:          slideshow.TransitionKind(opts.Transition),
		TransitionDuration:  opts.TransitionDuration,
		BackgroundMusicPath: music,
		MusicVolume:         opts.MusicVolume,
		UseTransitions:      opts.UseTransitions,
		CrossfadeAudio:      opts.CrossfadeAudio,
	}
}

// SlideshowScenes maps stored scenes to renderer input, keeping order.
func SlideshowScenes(scenes []models.Scene) []slideshow.Scene {
	out := make([]slideshow.Scene, len(scenes))
	for i, s := range scenes {
		out[i] = slideshow.Scene{
			Index:       s.Index,
			Description: s.Description,
			Dialogue:    s.Dialogue,
			ImagePath:   s.ImagePath,
			AudioPath:   s.AudioPath,
		}
	}
	return out
}
