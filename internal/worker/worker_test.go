package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/slideshow"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type fakeAnalyzer struct {
	analysis *models.Analysis
	err      error
}

func (f *fakeAnalyzer) AnalyzeScript(ctx context.Context, script string) (*models.Analysis, error) {
	return f.analysis, f.err
}

type fakeImager struct{}

func (fakeImager) GenerateSceneImage(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*services.GeneratedImage, error) {
	return &services.GeneratedImage{
		Path: fmt.Sprintf("/data/images/scene_%d.png", scene.Index),
		URL:  fmt.Sprintf("/output/images/scene_%d.png", scene.Index),
	}, nil
}

// fakeVoicer voices every scene except those listed as silent.
type fakeVoicer struct {
	silent map[int]bool
	err    error
}

func (f fakeVoicer) GenerateSceneAudio(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*services.GeneratedAudio, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.silent[scene.Index] {
		return nil, nil
	}
	return &services.GeneratedAudio{
		Path: fmt.Sprintf("/data/audio/scene_%d.mp3", scene.Index),
		URL:  fmt.Sprintf("/output/audio/scene_%d.mp3", scene.Index),
	}, nil
}

type renderCall struct {
	scenes []slideshow.Scene
	opts   slideshow.RunOptions
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	// fail returns the error for a call, or nil to succeed.
	fail func(call int, opts slideshow.RunOptions) error
}

func (f *fakeRenderer) Run(ctx context.Context, scenes []slideshow.Scene, opts slideshow.RunOptions) (*slideshow.FinalVideo, error) {
	f.mu.Lock()
	f.calls = append(f.calls, renderCall{scenes: scenes, opts: opts})
	n := len(f.calls)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(n, opts); err != nil {
			return nil, err
		}
	}

	if opts.OnStateChange != nil {
		for _, s := range []slideshow.State{slideshow.StateProbingDurations, slideshow.StateBuildingClips, slideshow.StateMerging, slideshow.StateDone} {
			opts.OnStateChange(s)
		}
	}

	resolved := make([]slideshow.Scene, len(scenes))
	total := 0.0
	for i, s := range scenes {
		s.Duration = 5
		if i == 0 {
			s.Duration = 4
		}
		resolved[i] = s
		total += s.Duration
	}
	return &slideshow.FinalVideo{
		URL:        "/output/final/slideshow_test.mp4",
		Path:       "/data/output/final/slideshow_test.mp4",
		Duration:   total,
		SceneCount: len(scenes),
		Scenes:     resolved,
		Strategy:   slideshow.StrategyConcat,
	}, nil
}

type fakePublisher struct {
	url string
	err error
}

func (f fakePublisher) PublishVideo(ctx context.Context, jobID uuid.UUID, localPath string) (string, error) {
	return f.url, f.err
}

type fixture struct {
	store    *db.MemoryStore
	broker   *queue.MemoryQueue
	renderer *fakeRenderer
	worker   *Worker
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		store:    db.NewMemoryStore(),
		broker:   queue.NewMemoryQueue(8),
		renderer: &fakeRenderer{},
	}
	deps := Deps{
		Store:  f.store,
		Broker: f.broker,
		Analyzer: &fakeAnalyzer{analysis: &models.Analysis{
			Characters: []models.Character{{ID: 1, Name: "Anna"}, {ID: 2, Name: "Ben"}},
			Setting:    models.JSONB{"location": "the harbour"},
		}},
		Images:              fakeImager{},
		Voices:              fakeVoicer{silent: map[int]bool{1: true}},
		Renderer:            f.renderer,
		BackgroundMusicPath: "/music/default.mp3",
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.worker = New(deps)
	return f
}

func (f *fixture) createJob(t *testing.T, script string, scenes []models.Scene) uuid.UUID {
	t.Helper()
	job := &models.Job{ID: uuid.New(), Script: script, Status: models.JobStatusQueued, Scenes: scenes}
	if err := f.store.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job.ID
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func readyScenes() []models.Scene {
	return []models.Scene{
		{Index: 0, Title: "Scene 1", Description: "Anna waits.", ImagePath: "/img/0.png", AudioPath: "/aud/0.mp3"},
		{Index: 1, Title: "Scene 2", Description: "Ben arrives.", ImagePath: "/img/1.png"},
	}
}

func TestWorkflowRunsEveryStep(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createJob(t, "Anna walks to the harbour.\n\nBen talks to Anna.", nil)

	task := &queue.Task{Type: "workflow", JobID: id, Options: &models.RenderOptions{Transition: "dissolve"}}
	f.worker.process(context.Background(), task, f.worker.handleWorkflow)

	job := f.job(t, id)
	if job.Status != models.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("unexpected final state %s %d (error %v)", job.Status, job.Progress, job.ErrorMessage)
	}
	if job.FinalVideoURL == nil || *job.FinalVideoURL != "/output/final/slideshow_test.mp4" {
		t.Errorf("unexpected final url %v", job.FinalVideoURL)
	}
	if job.VideoDuration == nil || *job.VideoDuration != 9 {
		t.Errorf("unexpected duration %v", job.VideoDuration)
	}
	if job.PublicVideoURL != nil {
		t.Error("no public url expected without a publisher")
	}
	if job.Analysis.Location() != "the harbour" {
		t.Errorf("analysis not stored: %+v", job.Analysis)
	}

	if len(job.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(job.Scenes))
	}
	if job.Scenes[0].ImageURL != "/output/images/scene_0.png" || job.Scenes[0].AudioURL != "/output/audio/scene_0.mp3" {
		t.Errorf("assets not applied to scene 0: %+v", job.Scenes[0])
	}
	if job.Scenes[1].AudioPath != "" {
		t.Errorf("scene 1 should be silent: %+v", job.Scenes[1])
	}
	if job.Scenes[0].Duration != 4 || job.Scenes[1].Duration != 5 {
		t.Errorf("resolved durations not stored: %v %v", job.Scenes[0].Duration, job.Scenes[1].Duration)
	}

	if len(f.renderer.calls) != 1 {
		t.Fatalf("expected 1 render, got %d", len(f.renderer.calls))
	}
	call := f.renderer.calls[0]
	want := []slideshow.Scene{
		{Index: 0, Description: "Anna walks to the harbour.", ImagePath: "/data/images/scene_0.png", AudioPath: "/data/audio/scene_0.mp3"},
		{Index: 1, Description: "Ben talks to Anna.", ImagePath: "/data/images/scene_1.png"},
	}
	if diff := cmp.Diff(want, call.scenes); diff != "" {
		t.Errorf("render input mismatch (-want +got):\n%s", diff)
	}
	if call.opts.Transition != slideshow.TransitionDissolve || call.opts.BackgroundMusicPath != "/music/default.mp3" {
		t.Errorf("unexpected render options %+v", call.opts)
	}
}

func TestRenderFallsBackWithoutTransitions(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.fail = func(call int, opts slideshow.RunOptions) error {
		if opts.UseTransitions {
			return &slideshow.TransitionError{Err: errors.New("xfade: invalid offset")}
		}
		return nil
	}
	id := f.createJob(t, "", readyScenes())

	task := &queue.Task{Type: "render_video", JobID: id, Options: &models.RenderOptions{UseTransitions: true}}
	f.worker.process(context.Background(), task, f.worker.handleRender)

	if job := f.job(t, id); job.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", job.Status, job.ErrorMessage)
	}
	if len(f.renderer.calls) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(f.renderer.calls))
	}
	if !f.renderer.calls[0].opts.UseTransitions || f.renderer.calls[1].opts.UseTransitions {
		t.Error("expected the retry to drop transitions")
	}
}

func TestRenderFailureFailsJob(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.fail = func(int, slideshow.RunOptions) error {
		return &slideshow.MissingAssetError{SceneIndex: 1, Path: "/img/1.png"}
	}
	id := f.createJob(t, "", readyScenes())

	f.worker.process(context.Background(), &queue.Task{Type: "render_video", JobID: id}, f.worker.handleRender)

	job := f.job(t, id)
	if job.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "scene 1") {
		t.Errorf("unexpected error message %v", job.ErrorMessage)
	}
	if len(f.renderer.calls) != 1 {
		t.Errorf("non-transition errors must not be retried, got %d renders", len(f.renderer.calls))
	}
}

func TestRenderPublishes(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Publisher = fakePublisher{url: "https://cdn.example/final.mp4"}
	})
	id := f.createJob(t, "", readyScenes())

	f.worker.process(context.Background(), &queue.Task{Type: "render_video", JobID: id}, f.worker.handleRender)

	job := f.job(t, id)
	if job.PublicVideoURL == nil || *job.PublicVideoURL != "https://cdn.example/final.mp4" {
		t.Errorf("unexpected public url %v", job.PublicVideoURL)
	}
}

func TestRenderPublishFailureKeepsLocalVideo(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Publisher = fakePublisher{err: errors.New("503")}
	})
	id := f.createJob(t, "", readyScenes())

	f.worker.process(context.Background(), &queue.Task{Type: "render_video", JobID: id}, f.worker.handleRender)

	job := f.job(t, id)
	if job.Status != models.JobStatusCompleted || job.PublicVideoURL != nil {
		t.Errorf("expected completed job without public url, got %s %v", job.Status, job.PublicVideoURL)
	}
}

func TestAnalyzeWithoutAnalyzer(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Analyzer = nil })
	id := f.createJob(t, "A quiet morning.", nil)

	f.worker.process(context.Background(), &queue.Task{Type: "analyze_script", JobID: id}, f.worker.handleAnalyze)

	job := f.job(t, id)
	if job.Status != models.JobStatusAnalyzed || job.Progress != progressAnalyzed {
		t.Errorf("unexpected state %s %d", job.Status, job.Progress)
	}
	if job.Analysis == nil || len(job.Analysis.Characters) != 0 {
		t.Errorf("expected empty analysis, got %+v", job.Analysis)
	}
}

func TestAnalyzeErrorFailsJob(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Analyzer = &fakeAnalyzer{err: errors.New("rate limited")} })
	id := f.createJob(t, "A quiet morning.", nil)

	f.worker.process(context.Background(), &queue.Task{Type: "analyze_script", JobID: id}, f.worker.handleAnalyze)

	if job := f.job(t, id); job.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
}

func TestStepsRequireScenes(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createJob(t, "script", nil)

	for name, handler := range map[string]func(context.Context, *queue.Task) error{
		"images": f.worker.handleImages,
		"audio":  f.worker.handleAudio,
		"render": f.worker.handleRender,
	} {
		if err := handler(context.Background(), &queue.Task{JobID: id}); !errors.Is(err, errNoScenes) {
			t.Errorf("%s: expected errNoScenes, got %v", name, err)
		}
	}
}

func TestAudioStepErrorFailsJob(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Voices = fakeVoicer{err: errors.New("disk full")} })
	id := f.createJob(t, "", readyScenes())

	f.worker.process(context.Background(), &queue.Task{Type: "generate_audio", JobID: id}, f.worker.handleAudio)

	if job := f.job(t, id); job.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
}

func TestStartConsumesQueues(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createJob(t, "Anna walks.\n\nBen talks.", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Start(ctx, 1)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := queue.EnqueueSegment(ctx, f.broker, id); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job := f.job(t, id); job.Status == models.JobStatusSegmented {
			if len(job.Scenes) != 2 {
				t.Errorf("expected 2 scenes, got %d", len(job.Scenes))
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("segment task was not processed")
}

func TestRunOptions(t *testing.T) {
	got := RunOptions(models.RenderOptions{
		Transition:         "wipeleft",
		TransitionDuration: 0.8,
		MusicVolume:        slideshow.Volume(0.5),
		UseTransitions:     true,
		CrossfadeAudio:     true,
	}, "/music/default.mp3")

	want := slideshow.RunOptions{
		Transition:          slideshow.TransitionWipeLeft,
		TransitionDuration:  0.8,
		BackgroundMusicPath: "/music/default.mp3",
		MusicVolume:         slideshow.Volume(0.5),
		UseTransitions:      true,
		CrossfadeAudio:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RunOptions mismatch (-want +got):\n%s", diff)
	}

	muted := RunOptions(models.RenderOptions{MusicVolume: slideshow.Volume(0)}, "").WithDefaults()
	if muted.MusicLevel() != 0 {
		t.Errorf("explicit zero volume became %v", muted.MusicLevel())
	}

	if got := RunOptions(models.RenderOptions{BackgroundMusic: "/music/mine.mp3"}, "/music/default.mp3"); got.BackgroundMusicPath != "/music/mine.mp3" {
		t.Errorf("request music should win, got %q", got.BackgroundMusicPath)
	}
}
