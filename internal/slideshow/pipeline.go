package slideshow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Merge strategies reported on FinalVideo.
const (
	StrategyConcat      = "concat"
	StrategyTransitions = "transitions"
)

// Config holds the pipeline's filesystem layout and stage timeouts.
type Config struct {
	TempDir   string
	OutputDir string // final videos go to OutputDir/final
	// URLPrefix is the public path final videos are served under.
	URLPrefix     string
	ProbeTimeout  time.Duration
	EncodeTimeout time.Duration
	CaptionStyle  CaptionStyle
}

// Pipeline turns scenes into one published video. It keeps no per-run state,
// so one Pipeline may serve concurrent runs.
type Pipeline struct {
	transcoder Transcoder
	cfg        Config
	finalDir   string
}

// New creates a pipeline, creating the temp and output directories.
func New(t Transcoder, cfg Config) (*Pipeline, error) {
	if t == nil {
		return nil, errors.New("slideshow: transcoder is required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "storyreel")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/output/final"
	}
	if cfg.CaptionStyle.FontSize == 0 {
		fontFile := cfg.CaptionStyle.FontFile
		cfg.CaptionStyle = DefaultCaptionStyle()
		cfg.CaptionStyle.FontFile = fontFile
	}

	finalDir := filepath.Join(cfg.OutputDir, "final")
	for _, dir := range []string{cfg.TempDir, finalDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &Pipeline{transcoder: t, cfg: cfg, finalDir: finalDir}, nil
}

// Run executes the full pipeline for scenes in playback order. On failure no
// final file is left behind and every intermediate file is removed.
func (p *Pipeline) Run(ctx context.Context, scenes []Scene, opts RunOptions) (*FinalVideo, error) {
	r := p.newRun(opts.OnStateChange)
	defer r.cleanup()

	video, err := r.execute(ctx, scenes, opts)
	if err != nil {
		r.sm.enter(StateFailed)
		r.logger.Error().Err(err).Str("state", string(StateFailed)).Msg("slideshow run failed")
		return nil, err
	}
	return video, nil
}

// run is the state of one pipeline invocation.
type run struct {
	p      *Pipeline
	ns     string
	sm     *stateMachine
	temps  []string
	logger zerolog.Logger
}

func (p *Pipeline) newRun(observer func(State)) *run {
	ns := fmt.Sprintf("run_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
	return &run{
		p:      p,
		ns:     ns,
		sm:     newStateMachine(observer),
		logger: log.With().Str("run", ns).Logger(),
	}
}

// tempPath reserves a namespaced temp file and tracks it for cleanup.
func (r *run) tempPath(name string) string {
	path := filepath.Join(r.p.cfg.TempDir, r.ns+"_"+name)
	r.temps = append(r.temps, path)
	return path
}

func (r *run) cleanup() {
	for _, path := range r.temps {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Err(err).Str("path", path).Msg("temp file cleanup failed")
		}
	}
	r.temps = nil
}

// encode runs one transcode; callers bound ctx with stageContext.
func (r *run) encode(ctx context.Context, args []string) error {
	return r.p.transcoder.Transcode(ctx, args)
}

func (r *run) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.p.cfg.EncodeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.p.cfg.EncodeTimeout)
}

func (r *run) execute(ctx context.Context, scenes []Scene, opts RunOptions) (*FinalVideo, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes", ErrInvalidOptions)
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	for _, s := range scenes {
		if err := checkImage(s.Index, s.ImagePath); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	r.logger.Info().Int("scenes", len(scenes)).Bool("transitions", opts.UseTransitions).Msg("slideshow run started")

	// --- durations ---
	r.sm.enter(StateProbingDurations)
	resolved := r.resolveDurations(ctx, scenes)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// --- clips ---
	r.sm.enter(StateBuildingClips)
	clips := make([]string, len(resolved))
	durations := make([]float64, len(resolved))
	for i, s := range resolved {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clips[i] = r.tempPath(fmt.Sprintf("clip_%03d.mp4", i))
		durations[i] = s.Duration

		encCtx, cancel := r.stageContext(ctx)
		err := BuildClip(encCtx, r.p.transcoder, ClipSpec{
			SceneIndex: s.Index,
			ImagePath:  s.ImagePath,
			AudioPath:  s.AudioPath,
			Duration:   s.Duration,
			OutputPath: clips[i],
		})
		cancel()
		if err != nil {
			return nil, err
		}
		r.logger.Debug().Int("scene", s.Index).Float64("duration", s.Duration).Msg("clip built")
	}

	// --- merge ---
	r.sm.enter(StateMerging)
	useTransitions := opts.UseTransitions && len(clips) > 1

	var (
		final    string
		strategy string
		err      error
	)
	if useTransitions {
		strategy = StrategyTransitions
		final, err = r.mergeWithTransitions(ctx, clips, durations, opts)
	} else {
		strategy = StrategyConcat
		final, err = r.mergeSimple(ctx, clips, resolved, opts)
	}
	if err != nil {
		return nil, err
	}

	published, err := r.publish(final)
	if err != nil {
		return nil, err
	}

	expected := MergedDuration(durations, opts.TransitionDuration, useTransitions)
	r.sm.enter(StateDone)
	r.logger.Info().
		Str("path", published).
		Str("strategy", strategy).
		Float64("duration", expected).
		Dur("elapsed", time.Since(start)).
		Msg("slideshow run complete")

	return &FinalVideo{
		URL:        strings.TrimRight(r.p.cfg.URLPrefix, "/") + "/" + filepath.Base(published),
		Path:       published,
		Duration:   expected,
		SceneCount: len(resolved),
		Scenes:     resolved,
		Strategy:   strategy,
	}, nil
}

// resolveDurations copies scenes and fills in each Duration. A referenced
// audio file that does not exist is dropped and the scene rendered silent.
func (r *run) resolveDurations(ctx context.Context, scenes []Scene) []Scene {
	prober := durationProber{transcoder: r.p.transcoder, timeout: r.p.cfg.ProbeTimeout, logger: r.logger}

	resolved := make([]Scene, len(scenes))
	for i, s := range scenes {
		if s.AudioPath != "" {
			if _, err := os.Stat(s.AudioPath); err != nil {
				r.logger.Warn().Err(err).Int("scene", s.Index).Msg("narration not readable, rendering silent")
				s.AudioPath = ""
			}
		}
		if s.AudioPath == "" {
			s.Duration = ResolveDuration(0, false)
		} else {
			s.Duration = prober.probe(ctx, s.AudioPath)
		}
		resolved[i] = s
	}
	return resolved
}

// mergeSimple concatenates clips, then mixes music and burns captions.
func (r *run) mergeSimple(ctx context.Context, clips []string, scenes []Scene, opts RunOptions) (string, error) {
	merged := r.tempPath("merged.mp4")

	encCtx, cancel := r.stageContext(ctx)
	err := concatClips(encCtx, r.p.transcoder, r.logger, clips, r.tempPath("concat.txt"), merged)
	cancel()
	if err != nil {
		return "", err
	}

	current := merged
	if music := opts.BackgroundMusicPath; music != "" {
		current, err = r.mixMusic(ctx, current, music, opts.MusicLevel())
		if err != nil {
			return "", err
		}
	}

	r.sm.enter(StateCaptioning)
	filters := CaptionFilters(BuildCaptions(scenes), r.p.cfg.CaptionStyle)
	if len(filters) == 0 {
		return current, nil
	}

	captioned := r.tempPath("captioned.mp4")
	encCtx, cancel = r.stageContext(ctx)
	defer cancel()
	if err := r.encode(encCtx, captionArgs(current, captioned, filters)); err != nil {
		return "", &CaptionError{Err: err}
	}
	return captioned, nil
}

// mixMusic lays background music under input. A missing music file is
// skipped; a failed mix falls back to the unmixed video.
func (r *run) mixMusic(ctx context.Context, input, music string, volume float64) (string, error) {
	if _, err := os.Stat(music); err != nil {
		r.logger.Warn().Err(err).Str("music", music).Msg("background music not found, skipping")
		return input, nil
	}

	mixed := r.tempPath("music.mp4")
	encCtx, cancel := r.stageContext(ctx)
	defer cancel()
	if err := r.encode(encCtx, musicMixArgs(input, music, volume, mixed)); err != nil {
		if ctx.Err() != nil {
			return "", &MergeError{Stage: "music", Err: err}
		}
		r.logger.Warn().Err(err).Msg("music mix failed, using unmixed video")
		return input, nil
	}
	return mixed, nil
}

func (r *run) mergeWithTransitions(ctx context.Context, clips []string, durations []float64, opts RunOptions) (string, error) {
	if opts.BackgroundMusicPath != "" {
		r.logger.Warn().Msg("background music is not applied when transitions are used")
	}

	graph, err := BuildTransitionGraph(durations, opts.Transition, opts.TransitionDuration, opts.CrossfadeAudio)
	if err != nil {
		return "", &TransitionError{Err: err}
	}

	out := r.tempPath("transitions.mp4")
	encCtx, cancel := r.stageContext(ctx)
	defer cancel()
	if err := r.encode(encCtx, transitionArgs(clips, graph, out)); err != nil {
		return "", &TransitionError{Err: err}
	}
	return out, nil
}

// publish moves the finished temp file into the final directory so the
// published name only ever refers to a complete file.
func (r *run) publish(src string) (string, error) {
	dst := filepath.Join(r.p.finalDir, "slideshow_"+r.ns+".mp4")
	abs, err := filepath.Abs(dst)
	if err == nil {
		dst = abs
	}

	err = os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("failed to publish final video: %w", err)
	}

	// Temp and output live on different filesystems: copy next to the
	// destination, then rename within it.
	part := r.tempPathIn(r.p.finalDir, ".part")
	if err := copyFile(src, part); err != nil {
		return "", fmt.Errorf("failed to publish final video: %w", err)
	}
	if err := os.Rename(part, dst); err != nil {
		return "", fmt.Errorf("failed to publish final video: %w", err)
	}
	return dst, nil
}

func (r *run) tempPathIn(dir, suffix string) string {
	path := filepath.Join(dir, "."+r.ns+suffix)
	r.temps = append(r.temps, path)
	return path
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
