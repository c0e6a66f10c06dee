// Package slideshow assembles per-scene stills and narration into a single
// narrated MP4: it resolves scene durations, encodes one clip per scene, merges
// the clips (plain concat or cross-fade transitions), optionally mixes music and
// burns in captions.
package slideshow

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Output is 1080p landscape at 30fps.
const (
	FrameWidth  = 1920
	FrameHeight = 1080
	FrameRate   = 30

	AudioSampleRate = 44100
	AudioBitrate    = "128k"

	// MinSceneDuration is the floor applied to every probed narration length.
	MinSceneDuration = 3.0
	// DefaultSceneDuration is used when a scene has no audio or probing fails.
	DefaultSceneDuration = 5.0

	DefaultTransitionDuration = 0.5
	DefaultMusicVolume        = 0.2
)

// Transcoder is the boundary to the external media engine. Every media
// operation the pipeline performs goes through it.
type Transcoder interface {
	// Transcode runs one encode with a complete ffmpeg argument list.
	Transcode(ctx context.Context, args []string) error
	// ProbeDuration returns a media file's duration in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Scene is one narrative beat rendered as one clip.
type Scene struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	Dialogue    string  `json:"dialogue,omitempty"`
	ImagePath   string  `json:"imagePath"`
	AudioPath   string  `json:"audioPath,omitempty"`
	Duration    float64 `json:"duration,omitempty"` // resolved by the pipeline
}

// CaptionText is the text burned in for the scene: dialogue, then description,
// then a "Scene N" label.
func (s Scene) CaptionText() string {
	if t := strings.TrimSpace(s.Dialogue); t != "" {
		return t
	}
	if t := strings.TrimSpace(s.Description); t != "" {
		return t
	}
	return fmt.Sprintf("Scene %d", s.Index+1)
}

// TransitionKind is an xfade transition name.
type TransitionKind string

const (
	TransitionFade      TransitionKind = "fade"
	TransitionDissolve  TransitionKind = "dissolve"
	TransitionWipeLeft  TransitionKind = "wipeleft"
	TransitionWipeRight TransitionKind = "wiperight"
	TransitionSlideDown TransitionKind = "slidedown"
	TransitionSlideUp   TransitionKind = "slideup"
)

// TransitionKinds lists every supported transition.
var TransitionKinds = []TransitionKind{
	TransitionFade,
	TransitionDissolve,
	TransitionWipeLeft,
	TransitionWipeRight,
	TransitionSlideDown,
	TransitionSlideUp,
}

// Valid reports whether k is a supported transition.
func (k TransitionKind) Valid() bool {
	for _, known := range TransitionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RunOptions configures one pipeline run. Zero values take the defaults.
type RunOptions struct {
	Transition          TransitionKind `json:"transition,omitempty"`
	TransitionDuration  float64        `json:"transitionDuration,omitempty"`
	BackgroundMusicPath string         `json:"backgroundMusic,omitempty"`
	MusicVolume         *float64       `json:"musicVolume,omitempty"` // nil takes the default; 0 mutes
	UseTransitions      bool           `json:"useTransitions"`

	// CrossfadeAudio blends narration across transitions instead of
	// concatenating it, keeping audio aligned with the video cross-fades.
	CrossfadeAudio bool `json:"crossfadeAudio,omitempty"`

	// OnStateChange, when set, is called on every state change of the run.
	OnStateChange func(State) `json:"-"`
}

// DefaultRunOptions returns the options used when none are supplied.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Transition:         TransitionFade,
		TransitionDuration: DefaultTransitionDuration,
		MusicVolume:        Volume(DefaultMusicVolume),
	}
}

// Volume returns a music volume for RunOptions.
func Volume(v float64) *float64 {
	return &v
}

// MusicLevel is the effective music volume.
func (o RunOptions) MusicLevel() float64 {
	if o.MusicVolume == nil {
		return DefaultMusicVolume
	}
	return *o.MusicVolume
}

// WithDefaults fills unset fields with the defaults.
func (o RunOptions) WithDefaults() RunOptions {
	if o.Transition == "" {
		o.Transition = TransitionFade
	}
	if o.TransitionDuration == 0 {
		o.TransitionDuration = DefaultTransitionDuration
	}
	if o.MusicVolume == nil {
		o.MusicVolume = Volume(DefaultMusicVolume)
	}
	return o
}

// Validate checks option ranges. It expects defaults to be applied.
func (o RunOptions) Validate() error {
	if !o.Transition.Valid() {
		return fmt.Errorf("%w: unknown transition %q", ErrInvalidOptions, o.Transition)
	}
	if o.TransitionDuration <= 0 || o.TransitionDuration >= MinSceneDuration {
		return fmt.Errorf("%w: transition duration %.2fs must be in (0, %.0f)", ErrInvalidOptions, o.TransitionDuration, MinSceneDuration)
	}
	if v := o.MusicLevel(); math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: music volume %.2f must be in [0, 1]", ErrInvalidOptions, v)
	}
	return nil
}

// FinalVideo is the published result of a successful run.
type FinalVideo struct {
	URL        string  `json:"url"`  // e.g. /output/final/slideshow_x.mp4
	Path       string  `json:"path"` // absolute path on local disk
	Duration   float64 `json:"duration"`
	SceneCount int     `json:"sceneCount"`
	Scenes     []Scene `json:"scenes"` // inputs with resolved durations
	Strategy   string  `json:"strategy"`
}
