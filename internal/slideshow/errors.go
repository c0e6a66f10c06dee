package slideshow

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned for bad run options or an empty scene list.
var ErrInvalidOptions = errors.New("invalid run options")

// MissingAssetError means a scene has no usable image.
type MissingAssetError struct {
	SceneIndex int
	Path       string
}

func (e *MissingAssetError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("scene %d: image is missing", e.SceneIndex)
	}
	return fmt.Sprintf("scene %d: image %s is not readable", e.SceneIndex, e.Path)
}

// ProbeError records a failed duration probe. It is logged and recovered with
// DefaultSceneDuration, never returned from a run.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ClipBuildError means encoding the clip for one scene failed.
type ClipBuildError struct {
	SceneIndex int
	Err        error
}

func (e *ClipBuildError) Error() string {
	return fmt.Sprintf("scene %d: clip build failed: %v", e.SceneIndex, e.Err)
}

func (e *ClipBuildError) Unwrap() error { return e.Err }

// MergeError means joining the scene clips (or mixing music into them) failed.
type MergeError struct {
	Stage string
	Err   error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge (%s) failed: %v", e.Stage, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// TransitionError means building or encoding the cross-fade graph failed.
type TransitionError struct {
	Err error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition merge failed: %v", e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// CaptionError means burning captions into the merged video failed.
type CaptionError struct {
	Err error
}

func (e *CaptionError) Error() string {
	return fmt.Sprintf("caption burn-in failed: %v", e.Err)
}

func (e *CaptionError) Unwrap() error { return e.Err }
