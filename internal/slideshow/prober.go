package slideshow

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ResolveDuration maps a probed narration length to a scene duration.
// Probed lengths are floored at MinSceneDuration; a scene without audio, or
// whose probe failed (probed <= 0), gets DefaultSceneDuration.
func ResolveDuration(probed float64, hasAudio bool) float64 {
	if !hasAudio || probed <= 0 || math.IsNaN(probed) || math.IsInf(probed, 0) {
		return DefaultSceneDuration
	}
	return math.Max(MinSceneDuration, probed)
}

// durationProber probes narration files with a per-probe timeout and never
// fails: probe errors are logged and replaced by the default duration.
type durationProber struct {
	transcoder Transcoder
	timeout    time.Duration
	logger     zerolog.Logger
}

func (p durationProber) probe(ctx context.Context, path string) float64 {
	probeCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	d, err := p.transcoder.ProbeDuration(probeCtx, path)
	if err != nil {
		perr := &ProbeError{Path: path, Err: err}
		p.logger.Warn().Err(perr).Float64("fallback", DefaultSceneDuration).Msg("duration probe failed, using default")
		return ResolveDuration(0, true)
	}
	return ResolveDuration(d, true)
}
