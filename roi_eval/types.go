package roieval

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
)

// EpisodeEndParam selects when an evaluation episode ends.
type EpisodeEndParam int

const (
	// EndMaxTime ends the episode after EpisodeDuration seconds.
	EndMaxTime EpisodeEndParam = iota
	// EndMaxSamples ends the episode after EpisodeDuration executed viewpoints.
	EndMaxSamples
	// EndNoNewROI ends the episode once the ROI key count has not changed for
	// EpisodeDuration seconds.
	EndNoNewROI

	// NumEpisodeEndParams is the number of end conditions.
	NumEpisodeEndParams
)

func (e EpisodeEndParam) String() string {
	switch e {
	case EndMaxTime:
		return "MAX_TIME"
	case EndMaxSamples:
		return "MAX_SAMPLES"
	case EndNoNewROI:
		return "NO_NEW_ROI"
	default:
		return fmt.Sprintf("EpisodeEndParam(%d)", int(e))
	}
}

// ParseEpisodeEndParam converts a raw request value.
func ParseEpisodeEndParam(v int) (EpisodeEndParam, error) {
	if v < 0 || v >= int(NumEpisodeEndParams) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEndCondition, v)
	}
	return EpisodeEndParam(v), nil
}

// EvaluationParameters is one sample of an episode.
type EvaluationParameters struct {
	ElapsedTime      time.Duration
	TotalROIClusters int
	ROIKeyCount      int

	// Ground-truth comparison, filled only when HasGroundTruth.
	HasGroundTruth    bool
	DetectedObjects   int
	TruePositiveKeys  int
	FalsePositiveKeys int
	GroundTruthKeys   int
}

// Request configures an evaluation run.
type Request struct {
	NumEvals     int
	EndCondition EpisodeEndParam
	// EpisodeDuration is seconds for time based conditions, a viewpoint count for EndMaxSamples.
	EpisodeDuration float64
	StartIndex      int
	RandomizePlants bool
	BoundsMin       r3.Vector
	BoundsMax       r3.Vector
	MinDist         float64
}

// Validate checks the request.
func (r Request) Validate() error {
	if r.EndCondition < 0 || r.EndCondition >= NumEpisodeEndParams {
		return fmt.Errorf("%w: %d", ErrInvalidEndCondition, int(r.EndCondition))
	}
	if r.NumEvals < 1 {
		return fmt.Errorf("number of evaluations must be positive, got %d", r.NumEvals)
	}
	if r.EpisodeDuration <= 0 {
		return fmt.Errorf("episode duration must be positive, got %v", r.EpisodeDuration)
	}
	return nil
}
