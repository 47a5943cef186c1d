package roieval

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	gtloader "github.com/biotinker/roiplanner/gt_loader"
	"github.com/biotinker/roiplanner/octomap"
	"go.viam.com/rdk/logging"
)

// Planner is the planner surface an evaluation run drives.
type Planner interface {
	// ResetEpisode clears the workspace and leaves the planner idle.
	ResetEpisode(ctx context.Context) error
	// Activate starts viewpoint sampling.
	Activate(ctx context.Context) error
	// Deactivate returns the planner to idle.
	Deactivate(ctx context.Context) error
	// ViewpointCount is the number of viewpoints executed since the last ResetEpisode.
	ViewpointCount() int
	// ROIKeys returns the current ROI voxels.
	ROIKeys() []octomap.Key
}

// GroundTruth supplies the current ground-truth snapshot and re-places plants.
type GroundTruth interface {
	Snapshot() *gtloader.Snapshot
	Randomize(ctx context.Context, rng *rand.Rand, p gtloader.Placement) (*gtloader.Snapshot, error)
}

// Config holds evaluator parameters.
type Config struct {
	SampleInterval   time.Duration        // Time between samples
	ActivateRetry    time.Duration        // Wait before retrying a failed planner activation
	Neighborhood     octomap.Neighborhood // Connectivity used to count ROI clusters
	MinClusterSize   int                  // Smaller clusters are not counted
	MaxMatchDistance float64              // Max centroid distance in voxels for ground-truth matching
	OutputDir        string               // Directory for results and episode logs
	RunID            string               // Prefix of results file names
}

// DefaultConfig returns an evaluator Config with a one second cadence.
func DefaultConfig() Config {
	return Config{
		SampleInterval:   time.Second,
		ActivateRetry:    time.Second,
		Neighborhood:     octomap.Face6,
		MinClusterSize:   1,
		MaxMatchDistance: 5,
		OutputDir:        ".",
		RunID:            "eval",
	}
}

// Evaluator runs evaluation episodes. It is advanced by Tick from the control
// loop; Start and Stop may be called from other goroutines.
type Evaluator struct {
	cfg     Config
	clock   clock.Clock
	planner Planner
	gt      GroundTruth
	rng     *rand.Rand
	logger  logging.Logger

	mu            sync.Mutex
	running       bool
	req           Request
	episode       int
	activated     bool
	nextActivate  time.Time
	start         time.Time
	lastSample    time.Time
	lastROIChange time.Time
	lastROIKeys   int
	series        []EvaluationParameters
	summaries     []EpisodeSummary
	results       *ResultsLog
	episodes      *EpisodeLog
}

// NewEvaluator returns an idle evaluator. gt may be nil when no ground truth
// is available; samples then carry only cluster and key counts.
func NewEvaluator(cfg Config, planner Planner, gt GroundTruth, clk clock.Clock, rng *rand.Rand, logger logging.Logger) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		clock:   clk,
		planner: planner,
		gt:      gt,
		rng:     rng,
		logger:  logger,
	}
}

// Start begins a new run of req.NumEvals episodes. A run already in progress is stopped first.
func (e *Evaluator) Start(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.logger.Warnf("Evaluator restarted while episode %d was running", e.episode)
		e.stopLocked(ctx)
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if e.episodes == nil {
		episodes, err := OpenEpisodeLog(filepath.Join(e.cfg.OutputDir, "episodes.csv"))
		if err != nil {
			e.logger.Warnf("Episode summaries will not be written: %v", err)
		}
		e.episodes = episodes
	}

	e.req = req
	e.running = true
	e.episode = req.StartIndex
	e.summaries = nil
	e.logger.Infof("Starting evaluator: %d episodes from %d, end condition %s (%v)",
		req.NumEvals, req.StartIndex, req.EndCondition, req.EpisodeDuration)
	e.beginEpisodeLocked(ctx)
	return nil
}

// Stop aborts the current run. The partial episode is not summarized.
func (e *Evaluator) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.stopLocked(ctx)
	}
}

// Running reports whether an evaluation run is in progress.
func (e *Evaluator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Episode returns the current episode index.
func (e *Evaluator) Episode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.episode
}

// Series returns a copy of the current episode's samples.
func (e *Evaluator) Series() []EvaluationParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EvaluationParameters, len(e.series))
	copy(out, e.series)
	return out
}

// Summaries returns the summaries of episodes finished in the current run.
func (e *Evaluator) Summaries() []EpisodeSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EpisodeSummary, len(e.summaries))
	copy(out, e.summaries)
	return out
}

// Sample computes evaluation parameters for the current ROI state without recording them.
func (e *Evaluator) Sample() EvaluationParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	var elapsed time.Duration
	if e.running && e.activated {
		elapsed = e.clock.Since(e.start)
	}
	return e.sampleLocked(elapsed)
}

// Tick advances the run: it retries planner activation, records a sample
// every SampleInterval and moves to the next episode when the end condition holds.
func (e *Evaluator) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	now := e.clock.Now()

	if !e.activated {
		if now.Before(e.nextActivate) {
			return nil
		}
		if err := e.planner.Activate(ctx); err != nil {
			e.nextActivate = now.Add(e.cfg.ActivateRetry)
			return fmt.Errorf("activate planner for episode %d: %w", e.episode, err)
		}
		e.activated = true
		e.start = now
		e.lastSample = now
		e.lastROIChange = now
		e.lastROIKeys = len(e.planner.ROIKeys())
		e.logger.Infof("Episode %d started", e.episode)
		return nil
	}

	if now.Sub(e.lastSample) < e.cfg.SampleInterval {
		return nil
	}
	e.lastSample = now

	p := e.sampleLocked(now.Sub(e.start))
	e.series = append(e.series, p)
	if e.results != nil {
		if err := e.results.Append(p); err != nil {
			e.logger.Warnf("Failed to write results row: %v", err)
		}
	}
	if p.ROIKeyCount != e.lastROIKeys {
		e.lastROIKeys = p.ROIKeyCount
		e.lastROIChange = now
	}
	e.logger.Debugf("Episode %d t=%.1fs clusters=%d keys=%d", e.episode, p.ElapsedTime.Seconds(), p.TotalROIClusters, p.ROIKeyCount)

	if e.episodeDoneLocked(now) {
		e.finishEpisodeLocked(ctx)
	}
	return nil
}

// Close stops any run and closes the log files.
func (e *Evaluator) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.stopLocked(ctx)
	}
	var err error
	if e.results != nil {
		err = multierr.Append(err, e.results.Close())
		e.results = nil
	}
	if e.episodes != nil {
		err = multierr.Append(err, e.episodes.Close())
		e.episodes = nil
	}
	return err
}

func (e *Evaluator) episodeDoneLocked(now time.Time) bool {
	switch e.req.EndCondition {
	case EndMaxTime:
		return now.Sub(e.start).Seconds() >= e.req.EpisodeDuration
	case EndMaxSamples:
		return float64(e.planner.ViewpointCount()) >= e.req.EpisodeDuration
	case EndNoNewROI:
		return now.Sub(e.lastROIChange).Seconds() >= e.req.EpisodeDuration
	default:
		return true
	}
}

func (e *Evaluator) sampleLocked(elapsed time.Duration) EvaluationParameters {
	keys := e.planner.ROIKeys()
	sum, clusters := Summarize(keys, e.cfg.Neighborhood, e.cfg.MinClusterSize)
	p := EvaluationParameters{
		ElapsedTime:      elapsed,
		TotalROIClusters: sum.Clusters,
		ROIKeyCount:      sum.Keys,
	}
	if snap := e.snapshot(); snap != nil {
		d := Score(keys, clusters, snap, e.cfg.MaxMatchDistance)
		p.HasGroundTruth = true
		p.DetectedObjects = d.Objects
		p.TruePositiveKeys = d.TruePositives
		p.FalsePositiveKeys = d.FalsePositives
		p.GroundTruthKeys = d.GroundTruth
	}
	return p
}

func (e *Evaluator) snapshot() *gtloader.Snapshot {
	if e.gt == nil {
		return nil
	}
	return e.gt.Snapshot()
}

func (e *Evaluator) beginEpisodeLocked(ctx context.Context) {
	e.series = nil
	e.activated = false
	e.nextActivate = e.clock.Now()

	if err := e.planner.ResetEpisode(ctx); err != nil {
		e.logger.Warnf("Episode %d: planner reset failed: %v", e.episode, err)
	}
	if e.req.RandomizePlants && e.gt != nil {
		placement := gtloader.Placement{Min: e.req.BoundsMin, Max: e.req.BoundsMax, MinDist: e.req.MinDist}
		if _, err := e.gt.Randomize(ctx, e.rng, placement); err != nil {
			e.logger.Warnf("Episode %d: keeping previous plant placement: %v", e.episode, err)
		}
	}

	if e.results != nil {
		if err := e.results.Close(); err != nil {
			e.logger.Warnf("Failed to close results log: %v", err)
		}
		e.results = nil
	}
	path := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("%s_eval_%d.csv", e.cfg.RunID, e.episode))
	results, err := OpenResultsLog(path, e.snapshot() != nil)
	if err != nil {
		e.logger.Warnf("Episode %d: results will not be written: %v", e.episode, err)
		return
	}
	e.results = results
}

func (e *Evaluator) finishEpisodeLocked(ctx context.Context) {
	summary := SummarizeEpisode(e.episode, e.series)
	e.summaries = append(e.summaries, summary)
	if e.episodes != nil {
		if err := e.episodes.Append(summary); err != nil {
			e.logger.Warnf("Failed to write episode summary: %v", err)
		}
	}
	e.logger.Infof("Episode %d finished: %d samples, mean %.1f clusters, max %.0f, %d ROI keys",
		summary.Episode, summary.Samples, summary.MeanClusters, summary.MaxClusters, summary.FinalROIKeys)

	if err := e.planner.Deactivate(ctx); err != nil {
		e.logger.Warnf("Episode %d: planner deactivate failed: %v", e.episode, err)
	}
	e.episode++
	if e.episode >= e.req.StartIndex+e.req.NumEvals {
		e.logger.Infof("Evaluator finished %d episodes", e.req.NumEvals)
		e.stopLocked(ctx)
		return
	}
	e.beginEpisodeLocked(ctx)
}

func (e *Evaluator) stopLocked(ctx context.Context) {
	e.running = false
	e.activated = false
	if e.results != nil {
		if err := e.results.Close(); err != nil {
			e.logger.Warnf("Failed to close results log: %v", err)
		}
		e.results = nil
	}
	if err := e.planner.Deactivate(ctx); err != nil {
		e.logger.Warnf("Planner deactivate failed: %v", err)
	}
}
