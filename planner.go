// Package roiplanner runs a next-best-view planner for fruit inspection on a
// Viam robot: it fuses camera scans into a voxel workspace, picks viewpoints
// and drives evaluation episodes.
package roiplanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	gtloader "github.com/biotinker/roiplanner/gt_loader"
	"github.com/biotinker/roiplanner/internal/config"
	"github.com/biotinker/roiplanner/octomap"
	roidetect "github.com/biotinker/roiplanner/roi_detect"
	roieval "github.com/biotinker/roiplanner/roi_eval"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
)

// mmPerMeter converts rdk millimeters to workspace meters.
const mmPerMeter = 1000.0

// sceneDrawer publishes planner state to a visualizer.
type sceneDrawer interface {
	viewplanner.Visualizer
	DrawClusters(clusters []roieval.Cluster, resolution float64) error
	Clear() error
}

// Planner owns the planner state of one run: workspace, planner context,
// decision engine, evaluator and optional ground truth.
type Planner struct {
	cfg    *config.Config
	logger logging.Logger
	runID  string
	clk    clock.Clock
	hw     Hardware

	ws         *octomap.Workspace
	pc         *viewplanner.PlannerContext
	engine     *viewplanner.Engine
	evaluator  *roieval.Evaluator
	gt         *gtloader.Store
	classifier *roidetect.Classifier
	viz        sceneDrawer
	recorder   *viewplanner.Recorder

	rngMu sync.Mutex
	rng   *rand.Rand

	scans        atomic.Int64
	drawnUpdates atomic.Uint64
}

// NewPlanner builds a planner from cfg. hw may be nil for an offline planner
// that evaluates maps without moving anything. When the config names a
// scenario with ground truth, the ground-truth snapshot is built here.
func NewPlanner(ctx context.Context, cfg *config.Config, hw Hardware, clk clock.Clock, logger logging.Logger) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if hw == nil {
		hw = offlineHardware{}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	pc, err := viewplanner.NewPlannerContext(cfg.Planner, logger.Sublogger("context"))
	if err != nil {
		return nil, err
	}
	p := &Planner{
		cfg:        cfg,
		logger:     logger,
		runID:      uuid.NewString(),
		clk:        clk,
		hw:         hw,
		ws:         octomap.NewWorkspace(cfg.Resolution),
		pc:         pc,
		classifier: roidetect.NewClassifier(&cfg.Detection),
		viz:        newVisualizer(),
		//nolint:gosec
		rng: rand.New(rand.NewSource(cfg.Evaluation.Seed)),
	}

	if cfg.Evaluation.Scenario != "" && cfg.Evaluation.GroundTruthDir != "" {
		scenario, err := gtloader.LoadScenario(cfg.Evaluation.Scenario)
		if err != nil {
			return nil, err
		}
		indexer := gtloader.NewIndexer(gtloader.FileSource{Dir: cfg.Evaluation.GroundTruthDir}, cfg.Resolution, logger.Sublogger("gt"))
		p.gt = gtloader.NewStore(indexer)
		if _, err := p.gt.Rebuild(ctx, scenario); err != nil {
			return nil, fmt.Errorf("build ground truth: %w", err)
		}
	}

	rec, err := viewplanner.OpenRecorder(filepath.Join(cfg.OutputDir, p.runID+"_viewpoints.jsonl"))
	if err != nil {
		return nil, err
	}
	p.recorder = rec

	lo, hi := cfg.Bounds()
	ec := viewplanner.DefaultEngineConfig()
	ec.Camera = cfg.Camera
	ec.ViewDistance = cfg.ViewDistance
	ec.ExecutionTimeout = cfg.ExecutionTimeout
	ec.Seed = cfg.Evaluation.Seed
	ec.Bounds = viewplanner.Bounds{Min: lo, Max: hi}
	p.engine = viewplanner.NewEngine(ec, pc, p.ws, hw, hw, p.viz, rec, clk, logger.Sublogger("engine"))

	ecfg := roieval.DefaultConfig()
	ecfg.SampleInterval = cfg.Evaluation.SampleInterval
	ecfg.Neighborhood = cfg.Planner.ClusterNeighborhood
	ecfg.MinClusterSize = cfg.Evaluation.MinClusterSize
	ecfg.MaxMatchDistance = cfg.Evaluation.MaxMatchDistance
	ecfg.OutputDir = cfg.OutputDir
	ecfg.RunID = p.runID
	var gt roieval.GroundTruth
	if p.gt != nil {
		gt = p.gt
	}
	//nolint:gosec
	evalRng := rand.New(rand.NewSource(cfg.Evaluation.Seed + 1))
	p.evaluator = roieval.NewEvaluator(ecfg, episodeDriver{p}, gt, clk, evalRng, logger.Sublogger("eval"))

	logger.Infof("Planner run %s: resolution %.3fm, mode %s, ground truth %v", p.runID, cfg.Resolution, pc.Mode(), p.gt != nil)
	return p, nil
}

// RunID identifies this planner run in output file names.
func (p *Planner) RunID() string { return p.runID }

// Workspace returns the live voxel workspace.
func (p *Planner) Workspace() *octomap.Workspace { return p.ws }

// Context returns the planner context.
func (p *Planner) Context() *viewplanner.PlannerContext { return p.pc }

// Evaluator returns the episode evaluator.
func (p *Planner) Evaluator() *roieval.Evaluator { return p.evaluator }

// GroundTruth returns the current ground-truth snapshot, or nil.
func (p *Planner) GroundTruth() *gtloader.Snapshot {
	if p.gt == nil {
		return nil
	}
	return p.gt.Snapshot()
}

// Close stops evaluation and closes the output files.
func (p *Planner) Close(ctx context.Context) error {
	return multierr.Combine(p.evaluator.Close(ctx), p.recorder.Close())
}

func (p *Planner) initialJoints() []referenceframe.Input {
	if len(p.cfg.InitialJoints) == 0 {
		return nil
	}
	joints := make([]referenceframe.Input, len(p.cfg.InitialJoints))
	for i, v := range p.cfg.InitialJoints {
		joints[i] = referenceframe.Input(v)
	}
	return joints
}

// resetPlanner idles the planner, clears the workspace and returns the arm to
// its initial configuration.
func (p *Planner) resetPlanner(ctx context.Context, async bool) error {
	if err := p.pc.SetMode(viewplanner.Idle); err != nil {
		return err
	}
	p.engine.Reset()
	p.resetOctomap()
	joints := p.initialJoints()
	if joints == nil {
		return ErrNoInitialJoints
	}
	return p.engine.MoveToState(ctx, joints, async, false)
}

func (p *Planner) resetOctomap() {
	p.ws.Reset()
	p.drawnUpdates.Store(0)
	if p.pc.Settings().PublishClusterVisualization && p.viz != nil {
		if err := p.viz.Clear(); err != nil {
			p.logger.Debugf("Failed to clear visualization: %v", err)
		}
	}
	p.logger.Info("Workspace cleared")
}

// episodeDriver lets the evaluator drive the planner.
type episodeDriver struct {
	p *Planner
}

func (d episodeDriver) ResetEpisode(ctx context.Context) error {
	err := d.p.resetPlanner(ctx, false)
	if errors.Is(err, ErrNoInitialJoints) {
		return nil
	}
	return err
}

func (d episodeDriver) Activate(context.Context) error {
	return d.p.pc.SetMode(d.p.cfg.Evaluation.ActivateMode)
}

func (d episodeDriver) Deactivate(context.Context) error {
	return d.p.pc.SetMode(viewplanner.Idle)
}

func (d episodeDriver) ViewpointCount() int {
	return d.p.engine.ViewpointCount()
}

func (d episodeDriver) ROIKeys() []octomap.Key {
	return d.p.ws.ROIKeys()
}
