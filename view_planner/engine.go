package viewplanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/floats"

	"github.com/biotinker/roiplanner/octomap"
)

// Executor moves the sensor. Implementations block until the motion finishes
// unless async is set.
type Executor interface {
	MoveToPose(ctx context.Context, pose spatialmath.Pose, async, requireConfirmation bool) error
	MoveToState(ctx context.Context, joints []referenceframe.Input, async, requireConfirmation bool) error
}

// Reachability filters candidates the robot cannot reach.
type Reachability interface {
	Reachable(ctx context.Context, pose spatialmath.Pose) (bool, error)
}

// Visualizer draws the state of a sampling pass. chosen is -1 when nothing won.
type Visualizer interface {
	DrawPlanningState(candidates []Candidate, chosen int) error
}

// EngineConfig holds the fixed geometry of the engine.
type EngineConfig struct {
	Camera           CameraModel
	ViewDistance     float64
	ExecutionTimeout time.Duration
	M2SStep          float64
	Seed             int64

	// Bounds limit camera positions. An empty box disables the check.
	Bounds Bounds
}

// DefaultEngineConfig returns an EngineConfig for a table-top workspace.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Camera:           DefaultCameraModel(),
		ViewDistance:     0.35,
		ExecutionTimeout: 60 * time.Second,
		M2SStep:          0.02,
		Seed:             1,
	}
}

// Result describes one engine step.
type Result struct {
	Mode     PlannerMode
	Sampled  int
	Executed bool
	Chosen   Candidate

	// Waiting is set when the step was skipped for a pending scan.
	Waiting bool
}

// Engine runs the viewpoint decision loop against a workspace.
type Engine struct {
	cfg    EngineConfig
	pc     *PlannerContext
	ws     *octomap.Workspace
	exec   Executor
	reach  Reachability
	viz    Visualizer
	rec    *Recorder
	clk    clock.Clock
	logger logging.Logger

	// step serializes Step calls.
	step       sync.Mutex
	rng        *rand.Rand
	mu         sync.Mutex
	viewpoints int
	last       *Candidate
	hasMoved   bool
}

// NewEngine returns an engine. reach, viz and rec may be nil.
func NewEngine(
	cfg EngineConfig,
	pc *PlannerContext,
	ws *octomap.Workspace,
	exec Executor,
	reach Reachability,
	viz Visualizer,
	rec *Recorder,
	clk clock.Clock,
	logger logging.Logger,
) *Engine {
	return &Engine{
		cfg:    cfg,
		pc:     pc,
		ws:     ws,
		exec:   exec,
		reach:  reach,
		viz:    viz,
		rec:    rec,
		clk:    clk,
		logger: logger,
		//nolint:gosec
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Context returns the planner context driving the engine.
func (e *Engine) Context() *PlannerContext {
	return e.pc
}

// ViewpointCount returns the number of executed viewpoints since the last reset.
func (e *Engine) ViewpointCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewpoints
}

// Reset forgets the executed viewpoints and aborts any running pass.
func (e *Engine) Reset() {
	e.pc.Cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewpoints = 0
	e.last = nil
	e.hasMoved = false
}

// LastViewpoint returns the last executed viewpoint.
func (e *Engine) LastViewpoint() (Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Candidate{}, false
	}
	return *e.last, true
}

// Step runs one control tick. ErrNoViableViewpoint and ErrPassAborted are
// recoverable; the caller retries on the next tick.
func (e *Engine) Step(ctx context.Context) (Result, error) {
	e.step.Lock()
	defer e.step.Unlock()

	s := e.pc.Settings()
	gen := e.pc.Generation()
	res := Result{Mode: s.Mode}
	if !s.Mode.Samples() {
		return res, nil
	}

	e.mu.Lock()
	moved := e.hasMoved
	e.mu.Unlock()
	if s.WaitForScan && moved && !e.ws.ScanSinceMove() {
		res.Waiting = true
		return res, nil
	}

	if s.Mode == MoveToSee {
		return e.moveToSee(ctx, s, gen)
	}
	if s.MoveToSeeExclusive {
		if _, ok := e.LastViewpoint(); ok && e.numROI() > 0 {
			e.pc.enterMoveToSee()
			return e.moveToSee(ctx, e.pc.Settings(), e.pc.Generation())
		}
	}
	return e.samplePass(ctx, s, gen)
}

func (e *Engine) numROI() int {
	n := 0
	e.ws.Read(func(r octomap.Reader) { n = r.NumROI() })
	return n
}

func (e *Engine) samplerConfig(s Settings) samplerConfig {
	return samplerConfig{
		bounds:       e.cfg.Bounds,
		viewDistance: e.cfg.ViewDistance,
		nb:           s.ClusterNeighborhood,
		minCluster:   s.MinimumClusterSize,
	}
}

// samplePass draws and scores candidates under one read lock, then tries them
// best first.
func (e *Engine) samplePass(ctx context.Context, s Settings, gen uint64) (Result, error) {
	res := Result{Mode: s.Mode}
	var cands []Candidate
	var aborted bool
	e.ws.Read(func(r octomap.Reader) {
		roi := s.Mode == SampleROI || (s.Mode == SampleAutomatic && r.NumROI() > 0)
		cfg := e.samplerConfig(s)
		util := s.ExplUtil
		if roi {
			util = s.ROIUtil
			cands = viewsAround(r, sampleROITargets(r, s.AutoROISampling, cfg), s.ROIMaxSamples, cfg)
		} else {
			targets := sampleExplorationTargets(r, s.AutoExplSampling, cfg, s.ExplMaxSamples, e.rng)
			cands = viewsAround(r, targets, s.ExplMaxSamples, cfg)
		}
		for i := range cands {
			if e.pc.Generation() != gen {
				aborted = true
				return
			}
			c := &cands[i]
			c.Utility = Utility(r, e.cfg.Camera, c.Origin, c.Direction, s.SensorMinRange, s.SensorMaxRange, util)
		}
	})
	if aborted {
		return res, ErrPassAborted
	}
	res.Sampled = len(cands)

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return cands[order[a]].Utility > cands[order[b]].Utility })

	chosen := -1
	for _, i := range order {
		if cands[i].Utility <= s.MinUtility {
			break
		}
		if e.pc.Generation() != gen {
			return res, ErrPassAborted
		}
		ok, err := e.reachable(ctx, s, cands[i])
		if err != nil {
			return res, err
		}
		if ok {
			chosen = i
			break
		}
	}
	e.publish(s, cands, chosen)
	if chosen < 0 {
		return res, fmt.Errorf("%s: %d candidates: %w", s.Mode, len(cands), ErrNoViableViewpoint)
	}
	res.Chosen = cands[chosen]
	return e.execute(ctx, s, gen, res)
}

func (e *Engine) reachable(ctx context.Context, s Settings, c Candidate) (bool, error) {
	if !s.ComputeIKWhenSampling || e.reach == nil {
		return true, nil
	}
	ok, err := e.reach.Reachable(ctx, c.Pose())
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.logger.Debugf("reachability check failed: %v", err)
		return false, nil
	}
	return ok, nil
}

func (e *Engine) publish(s Settings, cands []Candidate, chosen int) {
	if !s.PublishPlanningState || e.viz == nil {
		return
	}
	if err := e.viz.DrawPlanningState(cands, chosen); err != nil {
		e.logger.Warnf("failed to publish planning state: %v", err)
	}
}

// execute hands the chosen candidate to the executor.
func (e *Engine) execute(ctx context.Context, s Settings, gen uint64, res Result) (Result, error) {
	if !s.ActivateExecution {
		return res, nil
	}
	if e.pc.Generation() != gen {
		return res, ErrPassAborted
	}

	moveCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	defer cancel()
	if err := e.exec.MoveToPose(moveCtx, res.Chosen.Pose(), false, s.RequireExecutionConfirmation); err != nil {
		return res, fmt.Errorf("execute viewpoint: %w", err)
	}
	e.ws.MarkMoved()
	res.Executed = true

	e.mu.Lock()
	e.viewpoints++
	step := e.viewpoints
	chosen := res.Chosen
	e.last = &chosen
	e.hasMoved = true
	e.mu.Unlock()

	e.logger.Infof("viewpoint %d reached (%s, utility %.1f)", step, s.Mode, res.Chosen.Utility)
	if s.RecordViewpoints && e.rec != nil {
		if err := e.rec.Record(step, e.clk.Now(), s.Mode, res.Chosen); err != nil {
			e.logger.Warnf("failed to record viewpoint: %v", err)
		}
	}
	if s.ActivateMoveToSee && s.Mode != MoveToSee {
		e.pc.enterMoveToSee()
	}
	return res, nil
}

// moveToSee takes one refinement step from the last viewpoint.
func (e *Engine) moveToSee(ctx context.Context, s Settings, gen uint64) (Result, error) {
	res := Result{Mode: MoveToSee}
	if e.pc.moveToSeeSteps() >= s.M2SMaxSteps {
		e.exitMoveToSee(fmt.Sprintf("step budget %d used", s.M2SMaxSteps))
		return res, nil
	}
	last, ok := e.LastViewpoint()
	if !ok {
		e.exitMoveToSee("no viewpoint to refine")
		return res, nil
	}

	util := s.ExplUtil
	var current float64
	var cands []Candidate
	e.ws.Read(func(r octomap.Reader) {
		if r.NumROI() > 0 {
			util = s.ROIUtil
		}
		current = Utility(r, e.cfg.Camera, last.Origin, last.Direction, s.SensorMinRange, s.SensorMaxRange, util)
		cands = refineViews(r, last, e.cfg.M2SStep, e.samplerConfig(s))
		for i := range cands {
			c := &cands[i]
			c.Utility = Utility(r, e.cfg.Camera, c.Origin, c.Direction, s.SensorMinRange, s.SensorMaxRange, util)
		}
	})
	if e.pc.Generation() != gen {
		return res, ErrPassAborted
	}
	res.Sampled = len(cands)
	if len(cands) == 0 {
		e.exitMoveToSee("no valid perturbation")
		return res, nil
	}

	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.Utility
	}
	best := floats.MaxIdx(scores)
	if delta := relativeGain(current, scores[best]); delta < s.M2SDeltaThresh {
		e.exitMoveToSee(fmt.Sprintf("gain %.3f below threshold", delta))
		return res, nil
	}

	res.Chosen = cands[best]
	res, err := e.execute(ctx, s, gen, res)
	if err != nil {
		if !errors.Is(err, ErrPassAborted) {
			e.exitMoveToSee("execution failed")
		}
		return res, err
	}
	if steps := e.pc.stepMoveToSee(); steps >= s.M2SMaxSteps {
		e.exitMoveToSee(fmt.Sprintf("step budget %d used", s.M2SMaxSteps))
	}
	return res, nil
}

func (e *Engine) exitMoveToSee(reason string) {
	back := e.pc.exitMoveToSee()
	e.logger.Infof("move-to-see finished (%s), back to %s", reason, back)
}

// MoveToState moves to a joint configuration and marks the workspace moved.
func (e *Engine) MoveToState(ctx context.Context, joints []referenceframe.Input, async, requireConfirmation bool) error {
	if err := e.exec.MoveToState(ctx, joints, async, requireConfirmation); err != nil {
		return err
	}
	e.ws.MarkMoved()
	return nil
}
