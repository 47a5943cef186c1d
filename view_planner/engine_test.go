package viewplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"

	"github.com/biotinker/roiplanner/octomap"
)

type fakeExecutor struct {
	mu     sync.Mutex
	poses  []spatialmath.Pose
	states [][]referenceframe.Input
	err    error
}

func (f *fakeExecutor) MoveToPose(_ context.Context, pose spatialmath.Pose, _, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.poses = append(f.poses, pose)
	return nil
}

func (f *fakeExecutor) MoveToState(_ context.Context, joints []referenceframe.Input, _, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, joints)
	return f.err
}

func (f *fakeExecutor) moves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.poses)
}

type fakeReach struct {
	calls  int
	refuse int
	hook   func()
}

func (f *fakeReach) Reachable(context.Context, spatialmath.Pose) (bool, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.calls > f.refuse, nil
}

type testEngine struct {
	*Engine
	exec *fakeExecutor
	ws   *octomap.Workspace
}

func newTestEngine(t *testing.T, reach Reachability, mutate func(*Settings)) testEngine {
	t.Helper()
	s := DefaultSettings()
	s.Mode = SampleExploration
	s.WaitForScan = false
	s.ExplMaxSamples = 10
	s.ROIMaxSamples = 10
	if mutate != nil {
		mutate(&s)
	}
	logger := logging.NewTestLogger(t)
	pc, err := NewPlannerContext(s, logger)
	if err != nil {
		t.Fatalf("NewPlannerContext failed: %v", err)
	}
	cfg := DefaultEngineConfig()
	cfg.Camera = smallCamera()
	cfg.Bounds = Bounds{Min: r3.Vector{X: -1, Y: -1, Z: -1}, Max: r3.Vector{X: 1, Y: 1, Z: 1}}
	ws := octomap.NewWorkspace(0.05)
	exec := &fakeExecutor{}
	e := NewEngine(cfg, pc, ws, exec, reach, nil, nil, clock.NewMock(), logger)
	return testEngine{Engine: e, exec: exec, ws: ws}
}

func TestEngineStep_IdleAndMapOnly(t *testing.T) {
	for _, mode := range []PlannerMode{Idle, MapOnly} {
		te := newTestEngine(t, nil, func(s *Settings) { s.Mode = mode })
		res, err := te.Step(context.Background())
		if err != nil {
			t.Fatalf("%s: Step failed: %v", mode, err)
		}
		if res.Mode != mode || res.Sampled != 0 || te.exec.moves() != 0 {
			t.Errorf("%s: unexpected result %+v", mode, res)
		}
	}
}

func TestEngineStep_ExplorationExecutes(t *testing.T) {
	te := newTestEngine(t, nil, nil)
	res, err := te.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	t.Logf("sampled %d, chosen utility %.0f at %v", res.Sampled, res.Chosen.Utility, res.Chosen.Origin)
	if !res.Executed || res.Sampled == 0 || res.Chosen.Utility <= 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if te.exec.moves() != 1 || te.ViewpointCount() != 1 {
		t.Errorf("moves=%d viewpoints=%d", te.exec.moves(), te.ViewpointCount())
	}
	if got := te.exec.poses[0].Point(); got.Sub(res.Chosen.Origin.Mul(1000)).Norm() > 1e-6 {
		t.Errorf("executor got %v, chosen %v", got, res.Chosen.Origin)
	}
	if te.ws.ScanSinceMove() {
		t.Error("workspace not marked moved")
	}
	if last, ok := te.LastViewpoint(); !ok || last != res.Chosen {
		t.Errorf("last viewpoint = %+v, %v", last, ok)
	}

	te.Reset()
	if te.ViewpointCount() != 0 {
		t.Error("viewpoint count survived reset")
	}
}

func TestEngineStep_ExecutionDisabled(t *testing.T) {
	te := newTestEngine(t, nil, func(s *Settings) { s.ActivateExecution = false })
	res, err := te.Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Executed || te.exec.moves() != 0 || res.Chosen.Utility <= 0 {
		t.Errorf("unexpected result %+v, moves %d", res, te.exec.moves())
	}
}

func TestEngineStep_NoViableViewpoint(t *testing.T) {
	cases := map[string]func(*Settings){
		"no roi":          func(s *Settings) { s.Mode = SampleROI },
		"utility too low": func(s *Settings) { s.MinUtility = 1e9 },
		"all unreachable": func(s *Settings) { s.ComputeIKWhenSampling = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			te := newTestEngine(t, &fakeReach{refuse: 1000}, mutate)
			before := te.Context().Mode()
			_, err := te.Step(context.Background())
			if !errors.Is(err, ErrNoViableViewpoint) {
				t.Fatalf("expected ErrNoViableViewpoint, got %v", err)
			}
			if te.Context().Mode() != before || te.exec.moves() != 0 {
				t.Errorf("mode %s -> %s, moves %d", before, te.Context().Mode(), te.exec.moves())
			}
		})
	}
}

func TestEngineStep_ReachabilityTakesNextBest(t *testing.T) {
	reach := &fakeReach{refuse: 2}
	te := newTestEngine(t, reach, func(s *Settings) { s.ComputeIKWhenSampling = true })
	res, err := te.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if reach.calls != 3 || !res.Executed {
		t.Errorf("reach calls = %d, executed %v", reach.calls, res.Executed)
	}

	// Without ComputeIKWhenSampling the collaborator is not consulted.
	reach2 := &fakeReach{refuse: 1000}
	te2 := newTestEngine(t, reach2, nil)
	if _, err := te2.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reach2.calls != 0 {
		t.Errorf("reachability consulted %d times", reach2.calls)
	}
}

func TestEngineStep_CancelAbortsPass(t *testing.T) {
	reach := &fakeReach{}
	te := newTestEngine(t, reach, func(s *Settings) { s.ComputeIKWhenSampling = true })
	reach.hook = te.Context().Cancel
	_, err := te.Step(context.Background())
	if !errors.Is(err, ErrPassAborted) {
		t.Fatalf("expected ErrPassAborted, got %v", err)
	}
	if te.exec.moves() != 0 || te.ViewpointCount() != 0 {
		t.Error("aborted pass still executed")
	}
}

func TestEngineStep_ExecutorError(t *testing.T) {
	te := newTestEngine(t, nil, nil)
	te.exec.err = errors.New("arm fault")
	if _, err := te.Step(context.Background()); err == nil || !strings.Contains(err.Error(), "arm fault") {
		t.Fatalf("expected executor error, got %v", err)
	}
	if te.ViewpointCount() != 0 {
		t.Error("failed move counted as viewpoint")
	}
}

func TestEngineStep_WaitForScan(t *testing.T) {
	te := newTestEngine(t, nil, func(s *Settings) { s.WaitForScan = true })
	ctx := context.Background()
	if res, err := te.Step(ctx); err != nil || res.Waiting || !res.Executed {
		t.Fatalf("first step should execute: %+v, %v", res, err)
	}
	res, err := te.Step(ctx)
	if err != nil || !res.Waiting {
		t.Fatalf("second step should wait for a scan: %+v, %v", res, err)
	}
	te.ws.InsertScan(octomap.Scan{Points: []r3.Vector{{X: 0.3}}}, 0, 1)
	if res, err := te.Step(ctx); err != nil || res.Waiting {
		t.Errorf("step after scan: %+v, %v", res, err)
	}
	if te.exec.moves() != 2 {
		t.Errorf("moves = %d, want 2", te.exec.moves())
	}
}

func TestEngineStep_ROISampling(t *testing.T) {
	te := newTestEngine(t, nil, func(s *Settings) { s.Mode = SampleAutomatic })
	scanROIBlock(te.ws, octomap.Key{X: 2, Y: 2, Z: 2}, 2)

	res, err := te.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	want := r3.Vector{X: 0.15, Y: 0.15, Z: 0.15}
	if res.Chosen.Target.Sub(want).Norm() > 1e-9 {
		t.Errorf("target = %v, want ROI cluster center %v", res.Chosen.Target, want)
	}
}

func TestEngine_MoveToSeeStepBudget(t *testing.T) {
	te := newTestEngine(t, nil, func(s *Settings) {
		s.ActivateMoveToSee = true
		s.M2SMaxSteps = 2
		s.M2SDeltaThresh = -2
	})
	ctx := context.Background()
	if _, err := te.Step(ctx); err != nil {
		t.Fatal(err)
	}
	if te.Context().Mode() != MoveToSee {
		t.Fatalf("mode after first viewpoint = %s", te.Context().Mode())
	}
	for i := 0; i < 2; i++ {
		res, err := te.Step(ctx)
		if err != nil {
			t.Fatalf("refinement %d failed: %v", i, err)
		}
		if res.Mode != MoveToSee || !res.Executed {
			t.Fatalf("refinement %d: %+v", i, res)
		}
	}
	if te.Context().Mode() != SampleExploration {
		t.Errorf("mode after budget = %s, want SAMPLE_EXPLORATION", te.Context().Mode())
	}
	if te.exec.moves() != 3 {
		t.Errorf("moves = %d, want 3", te.exec.moves())
	}
}

func TestEngine_MoveToSeeLowDelta(t *testing.T) {
	te := newTestEngine(t, nil, func(s *Settings) {
		s.ActivateMoveToSee = true
		s.M2SMaxSteps = 10
		s.M2SDeltaThresh = 1e9
	})
	ctx := context.Background()
	if _, err := te.Step(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := te.Step(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Executed || te.Context().Mode() != SampleExploration {
		t.Errorf("low gain should end move-to-see without moving: %+v, mode %s", res, te.Context().Mode())
	}
}

func TestEngine_RecordsViewpoints(t *testing.T) {
	var buf bytes.Buffer
	te := newTestEngine(t, nil, func(s *Settings) { s.RecordViewpoints = true })
	te.rec = NewRecorder(&buf)
	if _, err := te.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	var rec ViewpointRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("bad record %q: %v", buf.String(), err)
	}
	if rec.Step != 1 || rec.Mode != "SAMPLE_EXPLORATION" || len(rec.Pose) == 0 || rec.Utility <= 0 {
		t.Errorf("unexpected record %+v", rec)
	}
	if err := te.rec.Close(); err != nil {
		t.Error(err)
	}
}

func TestEngine_MoveToState(t *testing.T) {
	te := newTestEngine(t, nil, nil)
	te.ws.InsertScan(octomap.Scan{Points: []r3.Vector{{X: 0.3}}}, 0, 1)
	joints := []referenceframe.Input{0, 0.5, 1}
	if err := te.MoveToState(context.Background(), joints, false, false); err != nil {
		t.Fatal(err)
	}
	if te.ws.ScanSinceMove() || len(te.exec.states) != 1 {
		t.Errorf("states=%v scanSinceMove=%v", te.exec.states, te.ws.ScanSinceMove())
	}
}
