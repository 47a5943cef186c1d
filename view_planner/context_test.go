package viewplanner

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/rdk/logging"
)

func newTestContext(t *testing.T) *PlannerContext {
	t.Helper()
	pc, err := NewPlannerContext(DefaultSettings(), logging.NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewPlannerContext failed: %v", err)
	}
	return pc
}

func TestReconfigure_OnlyChangedFields(t *testing.T) {
	pc := newTestContext(t)
	changed, err := pc.Reconfigure(map[string]any{"roi_max_samples": 5, "record_viewpoints": true})
	if err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if diff := cmp.Diff([]string{"mode", "record_viewpoints"}, changed); diff != "" {
		t.Errorf("changed groups mismatch (-want +got):\n%s", diff)
	}

	want := DefaultSettings()
	want.ROIMaxSamples = 5
	want.RecordViewpoints = true
	if diff := cmp.Diff(want, pc.Settings()); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestReconfigure_KeepsInternalModeChange(t *testing.T) {
	pc := newTestContext(t)
	if err := pc.SetMode(SampleROI); err != nil {
		t.Fatal(err)
	}
	pc.enterMoveToSee()
	changed, err := pc.Reconfigure(map[string]any{"record_viewpoints": true})
	if err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if diff := cmp.Diff([]string{"record_viewpoints"}, changed); diff != "" {
		t.Errorf("changed groups mismatch (-want +got):\n%s", diff)
	}
	if pc.Mode() != MoveToSee {
		t.Errorf("mode = %s, want %s", pc.Mode(), MoveToSee)
	}
}

func TestReconfigure_ConcurrentModeSwitches(t *testing.T) {
	pc := newTestContext(t)
	if err := pc.SetMode(SampleROI); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			pc.enterMoveToSee()
			pc.exitMoveToSee()
		}
	}()
	for i := 0; i < 200; i++ {
		changed, err := pc.Reconfigure(map[string]any{"record_viewpoints": i%2 == 0})
		if err != nil {
			t.Fatalf("Reconfigure failed: %v", err)
		}
		for _, name := range changed {
			if name != "record_viewpoints" {
				t.Fatalf("iteration %d: unexpected group %q changed", i, name)
			}
		}
	}
	<-done
	if pc.Mode() != SampleROI {
		t.Errorf("mode = %s, want %s", pc.Mode(), SampleROI)
	}
}

func TestReconfigure_WeakTypes(t *testing.T) {
	pc := newTestContext(t)
	// JSON numbers arrive as float64.
	if _, err := pc.Reconfigure(map[string]any{"mode": 3.0, "cluster_neighborhood": "2"}); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	s := pc.Settings()
	if s.Mode != SampleROI || s.ClusterNeighborhood != 2 {
		t.Errorf("mode=%s neighborhood=%s", s.Mode, s.ClusterNeighborhood)
	}
}

func TestReconfigure_Rejected(t *testing.T) {
	cases := []struct {
		name    string
		changes map[string]any
		want    error
	}{
		{"unknown field", map[string]any{"not_a_setting": 1}, ErrInvalidSetting},
		{"mode out of range", map[string]any{"mode": 9}, ErrInvalidModeValue},
		{"negative mode", map[string]any{"mode": -1}, ErrInvalidModeValue},
		{"bad utility", map[string]any{"roi_util": 7}, ErrInvalidModeValue},
		{"valid mode with bad planning time", map[string]any{"mode": 3, "planning_time": -1}, ErrInvalidSetting},
		{"bad velocity", map[string]any{"velocity_scaling": 1.5}, ErrInvalidSetting},
		{"bad neighborhood", map[string]any{"cluster_neighborhood": 4}, ErrInvalidModeValue},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pc := newTestContext(t)
			before := pc.Settings()
			gen := pc.Generation()
			if _, err := pc.Reconfigure(c.changes); !errors.Is(err, c.want) {
				t.Errorf("expected %v, got %v", c.want, err)
			}
			if diff := cmp.Diff(before, pc.Settings()); diff != "" {
				t.Errorf("settings changed after rejected reconfigure:\n%s", diff)
			}
			if pc.Generation() != gen {
				t.Error("generation bumped by rejected reconfigure")
			}
		})
	}
}

func TestReconfigure_SensorRangeClamping(t *testing.T) {
	cases := []struct {
		name             string
		changes          map[string]any
		wantMin, wantMax float64
	}{
		{"min above max", map[string]any{"sensor_min_range": 1.0}, 1.0, 1.0},
		{"max below min", map[string]any{"sensor_max_range": 0.01}, 0.01, 0.01},
		{"both crossed", map[string]any{"sensor_min_range": 0.5, "sensor_max_range": 0.4}, 0.4, 0.4},
		{"both valid", map[string]any{"sensor_min_range": 0.1, "sensor_max_range": 0.9}, 0.1, 0.9},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pc := newTestContext(t)
			if _, err := pc.Reconfigure(c.changes); err != nil {
				t.Fatalf("Reconfigure failed: %v", err)
			}
			s := pc.Settings()
			if s.SensorMinRange != c.wantMin || s.SensorMaxRange != c.wantMax {
				t.Errorf("range = [%v, %v], want [%v, %v]", s.SensorMinRange, s.SensorMaxRange, c.wantMin, c.wantMax)
			}
		})
	}
}

func TestPlannerContext_Generation(t *testing.T) {
	pc := newTestContext(t)
	g0 := pc.Generation()
	if err := pc.SetMode(Idle); err != nil {
		t.Fatal(err)
	}
	if pc.Generation() != g0 {
		t.Error("setting the current mode bumped the generation")
	}
	if err := pc.SetMode(SampleExploration); err != nil {
		t.Fatal(err)
	}
	if pc.Generation() != g0+1 {
		t.Errorf("generation = %d, want %d", pc.Generation(), g0+1)
	}
	pc.Cancel()
	if pc.Generation() != g0+2 {
		t.Errorf("generation = %d after cancel, want %d", pc.Generation(), g0+2)
	}
	if err := pc.SetMode(PlannerMode(42)); !errors.Is(err, ErrInvalidModeValue) {
		t.Errorf("expected ErrInvalidModeValue, got %v", err)
	}
}

func TestPlannerContext_MoveToSeeReturnsToPreviousMode(t *testing.T) {
	pc := newTestContext(t)
	if err := pc.SetMode(SampleROI); err != nil {
		t.Fatal(err)
	}
	pc.enterMoveToSee()
	if pc.Mode() != MoveToSee {
		t.Fatalf("mode = %s", pc.Mode())
	}
	pc.stepMoveToSee()
	if back := pc.exitMoveToSee(); back != SampleROI || pc.Mode() != SampleROI {
		t.Errorf("exit returned %s, mode %s", back, pc.Mode())
	}
	pc.enterMoveToSee()
	if pc.moveToSeeSteps() != 0 {
		t.Error("step counter not reset on entry")
	}
}

func TestNewPlannerContext_InvalidInitial(t *testing.T) {
	s := DefaultSettings()
	s.SensorMinRange, s.SensorMaxRange = 0.5, 0.1
	if _, err := NewPlannerContext(s, logging.NewTestLogger(t)); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	for _, v := range []int{-1, 6, 100} {
		if _, err := ParsePlannerMode(v); !errors.Is(err, ErrInvalidModeValue) {
			t.Errorf("ParsePlannerMode(%d): got %v", v, err)
		}
	}
	for v := 0; v < int(numPlannerModes); v++ {
		m, err := ParsePlannerMode(v)
		if err != nil || int(m) != v {
			t.Errorf("ParsePlannerMode(%d) = %v, %v", v, m, err)
		}
	}
	if _, err := ParseUtilityType(3); !errors.Is(err, ErrInvalidModeValue) {
		t.Errorf("ParseUtilityType(3): got %v", err)
	}
	if _, err := ParseROISampling(2); !errors.Is(err, ErrInvalidModeValue) {
		t.Errorf("ParseROISampling(2): got %v", err)
	}
	if _, err := ParseExplorationSampling(-1); !errors.Is(err, ErrInvalidModeValue) {
		t.Errorf("ParseExplorationSampling(-1): got %v", err)
	}
	if SampleAutomatic.String() != "SAMPLE_AUTOMATIC" || PlannerMode(9).String() != "PlannerMode(9)" {
		t.Error("unexpected mode names")
	}
}
