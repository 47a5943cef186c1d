package roiplanner

import (
	"context"
	"image/color"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/internal/config"
	roieval "github.com/biotinker/roiplanner/roi_eval"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

type fakeHardware struct {
	mu       sync.Mutex
	poses    []spatialmath.Pose
	states   [][]referenceframe.Input
	scans    int
	cloud    pointcloud.PointCloud
	camPose  spatialmath.Pose
	moving   bool
	moveErr  error
	confirms []bool
}

func (h *fakeHardware) MoveToPose(_ context.Context, pose spatialmath.Pose, _, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.moveErr != nil {
		return h.moveErr
	}
	h.poses = append(h.poses, pose)
	h.camPose = pose
	return nil
}

func (h *fakeHardware) MoveToState(_ context.Context, joints []referenceframe.Input, _, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.moveErr != nil {
		return h.moveErr
	}
	h.states = append(h.states, joints)
	return nil
}

func (h *fakeHardware) Reachable(context.Context, spatialmath.Pose) (bool, error) {
	return true, nil
}

func (h *fakeHardware) NextPointCloud(context.Context) (pointcloud.PointCloud, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scans++
	if h.cloud == nil {
		return pointcloud.NewBasicEmpty(), nil
	}
	return h.cloud, nil
}

func (h *fakeHardware) CameraPose(context.Context) (spatialmath.Pose, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.camPose == nil {
		return spatialmath.NewZeroPose(), nil
	}
	return h.camPose, nil
}

func (h *fakeHardware) Moving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moving
}

func (h *fakeHardware) ConfirmExecution(ok bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirms = append(h.confirms, ok)
	return true
}

func (h *fakeHardware) moves() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.poses)
}

func (h *fakeHardware) scanCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scans
}

type fakeViz struct {
	mu       sync.Mutex
	states   int
	clusters [][]roieval.Cluster
	clears   int
}

func (v *fakeViz) DrawPlanningState([]viewplanner.Candidate, int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states++
	return nil
}

func (v *fakeViz) DrawClusters(clusters []roieval.Cluster, _ float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clusters = append(v.clusters, clusters)
	return nil
}

func (v *fakeViz) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clears++
	return nil
}

// newTestPlanner returns a planner on fake hardware with a coarse workspace
// and a mock clock.
func newTestPlanner(t *testing.T, mutate func(cfg *config.Config)) (*Planner, *fakeHardware, *clock.Mock) {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.Resolution = 0.05
	cfg.Planner.WaitForScan = false
	cfg.Planner.ExplMaxSamples = 5
	cfg.Planner.ROIMaxSamples = 5
	if mutate != nil {
		mutate(&cfg)
	}

	hw := &fakeHardware{}
	mock := clock.NewMock()
	p, err := NewPlanner(context.Background(), &cfg, hw, mock, logging.NewTestLogger(t))
	if err != nil {
		t.Fatalf("NewPlanner failed: %v", err)
	}
	p.viz = &fakeViz{}
	t.Cleanup(func() {
		if err := p.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return p, hw, mock
}

var (
	fruitRed  = pointcloud.NewColoredData(color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	leafGreen = pointcloud.NewColoredData(color.NRGBA{R: 40, G: 160, B: 40, A: 255})
)

// plantCloud is a camera-frame cloud (mm) with a leaf wall at 500mm and a
// fruit patch at 400mm along the optical axis.
func plantCloud(t *testing.T) pointcloud.PointCloud {
	t.Helper()
	cloud := pointcloud.NewBasicEmpty()
	for i := -5; i < 5; i++ {
		for j := -5; j < 5; j++ {
			if err := cloud.Set(r3.Vector{X: float64(i) * 20, Y: float64(j) * 20, Z: 500}, leafGreen); err != nil {
				t.Fatal(err)
			}
		}
	}
	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			if err := cloud.Set(r3.Vector{X: float64(i) * 4, Y: float64(j) * 4, Z: 400}, fruitRed); err != nil {
				t.Fatal(err)
			}
		}
	}
	return cloud
}
