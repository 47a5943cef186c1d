package viewplanner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
	"go.viam.com/rdk/utils"
)

func smallCamera() CameraModel {
	return CameraModel{HFOVDeg: 40, VFOVDeg: 30, Rows: 4, Cols: 5}
}

func TestRotateToAlign(t *testing.T) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		target := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Normalize()
		got := rotateToAlign(r3.Vector{Z: 1}, target)
		if got.Sub(target).Norm() > 0.015 {
			t.Fatalf("Z mapped to %v, want %v", got, target)
		}
	}
	flipped := rotateToAlign(r3.Vector{X: 1, Z: 1}, r3.Vector{Z: -1})
	if math.Abs(flipped.Z+1) > 1e-9 || math.Abs(flipped.Norm()-math.Sqrt2) > 1e-9 {
		t.Errorf("antiparallel rotation gave %v", flipped)
	}
}

func TestRayDirections_Fan(t *testing.T) {
	cam := smallCamera()
	dir := r3.Vector{X: 1}
	rays := cam.rayDirections(dir)
	if len(rays) != cam.Rows*cam.Cols {
		t.Fatalf("got %d rays, want %d", len(rays), cam.Rows*cam.Cols)
	}
	maxAngle := utils.DegToRad(math.Hypot(cam.HFOVDeg/2, cam.VFOVDeg/2))
	for _, r := range rays {
		if math.Abs(r.Norm()-1) > 1e-9 {
			t.Fatalf("ray %v is not unit length", r)
		}
		if angle := r.Angle(dir).Radians(); angle > maxAngle+1e-9 {
			t.Errorf("ray %v is %.3f rad off axis, max %.3f", r, angle, maxAngle)
		}
	}
}

func TestUtility_UnknownSpace(t *testing.T) {
	m := newVoxelMap(0.02)
	origin := r3.Vector{X: 0.01, Y: 0.01, Z: 0.01}
	open := Utility(m, smallCamera(), origin, r3.Vector{X: 1}, 0.03, 0.5, UnknownVoxels)
	if open <= 0 {
		t.Fatalf("expected positive utility in unknown space, got %v", open)
	}

	// A wall 10cm in front stops every ray.
	for y := int32(-20); y <= 20; y++ {
		for z := int32(-20); z <= 20; z++ {
			m.tree.Mark(octomap.Key{X: 5, Y: y, Z: z}, octomap.Occupied)
		}
	}
	blocked := Utility(m, smallCamera(), origin, r3.Vector{X: 1}, 0.03, 0.5, UnknownVoxels)
	t.Logf("utility open=%.0f blocked=%.0f", open, blocked)
	if blocked >= open {
		t.Errorf("wall did not reduce utility: open %v, blocked %v", open, blocked)
	}
}

func TestUtility_ROITypes(t *testing.T) {
	m := newVoxelMap(0.02)
	origin := r3.Vector{X: 0.01, Y: 0.01, Z: 0.01}
	score := func(u UtilityType) float64 {
		return Utility(m, smallCamera(), origin, r3.Vector{X: 1}, 0, 0.5, u)
	}

	if got := score(ROIAdjacentUnknown); got != 0 {
		t.Errorf("ROI-adjacent utility without ROI = %v, want 0", got)
	}
	plain := score(UnknownVoxels)
	if got := score(ROIWeightedUnknown); got != plain {
		t.Errorf("weighted utility without ROI = %v, want %v", got, plain)
	}

	// ROI voxels beside the optical axis.
	for x := int32(3); x < 15; x++ {
		m.roi.Add(octomap.Key{X: x, Y: 1, Z: 1})
	}
	adjacent := score(ROIAdjacentUnknown)
	weighted := score(ROIWeightedUnknown)
	t.Logf("plain=%.0f adjacent=%.0f weighted=%.0f", plain, adjacent, weighted)
	if adjacent <= 0 {
		t.Error("expected ROI-adjacent unknown voxels in view")
	}
	if weighted <= plain {
		t.Errorf("weighted utility %v should exceed plain %v near ROI", weighted, plain)
	}
}

func TestUtility_MinRangeSkipsNearVoxels(t *testing.T) {
	ws := octomap.NewWorkspace(0.02)
	origin := r3.Vector{X: 0.01, Y: 0.01, Z: 0.01}
	var full, far float64
	ws.Read(func(r octomap.Reader) {
		full = Utility(r, smallCamera(), origin, r3.Vector{Y: 1}, 0, 0.4, UnknownVoxels)
		far = Utility(r, smallCamera(), origin, r3.Vector{Y: 1}, 0.2, 0.4, UnknownVoxels)
	})
	if far >= full {
		t.Errorf("min range did not drop near voxels: full %v, far %v", full, far)
	}
}
