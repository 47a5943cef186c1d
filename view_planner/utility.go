package viewplanner

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
	"go.viam.com/rdk/utils"
)

// roiWeight is the score of an ROI-adjacent unknown voxel under ROIWeightedUnknown.
const roiWeight = 4.0

// CameraModel describes the ray fan cast to score a viewpoint.
type CameraModel struct {
	HFOVDeg float64 `toml:"hfov_deg"`
	VFOVDeg float64 `toml:"vfov_deg"`
	Rows    int     `toml:"rows"`
	Cols    int     `toml:"cols"`
}

// DefaultCameraModel matches a typical depth camera with a coarse fan.
func DefaultCameraModel() CameraModel {
	return CameraModel{HFOVDeg: 86, VFOVDeg: 57, Rows: 12, Cols: 16}
}

// rayDirections returns the fan of unit rays for a camera looking along dir.
func (c CameraModel) rayDirections(dir r3.Vector) []r3.Vector {
	dir = dir.Normalize()
	rows, cols := max(c.Rows, 1), max(c.Cols, 1)
	hfov := utils.DegToRad(c.HFOVDeg)
	vfov := utils.DegToRad(c.VFOVDeg)

	out := make([]r3.Vector, 0, rows*cols)
	for i := 0; i < rows; i++ {
		v := fanAngle(i, rows, vfov)
		for j := 0; j < cols; j++ {
			h := fanAngle(j, cols, hfov)
			local := r3.Vector{X: math.Tan(h), Y: math.Tan(v), Z: 1}.Normalize()
			out = append(out, rotateToAlign(local, dir))
		}
	}
	return out
}

func fanAngle(i, n int, fov float64) float64 {
	if n == 1 {
		return 0
	}
	return (float64(i)/float64(n-1) - 0.5) * fov
}

// rotateToAlign rotates v from a frame where Z is up to a frame where targetZ is up.
func rotateToAlign(v, targetZ r3.Vector) r3.Vector {
	z := r3.Vector{Z: 1}
	dot := z.Dot(targetZ)
	if dot > 0.9999 {
		return v
	}
	if dot < -0.9999 {
		return r3.Vector{X: v.X, Y: -v.Y, Z: -v.Z}
	}

	// Rodrigues' rotation formula.
	axis := z.Cross(targetZ)
	axisNorm := axis.Norm()
	axis = axis.Mul(1.0 / axisNorm)
	cosA := dot
	sinA := axisNorm
	return v.Mul(cosA).Add(axis.Cross(v).Mul(sinA)).Add(axis.Mul(axis.Dot(v) * (1 - cosA)))
}

// Utility scores the view from origin along dir. Rays stop at the first
// occupied voxel; every unknown voxel is counted at most once.
func Utility(r octomap.Reader, cam CameraModel, origin, dir r3.Vector, minRange, maxRange float64, util UtilityType) float64 {
	res := r.Resolution()
	seen := octomap.NewKeySet()
	score := 0.0
	for _, ray := range cam.rayDirections(dir) {
		octomap.TraverseRay(origin, ray, maxRange, res, func(k octomap.Key, dist float64) bool {
			occ := r.Occupancy(k)
			if occ == octomap.Occupied {
				return false
			}
			if dist < minRange || occ != octomap.Unknown || seen.Contains(k) {
				return true
			}
			seen.Add(k)
			score += voxelScore(r, k, util)
			return true
		})
	}
	return score
}

func voxelScore(r octomap.Reader, k octomap.Key, util UtilityType) float64 {
	switch util {
	case ROIAdjacentUnknown:
		if nearROI(r, k) {
			return 1
		}
		return 0
	case ROIWeightedUnknown:
		if nearROI(r, k) {
			return roiWeight
		}
		return 1
	default:
		return 1
	}
}

func nearROI(r octomap.Reader, k octomap.Key) bool {
	if r.NumROI() == 0 {
		return false
	}
	for _, off := range octomap.Face6.Offsets() {
		if r.IsROI(k.Add(off)) {
			return true
		}
	}
	return false
}
