package viewplanner

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"

	"github.com/biotinker/roiplanner/octomap"
	roieval "github.com/biotinker/roiplanner/roi_eval"
)

const mmPerMeter = 1000.0

// Bounds is an axis-aligned box in world meters.
type Bounds struct {
	Min r3.Vector
	Max r3.Vector
}

// Contains reports whether p lies inside the box, faces included.
func (b Bounds) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Empty reports whether the box has no volume.
func (b Bounds) Empty() bool {
	return !(b.Max.X > b.Min.X && b.Max.Y > b.Min.Y && b.Max.Z > b.Min.Z)
}

// Candidate is a sensor viewpoint looking at Target.
type Candidate struct {
	Origin    r3.Vector
	Direction r3.Vector
	Target    r3.Vector
	Utility   float64
}

// Pose returns the viewpoint as an rdk pose in millimeters.
func (c Candidate) Pose() spatialmath.Pose {
	return spatialmath.NewPose(c.Origin.Mul(mmPerMeter), &spatialmath.OrientationVector{
		OX: c.Direction.X,
		OY: c.Direction.Y,
		OZ: c.Direction.Z,
	})
}

// samplerConfig is the geometry shared by all sampling policies.
type samplerConfig struct {
	bounds       Bounds
	viewDistance float64
	nb           octomap.Neighborhood
	minCluster   int
}

// sampleROITargets returns view targets around ROI evidence.
func sampleROITargets(r octomap.Reader, policy ROISampling, cfg samplerConfig) []r3.Vector {
	res := r.Resolution()
	switch policy {
	case ROIAdjacent:
		var out []r3.Vector
		for _, k := range r.ROIKeys() {
			if touchesUnknown(r, k) {
				out = append(out, k.Center(res))
			}
		}
		return out
	default:
		clusters := roieval.FindClusters(r.ROIKeys(), cfg.nb, cfg.minCluster)
		out := make([]r3.Vector, len(clusters))
		for i, c := range clusters {
			out[i] = c.Center(res)
		}
		return out
	}
}

// sampleExplorationTargets returns view targets at the edge of known space.
// With no frontier yet, targets are drawn uniformly in the bounds.
func sampleExplorationTargets(r octomap.Reader, policy ExplorationSampling, cfg samplerConfig, n int, rng *rand.Rand) []r3.Vector {
	if policy == ExplFrontier {
		var keys []octomap.Key
		r.Each(func(k octomap.Key, occ octomap.Occupancy) bool {
			if occ == octomap.Free && touchesUnknown(r, k) {
				keys = append(keys, k)
			}
			return true
		})
		if len(keys) > 0 {
			octomap.SortKeys(keys)
			res := r.Resolution()
			out := make([]r3.Vector, len(keys))
			for i, k := range keys {
				out[i] = k.Center(res)
			}
			return out
		}
	}
	if cfg.bounds.Empty() {
		return nil
	}
	out := make([]r3.Vector, n)
	for i := range out {
		out[i] = randomPoint(rng, cfg.bounds)
	}
	return out
}

func randomPoint(rng *rand.Rand, b Bounds) r3.Vector {
	return r3.Vector{
		X: b.Min.X + rng.Float64()*(b.Max.X-b.Min.X),
		Y: b.Min.Y + rng.Float64()*(b.Max.Y-b.Min.Y),
		Z: b.Min.Z + rng.Float64()*(b.Max.Z-b.Min.Z),
	}
}

func touchesUnknown(r octomap.Reader, k octomap.Key) bool {
	for _, off := range octomap.Face6.Offsets() {
		if r.Occupancy(k.Add(off)) == octomap.Unknown {
			return true
		}
	}
	return false
}

// viewsAround places n cameras at viewDistance from the targets, spread over
// the sphere by the golden angle and looking back at their target. Targets
// are used round-robin; cameras outside the bounds or inside occupied space
// are dropped.
func viewsAround(r octomap.Reader, targets []r3.Vector, n int, cfg samplerConfig) []Candidate {
	if len(targets) == 0 || n <= 0 {
		return nil
	}
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	res := r.Resolution()
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		target := targets[i%len(targets)]
		t := (float64(i) + 0.5) / float64(n)
		phi := math.Acos(1 - 2*t)
		theta := goldenAngle * float64(i)
		dir := r3.Vector{
			X: math.Sin(phi) * math.Cos(theta),
			Y: math.Sin(phi) * math.Sin(theta),
			Z: math.Cos(phi),
		}
		origin := target.Add(dir.Mul(cfg.viewDistance))
		if !cfg.bounds.Empty() && !cfg.bounds.Contains(origin) {
			continue
		}
		if r.Occupancy(octomap.CoordToKey(origin, res)) == octomap.Occupied {
			continue
		}
		out = append(out, Candidate{Origin: origin, Direction: dir.Mul(-1), Target: target})
	}
	return out
}
