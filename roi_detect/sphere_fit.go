package roidetect

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/pointcloud"
)

// SphereFitResult holds the output of sphere fitting.
type SphereFitResult struct {
	Center          r3.Vector
	Radius          float64
	RMSResidual     float64
	InlierFraction  float64
	VisibleFraction float64
}

// FitSphere fits a sphere to a point cloud with MSAC-scored RANSAC, then
// tightens the radius over the inliers.
func FitSphere(cloud pointcloud.PointCloud, cfg SphereFitConfig) (*SphereFitResult, error) {
	if cloud == nil {
		return nil, ErrNilPointCloud
	}
	if cloud.Size() < 4 {
		return nil, ErrTooFewPoints
	}

	points := pointcloud.CloudToPoints(cloud)
	n := len(points)

	var bestCenter r3.Vector
	var bestRadius float64
	bestScore := math.MaxFloat64
	threshSq := cfg.InlierThresholdMm * cfg.InlierThresholdMm

	//nolint:gosec
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < cfg.RANSACIterations; iter++ {
		idx := sampleFourDistinct(rng, n)
		p := [4]r3.Vector{points[idx[0]], points[idx[1]], points[idx[2]], points[idx[3]]}

		// Skip near-coplanar samples.
		v1 := p[1].Sub(p[0])
		v2 := p[2].Sub(p[0])
		v3 := p[3].Sub(p[0])
		if math.Abs(v1.Dot(v2.Cross(v3))) < 1e-6 {
			continue
		}

		center, radius, ok := sphereFrom4Points(p)
		if !ok || radius < cfg.ExpectedRadiusMinMm || radius > cfg.ExpectedRadiusMaxMm {
			continue
		}

		// MSAC: sum of min(dist², threshold²) per point.
		var score float64
		for _, pt := range points {
			d := pt.Sub(center).Norm() - radius
			score += math.Min(d*d, threshSq)
		}
		if score < bestScore {
			bestScore = score
			bestCenter = center
			bestRadius = radius
		}
	}

	if bestScore == math.MaxFloat64 {
		return nil, ErrNoSphereFound
	}

	inliers := collectInliers(points, bestCenter, bestRadius, cfg.InlierThresholdMm)

	// Re-estimate the radius as the mean inlier distance, keeping the center.
	for refineIter := 0; refineIter < 3 && len(inliers) >= 4; refineIter++ {
		var sumDist float64
		for _, pt := range inliers {
			sumDist += pt.Sub(bestCenter).Norm()
		}
		meanRadius := sumDist / float64(len(inliers))
		if meanRadius < cfg.ExpectedRadiusMinMm || meanRadius > cfg.ExpectedRadiusMaxMm {
			break
		}
		bestRadius = meanRadius
		inliers = collectInliers(points, bestCenter, bestRadius, cfg.InlierThresholdMm)
	}
	if len(inliers) == 0 {
		return nil, ErrNoSphereFound
	}

	inlierFraction := float64(len(inliers)) / float64(n)
	if inlierFraction < cfg.MinInlierFraction {
		return nil, ErrLowInlierFraction
	}

	var sumSqErr float64
	for _, pt := range inliers {
		diff := pt.Sub(bestCenter).Norm() - bestRadius
		sumSqErr += diff * diff
	}

	return &SphereFitResult{
		Center:          bestCenter,
		Radius:          bestRadius,
		RMSResidual:     math.Sqrt(sumSqErr / float64(len(inliers))),
		InlierFraction:  inlierFraction,
		VisibleFraction: estimateVisibleFraction(inliers, bestCenter),
	}, nil
}

func collectInliers(points []r3.Vector, center r3.Vector, radius, threshold float64) []r3.Vector {
	var out []r3.Vector
	for _, pt := range points {
		if math.Abs(pt.Sub(center).Norm()-radius) <= threshold {
			out = append(out, pt)
		}
	}
	return out
}

// sphereFrom4Points solves for the sphere passing through 4 non-coplanar points.
// Subtracts the first equation from the other 3 to get a 3x3 linear system.
func sphereFrom4Points(p [4]r3.Vector) (center r3.Vector, radius float64, ok bool) {
	sq := func(v r3.Vector) float64 {
		return v.X*v.X + v.Y*v.Y + v.Z*v.Z
	}
	sq0 := sq(p[0])

	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, 0, 2*(p[i+1].X-p[0].X))
		a.Set(i, 1, 2*(p[i+1].Y-p[0].Y))
		a.Set(i, 2, 2*(p[i+1].Z-p[0].Z))
		b.SetVec(i, sq(p[i+1])-sq0)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return r3.Vector{}, 0, false
	}

	center = r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	return center, center.Sub(p[0]).Norm(), true
}

// estimateVisibleFraction estimates what fraction of the sphere surface is observed,
// checking ~200 golden-spiral directions for a nearby point.
func estimateVisibleFraction(points []r3.Vector, center r3.Vector) float64 {
	const numDirections = 200
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	cosThreshold := math.Cos(math.Pi / (math.Sqrt(float64(numDirections)) * 1.5))

	dirs := make([]r3.Vector, 0, len(points))
	for _, pt := range points {
		d := pt.Sub(center)
		if n := d.Norm(); n > 1e-9 {
			dirs = append(dirs, d.Mul(1.0/n))
		}
	}

	covered := 0
	for i := 0; i < numDirections; i++ {
		t := float64(i) / float64(numDirections-1)
		phi := math.Acos(1 - 2*t)
		theta := goldenAngle * float64(i)
		dir := r3.Vector{
			X: math.Sin(phi) * math.Cos(theta),
			Y: math.Sin(phi) * math.Sin(theta),
			Z: math.Cos(phi),
		}
		for _, d := range dirs {
			if d.Dot(dir) >= cosThreshold {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(numDirections)
}

func sampleFourDistinct(rng *rand.Rand, n int) [4]int {
	var idx [4]int
	for i := 0; i < 4; i++ {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
	return idx
}
