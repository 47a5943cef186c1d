package roieval

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
)

// GroundTruthIndex is the read side of a ground-truth snapshot.
type GroundTruthIndex interface {
	Lookup(k octomap.Key) (uint32, bool)
	Centroids() map[uint32]r3.Vector
	Len() int
}

// Match ties one cluster to a ground-truth object. Object is zero when the
// cluster matched nothing.
type Match struct {
	Cluster int
	Object  uint32
	// Overlap is the number of cluster voxels inside the object.
	Overlap int
	// Distance is the centroid distance in voxels for matches without overlap.
	Distance float64
}

// MatchClusters assigns each cluster to the object it overlaps most. Clusters
// without overlap fall back to the nearest object centroid closer than
// maxDist voxels. Ties go to the lower object index.
func MatchClusters(clusters []Cluster, gt GroundTruthIndex, maxDist float64) []Match {
	centroids := gt.Centroids()
	indices := make([]uint32, 0, len(centroids))
	for idx := range centroids {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	matches := make([]Match, len(clusters))
	for ci, c := range clusters {
		matches[ci] = Match{Cluster: ci}
		counts := make(map[uint32]int)
		for _, k := range c.Keys {
			if idx, ok := gt.Lookup(k); ok {
				counts[idx]++
			}
		}
		best, bestCount := uint32(0), 0
		for _, idx := range indices {
			if counts[idx] > bestCount {
				best, bestCount = idx, counts[idx]
			}
		}
		if bestCount > 0 {
			matches[ci].Object = best
			matches[ci].Overlap = bestCount
			continue
		}
		if idx, dist, ok := matchByDistance(c.Centroid, indices, centroids, maxDist); ok {
			matches[ci].Object = idx
			matches[ci].Distance = dist
		}
	}
	return matches
}

// matchByDistance finds the object centroid nearest to center within maxDist.
func matchByDistance(center r3.Vector, indices []uint32, centroids map[uint32]r3.Vector, maxDist float64) (uint32, float64, bool) {
	bestIdx := uint32(0)
	bestDist := math.MaxFloat64

	for _, idx := range indices {
		dist := center.Sub(centroids[idx]).Norm()
		if dist < maxDist && dist < bestDist {
			bestDist = dist
			bestIdx = idx
		}
	}

	return bestIdx, bestDist, bestIdx != 0
}

// Detection counts live ROI voxels against ground truth.
type Detection struct {
	// Objects is the number of distinct ground-truth objects matched by a cluster.
	Objects        int
	TruePositives  int
	FalsePositives int
	GroundTruth    int
}

// Score compares ROI keys and their clusters with ground truth.
func Score(keys []octomap.Key, clusters []Cluster, gt GroundTruthIndex, maxDist float64) Detection {
	d := Detection{GroundTruth: gt.Len()}
	for _, k := range dedupe(keys) {
		if _, ok := gt.Lookup(k); ok {
			d.TruePositives++
		} else {
			d.FalsePositives++
		}
	}
	seen := make(map[uint32]bool)
	for _, m := range MatchClusters(clusters, gt, maxDist) {
		if m.Object != 0 && !seen[m.Object] {
			seen[m.Object] = true
			d.Objects++
		}
	}
	return d
}
