// Package roieval groups ROI voxels into clusters, scores them against ground
// truth and runs timed evaluation episodes.
package roieval

import (
	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
)

// Cluster is a connected group of ROI voxels.
type Cluster struct {
	// Keys are sorted lexicographically.
	Keys []octomap.Key
	// Centroid is the mean key, in key units.
	Centroid r3.Vector
}

// Size returns the number of voxels in the cluster.
func (c Cluster) Size() int {
	return len(c.Keys)
}

// Center returns the centroid in meters at the given resolution.
func (c Cluster) Center(resolution float64) r3.Vector {
	return c.Centroid.Add(r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}).Mul(resolution)
}

// FindClusters labels connected components of keys under nb. Input order and
// duplicates do not matter; clusters are returned ordered by their smallest
// key. Clusters smaller than minSize are dropped.
func FindClusters(keys []octomap.Key, nb octomap.Neighborhood, minSize int) []Cluster {
	sorted := dedupe(keys)
	if len(sorted) == 0 {
		return nil
	}

	pos := make(map[octomap.Key]int32, len(sorted))
	for i, k := range sorted {
		pos[k] = int32(i)
	}
	uf := newUnionFind(len(sorted))
	offsets := nb.Offsets()
	for i, k := range sorted {
		for _, off := range offsets {
			if j, ok := pos[k.Add(off)]; ok {
				uf.union(int32(i), j)
			}
		}
	}

	label := make(map[int32]int)
	var clusters []Cluster
	for i, k := range sorted {
		root := uf.find(int32(i))
		c, ok := label[root]
		if !ok {
			c = len(clusters)
			label[root] = c
			clusters = append(clusters, Cluster{})
		}
		clusters[c].Keys = append(clusters[c].Keys, k)
		clusters[c].Centroid = clusters[c].Centroid.Add(k.Vector())
	}

	out := clusters[:0]
	for _, c := range clusters {
		if len(c.Keys) < minSize {
			continue
		}
		c.Centroid = c.Centroid.Mul(1 / float64(len(c.Keys)))
		out = append(out, c)
	}
	return out
}

// Summary is the cluster count and voxel count of a ROI set.
type Summary struct {
	Clusters int
	Keys     int
}

// Summarize clusters keys and returns the counts. Keys counts every distinct
// ROI voxel, including those in clusters dropped by minSize.
func Summarize(keys []octomap.Key, nb octomap.Neighborhood, minSize int) (Summary, []Cluster) {
	clusters := FindClusters(keys, nb, minSize)
	return Summary{Clusters: len(clusters), Keys: len(dedupe(keys))}, clusters
}

func dedupe(keys []octomap.Key) []octomap.Key {
	return octomap.SortedKeys(octomap.NewKeySet(keys...))
}

type unionFind struct {
	parent []int32
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int32, n), rank: make([]uint8, n)}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

func (uf *unionFind) find(i int32) int32 {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
