package octomap

import (
	"sort"

	"github.com/golang/geo/r3"
)

// IndexedTree maps each occupied voxel to the positive index of the object
// owning it. When two objects claim the same voxel the later insertion wins.
type IndexedTree struct {
	resolution float64
	index      map[Key]uint32
	counts     map[uint32]int
	collisions int
}

// NewIndexedTree returns an empty tree at the given resolution.
func NewIndexedTree(resolution float64) *IndexedTree {
	return &IndexedTree{
		resolution: resolution,
		index:      make(map[Key]uint32),
		counts:     make(map[uint32]int),
	}
}

// Resolution returns the voxel edge length.
func (t *IndexedTree) Resolution() float64 {
	return t.resolution
}

// Insert tags k with the object index idx. It reports whether a voxel of a
// different object was overwritten.
func (t *IndexedTree) Insert(k Key, idx uint32) (bool, error) {
	if idx == 0 {
		return false, ErrZeroIndex
	}
	prev, ok := t.index[k]
	if ok && prev == idx {
		return false, nil
	}
	if ok {
		t.collisions++
		t.counts[prev]--
		if t.counts[prev] == 0 {
			delete(t.counts, prev)
		}
	}
	t.index[k] = idx
	t.counts[idx]++
	return ok, nil
}

// Index returns the object index stored at k.
func (t *IndexedTree) Index(k Key) (uint32, bool) {
	idx, ok := t.index[k]
	return idx, ok
}

// Len returns the number of occupied voxels.
func (t *IndexedTree) Len() int {
	return len(t.index)
}

// Collisions returns how many insertions overwrote another object's voxel.
func (t *IndexedTree) Collisions() int {
	return t.collisions
}

// Objects returns the distinct object indices present, ascending.
func (t *IndexedTree) Objects() []uint32 {
	out := make([]uint32, 0, len(t.counts))
	for idx := range t.counts {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ObjectSize returns the number of voxels currently owned by idx.
func (t *IndexedTree) ObjectSize(idx uint32) int {
	return t.counts[idx]
}

// Each calls fn for every voxel until fn returns false.
func (t *IndexedTree) Each(fn func(k Key, idx uint32) bool) {
	for k, idx := range t.index {
		if !fn(k, idx) {
			return
		}
	}
}

// Centroids returns the mean key position of every object, in key units.
func (t *IndexedTree) Centroids() map[uint32]r3.Vector {
	sums := make(map[uint32]r3.Vector, len(t.counts))
	for k, idx := range t.index {
		sums[idx] = sums[idx].Add(k.Vector())
	}
	for idx, sum := range sums {
		sums[idx] = sum.Mul(1.0 / float64(t.counts[idx]))
	}
	return sums
}
