package octomap

import (
	"sync"

	"github.com/golang/geo/r3"
)

// Scan is one sensor update in the world frame.
type Scan struct {
	Origin r3.Vector
	// Points are all sensor returns.
	Points []r3.Vector
	// ROIPoints are returns classified as region-of-interest evidence. They are
	// integrated as occupied voxels too and need not repeat entries of Points.
	ROIPoints []r3.Vector
}

// ScanStats summarizes the voxels touched by one InsertScan call.
type ScanStats struct {
	Free     int
	Occupied int
	ROI      int
}

// Stats summarizes the whole workspace.
type Stats struct {
	Free     int
	Occupied int
	ROI      int
	Updates  uint64
}

// Reader is a read-only view of the workspace, valid only inside Workspace.Read.
type Reader interface {
	Resolution() float64
	Occupancy(k Key) Occupancy
	IsROI(k Key) bool
	NumROI() int
	// ROIKeys returns the ROI voxels in lexicographic order.
	ROIKeys() []Key
	// Each visits every known voxel until fn returns false.
	Each(fn func(k Key, occ Occupancy) bool)
}

// Workspace is the planner's live map: occupancy plus ROI evidence. All
// access goes through a single RWMutex, so a reader never observes a scan
// half applied.
type Workspace struct {
	mu            sync.RWMutex
	tree          *OccupancyTree
	roi           KeySet
	updates       uint64
	scanSinceMove bool
}

// NewWorkspace returns an empty workspace at the given resolution.
func NewWorkspace(resolution float64) *Workspace {
	return &Workspace{
		tree: NewOccupancyTree(resolution),
		roi:  NewKeySet(),
	}
}

// Resolution returns the voxel edge length.
func (w *Workspace) Resolution() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tree.Resolution()
}

// InsertScan integrates a scan. Returns closer than minRange are ignored;
// returns beyond maxRange (when maxRange > 0) only clear space up to maxRange.
// Within one scan a voxel seen as occupied is never also marked free.
func (w *Workspace) InsertScan(scan Scan, minRange, maxRange float64) ScanStats {
	res := w.Resolution()
	free := make(map[Key]struct{})
	occupied := make(map[Key]struct{})
	roi := make(map[Key]struct{})

	integrate := func(pt r3.Vector, isROI bool) {
		delta := pt.Sub(scan.Origin)
		dist := delta.Norm()
		if dist < minRange {
			return
		}
		if maxRange > 0 && dist > maxRange {
			end := scan.Origin.Add(delta.Mul(maxRange / dist))
			for _, k := range ComputeRayKeys(scan.Origin, end, res) {
				free[k] = struct{}{}
			}
			return
		}
		for _, k := range ComputeRayKeys(scan.Origin, pt, res) {
			free[k] = struct{}{}
		}
		end := CoordToKey(pt, res)
		occupied[end] = struct{}{}
		if isROI {
			roi[end] = struct{}{}
		}
	}
	for _, pt := range scan.Points {
		integrate(pt, false)
	}
	for _, pt := range scan.ROIPoints {
		integrate(pt, true)
	}
	for k := range occupied {
		delete(free, k)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range free {
		if w.tree.Update(k, false) == Free {
			w.roi.Remove(k)
		}
	}
	for k := range occupied {
		w.tree.Update(k, true)
	}
	for k := range roi {
		w.roi.Add(k)
	}
	w.updates++
	w.scanSinceMove = true

	return ScanStats{Free: len(free), Occupied: len(occupied), ROI: len(roi)}
}

// Reset clears all occupancy and ROI evidence.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree.Clear()
	w.roi.Clear()
	w.updates++
	w.scanSinceMove = false
}

// MarkMoved records that the sensor moved; ScanSinceMove reports false until
// the next InsertScan.
func (w *Workspace) MarkMoved() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scanSinceMove = false
}

// ScanSinceMove reports whether a scan landed after the last MarkMoved.
func (w *Workspace) ScanSinceMove() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.scanSinceMove
}

// Updates returns a counter bumped by every mutation.
func (w *Workspace) Updates() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updates
}

// Read runs fn with the read lock held.
func (w *Workspace) Read(fn func(r Reader)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(workspaceView{w})
}

// ROIKeys returns a sorted copy of the ROI voxels.
func (w *Workspace) ROIKeys() []Key {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return SortedKeys(w.roi)
}

// Stats returns voxel counts for the whole workspace.
func (w *Workspace) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Free:     w.tree.Count(Free),
		Occupied: w.tree.Count(Occupied),
		ROI:      w.roi.Cardinality(),
		Updates:  w.updates,
	}
}

type workspaceView struct {
	w *Workspace
}

func (v workspaceView) Resolution() float64       { return v.w.tree.Resolution() }
func (v workspaceView) Occupancy(k Key) Occupancy { return v.w.tree.Get(k) }
func (v workspaceView) IsROI(k Key) bool          { return v.w.roi.Contains(k) }
func (v workspaceView) NumROI() int               { return v.w.roi.Cardinality() }
func (v workspaceView) ROIKeys() []Key            { return SortedKeys(v.w.roi) }

func (v workspaceView) Each(fn func(k Key, occ Occupancy) bool) {
	v.w.tree.Each(fn)
}
