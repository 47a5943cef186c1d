package viewplanner

import (
	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
)

// voxelMap is an unlocked octomap.Reader that tests fill voxel by voxel.
type voxelMap struct {
	tree *octomap.OccupancyTree
	roi  octomap.KeySet
}

func newVoxelMap(resolution float64) *voxelMap {
	return &voxelMap{tree: octomap.NewOccupancyTree(resolution), roi: octomap.NewKeySet()}
}

func (m *voxelMap) Resolution() float64                       { return m.tree.Resolution() }
func (m *voxelMap) Occupancy(k octomap.Key) octomap.Occupancy { return m.tree.Get(k) }
func (m *voxelMap) IsROI(k octomap.Key) bool                  { return m.roi.Contains(k) }
func (m *voxelMap) NumROI() int                               { return m.roi.Cardinality() }
func (m *voxelMap) ROIKeys() []octomap.Key                    { return octomap.SortedKeys(m.roi) }

func (m *voxelMap) Each(fn func(k octomap.Key, occ octomap.Occupancy) bool) {
	m.tree.Each(fn)
}

// markBlock marks an n^3 block from corner as occupied ROI.
func (m *voxelMap) markBlock(corner octomap.Key, n int32) {
	for _, k := range blockKeys(corner, n) {
		m.tree.Mark(k, octomap.Occupied)
		m.roi.Add(k)
	}
}

func blockKeys(corner octomap.Key, n int32) []octomap.Key {
	keys := make([]octomap.Key, 0, n*n*n)
	for x := int32(0); x < n; x++ {
		for y := int32(0); y < n; y++ {
			for z := int32(0); z < n; z++ {
				keys = append(keys, corner.Add(octomap.Key{X: x, Y: y, Z: z}))
			}
		}
	}
	return keys
}

// scanROIBlock inserts an n^3 ROI block into ws as one scan from the origin.
func scanROIBlock(ws *octomap.Workspace, corner octomap.Key, n int32) {
	keys := blockKeys(corner, n)
	pts := make([]r3.Vector, len(keys))
	for i, k := range keys {
		pts[i] = k.Center(ws.Resolution())
	}
	ws.InsertScan(octomap.Scan{ROIPoints: pts}, 0, 0)
}
