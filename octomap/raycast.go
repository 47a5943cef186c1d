package octomap

import (
	"math"

	"github.com/golang/geo/r3"
)

// TraverseRay visits, in order, every voxel pierced by the ray starting at
// origin along dir, up to maxRange. fn receives each key and the distance at
// which the ray enters that voxel (0 for the origin voxel); returning false
// stops the walk.
func TraverseRay(origin, dir r3.Vector, maxRange, resolution float64, fn func(k Key, dist float64) bool) {
	norm := dir.Norm()
	if norm < 1e-12 || maxRange <= 0 || resolution <= 0 {
		return
	}
	dir = dir.Mul(1.0 / norm)

	start := CoordToKey(origin, resolution)
	cur := [3]int32{start.X, start.Y, start.Z}
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}

	var step [3]int32
	var tMax, tDelta [3]float64
	for i := 0; i < 3; i++ {
		switch {
		case d[i] > 0:
			step[i] = 1
			tMax[i] = ((float64(cur[i])+1)*resolution - o[i]) / d[i]
			tDelta[i] = resolution / d[i]
		case d[i] < 0:
			step[i] = -1
			tMax[i] = (float64(cur[i])*resolution - o[i]) / d[i]
			tDelta[i] = -resolution / d[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	dist := 0.0
	for dist <= maxRange {
		if !fn(Key{X: cur[0], Y: cur[1], Z: cur[2]}, dist) {
			return
		}
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		dist = tMax[axis]
		cur[axis] += step[axis]
		tMax[axis] += tDelta[axis]
	}
}

// ComputeRayKeys returns the voxels traversed from origin to end, excluding
// the voxel containing end.
func ComputeRayKeys(origin, end r3.Vector, resolution float64) []Key {
	endKey := CoordToKey(end, resolution)
	length := end.Sub(origin).Norm()
	var keys []Key
	TraverseRay(origin, end.Sub(origin), length, resolution, func(k Key, _ float64) bool {
		if k == endKey {
			return false
		}
		keys = append(keys, k)
		return true
	})
	return keys
}
