// Package octomap holds the sparse voxel maps used by the planner: occupancy,
// ROI evidence and the indexed ground-truth tree, plus their file format.
package octomap

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// Key addresses one cubic voxel at a fixed resolution.
type Key struct {
	X, Y, Z int32
}

// CoordToKey returns the key of the voxel containing pt.
func CoordToKey(pt r3.Vector, resolution float64) Key {
	return Key{
		X: int32(math.Floor(pt.X / resolution)),
		Y: int32(math.Floor(pt.Y / resolution)),
		Z: int32(math.Floor(pt.Z / resolution)),
	}
}

// Center returns the world coordinate of the voxel center.
func (k Key) Center(resolution float64) r3.Vector {
	return r3.Vector{
		X: (float64(k.X) + 0.5) * resolution,
		Y: (float64(k.Y) + 0.5) * resolution,
		Z: (float64(k.Z) + 0.5) * resolution,
	}
}

// Add returns the per-axis sum of two keys.
func (k Key) Add(o Key) Key {
	return Key{X: k.X + o.X, Y: k.Y + o.Y, Z: k.Z + o.Z}
}

// Sub returns the per-axis difference of two keys.
func (k Key) Sub(o Key) Key {
	return Key{X: k.X - o.X, Y: k.Y - o.Y, Z: k.Z - o.Z}
}

// Less orders keys lexicographically by X, Y, Z.
func (k Key) Less(o Key) bool {
	if k.X != o.X {
		return k.X < o.X
	}
	if k.Y != o.Y {
		return k.Y < o.Y
	}
	return k.Z < o.Z
}

// Vector returns the key as a float vector in key units.
func (k Key) Vector() r3.Vector {
	return r3.Vector{X: float64(k.X), Y: float64(k.Y), Z: float64(k.Z)}
}

// SortKeys sorts keys in place in lexicographic order.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// KeyTranslation maps keys from a local tree frame into a shared global frame:
// global = local - OriginLocal + OriginGlobal.
type KeyTranslation struct {
	OriginLocal  Key
	OriginGlobal Key
}

// Apply translates a local key into the global frame.
func (t KeyTranslation) Apply(local Key) Key {
	return local.Sub(t.OriginLocal).Add(t.OriginGlobal)
}

// Inverse returns the translation from the global frame back to the local one.
func (t KeyTranslation) Inverse() KeyTranslation {
	return KeyTranslation{OriginLocal: t.OriginGlobal, OriginGlobal: t.OriginLocal}
}
