package gtloader

import (
	"fmt"
	"math"

	"github.com/biotinker/roiplanner/octomap"
)

const (
	ratioTolerance = 1e-6
	maxRatio       = 64
)

// integerRatio returns n when a/b is within tolerance of a positive integer n.
func integerRatio(a, b float64) (int32, bool) {
	r := a / b
	n := math.Round(r)
	if n < 1 || n > maxRatio || math.Abs(r-n) > ratioTolerance*n {
		return 0, false
	}
	return int32(n), true
}

func floorDiv(a, m int32) int32 {
	q := a / m
	if a%m != 0 && (a < 0) != (m < 0) {
		q--
	}
	return q
}

// rescale converts obj to the target resolution. Coarsening merges voxels by
// floor division; refining splits every voxel into n^3 children.
func rescale(obj RawObject, target float64) (RawObject, error) {
	if !(obj.Resolution > 0) || !(target > 0) {
		return RawObject{}, fmt.Errorf("stored %v, target %v: %w", obj.Resolution, target, ErrIncompatibleResolution)
	}
	if n, ok := integerRatio(target, obj.Resolution); ok {
		if n == 1 {
			return obj, nil
		}
		keys := octomap.NewKeySet()
		for _, k := range obj.Keys {
			keys.Add(octomap.Key{X: floorDiv(k.X, n), Y: floorDiv(k.Y, n), Z: floorDiv(k.Z, n)})
		}
		return RawObject{
			Resolution: target,
			Origin:     octomap.Key{X: floorDiv(obj.Origin.X, n), Y: floorDiv(obj.Origin.Y, n), Z: floorDiv(obj.Origin.Z, n)},
			Keys:       octomap.SortedKeys(keys),
		}, nil
	}
	if n, ok := integerRatio(obj.Resolution, target); ok {
		out := RawObject{
			Resolution: target,
			Origin:     octomap.Key{X: obj.Origin.X * n, Y: obj.Origin.Y * n, Z: obj.Origin.Z * n},
			Keys:       make([]octomap.Key, 0, len(obj.Keys)*int(n*n*n)),
		}
		for _, k := range obj.Keys {
			base := octomap.Key{X: k.X * n, Y: k.Y * n, Z: k.Z * n}
			for dx := int32(0); dx < n; dx++ {
				for dy := int32(0); dy < n; dy++ {
					for dz := int32(0); dz < n; dz++ {
						out.Keys = append(out.Keys, base.Add(octomap.Key{X: dx, Y: dy, Z: dz}))
					}
				}
			}
		}
		octomap.SortKeys(out.Keys)
		return out, nil
	}
	return RawObject{}, fmt.Errorf("stored %v, target %v: %w", obj.Resolution, target, ErrIncompatibleResolution)
}
