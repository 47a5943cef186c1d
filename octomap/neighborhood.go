package octomap

import "fmt"

// Neighborhood selects which voxels count as adjacent.
type Neighborhood int

const (
	// Face6 connects voxels sharing a face.
	Face6 Neighborhood = iota
	// Edge18 connects voxels sharing a face or an edge.
	Edge18
	// Vertex26 connects voxels sharing a face, an edge or a corner.
	Vertex26
)

func (n Neighborhood) String() string {
	switch n {
	case Face6:
		return "face6"
	case Edge18:
		return "edge18"
	case Vertex26:
		return "vertex26"
	default:
		return "unknown"
	}
}

var neighborOffsets = map[Neighborhood][]Key{}

func init() {
	for _, nb := range []Neighborhood{Face6, Edge18, Vertex26} {
		for x := int32(-1); x <= 1; x++ {
			for y := int32(-1); y <= 1; y++ {
				for z := int32(-1); z <= 1; z++ {
					nonZero := 0
					for _, c := range []int32{x, y, z} {
						if c != 0 {
							nonZero++
						}
					}
					if nonZero == 0 {
						continue
					}
					if (nb == Face6 && nonZero > 1) || (nb == Edge18 && nonZero > 2) {
						continue
					}
					neighborOffsets[nb] = append(neighborOffsets[nb], Key{X: x, Y: y, Z: z})
				}
			}
		}
	}
}

// ParseNeighborhood converts a raw integer into a Neighborhood.
func ParseNeighborhood(v int) (Neighborhood, error) {
	n := Neighborhood(v)
	if _, ok := neighborOffsets[n]; !ok {
		return 0, fmt.Errorf("invalid neighborhood %d", v)
	}
	return n, nil
}

// Offsets returns the key offsets of all neighbors of the origin voxel.
// The returned slice must not be modified.
func (n Neighborhood) Offsets() []Key {
	return neighborOffsets[n]
}

// Neighbors returns the keys adjacent to k.
func (n Neighborhood) Neighbors(k Key) []Key {
	offsets := n.Offsets()
	out := make([]Key, len(offsets))
	for i, o := range offsets {
		out[i] = k.Add(o)
	}
	return out
}
