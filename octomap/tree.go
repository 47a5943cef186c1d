package octomap

// Occupancy is the classified state of a voxel.
type Occupancy uint8

const (
	// Unknown voxels have never been observed.
	Unknown Occupancy = iota
	// Free voxels were traversed by sensor rays.
	Free
	// Occupied voxels contained sensor returns.
	Occupied
)

func (o Occupancy) String() string {
	switch o {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Log-odds update model, matching the usual octomap sensor defaults
// (hit 0.7, miss 0.4, clamping 0.12 / 0.97).
const (
	logOddsHit       = 0.847298
	logOddsMiss      = -0.405465
	logOddsClampMin  = -2.0
	logOddsClampMax  = 3.5
	logOddsThreshold = 0.0
)

// OccupancyTree is a sparse occupancy map keyed by voxel. Voxels absent from
// the map are Unknown.
type OccupancyTree struct {
	resolution float64
	cells      map[Key]float32
}

// NewOccupancyTree returns an empty tree at the given resolution.
func NewOccupancyTree(resolution float64) *OccupancyTree {
	return &OccupancyTree{
		resolution: resolution,
		cells:      make(map[Key]float32),
	}
}

// Resolution returns the voxel edge length.
func (t *OccupancyTree) Resolution() float64 {
	return t.resolution
}

// Len returns the number of known voxels.
func (t *OccupancyTree) Len() int {
	return len(t.cells)
}

// Get returns the classified state of k.
func (t *OccupancyTree) Get(k Key) Occupancy {
	lo, ok := t.cells[k]
	if !ok {
		return Unknown
	}
	if lo > logOddsThreshold {
		return Occupied
	}
	return Free
}

// LogOdds returns the raw log-odds of k and whether it is known.
func (t *OccupancyTree) LogOdds(k Key) (float32, bool) {
	lo, ok := t.cells[k]
	return lo, ok
}

// SetLogOdds overwrites the log-odds of k.
func (t *OccupancyTree) SetLogOdds(k Key, lo float32) {
	t.cells[k] = clampLogOdds(float64(lo))
}

// Update integrates one observation of k.
func (t *OccupancyTree) Update(k Key, occupied bool) Occupancy {
	delta := logOddsMiss
	if occupied {
		delta = logOddsHit
	}
	t.cells[k] = clampLogOdds(float64(t.cells[k]) + delta)
	return t.Get(k)
}

// Mark forces k into the given state with a single observation's confidence.
// Marking Unknown removes the voxel.
func (t *OccupancyTree) Mark(k Key, occ Occupancy) {
	switch occ {
	case Occupied:
		t.cells[k] = logOddsHit
	case Free:
		t.cells[k] = logOddsMiss
	default:
		delete(t.cells, k)
	}
}

// Each calls fn for every known voxel until fn returns false. Iteration order
// is unspecified.
func (t *OccupancyTree) Each(fn func(k Key, occ Occupancy) bool) {
	for k := range t.cells {
		if !fn(k, t.Get(k)) {
			return
		}
	}
}

// Count returns the number of voxels in state occ.
func (t *OccupancyTree) Count(occ Occupancy) int {
	n := 0
	t.Each(func(_ Key, o Occupancy) bool {
		if o == occ {
			n++
		}
		return true
	})
	return n
}

// Clear removes every voxel.
func (t *OccupancyTree) Clear() {
	t.cells = make(map[Key]float32)
}

func clampLogOdds(lo float64) float32 {
	if lo < logOddsClampMin {
		lo = logOddsClampMin
	}
	if lo > logOddsClampMax {
		lo = logOddsClampMax
	}
	return float32(lo)
}
