package viewplanner

import (
	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
)

// refineViews returns the local perturbations of last: one step along each
// axis of the camera frame, all still looking at last.Target.
func refineViews(r octomap.Reader, last Candidate, step float64, cfg samplerConfig) []Candidate {
	forward := last.Direction.Normalize()
	right := forward.Ortho()
	up := forward.Cross(right)
	offsets := []r3.Vector{
		right.Mul(step), right.Mul(-step),
		up.Mul(step), up.Mul(-step),
		forward.Mul(step), forward.Mul(-step),
	}

	res := r.Resolution()
	out := make([]Candidate, 0, len(offsets))
	for _, off := range offsets {
		origin := last.Origin.Add(off)
		if !cfg.bounds.Empty() && !cfg.bounds.Contains(origin) {
			continue
		}
		if r.Occupancy(octomap.CoordToKey(origin, res)) == octomap.Occupied {
			continue
		}
		dir := last.Target.Sub(origin)
		if dir.Norm() < 1e-9 {
			continue
		}
		out = append(out, Candidate{Origin: origin, Direction: dir.Normalize(), Target: last.Target})
	}
	return out
}

// relativeGain is the improvement of best over current, relative to current.
func relativeGain(current, best float64) float64 {
	if current <= 0 {
		if best > 0 {
			return best
		}
		return 0
	}
	return (best - current) / current
}
