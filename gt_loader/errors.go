package gtloader

import "errors"

var (
	// ErrNotFound is returned when ground-truth data for a plant or model is missing.
	ErrNotFound = errors.New("ground-truth object data not found")

	// ErrIncompatibleResolution is returned when stored and target resolutions
	// are not related by an integer factor.
	ErrIncompatibleResolution = errors.New("incompatible tree resolution")

	// ErrPlacementInfeasible is returned when plant randomization runs out of retries.
	ErrPlacementInfeasible = errors.New("plant placement infeasible")
)
