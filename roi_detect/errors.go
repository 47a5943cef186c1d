package roidetect

import "errors"

var (
	// ErrTooFewPoints is returned when a point cloud has insufficient points for an operation.
	ErrTooFewPoints = errors.New("too few points for operation")

	// ErrNoSphereFound is returned when RANSAC fails to fit a sphere to the given points.
	ErrNoSphereFound = errors.New("no valid sphere found")

	// ErrLowInlierFraction is returned when too few points agree with the fitted sphere model.
	ErrLowInlierFraction = errors.New("inlier fraction below threshold")

	// ErrNilPointCloud is returned when a nil point cloud is passed.
	ErrNilPointCloud = errors.New("point cloud is nil")
)
