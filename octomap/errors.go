package octomap

import "errors"

var (
	// ErrDeserializationFailed is returned when a tree stream is truncated or corrupt.
	ErrDeserializationFailed = errors.New("tree deserialization failed")

	// ErrWrongTreeType is returned when a well-formed tree stream holds a different tree type.
	ErrWrongTreeType = errors.New("wrong octree type")

	// ErrResolutionMismatch is returned when a loaded tree does not match the workspace resolution.
	ErrResolutionMismatch = errors.New("tree resolution does not match workspace")

	// ErrZeroIndex is returned when an object index of zero is inserted into an IndexedTree.
	ErrZeroIndex = errors.New("object index must be positive")
)
