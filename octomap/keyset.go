package octomap

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// KeySet is an unordered set of voxel keys. It is not safe for concurrent use;
// sets owned by a Workspace are only touched under its lock.
type KeySet = mapset.Set[Key]

// NewKeySet returns a set holding the given keys.
func NewKeySet(keys ...Key) KeySet {
	return mapset.NewThreadUnsafeSet[Key](keys...)
}

// SortedKeys returns the members of s in lexicographic order.
func SortedKeys(s KeySet) []Key {
	if s == nil {
		return nil
	}
	keys := s.ToSlice()
	SortKeys(keys)
	return keys
}
