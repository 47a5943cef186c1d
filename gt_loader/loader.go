// Package gtloader builds the ground-truth object index for a scenario: every
// fruit's reference voxels, placed at its plant and merged into one tree
// tagged by object index.
package gtloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
	"go.viam.com/rdk/logging"
)

// ObjectVoxelSet is one fruit's voxels translated into the global frame.
type ObjectVoxelSet struct {
	Plant string
	// Index is the object's tag in the indexed tree, starting at 1.
	Index      uint32
	Resolution float64
	keys       []octomap.Key
}

// Keys returns a sorted copy of the object's global keys.
func (o ObjectVoxelSet) Keys() []octomap.Key {
	out := make([]octomap.Key, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of voxels in the object.
func (o ObjectVoxelSet) Len() int {
	return len(o.keys)
}

// Centroid returns the mean voxel center in meters.
func (o ObjectVoxelSet) Centroid() r3.Vector {
	var sum r3.Vector
	for _, k := range o.keys {
		sum = sum.Add(k.Center(o.Resolution))
	}
	if len(o.keys) == 0 {
		return sum
	}
	return sum.Mul(1 / float64(len(o.keys)))
}

// Tree returns a fresh occupancy tree holding only this object.
func (o ObjectVoxelSet) Tree() *octomap.OccupancyTree {
	t := octomap.NewOccupancyTree(o.Resolution)
	for _, k := range o.keys {
		t.Mark(k, octomap.Occupied)
	}
	return t
}

// Snapshot is an immutable ground-truth index built for one scenario placement.
type Snapshot struct {
	scenario   Scenario
	resolution float64
	indexed    *octomap.IndexedTree
	objects    []ObjectVoxelSet
	byPlant    map[string][]int
}

// Scenario returns the scenario, with the placement the snapshot was built for.
func (s *Snapshot) Scenario() Scenario { return s.scenario }

// Resolution returns the voxel edge length of the snapshot.
func (s *Snapshot) Resolution() float64 { return s.resolution }

// Len returns the number of voxels in the indexed tree.
func (s *Snapshot) Len() int { return s.indexed.Len() }

// NumObjects returns the number of loaded objects.
func (s *Snapshot) NumObjects() int { return len(s.objects) }

// Lookup returns the object index owning k.
func (s *Snapshot) Lookup(k octomap.Key) (uint32, bool) { return s.indexed.Index(k) }

// Indices returns the object indices present in the indexed tree, ascending.
func (s *Snapshot) Indices() []uint32 { return s.indexed.Objects() }

// Collisions returns how many voxels were claimed by more than one object.
func (s *Snapshot) Collisions() int { return s.indexed.Collisions() }

// ObjectSize returns the voxel count the indexed tree attributes to idx.
func (s *Snapshot) ObjectSize(idx uint32) int { return s.indexed.ObjectSize(idx) }

// Centroids returns the mean key of every object in the indexed tree.
func (s *Snapshot) Centroids() map[uint32]r3.Vector { return s.indexed.Centroids() }

// Each visits every indexed voxel until fn returns false.
func (s *Snapshot) Each(fn func(k octomap.Key, idx uint32) bool) { s.indexed.Each(fn) }

// WriteObjects writes every object as its own OcTree file in the global
// frame, named <plant>_object_<index>.ot, and returns the paths written.
func (s *Snapshot) WriteObjects(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	paths := make([]string, 0, len(s.objects))
	for _, obj := range s.objects {
		path := filepath.Join(dir, fmt.Sprintf("%s_object_%d.ot", obj.Plant, obj.Index))
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		if err := octomap.WriteOccupancyTree(f, obj.Tree(), octomap.Key{}); err != nil {
			f.Close()
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteIndexed writes the indexed tree to w.
func (s *Snapshot) WriteIndexed(w io.Writer) error {
	return octomap.WriteIndexedTree(w, s.indexed)
}

// Objects returns the translated objects in index order.
func (s *Snapshot) Objects() []ObjectVoxelSet {
	out := make([]ObjectVoxelSet, len(s.objects))
	copy(out, s.objects)
	return out
}

// PlantObjects returns the objects of one plant.
func (s *Snapshot) PlantObjects(name string) ([]ObjectVoxelSet, error) {
	idx, ok := s.byPlant[name]
	if !ok {
		return nil, fmt.Errorf("plant %q: %w", name, ErrNotFound)
	}
	out := make([]ObjectVoxelSet, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.objects[i])
	}
	return out, nil
}

// Indexer loads the objects of a scenario and merges them into a Snapshot.
type Indexer struct {
	source     ObjectSource
	resolution float64
	logger     logging.Logger
}

// NewIndexer returns an Indexer building snapshots at the given resolution.
func NewIndexer(source ObjectSource, resolution float64, logger logging.Logger) *Indexer {
	return &Indexer{source: source, resolution: resolution, logger: logger}
}

// Resolution returns the target resolution.
func (ix *Indexer) Resolution() float64 { return ix.resolution }

// Build loads every fruit of every plant in scenario order, translates it to
// its plant's position and indexes it. Indices are assigned 1, 2, 3, ... in
// plant-then-fruit order.
func (ix *Indexer) Build(ctx context.Context, scenario Scenario) (*Snapshot, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		scenario:   scenario,
		resolution: ix.resolution,
		indexed:    octomap.NewIndexedTree(ix.resolution),
		byPlant:    make(map[string][]int, len(scenario.Plants)),
	}

	models := make(map[string][]RawObject)
	nextIndex := uint32(1)
	for _, plant := range scenario.Plants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fruits, err := ix.loadModel(models, plant)
		if err != nil {
			return nil, fmt.Errorf("plant %q: %w", plant.Name, err)
		}

		anchor := octomap.CoordToKey(plant.Point(), ix.resolution)
		snap.byPlant[plant.Name] = nil
		for _, fruit := range fruits {
			tr := octomap.KeyTranslation{OriginLocal: fruit.Origin, OriginGlobal: anchor}
			obj := ObjectVoxelSet{
				Plant:      plant.Name,
				Index:      nextIndex,
				Resolution: ix.resolution,
				keys:       make([]octomap.Key, 0, len(fruit.Keys)),
			}
			for _, k := range fruit.Keys {
				g := tr.Apply(k)
				if _, err := snap.indexed.Insert(g, obj.Index); err != nil {
					return nil, err
				}
				obj.keys = append(obj.keys, g)
			}
			snap.byPlant[plant.Name] = append(snap.byPlant[plant.Name], len(snap.objects))
			snap.objects = append(snap.objects, obj)
			nextIndex++
		}
		ix.logger.Debugf("Indexed plant %s (%s): %d fruits at %v", plant.Name, plant.Model, len(fruits), plant.Point())
	}

	if c := snap.indexed.Collisions(); c > 0 {
		ix.logger.Warnf("Ground truth: %d voxels claimed by more than one fruit; later fruits kept them", c)
	}
	ix.logger.Infof("Ground truth %q: %d objects, %d voxels", scenario.Name, len(snap.objects), snap.indexed.Len())
	return snap, nil
}

// loadModel returns the rescaled fruits of a plant's model, loading each model once.
func (ix *Indexer) loadModel(cache map[string][]RawObject, plant Plant) ([]RawObject, error) {
	fruits, ok := cache[plant.Model]
	if ok && len(fruits) >= plant.NumFruits {
		return fruits[:plant.NumFruits], nil
	}
	fruits = make([]RawObject, 0, plant.NumFruits)
	for i := 0; i < plant.NumFruits; i++ {
		raw, err := ix.source.LoadObject(plant.Model, i, ix.resolution)
		if err != nil {
			return nil, fmt.Errorf("fruit %d: %w", i, err)
		}
		scaled, err := rescale(raw, ix.resolution)
		if err != nil {
			return nil, fmt.Errorf("fruit %d: %w", i, err)
		}
		fruits = append(fruits, scaled)
	}
	cache[plant.Model] = fruits
	return fruits, nil
}
