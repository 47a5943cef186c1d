package gtloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/biotinker/roiplanner/octomap"
	"go.viam.com/rdk/pointcloud"
)

// mmPerMeter converts rdk point cloud units to tree units.
const mmPerMeter = 1000.0

// RawObject is one object's voxels as stored, in its own tree frame.
type RawObject struct {
	Resolution float64
	Origin     octomap.Key
	Keys       []octomap.Key
}

// ObjectSource supplies the stored voxel set of fruit i of a plant model.
// resolution is a hint; sources may return objects stored at another resolution.
type ObjectSource interface {
	LoadObject(model string, fruit int, resolution float64) (RawObject, error)
}

// FileSource loads objects from a directory of tree files named
// <model>_fruit_<i>_<resolution>.ot, falling back to any stored resolution of
// the same object and then to a point cloud <model>_fruit_<i>.pcd in millimeters.
type FileSource struct {
	Dir string
}

// LoadObject implements ObjectSource.
func (s FileSource) LoadObject(model string, fruit int, resolution float64) (RawObject, error) {
	base := fmt.Sprintf("%s_fruit_%d", model, fruit)

	exact := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.ot", base, formatResolution(resolution)))
	candidates := []string{exact}
	others, err := filepath.Glob(filepath.Join(s.Dir, base+"_*.ot"))
	if err != nil {
		return RawObject{}, fmt.Errorf("glob %s: %w", base, err)
	}
	sort.Strings(others)
	for _, o := range others {
		if o != exact {
			candidates = append(candidates, o)
		}
	}
	for _, path := range candidates {
		obj, err := readTreeObject(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return obj, err
	}

	pcdPath := filepath.Join(s.Dir, base+".pcd")
	if _, err := os.Stat(pcdPath); err == nil {
		return readCloudObject(pcdPath, resolution)
	}
	return RawObject{}, fmt.Errorf("%s in %s: %w", base, s.Dir, ErrNotFound)
}

func formatResolution(res float64) string {
	return strconv.FormatFloat(res, 'f', -1, 64)
}

func readTreeObject(path string) (RawObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawObject{}, err
	}
	defer f.Close()

	tree, origin, err := octomap.ReadOccupancyTree(f)
	if err != nil {
		return RawObject{}, fmt.Errorf("read %s: %w", path, err)
	}
	obj := RawObject{Resolution: tree.Resolution(), Origin: origin}
	tree.Each(func(k octomap.Key, occ octomap.Occupancy) bool {
		if occ == octomap.Occupied {
			obj.Keys = append(obj.Keys, k)
		}
		return true
	})
	octomap.SortKeys(obj.Keys)
	return obj, nil
}

// readCloudObject voxelizes an object point cloud directly at the target resolution.
func readCloudObject(path string, resolution float64) (RawObject, error) {
	cloud, err := pointcloud.NewFromFile(path, "")
	if err != nil {
		return RawObject{}, fmt.Errorf("read %s: %w", path, err)
	}
	keys := octomap.NewKeySet()
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		keys.Add(octomap.CoordToKey(p.Mul(1/mmPerMeter), resolution))
		return true
	})
	if keys.Cardinality() == 0 {
		return RawObject{}, fmt.Errorf("%s holds no points: %w", path, ErrNotFound)
	}
	return RawObject{Resolution: resolution, Keys: octomap.SortedKeys(keys)}, nil
}

// WriteObject stores obj as a tree file in the directory layout FileSource reads.
func (s FileSource) WriteObject(model string, fruit int, obj RawObject) (string, error) {
	tree := octomap.NewOccupancyTree(obj.Resolution)
	for _, k := range obj.Keys {
		tree.Mark(k, octomap.Occupied)
	}
	name := fmt.Sprintf("%s_fruit_%d_%s.ot", model, fruit, formatResolution(obj.Resolution))
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := octomap.WriteOccupancyTree(f, tree, obj.Origin); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// MemorySource serves objects from memory, keyed by model name.
type MemorySource map[string][]RawObject

// LoadObject implements ObjectSource.
func (m MemorySource) LoadObject(model string, fruit int, _ float64) (RawObject, error) {
	objs, ok := m[model]
	if !ok || fruit < 0 || fruit >= len(objs) {
		return RawObject{}, fmt.Errorf("%s fruit %d: %w", model, fruit, ErrNotFound)
	}
	return objs[fruit], nil
}

// ParseObjectName splits a tree file name of the form <model>_fruit_<i>_<res>.ot.
func ParseObjectName(name string) (model string, fruit int, resolution float64, err error) {
	base := strings.TrimSuffix(filepath.Base(name), ".ot")
	idx := strings.LastIndex(base, "_fruit_")
	if idx < 0 {
		return "", 0, 0, fmt.Errorf("%q is not an object tree name", name)
	}
	model = base[:idx]
	parts := strings.SplitN(base[idx+len("_fruit_"):], "_", 2)
	if len(parts) != 2 {
		return "", 0, 0, fmt.Errorf("%q is missing a resolution", name)
	}
	if fruit, err = strconv.Atoi(parts[0]); err != nil {
		return "", 0, 0, fmt.Errorf("%q: fruit index: %w", name, err)
	}
	if resolution, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return "", 0, 0, fmt.Errorf("%q: resolution: %w", name, err)
	}
	return model, fruit, resolution, nil
}
