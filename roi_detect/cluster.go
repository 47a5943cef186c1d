package roidetect

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/vision/segmentation"
)

// radiusClustering performs radius-based nearest-neighbor clustering on a point cloud.
func radiusClustering(cloud pointcloud.PointCloud, radiusMm float64, minSize int) ([]pointcloud.PointCloud, error) {
	if cloud.Size() == 0 {
		return nil, nil
	}

	kd := pointcloud.ToKDTree(cloud)
	segments := segmentation.NewSegments()
	visited := make(map[r3.Vector]bool)
	clusterIdx := 0

	type pd struct {
		p r3.Vector
		d pointcloud.Data
	}
	var allPoints []pd
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		allPoints = append(allPoints, pd{p, d})
		return true
	})

	for _, point := range allPoints {
		if visited[point.p] {
			continue
		}

		// BFS from this point.
		queue := []pd{point}
		visited[point.p] = true
		for len(queue) > 0 {
			curr := queue[0]
			queue = queue[1:]

			if err := segments.AssignCluster(curr.p, curr.d, clusterIdx); err != nil {
				return nil, err
			}
			for _, nb := range kd.RadiusNearestNeighbors(curr.p, radiusMm, false) {
				if !visited[nb.P] {
					visited[nb.P] = true
					queue = append(queue, pd{nb.P, nb.D})
				}
			}
		}
		clusterIdx++
	}

	return pointcloud.PrunePointClouds(segments.PointClouds(), minSize), nil
}

// filterByDepth keeps points with 0 <= Z <= maxDepthMm. Z is the optical axis
// of depth cameras. maxDepthMm <= 0 keeps everything in front of the camera.
func filterByDepth(cloud pointcloud.PointCloud, maxDepthMm float64) pointcloud.PointCloud {
	out := pointcloud.NewBasicEmpty()
	cloud.Iterate(0, 0, func(pt r3.Vector, d pointcloud.Data) bool {
		if pt.Z >= 0 && (maxDepthMm <= 0 || pt.Z <= maxDepthMm) {
			//nolint:errcheck
			out.Set(pt, d)
		}
		return true
	})
	return out
}

// filterByColor returns the fruit-colored points. Points without color are dropped.
func filterByColor(cloud pointcloud.PointCloud, cfg ColorConfig) pointcloud.PointCloud {
	out := pointcloud.NewBasicEmpty()
	cloud.Iterate(0, 0, func(pt r3.Vector, d pointcloud.Data) bool {
		if d == nil || !d.HasColor() {
			return true
		}
		r, g, b := d.RGB255()
		if IsFruitColored(r, g, b, cfg) {
			//nolint:errcheck
			out.Set(pt, d)
		}
		return true
	})
	return out
}
