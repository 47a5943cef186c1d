package roiplanner

import (
	"fmt"
	"os"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// downsamplePointCloud keeps every n-th point so about targetPoints remain.
// targetPoints <= 0 keeps the cloud as is.
func downsamplePointCloud(cloud pointcloud.PointCloud, targetPoints int, logger logging.Logger) pointcloud.PointCloud {
	if targetPoints <= 0 || cloud.Size() <= targetPoints {
		return cloud
	}

	downsampled := pointcloud.NewBasicEmpty()
	step := cloud.Size() / targetPoints
	if step < 1 {
		step = 1
	}
	i := 0
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		if i%step == 0 {
			if err := downsampled.Set(p, d); err != nil {
				logger.Warnf("Failed to add point: %v", err)
			}
		}
		i++
		return true
	})

	logger.Debugf("Downsampled %d points to %d", cloud.Size(), downsampled.Size())
	return downsampled
}

// toWorldMeters transforms camera-frame points (mm) by the camera pose and
// converts them to meters.
func toWorldMeters(camera spatialmath.Pose, points []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		world := spatialmath.Compose(camera, spatialmath.NewPoseFromPoint(p)).Point()
		out[i] = world.Mul(1 / mmPerMeter)
	}
	return out
}

// savePointCloudToPCD writes a point cloud to a PCD file in binary format.
func savePointCloudToPCD(cloud pointcloud.PointCloud, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("write PCD: %w", err)
	}

	return nil
}
