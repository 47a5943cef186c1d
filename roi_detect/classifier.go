// Package roidetect splits a camera point cloud into general occupancy
// returns and fruit (region-of-interest) evidence.
package roidetect

import (
	"context"
	"errors"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

// Fruit is one fruit-colored cluster in the camera frame.
type Fruit struct {
	Points []r3.Vector
	// Sphere is set when the cluster was verified by a sphere fit.
	Sphere *SphereFitResult
}

// Classification is the result of Classify, in the input cloud's frame (mm).
type Classification struct {
	// Points are all returns within depth range.
	Points []r3.Vector
	// ROI are the returns belonging to accepted fruit clusters.
	ROI []r3.Vector
	// Background are the in-range returns not in ROI.
	Background []r3.Vector
	Fruits     []Fruit
}

// Classifier tags fruit evidence in point clouds.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a Classifier. If cfg is nil, DefaultConfig is used.
func NewClassifier(cfg *Config) *Classifier {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Classifier{cfg: c}
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify filters the cloud by depth, picks fruit-colored points, clusters them
// and, when VerifySpheres is set, keeps only clusters that fit a fruit-sized sphere.
func (c *Classifier) Classify(ctx context.Context, cloud pointcloud.PointCloud) (*Classification, error) {
	if cloud == nil {
		return nil, ErrNilPointCloud
	}
	inRange := filterByDepth(cloud, c.cfg.Cluster.MaxDepthMm)
	out := &Classification{Points: pointcloud.CloudToPoints(inRange)}

	colored := filterByColor(inRange, c.cfg.Color)
	if colored.Size() == 0 {
		out.Background = out.Points
		return out, nil
	}
	clusters, err := radiusClustering(colored, c.cfg.Cluster.RadiusMm, c.cfg.Cluster.MinClusterSize)
	if err != nil {
		return nil, err
	}

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fruit := Fruit{Points: pointcloud.CloudToPoints(cluster)}
		if c.cfg.Cluster.VerifySpheres {
			sr, err := FitSphere(cluster, c.cfg.SphereFit)
			switch {
			case err == nil:
				fruit.Sphere = sr
			case errors.Is(err, ErrNoSphereFound), errors.Is(err, ErrLowInlierFraction), errors.Is(err, ErrTooFewPoints):
				continue
			default:
				return nil, err
			}
		}
		out.Fruits = append(out.Fruits, fruit)
		out.ROI = append(out.ROI, fruit.Points...)
	}

	roi := make(map[r3.Vector]struct{}, len(out.ROI))
	for _, p := range out.ROI {
		roi[p] = struct{}{}
	}
	out.Background = make([]r3.Vector, 0, len(out.Points)-len(out.ROI))
	for _, p := range out.Points {
		if _, ok := roi[p]; !ok {
			out.Background = append(out.Background, p)
		}
	}
	return out, nil
}
