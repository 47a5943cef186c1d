package roidetect

// Config holds all configuration for the fruit classification pipeline.
// Distances are in millimeters.
type Config struct {
	Color     ColorConfig     `toml:"color"`
	Cluster   ClusterConfig   `toml:"cluster"`
	SphereFit SphereFitConfig `toml:"sphere_fit"`
}

// ColorConfig is the HSV band of fruit skin.
type ColorConfig struct {
	HueMin        float64 `toml:"hue_min"`        // Lower hue bound in degrees
	HueMax        float64 `toml:"hue_max"`        // Upper hue bound; below HueMin wraps through red
	MinSaturation float64 `toml:"min_saturation"` // Min saturation [0, 1]
	MinValue      float64 `toml:"min_value"`      // Min brightness [0, 1]
}

// ClusterConfig controls grouping of fruit-colored points.
type ClusterConfig struct {
	MaxDepthMm     float64 `toml:"max_depth_mm"`     // Max distance along the optical axis; 0 = no limit
	RadiusMm       float64 `toml:"radius_mm"`        // Radius for neighbor-based clustering
	MinClusterSize int     `toml:"min_cluster_size"` // Minimum points per cluster

	// VerifySpheres drops clusters that do not fit a sphere of fruit size.
	VerifySpheres bool `toml:"verify_spheres"`
}

// SphereFitConfig holds parameters for RANSAC sphere fitting.
type SphereFitConfig struct {
	RANSACIterations    int     `toml:"ransac_iterations"`      // Number of RANSAC iterations
	InlierThresholdMm   float64 `toml:"inlier_threshold_mm"`    // Max distance from sphere surface to count as inlier
	ExpectedRadiusMinMm float64 `toml:"expected_radius_min_mm"` // Minimum expected fruit radius in mm
	ExpectedRadiusMaxMm float64 `toml:"expected_radius_max_mm"` // Maximum expected fruit radius in mm
	MinInlierFraction   float64 `toml:"min_inlier_fraction"`    // Minimum fraction of points that must be inliers
}

// DefaultConfig returns a Config tuned for red fruit such as sweet peppers and tomatoes.
func DefaultConfig() Config {
	return Config{
		Color: ColorConfig{
			HueMin:        330,
			HueMax:        25,
			MinSaturation: 0.45,
			MinValue:      0.2,
		},
		Cluster: ClusterConfig{
			MaxDepthMm:     1000,
			RadiusMm:       10,
			MinClusterSize: 20,
		},
		SphereFit: SphereFitConfig{
			RANSACIterations:    500,
			InlierThresholdMm:   4.0,
			ExpectedRadiusMinMm: 15.0,
			ExpectedRadiusMaxMm: 60.0,
			MinInlierFraction:   0.3,
		},
	}
}
