// Package config loads the planner node configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/geo/r3"

	roidetect "github.com/biotinker/roiplanner/roi_detect"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
)

// RobotCredentials holds the connection details for a Viam robot.
type RobotCredentials struct {
	Address  string `toml:"address"`
	EntityID string `toml:"entity_id"`
	APIKey   string `toml:"api_key"`
}

// Components names the robot resources the planner drives.
type Components struct {
	Arm    string `toml:"arm"`
	Camera string `toml:"camera"`
	Motion string `toml:"motion"`

	// Moved is the frame the motion service positions at a viewpoint. Defaults to Camera.
	Moved string `toml:"moved"`
}

// Evaluation configures the evaluation episode loop.
type Evaluation struct {
	SampleInterval   time.Duration           `toml:"sample_interval"`
	ActivateMode     viewplanner.PlannerMode `toml:"activate_mode"`
	MinClusterSize   int                     `toml:"min_cluster_size"`
	MaxMatchDistance float64                 `toml:"max_match_distance"`
	Scenario         string                  `toml:"scenario"`
	GroundTruthDir   string                  `toml:"ground_truth_dir"`
	Seed             int64                   `toml:"seed"`
}

// Config is the planner node configuration.
type Config struct {
	Robot      RobotCredentials `toml:"robot"`
	Components Components       `toml:"components"`

	Resolution    float64       `toml:"resolution"`
	ControlPeriod time.Duration `toml:"control_period"`
	ScanPeriod    time.Duration `toml:"scan_period"`
	ScanMaxPoints int           `toml:"scan_max_points"`
	OutputDir     string        `toml:"output_dir"`

	// InitialJoints is the reset configuration of the arm, in radians.
	InitialJoints []float64 `toml:"initial_joints"`

	// Workspace bounds of camera positions, in meters.
	BoundsMin [3]float64 `toml:"bounds_min"`
	BoundsMax [3]float64 `toml:"bounds_max"`

	ViewDistance     float64                 `toml:"view_distance"`
	ExecutionTimeout time.Duration           `toml:"execution_timeout"`
	Camera           viewplanner.CameraModel `toml:"camera_model"`
	Planner          viewplanner.Settings    `toml:"planner"`
	Detection        roidetect.Config        `toml:"detection"`
	Evaluation       Evaluation              `toml:"evaluation"`
}

// Default returns a Config for a table-top rig with no robot address.
func Default() Config {
	ec := viewplanner.DefaultEngineConfig()
	return Config{
		Components: Components{
			Arm:    "arm",
			Camera: "camera",
			Motion: "builtin",
		},
		Resolution:       0.01,
		ControlPeriod:    500 * time.Millisecond,
		ScanPeriod:       time.Second,
		ScanMaxPoints:    30000,
		OutputDir:        "output",
		BoundsMin:        [3]float64{-0.6, -0.6, 0.05},
		BoundsMax:        [3]float64{0.6, 0.6, 1.0},
		ViewDistance:     ec.ViewDistance,
		ExecutionTimeout: ec.ExecutionTimeout,
		Camera:           ec.Camera,
		Planner:          viewplanner.DefaultSettings(),
		Detection:        roidetect.DefaultConfig(),
		Evaluation: Evaluation{
			SampleInterval:   time.Second,
			ActivateMode:     viewplanner.SampleAutomatic,
			MinClusterSize:   1,
			MaxMatchDistance: 5,
			Seed:             1,
		},
	}
}

// Load reads a TOML config file on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a TOML config on top of Default. Unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if cfg.Components.Moved == "" {
		cfg.Components.Moved = cfg.Components.Camera
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the planner cannot run without.
func (c *Config) Validate() error {
	if !(c.Resolution > 0) {
		return fmt.Errorf("resolution must be positive, got %v", c.Resolution)
	}
	if c.ControlPeriod <= 0 || c.ScanPeriod <= 0 {
		return errors.New("control_period and scan_period must be positive")
	}
	if c.Evaluation.SampleInterval <= 0 {
		return errors.New("evaluation.sample_interval must be positive")
	}
	if c.Evaluation.GroundTruthDir != "" && c.Evaluation.Scenario == "" {
		return errors.New("evaluation.ground_truth_dir requires evaluation.scenario")
	}
	if _, err := viewplanner.ParsePlannerMode(int(c.Evaluation.ActivateMode)); err != nil {
		return fmt.Errorf("evaluation.activate_mode: %w", err)
	}
	return c.Planner.Validate()
}

// HasRobot reports whether robot credentials are configured.
func (c *Config) HasRobot() bool {
	return c.Robot.Address != ""
}

// Bounds returns the workspace bounds as vectors.
func (c *Config) Bounds() (r3.Vector, r3.Vector) {
	return r3.Vector{X: c.BoundsMin[0], Y: c.BoundsMin[1], Z: c.BoundsMin[2]},
		r3.Vector{X: c.BoundsMax[0], Y: c.BoundsMax[1], Z: c.BoundsMax[2]}
}
