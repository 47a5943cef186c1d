package viewplanner

import (
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"

	"github.com/biotinker/roiplanner/octomap"
)

// Settings is the reconfigurable planner state. Keys match the reconfigure
// command field names.
type Settings struct {
	Mode             PlannerMode         `mapstructure:"mode" toml:"mode"`
	AutoROISampling  ROISampling         `mapstructure:"auto_roi_sampling" toml:"auto_roi_sampling"`
	AutoExplSampling ExplorationSampling `mapstructure:"auto_expl_sampling" toml:"auto_expl_sampling"`
	ROIMaxSamples    int                 `mapstructure:"roi_max_samples" toml:"roi_max_samples"`
	ROIUtil          UtilityType         `mapstructure:"roi_util" toml:"roi_util"`
	ExplMaxSamples   int                 `mapstructure:"expl_max_samples" toml:"expl_max_samples"`
	ExplUtil         UtilityType         `mapstructure:"expl_util" toml:"expl_util"`
	MinUtility       float64             `mapstructure:"min_utility" toml:"min_utility"`

	ActivateExecution            bool `mapstructure:"activate_execution" toml:"activate_execution"`
	RequireExecutionConfirmation bool `mapstructure:"require_execution_confirmation" toml:"require_execution_confirmation"`

	// Sensor range in meters. SensorMinRange <= SensorMaxRange always holds.
	SensorMinRange float64 `mapstructure:"sensor_min_range" toml:"sensor_min_range"`
	SensorMaxRange float64 `mapstructure:"sensor_max_range" toml:"sensor_max_range"`

	InsertScanIfNotMoved  bool `mapstructure:"insert_scan_if_not_moved" toml:"insert_scan_if_not_moved"`
	InsertScanWhileMoving bool `mapstructure:"insert_scan_while_moving" toml:"insert_scan_while_moving"`
	WaitForScan           bool `mapstructure:"wait_for_scan" toml:"wait_for_scan"`
	PublishPlanningState  bool `mapstructure:"publish_planning_state" toml:"publish_planning_state"`

	Planner               string  `mapstructure:"planner" toml:"planner"`
	PlanningTime          float64 `mapstructure:"planning_time" toml:"planning_time"`
	UseCartesianMotion    bool    `mapstructure:"use_cartesian_motion" toml:"use_cartesian_motion"`
	ComputeIKWhenSampling bool    `mapstructure:"compute_ik_when_sampling" toml:"compute_ik_when_sampling"`
	VelocityScaling       float64 `mapstructure:"velocity_scaling" toml:"velocity_scaling"`

	RecordMapUpdates bool `mapstructure:"record_map_updates" toml:"record_map_updates"`
	RecordViewpoints bool `mapstructure:"record_viewpoints" toml:"record_viewpoints"`

	ActivateMoveToSee  bool    `mapstructure:"activate_move_to_see" toml:"activate_move_to_see"`
	MoveToSeeExclusive bool    `mapstructure:"move_to_see_exclusive" toml:"move_to_see_exclusive"`
	M2SDeltaThresh     float64 `mapstructure:"m2s_delta_thresh" toml:"m2s_delta_thresh"`
	M2SMaxSteps        int     `mapstructure:"m2s_max_steps" toml:"m2s_max_steps"`

	PublishClusterVisualization bool                 `mapstructure:"publish_cluster_visualization" toml:"publish_cluster_visualization"`
	MinimumClusterSize          int                  `mapstructure:"minimum_cluster_size" toml:"minimum_cluster_size"`
	ClusterNeighborhood         octomap.Neighborhood `mapstructure:"cluster_neighborhood" toml:"cluster_neighborhood"`
}

// DefaultSettings returns Settings with the planner idle and execution enabled.
func DefaultSettings() Settings {
	return Settings{
		Mode:                         Idle,
		AutoROISampling:              ROICenters,
		AutoExplSampling:             ExplFrontier,
		ROIMaxSamples:                20,
		ROIUtil:                      ROIWeightedUnknown,
		ExplMaxSamples:               20,
		ExplUtil:                     UnknownVoxels,
		MinUtility:                   0,
		ActivateExecution:            true,
		RequireExecutionConfirmation: false,
		SensorMinRange:               0.03,
		SensorMaxRange:               0.72,
		InsertScanIfNotMoved:         true,
		InsertScanWhileMoving:        false,
		WaitForScan:                  true,
		Planner:                      "rrtstar",
		PlanningTime:                 3,
		VelocityScaling:              0.5,
		M2SDeltaThresh:               0.01,
		M2SMaxSteps:                  10,
		MinimumClusterSize:           1,
		ClusterNeighborhood:          octomap.Face6,
	}
}

// Validate checks every field.
func (s Settings) Validate() error {
	for _, f := range settingFields {
		if f.validate == nil {
			continue
		}
		if err := f.validate(&s); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if s.SensorMinRange > s.SensorMaxRange {
		return fmt.Errorf("%w: sensor_min_range %v exceeds sensor_max_range %v", ErrInvalidSetting, s.SensorMinRange, s.SensorMaxRange)
	}
	return nil
}

// decodeChanges applies a partial field map onto a copy of base.
func decodeChanges(base Settings, changes map[string]any) (Settings, error) {
	out := base
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(changes); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return out, nil
}

// settingField is one reconfigurable group. changed compares the group,
// validate checks the new values and apply copies them into the live settings.
type settingField struct {
	name     string
	changed  func(old, next *Settings) bool
	validate func(next *Settings) error
	apply    func(pc *PlannerContext, next *Settings)
}

func boolField(name string, get func(*Settings) *bool) settingField {
	return settingField{
		name:    name,
		changed: func(old, next *Settings) bool { return *get(old) != *get(next) },
		apply:   func(pc *PlannerContext, next *Settings) { *get(&pc.settings) = *get(next) },
	}
}

func positive(v float64, what string) error {
	if !(v > 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSetting, what, v)
	}
	return nil
}

var settingFields = []settingField{
	{
		name: "mode",
		changed: func(old, next *Settings) bool {
			return old.Mode != next.Mode ||
				old.AutoROISampling != next.AutoROISampling ||
				old.AutoExplSampling != next.AutoExplSampling ||
				old.ROIMaxSamples != next.ROIMaxSamples ||
				old.ROIUtil != next.ROIUtil ||
				old.ExplMaxSamples != next.ExplMaxSamples ||
				old.ExplUtil != next.ExplUtil ||
				old.MinUtility != next.MinUtility
		},
		validate: func(s *Settings) error {
			if _, err := ParsePlannerMode(int(s.Mode)); err != nil {
				return err
			}
			if _, err := ParseROISampling(int(s.AutoROISampling)); err != nil {
				return err
			}
			if _, err := ParseExplorationSampling(int(s.AutoExplSampling)); err != nil {
				return err
			}
			if _, err := ParseUtilityType(int(s.ROIUtil)); err != nil {
				return err
			}
			if _, err := ParseUtilityType(int(s.ExplUtil)); err != nil {
				return err
			}
			if s.ROIMaxSamples < 1 || s.ExplMaxSamples < 1 {
				return fmt.Errorf("%w: sample budgets must be at least 1", ErrInvalidSetting)
			}
			return nil
		},
		apply: func(pc *PlannerContext, s *Settings) {
			pc.settings.AutoROISampling = s.AutoROISampling
			pc.settings.AutoExplSampling = s.AutoExplSampling
			pc.settings.ROIMaxSamples = s.ROIMaxSamples
			pc.settings.ROIUtil = s.ROIUtil
			pc.settings.ExplMaxSamples = s.ExplMaxSamples
			pc.settings.ExplUtil = s.ExplUtil
			pc.settings.MinUtility = s.MinUtility
			pc.setModeLocked(s.Mode)
		},
	},
	boolField("activate_execution", func(s *Settings) *bool { return &s.ActivateExecution }),
	boolField("require_execution_confirmation", func(s *Settings) *bool { return &s.RequireExecutionConfirmation }),
	{
		name: "sensor_range",
		changed: func(old, next *Settings) bool {
			return old.SensorMinRange != next.SensorMinRange || old.SensorMaxRange != next.SensorMaxRange
		},
		validate: func(s *Settings) error {
			if s.SensorMinRange < 0 {
				return fmt.Errorf("%w: sensor_min_range must not be negative", ErrInvalidSetting)
			}
			return positive(s.SensorMaxRange, "sensor_max_range")
		},
		apply: func(pc *PlannerContext, s *Settings) {
			cur := &pc.settings
			minChanged := cur.SensorMinRange != s.SensorMinRange
			maxChanged := cur.SensorMaxRange != s.SensorMaxRange
			if minChanged {
				cur.SensorMinRange = s.SensorMinRange
				if !maxChanged && cur.SensorMaxRange < cur.SensorMinRange {
					cur.SensorMaxRange = cur.SensorMinRange
				}
			}
			if maxChanged {
				cur.SensorMaxRange = s.SensorMaxRange
				if cur.SensorMinRange > cur.SensorMaxRange {
					cur.SensorMinRange = cur.SensorMaxRange
				}
			}
		},
	},
	boolField("insert_scan_if_not_moved", func(s *Settings) *bool { return &s.InsertScanIfNotMoved }),
	boolField("insert_scan_while_moving", func(s *Settings) *bool { return &s.InsertScanWhileMoving }),
	boolField("wait_for_scan", func(s *Settings) *bool { return &s.WaitForScan }),
	boolField("publish_planning_state", func(s *Settings) *bool { return &s.PublishPlanningState }),
	{
		name:    "planner",
		changed: func(old, next *Settings) bool { return old.Planner != next.Planner },
		apply:   func(pc *PlannerContext, s *Settings) { pc.settings.Planner = s.Planner },
	},
	{
		name:     "planning_time",
		changed:  func(old, next *Settings) bool { return old.PlanningTime != next.PlanningTime },
		validate: func(s *Settings) error { return positive(s.PlanningTime, "planning_time") },
		apply:    func(pc *PlannerContext, s *Settings) { pc.settings.PlanningTime = s.PlanningTime },
	},
	boolField("use_cartesian_motion", func(s *Settings) *bool { return &s.UseCartesianMotion }),
	boolField("compute_ik_when_sampling", func(s *Settings) *bool { return &s.ComputeIKWhenSampling }),
	{
		name:    "velocity_scaling",
		changed: func(old, next *Settings) bool { return old.VelocityScaling != next.VelocityScaling },
		validate: func(s *Settings) error {
			if !(s.VelocityScaling > 0) || s.VelocityScaling > 1 {
				return fmt.Errorf("%w: velocity_scaling must be in (0, 1], got %v", ErrInvalidSetting, s.VelocityScaling)
			}
			return nil
		},
		apply: func(pc *PlannerContext, s *Settings) { pc.settings.VelocityScaling = s.VelocityScaling },
	},
	boolField("record_map_updates", func(s *Settings) *bool { return &s.RecordMapUpdates }),
	boolField("record_viewpoints", func(s *Settings) *bool { return &s.RecordViewpoints }),
	{
		name: "move_to_see",
		changed: func(old, next *Settings) bool {
			return old.ActivateMoveToSee != next.ActivateMoveToSee ||
				old.MoveToSeeExclusive != next.MoveToSeeExclusive ||
				old.M2SDeltaThresh != next.M2SDeltaThresh ||
				old.M2SMaxSteps != next.M2SMaxSteps
		},
		validate: func(s *Settings) error {
			if s.M2SMaxSteps < 0 {
				return fmt.Errorf("%w: m2s_max_steps must not be negative", ErrInvalidSetting)
			}
			if math.IsNaN(s.M2SDeltaThresh) {
				return fmt.Errorf("%w: m2s_delta_thresh is NaN", ErrInvalidSetting)
			}
			return nil
		},
		apply: func(pc *PlannerContext, s *Settings) {
			pc.settings.ActivateMoveToSee = s.ActivateMoveToSee
			pc.settings.MoveToSeeExclusive = s.MoveToSeeExclusive
			pc.settings.M2SDeltaThresh = s.M2SDeltaThresh
			pc.settings.M2SMaxSteps = s.M2SMaxSteps
		},
	},
	{
		name: "cluster_visualization",
		changed: func(old, next *Settings) bool {
			return old.PublishClusterVisualization != next.PublishClusterVisualization ||
				old.MinimumClusterSize != next.MinimumClusterSize ||
				old.ClusterNeighborhood != next.ClusterNeighborhood
		},
		validate: func(s *Settings) error {
			if s.MinimumClusterSize < 1 {
				return fmt.Errorf("%w: minimum_cluster_size must be at least 1", ErrInvalidSetting)
			}
			if _, err := octomap.ParseNeighborhood(int(s.ClusterNeighborhood)); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidModeValue, err)
			}
			return nil
		},
		apply: func(pc *PlannerContext, s *Settings) {
			pc.settings.PublishClusterVisualization = s.PublishClusterVisualization
			pc.settings.MinimumClusterSize = s.MinimumClusterSize
			pc.settings.ClusterNeighborhood = s.ClusterNeighborhood
		},
	},
}
