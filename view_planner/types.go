// Package viewplanner decides where the sensor looks next. A PlannerContext
// holds the mode and settings, the Engine samples candidate viewpoints, scores
// them against the workspace and hands the winner to an Executor.
package viewplanner

import "fmt"

// PlannerMode selects what the engine does on each step.
type PlannerMode int

const (
	// Idle does nothing and waits for a command.
	Idle PlannerMode = iota
	// MapOnly integrates scans without sampling viewpoints.
	MapOnly
	// SampleAutomatic samples ROI viewpoints once ROI evidence exists, exploration viewpoints before.
	SampleAutomatic
	// SampleROI samples viewpoints that improve knowledge around ROI evidence.
	SampleROI
	// SampleExploration samples viewpoints that reveal unknown space.
	SampleExploration
	// MoveToSee refines the last viewpoint locally until the gain drops or the step budget runs out.
	MoveToSee

	numPlannerModes
)

var plannerModeNames = [...]string{"IDLE", "MAP_ONLY", "SAMPLE_AUTOMATIC", "SAMPLE_ROI", "SAMPLE_EXPLORATION", "MOVE_TO_SEE"}

func (m PlannerMode) String() string {
	if m < 0 || m >= numPlannerModes {
		return fmt.Sprintf("PlannerMode(%d)", int(m))
	}
	return plannerModeNames[m]
}

// Samples reports whether the mode samples viewpoints.
func (m PlannerMode) Samples() bool {
	return m == SampleAutomatic || m == SampleROI || m == SampleExploration || m == MoveToSee
}

// ParsePlannerMode converts a raw value.
func ParsePlannerMode(v int) (PlannerMode, error) {
	if v < 0 || v >= int(numPlannerModes) {
		return 0, fmt.Errorf("%w: planner mode %d", ErrInvalidModeValue, v)
	}
	return PlannerMode(v), nil
}

// UtilityType selects how a candidate viewpoint is scored.
type UtilityType int

const (
	// UnknownVoxels counts unknown voxels in view.
	UnknownVoxels UtilityType = iota
	// ROIAdjacentUnknown counts unknown voxels touching ROI evidence.
	ROIAdjacentUnknown
	// ROIWeightedUnknown counts unknown voxels, weighting those near ROI evidence.
	ROIWeightedUnknown

	numUtilityTypes
)

var utilityNames = [...]string{"UNKNOWN_VOXELS", "ROI_ADJACENT_UNKNOWN", "ROI_WEIGHTED_UNKNOWN"}

func (u UtilityType) String() string {
	if u < 0 || u >= numUtilityTypes {
		return fmt.Sprintf("UtilityType(%d)", int(u))
	}
	return utilityNames[u]
}

// ParseUtilityType converts a raw value.
func ParseUtilityType(v int) (UtilityType, error) {
	if v < 0 || v >= int(numUtilityTypes) {
		return 0, fmt.Errorf("%w: utility type %d", ErrInvalidModeValue, v)
	}
	return UtilityType(v), nil
}

// ROISampling selects the view targets in ROI modes.
type ROISampling int

const (
	// ROICenters targets the centers of ROI clusters.
	ROICenters ROISampling = iota
	// ROIAdjacent targets ROI voxels bordering unknown space.
	ROIAdjacent

	numROISamplings
)

func (s ROISampling) String() string {
	switch s {
	case ROICenters:
		return "ROI_CENTERS"
	case ROIAdjacent:
		return "ROI_ADJACENT"
	default:
		return fmt.Sprintf("ROISampling(%d)", int(s))
	}
}

// ParseROISampling converts a raw value.
func ParseROISampling(v int) (ROISampling, error) {
	if v < 0 || v >= int(numROISamplings) {
		return 0, fmt.Errorf("%w: roi sampling %d", ErrInvalidModeValue, v)
	}
	return ROISampling(v), nil
}

// ExplorationSampling selects the view targets in exploration modes.
type ExplorationSampling int

const (
	// ExplFrontier targets free voxels bordering unknown space.
	ExplFrontier ExplorationSampling = iota
	// ExplRandom targets uniform points in the workspace bounds.
	ExplRandom

	numExplorationSamplings
)

func (s ExplorationSampling) String() string {
	switch s {
	case ExplFrontier:
		return "EXPL_FRONTIER"
	case ExplRandom:
		return "EXPL_RANDOM"
	default:
		return fmt.Sprintf("ExplorationSampling(%d)", int(s))
	}
}

// ParseExplorationSampling converts a raw value.
func ParseExplorationSampling(v int) (ExplorationSampling, error) {
	if v < 0 || v >= int(numExplorationSamplings) {
		return 0, fmt.Errorf("%w: exploration sampling %d", ErrInvalidModeValue, v)
	}
	return ExplorationSampling(v), nil
}
