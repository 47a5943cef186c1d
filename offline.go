package roiplanner

import (
	"context"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

// offlineHardware stands in for the robot when the planner only evaluates maps.
type offlineHardware struct{}

func (offlineHardware) MoveToPose(context.Context, spatialmath.Pose, bool, bool) error {
	return ErrNoRobot
}

func (offlineHardware) MoveToState(context.Context, []referenceframe.Input, bool, bool) error {
	return ErrNoRobot
}

func (offlineHardware) Reachable(context.Context, spatialmath.Pose) (bool, error) {
	return false, ErrNoRobot
}

func (offlineHardware) NextPointCloud(context.Context) (pointcloud.PointCloud, error) {
	return nil, ErrNoRobot
}

func (offlineHardware) CameraPose(context.Context) (spatialmath.Pose, error) {
	return nil, ErrNoRobot
}

func (offlineHardware) Moving() bool { return false }

func (offlineHardware) ConfirmExecution(bool) bool { return false }
