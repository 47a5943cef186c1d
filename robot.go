package roiplanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	goutils "go.viam.com/utils"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/biotinker/roiplanner/internal/config"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/motionplan"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/services/motion"
	"go.viam.com/rdk/spatialmath"
)

// motionServiceName is the resource name of the builtin motion service.
const motionServiceName = "builtin"

// Hardware is the robot surface the planner drives. *Robot implements it.
type Hardware interface {
	viewplanner.Executor
	viewplanner.Reachability
	NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error)
	CameraPose(ctx context.Context) (spatialmath.Pose, error)
	Moving() bool
	ConfirmExecution(ok bool) bool
}

// PoseSource resolves component poses through the frame system.
type PoseSource interface {
	GetPose(
		ctx context.Context,
		componentName, destinationFrame string,
		supplementalTransforms []*referenceframe.LinkInFrame,
		extra map[string]interface{},
	) (*referenceframe.PoseInFrame, error)
}

type jointMover interface {
	MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error
}

type planMover interface {
	Move(ctx context.Context, req motion.MoveReq) (bool, error)
	DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error)
}

type cloudSource interface {
	NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error)
}

// Robot holds the hardware references of the planner: the arm carrying the
// camera, the camera itself and the motion service.
type Robot struct {
	logger logging.Logger

	arm        jointMover
	camera     cloudSource
	cameraName string
	moved      string
	motion     planMover
	poses      PoseSource
	settings   func() viewplanner.Settings

	confirm chan bool
	moving  atomic.Bool

	// planned is the last trajectory produced by Reachable.
	mu      sync.Mutex
	planned *plannedMove
}

type plannedMove struct {
	pose       spatialmath.Pose
	trajectory motionplan.Trajectory
}

// NewRobot looks up the configured resources on the machine. settings supplies
// the live motion settings (planner id, planning time, cartesian motion).
func NewRobot(machine robot.Robot, names config.Components, settings func() viewplanner.Settings, logger logging.Logger) (*Robot, error) {
	a, err := arm.FromProvider(machine, names.Arm)
	if err != nil {
		return nil, fmt.Errorf("arm %q: %w", names.Arm, err)
	}
	cam, err := camera.FromProvider(machine, names.Camera)
	if err != nil {
		return nil, fmt.Errorf("camera %q: %w", names.Camera, err)
	}
	motionSvc, err := motion.FromProvider(machine, names.Motion)
	if err != nil {
		return nil, fmt.Errorf("motion service: %w", err)
	}
	poses, ok := machine.(PoseSource)
	if !ok {
		return nil, fmt.Errorf("robot client %T cannot resolve frame poses", machine)
	}
	moved := names.Moved
	if moved == "" {
		moved = names.Camera
	}
	return newRobot(a, cam, names.Camera, moved, motionSvc, poses, settings, logger), nil
}

func newRobot(
	a jointMover,
	cam cloudSource,
	cameraName, moved string,
	motionSvc planMover,
	poses PoseSource,
	settings func() viewplanner.Settings,
	logger logging.Logger,
) *Robot {
	return &Robot{
		logger:     logger,
		arm:        a,
		camera:     cam,
		cameraName: cameraName,
		moved:      moved,
		motion:     motionSvc,
		poses:      poses,
		settings:   settings,
		confirm:    make(chan bool),
	}
}

// Moving reports whether a motion started by the planner is in progress.
func (r *Robot) Moving() bool {
	return r.moving.Load()
}

// ConfirmExecution answers a pending confirmation request. It returns false
// when no motion is waiting.
func (r *Robot) ConfirmExecution(ok bool) bool {
	select {
	case r.confirm <- ok:
		return true
	default:
		return false
	}
}

func (r *Robot) awaitConfirmation(ctx context.Context, what string) error {
	r.logger.Infof("Waiting for execution confirmation: %s", what)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ok := <-r.confirm:
		if !ok {
			return ErrExecutionRejected
		}
		return nil
	}
}

// MoveToPose moves the sensor frame to pose (world frame, mm). With async set it
// returns once the motion has started.
func (r *Robot) MoveToPose(ctx context.Context, pose spatialmath.Pose, async, requireConfirmation bool) error {
	if requireConfirmation {
		if err := r.awaitConfirmation(ctx, fmt.Sprintf("move to %v", pose.Point())); err != nil {
			return err
		}
	}
	s := r.settings()
	return r.run(ctx, async, "move to pose", func(ctx context.Context) error {
		if traj := r.takePlan(pose); traj != nil {
			return r.doExecute(ctx, traj)
		}
		if s.UseCartesianMotion {
			return r.moveLinear(ctx, pose, s)
		}
		return r.moveFree(ctx, pose, s)
	})
}

// MoveToState moves the arm directly to the joint configuration.
func (r *Robot) MoveToState(ctx context.Context, joints []referenceframe.Input, async, requireConfirmation bool) error {
	if len(joints) == 0 {
		return fmt.Errorf("cannot move to empty joint configuration")
	}
	if requireConfirmation {
		if err := r.awaitConfirmation(ctx, fmt.Sprintf("move to joints %v", joints)); err != nil {
			return err
		}
	}
	return r.run(ctx, async, "move to state", func(ctx context.Context) error {
		return r.arm.MoveToJointPositions(ctx, joints, nil)
	})
}

// run executes a motion, detached from ctx when async. Any cached plan is
// stale once the arm moves.
func (r *Robot) run(ctx context.Context, async bool, what string, move func(context.Context) error) error {
	if !r.moving.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: another motion is in progress", what)
	}
	do := func(ctx context.Context) error {
		defer r.moving.Store(false)
		defer r.clearPlan()
		return move(ctx)
	}
	if !async {
		return do(ctx)
	}
	goutils.PanicCapturingGo(func() {
		if err := do(context.Background()); err != nil {
			r.logger.Errorf("%s failed: %v", what, err)
		}
	})
	return nil
}

// Reachable asks the motion service for a plan to pose. The plan is kept so a
// following MoveToPose to the same pose replays it.
func (r *Robot) Reachable(ctx context.Context, pose spatialmath.Pose) (bool, error) {
	s := r.settings()
	traj, err := r.doPlan(ctx, r.moveRequest(pose, s))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.logger.Debugf("No plan to %v: %v", pose.Point(), err)
		return false, nil
	}
	r.mu.Lock()
	r.planned = &plannedMove{pose: pose, trajectory: traj}
	r.mu.Unlock()
	return true, nil
}

func (r *Robot) takePlan(pose spatialmath.Pose) motionplan.Trajectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.planned
	r.planned = nil
	if p == nil || !spatialmath.PoseAlmostEqual(p.pose, pose) {
		return nil
	}
	return p.trajectory
}

func (r *Robot) clearPlan() {
	r.mu.Lock()
	r.planned = nil
	r.mu.Unlock()
}

// NextPointCloud returns the next camera point cloud in the camera frame (mm).
func (r *Robot) NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error) {
	return r.camera.NextPointCloud(ctx, nil)
}

// CameraPose returns the camera pose in the world frame.
func (r *Robot) CameraPose(ctx context.Context) (spatialmath.Pose, error) {
	pif, err := r.poses.GetPose(ctx, r.cameraName, referenceframe.World, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get camera pose: %w", err)
	}
	return pif.Pose(), nil
}

// motionExtra carries the planner settings to the motion service.
func motionExtra(s viewplanner.Settings) map[string]interface{} {
	return map[string]interface{}{
		"planning_alg":     s.Planner,
		"timeout":          s.PlanningTime,
		"velocity_scaling": s.VelocityScaling,
	}
}

func (r *Robot) moveRequest(dest spatialmath.Pose, s viewplanner.Settings) motion.MoveReq {
	req := motion.MoveReq{
		ComponentName: r.moved,
		Destination:   referenceframe.NewPoseInFrame(referenceframe.World, dest),
		Extra:         motionExtra(s),
	}
	if s.UseCartesianMotion {
		// Stay within 1mm of a straight line and 2 degrees of orientation.
		req.Constraints = motionplan.NewConstraints(
			[]motionplan.LinearConstraint{{
				LineToleranceMm:          1.0,
				OrientationToleranceDegs: 2.0,
			}},
			nil, nil, nil,
		)
	}
	return req
}

// moveLinear moves the sensor frame to dest along a straight line.
func (r *Robot) moveLinear(ctx context.Context, dest spatialmath.Pose, s viewplanner.Settings) error {
	s.UseCartesianMotion = true
	_, err := r.motion.Move(ctx, r.moveRequest(dest, s))
	return err
}

// moveFree moves the sensor frame to dest with no path constraints.
// The motion planner chooses the collision-free path.
func (r *Robot) moveFree(ctx context.Context, dest spatialmath.Pose, s viewplanner.Settings) error {
	s.UseCartesianMotion = false
	_, err := r.motion.Move(ctx, r.moveRequest(dest, s))
	return err
}

// doPlan calls the motion service's DoPlan DoCommand to generate a trajectory
// without executing it.
func (r *Robot) doPlan(ctx context.Context, req motion.MoveReq) (motionplan.Trajectory, error) {
	proto, err := req.ToProto(motionServiceName)
	if err != nil {
		return nil, fmt.Errorf("build plan proto: %w", err)
	}
	bytes, err := protojson.Marshal(proto)
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}
	resp, err := r.motion.DoCommand(ctx, map[string]interface{}{
		"plan": string(bytes),
	})
	if err != nil {
		return nil, fmt.Errorf("DoPlan: %w", err)
	}
	raw, ok := resp["plan"]
	if !ok {
		return nil, fmt.Errorf("DoPlan response missing 'plan' key")
	}
	var trajectory motionplan.Trajectory
	if err := mapstructure.Decode(raw, &trajectory); err != nil {
		return nil, fmt.Errorf("decode trajectory: %w", err)
	}
	return trajectory, nil
}

// doExecute calls the motion service's DoExecute DoCommand to replay a planned trajectory.
func (r *Robot) doExecute(ctx context.Context, trajectory motionplan.Trajectory) error {
	r.logger.Debugf("doExecute: %d trajectory steps", len(trajectory))
	resp, err := r.motion.DoCommand(ctx, map[string]interface{}{
		"execute": trajectory,
	})
	if err != nil {
		return fmt.Errorf("DoExecute: %w", err)
	}
	if ok, _ := resp["execute"].(bool); !ok {
		return fmt.Errorf("DoExecute returned non-true response: %v", resp["execute"])
	}
	return nil
}
