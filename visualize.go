package roiplanner

import (
	"fmt"
	"math"

	viz "github.com/viam-labs/motion-tools/client/client"

	roieval "github.com/biotinker/roiplanner/roi_eval"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
	"go.viam.com/rdk/spatialmath"
)

// Visualizer draws planner state in the motion-tools visualizer.
type Visualizer struct{}

func newVisualizer() *Visualizer {
	return &Visualizer{}
}

const (
	candidateColor = "blue"
	chosenColor    = "green"
)

// DrawPlanningState draws every scored candidate pose. The chosen one is
// drawn green, the rest blue.
func (v *Visualizer) DrawPlanningState(candidates []viewplanner.Candidate, chosen int) error {
	if len(candidates) == 0 {
		return nil
	}
	poses := make([]spatialmath.Pose, len(candidates))
	for i, c := range candidates {
		poses[i] = c.Pose()
	}
	return viz.DrawPoses(poses, viewpointColors(len(candidates), chosen), true)
}

// viewpointColors returns one arrow color per candidate.
func viewpointColors(n, chosen int) []string {
	colors := make([]string, n)
	for i := range colors {
		colors[i] = candidateColor
		if i == chosen {
			colors[i] = chosenColor
		}
	}
	return colors
}

// DrawClusters draws each ROI cluster as a sphere of the cluster's volume.
func (v *Visualizer) DrawClusters(clusters []roieval.Cluster, resolution float64) error {
	for i, c := range clusters {
		radius := math.Cbrt(3*float64(c.Size())/(4*math.Pi)) * resolution * mmPerMeter
		sphere, err := spatialmath.NewSphere(
			spatialmath.NewPoseFromPoint(c.Center(resolution).Mul(mmPerMeter)),
			radius,
			fmt.Sprintf("roi_cluster_%d", i),
		)
		if err != nil {
			return fmt.Errorf("cluster %d sphere: %w", i, err)
		}
		if err := viz.DrawGeometry(sphere, "red"); err != nil {
			return fmt.Errorf("draw cluster %d: %w", i, err)
		}
	}
	return nil
}

// Clear removes everything drawn so far.
func (v *Visualizer) Clear() error {
	return viz.RemoveAllSpatialObjects()
}
