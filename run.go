package roiplanner

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	roieval "github.com/biotinker/roiplanner/roi_eval"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
)

// Run drives the planner until ctx is cancelled: the camera watch loop and the
// control loop (plan, evaluate, publish clusters) run side by side. Step errors
// are logged and the loop continues.
func Run(ctx context.Context, p *Planner) error {
	p.logger.Info("Starting planner loop")
	g, ctx := errgroup.WithContext(ctx)
	if _, offline := p.hw.(offlineHardware); !offline {
		g.Go(func() error { return Watch(ctx, p) })
	}
	g.Go(func() error { return control(ctx, p) })
	err := g.Wait()
	p.logger.Info("Shutting down")
	return err
}

func control(ctx context.Context, p *Planner) error {
	ticker := p.clk.Ticker(p.cfg.ControlPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		runTick(ctx, p)
	}
}

var tickSteps = []struct {
	name string
	fn   func(context.Context, *Planner) error
}{
	{"Plan", planStep},
	{"Evaluate", evaluateStep},
	{"Clusters", clusterStep},
}

// runTick runs one control tick.
func runTick(ctx context.Context, p *Planner) {
	for _, step := range tickSteps {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := step.fn(ctx, p)
		switch {
		case err == nil:
		case errors.Is(err, viewplanner.ErrNoViableViewpoint), errors.Is(err, viewplanner.ErrPassAborted):
			p.logger.Debugf("%s: %v", step.name, err)
		default:
			p.logger.Errorf("%s failed: %v", step.name, err)
		}
	}
}

func planStep(ctx context.Context, p *Planner) error {
	res, err := p.engine.Step(ctx)
	if err != nil {
		return err
	}
	if res.Executed {
		p.logger.Debugf("Moved to viewpoint at %v (%s, %d candidates)", res.Chosen.Origin, res.Mode, res.Sampled)
	}
	return nil
}

func evaluateStep(ctx context.Context, p *Planner) error {
	return p.evaluator.Tick(ctx)
}

// clusterStep redraws the ROI clusters when the workspace changed.
func clusterStep(_ context.Context, p *Planner) error {
	s := p.pc.Settings()
	if !s.PublishClusterVisualization || p.viz == nil {
		return nil
	}
	updates := p.ws.Updates()
	if p.drawnUpdates.Load() == updates {
		return nil
	}
	clusters := roieval.FindClusters(p.ws.ROIKeys(), s.ClusterNeighborhood, s.MinimumClusterSize)
	if err := p.viz.DrawClusters(clusters, p.ws.Resolution()); err != nil {
		return err
	}
	p.drawnUpdates.Store(updates)
	return nil
}
