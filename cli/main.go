package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/biotinker/roiplanner"
	gtloader "github.com/biotinker/roiplanner/gt_loader"
	"github.com/biotinker/roiplanner/internal/config"
	roieval "github.com/biotinker/roiplanner/roi_eval"
	viewplanner "github.com/biotinker/roiplanner/view_planner"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

type options struct {
	duration time.Duration
	mapFile  string
	out      string
	joints   string
	numEvals int
	endParam int
	episode  float64
	gtDir    string
	objDir   string
}

type step struct {
	online bool
	run    func(ctx context.Context, p *roiplanner.Planner, opts options, logger logging.Logger) error
}

var steps = map[string]step{
	"scan":     {online: true, run: runScan},
	"reset":    {online: true, run: runReset},
	"move":     {online: true, run: runMove},
	"evaluate": {online: true, run: runEvaluate},
	"score":    {run: runScore},
	"gt":       {run: runGroundTruth},
}

func validSteps() string {
	names := make([]string, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func main() {
	configPath := flag.String("config", "", "path to the planner TOML config")
	stepName := flag.String("step", "", "step to run: "+validSteps())
	var opts options
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "scan: how long to map before saving")
	flag.StringVar(&opts.mapFile, "map", "", "score: workspace tree file to evaluate")
	flag.StringVar(&opts.out, "out", "", "scan: tree file name; gt: indexed tree output path")
	flag.StringVar(&opts.objDir, "objects", "", "gt: directory for one tree file per object")
	flag.StringVar(&opts.joints, "joints", "", "move: comma separated joint values in radians")
	flag.IntVar(&opts.numEvals, "num-evals", 1, "evaluate: number of episodes")
	flag.IntVar(&opts.endParam, "end-param", int(roieval.EndMaxTime), "evaluate: episode end condition (0 time, 1 viewpoints, 2 no new ROI)")
	flag.Float64Var(&opts.episode, "episode-duration", 60, "evaluate: end condition threshold")
	flag.Parse()

	logger := logging.NewLogger("roiplanner-cli")

	if *configPath == "" {
		logger.Fatal("-config flag is required")
	}
	st, ok := steps[*stepName]
	if !ok {
		logger.Fatalf("unknown step %q; valid steps: %s", *stepName, validSteps())
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	opts.gtDir = cfg.Evaluation.GroundTruthDir

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var hw roiplanner.Hardware
	var planner atomic.Pointer[roiplanner.Planner]
	if st.online {
		if !cfg.HasRobot() {
			logger.Fatalf("step %s needs a [robot] section in the config", *stepName)
		}
		machine, err := client.New(
			ctx,
			cfg.Robot.Address,
			logger,
			client.WithDialOptions(rpc.WithEntityCredentials(
				cfg.Robot.EntityID,
				rpc.Credentials{
					Type:    rpc.CredentialsTypeAPIKey,
					Payload: cfg.Robot.APIKey,
				})),
		)
		if err != nil {
			logger.Fatal(err)
		}
		defer machine.Close(context.Background())
		logger.Info("Connected to robot")

		settings := func() viewplanner.Settings {
			if p := planner.Load(); p != nil {
				return p.Context().Settings()
			}
			return cfg.Planner
		}
		r, err := roiplanner.NewRobot(machine, cfg.Components, settings, logger.Sublogger("robot"))
		if err != nil {
			logger.Fatal(err)
		}
		hw = r
	}

	p, err := roiplanner.NewPlanner(ctx, cfg, hw, clock.New(), logger)
	if err != nil {
		logger.Fatal(err)
	}
	planner.Store(p)
	defer p.Close(context.Background())

	logger.Infof("=== Running step: %s ===", *stepName)
	if err := st.run(ctx, p, opts, logger); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Step %s completed successfully", *stepName)
}

func command(ctx context.Context, p *roiplanner.Planner, name string, args map[string]interface{}) (map[string]interface{}, error) {
	out, err := p.DoCommand(ctx, map[string]interface{}{name: args})
	if err != nil {
		return nil, err
	}
	res, _ := out[name].(map[string]interface{})
	if ok, known := res["success"].(bool); known && !ok {
		return res, fmt.Errorf("%s failed: %v", name, res)
	}
	return res, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runScan maps for the configured duration without sampling viewpoints and
// saves the resulting workspace.
func runScan(ctx context.Context, p *roiplanner.Planner, opts options, logger logging.Logger) error {
	if _, err := command(ctx, p, "reconfigure", map[string]interface{}{"mode": int(viewplanner.MapOnly)}); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()
	if err := roiplanner.Watch(runCtx, p); err != nil {
		return err
	}

	res, err := command(context.Background(), p, "save_octomap", map[string]interface{}{
		"name":           opts.out,
		"name_is_prefix": opts.out == "",
	})
	if err != nil {
		return err
	}
	logger.Infof("Workspace saved to %v", res["filename"])
	return nil
}

func runReset(ctx context.Context, p *roiplanner.Planner, _ options, _ logging.Logger) error {
	_, err := command(ctx, p, "reset_planner", nil)
	return err
}

func runMove(ctx context.Context, p *roiplanner.Planner, opts options, _ logging.Logger) error {
	if opts.joints == "" {
		return fmt.Errorf("-joints is required for move")
	}
	var joints []interface{}
	for _, field := range strings.Split(opts.joints, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return fmt.Errorf("joint value %q: %w", field, err)
		}
		joints = append(joints, v)
	}
	_, err := command(ctx, p, "move_to_state", map[string]interface{}{"joint_values": joints})
	return err
}

// runEvaluate runs the planner until the requested episodes are done.
func runEvaluate(ctx context.Context, p *roiplanner.Planner, opts options, logger logging.Logger) error {
	if _, err := command(ctx, p, "start_evaluator", map[string]interface{}{
		"num_evals":         opts.numEvals,
		"episode_end_param": opts.endParam,
		"episode_duration":  opts.episode,
	}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- roiplanner.Run(runCtx, p) }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for p.Evaluator().Running() {
		select {
		case <-ctx.Done():
			cancel()
			return <-done
		case <-ticker.C:
		}
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}
	for _, s := range p.Evaluator().Summaries() {
		logger.Infof("Episode %d: %d samples, mean %.1f clusters, %d ROI keys", s.Episode, s.Samples, s.MeanClusters, s.FinalROIKeys)
	}
	return printJSON(p.Evaluator().Summaries())
}

// runScore loads a saved workspace and prints its evaluation sample, with the
// ground-truth comparison when the config names a scenario.
func runScore(ctx context.Context, p *roiplanner.Planner, opts options, _ logging.Logger) error {
	if opts.mapFile == "" {
		return fmt.Errorf("-map is required for score")
	}
	if _, err := command(ctx, p, "load_octomap", map[string]interface{}{"filename": opts.mapFile}); err != nil {
		return err
	}
	state, err := command(ctx, p, "get_state", nil)
	if err != nil {
		return err
	}
	return printJSON(state)
}

// runGroundTruth lists the stored object trees and the indexed ground truth
// of the configured scenario, and optionally writes the indexed tree.
func runGroundTruth(_ context.Context, p *roiplanner.Planner, opts options, logger logging.Logger) error {
	snap := p.GroundTruth()
	if snap == nil {
		return fmt.Errorf("config names no scenario and ground-truth directory")
	}

	files, err := filepath.Glob(filepath.Join(opts.gtDir, "*.ot"))
	if err != nil {
		return err
	}
	for _, f := range files {
		model, fruit, res, err := gtloader.ParseObjectName(f)
		if err != nil {
			logger.Debugf("Skipping %s: %v", f, err)
			continue
		}
		logger.Infof("Stored %s fruit %d at %vm", model, fruit, res)
	}

	for _, obj := range snap.Objects() {
		c := obj.Centroid()
		logger.Infof("  %s #%d: %d voxels, centroid (%.3f, %.3f, %.3f), %d kept",
			obj.Plant, obj.Index, obj.Len(), c.X, c.Y, c.Z, snap.ObjectSize(obj.Index))
	}
	logger.Infof("%d objects, %d voxels, %d collisions", snap.NumObjects(), snap.Len(), snap.Collisions())

	if opts.objDir != "" {
		paths, err := snap.WriteObjects(opts.objDir)
		if err != nil {
			return fmt.Errorf("export objects: %w", err)
		}
		logger.Infof("Wrote %d object trees to %s", len(paths), opts.objDir)
	}

	if opts.out == "" {
		return nil
	}
	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := snap.WriteIndexed(f); err != nil {
		f.Close()
		return err
	}
	logger.Infof("Indexed ground truth written to %s", opts.out)
	return f.Close()
}
