package roiplanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	gtloader "github.com/biotinker/roiplanner/gt_loader"
	"github.com/biotinker/roiplanner/octomap"
	roieval "github.com/biotinker/roiplanner/roi_eval"
	"go.viam.com/rdk/referenceframe"
)

// defaultTreePrefix names saved workspaces when no name is given.
const defaultTreePrefix = "planningTree"

// Load result codes of LoadOctomap.
const (
	LoadOK            = 0
	LoadCorrupted     = -1
	LoadWrongTreeType = -2
)

// StartEvaluator starts an evaluation run. It returns false when the request
// is invalid, for example an end condition out of range.
func (p *Planner) StartEvaluator(ctx context.Context, req roieval.Request) bool {
	if err := p.evaluator.Start(ctx, req); err != nil {
		p.logger.Warnf("Evaluator not started: %v", err)
		return false
	}
	return true
}

// RandomizePlantPositions re-places the ground-truth plants inside the box
// with at least minDist between plant centers. On failure the previous
// placement is kept and false is returned.
func (p *Planner) RandomizePlantPositions(ctx context.Context, minPoint, maxPoint r3.Vector, minDist float64) bool {
	if p.gt == nil {
		p.logger.Warn("Cannot randomize plants: no ground truth loaded")
		return false
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	snap, err := p.gt.Randomize(ctx, p.rng, gtloader.Placement{Min: minPoint, Max: maxPoint, MinDist: minDist})
	if err != nil {
		p.logger.Warnf("Plant randomization failed: %v", err)
		return false
	}
	for _, plant := range snap.Scenario().Plants {
		p.logger.Infof("Plant %s placed at %v", plant.Name, plant.Point())
	}
	return true
}

// SaveOctomap writes the workspace to a tree file and returns its path, or ""
// on failure. With nameIsPrefix a timestamp and extension are appended. Relative
// names are placed in the output directory.
func (p *Planner) SaveOctomap(name string, nameIsPrefix bool) string {
	if name == "" {
		name, nameIsPrefix = defaultTreePrefix, true
	}
	if nameIsPrefix {
		name = fmt.Sprintf("%s_%s.ot", name, p.clk.Now().Format("2006-01-02_15-04-05"))
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.cfg.OutputDir, path)
	}

	f, err := os.Create(path)
	if err != nil {
		p.logger.Warnf("Failed to save workspace: %v", err)
		return ""
	}
	err = multierr.Append(p.ws.Save(f), f.Close())
	if err != nil {
		p.logger.Warnf("Failed to save workspace to %s: %v", path, err)
		return ""
	}
	if info, err := os.Stat(path); err == nil {
		p.logger.Infof("Saved workspace to %s (%s)", path, humanize.Bytes(uint64(info.Size())))
	}
	return path
}

// LoadOctomap replaces the workspace with a saved tree file. It returns
// LoadOK, LoadCorrupted for unreadable files and LoadWrongTreeType when the
// file holds another tree type or resolution.
func (p *Planner) LoadOctomap(filename string) int {
	f, err := os.Open(filename)
	if err != nil {
		p.logger.Warnf("Failed to open tree file: %v", err)
		return LoadCorrupted
	}
	defer f.Close()

	err = p.ws.Load(f)
	switch {
	case err == nil:
		st := p.ws.Stats()
		p.logger.Infof("Loaded workspace from %s: %d occupied, %d free, %d ROI voxels", filename, st.Occupied, st.Free, st.ROI)
		return LoadOK
	case errors.Is(err, octomap.ErrWrongTreeType), errors.Is(err, octomap.ErrResolutionMismatch):
		p.logger.Warnf("Tree file %s not loaded: %v", filename, err)
		return LoadWrongTreeType
	default:
		p.logger.Warnf("Tree file %s not loaded: %v", filename, err)
		return LoadCorrupted
	}
}

// ResetOctomap clears the workspace.
func (p *Planner) ResetOctomap() {
	p.resetOctomap()
}

// ResetPlanner idles the planner, clears the workspace and moves the arm to
// the configured initial joints. It returns false when no initial joints are
// configured or the move fails.
func (p *Planner) ResetPlanner(ctx context.Context, async bool) bool {
	if err := p.resetPlanner(ctx, async); err != nil {
		p.logger.Warnf("Planner reset incomplete: %v", err)
		return false
	}
	return true
}

// MoveToState moves the arm to a joint configuration.
func (p *Planner) MoveToState(ctx context.Context, joints []referenceframe.Input, async, requireConfirmation bool) bool {
	if err := p.engine.MoveToState(ctx, joints, async, requireConfirmation); err != nil {
		p.logger.Warnf("Move to state failed: %v", err)
		return false
	}
	return true
}

// Reconfigure applies changed settings and returns the updated groups.
func (p *Planner) Reconfigure(changes map[string]interface{}) ([]string, error) {
	return p.pc.Reconfigure(changes)
}

// ConfirmExecution answers a pending execution confirmation.
func (p *Planner) ConfirmExecution(ok bool) bool {
	return p.hw.ConfirmExecution(ok)
}

// State summarizes the planner for status queries.
func (p *Planner) State() map[string]interface{} {
	s := p.pc.Settings()
	st := p.ws.Stats()
	sample := p.evaluator.Sample()
	state := map[string]interface{}{
		"run_id":       p.runID,
		"mode":         s.Mode.String(),
		"viewpoints":   p.engine.ViewpointCount(),
		"occupied":     st.Occupied,
		"free":         st.Free,
		"roi_keys":     sample.ROIKeyCount,
		"roi_clusters": sample.TotalROIClusters,
		"updates":      st.Updates,
		"scans":        p.scans.Load(),
		"moving":       p.hw.Moving(),
		"evaluating":   p.evaluator.Running(),
		"episode":      p.evaluator.Episode(),
	}
	if sample.HasGroundTruth {
		state["detected_objects"] = sample.DetectedObjects
		state["gt_keys"] = sample.GroundTruthKeys
		state["true_positive_keys"] = sample.TruePositiveKeys
		state["false_positive_keys"] = sample.FalsePositiveKeys
	}
	return state
}

type startEvaluatorArgs struct {
	NumEvals        int       `mapstructure:"num_evals"`
	EpisodeEndParam int       `mapstructure:"episode_end_param"`
	EpisodeDuration float64   `mapstructure:"episode_duration"`
	StartingIndex   int       `mapstructure:"starting_index"`
	RandomizePlants bool      `mapstructure:"randomize_plants"`
	MinPoint        []float64 `mapstructure:"min_point"`
	MaxPoint        []float64 `mapstructure:"max_point"`
	MinDist         float64   `mapstructure:"min_dist"`
}

type placementArgs struct {
	MinPoint []float64 `mapstructure:"min_point"`
	MaxPoint []float64 `mapstructure:"max_point"`
	MinDist  float64   `mapstructure:"min_dist"`
}

type saveArgs struct {
	Name         string `mapstructure:"name"`
	NameIsPrefix bool   `mapstructure:"name_is_prefix"`
}

type moveArgs struct {
	JointValues         []float64 `mapstructure:"joint_values"`
	Async               bool      `mapstructure:"async"`
	RequireConfirmation bool      `mapstructure:"require_confirmation"`
}

type commandHandler func(ctx context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error)

var commands = map[string]commandHandler{
	"start_evaluator": func(ctx context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a startEvaluatorArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		req := roieval.Request{
			NumEvals:        a.NumEvals,
			EndCondition:    roieval.EpisodeEndParam(a.EpisodeEndParam),
			EpisodeDuration: a.EpisodeDuration,
			StartIndex:      a.StartingIndex,
			RandomizePlants: a.RandomizePlants,
			MinDist:         a.MinDist,
		}
		if a.RandomizePlants {
			var err error
			if req.BoundsMin, err = vec3(a.MinPoint, "min_point"); err != nil {
				return nil, err
			}
			if req.BoundsMax, err = vec3(a.MaxPoint, "max_point"); err != nil {
				return nil, err
			}
		}
		return success(p.StartEvaluator(ctx, req)), nil
	},
	"randomize_plant_positions": func(ctx context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a placementArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		lo, err := vec3(a.MinPoint, "min_point")
		if err != nil {
			return nil, err
		}
		hi, err := vec3(a.MaxPoint, "max_point")
		if err != nil {
			return nil, err
		}
		return success(p.RandomizePlantPositions(ctx, lo, hi, a.MinDist)), nil
	},
	"save_octomap": func(_ context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a saveArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		path := p.SaveOctomap(a.Name, a.NameIsPrefix)
		return map[string]interface{}{"success": path != "", "filename": path}, nil
	},
	"load_octomap": func(_ context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a struct {
			Filename string `mapstructure:"filename"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		code := p.LoadOctomap(a.Filename)
		return map[string]interface{}{"success": code == LoadOK, "error_code": code}, nil
	},
	"reset_octomap": func(_ context.Context, p *Planner, _ map[string]interface{}) (map[string]interface{}, error) {
		p.ResetOctomap()
		return success(true), nil
	},
	"reset_planner": func(ctx context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a struct {
			Async bool `mapstructure:"async"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return success(p.ResetPlanner(ctx, a.Async)), nil
	},
	"move_to_state": func(ctx context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		var a moveArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		joints := make([]referenceframe.Input, len(a.JointValues))
		for i, v := range a.JointValues {
			joints[i] = referenceframe.Input(v)
		}
		return success(p.MoveToState(ctx, joints, a.Async, a.RequireConfirmation)), nil
	},
	"reconfigure": func(_ context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		changed, err := p.Reconfigure(args)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"success": true, "changed": changed}, nil
	},
	"confirm_execution": func(_ context.Context, p *Planner, args map[string]interface{}) (map[string]interface{}, error) {
		a := struct {
			Confirm bool `mapstructure:"confirm"`
		}{Confirm: true}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return success(p.ConfirmExecution(a.Confirm)), nil
	},
	"get_state": func(_ context.Context, p *Planner, _ map[string]interface{}) (map[string]interface{}, error) {
		return p.State(), nil
	},
}

// DoCommand runs the named commands of cmd in name order. Each value holds the
// command arguments as a map, or nil. The result holds one entry per command.
func (p *Planner) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	names := make([]string, 0, len(cmd))
	for name := range cmd {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		h, ok := commands[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownCommand, name, strings.Join(commandNames(), ", "))
		}
		var args map[string]interface{}
		if cmd[name] != nil {
			if args, ok = cmd[name].(map[string]interface{}); !ok {
				return nil, fmt.Errorf("%s: arguments must be a map, got %T", name, cmd[name])
			}
		}
		res, err := h(ctx, p, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = res
	}
	return out, nil
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeArgs(args map[string]interface{}, out interface{}) error {
	if args == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func vec3(v []float64, name string) (r3.Vector, error) {
	if len(v) != 3 {
		return r3.Vector{}, fmt.Errorf("%s needs 3 values, got %d", name, len(v))
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func success(ok bool) map[string]interface{} {
	return map[string]interface{}{"success": ok}
}
