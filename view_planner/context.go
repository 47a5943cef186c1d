package viewplanner

import (
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
)

// PlannerContext owns the live settings. Every mode change or reset bumps the
// generation so that an in-flight sampling pass can notice and abort.
type PlannerContext struct {
	mu         sync.Mutex
	settings   Settings
	generation uint64
	returnMode PlannerMode
	m2sSteps   int
	logger     logging.Logger
}

// NewPlannerContext validates initial and returns a context holding it.
func NewPlannerContext(initial Settings, logger logging.Logger) (*PlannerContext, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &PlannerContext{settings: initial, returnMode: initial.Mode, logger: logger}, nil
}

// Settings returns a copy of the live settings.
func (pc *PlannerContext) Settings() Settings {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.settings
}

// Mode returns the current planner mode.
func (pc *PlannerContext) Mode() PlannerMode {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.settings.Mode
}

// Generation returns the current pass generation.
func (pc *PlannerContext) Generation() uint64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.generation
}

// SetMode switches the planner mode.
func (pc *PlannerContext) SetMode(m PlannerMode) error {
	if _, err := ParsePlannerMode(int(m)); err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.setModeLocked(m)
	return nil
}

// Cancel aborts the in-flight sampling pass, if any.
func (pc *PlannerContext) Cancel() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.generation++
}

func (pc *PlannerContext) setModeLocked(m PlannerMode) {
	if m == pc.settings.Mode {
		return
	}
	if m == MoveToSee {
		pc.returnMode = pc.settings.Mode
		pc.m2sSteps = 0
	}
	pc.logger.Infof("planner mode %s -> %s", pc.settings.Mode, m)
	pc.settings.Mode = m
	pc.generation++
}

// enterMoveToSee switches to MoveToSee and remembers the mode to return to.
func (pc *PlannerContext) enterMoveToSee() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.setModeLocked(MoveToSee)
}

// stepMoveToSee counts one refinement step and returns the total so far.
func (pc *PlannerContext) stepMoveToSee() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.m2sSteps++
	return pc.m2sSteps
}

func (pc *PlannerContext) moveToSeeSteps() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.m2sSteps
}

// exitMoveToSee returns to the mode active before MoveToSee.
func (pc *PlannerContext) exitMoveToSee() PlannerMode {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.settings.Mode != MoveToSee {
		return pc.settings.Mode
	}
	back := pc.returnMode
	if back == MoveToSee {
		back = Idle
	}
	pc.setModeLocked(back)
	return back
}

// Reconfigure decodes a partial settings map (reconfigure command field names
// as keys) onto the live settings and applies it. It returns the names of the
// groups that changed.
func (pc *PlannerContext) Reconfigure(changes map[string]any) ([]string, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	next, err := decodeChanges(pc.settings, changes)
	if err != nil {
		return nil, err
	}
	return pc.applyLocked(next)
}

// applyLocked switches to next. Every changed group is validated before
// anything is applied, so an invalid value leaves the live settings untouched.
func (pc *PlannerContext) applyLocked(next Settings) ([]string, error) {
	var changed []settingField
	for _, f := range settingFields {
		if !f.changed(&pc.settings, &next) {
			continue
		}
		if f.validate != nil {
			if err := f.validate(&next); err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
		}
		changed = append(changed, f)
	}

	names := make([]string, 0, len(changed))
	for _, f := range changed {
		f.apply(pc, &next)
		names = append(names, f.name)
	}
	if len(names) > 0 {
		pc.logger.Infof("reconfigured %v", names)
	}
	return names, nil
}
