package viewplanner

import "errors"

var (
	// ErrNoViableViewpoint is returned when no sampled candidate is valid and
	// scores above the minimum utility. The caller retries on the next tick.
	ErrNoViableViewpoint = errors.New("no viable viewpoint")

	// ErrInvalidModeValue is returned when a raw value is outside an enumerated range.
	ErrInvalidModeValue = errors.New("invalid mode value")

	// ErrPassAborted is returned when a reset or mode change cancels a sampling pass.
	ErrPassAborted = errors.New("sampling pass aborted")

	// ErrInvalidSetting is returned when a reconfiguration value fails validation.
	ErrInvalidSetting = errors.New("invalid setting")
)
