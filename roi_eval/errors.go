package roieval

import "errors"

// ErrInvalidEndCondition is returned when an episode end condition is outside the known set.
var ErrInvalidEndCondition = errors.New("invalid episode end condition")
