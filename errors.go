package roiplanner

import "errors"

var (
	// ErrExecutionRejected is returned when an operator declines a pending motion.
	ErrExecutionRejected = errors.New("execution rejected")

	// ErrNoInitialJoints is returned by a reset when no initial arm configuration is configured.
	ErrNoInitialJoints = errors.New("no initial joint configuration")

	// ErrNoRobot is returned by hardware operations of an offline planner.
	ErrNoRobot = errors.New("no robot connected")

	// ErrUnknownCommand is returned by DoCommand for a command it does not handle.
	ErrUnknownCommand = errors.New("unknown command")
)
