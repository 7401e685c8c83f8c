package models

import "fmt"

// ProcessState represents where an instance's process is in its lifecycle.
type ProcessState string

const (
	// StateNotStarted indicates no process has ever been observed.
	StateNotStarted ProcessState = "not_started"
	// StateStarting indicates the process has been forked but not yet
	// confirmed alive.
	StateStarting ProcessState = "starting"
	// StateRunning indicates the process is confirmed alive.
	StateRunning ProcessState = "running"
	// StateStopped indicates the process exited with status zero.
	StateStopped ProcessState = "stopped"
	// StateCrashed indicates the process exited with a non-zero status
	// or was killed.
	StateCrashed ProcessState = "crashed"
)

// Valid returns true if the state is a known value.
func (s ProcessState) Valid() bool {
	switch s {
	case StateNotStarted, StateStarting, StateRunning, StateStopped, StateCrashed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible.
func (s ProcessState) Terminal() bool {
	return s == StateStopped || s == StateCrashed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Satellites appear directly in starting (their not_started is
// never materialized), so not_started -> starting and the zero value ""
// -> starting are both allowed.
func (s ProcessState) CanTransition(next ProcessState) bool {
	switch s {
	case "", StateNotStarted:
		return next == StateStarting
	case StateStarting:
		return next == StateRunning || next == StateCrashed
	case StateRunning:
		return next == StateStopped || next == StateCrashed
	default:
		return false
	}
}

// ProcessRole distinguishes the interactive main instance from satellite
// protocol servers.
type ProcessRole string

const (
	// RoleInteractive is the main instance attached to the user's terminal.
	RoleInteractive ProcessRole = "interactive"
	// RoleService is a satellite reachable only as a protocol server.
	RoleService ProcessRole = "service"
)

// ProcessHandle tracks one live (or recently exited) process belonging to a
// session instance. Handles are created when a process actually starts and
// discarded once its exit has been recorded.
type ProcessHandle struct {
	// InstanceID is the instance this process serves.
	InstanceID string
	// PID is the operating system process id.
	PID int
	// Role is interactive for the main instance, service for satellites.
	Role ProcessRole
	// State is the current lifecycle state.
	State ProcessState
}

// Transition moves the handle to next, rejecting illegal transitions.
func (h *ProcessHandle) Transition(next ProcessState) error {
	if !h.State.CanTransition(next) {
		return fmt.Errorf("illegal process transition for %s: %s -> %s", h.InstanceID, h.State, next)
	}
	h.State = next
	return nil
}
