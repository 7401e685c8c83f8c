package supervisor

import "fmt"

// ProcessError reports a spawn failure or unexpected exit of an instance's
// process. For the main instance it is fatal to the run; for a satellite it
// surfaces only through the tool invocation that triggered the spawn.
type ProcessError struct {
	// InstanceID is the instance whose process failed.
	InstanceID string
	// Op names the failing operation ("lookup", "start", "exit").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("instance %q: process %s: %v", e.InstanceID, e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
