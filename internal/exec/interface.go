// Package exec provides an interface for launching and controlling external
// processes. The abstraction allows the supervisor to be exercised in tests
// without forking real children.
package exec

import (
	"io"
	"os"
)

// Spec describes one process launch.
type Spec struct {
	// Command is the executable to run.
	Command string
	// Args are the command arguments, not including the command itself.
	Args []string
	// Dir is the working directory.
	Dir string
	// Env is the full environment, as KEY=VALUE strings. Nil inherits
	// the parent environment.
	Env []string
	// Cols and Rows give the initial terminal size for the child's
	// pseudo-terminal. Zero values fall back to 80x24.
	Cols, Rows uint16
}

// Process is a handle on a launched child.
type Process interface {
	// PID returns the operating system process id.
	PID() int
	// Tty returns the duplex stream connected to the child's terminal.
	Tty() io.ReadWriteCloser
	// Resize propagates a new terminal size to the child.
	Resize(cols, rows uint16) error
	// Signal delivers a signal to the child.
	Signal(sig os.Signal) error
	// Wait blocks until the child exits. A non-zero exit status is
	// reported as an error.
	Wait() error
}

// Launcher starts processes. The real implementation forks children under a
// pseudo-terminal; tests substitute fakes.
type Launcher interface {
	// LookPath resolves a command name against PATH.
	LookPath(name string) (string, error)
	// Start launches the process described by spec attached to a fresh
	// pseudo-terminal.
	Start(spec Spec) (Process, error)
}
