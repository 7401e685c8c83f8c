package exec

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// PTYLauncher launches children attached to a pseudo-terminal. Interactive
// programs detect non-terminal standard streams and disable their rich
// interaction features, so a plain pipe is not an option for the main
// instance.
type PTYLauncher struct{}

// NewPTYLauncher creates the real Launcher.
func NewPTYLauncher() *PTYLauncher {
	return &PTYLauncher{}
}

// LookPath resolves a command name against PATH.
func (l *PTYLauncher) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Start forks the child with its controlling terminal set to a fresh pty.
func (l *PTYLauncher) Start(spec Spec) (Process, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	cols, rows := spec.Cols, spec.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("start %s under pty: %w", spec.Command, err)
	}

	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

func (p *ptyProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Tty() io.ReadWriteCloser {
	return p.ptmx
}

func (p *ptyProcess) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *ptyProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *ptyProcess) Wait() error {
	return p.cmd.Wait()
}

// Verify PTYLauncher implements Launcher at compile time.
var _ Launcher = (*PTYLauncher)(nil)
