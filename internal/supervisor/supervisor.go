// Package supervisor brings a compiled swarm topology to life for the
// duration of one run and tears it down cleanly on exit.
//
// Only the main instance is launched directly, as a foreground child
// attached to a pseudo-terminal. Satellites are spawned lazily by the main
// instance's own runtime off the manifests written at startup; the
// supervisor's responsibility toward them ends at guaranteeing correct
// manifests and reaping whatever satellite processes it can still observe
// when the run ends.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/ShayCichocki/hive/internal/config"
	hexec "github.com/ShayCichocki/hive/internal/exec"
	"github.com/ShayCichocki/hive/internal/manifest"
	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/tail"
	"github.com/ShayCichocki/hive/internal/workdir"
	"github.com/ShayCichocki/hive/pkg/models"
)

// Options configures a Supervisor.
type Options struct {
	// Definition is the validated topology.
	Definition *config.SwarmDefinition
	// Resolved maps instance id to its resolved working directory.
	Resolved map[string]workdir.ResolvedInstance
	// Store persists session state.
	Store *session.Store
	// Session is the run's session, fresh or rehydrated.
	Session *models.Session
	// Settings are the tool-level settings.
	Settings *config.Settings
	// Launcher starts the main instance. Defaults to the PTY launcher.
	Launcher hexec.Launcher
	// Index is the optional session index; index failures never abort
	// a run.
	Index *session.Index
	// Debug is the optional debug logger.
	Debug *DebugLogger
	// Stdin and Stdout default to the real terminal.
	Stdin  io.Reader
	Stdout io.Writer
	// Restored marks a resumed session: prior log history is replayed
	// before interaction begins.
	Restored bool
}

// Supervisor runs one orchestration session.
type Supervisor struct {
	def      *config.SwarmDefinition
	resolved map[string]workdir.ResolvedInstance
	store    *session.Store
	sess     *models.Session
	settings *config.Settings
	launcher hexec.Launcher
	index    *session.Index
	debug    *DebugLogger
	stdin    io.Reader
	stdout   io.Writer
	restored bool

	mu          sync.Mutex
	handles     map[string]*models.ProcessHandle
	interrupted bool
}

// New creates a Supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Definition == nil || opts.Store == nil || opts.Session == nil || opts.Settings == nil {
		return nil, fmt.Errorf("supervisor: missing required options")
	}
	if opts.Launcher == nil {
		opts.Launcher = hexec.NewPTYLauncher()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Debug == nil {
		opts.Debug = &DebugLogger{}
	}
	return &Supervisor{
		def:      opts.Definition,
		resolved: opts.Resolved,
		store:    opts.Store,
		sess:     opts.Session,
		settings: opts.Settings,
		launcher: opts.Launcher,
		index:    opts.Index,
		debug:    opts.Debug,
		stdin:    opts.Stdin,
		stdout:   opts.Stdout,
		restored: opts.Restored,
	}, nil
}

// Handle returns the process handle for an instance, nil if no process was
// ever observed for it.
func (s *Supervisor) Handle(instanceID string) *models.ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[instanceID]
}

func (s *Supervisor) setHandle(h *models.ProcessHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[string]*models.ProcessHandle)
	}
	s.handles[h.InstanceID] = h
}

// Run executes the session: preflight, manifest generation, main instance
// launch, interactive multiplexing, and teardown. It returns when the main
// instance has exited and observable satellites have been reaped.
func (s *Supervisor) Run(ctx context.Context) error {
	mainID := s.def.MainID

	if err := s.preflight(ctx); err != nil {
		s.markIndex(session.IndexAborted)
		return err
	}

	if err := s.writeManifests(); err != nil {
		s.markIndex(session.IndexAborted)
		return err
	}

	if s.restored {
		// Let the user see prior history before new interaction. Prior
		// conversational content is not replayed into the process; only
		// the log view is re-established.
		if _, err := tail.Replay(s.sess.Record(mainID).LogPath, 0, s.stdout); err != nil {
			s.debug.Log("history replay: %v", err)
		}
	}

	handle := &models.ProcessHandle{InstanceID: mainID, Role: models.RoleInteractive, State: models.StateNotStarted}
	s.setHandle(handle)

	spec := s.mainSpec()
	if err := handle.Transition(models.StateStarting); err != nil {
		return err
	}
	s.debug.Log("starting main instance %s: %s %v", mainID, spec.Command, spec.Args)

	proc, err := s.launcher.Start(spec)
	if err != nil {
		handle.Transition(models.StateCrashed)
		s.markIndex(session.IndexCrashed)
		return &ProcessError{InstanceID: mainID, Op: "start", Err: err}
	}

	// The child is confirmed alive once fork/exec returned a pid; no
	// separate readiness handshake.
	handle.PID = proc.PID()
	handle.Transition(models.StateRunning)
	if err := s.store.RecordProcess(s.sess, mainID, proc.PID()); err != nil {
		s.debug.Log("record process: %v", err)
	}
	if err := s.store.MarkValid(s.def, s.sess); err != nil {
		s.debug.Log("mark valid: %v", err)
	}
	status := session.IndexActive
	if s.restored {
		status = session.IndexRestored
	}
	s.markIndexRecord(status)

	waitErr := s.interact(ctx, proc, mainID)

	s.reapSatellites()

	return s.classifyExit(handle, waitErr)
}

// preflight verifies, within a bounded wait, that the main instance's
// working directory exists and its executable resolves. Failure is fatal
// before any process is spawned; satellite directories are deliberately
// not probed here, only at their own spawn time.
func (s *Supervisor) preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.settings.StartupTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if err := workdir.Check(s.resolved[s.def.MainID]); err != nil {
			done <- err
			return
		}
		if _, err := s.launcher.LookPath(s.settings.ClaudeBinary); err != nil {
			done <- &ProcessError{InstanceID: s.def.MainID, Op: "lookup", Err: err}
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &ProcessError{InstanceID: s.def.MainID, Op: "preflight", Err: ctx.Err()}
	}
}

// writeManifests renders every source instance's manifest into its session
// directory. Manifest correctness at the moment the main instance starts is
// the supervisor's entire responsibility toward satellite spawning.
func (s *Supervisor) writeManifests() error {
	compiler := manifest.NewCompiler(s.settings.ClaudeBinary)
	for _, m := range compiler.Compile(s.def, s.resolved, s.sess) {
		data, err := manifest.Render(m)
		if err != nil {
			return err
		}
		path := filepath.Join(s.sess.RootDir, m.SourceID, manifest.FileName)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write manifest for %s: %w", m.SourceID, err)
		}
		s.debug.Log("wrote manifest for %s (%d entries)", m.SourceID, len(m.Entries))
	}
	return nil
}

// mainSpec builds the launch spec for the interactive main instance.
func (s *Supervisor) mainSpec() hexec.Spec {
	mainID := s.def.MainID
	inst := s.def.Instances[mainID]

	var args []string
	if inst.Model != "" {
		args = append(args, "--model", inst.Model)
	}
	if inst.SystemPromptAppend != "" {
		args = append(args, "--append-system-prompt", inst.SystemPromptAppend)
	}
	if len(inst.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(inst.AllowedTools, ","))
	}
	if len(inst.Connections) > 0 {
		args = append(args, "--mcp-config", filepath.Join(s.sess.RootDir, mainID, manifest.FileName))
	}

	env := os.Environ()
	for _, k := range sortedKeys(inst.Env) {
		env = append(env, k+"="+inst.Env[k])
	}
	env = append(env,
		"HIVE_SESSION_ID="+s.sess.ID,
		"HIVE_INSTANCE_DIR="+filepath.Join(s.sess.RootDir, mainID),
	)

	cols, rows := s.terminalSize()
	return hexec.Spec{
		Command: s.settings.ClaudeBinary,
		Args:    args,
		Dir:     s.resolved[mainID].WorkingDirectory,
		Env:     env,
		Cols:    cols,
		Rows:    rows,
	}
}

// interact multiplexes the child's pseudo-terminal against the real
// terminal and the session log until the child exits, handling resize and
// interrupt signals along the way. Returns the child's wait error.
func (s *Supervisor) interact(ctx context.Context, proc hexec.Process, mainID string) error {
	rec := s.sess.Record(mainID)

	logFile, err := os.OpenFile(rec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.debug.Log("open session log: %v", err)
		logFile = nil
	}

	// The log has exactly one writer: this process. Offsets continue
	// from whatever a previous run left behind.
	var sink io.Writer = s.stdout
	counter := &countingWriter{}
	if logFile != nil {
		if size, err := logFile.Seek(0, io.SeekEnd); err == nil {
			counter.n = size
		}
		counter.w = logFile
		sink = io.MultiWriter(s.stdout, counter)
	}

	// Raw mode so keystrokes reach the child unmangled; only when the
	// real stdin is a terminal.
	if f, ok := s.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		if oldState, err := term.MakeRaw(int(f.Fd())); err == nil {
			defer term.Restore(int(f.Fd()), oldState)
		}
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGWINCH, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	waitCh := make(chan error, 1)
	go func() { waitCh <- proc.Wait() }()

	// Stdin pump; exits when the pty closes.
	go io.Copy(proc.Tty(), s.stdin)

	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		io.Copy(sink, proc.Tty())
	}()

	var waitErr error
	for running := true; running; {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGWINCH {
				s.resize(proc)
				continue
			}
			waitErr = s.terminateMain(proc, waitCh)
			running = false
		case <-ctx.Done():
			waitErr = s.terminateMain(proc, waitCh)
			running = false
		case waitErr = <-waitCh:
			running = false
		}
	}

	// Drain whatever output the pty still holds; the read side returns
	// once the child side is gone.
	select {
	case <-copyDone:
	case <-time.After(time.Second):
	}
	proc.Tty().Close()

	if logFile != nil {
		logFile.Close()
		if err := s.store.RecordOffset(s.sess, mainID, counter.offset()); err != nil {
			s.debug.Log("record offset: %v", err)
		}
	}
	return waitErr
}

// terminateMain forwards the interrupt to the main instance, waits the
// bounded grace period for voluntary exit, then force-kills.
func (s *Supervisor) terminateMain(proc hexec.Process, waitCh <-chan error) error {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()

	s.debug.Log("forwarding interrupt to main instance (grace %s)", s.settings.GracePeriod)
	proc.Signal(os.Interrupt)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(s.settings.GracePeriod):
		s.debug.Log("grace period expired, force-terminating main instance")
		proc.Signal(syscall.SIGKILL)
		return <-waitCh
	}
}

// classifyExit maps the main instance's wait error onto the state machine
// and the run's outcome. A user-initiated teardown is a normal end of run
// even when the forced kill produced a non-zero exit.
func (s *Supervisor) classifyExit(handle *models.ProcessHandle, waitErr error) error {
	s.mu.Lock()
	interrupted := s.interrupted
	s.mu.Unlock()

	if waitErr == nil {
		handle.Transition(models.StateStopped)
		s.markIndex(session.IndexStopped)
		return nil
	}

	handle.Transition(models.StateCrashed)
	if interrupted {
		s.markIndex(session.IndexAborted)
		return nil
	}

	s.markIndex(session.IndexCrashed)
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return &ProcessError{InstanceID: handle.InstanceID, Op: "exit", Err: waitErr}
	}
	return &ProcessError{InstanceID: handle.InstanceID, Op: "wait", Err: waitErr}
}

func (s *Supervisor) resize(proc hexec.Process) {
	f, ok := s.stdout.(*os.File)
	if !ok {
		return
	}
	if cols, rows, err := term.GetSize(int(f.Fd())); err == nil {
		proc.Resize(uint16(cols), uint16(rows))
	}
}

func (s *Supervisor) terminalSize() (cols, rows uint16) {
	f, ok := s.stdout.(*os.File)
	if !ok {
		return 0, 0
	}
	c, r, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, 0
	}
	return uint16(c), uint16(r)
}

func (s *Supervisor) markIndex(status session.IndexStatus) {
	if s.index == nil {
		return
	}
	if err := s.index.SetStatus(s.sess.ID, status); err != nil {
		s.debug.Log("index status: %v", err)
	}
}

func (s *Supervisor) markIndexRecord(status session.IndexStatus) {
	if s.index == nil {
		return
	}
	if err := s.index.Record(s.sess, status); err != nil {
		s.debug.Log("index record: %v", err)
	}
}

// countingWriter tracks the byte offset of everything written to the log.
type countingWriter struct {
	mu sync.Mutex
	w  io.Writer
	n  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.mu.Lock()
	c.n += int64(n)
	c.mu.Unlock()
	return n, err
}

func (c *countingWriter) offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
