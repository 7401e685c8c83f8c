package supervisor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/internal/config"
	hexec "github.com/ShayCichocki/hive/internal/exec"
	"github.com/ShayCichocki/hive/internal/manifest"
	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/workdir"
	"github.com/ShayCichocki/hive/pkg/models"
)

// fakeProcess stands in for a PTY child. The test feeds child output
// through ttyW and resolves Wait through exitCh.
type fakeProcess struct {
	pid    int
	ttyR   *io.PipeReader
	ttyW   *io.PipeWriter
	exitCh chan error

	mu      sync.Mutex
	signals []os.Signal
	// exitOnInterrupt makes the process exit cleanly when interrupted.
	exitOnInterrupt bool
}

func newFakeProcess(pid int) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, ttyR: r, ttyW: w, exitCh: make(chan error, 1)}
}

type fakeTty struct {
	r *io.PipeReader
}

func (t *fakeTty) Read(p []byte) (int, error)  { return t.r.Read(p) }
func (t *fakeTty) Write(p []byte) (int, error) { return len(p), nil }
func (t *fakeTty) Close() error                { return t.r.Close() }

func (p *fakeProcess) PID() int                 { return p.pid }
func (p *fakeProcess) Tty() io.ReadWriteCloser  { return &fakeTty{r: p.ttyR} }
func (p *fakeProcess) Resize(_, _ uint16) error { return nil }
func (p *fakeProcess) Wait() error              { return <-p.exitCh }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	if sig == os.Interrupt && p.exitOnInterrupt {
		p.ttyW.Close()
		p.exitCh <- nil
	}
	return nil
}

// exit finishes the fake child: writes any trailing output, closes the
// tty, and resolves Wait.
func (p *fakeProcess) exit(output string, err error) {
	if output != "" {
		io.WriteString(p.ttyW, output)
	}
	p.ttyW.Close()
	p.exitCh <- err
}

type fakeLauncher struct {
	lookErr  error
	startErr error
	proc     *fakeProcess
	onStart  func(spec hexec.Spec)

	mu      sync.Mutex
	started []hexec.Spec
}

func (l *fakeLauncher) LookPath(name string) (string, error) {
	if l.lookErr != nil {
		return "", l.lookErr
	}
	return "/usr/bin/" + name, nil
}

func (l *fakeLauncher) Start(spec hexec.Spec) (hexec.Process, error) {
	l.mu.Lock()
	l.started = append(l.started, spec)
	l.mu.Unlock()
	if l.onStart != nil {
		l.onStart(spec)
	}
	if l.startErr != nil {
		return nil, l.startErr
	}
	return l.proc, nil
}

func (l *fakeLauncher) startCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started)
}

// fixture builds a two-instance swarm with real directories under a temp
// base, a fresh session, and a supervisor wired to the given launcher.
func fixture(t *testing.T, launcher hexec.Launcher) (*Supervisor, *models.Session, *session.Store, *bytes.Buffer) {
	t.Helper()

	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "backend"), 0755); err != nil {
		t.Fatalf("mkdir backend: %v", err)
	}

	def, err := config.Parse(map[string]any{
		"version": 1,
		"swarm": map[string]any{
			"name": "dev-team",
			"main": "lead",
			"instances": map[string]any{
				"lead": map[string]any{
					"description": "coordinates the team",
					"directory":   ".",
					"connections": []any{"backend"},
				},
				"backend": map[string]any{
					"description": "owns the API service",
					"directory":   "./backend",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("definition invalid: %v", err)
	}

	r, err := workdir.NewResolver(base)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	resolved := r.ResolveAll(def)

	store := session.NewStore(t.TempDir())
	sess, err := store.Create(def, resolved, base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	stdout := &bytes.Buffer{}
	sup, err := New(Options{
		Definition: def,
		Resolved:   resolved,
		Store:      store,
		Session:    sess,
		Settings: &config.Settings{
			ClaudeBinary:   "claude",
			GracePeriod:    200 * time.Millisecond,
			StartupTimeout: 2 * time.Second,
		},
		Launcher: launcher,
		Stdin:    strings.NewReader(""),
		Stdout:   stdout,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sup, sess, store, stdout
}

func TestRunSuccess(t *testing.T) {
	proc := newFakeProcess(4242)
	launcher := &fakeLauncher{proc: proc}
	sup, sess, store, stdout := fixture(t, launcher)

	go proc.exit("hello from lead\r\n", nil)

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	h := sup.Handle("lead")
	if h == nil || h.State != models.StateStopped {
		t.Errorf("lead handle = %+v, want stopped", h)
	}
	if h.PID != 4242 {
		t.Errorf("PID = %d", h.PID)
	}

	if !strings.Contains(stdout.String(), "hello from lead") {
		t.Errorf("terminal output missing child output: %q", stdout.String())
	}

	// Output is multiplexed into the session log too.
	logData, err := os.ReadFile(sess.Instances["lead"].LogPath)
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !strings.Contains(string(logData), "hello from lead") {
		t.Errorf("session log missing child output: %q", logData)
	}

	// The session became restorable once the main instance started.
	if _, err := store.Restore(sess.ID); err != nil {
		t.Errorf("session should be restorable after a successful start: %v", err)
	}
}

func TestRunRecordsLogOffset(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, sess, store, _ := fixture(t, launcher)

	output := "line one\r\nline two\r\n"
	go proc.exit(output, nil)

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	snap, err := store.Restore(sess.ID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := snap.Session.Instances["lead"].LastLogOffset; got != int64(len(output)) {
		t.Errorf("recorded offset = %d, want %d", got, len(output))
	}
}

func TestPreflightMissingWorkingDirectory(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	// Remove the main instance's working directory after resolution.
	if err := os.RemoveAll(sup.resolved["lead"].WorkingDirectory); err != nil {
		t.Fatalf("remove workdir: %v", err)
	}

	err := sup.Run(context.Background())
	var dirErr *workdir.DirectoryError
	if !errors.As(err, &dirErr) {
		t.Fatalf("expected *DirectoryError, got %v", err)
	}
	if dirErr.InstanceID != "lead" {
		t.Errorf("InstanceID = %q", dirErr.InstanceID)
	}
	if launcher.startCount() != 0 {
		t.Error("no process may start after a failed preflight")
	}
}

func TestPreflightMissingBinary(t *testing.T) {
	launcher := &fakeLauncher{lookErr: errors.New("executable not found")}
	sup, _, _, _ := fixture(t, launcher)

	err := sup.Run(context.Background())
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if procErr.Op != "lookup" {
		t.Errorf("Op = %q", procErr.Op)
	}
	if launcher.startCount() != 0 {
		t.Error("no process may start after a failed preflight")
	}
}

func TestStartFailureIsFatalAndNotRestorable(t *testing.T) {
	launcher := &fakeLauncher{startErr: errors.New("exec format error")}
	sup, sess, store, _ := fixture(t, launcher)

	err := sup.Run(context.Background())
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if procErr.Op != "start" || procErr.InstanceID != "lead" {
		t.Errorf("got Op=%q InstanceID=%q", procErr.Op, procErr.InstanceID)
	}

	if h := sup.Handle("lead"); h == nil || h.State != models.StateCrashed {
		t.Errorf("lead handle = %+v, want crashed", h)
	}

	// The run aborted before any session artifact was marked valid.
	if _, err := store.Restore(sess.ID); err == nil {
		t.Error("aborted startup must not leave a restorable session")
	}
}

func TestManifestsWrittenBeforeMainStarts(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, sess, _, _ := fixture(t, launcher)

	manifestPath := filepath.Join(sess.RootDir, "lead", manifest.FileName)
	launcher.onStart = func(spec hexec.Spec) {
		if _, err := os.Stat(manifestPath); err != nil {
			t.Errorf("manifest must exist before the main instance starts: %v", err)
		}
		found := false
		for i, arg := range spec.Args {
			if arg == "--mcp-config" && i+1 < len(spec.Args) && spec.Args[i+1] == manifestPath {
				found = true
			}
		}
		if !found {
			t.Errorf("main launch args missing --mcp-config: %v", spec.Args)
		}
	}

	go proc.exit("", nil)
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if !strings.Contains(string(data), `"backend"`) {
		t.Errorf("manifest missing backend entry: %s", data)
	}
}

func TestCrashExitIsFatal(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	go proc.exit("", errors.New("exit status 1"))

	err := sup.Run(context.Background())
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if h := sup.Handle("lead"); h == nil || h.State != models.StateCrashed {
		t.Errorf("lead handle = %+v, want crashed", h)
	}
}

func TestTerminateMainGracefulExit(t *testing.T) {
	proc := newFakeProcess(1)
	proc.exitOnInterrupt = true
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	waitCh := make(chan error, 1)
	go func() { waitCh <- proc.Wait() }()

	if err := sup.terminateMain(proc, waitCh); err != nil {
		t.Fatalf("terminateMain returned %v", err)
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.signals) != 1 || proc.signals[0] != os.Interrupt {
		t.Errorf("signals = %v, want a single interrupt", proc.signals)
	}
}

func TestTerminateMainForceKillsAfterGrace(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	waitCh := make(chan error, 1)
	go func() { waitCh <- proc.Wait() }()

	// The process ignores the interrupt; only the kill resolves it.
	go func() {
		time.Sleep(400 * time.Millisecond)
		proc.exit("", errors.New("signal: killed"))
	}()

	if err := sup.terminateMain(proc, waitCh); err == nil {
		t.Fatal("expected the forced kill's exit error")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.signals) < 2 {
		t.Fatalf("signals = %v, want interrupt then kill", proc.signals)
	}
}

func TestInterruptedRunIsNotAnError(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	handle := &models.ProcessHandle{InstanceID: "lead", Role: models.RoleInteractive, State: models.StateRunning}
	sup.mu.Lock()
	sup.interrupted = true
	sup.mu.Unlock()

	if err := sup.classifyExit(handle, errors.New("signal: killed")); err != nil {
		t.Errorf("interrupted teardown must not surface as an error: %v", err)
	}
	if handle.State != models.StateCrashed {
		t.Errorf("state = %s, want crashed", handle.State)
	}
}

func TestRestoredRunReplaysHistory(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, sess, _, stdout := fixture(t, launcher)

	history := "previous conversation\r\n"
	if err := os.WriteFile(sess.Instances["lead"].LogPath, []byte(history), 0644); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	sup.restored = true

	go proc.exit("fresh output\r\n", nil)
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "previous conversation") {
		t.Errorf("prior history not replayed: %q", out)
	}
	if strings.Index(out, "previous conversation") > strings.Index(out, "fresh output") {
		t.Errorf("history must precede new interaction: %q", out)
	}
}

func TestReapSkipsUnobservedSatellites(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, _, _, _ := fixture(t, launcher)

	// backend never spawned: no pid recorded, nothing to reap.
	sup.reapSatellites()
	if h := sup.Handle("backend"); h != nil {
		t.Errorf("unobserved satellite must not get a handle: %+v", h)
	}
}

func TestReapSkipsDeadSatellites(t *testing.T) {
	proc := newFakeProcess(1)
	launcher := &fakeLauncher{proc: proc}
	sup, sess, store, _ := fixture(t, launcher)

	// A recorded pid that is long gone.
	if err := store.RecordProcess(sess, "backend", 1<<30); err != nil {
		t.Fatalf("RecordProcess failed: %v", err)
	}

	sup.reapSatellites()
	if h := sup.Handle("backend"); h != nil {
		t.Errorf("dead satellite must not get a handle: %+v", h)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("current process must be alive")
	}
	if processAlive(1 << 30) {
		t.Error("absurd pid must not be alive")
	}
}
