package supervisor

import (
	"syscall"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// reapSatellites terminates any satellite process the supervisor can still
// observe when the run ends, so nothing outlives the session. Satellites
// the external runtime never spawned simply have no recorded pid and are
// skipped; a satellite that already exited is likewise left alone. Crashed
// satellites are never restarted here or anywhere else in the supervisor;
// restart is an operator decision.
func (s *Supervisor) reapSatellites() {
	for _, id := range s.def.InstanceIDs() {
		if id == s.def.MainID {
			continue
		}
		// Metadata may have been written by an observer outside this
		// process; refresh before trusting the pid.
		if err := s.store.ReloadRecord(s.sess, id); err != nil {
			continue
		}
		pid := s.sess.Record(id).LastPID
		if pid <= 0 || !processAlive(pid) {
			continue
		}

		// Satellites never materialize not_started: the first state we
		// observe is a live process.
		handle := &models.ProcessHandle{
			InstanceID: id,
			PID:        pid,
			Role:       models.RoleService,
			State:      models.StateRunning,
		}
		s.setHandle(handle)

		s.debug.Log("terminating satellite %s (pid %d)", id, pid)
		if forced := terminate(pid, s.settings.GracePeriod); forced {
			handle.Transition(models.StateCrashed)
		} else {
			handle.Transition(models.StateStopped)
		}
	}
}

// processAlive reports whether a pid still refers to a live process we may
// signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// terminate asks a process to exit, waits up to grace, then force-kills.
// Returns true if the force-kill was needed.
func terminate(pid int, grace time.Duration) bool {
	syscall.Kill(pid, syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}

	syscall.Kill(pid, syscall.SIGKILL)
	return true
}
