// Package models defines the shared data model for hive sessions and the
// processes that belong to them.
package models

import "time"

// Session represents one identified orchestration run. A Session is created
// fresh by the session store or rehydrated from disk when restoring, and is
// the unit of persistence for logs, manifests, and process metadata.
type Session struct {
	// ID uniquely identifies the session (timestamp plus random suffix).
	ID string `json:"id"`
	// Name is the swarm name the session was started with.
	Name string `json:"name"`
	// RootDir is the session's directory under the sessions root.
	RootDir string `json:"root_dir"`
	// BaseDir is the directory the run was launched from, captured once.
	BaseDir string `json:"base_dir"`
	// CreatedAt is when the session was first created.
	CreatedAt time.Time `json:"created_at"`
	// Instances maps instance id to its per-instance record.
	Instances map[string]*InstanceRecord `json:"instances"`
}

// InstanceRecord tracks the durable per-instance state inside a session:
// where its log lives, the last process known to serve it, and how far the
// supervisor has read into the log.
type InstanceRecord struct {
	// LogPath is the absolute path to the instance's log file.
	LogPath string `json:"log_path"`
	// WorkingDirectory is the resolved absolute working directory.
	WorkingDirectory string `json:"working_directory"`
	// LastPID is the pid of the most recent process for this instance,
	// zero if none was ever observed.
	LastPID int `json:"last_pid,omitempty"`
	// LastLogOffset is the byte offset up to which the log has been read.
	LastLogOffset int64 `json:"last_log_offset"`
	// StartedAt is when the most recent process started.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Record returns the record for an instance id, creating it if absent.
func (s *Session) Record(instanceID string) *InstanceRecord {
	if s.Instances == nil {
		s.Instances = make(map[string]*InstanceRecord)
	}
	rec, ok := s.Instances[instanceID]
	if !ok {
		rec = &InstanceRecord{}
		s.Instances[instanceID] = rec
	}
	return rec
}
