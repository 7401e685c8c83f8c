// Package session persists orchestration runs on disk: one directory per
// session holding a topology snapshot, plus one subdirectory per instance
// with its log stream and a small metadata record. The same layout serves
// live tailing and later restoration.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/workdir"
	"github.com/ShayCichocki/hive/pkg/models"
)

const (
	snapshotFile = "snapshot.json"
	metaFile     = "meta.json"
	logFile      = "instance.log"
)

// Snapshot bundles everything needed to run (or resume) a session: the
// validated definition, the resolved directories, and the session record.
type Snapshot struct {
	Definition *config.SwarmDefinition
	Resolved   map[string]workdir.ResolvedInstance
	Session    *models.Session
}

// snapshotDoc is the on-disk form of a Snapshot.
type snapshotDoc struct {
	SessionID string                      `json:"session_id"`
	Name      string                      `json:"name"`
	MainID    string                      `json:"main"`
	BaseDir   string                      `json:"base_dir"`
	CreatedAt time.Time                   `json:"created_at"`
	Valid     bool                        `json:"valid"`
	Instances map[string]snapshotInstance `json:"instances"`
}

type snapshotInstance struct {
	Description        string            `json:"description"`
	Model              string            `json:"model,omitempty"`
	Directory          string            `json:"directory,omitempty"`
	WorkingDirectory   string            `json:"working_directory"`
	Connections        []string          `json:"connections,omitempty"`
	AllowedTools       []string          `json:"allowed_tools,omitempty"`
	SystemPromptAppend string            `json:"prompt,omitempty"`
	Env                map[string]string `json:"env,omitempty"`
}

// instanceMeta is the small per-instance metadata record.
type instanceMeta struct {
	LastPID       int        `json:"last_pid,omitempty"`
	LastLogOffset int64      `json:"last_log_offset"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
}

// Store manages the session directory tree under a fixed root.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root. The root itself is created
// lazily on the first session.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the sessions root directory.
func (s *Store) Root() string {
	return s.root
}

// LogPath returns the log stream path for one instance of a recorded
// session. The file may not exist yet if the instance never produced
// output.
func (s *Store) LogPath(sessionID, instanceID string) string {
	return filepath.Join(s.root, sessionID, instanceID, logFile)
}

// newSessionID allocates a session identifier: UTC timestamp for human
// ordering plus a random suffix for uniqueness.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// Create allocates a fresh session for the given topology: a session root,
// one subdirectory per instance, and the topology snapshot. The snapshot is
// written with Valid=false; MarkValid flips it once the main instance has
// actually started, so an aborted startup never leaves a restorable
// artifact behind.
func (s *Store) Create(def *config.SwarmDefinition, resolved map[string]workdir.ResolvedInstance, baseDir string) (*models.Session, error) {
	now := time.Now()
	id := newSessionID(now)
	sess := &models.Session{
		ID:        id,
		Name:      def.Name,
		RootDir:   filepath.Join(s.root, id),
		BaseDir:   baseDir,
		CreatedAt: now,
		Instances: make(map[string]*models.InstanceRecord),
	}

	for _, id := range def.InstanceIDs() {
		instDir := filepath.Join(sess.RootDir, id)
		if err := os.MkdirAll(instDir, 0755); err != nil {
			return nil, fmt.Errorf("create instance directory for %s: %w", id, err)
		}
		sess.Instances[id] = &models.InstanceRecord{
			LogPath:          filepath.Join(instDir, logFile),
			WorkingDirectory: resolved[id].WorkingDirectory,
		}
		if err := s.writeMeta(sess, id); err != nil {
			return nil, err
		}
	}

	if err := s.writeSnapshot(def, sess, false); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkValid records that the session's topology came fully to life, making
// the session eligible for restore.
func (s *Store) MarkValid(def *config.SwarmDefinition, sess *models.Session) error {
	return s.writeSnapshot(def, sess, true)
}

// RecordProcess notes the pid and start time of the latest process serving
// an instance.
func (s *Store) RecordProcess(sess *models.Session, instanceID string, pid int) error {
	rec := sess.Record(instanceID)
	now := time.Now()
	rec.LastPID = pid
	rec.StartedAt = &now
	return s.writeMeta(sess, instanceID)
}

// RecordOffset notes how far the supervisor has read into an instance's
// log, so a restore can resume tailing without re-emitting or losing lines.
func (s *Store) RecordOffset(sess *models.Session, instanceID string, offset int64) error {
	sess.Record(instanceID).LastLogOffset = offset
	return s.writeMeta(sess, instanceID)
}

// ReloadRecord re-reads an instance's metadata record from disk into the
// session. Satellite metadata can be written by observers outside this
// process, so the in-memory record may be stale by teardown time.
func (s *Store) ReloadRecord(sess *models.Session, instanceID string) error {
	meta, err := readMeta(filepath.Join(sess.RootDir, instanceID, metaFile))
	if err != nil {
		return err
	}
	rec := sess.Record(instanceID)
	rec.LastPID = meta.LastPID
	rec.LastLogOffset = meta.LastLogOffset
	rec.StartedAt = meta.StartedAt
	return nil
}

func (s *Store) writeMeta(sess *models.Session, instanceID string) error {
	rec := sess.Record(instanceID)
	meta := instanceMeta{
		LastPID:       rec.LastPID,
		LastLogOffset: rec.LastLogOffset,
		StartedAt:     rec.StartedAt,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", instanceID, err)
	}
	path := filepath.Join(sess.RootDir, instanceID, metaFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write metadata for %s: %w", instanceID, err)
	}
	return nil
}

func (s *Store) writeSnapshot(def *config.SwarmDefinition, sess *models.Session, valid bool) error {
	doc := snapshotDoc{
		SessionID: sess.ID,
		Name:      def.Name,
		MainID:    def.MainID,
		BaseDir:   sess.BaseDir,
		CreatedAt: sess.CreatedAt,
		Valid:     valid,
		Instances: make(map[string]snapshotInstance, len(def.Instances)),
	}
	for id, spec := range def.Instances {
		doc.Instances[id] = snapshotInstance{
			Description:        spec.Description,
			Model:              spec.Model,
			Directory:          spec.Directory,
			WorkingDirectory:   sess.Record(id).WorkingDirectory,
			Connections:        spec.Connections,
			AllowedTools:       spec.AllowedTools,
			SystemPromptAppend: spec.SystemPromptAppend,
			Env:                spec.Env,
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(sess.RootDir, snapshotFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
