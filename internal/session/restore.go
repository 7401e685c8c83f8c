package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/workdir"
	"github.com/ShayCichocki/hive/pkg/models"
)

// RestoreError reports an unknown or corrupt session identifier.
type RestoreError struct {
	// SessionID is the identifier that failed to restore.
	SessionID string
	// Reason explains what was wrong with the session.
	Reason string
	// Err is the underlying error, when one exists.
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore session %q: %s", e.SessionID, e.Reason)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// Restore locates a prior session under the store root, validates its
// topology snapshot, and rehydrates the definition, resolved directories,
// and per-instance log offsets recorded at the time the session last ran.
// The live config is deliberately not consulted: a resumed session operates
// against the filesystem layout that was historically in effect, even if
// the source document has since been edited.
//
// Restore never writes. A failed restore leaves the target session's files
// completely untouched.
func (s *Store) Restore(sessionID string) (*Snapshot, error) {
	rootDir := filepath.Join(s.root, sessionID)
	info, err := os.Stat(rootDir)
	if err != nil || !info.IsDir() {
		return nil, &RestoreError{SessionID: sessionID, Reason: "unknown session", Err: err}
	}

	data, err := os.ReadFile(filepath.Join(rootDir, snapshotFile))
	if err != nil {
		return nil, &RestoreError{SessionID: sessionID, Reason: "missing topology snapshot", Err: err}
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &RestoreError{SessionID: sessionID, Reason: "corrupt topology snapshot", Err: err}
	}
	if !doc.Valid {
		return nil, &RestoreError{SessionID: sessionID, Reason: "session never started successfully"}
	}
	if doc.MainID == "" || len(doc.Instances) == 0 {
		return nil, &RestoreError{SessionID: sessionID, Reason: "corrupt topology snapshot"}
	}
	if _, ok := doc.Instances[doc.MainID]; !ok {
		return nil, &RestoreError{SessionID: sessionID, Reason: "snapshot main instance is undefined"}
	}

	instances := make(map[string]config.InstanceSpec, len(doc.Instances))
	resolved := make(map[string]workdir.ResolvedInstance, len(doc.Instances))
	sess := &models.Session{
		ID:        doc.SessionID,
		Name:      doc.Name,
		RootDir:   rootDir,
		BaseDir:   doc.BaseDir,
		CreatedAt: doc.CreatedAt,
		Instances: make(map[string]*models.InstanceRecord, len(doc.Instances)),
	}

	for id, snap := range doc.Instances {
		spec := config.InstanceSpec{
			ID:                 id,
			Description:        snap.Description,
			Model:              snap.Model,
			Directory:          snap.Directory,
			Connections:        snap.Connections,
			AllowedTools:       snap.AllowedTools,
			SystemPromptAppend: snap.SystemPromptAppend,
			Env:                snap.Env,
		}
		instances[id] = spec
		resolved[id] = workdir.ResolvedInstance{
			InstanceSpec:     spec,
			WorkingDirectory: snap.WorkingDirectory,
		}

		rec := &models.InstanceRecord{
			LogPath:          filepath.Join(rootDir, id, logFile),
			WorkingDirectory: snap.WorkingDirectory,
		}
		if meta, err := readMeta(filepath.Join(rootDir, id, metaFile)); err == nil {
			rec.LastPID = meta.LastPID
			rec.LastLogOffset = meta.LastLogOffset
			rec.StartedAt = meta.StartedAt
		}
		sess.Instances[id] = rec
	}

	return &Snapshot{
		Definition: config.NewDefinition(doc.Name, doc.MainID, instances),
		Resolved:   resolved,
		Session:    sess,
	}, nil
}

func readMeta(path string) (*instanceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta instanceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
