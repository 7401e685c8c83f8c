// Package workdir resolves instance working directories against the
// directory the orchestration run was launched from.
//
// The base directory is captured exactly once per run and threaded through
// explicitly; resolution never reads the ambient working directory and never
// depends on where the topology document itself lives. Moving the document
// into a subdirectory must not change any resolved path, while launching the
// same document from a different directory must.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/hive/internal/config"
)

// DirectoryError reports that an instance's resolved working directory does
// not exist at spawn time.
type DirectoryError struct {
	// InstanceID is the instance whose directory is missing.
	InstanceID string
	// Path is the resolved absolute path that was probed.
	Path string
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("instance %q: working directory does not exist: %s", e.InstanceID, e.Path)
}

// ResolvedInstance is an InstanceSpec plus its absolute working directory.
type ResolvedInstance struct {
	config.InstanceSpec
	// WorkingDirectory is the absolute resolved directory.
	WorkingDirectory string
}

// Resolver resolves raw directory strings against a fixed base directory.
type Resolver struct {
	baseDir string
}

// NewResolver creates a Resolver for the given launch directory. baseDir
// must be absolute; it is the single capture of the run's working directory.
func NewResolver(baseDir string) (*Resolver, error) {
	if !filepath.IsAbs(baseDir) {
		return nil, fmt.Errorf("base directory must be absolute, got %q", baseDir)
	}
	return &Resolver{baseDir: filepath.Clean(baseDir)}, nil
}

// BaseDir returns the captured launch directory.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Resolve computes the absolute working directory for one instance.
// Absolute directories pass through unchanged; relative ones (including "."
// and the empty string) are joined to the base directory. Resolution is pure
// and does not touch the filesystem.
func (r *Resolver) Resolve(spec config.InstanceSpec) ResolvedInstance {
	return ResolvedInstance{
		InstanceSpec:     spec,
		WorkingDirectory: r.resolvePath(spec.Directory),
	}
}

// ResolveAll resolves every instance of a definition, keyed by instance id.
func (r *Resolver) ResolveAll(def *config.SwarmDefinition) map[string]ResolvedInstance {
	resolved := make(map[string]ResolvedInstance, len(def.Instances))
	for id, spec := range def.Instances {
		resolved[id] = r.Resolve(spec)
	}
	return resolved
}

func (r *Resolver) resolvePath(dir string) string {
	if dir == "" {
		return r.baseDir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(r.baseDir, dir))
}

// Check probes the resolved directory's existence. It is called only
// immediately before a process is spawned for the instance, so a config
// with many instances reports the first missing directory without unrelated
// instances having been probed.
func Check(inst ResolvedInstance) error {
	info, err := os.Stat(inst.WorkingDirectory)
	if err != nil || !info.IsDir() {
		return &DirectoryError{InstanceID: inst.ID, Path: inst.WorkingDirectory}
	}
	return nil
}
