// Package manifest compiles a validated swarm definition into per-instance
// launch manifests. A manifest tells the Claude Code runtime how to start
// each of one instance's declared connection targets as a stdio protocol
// server; satellites are spawned lazily by that runtime, never by hive.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/workdir"
	"github.com/ShayCichocki/hive/pkg/models"
)

// TransportStdio is the only transport hive generates: a local process
// speaking over its standard streams. No network addresses are ever emitted.
const TransportStdio = "stdio"

// FileName is the manifest file written into each source instance's
// session directory.
const FileName = "mcp.json"

// Entry describes how to launch one connection target as a protocol server.
type Entry struct {
	// TargetID is the instance id this entry launches.
	TargetID string `json:"-"`
	// Transport is always TransportStdio.
	Transport string `json:"type"`
	// Command is the executable to run.
	Command string `json:"command"`
	// Args are the command arguments.
	Args []string `json:"args"`
	// WorkingDirectory is the target's resolved absolute directory.
	WorkingDirectory string `json:"cwd"`
	// Env holds extra environment variables for the target's process.
	Env map[string]string `json:"env,omitempty"`
}

// Manifest is the set of launch entries for one source instance, in the
// source's declared connection order.
type Manifest struct {
	// SourceID is the instance this manifest belongs to.
	SourceID string
	// Entries are the launch descriptions for each connection target.
	Entries []Entry
}

// Compiler turns a definition plus resolved directories and session
// identity into manifests. Compilation is a pure function of its inputs:
// the same definition and session identity always render to byte-identical
// artifacts, because the main instance's runtime treats the manifest as a
// long-lived config file and spurious diffs would invalidate it.
type Compiler struct {
	binary string
}

// NewCompiler creates a Compiler that launches targets with the given
// Claude Code binary.
func NewCompiler(binary string) *Compiler {
	return &Compiler{binary: binary}
}

// Compile builds one manifest per source instance that declares at least
// one connection. Edges are directed: a manifest for A listing B grants A
// the ability to invoke B, and nothing in reverse unless B declares it.
// Self-reference and mutual connections compile like any other edge.
func (c *Compiler) Compile(def *config.SwarmDefinition, resolved map[string]workdir.ResolvedInstance, sess *models.Session) []*Manifest {
	var manifests []*Manifest
	for _, sourceID := range def.InstanceIDs() {
		spec := def.Instances[sourceID]
		if len(spec.Connections) == 0 {
			continue
		}

		m := &Manifest{SourceID: sourceID}
		for _, targetID := range spec.Connections {
			m.Entries = append(m.Entries, c.entry(def.Instances[targetID], resolved[targetID], sess))
		}
		manifests = append(manifests, m)
	}
	return manifests
}

// entry builds the launch description for one target instance.
func (c *Compiler) entry(target config.InstanceSpec, inst workdir.ResolvedInstance, sess *models.Session) Entry {
	args := []string{"mcp", "serve"}
	if target.Model != "" {
		args = append(args, "--model", target.Model)
	}
	if target.SystemPromptAppend != "" {
		args = append(args, "--append-system-prompt", target.SystemPromptAppend)
	}
	if len(target.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(target.AllowedTools, ","))
	}

	env := make(map[string]string, len(target.Env)+2)
	for k, v := range target.Env {
		env[k] = v
	}
	env["HIVE_SESSION_ID"] = sess.ID
	env["HIVE_INSTANCE_DIR"] = sess.RootDir + "/" + target.ID

	return Entry{
		TargetID:         target.ID,
		Transport:        TransportStdio,
		Command:          c.binary,
		Args:             args,
		WorkingDirectory: inst.WorkingDirectory,
		Env:              env,
	}
}

// Render serializes a manifest to the mcpServers document the Claude Code
// runtime consumes. Output is byte-stable: entries keyed by target id (JSON
// object keys serialize sorted), env maps likewise, two-space indent, one
// trailing newline.
func Render(m *Manifest) ([]byte, error) {
	servers := make(map[string]Entry, len(m.Entries))
	for _, e := range m.Entries {
		servers[e.TargetID] = e
	}

	doc := struct {
		McpServers map[string]Entry `json:"mcpServers"`
	}{McpServers: servers}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render manifest for %s: %w", m.SourceID, err)
	}
	return append(data, '\n'), nil
}
