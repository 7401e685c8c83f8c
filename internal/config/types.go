// Package config turns a raw swarm topology document into a validated,
// immutable SwarmDefinition. It is the single boundary past which no untyped
// mapping flows: everything downstream works with the types defined here.
package config

import "sort"

// SchemaVersion is the only topology document version this build accepts.
const SchemaVersion = 1

// SwarmDefinition is the validated, immutable description of a swarm: one
// main instance plus any number of satellites, with directed connections
// between them. Build it through Parse; never mutate it afterwards.
type SwarmDefinition struct {
	// Name is the human-readable swarm name.
	Name string
	// MainID is the id of the interactive main instance. Invariant:
	// always a key of Instances.
	MainID string
	// Instances maps instance id to its spec.
	Instances map[string]InstanceSpec

	// order holds the instance ids in sorted order so that iteration and
	// generated artifacts are deterministic.
	order []string
}

// NewDefinition assembles a SwarmDefinition from already-validated parts.
// Used when rehydrating a historical topology snapshot, where validation
// already happened when the session was first created. Iteration order is
// rebuilt the same way Parse builds it.
func NewDefinition(name, mainID string, instances map[string]InstanceSpec) *SwarmDefinition {
	order := make([]string, 0, len(instances))
	for id := range instances {
		order = append(order, id)
	}
	sort.Strings(order)
	return &SwarmDefinition{
		Name:      name,
		MainID:    mainID,
		Instances: instances,
		order:     order,
	}
}

// InstanceIDs returns the instance ids in stable sorted order.
func (d *SwarmDefinition) InstanceIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// Main returns the spec of the main instance.
func (d *SwarmDefinition) Main() InstanceSpec {
	return d.Instances[d.MainID]
}

// InstanceSpec describes one configured agent instance.
type InstanceSpec struct {
	// ID is the unique instance identifier.
	ID string
	// Description is a required, non-empty summary of the instance's role.
	Description string
	// Model is the model to run the instance with, empty for the default.
	Model string
	// Directory is the raw, pre-resolution working directory string.
	Directory string
	// Connections lists the instance ids this instance may invoke as
	// tools. Directed, duplicates collapsed, declaration order preserved.
	// Cycles and self-reference are valid.
	Connections []string
	// AllowedTools lists the tool names the instance may use without
	// prompting.
	AllowedTools []string
	// SystemPromptAppend is extra text appended to the system prompt.
	SystemPromptAppend string
	// Env holds extra environment variables for the instance's process.
	Env map[string]string
}
