package config

import (
	"fmt"
	"sort"
)

// Parse validates a raw topology document (an already-parsed nested mapping)
// and builds the SwarmDefinition. It applies the validation rules in a fixed
// order, failing fast on the first violation with a *ConfigError:
//
//  1. version must equal SchemaVersion
//  2. swarm.main must be declared and must name a defined instance
//  3. every instance must carry a non-empty description
//  4. every connection target must name a defined instance
//
// Connection cycles and self-references are deliberately accepted:
// connections model tool-callability, not execution dependency. Parse is
// pure and performs no filesystem access.
func Parse(doc map[string]any) (*SwarmDefinition, error) {
	version, ok := asInt(doc["version"])
	if !ok || version != SchemaVersion {
		return nil, &ConfigError{
			Field:  "version",
			Detail: fmt.Sprintf("must be %d, got %v", SchemaVersion, doc["version"]),
		}
	}

	swarm, ok := asMap(doc["swarm"])
	if !ok {
		return nil, &ConfigError{Field: "swarm", Detail: "section is missing"}
	}

	rawInstances, _ := asMap(swarm["instances"])
	instances := make(map[string]InstanceSpec, len(rawInstances))
	order := make([]string, 0, len(rawInstances))
	for id, raw := range rawInstances {
		spec, err := parseInstance(id, raw)
		if err != nil {
			return nil, err
		}
		instances[id] = spec
		order = append(order, id)
	}
	// The document arrives as an unordered mapping; sort so that every
	// derived artifact is byte-stable across runs.
	sort.Strings(order)

	mainID, _ := asString(swarm["main"])
	if mainID == "" {
		return nil, &ConfigError{Field: "main", Detail: "instance is missing"}
	}
	if _, ok := instances[mainID]; !ok {
		return nil, &ConfigError{
			Field:      "main",
			InstanceID: mainID,
			Detail:     "names an undefined instance",
		}
	}

	for _, id := range order {
		if instances[id].Description == "" {
			return nil, &ConfigError{
				Field:      "description",
				InstanceID: id,
				Detail:     "is required and must be non-empty",
			}
		}
	}

	for _, id := range order {
		for _, target := range instances[id].Connections {
			if _, ok := instances[target]; !ok {
				return nil, &ConfigError{
					Field:      "connections",
					InstanceID: id,
					Target:     target,
					Detail:     "references undefined instance",
				}
			}
		}
	}

	name, _ := asString(swarm["name"])

	return &SwarmDefinition{
		Name:      name,
		MainID:    mainID,
		Instances: instances,
		order:     order,
	}, nil
}

// parseInstance converts one raw instance mapping into an InstanceSpec.
// Duplicate connection entries are collapsed while preserving first-seen
// order.
func parseInstance(id string, raw any) (InstanceSpec, error) {
	fields, ok := asMap(raw)
	if !ok {
		return InstanceSpec{}, &ConfigError{
			Field:      "instances",
			InstanceID: id,
			Detail:     "must be a mapping",
		}
	}

	spec := InstanceSpec{ID: id}
	spec.Description, _ = asString(fields["description"])
	spec.Model, _ = asString(fields["model"])
	spec.Directory, _ = asString(fields["directory"])
	spec.SystemPromptAppend, _ = asString(fields["prompt"])
	spec.AllowedTools = asStringSlice(fields["allowed_tools"])
	spec.Env = asStringMap(fields["env"])

	seen := make(map[string]bool)
	for _, conn := range asStringSlice(fields["connections"]) {
		if seen[conn] {
			continue
		}
		seen[conn] = true
		spec.Connections = append(spec.Connections, conn)
	}

	return spec, nil
}

// Conversion helpers for the untyped mapping YAML hands us. Each tolerates
// a missing value and reports whether the value had the expected shape.

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asStringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}
