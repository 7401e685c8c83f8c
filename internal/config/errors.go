package config

import "fmt"

// ConfigError reports a schema or semantic violation in a topology document.
// Field identifies the offending field, and InstanceID/Target name the
// instance (and connection target) involved when applicable.
type ConfigError struct {
	// Field is the document field that failed validation
	// ("version", "main", "description", "connections").
	Field string
	// InstanceID names the offending instance, when one is involved.
	InstanceID string
	// Target names the undefined connection target, for connection errors.
	Target string
	// Detail is the human-readable explanation.
	Detail string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Target != "":
		return fmt.Sprintf("config: instance %q %s: %s %q", e.InstanceID, e.Field, e.Detail, e.Target)
	case e.InstanceID != "":
		return fmt.Sprintf("config: instance %q: %s %s", e.InstanceID, e.Field, e.Detail)
	default:
		return fmt.Sprintf("config: %s %s", e.Field, e.Detail)
	}
}
