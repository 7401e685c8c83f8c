package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDocumentName is the topology document hive looks for in the
// launch directory when --config is not given.
const DefaultDocumentName = "hive.yaml"

// LoadDocument reads a topology document and returns it as a plain nested
// mapping, ready for Parse. Environment variable references (${VAR}) in the
// document text are expanded before parsing, so secrets can stay out of the
// file itself.
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology document: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	doc := make(map[string]any)
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse topology document %s: %w", path, err)
	}
	return doc, nil
}

// Load is the convenience path used by the CLI: read the document at path
// and validate it into a SwarmDefinition.
func Load(path string) (*SwarmDefinition, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}
