package workflow

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the on-disk shape of a workflow definition.
type File struct {
	Name       string     `yaml:"name" validate:"required"`
	Cron       string     `yaml:"cron"`
	Settings   Settings   `yaml:"settings"`
	Definition Definition `yaml:"graph" validate:"required"`
}

// ParseDefinition decodes and validates a YAML workflow file.
func ParseDefinition(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("workflow: decode definition: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("workflow: invalid definition: %w", err)
	}
	seen := make(map[string]bool, len(f.Definition.Nodes))
	for _, n := range f.Definition.Nodes {
		if seen[n.ID] {
			return nil, fmt.Errorf("workflow: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range f.Definition.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return nil, fmt.Errorf("workflow: edge %s->%s references unknown node", e.Source, e.Target)
		}
	}
	return &f, nil
}

// LoadDefinition reads and parses a YAML workflow file from disk.
func LoadDefinition(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	return ParseDefinition(data)
}
