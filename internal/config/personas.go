package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// personasFile is the on-disk layout of a personas file:
//
//	personas:
//	  - name: rina
//	    prompt: |
//	      You are Rina...
type personasFile struct {
	Personas []AgentConfig `yaml:"personas"`
}

// LoadPersonas reads agent personas from a YAML file.
func LoadPersonas(path string) ([]AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var pf personasFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}

	for i, p := range pf.Personas {
		if strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("persona %d (%q) in %s has an empty prompt", i, p.Name, path)
		}
	}

	return pf.Personas, nil
}
