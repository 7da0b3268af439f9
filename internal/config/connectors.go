package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/playbookd/sourcekit/internal/models"
)

// connectorsFile is the on-disk shape of the connectors YAML:
//
//	connectors:
//	  - name: prod-newrelic
//	    type: newrelic
//	    keys:
//	      - key_type: api_key
//	        value: NRAK-...
type connectorsFile struct {
	Connectors []models.Connector `yaml:"connectors"`
}

// LoadConnectors reads connector credentials from the YAML file at path.
func LoadConnectors(path string) ([]models.Connector, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connectors file: %w", err)
	}

	var f connectorsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse connectors file %s: %w", path, err)
	}

	seen := map[string]bool{}
	for _, c := range f.Connectors {
		if c.Name == "" {
			return nil, fmt.Errorf("connector in %s has no name", path)
		}
		if c.Type == "" {
			return nil, fmt.Errorf("connector %q has no type", c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate connector name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return f.Connectors, nil
}
