package evaluation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSet reads a YAML evaluation set from disk.
func LoadSet(path string) (*Set, error) {
	if path == "" {
		return nil, fmt.Errorf("evaluation set path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evaluation set: %w", err)
	}

	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse evaluation set: %w", err)
	}
	if len(set.Cases) == 0 {
		return nil, fmt.Errorf("evaluation set has no cases")
	}
	for i, c := range set.Cases {
		if c.ID == "" {
			return nil, fmt.Errorf("case %d missing id", i)
		}
		if c.Input == "" {
			return nil, fmt.Errorf("case %q missing input", c.ID)
		}
	}

	return &set, nil
}
