package parser

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

type builtinsFile struct {
	Names []string `yaml:"names"`
}

// LoadBuiltins decodes a YAML document of the form "names: [...]".
func LoadBuiltins(data []byte) ([]string, error) {
	var f builtinsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode builtins: %w", err)
	}
	return f.Names, nil
}
