package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// PyprojectFile is read from the repository root for [tool.depgraph] settings.
const PyprojectFile = "pyproject.toml"

type pyproject struct {
	Tool struct {
		Depgraph PyprojectSettings `toml:"depgraph"`
	} `toml:"tool"`
}

// PyprojectSettings is the [tool.depgraph] table of pyproject.toml.
type PyprojectSettings struct {
	Exclude       []string `toml:"exclude"`
	ExtraBuiltins []string `toml:"extra-builtins"`
	KeepBuiltins  []string `toml:"keep-builtins"`
}

// ReadPyproject returns the [tool.depgraph] table of root/pyproject.toml. A
// missing file yields nil settings and no error.
func ReadPyproject(root string) (*PyprojectSettings, error) {
	data, err := os.ReadFile(filepath.Join(root, PyprojectFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", PyprojectFile, err)
	}
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", PyprojectFile, err)
	}
	return &doc.Tool.Depgraph, nil
}

// ApplyPyproject merges [tool.depgraph] from root/pyproject.toml into c. Its
// lists extend the configured ones.
func (c *Config) ApplyPyproject(root string) error {
	s, err := ReadPyproject(root)
	if err != nil || s == nil {
		return err
	}
	c.Exclude = appendUnique(c.Exclude, s.Exclude...)
	c.Builtins.Extra = appendUnique(c.Builtins.Extra, s.ExtraBuiltins...)
	c.Builtins.Keep = appendUnique(c.Builtins.Keep, s.KeepBuiltins...)
	return nil
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
