package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const schemaVersion = 1

type definitionFile struct {
	SchemaVersion int          `yaml:"schema_version"`
	Workflows     []Definition `yaml:"workflows"`
}

// LoadBytes parses and validates one definition document.
func LoadBytes(data []byte) ([]Definition, error) {
	var file definitionFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}

	if file.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d, want %d", file.SchemaVersion, schemaVersion)
	}
	if err := validate(file.Workflows); err != nil {
		return nil, err
	}
	return file.Workflows, nil
}

// LoadFile loads and validates one YAML definition file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defs, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadDir loads every .yaml/.yml file in dir. Duplicate workflow ids across
// files are rejected.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var all []Definition
	seen := make(map[string]string)
	for _, path := range paths {
		defs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if prev, dup := seen[def.ID]; dup {
				return nil, fmt.Errorf("workflow %s defined in both %s and %s", def.ID, prev, path)
			}
			seen[def.ID] = path
		}
		all = append(all, defs...)
	}
	return all, nil
}

func validate(defs []Definition) error {
	ids := make(map[string]bool)
	for i, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("workflow %d: missing id", i)
		}
		if ids[def.ID] {
			return fmt.Errorf("duplicate workflow id: %s", def.ID)
		}
		ids[def.ID] = true

		if len(def.Steps) == 0 {
			return fmt.Errorf("workflow %s: must have at least one step", def.ID)
		}
		for j, step := range def.Steps {
			if step.Capability == "" {
				return fmt.Errorf("workflow %s, step %d: missing capability", def.ID, j)
			}
			if step.Action == "" {
				return fmt.Errorf("workflow %s, step %d: missing action", def.ID, j)
			}
		}
	}
	return nil
}
