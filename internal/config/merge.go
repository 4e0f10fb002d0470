package config

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConflictError is returned by Merge when two configuration files set the
// same path to different values.
type ConflictError struct {
	Path  string
	Files []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict for config path %s (%s)", e.Path, strings.Join(e.Files, ", "))
}

// Merge reads the given configuration files, walking directories for .yml,
// .yaml and .json files, and merges them into a single YAML document. Maps are
// merged recursively; for any other value the last file wins unless
// conflictError is set.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {
	var paths []string
	for _, f := range configFiles {
		if err := filepath.WalkDir(f, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if path != f && !isConfigFile(path) {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	docs := make([]doc, 0, len(paths))
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", f, err)
		}
		var x map[string]any
		if err := yaml.Unmarshal(bs, &x); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %w", f, err)
		}
		docs = append(docs, doc{file: f, values: x})
	}

	m := merger{conflictError: conflictError, origins: map[string]string{}}
	merged := make(map[string]any)
	for _, d := range docs {
		if err := m.merge(merged, d.values, "", d.file); err != nil {
			return nil, err
		}
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}

	return bs, nil
}

func isConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}

type doc struct {
	file   string
	values map[string]any
}

type merger struct {
	conflictError bool
	origins       map[string]string // config path -> file that set it
}

func (m *merger) merge(result, values map[string]any, path, file string) error {
	for _, key := range slices.Sorted(maps.Keys(values)) { // Sort keys to ensure deterministic merge errors.
		value := values[key]
		p := path + "/" + key
		if existing, ok := result[key]; ok {
			existingMap, ok1 := existing.(map[string]any)
			valueMap, ok2 := value.(map[string]any)
			if ok1 && ok2 {
				if err := m.merge(existingMap, valueMap, p, file); err != nil {
					return err
				}
				continue
			}

			if m.conflictError && !reflect.DeepEqual(existing, value) {
				return &ConflictError{Path: p, Files: []string{m.origins[p], file}}
			}
		}
		if valueMap, ok := value.(map[string]any); ok {
			value = m.claim(valueMap, p, file)
		}
		m.origins[p] = file
		result[key] = value
	}
	return nil
}

// claim copies a map taken over from a file, recording the file as the origin
// of every nested path.
func (m *merger) claim(values map[string]any, path, file string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		p := path + "/" + k
		if vm, ok := v.(map[string]any); ok {
			v = m.claim(vm, p, file)
		}
		m.origins[p] = file
		out[k] = v
	}
	return out
}
