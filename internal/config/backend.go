package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend persists non-secret settings addressed by dotted keys such as
// "generator.model".
type Backend interface {
	// Lookup returns the scalar stored under key in its text form.
	Lookup(key string) (raw string, ok bool, err error)
	// Store writes a typed value under key.
	Store(key string, value any) error
}

// baseDir resolves an XDG base directory, falling back to home/rel.
func baseDir(env string, rel ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, rel...)...)
}

func defaultDataDir() string {
	return filepath.Join(baseDir("XDG_DATA_HOME", ".local", "share"), "folio")
}

func configFilePath() string {
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), "folio", "config.yaml")
}

// yamlFile keeps settings in a YAML document whose sections mirror the
// dotted keys:
//
//	generator:
//	  provider: gemini
//	  timeout: 45s
type yamlFile struct {
	path string
	tree map[string]any
}

func openYAMLFile(path string) (*yamlFile, error) {
	f := &yamlFile{path: path, tree: map[string]any{}}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f.tree); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.tree == nil {
		f.tree = map[string]any{}
	}
	return f, nil
}

func (f *yamlFile) Lookup(key string) (string, bool, error) {
	var node any = f.tree
	for _, part := range strings.Split(key, ".") {
		section, ok := node.(map[string]any)
		if !ok {
			return "", false, nil
		}
		if node, ok = section[part]; !ok {
			return "", false, nil
		}
	}
	switch v := node.(type) {
	case nil:
		return "", false, nil
	case map[string]any, []any:
		return "", true, fmt.Errorf("%s is a section, not a value", key)
	default:
		return fmt.Sprint(v), true, nil
	}
}

func (f *yamlFile) Store(key string, value any) error {
	parts := strings.Split(key, ".")
	section := f.tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := section[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			section[part] = next
		}
		section = next
	}
	section[parts[len(parts)-1]] = value

	out, err := yaml.Marshal(f.tree)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(f.path, out, 0o600)
}
