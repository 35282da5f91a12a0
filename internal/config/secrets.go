package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// errNoSecret is returned by fileKeychain.Get for an absent entry.
var errNoSecret = errors.New("secret not found")

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// fileKeychain stores secrets as a flat JSON object keyed "service/account"
// in a file only the owner can read.
type fileKeychain struct {
	path string
}

func (k fileKeychain) entries() (map[string]string, error) {
	raw, err := os.ReadFile(k.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]string{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("secrets file %s is corrupt: %w", k.path, err)
	}
	return entries, nil
}

func (k fileKeychain) Get(service, account string) (string, error) {
	entries, err := k.entries()
	if err != nil {
		return "", err
	}
	v, ok := entries[service+"/"+account]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", service, account, errNoSecret)
	}
	return v, nil
}

func (k fileKeychain) Set(service, account, value string) error {
	entries, err := k.entries()
	if err != nil {
		return err
	}
	entries[service+"/"+account] = value

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	return os.WriteFile(k.path, raw, 0o600)
}
