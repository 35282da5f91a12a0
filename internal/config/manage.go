package config

import "fmt"

// KeyInfo is one row of `folio config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists every setting with its effective value. Secret values are
// replaced by "(set)" or "(unset)".
func ShowAll(cfg Config) []KeyInfo {
	rows := make([]KeyInfo, 0, len(settings))
	for _, s := range settings {
		v := s.text(cfg)
		if s.secret {
			v = "(unset)"
			if s.text(cfg) != "" {
				v = "(set)"
			}
		}
		rows = append(rows, KeyInfo{Key: s.key, EnvVar: s.env(), Value: v})
	}
	return rows
}

// SetKey validates value and writes it to the config file.
func SetKey(key, value string) error {
	f, err := openYAMLFile(configFilePath())
	if err != nil {
		return err
	}
	return setKey(f, key, value)
}

func setKey(b Backend, key, value string) error {
	s, ok := lookupSetting(key)
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if s.secret {
		return fmt.Errorf("%s is a secret and is not stored in the config file; export %s instead", key, s.env())
	}
	v, err := s.decode(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	switch v.(type) {
	case int, bool:
		return b.Store(key, v)
	default:
		return b.Store(key, value)
	}
}

// ValidKeys lists the keys SetKey accepts.
func ValidKeys() []string {
	var keys []string
	for _, s := range settings {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
