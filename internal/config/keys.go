package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// setting binds a dotted config key to a Config field. field returns a
// pointer to a string, int, bool or time.Duration inside cfg.
type setting struct {
	key    string
	secret bool
	envVar string
	field  func(cfg *Config) any
}

var settings = []setting{
	{key: "server.port", field: func(c *Config) any { return &c.Server.Port }},
	{key: "storage.data_dir", field: func(c *Config) any { return &c.Storage.DataDir }},
	{key: "log.level", field: func(c *Config) any { return &c.Log.Level }},
	{key: "generator.provider", field: func(c *Config) any { return &c.Generator.Provider }},
	{key: "generator.model", field: func(c *Config) any { return &c.Generator.Model }},
	{key: "generator.timeout", field: func(c *Config) any { return &c.Generator.Timeout }},
	{key: "generator.base_url", field: func(c *Config) any { return &c.Generator.BaseURL }},
	{key: "ollama.base_url", field: func(c *Config) any { return &c.Ollama.BaseURL }},
	{key: "role.enabled", field: func(c *Config) any { return &c.Role.Enabled }},
	{key: "role.model", field: func(c *Config) any { return &c.Role.Model }},
	{key: "executor.max_batch_depth", field: func(c *Config) any { return &c.Executor.MaxBatchDepth }},
	{key: "cache.redis_url", field: func(c *Config) any { return &c.Cache.RedisURL }},
	{key: "cache.ttl", field: func(c *Config) any { return &c.Cache.TTL }},

	{key: "keys.openrouter", secret: true, envVar: "FOLIO_OPENROUTER_API_KEY", field: func(c *Config) any { return &c.Keys.OpenRouter }},
	{key: "keys.openai", secret: true, envVar: "FOLIO_OPENAI_API_KEY", field: func(c *Config) any { return &c.Keys.OpenAI }},
	{key: "keys.gemini", secret: true, envVar: "FOLIO_GEMINI_API_KEY", field: func(c *Config) any { return &c.Keys.Gemini }},
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// env names the variable that overrides the setting: FOLIO_ followed by the
// upper-cased key with dots turned into underscores.
func (s setting) env() string {
	if s.envVar != "" {
		return s.envVar
	}
	return "FOLIO_" + strings.ToUpper(strings.ReplaceAll(s.key, ".", "_"))
}

// decode parses raw according to the field's type without touching cfg.
func (s setting) decode(raw string) (any, error) {
	var scratch Config
	switch s.field(&scratch).(type) {
	case *int:
		return strconv.Atoi(raw)
	case *bool:
		return strconv.ParseBool(raw)
	case *time.Duration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

// assign parses raw and stores it in cfg.
func (s setting) assign(cfg *Config, raw string) error {
	v, err := s.decode(raw)
	if err != nil {
		return err
	}
	switch p := s.field(cfg).(type) {
	case *int:
		*p = v.(int)
	case *bool:
		*p = v.(bool)
	case *time.Duration:
		*p = v.(time.Duration)
	case *string:
		*p = v.(string)
	}
	return nil
}

// text renders the field's current value.
func (s setting) text(cfg Config) string {
	switch p := s.field(&cfg).(type) {
	case *string:
		return *p
	case *int:
		return strconv.Itoa(*p)
	case *bool:
		return strconv.FormatBool(*p)
	case *time.Duration:
		return p.String()
	}
	return ""
}

// overlay applies every non-empty value produced by source. Values that do
// not parse are reported and skipped so one typo does not block startup.
func overlay(cfg *Config, origin string, source func(setting) (string, bool, error)) error {
	for _, s := range settings {
		raw, ok, err := source(s)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", origin, s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		if err := s.assign(cfg, raw); err != nil {
			slog.Warn("config: ignoring invalid value", "source", origin, "key", s.key, "value", raw, "error", err)
		}
	}
	return nil
}

func fromBackend(b Backend) func(setting) (string, bool, error) {
	return func(s setting) (string, bool, error) {
		if s.secret {
			return "", false, nil
		}
		return b.Lookup(s.key)
	}
}

func fromEnv(s setting) (string, bool, error) {
	v, ok := os.LookupEnv(s.env())
	return v, ok, nil
}

// fromKeychain fills secrets that are still empty after the environment.
func fromKeychain(cfg *Config, kc Keychain) func(setting) (string, bool, error) {
	return func(s setting) (string, bool, error) {
		if !s.secret || s.text(*cfg) != "" {
			return "", false, nil
		}
		v, err := kc.Get(secretService, s.key)
		return v, err == nil, nil
	}
}
