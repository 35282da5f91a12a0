package config

import (
	"cmp"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// secretService is the service name under which secrets are stored.
const secretService = "folio"

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Generator GeneratorConfig
	Ollama    OllamaConfig
	Role      RoleConfig
	Executor  ExecutorConfig
	Cache     CacheConfig
	Keys      KeysConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type GeneratorConfig struct {
	// Provider is one of openrouter, openai, gemini or ollama.
	Provider string
	Model    string
	Timeout  time.Duration
	BaseURL  string
}

type OllamaConfig struct {
	BaseURL string
}

type RoleConfig struct {
	Enabled bool
	Model   string
}

type ExecutorConfig struct {
	MaxBatchDepth int
}

type CacheConfig struct {
	// RedisURL enables the plan cache when set.
	RedisURL string
	TTL      time.Duration
}

// KeysConfig holds provider credentials. They are never written to the
// config file.
type KeysConfig struct {
	OpenRouter string
	OpenAI     string
	Gemini     string
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Port: 4100},
		Storage:   StorageConfig{DataDir: defaultDataDir()},
		Log:       LogConfig{Level: "info"},
		Generator: GeneratorConfig{Provider: "openrouter", Timeout: 30 * time.Second},
		Ollama:    OllamaConfig{BaseURL: "http://localhost:11434"},
		Role:      RoleConfig{Enabled: true},
		Executor:  ExecutorConfig{MaxBatchDepth: 3},
		Cache:     CacheConfig{TTL: 24 * time.Hour},
	}
}

// Load builds the configuration from, in rising precedence: defaults, the
// YAML config file, FOLIO_* variables (a .env file in the working directory
// fills the ones not already exported) and, for API keys the environment
// leaves empty, the secrets file.
func Load() (Config, error) {
	f, err := openYAMLFile(configFilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(f, NewKeychain(), ".env")
}

// Keychain reads and writes secrets.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the secrets file store under the data directory.
func NewKeychain() Keychain {
	return fileKeychain{path: secretsFilePath()}
}

func loadWith(b Backend, kc Keychain, dotenv string) (Config, error) {
	cfg := defaults()
	if err := overlay(&cfg, "config file", fromBackend(b)); err != nil {
		return Config{}, err
	}

	if dotenv != "" {
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}
	if err := overlay(&cfg, "environment", fromEnv); err != nil {
		return Config{}, err
	}
	if err := overlay(&cfg, "secrets", fromKeychain(&cfg, kc)); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the batch depth and that the selected provider is known
// and, unless it runs locally, has an API key.
func (c Config) Validate() error {
	if c.Executor.MaxBatchDepth < 1 {
		return fmt.Errorf("executor.max_batch_depth must be at least 1, got %d", c.Executor.MaxBatchDepth)
	}

	provider := cmp.Or(strings.ToLower(c.Generator.Provider), "openrouter")
	if provider == "ollama" {
		return nil
	}
	key, ok := lookupSetting("keys." + provider)
	if !ok {
		return fmt.Errorf("unknown generator.provider %q (want openrouter, openai, gemini or ollama)", c.Generator.Provider)
	}
	if key.text(c) == "" {
		return fmt.Errorf("missing required config: API key for provider %s. Set it via environment variable %s", provider, key.env())
	}
	return nil
}

const apiTokenAccount = "api_token"

// GetAPIToken returns the bearer token protecting the HTTP API. FOLIO_API_TOKEN
// wins; otherwise the token is read from kc, and generated and stored there
// on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if v := os.Getenv("FOLIO_API_TOKEN"); v != "" {
		return v, nil
	}
	if v, err := kc.Get(secretService, apiTokenAccount); err == nil && v != "" {
		return v, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}
