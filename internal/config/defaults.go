package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROMPTLAB"

// Entry documents one configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// Env returns the environment variable that overrides the key.
func (e Entry) Env() string {
	return EnvName(e.Key)
}

// EnvName maps a dotted config key to its environment variable.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// DefaultEntries returns every configuration key with its default value.
// The manager registers these as viper defaults so environment overrides
// reach nested keys.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// Server
		{Key: "server.host", Value: d.Server.Host, Description: "Address the HTTP server binds to"},
		{Key: "server.port", Value: d.Server.Port, Description: "Port the HTTP server listens on"},

		// Store
		{Key: "store.backend", Value: d.Store.Backend, Description: "Persistence backend: defra, sql or memory"},
		{Key: "store.dialect", Value: d.Store.Dialect, Description: "SQL dialect: mysql, postgres or sqlite"},
		{Key: "store.dsn", Value: d.Store.DSN, Description: "SQL connection string (empty sqlite DSN uses the home directory)"},

		// DefraDB
		{Key: "defra.container_name", Value: d.Defra.ContainerName, Description: "Docker container name for DefraDB"},
		{Key: "defra.image", Value: d.Defra.Image, Description: "Docker image for DefraDB"},
		{Key: "defra.port", Value: d.Defra.Port, Description: "Host port bound to DefraDB"},

		// LLM
		{Key: "llm.api_key", Value: d.LLM.APIKey, Description: "OpenRouter API key (uses environment variable)"},
		{Key: "llm.base_url", Value: d.LLM.BaseURL, Description: "OpenAI-compatible API base URL"},
		{Key: "llm.default_model", Value: d.LLM.DefaultModel, Description: "Model used when a run names none"},
		{Key: "llm.timeout_seconds", Value: d.LLM.TimeoutSeconds, Description: "HTTP timeout in seconds for model requests"},
		{Key: "llm.max_retries", Value: d.LLM.MaxRetries, Description: "Maximum retry attempts for failed model requests"},
		{Key: "llm.stream", Value: d.LLM.Stream, Description: "Stream completions; false waits for the whole reply"},
	}
}

// GetDefault returns the default entry for a config key.
func GetDefault(key string) (Entry, error) {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%w for key %q", ErrNoDefault, key)
}
