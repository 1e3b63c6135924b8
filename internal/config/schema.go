package config

import (
	"net"
	"time"

	"github.com/jackzampolin/promptlab/internal/defra"
	"github.com/jackzampolin/promptlab/internal/providers"
)

// Config holds promptlab configuration.
// Stored at: ~/.promptlab/config.yaml
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Defra  DefraConfig  `mapstructure:"defra" yaml:"defra"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// Store backends.
const (
	BackendDefra  = "defra"
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "defra", "sql" or "memory"
	Dialect string `mapstructure:"dialect" yaml:"dialect"` // "mysql", "postgres" or "sqlite" (sql backend only)
	DSN     string `mapstructure:"dsn" yaml:"dsn"`         // Empty sqlite DSN means {home}/promptlab.db
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: promptlab-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// LLMConfig configures the OpenRouter-compatible model endpoint.
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	DefaultModel   string `mapstructure:"default_model" yaml:"default_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
	// Stream selects streamed completions; false makes one buffered call per run.
	Stream bool `mapstructure:"stream" yaml:"stream"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Store: StoreConfig{
			Backend: BackendDefra,
			Dialect: "sqlite",
		},
		Defra: DefraConfig{
			ContainerName: defra.DefaultContainerName,
			Image:         defra.DefaultImage,
			Port:          defra.DefaultPort,
		},
		LLM: LLMConfig{
			APIKey:         "${OPENROUTER_API_KEY}",
			BaseURL:        providers.OpenRouterBaseURL,
			DefaultModel:   "anthropic/claude-sonnet-4",
			TimeoutSeconds: 600,
			MaxRetries:     3,
			Stream:         true,
		},
	}
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// URL returns the base URL clients use to reach the server.
func (c ServerConfig) URL() string {
	return "http://" + c.Addr()
}

// DockerConfig converts the section for defra.NewDockerManager.
func (c DefraConfig) DockerConfig(dataPath string) defra.DockerConfig {
	return defra.DockerConfig{
		ContainerName: c.ContainerName,
		Image:         c.Image,
		HostPort:      c.Port,
		DataPath:      dataPath,
	}
}

// URL returns the DefraDB HTTP endpoint on the host.
func (c DefraConfig) URL() string {
	port := c.Port
	if port == "" {
		port = defra.DefaultPort
	}
	return "http://localhost:" + port
}

// ResolvedAPIKey returns the API key with ${ENV_VAR} references expanded.
func (c LLMConfig) ResolvedAPIKey() string {
	return ResolveEnvVars(c.APIKey)
}

// OpenRouterConfig converts the section for providers.NewOpenRouterClient.
func (c LLMConfig) OpenRouterConfig() providers.OpenRouterConfig {
	return providers.OpenRouterConfig{
		APIKey:       c.ResolvedAPIKey(),
		BaseURL:      c.BaseURL,
		DefaultModel: c.DefaultModel,
		Timeout:      time.Duration(c.TimeoutSeconds) * time.Second,
		MaxRetries:   c.MaxRetries,
	}
}
