package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version      string                    `mapstructure:"version"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Models       map[string]ModelConfig    `mapstructure:"models"`
	Sandbox      SandboxConfig             `mapstructure:"sandbox"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator"`
	Git          GitConfig                 `mapstructure:"git"`
	Logging      LoggingConfig             `mapstructure:"logging"`
	Server       ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents reasoning-service provider configuration such as
// Anthropic, OpenAI-compatible gateways, or Ollama.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // anthropic, openai, openrouter, ollama, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// SandboxConfig controls execution-environment provisioning.
type SandboxConfig struct {
	// Backend selects the backing kind: "cloud" or "local".
	Backend string `mapstructure:"backend"`
	// FallbackBackend is tried once at startup when Backend cannot be provisioned.
	FallbackBackend string `mapstructure:"fallback_backend"`
	// WorkDir is the root for local workspaces (default: os.TempDir()/patchpilot).
	WorkDir string `mapstructure:"work_dir"`
	// RunnerURL is the base URL of the remote sandbox-runner service (cloud backend).
	RunnerURL string `mapstructure:"runner_url"`
	// RunnerToken authenticates against the sandbox-runner service.
	RunnerToken string `mapstructure:"runner_token"`
	// LeaseSeconds bounds the lifetime of one environment; every operation
	// inherits it as its hard deadline.
	LeaseSeconds int `mapstructure:"lease_seconds"`
	// CommandTimeoutSeconds bounds a single command execution.
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`
}

// OrchestratorConfig bounds the reasoning-service turn loop.
type OrchestratorConfig struct {
	MaxTurns        int     `mapstructure:"max_turns"`         // total turn cap per request
	MinSourceFiles  int     `mapstructure:"min_source_files"`  // minimum generated source files
	RequireDocs     bool    `mapstructure:"require_docs"`      // demand a documentation file
	MaxContextFiles int     `mapstructure:"max_context_files"` // files sampled into initial context
	MaxFileBytes    int     `mapstructure:"max_file_bytes"`    // per-file sample cap
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
}

// GitConfig covers commit identity and publication credentials.
type GitConfig struct {
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
	// Token is the GitHub token used for authenticated push and PR creation.
	// Left empty, the request completes without publishing.
	Token string `mapstructure:"token"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
	// File enables rolling-file output when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect, ndjson, or sse
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: PATCHPILOT_, dots replaced
// with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PATCHPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("sandbox.backend", "cloud")
	v.SetDefault("sandbox.fallback_backend", "local")
	v.SetDefault("sandbox.work_dir", "")
	v.SetDefault("sandbox.lease_seconds", 300)
	v.SetDefault("sandbox.command_timeout_seconds", 120)

	v.SetDefault("orchestrator.max_turns", 4)
	v.SetDefault("orchestrator.min_source_files", 1)
	v.SetDefault("orchestrator.require_docs", true)
	v.SetDefault("orchestrator.max_context_files", 5)
	v.SetDefault("orchestrator.max_file_bytes", 4096)
	v.SetDefault("orchestrator.max_tokens", 4000)
	v.SetDefault("orchestrator.temperature", 0.2)

	v.SetDefault("git.author_name", "Patchpilot Agent")
	v.SetDefault("git.author_email", "agent@patchpilot.dev")
	v.SetDefault("git.token", "")

	v.SetDefault("server.addr", ":8002")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "sse")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	switch strings.ToLower(strings.TrimSpace(c.Sandbox.Backend)) {
	case "cloud", "local":
	default:
		return fmt.Errorf("sandbox.backend must be one of cloud or local, got %q", c.Sandbox.Backend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Sandbox.FallbackBackend)) {
	case "", "cloud", "local":
	default:
		return fmt.Errorf("sandbox.fallback_backend must be one of cloud or local, got %q", c.Sandbox.FallbackBackend)
	}
	if c.Sandbox.FallbackBackend != "" && strings.EqualFold(c.Sandbox.FallbackBackend, c.Sandbox.Backend) {
		return errors.New("sandbox.fallback_backend must differ from sandbox.backend")
	}

	if c.Sandbox.LeaseSeconds <= 0 {
		return errors.New("sandbox.lease_seconds must be > 0")
	}
	if c.Sandbox.CommandTimeoutSeconds <= 0 {
		return errors.New("sandbox.command_timeout_seconds must be > 0")
	}
	if c.Sandbox.CommandTimeoutSeconds > c.Sandbox.LeaseSeconds {
		return errors.New("sandbox.command_timeout_seconds cannot exceed sandbox.lease_seconds")
	}
	if strings.EqualFold(c.Sandbox.Backend, "cloud") && strings.TrimSpace(c.Sandbox.RunnerURL) == "" && c.Sandbox.FallbackBackend == "" {
		return errors.New("sandbox.runner_url must be set for the cloud backend when no fallback is configured")
	}

	if c.Orchestrator.MaxTurns <= 0 {
		return errors.New("orchestrator.max_turns must be > 0")
	}
	if c.Orchestrator.MinSourceFiles < 0 {
		return errors.New("orchestrator.min_source_files must be >= 0")
	}
	if c.Orchestrator.MaxContextFiles <= 0 {
		return errors.New("orchestrator.max_context_files must be > 0")
	}
	if c.Orchestrator.MaxFileBytes <= 0 {
		return errors.New("orchestrator.max_file_bytes must be > 0")
	}

	if strings.TrimSpace(c.Git.AuthorName) == "" || strings.TrimSpace(c.Git.AuthorEmail) == "" {
		return errors.New("git.author_name and git.author_email must be set")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson", "sse":
	default:
		return fmt.Errorf("server.transport must be one of connect, ndjson, or sse, got %q", c.Server.Transport)
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return errors.New("logging rotation values must be >= 0")
	}

	return nil
}

// Lease returns the environment lease as a duration.
func (s SandboxConfig) Lease() time.Duration {
	return time.Duration(s.LeaseSeconds) * time.Second
}

// CommandTimeout returns the per-command timeout as a duration.
func (s SandboxConfig) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutSeconds) * time.Second
}
