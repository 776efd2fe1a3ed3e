package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Notify    NotifyConfig    `yaml:"notify"`
	Store     StoreConfig     `yaml:"store"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          string `yaml:"port"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// GitHubConfig holds GitHub App authentication settings.
type GitHubConfig struct {
	AppID          string `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ProvidersConfig groups embedding and LLM provider configs.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding"`
	LLM       ProviderConfig `yaml:"llm"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// IndexingConfig holds repository indexing settings.
type IndexingConfig struct {
	BaseDir         string   `yaml:"base_dir"`
	Workers         int      `yaml:"workers"`
	BlobConcurrency int      `yaml:"blob_concurrency"`
	MaxAttempts     int      `yaml:"max_attempts"`
	IndexCommand    []string `yaml:"index_command"`
	DocsRoot        string   `yaml:"docs_root"`
	PollIntervalRaw string   `yaml:"poll_interval"`
}

// PipelineConfig holds documentation pipeline tuning knobs.
type PipelineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	RequestTimeoutRaw   string  `yaml:"request_timeout"`
}

// PollInterval returns the parsed worker poll interval duration.
func (i IndexingConfig) PollInterval() (time.Duration, error) {
	if i.PollIntervalRaw == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(i.PollIntervalRaw)
}

// RequestTimeout returns the parsed provider request timeout.
func (p PipelineConfig) RequestTimeout() (time.Duration, error) {
	if p.RequestTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(p.RequestTimeoutRaw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "3000"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.manicule/manicule.db"
	}
	if cfg.Indexing.BaseDir == "" {
		cfg.Indexing.BaseDir = "~/.manicule/indexed_repos"
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 2
	}
	if cfg.Indexing.BlobConcurrency == 0 {
		cfg.Indexing.BlobConcurrency = 5
	}
	if cfg.Indexing.MaxAttempts == 0 {
		cfg.Indexing.MaxAttempts = 3
	}
	if cfg.Indexing.DocsRoot == "" {
		cfg.Indexing.DocsRoot = "docs"
	}
	if cfg.Indexing.PollIntervalRaw == "" {
		cfg.Indexing.PollIntervalRaw = "10s"
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.6
	}
	if cfg.Pipeline.SimilarityThreshold == 0 {
		cfg.Pipeline.SimilarityThreshold = 0.4
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.RequestTimeoutRaw == "" {
		cfg.Pipeline.RequestTimeoutRaw = "30s"
	}
}

func validate(cfg *Config) error {
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Pipeline.SimilarityThreshold < 0 || cfg.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", cfg.Pipeline.SimilarityThreshold)
	}
	if cfg.Pipeline.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", cfg.Pipeline.TopK)
	}
	if cfg.Indexing.Workers < 1 {
		return fmt.Errorf("indexing workers must be at least 1, got %d", cfg.Indexing.Workers)
	}
	if cfg.Indexing.BlobConcurrency < 1 {
		return fmt.Errorf("blob_concurrency must be at least 1, got %d", cfg.Indexing.BlobConcurrency)
	}
	if cfg.Indexing.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", cfg.Indexing.MaxAttempts)
	}

	if _, err := time.ParseDuration(cfg.Pipeline.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Pipeline.RequestTimeoutRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Indexing.PollIntervalRaw); err != nil {
		return fmt.Errorf("invalid poll_interval %q: %w", cfg.Indexing.PollIntervalRaw, err)
	}

	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}

	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "": true}
	if !validLLMTypes[cfg.Providers.LLM.Type] {
		return fmt.Errorf("unsupported LLM provider type: %s", cfg.Providers.LLM.Type)
	}

	return nil
}
