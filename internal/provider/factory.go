package provider

import "fmt"

// NewEmbedder creates an Embedder from configuration.
// Supported types: "openai", "ollama".
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an API key")
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model), nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = defaultOllamaURL
		}
		return NewOllamaEmbedder(url, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedder type: %q", cfg.Type)
	}
}

// NewCompleter creates a Completer from configuration.
// Supported types: "openai", "anthropic", "ollama".
func NewCompleter(cfg CompleterConfig) (Completer, error) {
	switch cfg.Type {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai completer requires an API key")
		}
		return NewOpenAICompleter(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic completer requires an API key")
		}
		return NewAnthropicCompleter(cfg.APIKey, cfg.Model), nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = defaultOllamaURL
		}
		return NewOllamaCompleter(url, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported completer type: %q", cfg.Type)
	}
}
