package llm

import (
	"log/slog"
	"strings"
)

// FactoryConfig carries the provider settings from the config file.
type FactoryConfig struct {
	Provider        string
	Model           string
	OllamaURL       string
	OpenAIModel     string
	OpenAIKeyEnv    string
	AnthropicModel  string
	AnthropicKeyEnv string
}

// CreateProvider builds the configured provider, falling through the chain
// ollama → anthropic → openai until one is actually usable. Returns nil when
// nothing is configured; callers treat that as a configuration error.
func CreateProvider(log *slog.Logger, cfg FactoryConfig) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
		if p.IsConfigured() {
			log.Info("using ollama", "model", cfg.Model)
			return p
		}
		log.Warn("ollama not available, trying hosted providers")
	case "openai":
		p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIKeyEnv)
		if p.IsConfigured() {
			log.Info("using openai", "model", cfg.OpenAIModel)
			return p
		}
		log.Warn("openai key not set, trying remaining providers")
	}

	if a := NewAnthropicProvider(cfg.AnthropicModel, cfg.AnthropicKeyEnv); a.IsConfigured() {
		log.Info("using anthropic", "model", cfg.AnthropicModel)
		return a
	}
	if p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIKeyEnv); p.IsConfigured() {
		log.Info("using openai", "model", cfg.OpenAIModel)
		return p
	}

	log.Error("no LLM provider available; check Ollama is running or set an API key")
	return nil
}
