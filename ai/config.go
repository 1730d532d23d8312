// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ModelKind distinguishes chat models from embedding models.
type ModelKind string

const (
	ModelKindChat      ModelKind = "chat"
	ModelKindEmbedding ModelKind = "embedding"
)

const fireworksHost = "https://api.fireworks.ai/inference/v1"

// ModelSpec describes one entry of the model table.
type ModelSpec struct {
	// ID is the identifier sent to the provider.
	ID string `yaml:"id"`

	Kind ModelKind `yaml:"kind"`

	// Host is the base URL of the OpenAI-compatible API serving the model.
	Host string `yaml:"host"`

	// InputPrice and CompletionPrice are in currency units per million
	// tokens. Embedding models only use InputPrice.
	InputPrice      float64 `yaml:"input_price"`
	CompletionPrice float64 `yaml:"completion_price"`
}

// Cost returns the price of a call that consumed the given token counts.
func (m ModelSpec) Cost(promptTokens, completionTokens int) float64 {
	cost := float64(promptTokens) * m.InputPrice / 1e6
	if m.Kind == ModelKindChat {
		cost += float64(completionTokens) * m.CompletionPrice / 1e6
	}
	return cost
}

// Config holds configuration for AI service providers.
type Config struct {
	// Models maps a model name to its spec. ChatModel and EmbeddingModel
	// must both name entries of this table.
	Models map[string]ModelSpec `yaml:"models"`

	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string `yaml:"-"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// RequestsPerSecond throttles calls per model. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithModel adds or replaces a model table entry.
func WithModel(name string, spec ModelSpec) ConfigOption {
	return func(c *Config) {
		if c.Models == nil {
			c.Models = make(map[string]ModelSpec)
		}
		c.Models[name] = spec
	}
}

// WithChatModel selects the chat model by table name.
func WithChatModel(name string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = name
	}
}

// WithEmbeddingModel selects the embedding model by table name.
func WithEmbeddingModel(name string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = name
	}
}

// WithHost points every model in the table at the same host.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		for name, spec := range c.Models {
			spec.Host = host
			c.Models[name] = spec
		}
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithRequestsPerSecond sets the per-model request rate.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// DefaultModels returns the built-in model table.
func DefaultModels() map[string]ModelSpec {
	return map[string]ModelSpec{
		"mixtral-8x22b-instruct": {
			ID:              "accounts/fireworks/models/mixtral-8x22b-instruct",
			Kind:            ModelKindChat,
			Host:            fireworksHost,
			InputPrice:      0.9,
			CompletionPrice: 0.9,
		},
		"llama-v3-8b-instruct": {
			ID:              "accounts/fireworks/models/llama-v3-8b-instruct",
			Kind:            ModelKindChat,
			Host:            fireworksHost,
			InputPrice:      0.2,
			CompletionPrice: 0.2,
		},
		"nomic-embed-text-v1.5": {
			ID:         "nomic-ai/nomic-embed-text-v1.5",
			Kind:       ModelKindEmbedding,
			Host:       fireworksHost,
			InputPrice: 0.008,
		},
		"mxbai-embed-large-v1": {
			ID:         "mixedbread-ai/mxbai-embed-large-v1",
			Kind:       ModelKindEmbedding,
			Host:       fireworksHost,
			InputPrice: 0.016,
		},
		"qwen2.5:3b": {
			ID:   "qwen2.5:3b",
			Kind: ModelKindChat,
			Host: "http://localhost:11434/v1",
		},
		"embeddinggemma": {
			ID:   "embeddinggemma",
			Kind: ModelKindEmbedding,
			Host: "http://localhost:11434/v1",
		},
	}
}

// DefaultConfig returns a Config using the hosted Mixtral and Nomic models.
func DefaultConfig() *Config {
	return &Config{
		Models:            DefaultModels(),
		ChatModel:         "mixtral-8x22b-instruct",
		EmbeddingModel:    "nomic-embed-text-v1.5",
		Temperature:       0.7,
		MaxTokens:         8000,
		RequestsPerSecond: 5,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize adds the /v1 suffix to every host that lacks it, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	for name, spec := range c.Models {
		if spec.Host != "" && !strings.HasSuffix(spec.Host, "/v1") {
			spec.Host = strings.TrimSuffix(spec.Host, "/") + "/v1"
			c.Models[name] = spec
		}
	}
}

// Chat returns the spec of the configured chat model.
func (c *Config) Chat() (ModelSpec, error) {
	return c.lookup(c.ChatModel, ModelKindChat)
}

// Embedding returns the spec of the configured embedding model.
func (c *Config) Embedding() (ModelSpec, error) {
	return c.lookup(c.EmbeddingModel, ModelKindEmbedding)
}

func (c *Config) lookup(name string, kind ModelKind) (ModelSpec, error) {
	spec, ok := c.Models[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	if spec.Kind != kind {
		return ModelSpec{}, fmt.Errorf("%w: %q is %s, want %s", ErrWrongModelKind, name, spec.Kind, kind)
	}
	return spec, nil
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	for name, spec := range c.Models {
		if spec.ID == "" {
			return fmt.Errorf("ai config: model %q has no id", name)
		}
		if spec.Host == "" {
			return fmt.Errorf("ai config: model %q has no host", name)
		}
		if spec.Kind != ModelKindChat && spec.Kind != ModelKindEmbedding {
			return fmt.Errorf("ai config: model %q has unknown kind %q", name, spec.Kind)
		}
		if spec.InputPrice < 0 || spec.CompletionPrice < 0 {
			return fmt.Errorf("ai config: model %q has a negative price", name)
		}
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if _, err := c.Chat(); err != nil {
		return fmt.Errorf("ai config: %w", err)
	}
	if _, err := c.Embedding(); err != nil {
		return fmt.Errorf("ai config: %w", err)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	return nil
}
