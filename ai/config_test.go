package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig() *Config {
	return &Config{
		Models: map[string]ModelSpec{
			"chat":  {ID: "qwen2.5:3b", Kind: ModelKindChat, Host: "http://localhost:11434"},
			"embed": {ID: "embeddinggemma", Kind: ModelKindEmbedding, Host: "http://localhost:11434"},
		},
		ChatModel:      "chat",
		EmbeddingModel: "embed",
		Temperature:    0.7,
		MaxTokens:      2000,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mixtral-8x22b-instruct", cfg.ChatModel)
	assert.Equal(t, "nomic-embed-text-v1.5", cfg.EmbeddingModel)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 8000, cfg.MaxTokens)

	chat, err := cfg.Chat()
	require.NoError(t, err)
	assert.Equal(t, "accounts/fireworks/models/mixtral-8x22b-instruct", chat.ID)

	embed, err := cfg.Embedding()
	require.NoError(t, err)
	assert.Equal(t, "nomic-ai/nomic-embed-text-v1.5", embed.ID)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with local models", func(t *testing.T) {
		cfg := NewConfig(
			WithChatModel("qwen2.5:3b"),
			WithEmbeddingModel("embeddinggemma"),
			WithAPIKey("secret"),
		)

		assert.Equal(t, "qwen2.5:3b", cfg.ChatModel)
		assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		require.NoError(t, cfg.Validate())
	})

	t.Run("with custom model", func(t *testing.T) {
		cfg := NewConfig(
			WithModel("gpt", ModelSpec{ID: "gpt-4o-mini", Kind: ModelKindChat, Host: "https://api.openai.com/v1"}),
			WithChatModel("gpt"),
		)

		chat, err := cfg.Chat()
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", chat.ID)
	})

	t.Run("with host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))
		for name, spec := range cfg.Models {
			assert.Equal(t, "http://custom:8080/v1", spec.Host, name)
		}
	})

	t.Run("with rate", func(t *testing.T) {
		cfg := NewConfig(WithRequestsPerSecond(0))
		assert.Zero(t, cfg.RequestsPerSecond)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already has /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"has trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Models: map[string]ModelSpec{"m": {Host: tt.host}}}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.Models["m"].Host)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config normalizes hosts", func(t *testing.T) {
		cfg := localConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.Models["chat"].Host)
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing chat model",
			mutate:  func(c *Config) { c.ChatModel = "" },
			wantMsg: "ChatModel",
		},
		{
			name:    "missing embedding model",
			mutate:  func(c *Config) { c.EmbeddingModel = "" },
			wantMsg: "EmbeddingModel",
		},
		{
			name:    "unknown chat model",
			mutate:  func(c *Config) { c.ChatModel = "nope" },
			wantErr: ErrUnknownModel,
		},
		{
			name:    "embedding model used for chat",
			mutate:  func(c *Config) { c.ChatModel = "embed" },
			wantErr: ErrWrongModelKind,
		},
		{
			name:    "chat model used for embeddings",
			mutate:  func(c *Config) { c.EmbeddingModel = "chat" },
			wantErr: ErrWrongModelKind,
		},
		{
			name: "model without id",
			mutate: func(c *Config) {
				c.Models["other"] = ModelSpec{Kind: ModelKindChat, Host: "http://h/v1"}
			},
			wantMsg: "no id",
		},
		{
			name: "model without host",
			mutate: func(c *Config) {
				c.Models["other"] = ModelSpec{ID: "x", Kind: ModelKindChat}
			},
			wantMsg: "no host",
		},
		{
			name: "model with unknown kind",
			mutate: func(c *Config) {
				c.Models["other"] = ModelSpec{ID: "x", Kind: "audio", Host: "http://h/v1"}
			},
			wantMsg: "unknown kind",
		},
		{
			name: "negative price",
			mutate: func(c *Config) {
				c.Models["other"] = ModelSpec{ID: "x", Kind: ModelKindChat, Host: "http://h/v1", InputPrice: -1}
			},
			wantMsg: "negative price",
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantMsg: "Temperature",
		},
		{
			name:    "max tokens not positive",
			mutate:  func(c *Config) { c.MaxTokens = 0 },
			wantMsg: "MaxTokens",
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.RequestsPerSecond = -1 },
			wantMsg: "RequestsPerSecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestModelSpec_Cost(t *testing.T) {
	chat := ModelSpec{Kind: ModelKindChat, InputPrice: 0.9, CompletionPrice: 0.5}
	assert.InDelta(t, 0.9+0.25, chat.Cost(1_000_000, 500_000), 1e-9)

	embed := ModelSpec{Kind: ModelKindEmbedding, InputPrice: 0.008, CompletionPrice: 100}
	assert.InDelta(t, 0.008*2, embed.Cost(2_000_000, 1_000_000), 1e-9, "completion tokens are free for embeddings")
}

func TestConfigValidate_Integration(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
	require.NoError(t, DefaultConfig().Validate())
}
