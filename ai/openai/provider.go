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

package openai

import (
	"log/slog"

	"github.com/poiesic/minutes/ai"
)

// Option configures a Provider, Embedder or Generator.
type Option func(*options)

type options struct {
	recorder ai.UsageRecorder
	logger   *slog.Logger
	jsonMode bool
}

// WithUsageRecorder sends one usage record per model call to recorder.
func WithUsageRecorder(recorder ai.UsageRecorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithLogger sets the logger services derive their component loggers from.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithJSONMode toggles the JSON response format on generation requests.
// It is on by default.
func WithJSONMode(enabled bool) Option {
	return func(o *options) {
		o.jsonMode = enabled
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: slog.Default(), jsonMode: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// token returns the bearer token. Local OpenAI-compatible servers accept
// any value, so "none" stands in for an empty key.
func token(config *ai.Config) string {
	if config.APIKey == "" {
		return "none"
	}
	return config.APIKey
}

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and generator instances.
type Provider struct {
	config    *ai.Config
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config, opts ...Option) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	embedder, err := newEmbedder(config, o.recorder, o.logger)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerator(config, o)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:    config,
		embedder:  embedder,
		generator: generator,
		logger:    o.logger.With("component", "openai-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the chat completion service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
