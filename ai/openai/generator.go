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
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	jsonMode    bool
	limiter     *limiter
	meter       *meter
	logger      *slog.Logger
}

func newGenerator(config *ai.Config, o *options) (*Generator, error) {
	spec, err := config.Chat()
	if err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(spec.Host),
		openai.WithToken(token(config)),
		openai.WithModel(spec.ID),
	)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("component", "openai-generator")
	return &Generator{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		jsonMode:    o.jsonMode,
		limiter:     newLimiter(config.RequestsPerSecond),
		meter:       &meter{name: config.ChatModel, spec: spec, recorder: o.recorder, logger: logger},
		logger:      logger,
	}, nil
}

// NewGenerator creates a new chat generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config, opts ...Option) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newGenerator(config, applyOptions(opts))
}

// Generate sends the system prompt and the input as a two message chat
// and returns the content of the first choice.
func (g *Generator) Generate(ctx context.Context, system, input string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	}
	if g.jsonMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	response, err := g.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	took := time.Since(start)

	if len(response.Choices) < 1 {
		g.meter.record(ctx, 1, estimateTokens(system, input), 0, took)
		return "", ai.ErrEmptyResponse
	}

	choice := response.Choices[0]
	prompt := intValue(choice.GenerationInfo, "PromptTokens")
	if prompt == 0 {
		prompt = estimateTokens(system, input)
	}
	g.meter.record(ctx, 1, prompt, intValue(choice.GenerationInfo, "CompletionTokens"), took)

	g.logger.Debug("generated content", "length", len(choice.Content), "took", took)
	return choice.Content, nil
}
