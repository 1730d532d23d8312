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

// Package ai provides abstractions for the model services used by minutes.
//
// The package defines the collaborator interfaces that the pipeline depends
// on, so chunk extraction, clustering and retrieval can be tested without
// a model server:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces a completion for a system prompt and a context
//   - AIProvider: Aggregates the two for initialization and lifecycle
//   - UsageRecorder: Receives one usage record per metered call
//
// # Model table
//
// Config.Models maps a model name to a ModelSpec holding the provider id,
// kind, host and per-million-token prices. Config.ChatModel and
// Config.EmbeddingModel select entries by name, and Config.Validate rejects
// unknown names or mismatched kinds at startup.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("MINUTES_API_KEY")))
//	provider, err := openai.NewProvider(cfg, openai.WithUsageRecorder(store.Usage))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	ctx = ai.WithCallInfo(ctx, "alice", "fact_extraction")
//	answer, err := provider.Generator().Generate(ctx, system, context)
package ai
