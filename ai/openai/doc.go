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

// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements the ai.AIProvider interface using the langchaingo
// library to communicate with OpenAI or OpenAI-compatible services (such as
// Fireworks, Ollama, LocalAI, or vLLM). Each service throttles its calls
// with a token bucket and meters every call into a core.UsageRecord whose
// cost comes from the model table prices.
//
// # Usage
//
//	provider, err := openai.NewProvider(ai.DefaultConfig(),
//	    openai.WithUsageRecorder(store.Usage),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	ctx = ai.WithCallInfo(ctx, owner, "embed_facts")
//	vectors, err := provider.Embedder().EmbedTexts(ctx, facts)
package openai
