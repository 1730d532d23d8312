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
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
)

// meter turns one model call into a usage record and hands it to the
// recorder. Recording failures are logged and never fail the call.
type meter struct {
	name     string
	spec     ai.ModelSpec
	recorder ai.UsageRecorder
	logger   *slog.Logger
}

func (m *meter) record(ctx context.Context, inputs, promptTokens, completionTokens int, took time.Duration) {
	if m.recorder == nil {
		return
	}
	info := ai.CallInfoFrom(ctx)
	record := &core.UsageRecord{
		Id:               uuid.NewString(),
		Owner:            info.Owner,
		Model:            m.name,
		Task:             info.Task,
		Inputs:           inputs,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Took:             took,
		Cost:             m.spec.Cost(promptTokens, completionTokens),
		CreatedAt:        time.Now(),
	}
	// Recording must outlive a canceled call.
	if err := m.recorder.RecordUsage(context.WithoutCancel(ctx), record); err != nil {
		m.logger.Warn("failed to record usage", "model", m.name, "task", info.Task, "err", err)
	}
}

// estimateTokens approximates the token count of texts at four characters
// per token. The embeddings endpoint does not report usage back through the
// client.
func estimateTokens(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += (utf8.RuneCountInString(text) + 3) / 4
	}
	return total
}

// intValue reads a token count out of a generation info map.
func intValue(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
