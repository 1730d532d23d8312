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

package reembed

import (
	"context"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// DefaultBatchSize is used when an iterator is given a non-positive size.
const DefaultBatchSize = 100

// ChunkIterator pages through every stored chunk in ID order.
type ChunkIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates an iterator fetching batchSize chunks per page.
func NewChunkIterator(repo storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{repo: repo, batchSize: batchSize}
}

// ForEach calls fn with each page of chunks. Iteration stops at the first
// error from fn or the repository, or when ctx is done.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	var after core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.repo.ListChunks(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		if len(page) < it.batchSize {
			return nil
		}
		after = page[len(page)-1].Id
	}
}

// Count returns how many chunks ForEach would visit for which keep returns
// true. A nil keep counts every chunk.
func (it *ChunkIterator) Count(ctx context.Context, keep func(*core.Chunk) bool) (int, error) {
	total := 0
	err := it.ForEach(ctx, func(page []*core.Chunk) error {
		for _, chunk := range page {
			if keep == nil || keep(chunk) {
				total++
			}
		}
		return nil
	})
	return total, err
}
