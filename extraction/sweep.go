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

package extraction

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/poiesic/minutes/core"
)

// SweepOptions selects the chunks a sweep processes.
type SweepOptions struct {
	// Force re-extracts every chunk, not only those never extracted.
	Force bool

	// Progress, if set, is called after each chunk is processed.
	Progress func(processed, total int)
}

// SweepResult summarizes a sweep.
type SweepResult struct {
	Scanned   int
	Extracted int
	Embedded  int
	Failed    int
}

type sweepJob struct {
	chunk     *core.Chunk
	embedOnly bool
}

// Sweep processes the extraction backlog on the worker pool. Chunks never
// extracted get extract+embed, chunks whose facts lack embeddings get
// embedded. Failures are logged and counted. With Force every chunk is
// re-extracted.
func (e *Extractor) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	result := &SweepResult{}
	var jobs []sweepJob

	var after core.ID
	for {
		page, err := e.chunks.ListChunks(ctx, after, e.config.BatchSize)
		if err != nil {
			return result, err
		}
		for _, chunk := range page {
			result.Scanned++
			switch {
			case opts.Force || !chunk.HasFacts():
				jobs = append(jobs, sweepJob{chunk: chunk})
			case len(chunk.Facts) > 0 && !chunk.HasEmbeddings():
				jobs = append(jobs, sweepJob{chunk: chunk, embedOnly: true})
			}
		}
		if len(page) < e.config.BatchSize {
			break
		}
		after = page[len(page)-1].Id
	}

	e.logger.Info("starting extraction sweep", "scanned", result.Scanned, "pending", len(jobs), "force", opts.Force)

	var (
		wg                          sync.WaitGroup
		extracted, embedded, failed atomic.Int64
		processed                   atomic.Int64
		progressMu                  sync.Mutex
	)
	report := func() {
		n := int(processed.Add(1))
		if opts.Progress != nil {
			progressMu.Lock()
			opts.Progress(n, len(jobs))
			progressMu.Unlock()
		}
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		job := job
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			defer report()
			if ctx.Err() != nil {
				return
			}

			if job.embedOnly {
				if err := e.Embed(ctx, job.chunk.Id, job.chunk.Facts, job.chunk.Owner); err != nil {
					e.logger.Error("failed to embed chunk", "chunk_id", job.chunk.Id, "err", err)
					failed.Add(1)
					return
				}
				embedded.Add(1)
				return
			}

			facts, err := e.Extract(ctx, job.chunk)
			if err != nil {
				e.logger.Error("failed to extract chunk", "chunk_id", job.chunk.Id, "err", err)
				failed.Add(1)
				return
			}
			extracted.Add(1)
			if err := e.Embed(ctx, job.chunk.Id, facts, job.chunk.Owner); err != nil {
				e.logger.Error("failed to embed chunk", "chunk_id", job.chunk.Id, "err", err)
				failed.Add(1)
				return
			}
			if len(facts) > 0 {
				embedded.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			e.logger.Error("failed to submit chunk", "chunk_id", job.chunk.Id, "err", err)
			failed.Add(1)
		}
	}
	wg.Wait()

	result.Extracted = int(extracted.Load())
	result.Embedded = int(embedded.Load())
	result.Failed = int(failed.Load())
	e.logger.Info("extraction sweep complete",
		"extracted", result.Extracted,
		"embedded", result.Embedded,
		"failed", result.Failed)
	return result, ctx.Err()
}
