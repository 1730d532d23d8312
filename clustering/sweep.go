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

package clustering

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/minutes/core"
)

// SweepOptions controls a cluster sweep.
type SweepOptions struct {
	// Force deletes every cluster and rebuilds all documents.
	Force bool

	// Progress, if set, is called after each document is clustered.
	Progress func(processed, total int)
}

// SweepResult summarizes a cluster sweep.
type SweepResult struct {
	Clustered int
	Skipped   int // Documents whose chunks are not fully embedded yet
	Orphans   int // Documents whose clusters were deleted
	Failed    int
}

// Sweep clusters documents that have chunks but no clusters and deletes
// the clusters of documents that no longer have chunks. With Force, all
// clusters are deleted first and every document with chunks is rebuilt.
func (e *Engine) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	result := &SweepResult{}

	chunked, err := e.chunks.DocumentIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list chunked documents: %w", err)
	}

	var pending []core.ID
	if opts.Force {
		deleted, err := e.clusters.DeleteAllClusters(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to delete clusters: %w", err)
		}
		e.logger.Info("deleted all clusters", "count", deleted)
		pending = chunked
	} else {
		clustered, err := e.clusters.DocumentIDs(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to list clustered documents: %w", err)
		}
		hasChunks := toSet(chunked)
		hasClusters := toSet(clustered)

		for _, id := range clustered {
			if hasChunks[id] {
				continue
			}
			if _, err := e.clusters.DeleteClustersByDocument(ctx, id); err != nil {
				e.logger.Error("failed to delete orphaned clusters", "document_id", id, "err", err)
				result.Failed++
				continue
			}
			result.Orphans++
		}
		for _, id := range chunked {
			if !hasClusters[id] {
				pending = append(pending, id)
			}
		}
	}

	e.logger.Info("starting cluster sweep", "pending", len(pending), "orphans", result.Orphans, "force", opts.Force)

	for i, id := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := e.Cluster(ctx, id)
		switch {
		case errors.Is(err, ErrEmbeddingsMisaligned):
			e.logger.Debug("document not ready for clustering", "document_id", id, "err", err)
			result.Skipped++
		case err != nil:
			e.logger.Error("failed to cluster document", "document_id", id, "err", err)
			result.Failed++
		default:
			result.Clustered++
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(pending))
		}
	}

	e.logger.Info("cluster sweep complete",
		"clustered", result.Clustered,
		"skipped", result.Skipped,
		"orphans", result.Orphans,
		"failed", result.Failed)
	return result, nil
}

func toSet(ids []core.ID) map[core.ID]bool {
	set := make(map[core.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
