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

// Package ingestion drives the document pipeline from the store's change
// feed. The Orchestrator maps each change event to the next stage:
//
//	document insert/replace       fetch the content from its source
//	document update of content    split the document into chunks
//	chunk insert                  extract and embed facts (worker pool)
//	chunk update of embeddings    re-cluster the document (debounced)
//
// Bursts of embedding updates for one document are coalesced by a
// Debouncer into a single clustering pass. The orchestrator persists its
// feed position after every event and restarts the subscription after
// failures, resyncing with full sweeps when its position has been pruned
// from the feed.
package ingestion
