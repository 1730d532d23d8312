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

// Package storage provides the storage abstraction layer for minutes.
//
// This package defines repository interfaces that decouple storage implementation
// from the pipeline components. The chunker, extractor, cluster engine, searcher
// and orchestrator only ever see these interfaces.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - DocumentRepository: discovered documents and their fetched content
//   - ChunkRepository: dated chunks, unique per (document, checksum)
//   - ClusterRepository: fact clusters with text and vector search
//   - CheckpointRepository: persisted change feed positions
//   - UsageRepository: the model usage ledger
//   - ChangeFeed: ordered, resumable stream of document and chunk mutations
//   - Transactor: multi-record atomic writes
//
// Every document and chunk mutation appends a core.ChangeEvent in the same
// transaction as the mutation, so the feed never reports a write that was
// rolled back.
//
// # Usage
//
// Open the BadgerDB implementation:
//
//	store, err := badger.OpenStore("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context. A context produced by
// Transactor.WithTransaction carries the open transaction.
package storage
