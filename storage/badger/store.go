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

package badger

import (
	"errors"
)

// Store bundles every BadgerDB repository over one shared backend.
type Store struct {
	Backend     *Backend
	Documents   *DocumentRepository
	Chunks      *ChunkRepository
	Clusters    *ClusterRepository
	Checkpoints *CheckpointRepository
	Usage       *UsageRepository
	Feed        *ChangeFeed
}

// OpenStore opens (or creates) a store at path.
func OpenStore(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend)
}

// NewMemoryStore creates an in-memory store for testing.
// Caller must close the store when done.
func NewMemoryStore() (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newStore(backend)
}

func newStore(backend *Backend) (*Store, error) {
	chunks, err := NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	clusters, err := NewClusterRepository(backend)
	if err != nil {
		chunks.Close()
		backend.Close()
		return nil, err
	}

	return &Store{
		Backend:     backend,
		Documents:   NewDocumentRepository(backend),
		Chunks:      chunks,
		Clusters:    clusters,
		Checkpoints: NewCheckpointRepository(backend),
		Usage:       NewUsageRepository(backend),
		Feed:        NewChangeFeed(backend),
	}, nil
}

// Close releases the repositories' sequences and closes the backend.
func (s *Store) Close() error {
	return errors.Join(
		s.Chunks.Close(),
		s.Clusters.Close(),
		s.Documents.Close(),
		s.Backend.Close(),
	)
}
