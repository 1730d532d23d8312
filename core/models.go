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

package core

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentID derives the stable ID of a document from its owner and the
// identifier the upstream source assigned to it.
func DocumentID(owner, sourceID string) ID {
	return IDFromContent(owner + "/" + sourceID)
}

// Checksum returns the hex encoded 128-bit BLAKE2b digest of text.
func Checksum(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Document is a meeting-minutes document discovered in an owner's source.
type Document struct {
	Id            ID
	SourceID      string // Identifier assigned by the upstream source
	Owner         string
	Title         string
	SourceURI     string
	SourceVersion string // Changes whenever the upstream copy changes
	HTML          string // Rendered content, empty until fetched
	Markdown      string
	Chunked       bool
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// HasContent reports whether the rendered content has been fetched.
func (d *Document) HasContent() bool {
	return d.HTML != ""
}

// Chunk is one dated section of a document. Facts, people, organizations
// and embeddings are filled in by extraction.
type Chunk struct {
	Id            ID
	DocumentID    ID
	Owner         string
	Title         string
	HTML          string
	Markdown      string
	Checksum      string
	Date          time.Time
	CalendarLink  string
	People        []string
	Organizations []string
	Facts         []string
	Embeddings    [][]float32 // Embeddings[i] is the embedding of Facts[i]
	ExtractedAt   time.Time   // Zero until facts have been extracted
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// HasFacts reports whether extraction has completed for the chunk, even if
// it found nothing.
func (c *Chunk) HasFacts() bool {
	return !c.ExtractedAt.IsZero()
}

// HasEmbeddings reports whether every fact has an aligned embedding.
func (c *Chunk) HasEmbeddings() bool {
	return len(c.Facts) > 0 && len(c.Facts) == len(c.Embeddings)
}

// FactCluster is a group of related facts from a single document, stored as
// one bulleted text with a representative vector. It is the retrieval unit.
type FactCluster struct {
	Id            ID
	DocumentID    ID
	Owner         string
	Organizations []string
	Facts         []string
	Text          string
	Vector        []float32
	InsertedAt    time.Time
}

// ChunkSyncResult reports what a chunk reconciliation pass changed.
type ChunkSyncResult struct {
	DocumentID ID
	Inserted   int
	Deleted    int
	Unchanged  int
}

// RetrievalResult is a fact cluster returned by hybrid search together with
// its fused and component scores.
type RetrievalResult struct {
	Cluster      *FactCluster
	Score        float32
	VectorScore  float32
	KeywordScore float32 // Normalized to [0,1]
}

// Operation is the kind of mutation a change event describes.
type Operation string

const (
	OperationInsert  Operation = "insert"
	OperationUpdate  Operation = "update"
	OperationReplace Operation = "replace"
	OperationDelete  Operation = "delete"
)

// Collection names the entity set a change event belongs to.
type Collection string

const (
	CollectionDocuments Collection = "documents"
	CollectionChunks    Collection = "chunks"
)

// Field names reported in ChangeEvent.Fields.
const (
	FieldContent       = "content"
	FieldSourceVersion = "source_version"
	FieldChunked       = "chunked"
	FieldPeople        = "people"
	FieldOrganizations = "organizations"
	FieldFacts         = "facts"
	FieldEmbeddings    = "embeddings"
)

// ChangeEvent is one entry of the store's change feed.
type ChangeEvent struct {
	Token      uint64 // Resume position; strictly increasing
	Operation  Operation
	Collection Collection
	DocumentID ID
	ChunkID    ID // Zero for document events
	Fields     []string
	OccurredAt time.Time
}

// HasField reports whether name is among the changed fields.
func (e *ChangeEvent) HasField(name string) bool {
	for _, f := range e.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Checkpoint records how far a processor has progressed through the change
// feed.
type Checkpoint struct {
	Processor string
	Position  uint64
	UpdatedAt time.Time
}

// UsageRecord is one metered call to a language or embedding model.
type UsageRecord struct {
	Id               string
	Owner            string
	Model            string
	Task             string
	Inputs           int
	PromptTokens     int
	CompletionTokens int
	Took             time.Duration
	Cost             float64
	CreatedAt        time.Time
}
