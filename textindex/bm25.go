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

package textindex

import (
	"math"
	"sort"
)

const (
	bm25K1 = 1.2  // Term frequency saturation
	bm25B  = 0.75 // Length normalization
)

// Result is a scored document from an Index search.
type Result struct {
	ID    uint64
	Score float64
}

// field holds the postings and length statistics of one named field.
type field struct {
	postings    map[string]map[uint64]int
	lengths     map[uint64]int
	totalLength int
	weight      float64
}

// Index is a BM25 index over documents with several weighted fields. It is
// built for a bounded candidate set and is not safe for concurrent mutation.
type Index struct {
	fields map[string]*field
	docs   map[uint64]struct{}
}

// NewIndex creates an index scoring the named fields with the given weights.
// Fields not listed are ignored when documents are added.
func NewIndex(weights map[string]float64) *Index {
	idx := &Index{
		fields: make(map[string]*field, len(weights)),
		docs:   make(map[uint64]struct{}),
	}
	for name, w := range weights {
		idx.fields[name] = &field{
			postings: make(map[string]map[uint64]int),
			lengths:  make(map[uint64]int),
			weight:   w,
		}
	}
	return idx
}

// Add indexes a document. values maps field name to already tokenized terms.
func (idx *Index) Add(id uint64, values map[string][]string) {
	idx.docs[id] = struct{}{}
	for name, tokens := range values {
		f, ok := idx.fields[name]
		if !ok || len(tokens) == 0 {
			continue
		}
		f.lengths[id] = len(tokens)
		f.totalLength += len(tokens)
		for _, tok := range tokens {
			docs, ok := f.postings[tok]
			if !ok {
				docs = make(map[uint64]int)
				f.postings[tok] = docs
			}
			docs[id]++
		}
	}
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search scores every document matching at least one query term and returns
// the results ordered by descending score, at most limit of them. Ties are
// broken by ascending ID so results are stable.
func (idx *Index) Search(terms []string, limit int) []Result {
	if len(idx.docs) == 0 || len(terms) == 0 || limit <= 0 {
		return nil
	}

	n := float64(len(idx.docs))
	scores := make(map[uint64]float64)
	for _, f := range idx.fields {
		if f.weight == 0 || len(f.lengths) == 0 {
			continue
		}
		avgLen := float64(f.totalLength) / float64(len(f.lengths))
		for _, term := range terms {
			docs, ok := f.postings[term]
			if !ok {
				continue
			}
			df := float64(len(docs))
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			for id, tf := range docs {
				docLen := float64(f.lengths[id])
				numerator := float64(tf) * (bm25K1 + 1)
				denominator := float64(tf) + bm25K1*(1-bm25B+bm25B*(docLen/avgLen))
				scores[id] += f.weight * idf * (numerator / denominator)
			}
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			results = append(results, Result{ID: id, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
