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

// Package clustering groups the facts of a document into fact clusters, the
// unit that retrieval searches over.
//
// Grouping runs in two passes over the L2-normalized fact embeddings. An
// average-linkage agglomerative pass merges facts while the cosine distance
// between groups stays within a threshold, so the number of topics is
// discovered rather than fixed. Groups larger than the size bound are then
// split with seeded k-means into ceil(n/max) parts.
//
// Each group is materialized as a core.FactCluster whose text is a bullet
// list of its facts and whose vector is the embedding of that text. The
// Engine replaces a document's clusters wholesale on every run.
package clustering
