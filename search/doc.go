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

// Package search is the retrieval engine. A Searcher answers a query with
// the fact clusters of one owner, restricted to a set of organizations.
//
// HybridSearch runs two searches under the same tenant filter:
//   - a vector search comparing the query embedding with each cluster
//     vector, scored (1+cos)/2
//   - a BM25 keyword search over cluster text and organizations
//
// Keyword scores are divided by the best keyword score so both signals
// lie in [0,1], and the fused score is a weighted sum of the two. Results
// keep the vector search order unless Config.SortByScore is set.
package search
