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

package search

import (
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// SearchMonitor provides hooks to observe the search process.
// Implementations can use these callbacks for logging, metrics, or debugging.
type SearchMonitor interface {
	Start(query, owner string, orgs []string)
	AfterVectorSearch(hits []*storage.ScoredCluster)
	AfterKeywordSearch(hits []*storage.ScoredCluster, maxScore float32)
	Fused(result *core.RetrievalResult)
	Finish(results []*core.RetrievalResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string, _ []string)                            {}
func (n *noopMonitor) AfterVectorSearch(_ []*storage.ScoredCluster)             {}
func (n *noopMonitor) AfterKeywordSearch(_ []*storage.ScoredCluster, _ float32) {}
func (n *noopMonitor) Fused(_ *core.RetrievalResult)                            {}
func (n *noopMonitor) Finish(_ []*core.RetrievalResult)                         {}
