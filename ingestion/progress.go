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

package ingestion

import (
	"slices"
	"sync"

	"github.com/poiesic/minutes/core"
)

// progress tracks which delivered feed tokens still have deferred work
// running, so the saved position never passes an event whose extraction or
// re-cluster has not finished. Token zero is never tracked.
type progress struct {
	mu        sync.Mutex
	delivered uint64
	saved     uint64
	open      map[uint64]struct{}
	clusters  map[core.ID][]uint64
}

func newProgress() *progress {
	return &progress{
		open:     make(map[uint64]struct{}),
		clusters: make(map[core.ID][]uint64),
	}
}

// begin marks token as having deferred work.
func (p *progress) begin(token uint64) {
	if token == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[token] = struct{}{}
}

// beginCluster marks token as waiting for the re-cluster of documentID.
func (p *progress) beginCluster(token uint64, documentID core.ID) {
	if token == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[token] = struct{}{}
	p.clusters[documentID] = append(p.clusters[documentID], token)
}

// takeCluster returns the tokens waiting on documentID and detaches them
// from the document. They stay open until passed to done.
func (p *progress) takeCluster(documentID core.ID) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	tokens := p.clusters[documentID]
	delete(p.clusters, documentID)
	return tokens
}

func (p *progress) done(tokens ...uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, token := range tokens {
		delete(p.open, token)
	}
}

// deliver records that token has been handed to the pipeline.
func (p *progress) deliver(token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = max(p.delivered, token)
}

// restart positions the tracker at a saved feed position. Open work at or
// before it is forgotten. Later events will be delivered again.
func (p *progress) restart(position uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token := range p.open {
		if token <= position {
			delete(p.open, token)
		}
	}
	for id, tokens := range p.clusters {
		tokens = slices.DeleteFunc(tokens, func(t uint64) bool { return t <= position })
		if len(tokens) == 0 {
			delete(p.clusters, id)
			continue
		}
		p.clusters[id] = tokens
	}
	p.delivered = position
	p.saved = position
}

// watermark returns the highest token below which every delivered event
// has finished.
func (p *progress) watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermarkLocked()
}

func (p *progress) watermarkLocked() uint64 {
	mark := p.delivered
	for token := range p.open {
		if token <= mark {
			mark = token - 1
		}
	}
	return mark
}

// advance reports the watermark if it moved past the last saved position.
// The caller passes it to markSaved once it is persisted.
func (p *progress) advance() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := p.watermarkLocked()
	return mark, mark > p.saved
}

func (p *progress) markSaved(position uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = max(p.saved, position)
}
