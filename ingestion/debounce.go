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
	"context"
	"sync"
	"time"

	"github.com/poiesic/minutes/core"
)

// Debouncer delays an action per document until no new request for that
// document has arrived for a fixed period. Each Schedule call replaces the
// document's pending timer. A timer that fires after being replaced does
// nothing.
type Debouncer struct {
	delay time.Duration
	fn    func(ctx context.Context, id core.ID)

	mu      sync.Mutex
	pending map[core.ID]*pendingCall
	stopped bool
	running sync.WaitGroup
}

type pendingCall struct {
	ctx   context.Context
	timer *time.Timer
}

// NewDebouncer creates a debouncer calling fn delay after the last
// Schedule for a document.
func NewDebouncer(delay time.Duration, fn func(ctx context.Context, id core.ID)) *Debouncer {
	return &Debouncer{
		delay:   delay,
		fn:      fn,
		pending: make(map[core.ID]*pendingCall),
	}
}

// Schedule (re)starts the timer for id. The call runs with ctx and is
// skipped if ctx is done by then. Schedule after Stop does nothing.
func (d *Debouncer) Schedule(ctx context.Context, id core.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[id]; ok {
		prev.timer.Stop()
	}
	call := &pendingCall{ctx: ctx}
	call.timer = time.AfterFunc(d.delay, func() { d.fire(id, call) })
	d.pending[id] = call
}

func (d *Debouncer) fire(id core.ID, call *pendingCall) {
	d.mu.Lock()
	if d.pending[id] != call {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	if call.ctx.Err() != nil {
		return
	}
	d.fn(call.ctx, id)
}

// Pending returns the number of documents with a live timer.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending timer and waits for calls already running.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for id, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, id)
	}
	d.mu.Unlock()

	d.running.Wait()
}
