// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package client implements the client-side asynchronous request
// pipeline: per-operation batch queues, the background PUT drainer, and
// synchronous non-PUT flush (spec §4.5).
package client

import (
	"sync"

	"github.com/hxhim/hxhim/internal/wire"
)

// DefaultBatchCap is the compile-time-equivalent fixed capacity of a
// batch node. Real HXHIM fixes this at compile time; this module takes
// it as a constructor parameter instead but keeps the same "one
// allocation-free entry array per node" shape.
const DefaultBatchCap = 256

// Entry is one pipeline operation. First/Second name the two physical
// key components (the index determines which logical positions they
// are — SP, SO, PO, etc. — not this package). Third carries a PUT's
// value; GET/DELETE leave it nil. Op/NumRecords are meaningful only for
// GET/RANGE-GET entries.
type Entry struct {
	First, Second, Third []byte
	Op                   wire.GetOp
	NumRecords           int
	// Unsafe marks an entry that should bypass the hash-based router and
	// resolve its destination via the partitioner's rendezvous-hash
	// fallback instead (spec Glossary, "Unsafe operation"), and, for
	// PUT, fan out under the six-way permutation table rather than the
	// four-way one (spec §9's Open Question decision).
	Unsafe bool
}

// batchNode is one fixed-capacity node of a queue's doubly-linked
// chain (spec §3 "Batch").
type batchNode struct {
	entries    []Entry
	count      int
	next, prev *batchNode
}

func newBatchNode(cap int) *batchNode {
	return &batchNode{entries: make([]Entry, cap)}
}

func (n *batchNode) full() bool { return n.count == len(n.entries) }

// queue is the per-operation unsent queue described in spec §3 ("Queue
// state"): {head, tail, last_count, full_batches, force_flush, mutex,
// start_cv, done_cv}. The PUT queue additionally has a background
// drainer waiting on start_cv; non-PUT queues are drained synchronously
// by the calling goroutine and never touch start_cv/done_cv.
type queue struct {
	batchCap int

	mu          sync.Mutex
	head, tail  *batchNode
	lastCount   int
	fullBatches int
	forceFlush  bool
	startCV     *sync.Cond
	doneCV      *sync.Cond
	running     bool
	// discard, when set alongside running == false, tells the drainer to
	// exit without draining whatever remains queued — the session Close
	// path (spec §6: "drains nothing automatically — unflushed requests
	// are dropped with their buffers"), as distinct from Stop's own
	// drain-to-completion shutdown used elsewhere.
	discard bool
}

func newQueue(batchCap int) *queue {
	if batchCap <= 0 {
		batchCap = DefaultBatchCap
	}
	q := &queue{batchCap: batchCap, running: true}
	q.startCV = sync.NewCond(&q.mu)
	q.doneCV = sync.NewCond(&q.mu)
	return q
}

// enqueue appends e to the tail, per spec §4.5 "Enqueue". The instant
// the tail fills, a fresh open node is linked on immediately (rather
// than waiting for the next enqueue to discover the old tail is full)
// so a full batch and the in-progress one are always two distinct
// nodes — detachProcessablePrefix relies on that distinction to leave
// the open tail behind on an unforced drain. onFull runs under q's
// lock, in the same critical section full_batches is updated in;
// non-PUT queues pass nil.
func (q *queue) enqueue(e Entry, onFull func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tail == nil {
		n := newBatchNode(q.batchCap)
		q.setHeadIfNil(n)
		q.tail = n
	}
	q.tail.entries[q.tail.count] = e
	q.tail.count++
	q.lastCount = q.tail.count

	if q.tail.full() {
		q.fullBatches++
		if onFull != nil {
			onFull()
		}
		n := newBatchNode(q.batchCap)
		n.prev = q.tail
		q.tail.next = n
		q.tail = n
	}
}

func (q *queue) setHeadIfNil(n *batchNode) {
	if q.head == nil {
		q.head = n
	}
}

// detachProcessablePrefix removes and returns the chain the drainer (or
// a synchronous flush) should process: the whole chain if forced,
// otherwise every node but the tail (spec §4.5 step 3). The possibly-
// still-open tail, if left behind, becomes the new head.
func (q *queue) detachProcessablePrefix(forced bool) (*batchNode, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if forced {
		head := q.head
		full := q.fullBatches
		q.head, q.tail = nil, nil
		q.fullBatches = 0
		q.lastCount = 0
		return head, full
	}

	if q.head == q.tail {
		return nil, 0
	}
	head := q.head
	// unlink the tail so it survives as the new (open) head
	prevOfTail := q.tail.prev
	prevOfTail.next = nil
	q.tail.prev = nil
	q.head = q.tail
	full := q.fullBatches
	q.fullBatches = 0
	return head, full
}
