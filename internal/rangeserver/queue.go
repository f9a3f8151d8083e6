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

// Package rangeserver implements the listener-plus-worker-pool request
// loop that executes operations against a local ordered store (spec
// §4.4).
package rangeserver

import (
	"sync"

	"github.com/hxhim/hxhim/internal/wire"
)

// responder delivers a work item's result back to whoever is waiting on
// it — either a loopback.Slot (source is self) or a channel fed by the
// transport backend's synchronous call (source is remote), per spec
// §4.4's "Responses are sent either via the loopback single-slot
// pointer... or via the transport's send-client-response."
type responder interface {
	deliver(wire.Message)
}

type chanResponder chan wire.Message

func (c chanResponder) deliver(m wire.Message) { c <- m }

// WorkItem is one decoded inbound message plus enough context to run a
// handler and return its result.
type WorkItem struct {
	Msg  wire.Message
	Src  int
	Resp responder
}

type workNode struct {
	item WorkItem
	next *workNode
}

// workQueue is the singly-linked FIFO the listener appends to and the
// worker pool detaches from as a whole list at a time (spec §4.4: "The
// work queue is a singly-linked FIFO with head and tail pointers.
// Detaching the whole list... at a time lets one worker process a burst
// of pending items without re-entering the mutex, but forfeits
// multi-worker parallelism across a burst.").
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	head     *workNode
	tail     *workNode
	shutdown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends item to the tail and signals one waiting worker.
func (q *workQueue) push(item WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		item.Resp.deliver(wire.Message{Header: wire.Header{MType: wire.MTypeRecv}, Err: wire.ErrCodeShutdown})
		return
	}
	n := &workNode{item: item}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.cond.Signal()
}

// detachAll blocks until the queue is non-empty or shutdown, then
// atomically takes the entire chain, leaving the queue empty. The
// second return is false only when the queue was empty and shutdown
// has been signaled — the worker's exit condition.
func (q *workQueue) detachAll() (*workNode, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == nil && !q.shutdown {
		q.cond.Wait()
	}
	if q.head == nil {
		return nil, false
	}
	head := q.head
	q.head, q.tail = nil, nil
	return head, true
}

// shutdownQueue marks the queue closed and wakes every worker so each
// can observe an empty, shut-down queue and exit.
func (q *workQueue) shutdownQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	q.cond.Broadcast()
}
