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

package client

// FlushSink is what a synchronous (non-PUT) flush hands a detached
// batch to. The pkg/hxhim Session wires one of these per operation
// kind to the matching bulk wire call.
type FlushSink func(entries []Entry) *ResponseNode

// Config controls pipeline batching and the drainer's eagerness.
type Config struct {
	// BatchCap is the fixed entry capacity of every batch node.
	BatchCap int
	// PutWatermark is the number of full PUT batches that wakes the
	// drainer without a forced flush (spec §4.5 "Watermark").
	PutWatermark int
}

// Pipeline owns the four independent per-operation queues (spec §3,
// §4.5) and the background PUT drainer. GET/RANGE-GET/DELETE are
// flushed synchronously by the calling goroutine; PUT is drained in
// the background and force-flushed on demand.
type Pipeline struct {
	cfg Config

	put, get, rangeGet, del *queue
	putSink                 PutSink
	getSink, rangeGetSink   FlushSink
	delSink                 FlushSink

	graph   *ResultGraph
	drainer *drainer
}

// NewPipeline wires the four queues and the PUT drainer. sinks may be
// nil until the owning session has a transport to route through;
// EnqueuePut etc. will then simply buffer without ever being able to
// flush, which callers should treat as a programming error.
func NewPipeline(cfg Config, putSink PutSink, getSink, rangeGetSink, delSink FlushSink) *Pipeline {
	if cfg.BatchCap <= 0 {
		cfg.BatchCap = DefaultBatchCap
	}
	if cfg.PutWatermark <= 0 {
		cfg.PutWatermark = 1
	}
	p := &Pipeline{
		cfg:          cfg,
		put:          newQueue(cfg.BatchCap),
		get:          newQueue(cfg.BatchCap),
		rangeGet:     newQueue(cfg.BatchCap),
		del:          newQueue(cfg.BatchCap),
		putSink:      putSink,
		getSink:      getSink,
		rangeGetSink: rangeGetSink,
		delSink:      delSink,
		graph:        &ResultGraph{},
	}
	p.drainer = newDrainer(p.put, cfg.PutWatermark, putSink, p.graph)
	return p
}

// Start launches the background PUT drainer.
func (p *Pipeline) Start() { p.drainer.Start() }

// Stop force-drains and stops the PUT drainer. Non-PUT queues have no
// background goroutine to stop; Stop neither flushes nor sends the
// entries still buffered in them, so callers call FlushGets/
// FlushRangeGets/FlushDeletes first if they want those results.
func (p *Pipeline) Stop() { p.drainer.Stop() }

// Discard stops the PUT drainer without flushing whatever remains
// queued, and leaves the GET/RANGE-GET/DELETE queues untouched — the
// behavior a session's Close must have (spec §6, §3 Lifecycles).
func (p *Pipeline) Discard() { p.drainer.StopDiscard() }

// EnqueuePut appends a PUT entry, waking the drainer once the open
// batch fills (spec §4.5 "Enqueue"). onFull runs under the queue's own
// lock (enqueue's critical section), so it must not try to reacquire
// it — it only needs to broadcast.
func (p *Pipeline) EnqueuePut(e Entry) {
	p.put.enqueue(e, func() {
		p.put.startCV.Broadcast()
	})
}

// EnqueueGet appends a GET entry. GET has no background drainer; it
// accumulates until FlushGets is called.
func (p *Pipeline) EnqueueGet(e Entry) { p.get.enqueue(e, nil) }

// EnqueueRangeGet appends a RANGE-GET entry.
func (p *Pipeline) EnqueueRangeGet(e Entry) { p.rangeGet.enqueue(e, nil) }

// EnqueueDelete appends a DELETE entry.
func (p *Pipeline) EnqueueDelete(e Entry) { p.del.enqueue(e, nil) }

// FlushPuts blocks until every PUT entry currently queued — full
// batches and the open tail — has been sent and its response recorded
// (spec §4.5 "Force flush").
func (p *Pipeline) FlushPuts() { p.drainer.ForceFlush() }

// FlushGets synchronously detaches and sends every queued GET entry,
// appending the result to the graph (spec §4.5 "Non-PUT flushes").
func (p *Pipeline) FlushGets() { p.flushSync(p.get, p.getSink) }

// FlushRangeGets synchronously detaches and sends every queued
// RANGE-GET entry.
func (p *Pipeline) FlushRangeGets() { p.flushSync(p.rangeGet, p.rangeGetSink) }

// FlushDeletes synchronously detaches and sends every queued DELETE
// entry.
func (p *Pipeline) FlushDeletes() { p.flushSync(p.del, p.delSink) }

// FlushAll flushes every queue, PUT included, in queue-declaration
// order.
func (p *Pipeline) FlushAll() {
	p.FlushPuts()
	p.FlushGets()
	p.FlushRangeGets()
	p.FlushDeletes()
}

// Graph returns the session's shared result graph.
func (p *Pipeline) Graph() *ResultGraph { return p.graph }

func (p *Pipeline) flushSync(q *queue, sink FlushSink) {
	head, _ := q.detachProcessablePrefix(true)
	for n := head; n != nil; n = n.next {
		entries := n.entries[:n.count]
		if len(entries) == 0 {
			continue
		}
		if sink == nil {
			continue
		}
		if node := sink(entries); node != nil {
			p.graph.Append(node)
		}
	}
}
