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

import (
	"sync"

	"github.com/hxhim/hxhim/internal/wire"
)

// ResponseNode is one typed response message in a session's result
// graph (spec §3 "Result node", §4.6). Nodes are chained by Next into
// a singly-linked, acyclic graph; each flush call returns the head of
// the nodes it produced and the caller owns that head from then on.
type ResponseNode struct {
	Op            wire.MType
	SourceServer  int
	DatabaseIndex int
	Err           wire.ErrCode
	Entries       []wire.Entry
	EntryErrs     []wire.ErrCode
	Next          *ResponseNode
}

// ResultGraph is the per-session, mutex-protected chain every flush
// appends to (spec §5 "The result graph is protected by a single
// session-wide mutex.").
type ResultGraph struct {
	mu         sync.Mutex
	head, tail *ResponseNode
}

// Append adds node to the tail of the graph.
func (g *ResultGraph) Append(node *ResponseNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tail == nil {
		g.head = node
	} else {
		g.tail.Next = node
	}
	for node.Next != nil {
		node = node.Next
	}
	g.tail = node
}

// DetachHead removes and returns the entire current chain, leaving the
// graph empty — used by Flush* calls to hand ownership of exactly the
// nodes produced by that flush to the caller (spec §3 "the caller owns
// the graph head returned from a flush until it destroys it").
func (g *ResultGraph) DetachHead() *ResponseNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.head
	g.head, g.tail = nil, nil
	return h
}

// Iterator is the bidirectional key/value iterator over one flush's
// response chain (spec §4.6).
type Iterator struct {
	head *ResponseNode
	cur  *ResponseNode
	kv   int
}

// NewIterator wraps head for iteration. Destroying the head (letting it
// be garbage collected once no Iterator references it) destroys the
// whole chain and its buffers, per spec §4.6.
func NewIterator(head *ResponseNode) *Iterator {
	return &Iterator{head: head, cur: head}
}

// FirstServer resets the cursor to the first response node.
func (it *Iterator) FirstServer() {
	it.cur = it.head
	it.kv = 0
}

// NextServer advances to the next response node.
func (it *Iterator) NextServer() {
	if it.cur != nil {
		it.cur = it.cur.Next
	}
	it.kv = 0
}

// ValidServer reports whether the cursor is on a response node.
func (it *Iterator) ValidServer() bool { return it.cur != nil }

// FirstKV resets the within-response cursor to entry 0.
func (it *Iterator) FirstKV() { it.kv = 0 }

// NextKV advances the within-response cursor; past the last entry it
// becomes invalid and subsequent reads return an error (spec §4.6
// boundary behavior).
func (it *Iterator) NextKV() {
	if it.cur == nil {
		return
	}
	if it.kv < len(it.cur.Entries) {
		it.kv++
	}
}

// PrevKV retreats the within-response cursor; at position 0 it stays at
// 0 and remains valid (spec §4.6 boundary behavior).
func (it *Iterator) PrevKV() {
	if it.kv > 0 {
		it.kv--
	}
}

// ValidKV reports whether the within-response cursor names a real
// entry.
func (it *Iterator) ValidKV() bool {
	return it.cur != nil && it.kv >= 0 && it.kv < len(it.cur.Entries)
}

// GetKV reads the current entry's key and value.
func (it *Iterator) GetKV() (key, value []byte, ok bool) {
	if !it.ValidKV() {
		return nil, nil, false
	}
	e := it.cur.Entries[it.kv]
	return e.Key, e.Value, true
}

// Op reports the current response node's operation tag.
func (it *Iterator) Op() wire.MType {
	if it.cur == nil {
		return wire.MTypeRecv
	}
	return it.cur.Op
}

// Error reports the current response node's message-level error, or
// the current entry's per-entry error if the node carries one.
func (it *Iterator) Error() wire.ErrCode {
	if it.cur == nil {
		return wire.ErrCodeShutdown
	}
	if it.kv >= 0 && it.kv < len(it.cur.EntryErrs) {
		return it.cur.EntryErrs[it.kv]
	}
	return it.cur.Err
}

// SourceServer reports the current response node's originating rank.
func (it *Iterator) SourceServer() int {
	if it.cur == nil {
		return -1
	}
	return it.cur.SourceServer
}

// DatabaseIndex reports the current response node's local database
// index.
func (it *Iterator) DatabaseIndex() int {
	if it.cur == nil {
		return -1
	}
	return it.cur.DatabaseIndex
}
