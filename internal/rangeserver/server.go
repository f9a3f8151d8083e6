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

package rangeserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/hxhim/hxhim/internal/hxerr"
	"github.com/hxhim/hxhim/internal/partition"
	"github.com/hxhim/hxhim/internal/store"
	"github.com/hxhim/hxhim/internal/transport/loopback"
	"github.com/hxhim/hxhim/internal/wire"
)

// Config holds a Server's fixed, per-index configuration.
type Config struct {
	Rank           int
	DatabaseIndex  int
	NumWorkers     int
	ValueAppend    bool
}

// Server is the listener-plus-worker-pool pair of spec §4.4. Unlike the
// source's "Listener (1)" decoding wire frames directly, this Server's
// Receive method is what transport backends (tcpwire/grpcwire) and the
// client's loopback path both call — it is the single enqueue point,
// playing the listener's role regardless of which backend decoded the
// frame.
type Server struct {
	cfg   Config
	store store.OrderedStore
	part  *partition.Partitioner
	queue *workQueue
	wg    sync.WaitGroup

	// writeMu serializes writes across workers in the multi-worker
	// configuration, per the Open Question decision recorded in
	// SPEC_FULL.md §D (explicit write mutex rather than a new global
	// lock, and only engaged when NumWorkers > 1).
	writeMu sync.Mutex
}

// NewServer constructs a Server over the given store and partitioner.
// Start must be called before any work item is processed.
func NewServer(cfg Config, st store.OrderedStore, part *partition.Partitioner) *Server {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	return &Server{cfg: cfg, store: st, part: part, queue: newWorkQueue()}
}

// Start launches the configured number of worker goroutines, matching
// the Start/Stop + WaitGroup shape of core/worker.go.
func (s *Server) Start() {
	for i := 0; i < s.cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop()
		}()
	}
}

// Stop signals the work queue closed and waits for every worker to
// drain and exit.
func (s *Server) Stop() {
	s.queue.shutdownQueue()
	s.wg.Wait()
}

func (s *Server) workerLoop() {
	for {
		node, ok := s.queue.detachAll()
		if !ok {
			return
		}
		for n := node; n != nil; n = n.next {
			resp := s.handle(n.item.Msg, n.item.Src)
			n.item.Resp.deliver(resp)
		}
	}
}

// Receive implements transport.Receiver: it enqueues the decoded
// message and blocks until a worker has produced a response, matching
// the "listener enqueues, worker executes, response is deposited" flow
// for both remote callers (via a channel responder) and the in-process
// loopback path (via a loopback.Slot responder, see SubmitLoopback).
func (s *Server) Receive(ctx context.Context, src int, m wire.Message) (wire.Message, error) {
	done := make(chanResponder, 1)
	s.queue.push(WorkItem{Msg: m, Src: src, Resp: done})
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

type slotResponder struct{ slot *loopback.Slot }

func (r slotResponder) deliver(m wire.Message) { r.slot.Deliver(m) }

// SubmitLoopback enqueues a message and returns the Slot a caller
// should Wait on, implementing the literal "single-slot pointer"
// mechanism spec §4.3 describes for the dst == self shortcut.
func (s *Server) SubmitLoopback(m wire.Message, src int) *loopback.Slot {
	slot := loopback.NewSlot()
	s.queue.push(WorkItem{Msg: m, Src: src, Resp: slotResponder{slot: slot}})
	return slot
}

func errMessage(code wire.ErrCode) wire.Message {
	return wire.Message{Header: wire.Header{MType: wire.MTypeRecv}, Err: code}
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", hxerr.ErrStore, err)
}
