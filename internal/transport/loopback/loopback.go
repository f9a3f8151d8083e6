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

// Package loopback implements the single-slot shortcut a client takes
// when its destination is its own rank: rather than going through a
// Transport backend, it hands the request straight to the local range
// server's work queue and waits on a condition variable for the
// response pointer (spec §4.3).
package loopback

import (
	"sync"

	"github.com/hxhim/hxhim/internal/wire"
)

// Slot is a single-outstanding-response rendezvous point. Exactly one
// loopback call per calling goroutine is permitted at a time; the
// mutex plus single pointer enforce this, matching the spec's "Exactly
// one outstanding loopback response per thread is permitted."
type Slot struct {
	mu       sync.Mutex
	cond     *sync.Cond
	response *wire.Message
	occupied bool
}

// NewSlot constructs a ready-to-use loopback rendezvous slot.
func NewSlot() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Wait blocks until Deliver is called (or shutdown fires) and returns
// the delivered response. It is an error to call Wait concurrently from
// two goroutines sharing the same Slot.
//
// sync.Cond has no channel-select, so a single helper goroutine bridges
// shutdown into a Broadcast for the duration of this call only.
func (s *Slot) Wait(shutdown <-chan struct{}) (wire.Message, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-shutdown:
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.occupied = true
	for s.response == nil {
		if shutdownFired(shutdown) {
			s.occupied = false
			return wire.Message{}, false
		}
		s.cond.Wait()
	}
	resp := *s.response
	s.response = nil
	s.occupied = false
	return resp, true
}

func shutdownFired(shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
		return true
	default:
		return false
	}
}

// Deliver places resp into the slot and wakes the waiter. Called by the
// range server worker handling the loopback work item.
func (s *Slot) Deliver(resp wire.Message) {
	s.mu.Lock()
	r := resp
	s.response = &r
	s.cond.Broadcast()
	s.mu.Unlock()
}
