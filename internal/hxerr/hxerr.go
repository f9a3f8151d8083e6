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

// Package hxerr defines the small set of comparable error-kind sentinels
// used across the module. Call sites wrap a sentinel with fmt.Errorf's
// %w the same way the teacher's persistence adapters do, so callers can
// still errors.Is against the kind while retaining the underlying detail.
package hxerr

import "errors"

var (
	// ErrInputInvalid marks a caller-supplied argument that fails a
	// precondition (empty triple component, zero-length key, nil buffer).
	ErrInputInvalid = errors.New("hxhim: invalid input")

	// ErrQueueFull marks a batch queue that has reached its configured
	// capacity and cannot accept another operation without a flush.
	ErrQueueFull = errors.New("hxhim: queue full")

	// ErrStore marks a failure reported by the underlying ordered store.
	ErrStore = errors.New("hxhim: store error")

	// ErrTransport marks a failure in sending or receiving a wire message.
	ErrTransport = errors.New("hxhim: transport error")

	// ErrShutdown marks an operation rejected because the session, range
	// server, or background worker it targets is stopping or stopped.
	ErrShutdown = errors.New("hxhim: shut down")

	// ErrStatsInvariant marks a detected violation of the partitioner's
	// per-slice statistics invariants (min <= max, count consistency).
	ErrStatsInvariant = errors.New("hxhim: stats invariant violated")

	// ErrNotFound marks a GET/DELETE that found no matching record.
	ErrNotFound = errors.New("hxhim: not found")
)
