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

// Package transport defines the Transport abstraction: typed
// point-to-point send/receive of request and response messages, with
// an endpoint-group primitive for multicast fan-out. Two concrete
// backends exist, tcpwire (manual length-prefix framing, the Go
// equivalent of the source's MPI backend — no MPI binding exists
// anywhere in the retrieval pack, so TCP sockets substitute for the
// point-to-point primitive while keeping the same framing discipline)
// and grpcwire (RPC-style, one unary procedure carrying an opaque
// blob). loopback is not a Transport implementation; it is a shortcut
// the client pipeline takes instead of calling a Transport at all when
// dst == self (spec §4.3).
package transport

import (
	"context"

	"github.com/hxhim/hxhim/internal/wire"
)

// Transport is the client-side operation set both backends implement
// identically, per spec §4.3.
type Transport interface {
	Put(ctx context.Context, dst int, m wire.Message) (wire.Message, error)
	BPut(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error)
	Get(ctx context.Context, dst int, m wire.Message) (wire.Message, error)
	BGet(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error)
	Delete(ctx context.Context, dst int, m wire.Message) (wire.Message, error)
	BDelete(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error)
	// Stats asks dst for its current Partitioner statistics table, the
	// request leg of the collective StatFlush (spec §4.2).
	Stats(ctx context.Context, dst int, m wire.Message) (wire.Message, error)
	// Close tears down the backend's resources. It does not send a
	// CLOSE wire message; callers that need the range server to know
	// about a clean shutdown send one explicitly first.
	Close() error
}

// Receiver is implemented by whatever sits behind a Transport on the
// receiving side — ordinarily a rangeserver.Server's listener. Both
// backends deliver inbound requests to a Receiver rather than owning
// dispatch logic themselves.
type Receiver interface {
	Receive(ctx context.Context, src int, m wire.Message) (wire.Message, error)
}

// EndpointGroup fans a single request out to multiple destinations in
// parallel and joins the responses in caller order, per spec §4.3's
// "Endpoint-group multicast is performed by iterating a contained
// endpoint map and issuing parallel RPCs; responses are joined in
// caller order."
type EndpointGroup struct {
	transport Transport
	members   []int
}

// NewEndpointGroup constructs a group over the given destination ranks,
// in the order responses should be joined.
func NewEndpointGroup(t Transport, members []int) *EndpointGroup {
	return &EndpointGroup{transport: t, members: members}
}

// Multicast issues msg (after per-destination header adjustment by
// caller) against every member and returns their responses in member
// order. A member's error is captured as a response-slot error rather
// than aborting the whole call, consistent with bulk-operation
// propagation policy (spec §7).
func (g *EndpointGroup) Multicast(ctx context.Context, build func(dst int) wire.Message) []Result {
	type indexed struct {
		i   int
		res Result
	}
	out := make([]Result, len(g.members))
	ch := make(chan indexed, len(g.members))

	for i, dst := range g.members {
		i, dst := i, dst
		go func() {
			req := build(dst)
			m, err := g.dispatch(ctx, dst, req)
			ch <- indexed{i: i, res: Result{Message: m, Err: err}}
		}()
	}
	for range g.members {
		r := <-ch
		out[r.i] = r.res
	}
	return out
}

// Result pairs a response message with any transport-level error
// encountered obtaining it.
type Result struct {
	Message wire.Message
	Err     error
}

// dispatch routes req to the Transport method matching its MType, so
// Multicast works for any single-entry op (PUT, GET, DELETE), not just
// PUT.
func (g *EndpointGroup) dispatch(ctx context.Context, dst int, req wire.Message) (wire.Message, error) {
	switch req.Header.MType {
	case wire.MTypeGet:
		return g.transport.Get(ctx, dst, req)
	case wire.MTypeDelete:
		return g.transport.Delete(ctx, dst, req)
	case wire.MTypeStatsReq:
		return g.transport.Stats(ctx, dst, req)
	default:
		return g.transport.Put(ctx, dst, req)
	}
}
