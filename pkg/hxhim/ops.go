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

package hxhim

import (
	"context"
	"fmt"

	"github.com/hxhim/hxhim/internal/client"
	"github.com/hxhim/hxhim/internal/hxerr"
	"github.com/hxhim/hxhim/internal/index"
	"github.com/hxhim/hxhim/internal/partition"
	"github.com/hxhim/hxhim/internal/telemetry"
	"github.com/hxhim/hxhim/internal/wire"
	"github.com/hxhim/hxhim/pkg/triplestore"
)

// Triple is a public (subject, predicate, object) tuple for BPut.
type Triple struct{ Subject, Predicate, Object []byte }

// Pair is a public (subject, predicate) tuple for BGet/BDelete.
type Pair struct{ Subject, Predicate []byte }

func validatePair(subject, predicate []byte) error {
	if len(subject) == 0 || len(predicate) == 0 {
		return fmt.Errorf("%w: subject and predicate must be non-empty", hxerr.ErrInputInvalid)
	}
	return nil
}

func validateTriple(subject, predicate, object []byte) error {
	if err := validatePair(subject, predicate); err != nil {
		return err
	}
	if len(object) == 0 {
		return fmt.Errorf("%w: object must be non-empty", hxerr.ErrInputInvalid)
	}
	return nil
}

// Put enqueues a PUT under the default four-way (SP/SO/PO/PS) fan-out
// (spec §6 "put(S,P,O)").
func (s *Session) Put(subject, predicate, object []byte) error {
	if err := validateTriple(subject, predicate, object); err != nil {
		return err
	}
	s.pipeline.EnqueuePut(client.Entry{First: subject, Second: predicate, Third: object})
	telemetry.ObservePut(s.primary.Name, 1)
	return nil
}

// PutUnsafe enqueues a PUT under the six-way fan-out, routed by
// rendezvous hash rather than the slice table (spec Glossary, "Unsafe
// operation"). The session must have been opened with unsafe-puts
// enabled.
func (s *Session) PutUnsafe(subject, predicate, object []byte) error {
	if err := validateTriple(subject, predicate, object); err != nil {
		return err
	}
	if !s.unsafePuts {
		return fmt.Errorf("%w: session opened without unsafe-puts enabled", hxerr.ErrInputInvalid)
	}
	s.pipeline.EnqueuePut(client.Entry{First: subject, Second: predicate, Third: object, Unsafe: true})
	telemetry.ObservePut(s.primary.Name, 1)
	return nil
}

// BPut enqueues a batch of PUTs under the four-way fan-out.
func (s *Session) BPut(triples []Triple) error {
	for _, t := range triples {
		if err := s.Put(t.Subject, t.Predicate, t.Object); err != nil {
			return err
		}
	}
	return nil
}

// BPutUnsafe enqueues a batch of PUTs under the six-way fan-out.
func (s *Session) BPutUnsafe(triples []Triple) error {
	for _, t := range triples {
		if err := s.PutUnsafe(t.Subject, t.Predicate, t.Object); err != nil {
			return err
		}
	}
	return nil
}

// Get enqueues a GET. The external interface exposes only (S,P)
// lookups (spec §6); secondary indexes exist solely to serve PUT's
// fan-out.
func (s *Session) Get(subject, predicate []byte) error {
	if err := validatePair(subject, predicate); err != nil {
		return err
	}
	s.pipeline.EnqueueGet(client.Entry{First: subject, Second: predicate, Op: wire.GetOpEQ})
	telemetry.ObserveGet(s.primary.Name, 1)
	return nil
}

// BGet enqueues a batch of GETs.
func (s *Session) BGet(pairs []Pair) error {
	for _, p := range pairs {
		if err := s.Get(p.Subject, p.Predicate); err != nil {
			return err
		}
	}
	return nil
}

// Delete enqueues a DELETE by (S,P).
func (s *Session) Delete(subject, predicate []byte) error {
	if err := validatePair(subject, predicate); err != nil {
		return err
	}
	s.pipeline.EnqueueDelete(client.Entry{First: subject, Second: predicate})
	telemetry.ObserveDelete(s.primary.Name, 1)
	return nil
}

// BDelete enqueues a batch of DELETEs.
func (s *Session) BDelete(pairs []Pair) error {
	for _, p := range pairs {
		if err := s.Delete(p.Subject, p.Predicate); err != nil {
			return err
		}
	}
	return nil
}

// GetNext enqueues an ordered RANGE-GET stepping forward from (S,P) for
// up to numRecords hops.
func (s *Session) GetNext(subject, predicate []byte, numRecords int) error {
	if err := validatePair(subject, predicate); err != nil {
		return err
	}
	s.enqueueRangeGet(client.Entry{First: subject, Second: predicate, Op: wire.GetOpNext, NumRecords: numRecords})
	return nil
}

// GetPrev enqueues an ordered RANGE-GET stepping backward from (S,P).
func (s *Session) GetPrev(subject, predicate []byte, numRecords int) error {
	if err := validatePair(subject, predicate); err != nil {
		return err
	}
	s.enqueueRangeGet(client.Entry{First: subject, Second: predicate, Op: wire.GetOpPrev, NumRecords: numRecords})
	return nil
}

// GetFirst enqueues an ordered RANGE-GET of the first numRecords
// entries in the primary index.
func (s *Session) GetFirst(numRecords int) error {
	s.enqueueRangeGet(client.Entry{Op: wire.GetOpFirst, NumRecords: numRecords})
	return nil
}

// GetLast enqueues an ordered RANGE-GET of the last numRecords entries.
func (s *Session) GetLast(numRecords int) error {
	s.enqueueRangeGet(client.Entry{Op: wire.GetOpLast, NumRecords: numRecords})
	return nil
}

func (s *Session) enqueueRangeGet(e client.Entry) {
	s.pipeline.EnqueueRangeGet(e)
	telemetry.ObserveRangeGet(s.primary.Name, 1)
}

// FlushPuts blocks until every queued PUT (safe and unsafe alike — both
// share the PUT queue, distinguished per-entry) has been sent, and
// returns an iterator over the acknowledgments.
func (s *Session) FlushPuts() *client.Iterator {
	s.pipeline.FlushPuts()
	return client.NewIterator(s.pipeline.Graph().DetachHead())
}

// FlushGets blocks until every queued GET has been sent and returns an
// iterator over the results.
func (s *Session) FlushGets() *client.Iterator {
	s.pipeline.FlushGets()
	return client.NewIterator(s.pipeline.Graph().DetachHead())
}

// FlushRangeGets blocks until every queued RANGE-GET has been sent.
func (s *Session) FlushRangeGets() *client.Iterator {
	s.pipeline.FlushRangeGets()
	return client.NewIterator(s.pipeline.Graph().DetachHead())
}

// FlushDeletes blocks until every queued DELETE has been sent.
func (s *Session) FlushDeletes() *client.Iterator {
	s.pipeline.FlushDeletes()
	return client.NewIterator(s.pipeline.Graph().DetachHead())
}

// FlushAll flushes every queue in turn and returns one iterator over
// the combined response chain.
func (s *Session) FlushAll() *client.Iterator {
	s.pipeline.FlushAll()
	return client.NewIterator(s.pipeline.Graph().DetachHead())
}

// --- sinks ---

type destGroup struct {
	idx     *index.Index
	loc     partition.Location
	entries []wire.Entry
}

func appendNode(head, tail *client.ResponseNode, node *client.ResponseNode) (*client.ResponseNode, *client.ResponseNode) {
	if node == nil {
		return head, tail
	}
	if head == nil {
		return node, node
	}
	tail.Next = node
	for tail.Next != nil {
		tail = tail.Next
	}
	return head, tail
}

// putSink fans every PUT entry out under its safe or unsafe fan-out
// table, groups the resulting physical records by destination index and
// location, and sends one bulk message per group (spec §4.5 "Drain
// selects one batch, encodes each triple into physical keys, partitions
// by destination range server...").
func (s *Session) putSink() client.PutSink {
	return func(entries []client.Entry) *client.ResponseNode {
		type groupKey struct {
			indexID int
			loc     partition.Location
		}
		byKey := make(map[groupKey]*destGroup)
		var gorder []groupKey

		for _, e := range entries {
			triple := triplestore.Triple{Subject: e.First, Predicate: e.Second, Object: e.Third}
			var recs []triplestore.Record
			var err error
			if e.Unsafe {
				recs, err = triplestore.FanoutUnsafe(triple)
			} else {
				recs, err = triplestore.FanoutSafe(triple)
			}
			if err != nil {
				continue
			}
			for _, rec := range recs {
				idx := s.indexFor(rec.Direction)
				if idx == nil {
					continue
				}
				var loc partition.Location
				if e.Unsafe {
					loc = s.resolveUnsafeLocation(idx, rec.Key)
				} else {
					loc = idx.Partitioner.GetRangeServer(rec.Key)
				}
				gk := groupKey{idx.ID, loc}
				g, ok := byKey[gk]
				if !ok {
					g = &destGroup{idx: idx, loc: loc}
					byKey[gk] = g
					gorder = append(gorder, gk)
				}
				g.entries = append(g.entries, wire.Entry{Key: rec.Key, Value: rec.Value})
			}
		}

		var head, tail *client.ResponseNode
		for _, gk := range gorder {
			g := byKey[gk]
			node := s.sendBulk(g.idx, g.loc, wire.MTypeBPut, g.entries)
			head, tail = appendNode(head, tail, node)
		}
		return head
	}
}

func (s *Session) resolveUnsafeLocation(idx *index.Index, key []byte) partition.Location {
	rankStr := idx.Partitioner.ResolveUnsafe(key)
	if rankStr == "" {
		return idx.Partitioner.GetRangeServer(key)
	}
	rank, err := parseRank(rankStr)
	if err != nil {
		return idx.Partitioner.GetRangeServer(key)
	}
	return partition.Location{Rank: rank, DatabaseIndex: idx.Partitioner.Location(idx.Partitioner.Slice(key)).DatabaseIndex}
}

func (s *Session) getSink() client.FlushSink {
	return func(entries []client.Entry) *client.ResponseNode {
		groups := make(map[partition.Location][]wire.Entry)
		var order []partition.Location
		for _, e := range entries {
			k, err := triplestore.Encode(e.First, e.Second)
			if err != nil {
				continue
			}
			loc := s.primary.Partitioner.GetRangeServer(k)
			if _, ok := groups[loc]; !ok {
				order = append(order, loc)
			}
			groups[loc] = append(groups[loc], wire.Entry{Key: k, Op: wire.GetOpEQ})
		}
		var head, tail *client.ResponseNode
		for _, loc := range order {
			node := s.sendBulk(s.primary, loc, wire.MTypeBGet, groups[loc])
			head, tail = appendNode(head, tail, node)
		}
		return head
	}
}

func (s *Session) deleteSink() client.FlushSink {
	return func(entries []client.Entry) *client.ResponseNode {
		groups := make(map[partition.Location][]wire.Entry)
		var order []partition.Location
		for _, e := range entries {
			k, err := triplestore.Encode(e.First, e.Second)
			if err != nil {
				continue
			}
			loc := s.primary.Partitioner.GetRangeServer(k)
			if _, ok := groups[loc]; !ok {
				order = append(order, loc)
			}
			groups[loc] = append(groups[loc], wire.Entry{Key: k})
		}
		var head, tail *client.ResponseNode
		for _, loc := range order {
			node := s.sendBulk(s.primary, loc, wire.MTypeBDelete, groups[loc])
			head, tail = appendNode(head, tail, node)
		}
		return head
	}
}

// rangeGetSink dispatches each ordered entry individually, since
// NEXT/PREV/FIRST/LAST generally target whichever slice currently holds
// the relevant extreme rather than a single fixed destination (spec
// §4.2 get-range-servers-from-stats).
func (s *Session) rangeGetSink() client.FlushSink {
	return func(entries []client.Entry) *client.ResponseNode {
		var head, tail *client.ResponseNode
		for _, e := range entries {
			var key []byte
			if e.Op == wire.GetOpNext || e.Op == wire.GetOpPrev {
				k, err := triplestore.Encode(e.First, e.Second)
				if err != nil {
					continue
				}
				key = k
			}
			loc := s.locationForOrderedOp(key, e.Op)
			node := s.sendBulk(s.primary, loc, wire.MTypeBGet, []wire.Entry{{Key: key, Op: e.Op, NumRecords: e.NumRecords}})
			head, tail = appendNode(head, tail, node)
		}
		return head
	}
}

func (s *Session) locationForOrderedOp(key []byte, op wire.GetOp) partition.Location {
	var pop partition.Op
	switch op {
	case wire.GetOpNext:
		pop = partition.OpNext
	case wire.GetOpPrev:
		pop = partition.OpPrev
	case wire.GetOpFirst:
		pop = partition.OpFirst
	case wire.GetOpLast:
		pop = partition.OpLast
	default:
		pop = partition.OpEQ
	}
	locs := s.primary.Partitioner.GetRangeServersFromStats(key, pop)
	if len(locs) > 0 {
		return locs[0]
	}
	if key != nil {
		return s.primary.Partitioner.GetRangeServer(key)
	}
	return partition.Location{Rank: s.rank}
}

// sendBulk dispatches one bulk wire message of mtype/entries to
// (idx, loc), via loopback if loc is this rank or the transport
// otherwise, and converts the response into one ResponseNode.
func (s *Session) sendBulk(idx *index.Index, loc partition.Location, mtype wire.MType, entries []wire.Entry) *client.ResponseNode {
	if len(entries) == 0 {
		return nil
	}
	msg := wire.Message{Header: wire.Header{MType: mtype}, Entries: entries}
	resp, err := s.dispatch(context.Background(), idx, loc, msg)
	if err != nil {
		return &client.ResponseNode{Op: mtype, Err: wire.ErrCodeTransportError}
	}
	return &client.ResponseNode{
		Op:            resp.Header.MType,
		SourceServer:  resp.SourceServer,
		DatabaseIndex: resp.DatabaseIndex,
		Err:           resp.Err,
		Entries:       resp.RecvEntries,
		EntryErrs:     resp.RecvErrs,
	}
}

// dispatch routes msg to idx's server at loc: directly via loopback if
// loc.Rank is this rank, otherwise over the transport.
func (s *Session) dispatch(ctx context.Context, idx *index.Index, loc partition.Location, msg wire.Message) (wire.Message, error) {
	msg.Header.Src = s.rank
	msg.Header.Dst = loc.Rank
	msg.Header.IndexID = idx.ID

	if loc.Rank == s.rank {
		srv, ok := idx.Servers[loc]
		if !ok {
			return wire.Message{}, fmt.Errorf("%w: no local server for index %s db %d", hxerr.ErrInputInvalid, idx.Name, loc.DatabaseIndex)
		}
		slot := srv.SubmitLoopback(msg, s.rank)
		resp, ok := slot.Wait(s.shutdown)
		if !ok {
			return wire.Message{}, hxerr.ErrShutdown
		}
		return resp, nil
	}
	return s.transportCall(ctx, msg)
}

func (s *Session) transportCall(ctx context.Context, msg wire.Message) (wire.Message, error) {
	dst := msg.Header.Dst
	switch msg.Header.MType {
	case wire.MTypeGet, wire.MTypeBGet:
		return s.transport.Get(ctx, dst, msg)
	case wire.MTypeDelete, wire.MTypeBDelete:
		return s.transport.Delete(ctx, dst, msg)
	case wire.MTypeStatsReq:
		return s.transport.Stats(ctx, dst, msg)
	default:
		return s.transport.Put(ctx, dst, msg)
	}
}

func parseRank(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
