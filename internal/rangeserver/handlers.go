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
	"github.com/hxhim/hxhim/internal/wire"
)

// handle dispatches a decoded message to its handler, per spec §4.4's
// Handlers list.
func (s *Server) handle(m wire.Message, src int) wire.Message {
	switch m.Header.MType {
	case wire.MTypePut:
		return s.handlePut(m)
	case wire.MTypeBPut:
		return s.handleBPut(m)
	case wire.MTypeGet:
		return s.handleGet(m)
	case wire.MTypeBGet:
		return s.handleBGet(m)
	case wire.MTypeDelete:
		return s.handleDelete(m)
	case wire.MTypeBDelete:
		return s.handleBDelete(m)
	case wire.MTypeCommit:
		return s.handleCommit(m)
	case wire.MTypeStatsReq:
		return s.handleStats(m)
	case wire.MTypeClose:
		return wire.Message{Header: wire.Header{MType: wire.MTypeRecv}, Err: wire.ErrCodeOK}
	default:
		return errMessage(wire.ErrCodeInputInvalid)
	}
}

// lockWrites serializes the write path across workers when the server
// is configured with more than one worker, per the explicit-write-mutex
// Open Question decision; in the single-worker configuration writes are
// already serialized by structure and the mutex is uncontended.
func (s *Server) lockWrites() func() {
	if s.cfg.NumWorkers <= 1 {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// putOne writes one entry, optionally appending to an existing value
// (spec §6 "value-append"), and updates partitioner stats only on
// first insertion (spec §4.4 "updates stats on first insertion only").
func (s *Server) putOne(key, value []byte) wire.ErrCode {
	unlock := s.lockWrites()
	defer unlock()

	existing, found, err := s.store.Get(key)
	if err != nil {
		return wire.ErrCodeStoreError
	}
	toWrite := value
	if s.cfg.ValueAppend && found {
		toWrite = append(append([]byte(nil), existing...), value...)
	}
	if err := s.store.Put(key, toWrite); err != nil {
		return wire.ErrCodeStoreError
	}
	if !found && s.part != nil {
		s.part.UpdateStat(key)
	}
	return wire.ErrCodeOK
}

func (s *Server) handlePut(m wire.Message) wire.Message {
	code := s.putOne(m.Entry.Key, m.Entry.Value)
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecv},
		Err:           code,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

func (s *Server) handleBPut(m wire.Message) wire.Message {
	errs := make([]wire.ErrCode, len(m.Entries))
	allFailed := len(m.Entries) > 0
	for i, e := range m.Entries {
		errs[i] = s.putOne(e.Key, e.Value)
		if errs[i] == wire.ErrCodeOK {
			allFailed = false
		}
	}
	msgErr := wire.ErrCodeOK
	if allFailed {
		msgErr = wire.ErrCodeStoreError
	}
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecvBulk},
		RecvErrs:      errs,
		Err:           msgErr,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

// getOne dispatches one GET entry on its op (spec §4.4 BGET dispatch
// table). A zero-length value with ErrCodeOK means "no such key" per
// spec §7's NotFound-as-zero-length-value convention, for the
// single-entry GET and bulk per-entry codes alike; getOne never
// returns ErrCodeNotFound.
func (s *Server) getOne(e wire.Entry) (wire.Entry, wire.ErrCode) {
	var key, val []byte
	var found bool
	var err error

	switch e.Op {
	case wire.GetOpEQ:
		val, found, err = s.store.Get(e.Key)
		key = e.Key
	case wire.GetOpNext:
		key, val, found, err = s.store.GetNext(e.Key)
	case wire.GetOpPrev:
		key, val, found, err = s.store.GetPrev(e.Key)
	case wire.GetOpFirst:
		key, val, found, err = s.store.GetFirst()
	case wire.GetOpLast:
		key, val, found, err = s.store.GetLast()
	}
	if err != nil {
		return wire.Entry{}, wire.ErrCodeStoreError
	}
	if !found {
		return wire.Entry{Key: e.Key}, wire.ErrCodeOK
	}
	return wire.Entry{Key: key, Value: val}, wire.ErrCodeOK
}

func (s *Server) handleGet(m wire.Message) wire.Message {
	entry, code := s.getOne(m.Entry)
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecvGet},
		RecvEntry:     entry,
		RecvErr:       code,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

// handleBGet implements the ordinary per-entry dispatch plus the
// distinct "num_recs > 1" range-walk code path (spec §4.4). A walk
// entry contributes up to NumRecords result entries to the flattened
// reply rather than exactly one, so the reply's entry count may exceed
// the request's; this is documented behavior, not an encoding error.
// A FIRST (LAST) entry with NumRecords > 1 yields the first (last)
// record followed by up to NumRecords-1 records walked forward
// (backward) from it.
func (s *Server) handleBGet(m wire.Message) wire.Message {
	var entries []wire.Entry
	var errs []wire.ErrCode

	for _, e := range m.Entries {
		if e.NumRecords > 1 && (e.Op == wire.GetOpFirst || e.Op == wire.GetOpLast) {
			first, code := s.getOne(e)
			entries, errs = append(entries, first), append(errs, code)
			if code == wire.ErrCodeOK && first.Key != nil {
				step := wire.Entry{Key: first.Key, Op: wire.GetOpNext, NumRecords: e.NumRecords - 1}
				if e.Op == wire.GetOpLast {
					step.Op = wire.GetOpPrev
				}
				walked, wcode := s.walk(step)
				entries = append(entries, walked...)
				for range walked {
					errs = append(errs, wcode)
				}
			}
			continue
		}
		if e.NumRecords > 1 && (e.Op == wire.GetOpNext || e.Op == wire.GetOpPrev) {
			walked, code := s.walk(e)
			entries = append(entries, walked...)
			for range walked {
				errs = append(errs, code)
			}
			if len(walked) == 0 {
				entries = append(entries, wire.Entry{Key: e.Key})
				errs = append(errs, code)
			}
			continue
		}
		entry, code := s.getOne(e)
		entries = append(entries, entry)
		errs = append(errs, code)
	}

	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecvBGet},
		RecvEntries:   entries,
		RecvErrs:      errs,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

// walk steps the store from e.Key for up to e.NumRecords hops in the
// direction named by e.Op, collecting (key, value) pairs as visited.
func (s *Server) walk(e wire.Entry) ([]wire.Entry, wire.ErrCode) {
	var out []wire.Entry
	cur := e.Key
	for i := 0; i < e.NumRecords; i++ {
		var k, v []byte
		var found bool
		var err error
		if e.Op == wire.GetOpNext {
			k, v, found, err = s.store.GetNext(cur)
		} else {
			k, v, found, err = s.store.GetPrev(cur)
		}
		if err != nil {
			return out, wire.ErrCodeStoreError
		}
		if !found {
			break
		}
		out = append(out, wire.Entry{Key: k, Value: v})
		cur = k
	}
	return out, wire.ErrCodeOK
}

func (s *Server) deleteOne(key []byte) wire.ErrCode {
	unlock := s.lockWrites()
	defer unlock()
	if err := s.store.Delete(key); err != nil {
		return wire.ErrCodeStoreError
	}
	return wire.ErrCodeOK
}

func (s *Server) handleDelete(m wire.Message) wire.Message {
	code := s.deleteOne(m.Entry.Key)
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecv},
		Err:           code,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

func (s *Server) handleBDelete(m wire.Message) wire.Message {
	errs := make([]wire.ErrCode, len(m.Entries))
	allFailed := len(m.Entries) > 0
	for i, e := range m.Entries {
		errs[i] = s.deleteOne(e.Key)
		if errs[i] == wire.ErrCodeOK {
			allFailed = false
		}
	}
	msgErr := wire.ErrCodeOK
	if allFailed {
		msgErr = wire.ErrCodeStoreError
	}
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecvBulk},
		RecvErrs:      errs,
		Err:           msgErr,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}

func (s *Server) handleCommit(m wire.Message) wire.Message {
	code := wire.ErrCodeOK
	if err := s.store.Commit(); err != nil {
		code = wire.ErrCodeStoreError
	}
	return wire.Message{Header: wire.Header{MType: wire.MTypeRecv}, Err: code}
}

// handleStats answers the collective StatFlush's per-server request leg
// by snapshotting this server's Partitioner, the local half of the
// MPI_Allgather the source performs across every range server's table
// (SPEC_FULL.md §C "Statistics flush is a real collective").
func (s *Server) handleStats(m wire.Message) wire.Message {
	if s.part == nil {
		return wire.Message{
			Header:        wire.Header{MType: wire.MTypeRecvStats},
			SourceServer:  s.cfg.Rank,
			DatabaseIndex: s.cfg.DatabaseIndex,
		}
	}
	snapshot := s.part.SliceStatsSnapshot()
	stats := make([]wire.SliceStat, 0, len(snapshot))
	for slice, st := range snapshot {
		stats = append(stats, wire.SliceStat{
			Slice: slice,
			Min:   st.Min,
			Max:   st.Max,
			Count: st.Count,
		})
	}
	return wire.Message{
		Header:        wire.Header{MType: wire.MTypeRecvStats},
		Stats:         stats,
		SourceServer:  s.cfg.Rank,
		DatabaseIndex: s.cfg.DatabaseIndex,
	}
}
