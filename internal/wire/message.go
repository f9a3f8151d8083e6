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

// Package wire defines the message taxonomy exchanged between clients
// and range servers. Per spec §9's redesign note ("Heavy inheritance"),
// the source's message class hierarchy is re-expressed here as a single
// tagged-sum Message carrying a shared header plus one of the
// op-specific payload structs.
package wire

// MType tags which payload a Message carries.
type MType int

const (
	MTypePut MType = iota
	MTypeBPut
	MTypeGet
	MTypeBGet
	MTypeDelete
	MTypeBDelete
	MTypeCommit
	MTypeClose
	// MTypeStatsReq asks a range server for its Partitioner's current
	// per-slice statistics, the request side of the collective StatFlush
	// (spec §4.2 "stat-flush(index)"; SPEC_FULL.md §C's "Statistics
	// flush is a real collective").
	MTypeStatsReq

	MTypeRecv
	MTypeRecvGet
	MTypeRecvBGet
	MTypeRecvBulk
	// MTypeRecvStats carries one range server's slice statistics back
	// to the client driving a StatFlush.
	MTypeRecvStats
)

func (t MType) String() string {
	switch t {
	case MTypePut:
		return "PUT"
	case MTypeBPut:
		return "BPUT"
	case MTypeGet:
		return "GET"
	case MTypeBGet:
		return "BGET"
	case MTypeDelete:
		return "DELETE"
	case MTypeBDelete:
		return "BDELETE"
	case MTypeCommit:
		return "COMMIT"
	case MTypeClose:
		return "CLOSE"
	case MTypeStatsReq:
		return "STATS"
	case MTypeRecv:
		return "RECV"
	case MTypeRecvGet:
		return "RECV_GET"
	case MTypeRecvBGet:
		return "RECV_BGET"
	case MTypeRecvBulk:
		return "RECV_BULK"
	case MTypeRecvStats:
		return "RECV_STATS"
	default:
		return "UNKNOWN"
	}
}

// IndexType names which of the three index kinds a message targets.
type IndexType int

const (
	IndexPrimary IndexType = iota
	IndexSecondaryGlobal
	IndexSecondaryLocal
)

// GetOp names the ordered-lookup operation a GET/BGET entry requests.
type GetOp int

const (
	GetOpEQ GetOp = iota
	GetOpNext
	GetOpPrev
	GetOpFirst
	GetOpLast
)

// Header carries the fields common to every Message, per spec §4.3
// ("Every message carries {mtype, src, dst, index-id, index-type,
// per-entry-database-indices}") and §9's shared-header redesign note.
type Header struct {
	MType     MType
	Src       int
	Dst       int
	IndexID   int
	IndexType IndexType
	// PerEntryDB names, for bulk messages, which local database each
	// entry targets within the destination server.
	PerEntryDB []int
}

// Entry is one (key, value) pair plus its op metadata, shared by the
// single and bulk request/response variants.
type Entry struct {
	Key   []byte
	Value []byte
	Op    GetOp
	// NumRecords, when > 1 alongside a NEXT/PREV op, requests a range
	// walk from Key for up to NumRecords steps rather than a single
	// lookup (spec §4.4's "distinct code path"; per-entry rather than
	// per-message per SPEC_FULL.md's original_source supplement).
	// Alongside FIRST/LAST it requests the first/last record plus up to
	// NumRecords-1 records walked on from it.
	NumRecords int
	// Database optionally names an explicit destination database; a
	// non-zero value overrides the receiving session's own routing. No
	// session operation sets it.
	Database int
}

// SliceStat is one slice's min/max/count record, the wire form of
// partition.SliceStats exchanged by StatsReq/RecvStats.
type SliceStat struct {
	Slice    uint64
	Min, Max []byte
	Count    uint64
}

// Message is the tagged sum of every request and response kind
// exchanged over the transport. Exactly one of the payload fields is
// meaningful, selected by Header.MType.
type Message struct {
	Header Header

	// Put / Get / Delete (single-entry requests).
	Entry Entry

	// BPut / BGet / BDelete (bulk requests).
	Entries []Entry

	// Recv (ack of Put/Delete/Commit/Close).
	Err ErrCode

	// RecvGet (single reply).
	RecvEntry  Entry
	RecvErr    ErrCode

	// RecvBGet / RecvBulk (bulk reply), one ErrCode per request entry
	// so a partial-failure bulk response is representable without a
	// message-level error (spec §7 propagation policy).
	RecvEntries []Entry
	RecvErrs    []ErrCode

	// Stats (RecvStats) carries the responding range server's complete
	// per-slice statistics table for the requested index.
	Stats []SliceStat

	// SourceServer/DatabaseIndex identify which rank/local-db produced
	// a response, consumed by the result graph's source-server/
	// database-index accessors (spec §4.6).
	SourceServer  int
	DatabaseIndex int
}

// ErrCode is the wire-level error status carried on response messages.
// It mirrors the error kinds in spec §7 but as a small transmissible
// enum rather than a Go error value.
type ErrCode int

const (
	ErrCodeOK ErrCode = iota
	ErrCodeInputInvalid
	ErrCodeQueueFull
	ErrCodeStoreError
	ErrCodeTransportError
	ErrCodeShutdown
	ErrCodeStatsInvariantViolated
	ErrCodeNotFound
)
