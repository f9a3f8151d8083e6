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

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Marshal packs m into the explicit, length-prefixed payload format
// described in spec §4.3: no self-describing tags beyond mtype, every
// byte string prefixed with its u32 length. This is the payload that
// follows the 4-byte length frame on the manual-framing backend, and is
// also what the RPC backend's opaque blob carries.
func Marshal(m Message) ([]byte, error) {
	var buf bytes.Buffer
	putU32(&buf, uint32(m.Header.MType))
	putU32(&buf, uint32(m.Header.Src))
	putU32(&buf, uint32(m.Header.Dst))
	putU32(&buf, uint32(m.Header.IndexID))
	putU32(&buf, uint32(m.Header.IndexType))
	putU32(&buf, uint32(len(m.Header.PerEntryDB)))
	for _, d := range m.Header.PerEntryDB {
		putU32(&buf, uint32(d))
	}

	switch m.Header.MType {
	case MTypePut, MTypeGet, MTypeDelete:
		putEntry(&buf, m.Entry)
	case MTypeBPut, MTypeBGet, MTypeBDelete:
		putU32(&buf, uint32(len(m.Entries)))
		for _, e := range m.Entries {
			putEntry(&buf, e)
		}
	case MTypeRecv, MTypeCommit, MTypeClose:
		putU32(&buf, uint32(m.Err))
	case MTypeStatsReq:
		// header only: no request body beyond index-id.
	case MTypeRecvGet:
		putU32(&buf, uint32(m.RecvErr))
		putEntry(&buf, m.RecvEntry)
	case MTypeRecvBGet, MTypeRecvBulk:
		putU32(&buf, uint32(len(m.RecvEntries)))
		for _, e := range m.RecvEntries {
			putEntry(&buf, e)
		}
		putU32(&buf, uint32(len(m.RecvErrs)))
		for _, e := range m.RecvErrs {
			putU32(&buf, uint32(e))
		}
	case MTypeRecvStats:
		putU32(&buf, uint32(len(m.Stats)))
		for _, s := range m.Stats {
			putStat(&buf, s)
		}
	}
	putU32(&buf, uint32(m.SourceServer))
	putU32(&buf, uint32(m.DatabaseIndex))
	return buf.Bytes(), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(b []byte) (Message, error) {
	r := bytes.NewReader(b)
	var m Message

	mtype, err := getU32(r)
	if err != nil {
		return m, fmt.Errorf("wire: decoding mtype: %w", err)
	}
	m.Header.MType = MType(mtype)
	src, _ := getU32(r)
	dst, _ := getU32(r)
	idx, _ := getU32(r)
	idxType, _ := getU32(r)
	m.Header.Src = int(src)
	m.Header.Dst = int(dst)
	m.Header.IndexID = int(idx)
	m.Header.IndexType = IndexType(idxType)

	nDB, err := getU32(r)
	if err != nil {
		return m, fmt.Errorf("wire: decoding per-entry db count: %w", err)
	}
	m.Header.PerEntryDB = make([]int, nDB)
	for i := range m.Header.PerEntryDB {
		v, err := getU32(r)
		if err != nil {
			return m, fmt.Errorf("wire: decoding per-entry db[%d]: %w", i, err)
		}
		m.Header.PerEntryDB[i] = int(v)
	}

	switch m.Header.MType {
	case MTypePut, MTypeGet, MTypeDelete:
		m.Entry, err = getEntry(r)
	case MTypeBPut, MTypeBGet, MTypeBDelete:
		var n uint32
		n, err = getU32(r)
		if err == nil {
			m.Entries = make([]Entry, n)
			for i := range m.Entries {
				m.Entries[i], err = getEntry(r)
				if err != nil {
					break
				}
			}
		}
	case MTypeRecv, MTypeCommit, MTypeClose:
		var e uint32
		e, err = getU32(r)
		m.Err = ErrCode(e)
	case MTypeStatsReq:
		// header only.
	case MTypeRecvGet:
		var e uint32
		e, err = getU32(r)
		m.RecvErr = ErrCode(e)
		if err == nil {
			m.RecvEntry, err = getEntry(r)
		}
	case MTypeRecvStats:
		var n uint32
		n, err = getU32(r)
		if err == nil {
			m.Stats = make([]SliceStat, n)
			for i := range m.Stats {
				m.Stats[i], err = getStat(r)
				if err != nil {
					break
				}
			}
		}
	case MTypeRecvBGet, MTypeRecvBulk:
		var n uint32
		n, err = getU32(r)
		if err == nil {
			m.RecvEntries = make([]Entry, n)
			for i := range m.RecvEntries {
				m.RecvEntries[i], err = getEntry(r)
				if err != nil {
					break
				}
			}
		}
		if err == nil {
			var ne uint32
			ne, err = getU32(r)
			if err == nil {
				m.RecvErrs = make([]ErrCode, ne)
				for i := range m.RecvErrs {
					var v uint32
					v, err = getU32(r)
					if err != nil {
						break
					}
					m.RecvErrs[i] = ErrCode(v)
				}
			}
		}
	}
	if err != nil {
		return m, fmt.Errorf("wire: decoding payload for %s: %w", m.Header.MType, err)
	}

	srcSrv, err := getU32(r)
	if err != nil {
		return m, fmt.Errorf("wire: decoding source-server: %w", err)
	}
	dbIdx, err := getU32(r)
	if err != nil {
		return m, fmt.Errorf("wire: decoding database-index: %w", err)
	}
	m.SourceServer = int(srcSrv)
	m.DatabaseIndex = int(dbIdx)
	return m, nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func getU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func getU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func putStat(buf *bytes.Buffer, s SliceStat) {
	putU64(buf, s.Slice)
	putBytes(buf, s.Min)
	putBytes(buf, s.Max)
	putU64(buf, s.Count)
}

func getStat(r *bytes.Reader) (SliceStat, error) {
	var s SliceStat
	var err error
	s.Slice, err = getU64(r)
	if err != nil {
		return s, err
	}
	s.Min, err = getBytes(r)
	if err != nil {
		return s, err
	}
	s.Max, err = getBytes(r)
	if err != nil {
		return s, err
	}
	s.Count, err = getU64(r)
	if err != nil {
		return s, err
	}
	return s, nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putU32(buf, uint32(len(b)))
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	n, err := getU32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func putEntry(buf *bytes.Buffer, e Entry) {
	putBytes(buf, e.Key)
	putBytes(buf, e.Value)
	putU32(buf, uint32(e.Op))
	putU32(buf, uint32(e.NumRecords))
	putU32(buf, uint32(e.Database))
}

func getEntry(r *bytes.Reader) (Entry, error) {
	var e Entry
	var err error
	e.Key, err = getBytes(r)
	if err != nil {
		return e, err
	}
	e.Value, err = getBytes(r)
	if err != nil {
		return e, err
	}
	op, err := getU32(r)
	if err != nil {
		return e, err
	}
	e.Op = GetOp(op)
	nr, err := getU32(r)
	if err != nil {
		return e, err
	}
	e.NumRecords = int(nr)
	db, err := getU32(r)
	if err != nil {
		return e, err
	}
	e.Database = int(db)
	return e, nil
}
