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

// Package partition maps physical keys to (rank, database-index) pairs
// and maintains the per-slice statistics that drive ordered-query
// routing, per the specification's Partitioner component.
package partition

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// KeyType selects how a key's slice number is derived.
type KeyType int

const (
	// KeyTypeByte projects the first 8 bytes of the key (zero-padded) as
	// a big-endian unsigned integer, matching the spec's "fixed-base
	// numeric projection of the first bytes" for string/byte keys.
	KeyTypeByte KeyType = iota
	// KeyTypeUint64 interprets the key's first 8 bytes directly as a
	// big-endian uint64, for callers that declare a numeric semantic type.
	KeyTypeUint64
)

// Config holds the partitioner's immutable parameters, fixed for the
// lifetime of a session (spec §4.2, "immutable after initialization").
type Config struct {
	RankCount          int
	RangeserverFactor  int
	DatabasesPerServer int
	SliceSize          uint64
	KeyType            KeyType
}

// Op names the ordered lookup operation get-range-servers-from-stats is
// asked to satisfy.
type Op int

const (
	OpEQ Op = iota
	OpNext
	OpPrev
	OpFirst
	OpLast
)

// Location names a physical (rank, local-database) destination.
type Location struct {
	Rank           int
	DatabaseIndex  int
}

// Partitioner implements the slice/location mapping and the per-slice
// statistics table. One Partitioner exists per Index.
type Partitioner struct {
	cfg   Config
	hash  *rendezvous.Rendezvous
	mu    sync.RWMutex // guards stats
	stats map[uint64]*SliceStats
}

// SliceStats is the min/max/count/dirty record kept per slice (spec
// §3 "Per-slice statistics").
type SliceStats struct {
	Min, Max []byte
	Count    uint64
	Dirty    bool
}

// New constructs a Partitioner for cfg. members names the set of range
// server identifiers participating in rendezvous-hash tie-breaking for
// the unsafe-PUT explicit-destination path, the only caller of
// ResolveUnsafe (see DESIGN.md: dgryski/go-rendezvous promoted from an unused
// indirect teacher dependency to active use here).
func New(cfg Config, members []string) *Partitioner {
	p := &Partitioner{
		cfg:   cfg,
		stats: make(map[uint64]*SliceStats),
	}
	if len(members) > 0 {
		p.hash = rendezvous.New(members, xxhash.Sum64String)
	}
	return p
}

// Slice returns the slice number a physical key belongs to, per spec
// §4.2's "Slice of a key."
func (p *Partitioner) Slice(key []byte) uint64 {
	var n uint64
	switch p.cfg.KeyType {
	case KeyTypeUint64:
		n = projectUint64BE(key)
	default:
		n = projectUint64BE(key)
	}
	if p.cfg.SliceSize == 0 {
		return 0
	}
	return n / p.cfg.SliceSize
}

// projectUint64BE reads up to the first 8 bytes of key as a big-endian
// unsigned integer, zero-extending short keys — the "fixed-base numeric
// projection" the spec calls for on byte-typed keys, and the literal
// semantic-type interpretation for declared-numeric keys.
func projectUint64BE(key []byte) uint64 {
	var buf [8]byte
	n := copy(buf[:], key)
	_ = n
	return binary.BigEndian.Uint64(buf[:])
}

// Location maps a slice number to its owning (rank, database-index)
// pair, per spec §4.2's "Slice → (server, database)". The server ordinal
// wraps around the number of range servers (every RangeserverFactor'th
// rank below RankCount), so the returned rank is always below RankCount.
func (p *Partitioner) Location(slice uint64) Location {
	dbCount := uint64(p.cfg.DatabasesPerServer)
	if dbCount == 0 {
		dbCount = 1
	}
	serverOrdinal := slice / dbCount
	if factor := p.cfg.RangeserverFactor; factor > 0 && p.cfg.RankCount > 0 {
		serverOrdinal %= uint64((p.cfg.RankCount + factor - 1) / factor)
	}
	dbIndex := int(slice % dbCount)
	rank := int(serverOrdinal) * p.cfg.RangeserverFactor
	return Location{Rank: rank, DatabaseIndex: dbIndex}
}

// IsRangeServer reports whether rank hosts a range server under this
// configuration: every rangeserver-factor'th rank, per spec §4.2.
func (p *Partitioner) IsRangeServer(rank int) bool {
	if p.cfg.RangeserverFactor <= 0 {
		return false
	}
	return rank%p.cfg.RangeserverFactor == 0
}

// GetRangeServer implements get-range-servers(key): the single
// destination for a point operation.
func (p *Partitioner) GetRangeServer(key []byte) Location {
	return p.Location(p.Slice(key))
}

// ResolveUnsafe implements the unsafe/explicit-destination path: rather
// than hashing, it rendezvous-hashes key against the configured member
// set to pick a destination deterministically across callers without
// consulting the slice table at all. Returns the empty string when no
// member set was configured.
func (p *Partitioner) ResolveUnsafe(key []byte) string {
	if p.hash == nil {
		return ""
	}
	return p.hash.Lookup(string(key))
}

// UpdateStat implements update-stat(index, key): extends the slice's
// min/max to include key, increments count, marks dirty. Called by the
// range server after each successful write (spec §4.2).
func (p *Partitioner) UpdateStat(key []byte) {
	slice := p.Slice(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[slice]
	if !ok {
		s = &SliceStats{Min: cloneBytes(key), Max: cloneBytes(key)}
		p.stats[slice] = s
	}
	if bytesLess(key, s.Min) {
		s.Min = cloneBytes(key)
	}
	if bytesLess(s.Max, key) {
		s.Max = cloneBytes(key)
	}
	s.Count++
	s.Dirty = true
}

// SliceStatsSnapshot returns a shallow copy of the current per-slice
// statistics table, read-locked for the duration of the copy.
func (p *Partitioner) SliceStatsSnapshot() map[uint64]SliceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[uint64]SliceStats, len(p.stats))
	for k, v := range p.stats {
		out[k] = *v
	}
	return out
}

// InstallStats replaces the statistics table wholesale, used by
// stat-flush to install the all-gathered, read-only copy on every rank.
func (p *Partitioner) InstallStats(snapshot map[uint64]SliceStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = make(map[uint64]*SliceStats, len(snapshot))
	for k, v := range snapshot {
		cp := v
		p.stats[k] = &cp
	}
}

// GetRangeServersFromStats implements get-range-servers-from-stats(key,
// op): consults the statistics table for every slice whose [min, max]
// can satisfy op(key), per spec §4.2.
func (p *Partitioner) GetRangeServersFromStats(key []byte, op Op) []Location {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch op {
	case OpFirst:
		return p.locationsOfExtreme(true)
	case OpLast:
		return p.locationsOfExtreme(false)
	}

	var out []Location
	for slice, s := range p.stats {
		if s.Count == 0 {
			continue
		}
		match := false
		switch op {
		case OpEQ:
			match = !bytesLess(key, s.Min) && !bytesLess(s.Max, key)
		case OpNext:
			match = bytesLess(key, s.Max) || !bytesLess(key, s.Min) && !bytesLess(s.Max, key)
		case OpPrev:
			match = bytesLess(s.Min, key) || !bytesLess(key, s.Min) && !bytesLess(s.Max, key)
		}
		if match {
			out = append(out, p.Location(slice))
		}
	}
	return out
}

// locationsOfExtreme returns the location of the slice with the
// globally-smallest min (wantMin) or globally-largest max, per the
// FIRST/LAST semantics of get-range-servers-from-stats.
func (p *Partitioner) locationsOfExtreme(wantMin bool) []Location {
	var bestSlice uint64
	var best []byte
	found := false
	for slice, s := range p.stats {
		if s.Count == 0 {
			continue
		}
		candidate := s.Max
		if wantMin {
			candidate = s.Min
		}
		if !found {
			best, bestSlice, found = candidate, slice, true
			continue
		}
		if wantMin && bytesLess(candidate, best) {
			best, bestSlice = candidate, slice
		}
		if !wantMin && bytesLess(best, candidate) {
			best, bestSlice = candidate, slice
		}
	}
	if !found {
		return nil
	}
	return []Location{p.Location(bestSlice)}
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
