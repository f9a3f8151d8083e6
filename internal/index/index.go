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

// Package index implements the Index registry: named logical indexes
// (primary plus secondaries), each with its own range-server set,
// ordered store, and statistics (spec §3 "Index", §4.2's per-index
// Partitioner state).
package index

import (
	"fmt"
	"sync"

	"github.com/hxhim/hxhim/internal/partition"
	"github.com/hxhim/hxhim/internal/rangeserver"
	"github.com/hxhim/hxhim/internal/store"
	"github.com/hxhim/hxhim/pkg/triplestore"
)

// Type names the three index kinds spec §3 enumerates.
type Type int

const (
	// Primary is the globally-ordered SP->O index every triple is
	// guaranteed to be retrievable through (spec §3's "retrievable by
	// at least the SP-prefix").
	Primary Type = iota
	// SecondaryGlobal indexes are globally ordered like Primary: one
	// physical range per slice, partitioned across servers.
	SecondaryGlobal
	// SecondaryLocal indexes preserve order only within one server and
	// require querying all servers for an ordered operation.
	SecondaryLocal
)

// Index is one named logical key space.
type Index struct {
	ID                 int
	Name               string
	Type               Type
	Direction          triplestore.Direction
	RangeserverFactor  int
	DatabasesPerServer int
	SliceSize          uint64

	Partitioner *partition.Partitioner
	// Servers maps (rank, database-index) to the local Server handling
	// that slot. A pure client holds an empty map and only ever reaches
	// these servers through the transport abstraction.
	Servers map[partition.Location]*rangeserver.Server
	// Stores parallels Servers for callers that need direct store
	// access (e.g. StatFlush publishing before any server exists).
	Stores map[partition.Location]store.OrderedStore
}

// Registry holds every Index a session has opened, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Index
	byID   map[int]*Index
	nextID int
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Index), byID: make(map[int]*Index)}
}

// Create registers a new Index. dir selects which permutation direction
// (e.g. SP, SO, PO, PS, OS, OP) this index's physical keys encode —
// the mechanism behind the fan-out's named secondary indexes
// (SPEC_FULL.md §C); each Index has its own stores.
func (r *Registry) Create(name string, typ Type, dir triplestore.Direction, rangeserverFactor, dbsPerServer int, sliceSize uint64) (*Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("index: %q already exists", name)
	}
	idx := &Index{
		ID:                 r.nextID,
		Name:               name,
		Type:               typ,
		Direction:          dir,
		RangeserverFactor:  rangeserverFactor,
		DatabasesPerServer: dbsPerServer,
		SliceSize:          sliceSize,
		Servers:            make(map[partition.Location]*rangeserver.Server),
		Stores:             make(map[partition.Location]store.OrderedStore),
	}
	r.nextID++
	r.byName[name] = idx
	r.byID[idx.ID] = idx
	return idx, nil
}

// Get returns the named Index, or false if it has not been created.
func (r *Registry) Get(name string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// ByID returns the Index with the given id, or false if none matches.
// Used by the session's inbound dispatcher to resolve a wire message's
// Header.IndexID back to its Index (spec §4.3 "Every message carries
// {..., index-id, index-type, ...}").
func (r *Registry) ByID(id int) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	return idx, ok
}

// All returns every registered Index, for lifecycle teardown.
func (r *Registry) All() []*Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Index, 0, len(r.byName))
	for _, idx := range r.byName {
		out = append(out, idx)
	}
	return out
}
