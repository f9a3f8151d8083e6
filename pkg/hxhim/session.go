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

// Package hxhim is the public client: a Session opens the primary and
// secondary indexes, brings up any range servers this rank owns, wires
// the client pipeline's four queues to a transport, and exposes the
// put/get/delete/flush/commit/stat-flush operations described in the
// specification's external interface.
package hxhim

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hxhim/hxhim/internal/client"
	"github.com/hxhim/hxhim/internal/config"
	"github.com/hxhim/hxhim/internal/hxerr"
	"github.com/hxhim/hxhim/internal/index"
	"github.com/hxhim/hxhim/internal/partition"
	"github.com/hxhim/hxhim/internal/rangeserver"
	"github.com/hxhim/hxhim/internal/statcache"
	"github.com/hxhim/hxhim/internal/store"
	"github.com/hxhim/hxhim/internal/telemetry"
	"github.com/hxhim/hxhim/internal/transport"
	"github.com/hxhim/hxhim/internal/transport/grpcwire"
	"github.com/hxhim/hxhim/internal/transport/tcpwire"
	"github.com/hxhim/hxhim/internal/wire"
	"github.com/hxhim/hxhim/pkg/triplestore"

	redis "github.com/redis/go-redis/v9"
)

// Bootstrap is the collaborator contract the specification calls out as
// out of scope: it provides a communicator, each rank's id, and the
// total rank count, but does not provide messaging itself (spec §6).
type Bootstrap interface {
	Rank() int
	Size() int
	Addr(rank int) (string, error)
}

// Options configures a Session's Open call.
type Options struct {
	Bootstrap Bootstrap

	// Config, if non-nil, is used verbatim instead of running the
	// config.Load reader chain — handy for tests and for a caller that
	// already parsed its own flags.
	Config config.Map
	// ConfigPath is passed to config.Load when Config is nil.
	ConfigPath string

	// InMemory opens every local store as a store.MemStore instead of
	// Badger and skips the on-disk manifest entirely — the single-rank
	// demo/test configuration.
	InMemory bool
}

// Session is the open handle a program holds for the lifetime of its
// HXHIM use: one primary index, the configured secondary indexes, the
// local range servers this rank owns, a transport to reach every other
// rank, and the client pipeline queuing every operation.
type Session struct {
	cfg        config.Map
	bootstrap  Bootstrap
	rank, size int
	unsafePuts bool

	registry  *index.Registry
	primary   *index.Index
	secondary map[triplestore.Direction]*index.Index

	transport  transport.Transport
	grpcServer *grpc.Server
	pipeline   *client.Pipeline

	statCache           *statcache.Cache
	statFlushGeneration string

	manifestPath string
	manifest     store.Manifest

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
}

const primaryIndexName = "primary"

// secondaryIndexNames names every non-primary direction a safe PUT's
// four-way fan-out (plus, when enabled, the unsafe six-way fan-out)
// needs its own Index for.
var secondaryIndexNames = map[triplestore.Direction]string{
	triplestore.DirSO: "so",
	triplestore.DirPO: "po",
	triplestore.DirPS: "ps",
	triplestore.DirOS: "os",
	triplestore.DirOP: "op",
}

// Open builds a Session: it loads configuration, creates the primary
// and secondary indexes, opens local stores and range servers for
// every (rank, database) this process owns, wires a transport backend,
// and starts the client pipeline.
func Open(opts Options) (*Session, error) {
	if opts.Bootstrap == nil {
		return nil, fmt.Errorf("%w: Options.Bootstrap is required", hxerr.ErrInputInvalid)
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("hxhim: loading config: %w", err)
		}
		cfg = loaded
	}

	s := &Session{
		cfg:                 cfg,
		bootstrap:           opts.Bootstrap,
		rank:                opts.Bootstrap.Rank(),
		size:                opts.Bootstrap.Size(),
		unsafePuts:          cfg.Bool(config.KeyUnsafePuts, false),
		registry:            index.NewRegistry(),
		secondary:           make(map[triplestore.Direction]*index.Index),
		shutdown:            make(chan struct{}),
		statFlushGeneration: strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	rsFactor := cfg.Int(config.KeyRangeserverFactor, 1)
	dbsPerServer := cfg.Int(config.KeyDBsPerServer, 1)
	sliceSize := uint64(cfg.Int(config.KeyMaxRecsPerSlice, 1024))
	keyType := partition.KeyTypeByte
	if cfg.String(config.KeyDBKeyType, "byte") == "uint64" {
		keyType = partition.KeyTypeUint64
	}

	partCfg := partition.Config{
		RankCount:          s.size,
		RangeserverFactor:  rsFactor,
		DatabasesPerServer: dbsPerServer,
		SliceSize:          sliceSize,
		KeyType:            keyType,
	}
	var members []string
	for r := 0; r < s.size; r += rsFactor {
		members = append(members, strconv.Itoa(r))
	}

	if !opts.InMemory {
		s.manifestPath = cfg.String(config.KeyManifestPath, "")
	}
	s.manifest = store.Manifest{
		KeyType:           cfg.String(config.KeyDBKeyType, "byte"),
		DBType:            cfg.String(config.KeyDBType, "badger"),
		RangeserverFactor: rsFactor,
		SliceSize:         sliceSize,
		NodeCount:         s.size,
	}
	if !opts.InMemory && s.manifestPath != "" {
		if err := store.CheckManifest(s.manifestPath, s.manifest); err != nil {
			return nil, err
		}
	}

	primary, err := s.registry.Create(primaryIndexName, index.Primary, triplestore.DirSP, rsFactor, dbsPerServer, sliceSize)
	if err != nil {
		return nil, fmt.Errorf("hxhim: creating primary index: %w", err)
	}
	primary.Partitioner = partition.New(partCfg, members)
	s.primary = primary

	for dir, name := range secondaryIndexNames {
		if (dir == triplestore.DirOS || dir == triplestore.DirOP) && !s.unsafePuts {
			continue
		}
		idx, err := s.registry.Create(name, index.SecondaryGlobal, dir, rsFactor, dbsPerServer, sliceSize)
		if err != nil {
			return nil, fmt.Errorf("hxhim: creating %s index: %w", name, err)
		}
		idx.Partitioner = partition.New(partCfg, members)
		s.secondary[dir] = idx
	}

	for _, idx := range s.registry.All() {
		if err := s.bringUpLocal(cfg, opts, idx); err != nil {
			return nil, err
		}
		telemetry.SetSliceCount(idx.Name, len(idx.Partitioner.SliceStatsSnapshot()))
	}

	if addr := cfg.String(config.KeyStatCacheRedisAddr, ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		s.statCache = statcache.New(&redisStatClient{rdb: rdb}, 24*time.Hour)
	}

	if err := s.openTransport(cfg, opts); err != nil {
		return nil, err
	}

	pipelineCfg := client.Config{
		BatchCap:     client.DefaultBatchCap,
		PutWatermark: cfg.Int(config.KeyWatermark, 2),
	}
	s.pipeline = client.NewPipeline(pipelineCfg, s.putSink(), s.getSink(), s.rangeGetSink(), s.deleteSink())
	s.pipeline.Start()

	s.running = true
	return s, nil
}

// bringUpLocal opens a store and starts a range server for every local
// database slot this rank owns under idx — every slot for which
// idx.Partitioner.IsRangeServer(s.rank) holds.
func (s *Session) bringUpLocal(cfg config.Map, opts Options, idx *index.Index) error {
	if !idx.Partitioner.IsRangeServer(s.rank) {
		return nil
	}
	numWorkers := cfg.Int(config.KeyNumWorkerThreads, 1)
	valueAppend := cfg.Bool(config.KeyValueAppend, false)

	for db := 0; db < idx.DatabasesPerServer; db++ {
		loc := partition.Location{Rank: s.rank, DatabaseIndex: db}
		st, err := s.openStore(cfg, opts, idx, db)
		if err != nil {
			return fmt.Errorf("hxhim: opening store for index %s db %d: %w", idx.Name, db, err)
		}
		idx.Stores[loc] = st

		srvCfg := rangeserver.Config{
			Rank:          s.rank,
			DatabaseIndex: db,
			NumWorkers:    numWorkers,
			ValueAppend:   valueAppend,
		}
		srv := rangeserver.NewServer(srvCfg, st, idx.Partitioner)
		srv.Start()
		idx.Servers[loc] = srv
	}
	return nil
}

func (s *Session) openStore(cfg config.Map, opts Options, idx *index.Index, db int) (store.OrderedStore, error) {
	if opts.InMemory {
		return store.NewMemStore(), nil
	}
	path := fmt.Sprintf("%s/%s-%s-%d-%d",
		cfg.String(config.KeyDBPath, "."), cfg.String(config.KeyDBName, "hxhim"), idx.Name, s.rank, db)
	return store.Open(store.BadgerConfig{
		Path:      path,
		CreateNew: cfg.Bool(config.KeyCreateNewDB, false),
	})
}

// openTransport wires whichever backend rpc-backend names ("tcp",
// the default, or "grpc") to dispatchInbound as its inbound receiver.
func (s *Session) openTransport(cfg config.Map, opts Options) error {
	if opts.InMemory && s.size == 1 {
		// A pure single-rank demo/test session never dials out; every
		// dispatch is a loopback, so there is nothing for a backend to
		// do. Still construct one so Close has something uniform to
		// tear down.
		s.transport = tcpwire.New(s.rank, s.addrFor, s.dispatchInbound)
		return nil
	}

	backend := cfg.String(config.KeyRPCBackend, "tcp")
	switch backend {
	case "grpc":
		grpcSrv := grpcwire.NewServer(s.dispatchInbound)
		addr, err := s.bootstrap.Addr(s.rank)
		if err == nil && addr != "" {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("hxhim: grpc listen %s: %w", addr, err)
			}
			go func() {
				// Serve blocks for the listener's lifetime; errors after
				// a deliberate Close are expected and not logged loudly.
				if err := grpcSrv.Serve(ln); err != nil {
					log.Printf("hxhim: grpc serve %s: %v", addr, err)
				}
			}()
		}
		s.transport = grpcwire.New(s.addrFor, grpc.WithTransportCredentials(insecure.NewCredentials()))
		s.grpcServer = grpcSrv
	default:
		backend := tcpwire.New(s.rank, s.addrFor, s.dispatchInbound)
		if addr, err := s.bootstrap.Addr(s.rank); err == nil && addr != "" {
			if _, err := backend.Listen(addr); err != nil {
				return fmt.Errorf("hxhim: listening on %s: %w", addr, err)
			}
		}
		s.transport = backend
	}
	return nil
}

func (s *Session) addrFor(dst int) (string, error) { return s.bootstrap.Addr(dst) }

// dispatchInbound is the receiver every transport backend's listener
// calls for an inbound request (spec §4.4's "Listener... construct a
// work item... append to the work queue"): it resolves the message's
// index, picks the local database that owns it, and hands the message
// to that database's Server for the worker pool to execute.
func (s *Session) dispatchInbound(ctx context.Context, src int, m wire.Message) (wire.Message, error) {
	idx, ok := s.registry.ByID(m.Header.IndexID)
	if !ok {
		return wire.Message{}, fmt.Errorf("%w: unknown index id %d", hxerr.ErrInputInvalid, m.Header.IndexID)
	}
	db := s.inboundDatabase(idx, m)
	loc := partition.Location{Rank: s.rank, DatabaseIndex: db}
	srv, ok := idx.Servers[loc]
	if !ok {
		return wire.Message{}, fmt.Errorf("%w: no local server for index %s db %d", hxerr.ErrInputInvalid, idx.Name, db)
	}
	return srv.Receive(ctx, src, m)
}

// inboundDatabase picks the destination database index for an inbound
// message: an explicit Header.PerEntryDB (bulk ops' per-entry routing),
// an entry's non-zero Database field, or the partitioner's own
// routing recomputed from the first entry's key — deterministic across
// ranks, so it agrees with whatever the sender already computed. A
// StatsReq carries neither, since every db on a rank shares one
// Partitioner; it always resolves to db 0's Server.
func (s *Session) inboundDatabase(idx *index.Index, m wire.Message) int {
	if len(m.Header.PerEntryDB) > 0 {
		return m.Header.PerEntryDB[0]
	}
	if len(m.Entries) > 0 {
		if m.Entries[0].Database != 0 {
			return m.Entries[0].Database
		}
		if idx.Partitioner != nil {
			return idx.Partitioner.GetRangeServer(m.Entries[0].Key).DatabaseIndex
		}
	}
	return 0
}

// Close tears the session down. Per spec §6's close() contract it
// drains nothing automatically: whatever remains queued, PUT included,
// is dropped along with its buffers rather than force-flushed.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.shutdown)
	s.mu.Unlock()

	s.pipeline.Discard()

	var firstErr error
	for _, idx := range s.registry.All() {
		for loc, srv := range idx.Servers {
			if loc.Rank != s.rank {
				continue
			}
			srv.Stop()
		}
		for loc, st := range idx.Stores {
			if loc.Rank != s.rank {
				continue
			}
			if err := st.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("hxhim: closing store for index %s db %d: %w", idx.Name, loc.DatabaseIndex, err)
			}
		}
	}

	if err := s.transport.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("hxhim: closing transport: %w", err)
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	if s.manifestPath != "" && s.rank == 1 {
		if err := store.WriteManifest(s.manifestPath, s.manifest); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Commit forwards to every ordered store this rank hosts locally — this
// rank's own participation in the specification's distributed commit
// collective; a full collective commit requires every rank's Session
// to call Commit independently.
func (s *Session) Commit() error {
	var firstErr error
	for _, idx := range s.registry.All() {
		for loc, st := range idx.Stores {
			if loc.Rank != s.rank {
				continue
			}
			if err := st.Commit(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%w: index %s db %d: %v", hxerr.ErrStore, idx.Name, loc.DatabaseIndex, err)
			}
		}
	}
	return firstErr
}

// StatFlush is the collective operation of spec §4.2/§6: for every
// range server owning idx, it requests that server's current slice
// statistics, merges the per-server tables, and installs the merged,
// read-only copy on every local Partitioner so ordered client queries
// can route without a round-trip. When a statcache is configured, the
// merged per-slice stats are also published there so a restarting range
// server can bootstrap without rescanning its store.
//
// One StatsReq per owning rank is enough, not one per (rank, db): every
// database slot on a rank shares that rank's single Partitioner, so
// handleStats already answers with the rank's whole slice table
// regardless of which db received the request. Asking once per db
// would re-merge the same snapshot dbsPerServer times and inflate
// every slice's count.
func (s *Session) StatFlush() error {
	for _, idx := range s.registry.All() {
		if idx.Partitioner == nil {
			continue
		}
		merged := make(map[uint64]partition.SliceStats)
		var local bool
		var remote []int
		for _, rank := range s.rangeServerRanksFor(idx) {
			if rank == s.rank {
				local = true
				continue
			}
			remote = append(remote, rank)
		}

		if local {
			loc := partition.Location{Rank: s.rank, DatabaseIndex: 0}
			req := wire.Message{Header: wire.Header{MType: wire.MTypeStatsReq, IndexID: idx.ID}}
			resp, err := s.dispatch(context.Background(), idx, loc, req)
			if err != nil {
				return fmt.Errorf("%w: stat-flush index %s rank %d: %v", hxerr.ErrTransport, idx.Name, s.rank, err)
			}
			mergeSliceStats(merged, resp.Stats)
		}

		if len(remote) > 0 {
			group := transport.NewEndpointGroup(s.transport, remote)
			results := group.Multicast(context.Background(), func(dst int) wire.Message {
				return wire.Message{Header: wire.Header{MType: wire.MTypeStatsReq, IndexID: idx.ID, Src: s.rank, Dst: dst}}
			})
			for i, res := range results {
				if res.Err != nil {
					return fmt.Errorf("%w: stat-flush index %s rank %d: %v", hxerr.ErrTransport, idx.Name, remote[i], res.Err)
				}
				mergeSliceStats(merged, res.Message.Stats)
			}
		}

		idx.Partitioner.InstallStats(merged)
		if s.statCache != nil {
			for slice, st := range merged {
				rec := statcache.SliceStat{SliceKey: fmt.Sprintf("%s:%d", idx.Name, slice), Min: st.Min, Max: st.Max, Count: st.Count}
				if err := s.statCache.Publish(context.Background(), s.statFlushGeneration, rec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func bytesLess(a, b []byte) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return string(a) < string(b)
}

// mergeSliceStats folds one server's stats response into the running
// per-slice table, extending min/max and summing counts.
func mergeSliceStats(merged map[uint64]partition.SliceStats, stats []wire.SliceStat) {
	for _, st := range stats {
		cur, ok := merged[st.Slice]
		if !ok {
			merged[st.Slice] = partition.SliceStats{Min: st.Min, Max: st.Max, Count: st.Count}
			continue
		}
		if bytesLess(st.Min, cur.Min) {
			cur.Min = st.Min
		}
		if bytesLess(cur.Max, st.Max) {
			cur.Max = st.Max
		}
		cur.Count += st.Count
		merged[st.Slice] = cur
	}
}

// rangeServerRanksFor returns the distinct ranks owning idx's range
// servers, spaced by idx's rangeserver factor.
func (s *Session) rangeServerRanksFor(idx *index.Index) []int {
	factor := idx.RangeserverFactor
	if factor <= 0 {
		factor = 1
	}
	var out []int
	for r := 0; r < s.size; r += factor {
		out = append(out, r)
	}
	return out
}

func (s *Session) indexFor(dir triplestore.Direction) *index.Index {
	if dir == triplestore.DirSP {
		return s.primary
	}
	return s.secondary[dir]
}

func (s *Session) rangeServerRanks() []int {
	factor := s.primary.RangeserverFactor
	if factor <= 0 {
		factor = 1
	}
	var out []int
	for r := 0; r < s.size; r += factor {
		out = append(out, r)
	}
	return out
}
