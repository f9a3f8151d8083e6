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

package store

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a BadgerStore. Mirrors the conservative,
// explicitly-bounded memory posture of the pack's badger wrapper: a
// range server process sharing a node with many others should not let
// its embedded store balloon past what the operator budgeted.
type BadgerConfig struct {
	Path        string
	InMemory    bool
	CreateNew   bool
	MaxMemoryMB int64
}

// BadgerStore implements OrderedStore on top of dgraph-io/badger/v4,
// filling the spec's "embedded ordered key-value engine
// (LevelDB/RocksDB/etc.)" collaborator slot.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at cfg.Path.
func Open(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	opts = opts.
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20).
		WithLoggingLevel(badger.WARNING)

	if cfg.CreateNew {
		// create-new-db (spec §6): the caller is responsible for
		// removing any prior directory contents before Open runs;
		// Badger itself has no "truncate on open" flag.
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger at %s: %w", cfg.Path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

func (s *BadgerStore) BatchPut(keys, values [][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range keys {
		if err := wb.Set(keys[i], values[i]); err != nil {
			return fmt.Errorf("store: batch put: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: batch put flush: %w", err)
	}
	return nil
}

func (s *BadgerStore) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get: %w", err)
	}
	return value, value != nil, nil
}

// GetNext returns the smallest stored key strictly greater than key.
func (s *BadgerStore) GetNext(key []byte) ([]byte, []byte, bool, error) {
	return s.seek(key, true, false)
}

// GetPrev returns the largest stored key strictly less than key.
func (s *BadgerStore) GetPrev(key []byte) ([]byte, []byte, bool, error) {
	return s.seek(key, false, false)
}

func (s *BadgerStore) GetFirst() ([]byte, []byte, bool, error) {
	return s.seek(nil, true, true)
}

func (s *BadgerStore) GetLast() ([]byte, []byte, bool, error) {
	return s.seek(nil, false, true)
}

// seek walks the store's iterator to satisfy GetNext/GetPrev/GetFirst/
// GetLast. forward selects ascending vs. descending iteration order;
// fromStart ignores key and seeks to the very first item in that order.
func (s *BadgerStore) seek(key []byte, forward, fromStart bool) (k, v []byte, found bool, err error) {
	txErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !forward
		it := txn.NewIterator(opts)
		defer it.Close()

		if fromStart {
			it.Rewind()
		} else if forward {
			it.Seek(append(append([]byte(nil), key...), 0x00))
		} else {
			it.Seek(key)
			// Reverse iterators seek to the largest key <= target;
			// skip equal keys to get strictly-less-than semantics.
			for it.Valid() && string(it.Item().Key()) >= string(key) {
				it.Next()
			}
		}

		if !it.Valid() {
			return nil
		}
		item := it.Item()
		k = append([]byte(nil), item.Key()...)
		return item.Value(func(val []byte) error {
			v = append([]byte(nil), val...)
			return nil
		})
	})
	if txErr != nil {
		return nil, nil, false, fmt.Errorf("store: seek: %w", txErr)
	}
	return k, v, k != nil, nil
}

func (s *BadgerStore) Delete(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *BadgerStore) BatchDelete(keys [][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("store: batch delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: batch delete flush: %w", err)
	}
	return nil
}

// Commit forwards to Badger's own value-log sync, the closest available
// analog of the spec's generic "commit entry point" on the ordered
// store collaborator.
func (s *BadgerStore) Commit() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
