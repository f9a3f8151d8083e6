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

import "sort"

// MemStore is an in-memory OrderedStore, kept sorted for GetNext/
// GetPrev/GetFirst/GetLast. It is not meant for production use — it
// exists for tests that need an OrderedStore without paying Badger's
// on-disk setup cost, the same role core/store.go's sync.Map-backed
// managedVSA store plays as a fast in-memory collaborator in the
// teacher's own tests.
type MemStore struct {
	data map[string][]byte
	keys []string // kept sorted
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Put(key, value []byte) error {
	k := string(key)
	if _, exists := m.data[k]; !exists {
		i := sort.SearchStrings(m.keys, k)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = k
	}
	m.data[k] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) BatchPut(keys, values [][]byte) error {
	for i := range keys {
		if err := m.Put(keys[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Get(key []byte) ([]byte, bool, error) {
	v, ok := m.data[string(key)]
	return v, ok, nil
}

func (m *MemStore) GetNext(key []byte) ([]byte, []byte, bool, error) {
	k := string(key)
	i := sort.SearchStrings(m.keys, k)
	for i < len(m.keys) && m.keys[i] <= k {
		i++
	}
	if i >= len(m.keys) {
		return nil, nil, false, nil
	}
	return []byte(m.keys[i]), m.data[m.keys[i]], true, nil
}

func (m *MemStore) GetPrev(key []byte) ([]byte, []byte, bool, error) {
	k := string(key)
	i := sort.SearchStrings(m.keys, k) - 1
	if i < 0 {
		return nil, nil, false, nil
	}
	return []byte(m.keys[i]), m.data[m.keys[i]], true, nil
}

func (m *MemStore) GetFirst() ([]byte, []byte, bool, error) {
	if len(m.keys) == 0 {
		return nil, nil, false, nil
	}
	return []byte(m.keys[0]), m.data[m.keys[0]], true, nil
}

func (m *MemStore) GetLast() ([]byte, []byte, bool, error) {
	if len(m.keys) == 0 {
		return nil, nil, false, nil
	}
	k := m.keys[len(m.keys)-1]
	return []byte(k), m.data[k], true, nil
}

func (m *MemStore) Delete(key []byte) error {
	k := string(key)
	if _, ok := m.data[k]; !ok {
		return nil
	}
	delete(m.data, k)
	i := sort.SearchStrings(m.keys, k)
	if i < len(m.keys) && m.keys[i] == k {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
	return nil
}

func (m *MemStore) BatchDelete(keys [][]byte) error {
	for _, k := range keys {
		if err := m.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Commit() error { return nil }
func (m *MemStore) Close() error  { return nil }
