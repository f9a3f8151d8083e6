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

// Package config implements the configuration reader chain: default
// filename in the working directory, then the file named by an
// environment variable, then direct per-key environment variable
// overrides. Each reader may veto, extend, or override its predecessors'
// entries, per the collaborator contract in the specification.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Known configuration keys (spec "Configuration options (enumerated)").
const (
	KeyDBPath             = "db-path"
	KeyDBName             = "db-name"
	KeyDBType             = "db-type"
	KeyDBKeyType          = "db-key-type"
	KeyRangeserverFactor  = "rangeserver-factor"
	KeyMaxRecsPerSlice    = "max-recs-per-slice"
	KeyDBsPerServer       = "dbs-per-server"
	KeyNumWorkerThreads   = "num-worker-threads"
	KeyWatermark          = "watermark"
	KeyCreateNewDB        = "create-new-db"
	KeyValueAppend        = "value-append"
	KeyDebugLevel         = "debug-level"
	KeyManifestPath       = "manifest-path"
	KeyRPCBackend         = "rpc-backend"
	KeyStatCacheRedisAddr = "statcache-redis-addr"
	// KeyUnsafePuts is not in the distilled spec's enumerated option
	// table; it is added per SPEC_FULL.md §C to control whether a
	// session creates the OS/OP secondary indexes the six-way fan-out
	// needs, mirroring how the original registers a fixed set of
	// secondary mdhim_t* handles during mdhimInit.
	KeyUnsafePuts = "unsafe-puts"
)

// DefaultFilename is the name searched for in the process's working
// directory when no explicit config path is supplied to Open.
const DefaultFilename = "hxhim.conf"

// EnvPathVar names the environment variable that, if set, points at an
// alternate config file to load instead of DefaultFilename.
const EnvPathVar = "HXHIM_CONFIG"

// EnvPrefix is prepended (upper-cased, hyphens turned to underscores) to
// each known key to form its direct-override environment variable name,
// e.g. "watermark" -> "HXHIM_WATERMARK".
const EnvPrefix = "HXHIM_"

// Map is a flattened key -> string configuration, exactly the contract
// the out-of-scope config reader collaborator is specified to yield.
type Map map[string]string

// Load builds a Map by running the reader chain in search order:
// defaults, then DefaultFilename in cwd (if present), then the file
// named by EnvPathVar (if set), then direct HXHIM_* environment
// overrides. explicitPath, if non-empty, is tried before the default
// filename and short-circuits the cwd search.
func Load(explicitPath string) (Map, error) {
	m := Map{}
	applyDefaults(m)

	path := explicitPath
	if path == "" {
		path = DefaultFilename
	}
	if err := mergeFile(m, path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if envPath := os.Getenv(EnvPathVar); envPath != "" {
		if err := mergeFile(m, envPath); err != nil {
			return nil, fmt.Errorf("config: reading %s (from %s): %w", envPath, EnvPathVar, err)
		}
	}

	applyEnvOverrides(m)
	return m, nil
}

func applyDefaults(m Map) {
	m[KeyDBPath] = "."
	m[KeyDBName] = "hxhim"
	m[KeyDBType] = "badger"
	m[KeyDBKeyType] = "byte"
	m[KeyRangeserverFactor] = "1"
	m[KeyMaxRecsPerSlice] = "1024"
	m[KeyDBsPerServer] = "1"
	m[KeyNumWorkerThreads] = "1"
	m[KeyWatermark] = "2"
	m[KeyCreateNewDB] = "false"
	m[KeyValueAppend] = "false"
	m[KeyDebugLevel] = "0"
	m[KeyUnsafePuts] = "false"
}

// mergeFile parses a simple "key = value" per-line format (blank lines
// and lines starting with "#" are skipped) and overwrites m's entries.
func mergeFile(m Map, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key != "" {
			m[key] = val
		}
	}
	return sc.Err()
}

func applyEnvOverrides(m Map) {
	keys := []string{KeyManifestPath, KeyRPCBackend, KeyStatCacheRedisAddr}
	for key := range m {
		keys = append(keys, key)
	}
	for _, key := range keys {
		envName := EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if v, ok := os.LookupEnv(envName); ok {
			m[key] = v
		}
	}
}

// Int reads key as a base-10 integer, returning def if the key is
// absent or unparsable.
func (m Map) Int(key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool reads key as a boolean, returning def if the key is absent or
// unparsable.
func (m Map) Bool(key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// String reads key, returning def if absent.
func (m Map) String(key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
