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

package config

import "flag"

// FlagSet registers one flag per known configuration key onto fs and
// returns a closure that, once fs.Parse has run, overlays any
// explicitly-set flag onto m. This mirrors cmd/ratelimiter-api/main.go's
// flat flag.* registration; it sits outermost in the reader chain since
// a flag the operator typed on the command line should win over a file
// or environment default.
func FlagSet(fs *flag.FlagSet, m Map) func() {
	vals := map[string]*string{}
	register := func(key string) {
		vals[key] = fs.String(key, m[key], "override "+key)
	}
	for _, key := range []string{
		KeyDBPath, KeyDBName, KeyDBType, KeyDBKeyType,
		KeyRangeserverFactor, KeyMaxRecsPerSlice, KeyDBsPerServer,
		KeyNumWorkerThreads, KeyWatermark, KeyCreateNewDB,
		KeyValueAppend, KeyDebugLevel, KeyManifestPath, KeyRPCBackend,
		KeyStatCacheRedisAddr, KeyUnsafePuts,
	} {
		register(key)
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	return func() {
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		for key, v := range vals {
			if explicit[key] {
				m[key] = *v
			}
		}
	}
}
