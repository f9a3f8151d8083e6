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
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Manifest records the index parameters a range server's local stores
// were created with, so a later reopen can detect a configuration
// mismatch and abort rather than silently reinterpreting old data under
// new rules (spec §6, "Persisted state layout"). The original C
// implementation writes a fixed binary struct; this module keeps its
// cross-check-and-abort behavior but encodes as JSON since there is no
// reason to preserve the binary layout verbatim in Go (see DESIGN.md).
type Manifest struct {
	KeyType           string `json:"key_type"`
	DBType            string `json:"db_type"`
	RangeserverFactor int    `json:"rangeserver_factor"`
	SliceSize         uint64 `json:"slice_size"`
	NodeCount         int    `json:"node_count"`
}

// ErrManifestMismatch is returned by CheckManifest when the on-disk
// manifest disagrees with the runtime configuration.
var ErrManifestMismatch = errors.New("store: manifest mismatch")

// WriteManifest writes m to path, overwriting any existing file. Called
// by the rank-1 range server on Close, per spec §6.
func WriteManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("store: writing manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest reads and decodes the manifest at path. A missing file
// is reported via os.IsNotExist on the returned error so a first-ever
// Open can distinguish "no manifest yet" from "corrupt manifest".
func ReadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("store: decoding manifest %s: %w", path, err)
	}
	return m, nil
}

// CheckManifest reads the manifest at path (if any) and compares it
// against want. A missing manifest is not an error — it means this is
// the first time this index has been opened. Any field mismatch is
// ErrManifestMismatch, matching the original's "cross-checked against
// the runtime configuration and mismatches abort" behavior.
func CheckManifest(path string, want Manifest) error {
	got, err := ReadManifest(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if got != want {
		return fmt.Errorf("%w: on-disk %+v, configured %+v", ErrManifestMismatch, got, want)
	}
	return nil
}
