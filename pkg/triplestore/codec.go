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

// Package triplestore implements the physical key encoding used to turn a
// logical (subject, predicate, object) triple into the family of ordered
// byte keys the range servers actually store.
package triplestore

import (
	"encoding/binary"
	"errors"
)

// lengthFieldSize is the width of each trailing length field in a physical
// key: bytes(A) || bytes(B) || u64be(len(A)) || u64be(len(B)).
const lengthFieldSize = 8

// ErrInvalidInput is returned by Encode when a component is empty.
var ErrInvalidInput = errors.New("triplestore: component must be non-empty")

// ErrMalformedKey is returned by Decode when the trailing length fields do
// not account for the full length of the buffer.
var ErrMalformedKey = errors.New("triplestore: malformed physical key")

// Encode concatenates first and second followed by their big-endian u64
// lengths, producing the canonical physical key described in spec §4.1.
//
// The trailing lengths make the encoding self-describing: Decode does not
// need an external schema to recover first and second. Encode never
// reuses the caller's backing arrays; the returned slice is always a fresh
// allocation safe to store.
func Encode(first, second []byte) ([]byte, error) {
	if len(first) == 0 || len(second) == 0 {
		return nil, ErrInvalidInput
	}
	out := make([]byte, len(first)+len(second)+2*lengthFieldSize)
	n := copy(out, first)
	n += copy(out[n:], second)
	binary.BigEndian.PutUint64(out[n:], uint64(len(first)))
	binary.BigEndian.PutUint64(out[n+lengthFieldSize:], uint64(len(second)))
	return out, nil
}

// Decode recovers first and second from a physical key produced by Encode.
// The returned slices alias buf; callers that need to retain them past
// buf's lifetime must copy.
func Decode(buf []byte) (first, second []byte, err error) {
	if len(buf) < 2*lengthFieldSize {
		return nil, nil, ErrMalformedKey
	}
	trailer := buf[len(buf)-2*lengthFieldSize:]
	firstLen := binary.BigEndian.Uint64(trailer[:lengthFieldSize])
	secondLen := binary.BigEndian.Uint64(trailer[lengthFieldSize:])
	want := firstLen + secondLen + 2*lengthFieldSize
	if want != uint64(len(buf)) {
		return nil, nil, ErrMalformedKey
	}
	first = buf[:firstLen]
	second = buf[firstLen : firstLen+secondLen]
	return first, second, nil
}

// Prefix reports the portion of a physical key produced by Encode(first, *)
// that is shared by every key sharing the same first component: first
// itself. Because Encode always appends first's bytes before second's and
// the trailing lengths come last, every physical key sharing a given first
// starts with this prefix — but a longer first that happens to start with
// the same bytes also matches it, so a byte-prefix scan must decode each
// candidate key to confirm firstLen matches. RangeBounds does not exclude
// such keys either.
func Prefix(first []byte) []byte {
	out := make([]byte, len(first))
	copy(out, first)
	return out
}

// RangeBounds returns the inclusive/exclusive byte bounds [lo, hi) of
// every physical key whose bytes begin with first: lo is first itself and
// hi is first with its last byte incremented. The range holds every key
// encoded with this first component, whatever its second, and also every
// key whose first component is a longer string beginning with first (for
// "alice", a key with first "alicex"); those are not excluded. hi is nil
// when first is empty or all 0xFF. No other package calls RangeBounds.
func RangeBounds(first []byte) (lo, hi []byte) {
	lo = Prefix(first)
	hi = make([]byte, len(first))
	copy(hi, first)
	hi = incrementBytes(hi)
	return lo, hi
}

// incrementBytes returns a byte string of b's length that is greater than
// every string with prefix b, used to build an exclusive upper bound: the
// last byte below 0xFF is incremented and the 0xFF bytes after it become
// zero. If b is empty or all 0xFF no such string exists, and the result
// is nil.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return nil
}
