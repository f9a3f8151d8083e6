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

package triplestore

// Triple is an immutable (subject, predicate, object) tuple. Each
// component is an opaque byte sequence; equality and ordering are
// byte-lexicographic.
type Triple struct {
	Subject, Predicate, Object []byte
}

// Direction names one of the six possible two-component key permutations a
// triple can be encoded under. Only four (SP, SO, PO, PS) are populated by
// a safe PUT; an unsafe PUT additionally populates OS and OP.
type Direction int

const (
	DirSP Direction = iota // key = S,P  value = O
	DirSO                  // key = S,O  value = P
	DirPO                  // key = P,O  value = S
	DirPS                  // key = P,S  value = O (redundant with SP for symmetric schemas)
	DirOS                  // key = O,S  value = P (unsafe fan-out only)
	DirOP                  // key = O,P  value = S (unsafe fan-out only)
)

func (d Direction) String() string {
	switch d {
	case DirSP:
		return "SP"
	case DirSO:
		return "SO"
	case DirPO:
		return "PO"
	case DirPS:
		return "PS"
	case DirOS:
		return "OS"
	case DirOP:
		return "OP"
	default:
		return "?"
	}
}

// Record is one physical (key, value) pair produced by fanning a Triple out
// under a Direction.
type Record struct {
	Direction Direction
	Key       []byte
	Value     []byte
}

// FanoutSafe produces the four-way permutation table from spec §4.1: SP→O,
// SO→P, PO→S, PS→O. Every logical triple is retrievable by at least the
// SP-prefix.
func FanoutSafe(t Triple) ([]Record, error) {
	return fanout(t, false)
}

// FanoutUnsafe produces the six-way permutation table: the four safe
// records plus OS→P and OP→S, covering every two-component query
// symmetrically. Per spec §9 this is the Open Question decision adopted
// by this implementation as the default fan-out for PutUnsafe/BPutUnsafe.
func FanoutUnsafe(t Triple) ([]Record, error) {
	return fanout(t, true)
}

func fanout(t Triple, unsafe bool) ([]Record, error) {
	s, p, o := t.Subject, t.Predicate, t.Object
	recs := make([]Record, 0, 6)

	add := func(dir Direction, a, b, value []byte) error {
		key, err := Encode(a, b)
		if err != nil {
			return err
		}
		recs = append(recs, Record{Direction: dir, Key: key, Value: value})
		return nil
	}

	if err := add(DirSP, s, p, o); err != nil {
		return nil, err
	}
	if err := add(DirSO, s, o, p); err != nil {
		return nil, err
	}
	if err := add(DirPO, p, o, s); err != nil {
		return nil, err
	}
	if err := add(DirPS, p, s, o); err != nil {
		return nil, err
	}
	if !unsafe {
		return recs, nil
	}
	if err := add(DirOS, o, s, p); err != nil {
		return nil, err
	}
	if err := add(DirOP, o, p, s); err != nil {
		return nil, err
	}
	return recs, nil
}
