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

// Package main is a small runnable demonstration of the public Session
// API: it opens a single-rank session, puts a handful of triples,
// flushes them, runs a stat-flush, and walks the result back out with
// a GET and an ordered FIRST/NEXT scan.
//
// This is a demo, not a benchmark or a test harness — see
// pkg/hxhim/session_test.go for the scripted scenarios this mirrors.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/hxhim/hxhim/internal/config"
	"github.com/hxhim/hxhim/pkg/hxhim"
)

// soloBootstrap is the Bootstrap collaborator for a single-process
// demo: one rank, no peers to dial.
type soloBootstrap struct{}

func (soloBootstrap) Rank() int                    { return 0 }
func (soloBootstrap) Size() int                    { return 1 }
func (soloBootstrap) Addr(rank int) (string, error) { return "", nil }

func main() {
	configPath := flag.String("config", "", "Path to an hxhim.conf file (defaults to the config.Load reader chain)")
	inMemory := flag.Bool("in-memory", true, "Use in-memory stores instead of Badger-backed ones")
	flag.Parse()

	var cfg config.Map
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("client-demo: loading config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	s, err := hxhim.Open(hxhim.Options{
		Bootstrap:  soloBootstrap{},
		Config:     cfg,
		ConfigPath: *configPath,
		InMemory:   *inMemory,
	})
	if err != nil {
		log.Fatalf("client-demo: open: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("client-demo: close: %v", err)
		}
	}()

	// 1. PUT a few triples describing two subjects.
	triples := []hxhim.Triple{
		{Subject: []byte("alice"), Predicate: []byte("age"), Object: []byte("30")},
		{Subject: []byte("alice"), Predicate: []byte("city"), Object: []byte("paris")},
		{Subject: []byte("bob"), Predicate: []byte("age"), Object: []byte("42")},
	}
	if err := s.BPut(triples); err != nil {
		log.Fatalf("client-demo: bput: %v", err)
	}

	puts := s.FlushPuts()
	var acked int
	for puts.FirstServer(); puts.ValidServer(); puts.NextServer() {
		if err := puts.Error(); err != nil {
			log.Fatalf("client-demo: put ack: %v", err)
		}
		acked++
	}
	fmt.Printf("put %d triples, %d server acks\n", len(triples), acked)

	// 2. Refresh slice statistics across every range server this
	// session can reach before relying on stats-driven ordered ops.
	if err := s.StatFlush(); err != nil {
		log.Fatalf("client-demo: stat-flush: %v", err)
	}

	// 3. GET a known (subject, predicate) pair.
	if err := s.Get([]byte("alice"), []byte("age")); err != nil {
		log.Fatalf("client-demo: get: %v", err)
	}
	gets := s.FlushGets()
	for gets.FirstServer(); gets.ValidServer(); gets.NextServer() {
		for gets.FirstKV(); gets.ValidKV(); gets.NextKV() {
			key, value, ok := gets.GetKV()
			if ok {
				fmt.Printf("get: %s -> %s\n", key, value)
			}
		}
	}

	// 4. Walk the primary index in key order with FIRST + NEXT.
	if err := s.GetFirst(len(triples)); err != nil {
		log.Fatalf("client-demo: getfirst: %v", err)
	}
	it := s.FlushRangeGets()
	for it.FirstServer(); it.ValidServer(); it.NextServer() {
		for it.FirstKV(); it.ValidKV(); it.NextKV() {
			key, value, ok := it.GetKV()
			if ok {
				fmt.Printf("scan: %s -> %s\n", key, value)
			}
		}
	}
}
