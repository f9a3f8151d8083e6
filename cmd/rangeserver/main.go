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

// Package main provides the entry point for a standalone HXHIM rank.
//
// This process is responsible for:
// 1. Reading its rank, peer address table, and store configuration.
// 2. Opening a Session, which brings up every local range server this
//    rank owns and wires it to the configured transport backend.
// 3. Idling until an OS signal, while its range servers answer PUT,
//    GET, DELETE, and stat-flush requests from every other rank.
// 4. Shutting down gracefully, closing the transport and local stores.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hxhim/hxhim/internal/config"
	"github.com/hxhim/hxhim/pkg/hxhim"
)

// peerTable is the Bootstrap collaborator for a multi-process rank: the
// peer addresses are supplied on the command line since discovering
// them is explicitly out of scope (spec §6's Bootstrap is "supplied,
// not built").
type peerTable struct {
	rank  int
	addrs []string
}

func (p peerTable) Rank() int { return p.rank }
func (p peerTable) Size() int { return len(p.addrs) }
func (p peerTable) Addr(rank int) (string, error) {
	if rank < 0 || rank >= len(p.addrs) {
		return "", fmt.Errorf("rangeserver: rank %d out of range (size %d)", rank, len(p.addrs))
	}
	return p.addrs[rank], nil
}

func main() {
	// 1. Parse flags.
	rank := flag.Int("rank", 0, "This process's rank within the communicator")
	peers := flag.String("peers", "127.0.0.1:9000", "Comma-separated host:port for every rank, in rank order")
	configPath := flag.String("config", "", "Path to an hxhim.conf file (defaults to the config.Load reader chain)")
	inMemory := flag.Bool("in-memory", false, "Use in-memory stores instead of Badger-backed ones")
	flag.Parse()

	addrs := strings.Split(*peers, ",")
	for i, a := range addrs {
		addrs[i] = strings.TrimSpace(a)
	}
	if *rank < 0 || *rank >= len(addrs) {
		log.Fatalf("rangeserver: -rank %d out of range for %d peers", *rank, len(addrs))
	}

	var cfg config.Map
	if *configPath == "" && !*inMemory {
		loaded, err := config.Load("")
		if err != nil {
			log.Fatalf("rangeserver: loading config: %v", err)
		}
		cfg = loaded
	} else if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("rangeserver: loading config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	bootstrap := peerTable{rank: *rank, addrs: addrs}

	// 2. Open the session. This brings up every local range server
	// this rank owns and starts listening on its transport.
	s, err := hxhim.Open(hxhim.Options{
		Bootstrap:  bootstrap,
		Config:     cfg,
		ConfigPath: *configPath,
		InMemory:   *inMemory,
	})
	if err != nil {
		log.Fatalf("rangeserver: open: %v", err)
	}

	fmt.Printf("rangeserver: rank %d/%d listening on %s\n", *rank, len(addrs), addrs[*rank])

	// 3. Wait for an OS signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nrangeserver: shutting down...")

	// 4. Close the session: stops every local range server, closes the
	// transport, and closes the local stores.
	if err := s.Close(); err != nil {
		log.Fatalf("rangeserver: close: %v", err)
	}

	fmt.Println("rangeserver: stopped.")
}
