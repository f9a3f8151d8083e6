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

package telemetry

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	putCount, getCount, rangeGetCount, deleteCount atomic.Int64

	summaryMu   sync.Mutex
	summaryStop chan struct{}
	summaryDone chan struct{}

	livePrinted   atomic.Bool
	ansiSupported atomic.Bool
	colorOn       atomic.Bool
)

func recordActivity(put, get, rangeGet, del int) {
	if put > 0 {
		putCount.Add(int64(put))
	}
	if get > 0 {
		getCount.Add(int64(get))
	}
	if rangeGet > 0 {
		rangeGetCount.Add(int64(rangeGet))
	}
	if del > 0 {
		deleteCount.Add(int64(del))
	}
}

func startOrUpdateSummaryLoop(cfg Config) {
	summaryMu.Lock()
	defer summaryMu.Unlock()

	if os.Getenv("NO_COLOR") != "" {
		colorOn.Store(false)
	} else {
		colorOn.Store(true)
	}
	ansiSupported.Store(detectANSISupport())

	if summaryStop != nil {
		close(summaryStop)
		<-summaryDone
		summaryStop, summaryDone = nil, nil
	}
	if !cfg.Enabled || cfg.LogInterval <= 0 {
		return
	}
	summaryStop = make(chan struct{})
	summaryDone = make(chan struct{})
	go summaryLoop(cfg.LogInterval, summaryStop, summaryDone)
}

func summaryLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printSummary()
		case <-stop:
			return
		}
	}
}

func printSummary() {
	line := fmt.Sprintf("hxhim activity: put=%d get=%d rangeget=%d delete=%d",
		putCount.Load(), getCount.Load(), rangeGetCount.Load(), deleteCount.Load())
	if colorOn.Load() {
		line = ansiBold + ansiCyan + line + ansiReset
	}
	if ansiSupported.Load() {
		renderLive(line)
		return
	}
	fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), line)
}

const (
	ansiClearLine = "\x1b[2K"
	ansiPrevLine1 = "\x1b[1F"
	ansiReset     = "\x1b[0m"
	ansiBold      = "\x1b[1m"
	ansiCyan      = "\x1b[36m"
)

func renderLive(line string) {
	if !livePrinted.Load() {
		fmt.Println(line)
		livePrinted.Store(true)
		return
	}
	fmt.Print(ansiPrevLine1)
	fmt.Printf("%s%s\n", ansiClearLine, line)
}

// detectANSISupport mirrors the conservative terminal-capability check
// used elsewhere in this codebase's ancestry: only claim ANSI cursor
// support on terminals that are likely to honor it.
func detectANSISupport() bool {
	if runtime.GOOS == "windows" {
		return os.Getenv("WT_SESSION") != "" || strings.EqualFold(os.Getenv("ConEmuANSI"), "ON")
	}
	term := strings.ToLower(os.Getenv("TERM"))
	if term == "" {
		return false
	}
	return strings.Contains(term, "xterm") || strings.Contains(term, "screen") || strings.Contains(term, "tmux") || strings.Contains(term, "ansi")
}
