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

// Package telemetry provides opt-in, low-overhead Prometheus metrics
// plus an ANSI-colorized periodic summary for a running session or
// range server. Disabled by default; every public function is a no-op
// until Enable is called.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls telemetry behavior.
type Config struct {
	Enabled bool
	// MetricsAddr, when non-empty, starts a dedicated HTTP server
	// serving /metrics on a background goroutine.
	MetricsAddr string
	// LogInterval drives the periodic summary; 0 disables it.
	LogInterval time.Duration
}

var (
	modEnabled atomic.Bool

	putTotal       = counterVec("hxhim_put_entries_total", "Total PUT entries enqueued, by index")
	getTotal       = counterVec("hxhim_get_entries_total", "Total GET entries enqueued, by index")
	rangeGetTotal  = counterVec("hxhim_rangeget_entries_total", "Total RANGE-GET entries enqueued, by index")
	deleteTotal    = counterVec("hxhim_delete_entries_total", "Total DELETE entries enqueued, by index")
	drainedBatches = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hxhim_drained_batch_entries",
		Help:    "Distribution of entry counts per drained PUT batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	})
	workerBusySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hxhim_rangeserver_worker_busy_seconds",
		Help:    "Time a range server worker spent handling one wire message",
		Buckets: prometheus.DefBuckets,
	})
	sliceCount = gaugeVec("hxhim_partition_slice_count", "Number of slices with recorded statistics, by index")
	queueDepth = gaugeVec("hxhim_client_queue_depth", "Entries currently buffered in a client queue, by operation kind")
)

func counterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"index"})
}

func gaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"index"})
}

func init() {
	prometheus.MustRegister(putTotal, getTotal, rangeGetTotal, deleteTotal,
		drainedBatches, workerBusySeconds, sliceCount, queueDepth)
}

// Enable turns on metrics collection and, if configured, the periodic
// ANSI summary and/or a standalone /metrics HTTP endpoint. Safe to call
// more than once; the most recent call wins.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	startOrUpdateSummaryLoop(cfg)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether telemetry is currently active.
func Enabled() bool { return modEnabled.Load() }

// ObservePut records n PUT entries enqueued against the named index.
func ObservePut(index string, n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	putTotal.WithLabelValues(index).Add(float64(n))
	recordActivity(n, 0, 0, 0)
}

// ObserveGet records n GET entries enqueued against the named index.
func ObserveGet(index string, n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	getTotal.WithLabelValues(index).Add(float64(n))
	recordActivity(0, n, 0, 0)
}

// ObserveRangeGet records n RANGE-GET entries enqueued against the
// named index.
func ObserveRangeGet(index string, n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	rangeGetTotal.WithLabelValues(index).Add(float64(n))
	recordActivity(0, 0, n, 0)
}

// ObserveDelete records n DELETE entries enqueued against the named
// index.
func ObserveDelete(index string, n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	deleteTotal.WithLabelValues(index).Add(float64(n))
	recordActivity(0, 0, 0, n)
}

// ObserveDrainedBatch records the size of one PUT batch the drainer
// just flushed.
func ObserveDrainedBatch(n int) {
	if !modEnabled.Load() || n <= 0 {
		return
	}
	drainedBatches.Observe(float64(n))
}

// ObserveWorkerBusy records how long a range server worker spent on
// one message.
func ObserveWorkerBusy(d time.Duration) {
	if !modEnabled.Load() {
		return
	}
	workerBusySeconds.Observe(d.Seconds())
}

// SetSliceCount publishes the current number of statistics-bearing
// slices for an index.
func SetSliceCount(index string, n int) {
	if !modEnabled.Load() {
		return
	}
	sliceCount.WithLabelValues(index).Set(float64(n))
}

// SetQueueDepth publishes a client queue's current buffered-entry
// count, by operation kind ("put", "get", "rangeget", "delete").
func SetQueueDepth(kind string, n int) {
	if !modEnabled.Load() {
		return
	}
	queueDepth.WithLabelValues(kind).Set(float64(n))
}

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
