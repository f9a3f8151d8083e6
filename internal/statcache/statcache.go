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

// Package statcache is an optional bootstrap cache for a range server's
// slice statistics (spec §4.2 "StatFlush"). It is not a transport: a
// range server that restarts can seed its Partitioner's min/max/count
// table from the last published generation instead of rescanning its
// whole store, and StatFlush publishes idempotently so a retried flush
// after a dropped ack never double-applies.
package statcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Evaler abstracts the minimal surface needed from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9's Cmdable.Eval
// or any equivalent scripting-capable client.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// HGetAller abstracts the minimal surface needed to read back a
// published snapshot.
type HGetAller interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Client composes the read/write surfaces Cache needs.
type Client interface {
	Evaler
	HGetAller
}

// SliceStat is the publishable form of one slice's statistics.
type SliceStat struct {
	SliceKey string
	Min, Max []byte
	Count    uint64
}

// Cache publishes and bootstraps slice statistics idempotently via a
// SETNX-guarded Lua script, following a SETNX commit-marker pattern
// but applied to a
// replace-on-first-publish field set (HSET) rather than an
// accumulating counter (HINCRBY) — each generation of a slice's stats
// supersedes the last rather than summing with it.
type Cache struct {
	client    Client
	markerTTL time.Duration
}

// New returns a Cache. markerTTL bounds how long a generation's
// idempotency marker survives; it should comfortably exceed the
// longest plausible retry window for one StatFlush call.
func New(client Client, markerTTL time.Duration) *Cache {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &Cache{client: client, markerTTL: markerTTL}
}

func statsKey(sliceKey string) string { return fmt.Sprintf("hxhim:stats:%s", sliceKey) }
func markerKey(sliceKey, generation string) string {
	return fmt.Sprintf("hxhim:statflush:%s:%s", sliceKey, generation)
}

// publishScript applies a slice's stats once per generation. Returns 1
// if applied, 0 if this generation was already published.
const publishScript = `
local statsKey = KEYS[1]
local markerKey = KEYS[2]
local minVal = ARGV[1]
local maxVal = ARGV[2]
local count = ARGV[3]
local ttlSeconds = tonumber(ARGV[4])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HSET', statsKey, 'min', minVal, 'max', maxVal, 'count', count)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// Publish idempotently records stat's values under generation. A
// retried call with the same generation after a dropped ack is a
// no-op, matching spec §4.2's requirement that StatFlush be safe to
// retry.
func (c *Cache) Publish(ctx context.Context, generation string, stat SliceStat) error {
	if generation == "" {
		return errors.New("statcache: generation must be set")
	}
	keys := []string{statsKey(stat.SliceKey), markerKey(stat.SliceKey, generation)}
	args := []interface{}{string(stat.Min), string(stat.Max), stat.Count, int(c.markerTTL.Seconds())}
	if _, err := c.client.Eval(ctx, publishScript, keys, args...); err != nil {
		return fmt.Errorf("statcache: publish slice=%s generation=%s: %w", stat.SliceKey, generation, err)
	}
	return nil
}

// Bootstrap reads back the last published stats for sliceKey, for a
// restarting range server to seed its Partitioner with instead of
// rescanning its store from scratch. ok is false if nothing has ever
// been published for this slice.
func (c *Cache) Bootstrap(ctx context.Context, sliceKey string) (stat SliceStat, ok bool, err error) {
	fields, err := c.client.HGetAll(ctx, statsKey(sliceKey))
	if err != nil {
		return SliceStat{}, false, fmt.Errorf("statcache: bootstrap slice=%s: %w", sliceKey, err)
	}
	if len(fields) == 0 {
		return SliceStat{}, false, nil
	}
	var count uint64
	if _, err := fmt.Sscanf(fields["count"], "%d", &count); err != nil {
		return SliceStat{}, false, fmt.Errorf("statcache: malformed count for slice=%s: %w", sliceKey, err)
	}
	return SliceStat{
		SliceKey: sliceKey,
		Min:      []byte(fields["min"]),
		Max:      []byte(fields["max"]),
		Count:    count,
	}, true, nil
}
