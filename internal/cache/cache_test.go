// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.(string) != "v" {
		t.Errorf("expected v, got %v", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}

	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("short", 42, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expected expired entry to miss")
	}
}

// An entry refreshed between an expired read snapshot and the eviction
// write lock must survive the eviction.
func TestEvictIfExpiredKeepsRefreshedEntry(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("k", "stale", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	// Simulate the race: a concurrent Set refreshes the key after a
	// reader saw the stale snapshot but before it could evict.
	c.Set("k", "fresh")
	c.evictIfExpired("k")

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("refreshed entry was evicted as stale")
	}
	if got.(string) != "fresh" {
		t.Errorf("expected fresh value, got %v", got)
	}
}

func TestEvictIfExpiredRemovesStaleEntry(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("k", "stale", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	c.evictIfExpired("k")

	c.mu.RLock()
	_, exists := c.entries["k"]
	c.mu.RUnlock()
	if exists {
		t.Error("expected stale entry to be removed")
	}
	if stats := c.GetStats(); stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be deleted")
	}

	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be cleared")
	}
	if stats := c.GetStats(); stats.TotalKeys != 0 {
		t.Errorf("expected 0 keys after clear, got %d", stats.TotalKeys)
	}
}

func TestDisabledNeverCaches(t *testing.T) {
	var d Disabled

	d.Set("k", "v")
	if _, ok := d.Get("k"); ok {
		t.Error("disabled cache must never hit")
	}
}
