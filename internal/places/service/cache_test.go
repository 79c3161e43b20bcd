package service

import (
	"testing"
	"time"

	"photobridge_backend/internal/graph"
)

func TestProximityCache_NearestPicksClosestEntry(t *testing.T) {
	cache := NewProximityCache(16, time.Hour)
	cache.Add(Coordinates{Latitude: 0, Longitude: 0}, []graph.Place{{ID: "origin"}})
	cache.Add(Coordinates{Latitude: 0.01, Longitude: 0}, []graph.Place{{ID: "north"}})

	places, dist, found := cache.Nearest(Coordinates{Latitude: 0.001, Longitude: 0})
	if !found {
		t.Fatal("expected a nearest entry")
	}
	if len(places) != 1 || places[0].ID != "origin" {
		t.Fatalf("expected the origin entry, got %+v", places)
	}
	if dist < 100 || dist > 125 {
		t.Fatalf("expected roughly 111 m, got %f", dist)
	}
}

func TestProximityCache_EvictsOldestWhenFull(t *testing.T) {
	cache := NewProximityCache(2, time.Hour)
	cache.Add(Coordinates{Latitude: 1, Longitude: 0}, []graph.Place{{ID: "first"}})
	cache.Add(Coordinates{Latitude: 2, Longitude: 0}, []graph.Place{{ID: "second"}})
	cache.Add(Coordinates{Latitude: 3, Longitude: 0}, []graph.Place{{ID: "third"}})

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", cache.Len())
	}

	places, dist, found := cache.Nearest(Coordinates{Latitude: 1, Longitude: 0})
	if !found {
		t.Fatal("expected surviving entries")
	}
	if places[0].ID != "second" {
		t.Fatalf("expected the oldest entry to be evicted, nearest is %q", places[0].ID)
	}
	if dist < 100000 {
		t.Fatalf("expected the evicted coordinate to no longer match closely, dist %f", dist)
	}
}

func TestProximityCache_TTLExpiresEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewProximityCache(16, 12*time.Hour)
	cache.now = func() time.Time { return base }

	cache.Add(Coordinates{Latitude: 1, Longitude: 1}, []graph.Place{{ID: "stale"}})

	cache.now = func() time.Time { return base.Add(11 * time.Hour) }
	if _, _, found := cache.Nearest(Coordinates{Latitude: 1, Longitude: 1}); !found {
		t.Fatal("entry expired too early")
	}

	cache.now = func() time.Time { return base.Add(13 * time.Hour) }
	if _, _, found := cache.Nearest(Coordinates{Latitude: 1, Longitude: 1}); found {
		t.Fatal("expected the entry to expire after the TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entries to be dropped, got %d", cache.Len())
	}
}

func TestProximityCache_ZeroLimitsDisableEviction(t *testing.T) {
	cache := NewProximityCache(0, 0)
	for i := 0; i < 500; i++ {
		cache.Add(Coordinates{Latitude: float64(i), Longitude: 0}, nil)
	}
	if cache.Len() != 500 {
		t.Fatalf("expected unbounded cache to keep all entries, got %d", cache.Len())
	}
}
