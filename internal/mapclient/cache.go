package mapclient

import (
	"math"
	"sync"

	"github.com/evradar/ev-radar/internal/locations"
)

const earthRadiusKm = 6371.0

// ResultCache keeps every location seen so far, keyed by id, so entities stay
// visible as the viewport pans without a full refetch. Memory is bounded by
// geographic relevance, not recency: once the cache exceeds its size ceiling,
// entries farther than the cleanup distance from the current viewport center
// are dropped in a single pass.
type ResultCache struct {
	mu sync.RWMutex

	entries map[string]locations.Location

	maxSize           int
	cleanupDistanceKm float64
}

// NewResultCache creates a cache with the given size ceiling and cleanup
// distance.
func NewResultCache(maxSize int, cleanupDistanceKm float64) *ResultCache {
	return &ResultCache{
		entries:           make(map[string]locations.Location),
		maxSize:           maxSize,
		cleanupDistanceKm: cleanupDistanceKm,
	}
}

// Absorb upserts every entry of the new page by id (last write wins), then
// evicts far-away entries if the ceiling is exceeded and a viewport center is
// known. Without a center the cache may grow unbounded; that matches
// initial-load behavior before the first settled viewport.
func (c *ResultCache) Absorb(page []locations.Location, center *locations.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, loc := range page {
		c.entries[loc.ID] = loc
	}

	if center == nil || len(c.entries) <= c.maxSize {
		return
	}

	for id, loc := range c.entries {
		if haversineKm(center.Lat, center.Lng, loc.Latitude, loc.Longitude) > c.cleanupDistanceKm {
			delete(c.entries, id)
		}
	}
}

// Snapshot returns all currently cached entries. The result always reflects a
// fully-applied Absorb, never a partial one.
func (c *ResultCache) Snapshot() []locations.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]locations.Location, 0, len(c.entries))
	for _, loc := range c.entries {
		result = append(result, loc)
	}
	return result
}

// Len reports the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset empties the cache.
func (c *ResultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]locations.Location)
}

// haversineKm is the great-circle distance between two WGS84 points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
