package mapclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evradar/ev-radar/internal/locations"
)

func TestHaversineKnownDistance(t *testing.T) {
	// London to Paris is roughly 344 km.
	d := haversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, 344, d, 5)

	assert.Equal(t, 0.0, haversineKm(50.8, -1.1, 50.8, -1.1))
}

func TestAbsorbUpsertsLastWriteWins(t *testing.T) {
	cache := NewResultCache(500, 100)

	cache.Absorb([]locations.Location{{ID: "a", Name: "first"}}, nil)
	cache.Absorb([]locations.Location{{ID: "a", Name: "second"}}, nil)

	snapshot := cache.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "second", snapshot[0].Name)
}

func TestAbsorbEvictsOnlyFarEntriesPastCeiling(t *testing.T) {
	cache := NewResultCache(500, 100)
	center := &locations.Coordinates{Lat: 50, Lng: 0}

	// 500 entries within ~50 km of the center.
	page := make([]locations.Location, 0, 501)
	for i := 0; i < 500; i++ {
		page = append(page, locations.Location{
			ID:        fmt.Sprintf("near-%d", i),
			Latitude:  50 + float64(i)*0.0005, // up to ~28 km north
			Longitude: 0,
		})
	}
	// One entry ~150 km away.
	page = append(page, locations.Location{ID: "far", Latitude: 51.35, Longitude: 0})

	cache.Absorb(page, center)

	assert.Equal(t, 500, cache.Len())
	for _, loc := range cache.Snapshot() {
		assert.NotEqual(t, "far", loc.ID)
	}
}

func TestAbsorbWithoutCenterNeverEvicts(t *testing.T) {
	cache := NewResultCache(10, 100)

	page := make([]locations.Location, 0, 50)
	for i := 0; i < 50; i++ {
		page = append(page, locations.Location{
			ID:       fmt.Sprintf("p-%d", i),
			Latitude: float64(i), // wildly spread out
		})
	}
	cache.Absorb(page, nil)

	// Unbounded growth is acceptable until a viewport center is known.
	assert.Equal(t, 50, cache.Len())
}

func TestAbsorbUnderCeilingKeepsFarEntries(t *testing.T) {
	cache := NewResultCache(500, 100)
	center := &locations.Coordinates{Lat: 50, Lng: 0}

	cache.Absorb([]locations.Location{
		{ID: "near", Latitude: 50.01, Longitude: 0},
		{ID: "far", Latitude: 55, Longitude: 0},
	}, center)

	// Ceiling not exceeded: geography alone does not evict.
	assert.Equal(t, 2, cache.Len())
}

func TestResetEmptiesCache(t *testing.T) {
	cache := NewResultCache(500, 100)
	cache.Absorb([]locations.Location{{ID: "a"}, {ID: "b"}}, nil)
	require.Equal(t, 2, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, cache.Snapshot())
}
