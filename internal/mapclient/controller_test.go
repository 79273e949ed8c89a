package mapclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/problem"
)

func testControllerConfig() ControllerConfig {
	return ControllerConfig{
		Detector: ChangeDetectorConfig{
			QuietPeriod:       10 * time.Millisecond,
			CoordThresholdDeg: 0.001,
			RadiusThresholdKm: 1,
		},
		CacheMaxSize:      500,
		CleanupDistanceKm: 100,
		MinRadiusKm:       1,
		MaxRadiusKm:       50,
		StaleAfter:        5 * time.Minute,
	}
}

// locationsServer serves pages keyed by nothing in particular; the pageFor
// callback picks the payload from the request.
func locationsServer(t *testing.T, hits *atomic.Int64, pageFor func(r *http.Request) locations.Response) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(pageFor(r)))
	}))
}

func fixedPage(locs ...locations.Location) func(*http.Request) locations.Response {
	return func(*http.Request) locations.Response {
		return locations.Response{
			Data: locs,
			Meta: locations.Meta{Count: len(locs)},
		}
	}
}

func awaitUpdate(t *testing.T, updates <-chan Update) Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func assertNoUpdate(t *testing.T, updates <-chan Update) {
	t.Helper()
	select {
	case u := <-updates:
		t.Fatalf("unexpected update: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestControllerCoalescesNearIdenticalQueries(t *testing.T) {
	var hits atomic.Int64
	srv := locationsServer(t, &hits, fixedPage(locations.Location{ID: "a"}))
	defer srv.Close()

	updates := make(chan Update, 8)
	ct := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(u Update) {
		updates <- u
	})
	defer ct.Stop()

	ct.dispatch(locations.MapBounds{Lat: 50.80012, Lng: -1.10021, RadiusKm: 10})
	first := awaitUpdate(t, updates)
	require.NoError(t, first.Err)
	assert.Len(t, first.Locations, 1)

	// Imperceptibly different coordinates hit the coalesce cache, not the
	// network.
	ct.dispatch(locations.MapBounds{Lat: 50.80034, Lng: -1.10049, RadiusKm: 10})
	second := awaitUpdate(t, updates)
	require.NoError(t, second.Err)
	assert.Len(t, second.Locations, 1)

	assert.Equal(t, int64(1), hits.Load())
}

func TestControllerMergesPagesAcrossQueries(t *testing.T) {
	var hits atomic.Int64
	srv := locationsServer(t, &hits, func(r *http.Request) locations.Response {
		// Different centers return different stations.
		if r.URL.Query().Get("lat") == "50.8" {
			return locations.Response{Data: []locations.Location{
				{ID: "a", Latitude: 50.8, Longitude: -1.1},
				{ID: "b", Latitude: 50.81, Longitude: -1.1},
			}}
		}
		return locations.Response{Data: []locations.Location{
			{ID: "b", Latitude: 50.81, Longitude: -1.1},
			{ID: "c", Latitude: 50.82, Longitude: -1.1},
		}}
	})
	defer srv.Close()

	updates := make(chan Update, 8)
	ct := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(u Update) {
		updates <- u
	})
	defer ct.Stop()

	ct.dispatch(locations.MapBounds{Lat: 50.8, Lng: -1.1, RadiusKm: 10})
	awaitUpdate(t, updates)

	ct.dispatch(locations.MapBounds{Lat: 50.82, Lng: -1.1, RadiusKm: 10})
	merged := awaitUpdate(t, updates)

	// Overlapping pages deduplicate by id; previously seen stations remain.
	ids := make(map[string]bool)
	for _, loc := range merged.Locations {
		ids[loc.ID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)
	assert.Equal(t, int64(2), hits.Load())
}

func TestControllerDiscardsSupersededResponses(t *testing.T) {
	var hits atomic.Int64
	srv := locationsServer(t, &hits, fixedPage(locations.Location{ID: "stale"}))
	defer srv.Close()

	updates := make(chan Update, 8)
	ct := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(u Update) {
		updates <- u
	})
	defer ct.Stop()

	// Simulate an in-flight query that a newer one has overtaken.
	ct.mu.Lock()
	ct.seq = 7
	ct.mu.Unlock()

	bounds := locations.MapBounds{Lat: 50.8, Lng: -1.1, RadiusKm: 10}
	ct.fetch(6, CoalesceKey(bounds), bounds)
	assertNoUpdate(t, updates)
	assert.Equal(t, 0, ct.Cache().Len())

	// The latest sequence still applies.
	ct.fetch(7, CoalesceKey(bounds), bounds)
	u := awaitUpdate(t, updates)
	require.NoError(t, u.Err)
	assert.Len(t, u.Locations, 1)
}

func TestControllerDeliversErrorWithCachedSnapshot(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(problem.New(http.StatusBadGateway, problem.SlugUpstreamError,
				"Upstream Service Error", "directory is down").Details("/api/locations"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(locations.Response{Data: []locations.Location{{ID: "a"}}})
	}))
	defer srv.Close()

	updates := make(chan Update, 8)
	ct := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(u Update) {
		updates <- u
	})
	defer ct.Stop()

	ct.dispatch(locations.MapBounds{Lat: 50.8, Lng: -1.1, RadiusKm: 10})
	ok := awaitUpdate(t, updates)
	require.NoError(t, ok.Err)

	failing.Store(true)
	ct.dispatch(locations.MapBounds{Lat: 51.8, Lng: -1.1, RadiusKm: 10})
	failed := awaitUpdate(t, updates)

	require.Error(t, failed.Err)
	var perr *problem.Error
	require.ErrorAs(t, failed.Err, &perr)
	assert.Equal(t, problem.SlugUpstreamError, perr.Slug)
	// Previously cached stations stay visible behind the error banner.
	assert.Len(t, failed.Locations, 1)
}

func TestControllerRadiusFor(t *testing.T) {
	ct := NewController(NewClient(http.DefaultClient, "http://localhost:3001"), testControllerConfig(), func(Update) {})
	assert.Equal(t, 5.0, ct.RadiusFor(10000, 30000))
	assert.Equal(t, 1.0, ct.RadiusFor(100, 100))
	assert.Equal(t, 50.0, ct.RadiusFor(500000, 500000))
}

func TestControllerLifecycle(t *testing.T) {
	var hits atomic.Int64
	srv := locationsServer(t, &hits, fixedPage())
	defer srv.Close()

	ct := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(Update) {})

	require.NoError(t, ct.Start())
	ct.Stop()

	// A second instance is fully independent: fresh cache, fresh sequence.
	ct2 := NewController(NewClient(srv.Client(), srv.URL), testControllerConfig(), func(Update) {})
	assert.Equal(t, 0, ct2.Cache().Len())
	require.NoError(t, ct2.Start())
	ct2.Stop()
}
