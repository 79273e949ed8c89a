package mapclient

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/evradar/ev-radar/internal/locations"
)

// ControllerConfig tunes the query controller and the components it owns.
type ControllerConfig struct {
	Detector ChangeDetectorConfig

	CacheMaxSize      int
	CleanupDistanceKm float64

	MinRadiusKm float64
	MaxRadiusKm float64

	// StaleAfter is how long a coalesced query result stays fresh; it is also
	// the interval of the background refresh job.
	StaleAfter time.Duration
}

// Update is delivered to the UI after every applied response: the full
// deduplicated, geographically-pruned location set plus the latest weather
// snapshot, or the error of a failed query.
type Update struct {
	Locations []locations.Location
	Weather   *locations.Weather
	Err       error
}

type freshEntry struct {
	resp *locations.Response
	at   time.Time
}

// Controller is the root client-side object: it owns the result cache and the
// change detector, coalesces near-identical queries, discards out-of-order
// responses via sequence numbers, and periodically refreshes the last settled
// query. One instance per application; lifecycle is explicit via Start/Stop.
type Controller struct {
	api      *Client
	cache    *ResultCache
	detector *ChangeDetector
	sched    *gocron.Scheduler
	onUpdate func(Update)

	staleAfter  time.Duration
	minRadiusKm float64
	maxRadiusKm float64

	mu        sync.Mutex
	seq       uint64
	lastQuery *locations.MapBounds
	fresh     map[string]freshEntry
}

// NewController creates a controller delivering updates through onUpdate.
// The callback runs on whatever goroutine completed the query; the UI's
// event loop is expected to marshal it.
func NewController(api *Client, cfg ControllerConfig, onUpdate func(Update)) *Controller {
	ct := &Controller{
		api:         api,
		cache:       NewResultCache(cfg.CacheMaxSize, cfg.CleanupDistanceKm),
		sched:       gocron.NewScheduler(time.UTC),
		onUpdate:    onUpdate,
		staleAfter:  cfg.StaleAfter,
		minRadiusKm: cfg.MinRadiusKm,
		maxRadiusKm: cfg.MaxRadiusKm,
		fresh:       make(map[string]freshEntry),
	}
	ct.detector = NewChangeDetector(cfg.Detector, ct.dispatch)
	return ct
}

// Detector exposes the owned change detector so the map widget can feed it
// movement events.
func (ct *Controller) Detector() *ChangeDetector {
	return ct.detector
}

// Cache exposes the owned result cache, mainly for snapshot reads.
func (ct *Controller) Cache() *ResultCache {
	return ct.cache
}

// RadiusFor derives the query radius from the current viewport dimensions,
// clamped to the configured range.
func (ct *Controller) RadiusFor(widthMeters, heightMeters float64) float64 {
	return RadiusForViewport(widthMeters, heightMeters, ct.minRadiusKm, ct.maxRadiusKm)
}

// Start launches the background refresh job that re-issues the last settled
// query once its freshness window lapses.
func (ct *Controller) Start() error {
	if ct.staleAfter <= 0 {
		return nil
	}

	_, err := ct.sched.Every(ct.staleAfter).Do(func() {
		ct.mu.Lock()
		if ct.lastQuery == nil {
			ct.mu.Unlock()
			return
		}
		bounds := *ct.lastQuery
		ct.seq++
		seq := ct.seq
		ct.mu.Unlock()

		log.Debug().Float64("lat", bounds.Lat).Float64("lng", bounds.Lng).Msg("refreshing stale query")
		ct.fetch(seq, CoalesceKey(bounds), bounds)
	})
	if err != nil {
		return err
	}

	ct.sched.StartAsync()
	return nil
}

// Stop halts the refresh job and the change detector. In-flight queries run
// to completion but their responses are discarded.
func (ct *Controller) Stop() {
	ct.sched.Stop()
	ct.detector.Stop()

	ct.mu.Lock()
	ct.seq++ // invalidate anything still in flight
	ct.mu.Unlock()
}

// dispatch handles one settled viewport movement: serve from the coalesce
// cache when fresh, otherwise issue a sequence-tagged query.
func (ct *Controller) dispatch(bounds locations.MapBounds) {
	key := CoalesceKey(bounds)

	ct.mu.Lock()
	b := bounds
	ct.lastQuery = &b

	if entry, ok := ct.fresh[key]; ok && time.Since(entry.at) < ct.staleAfter {
		ct.mu.Unlock()
		ct.apply(entry.resp, bounds)
		return
	}

	ct.seq++
	seq := ct.seq
	ct.mu.Unlock()

	go ct.fetch(seq, key, bounds)
}

// fetch performs the network query and applies the response unless a newer
// query was issued meanwhile. Superseded queries are not cancelled; their
// late responses are simply dropped.
func (ct *Controller) fetch(seq uint64, key string, bounds locations.MapBounds) {
	resp, err := ct.api.Locations(context.Background(), bounds)

	ct.mu.Lock()
	if seq != ct.seq {
		ct.mu.Unlock()
		log.Debug().Uint64("seq", seq).Msg("discarding superseded response")
		return
	}
	if err == nil {
		for k, entry := range ct.fresh {
			if time.Since(entry.at) >= ct.staleAfter {
				delete(ct.fresh, k)
			}
		}
		ct.fresh[key] = freshEntry{resp: resp, at: time.Now()}
	}
	ct.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("locations query failed")
		ct.onUpdate(Update{Locations: ct.cache.Snapshot(), Err: err})
		return
	}

	ct.apply(resp, bounds)
}

// apply absorbs the page into the cache and notifies the UI. The weather
// snapshot is replaced wholesale on every applied response.
func (ct *Controller) apply(resp *locations.Response, bounds locations.MapBounds) {
	center := locations.Coordinates{Lat: bounds.Lat, Lng: bounds.Lng}
	ct.cache.Absorb(resp.Data, &center)
	ct.onUpdate(Update{Locations: ct.cache.Snapshot(), Weather: resp.Weather})
}
