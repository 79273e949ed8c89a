package mapclient

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/evradar/ev-radar/internal/common"
	"github.com/evradar/ev-radar/internal/locations"
)

// coordPrecision is the number of decimal places used when coalescing
// near-identical queries (3 decimals is roughly 100 m).
const coordPrecision = 3

type detectorState int

const (
	stateMoving detectorState = iota
	stateSettling
	stateSettled
)

// ChangeDetectorConfig tunes the two-stage settle-then-threshold gate.
type ChangeDetectorConfig struct {
	// QuietPeriod the viewport must stay motionless before it counts as
	// settled.
	QuietPeriod time.Duration

	// CoordThresholdDeg is the minimum per-axis center delta (degrees)
	// against the last issued query.
	CoordThresholdDeg float64

	// RadiusThresholdKm is the minimum radius delta against the last issued
	// query.
	RadiusThresholdKm float64
}

// ChangeDetector decides when a stream of viewport-movement events should
// actually issue a new aggregate query. Movement restarts the quiet timer;
// once the timer fires the candidate bounds are compared against the last
// issued query and forwarded only if they moved beyond the thresholds.
type ChangeDetector struct {
	cfg       ChangeDetectorConfig
	onSettled func(locations.MapBounds)

	mu         sync.Mutex
	state      detectorState
	timer      *time.Timer
	gen        uint64
	lastIssued *locations.MapBounds
}

// NewChangeDetector creates a detector that invokes onSettled at most once
// per settled viewport movement.
func NewChangeDetector(cfg ChangeDetectorConfig, onSettled func(locations.MapBounds)) *ChangeDetector {
	return &ChangeDetector{
		cfg:       cfg,
		onSettled: onSettled,
		state:     stateMoving,
	}
}

// Moving records that the viewport is in motion. Any pending quiet timer is
// cancelled; no query can be issued until the viewport goes stationary again.
func (d *ChangeDetector) Moving() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = stateMoving
	d.gen++
	d.stopTimerLocked()
}

// Stationary records that the viewport stopped at the given bounds and
// (re)starts the quiet timer.
func (d *ChangeDetector) Stationary(bounds locations.MapBounds) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = stateSettling
	d.gen++
	gen := d.gen
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.cfg.QuietPeriod, func() {
		d.settle(gen, bounds)
	})
}

// Stop cancels any pending timer. The detector can be reused afterwards.
func (d *ChangeDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.stopTimerLocked()
	d.state = stateMoving
}

func (d *ChangeDetector) settle(gen uint64, bounds locations.MapBounds) {
	d.mu.Lock()
	if d.state != stateSettling || gen != d.gen {
		// Movement resumed before this timer's goroutine got the lock.
		d.mu.Unlock()
		return
	}
	d.state = stateSettled

	if !d.changedLocked(bounds) {
		d.mu.Unlock()
		return
	}
	issued := bounds
	d.lastIssued = &issued
	d.mu.Unlock()

	d.onSettled(bounds)
}

// changedLocked reports whether the candidate moved meaningfully relative to
// the last issued query. The first candidate always counts as changed.
func (d *ChangeDetector) changedLocked(bounds locations.MapBounds) bool {
	if d.lastIssued == nil {
		return true
	}
	return math.Abs(bounds.Lat-d.lastIssued.Lat) > d.cfg.CoordThresholdDeg ||
		math.Abs(bounds.Lng-d.lastIssued.Lng) > d.cfg.CoordThresholdDeg ||
		math.Abs(bounds.RadiusKm-d.lastIssued.RadiusKm) > d.cfg.RadiusThresholdKm
}

func (d *ChangeDetector) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// RadiusForViewport derives the query radius from the viewport geometry:
// half the smaller viewport dimension, converted to km and clamped.
func RadiusForViewport(widthMeters, heightMeters, minKm, maxKm float64) float64 {
	radiusKm := math.Min(widthMeters, heightMeters) / 2 / 1000
	return common.Clamp(radiusKm, minKm, maxKm)
}

// CoalesceKey collapses near-identical queries onto one cache key by rounding
// coordinates to a fixed precision and the radius to whole km.
func CoalesceKey(bounds locations.MapBounds) string {
	return fmt.Sprintf("%.*f:%.*f:%g",
		coordPrecision, common.RoundTo(bounds.Lat, coordPrecision),
		coordPrecision, common.RoundTo(bounds.Lng, coordPrecision),
		math.Round(bounds.RadiusKm))
}
