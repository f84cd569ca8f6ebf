package client

import "sync/atomic"

// AdaptiveWindowTicks is how often the Adaptive Jitter Controller
// re-evaluates its window (spec.md §4.10).
const AdaptiveWindowTicks = 200

const (
	underrunRateHigh = 0.05
	missRateHigh     = 0.60
	underrunRateLow  = 0.01
	missRateLow      = 0.15

	minTargetFill = 8
	maxTargetFill = 14
)

// AdaptiveController implements spec.md §4.10: every 200 mixer ticks it
// inspects per-window deltas of underrun_rate and miss_rate and nudges the
// shared jitter target up or down. Grounded on spec.md §9's own
// instruction ("kept as simple deltas between successive windows; no ring
// buffer needed") — there is no teacher equivalent, as
// voice-client/internal/client/network_stats.go tracks jitter/loss purely
// for display, not for feedback into buffering.
type AdaptiveController struct {
	table *StreamTable

	mixedFrames uint64
	mixedMiss   uint64
	callbacks   atomic.Uint64
	underruns   atomic.Uint64

	windowMixedFrames uint64
	windowMixedMiss   uint64
	windowCallbacks   uint64
	windowUnderruns   uint64
}

// NewAdaptiveController creates a controller that adjusts table's dynamic
// jitter target.
func NewAdaptiveController(table *StreamTable) *AdaptiveController {
	return &AdaptiveController{table: table}
}

// RecordCallback registers one PlaybackSink device callback.
func (c *AdaptiveController) RecordCallback() {
	c.callbacks.Add(1)
}

// RecordUnderrun registers one PlaybackSink underrun event.
func (c *AdaptiveController) RecordUnderrun() {
	c.underruns.Add(1)
}

// RecordTick registers one mixer tick and whether it detected a mixed
// miss, evaluating the adaptive window every AdaptiveWindowTicks calls.
// Only the Mixer goroutine calls this, so mixedFrames/mixedMiss need no
// synchronization.
func (c *AdaptiveController) RecordTick(missed bool) {
	c.mixedFrames++
	if missed {
		c.mixedMiss++
	}
	if c.mixedFrames%AdaptiveWindowTicks == 0 {
		c.evaluateWindow()
	}
}

func (c *AdaptiveController) evaluateWindow() {
	callbacks := c.callbacks.Load()
	underruns := c.underruns.Load()

	deltaMixed := c.mixedFrames - c.windowMixedFrames
	deltaMiss := c.mixedMiss - c.windowMixedMiss
	deltaCallbacks := callbacks - c.windowCallbacks
	deltaUnderruns := underruns - c.windowUnderruns

	c.windowMixedFrames = c.mixedFrames
	c.windowMixedMiss = c.mixedMiss
	c.windowCallbacks = callbacks
	c.windowUnderruns = underruns

	var underrunRate, missRate float64
	if deltaCallbacks > 0 {
		underrunRate = float64(deltaUnderruns) / float64(deltaCallbacks)
	}
	if deltaMixed > 0 {
		missRate = float64(deltaMiss) / float64(deltaMixed)
	}

	current := c.table.TargetFill()
	next := current
	switch {
	case underrunRate > underrunRateHigh || missRate > missRateHigh:
		next = current + 1
		if next > maxTargetFill {
			next = maxTargetFill
		}
	case underrunRate < underrunRateLow && missRate < missRateLow:
		next = current - 1
		if next < minTargetFill {
			next = minTargetFill
		}
	}
	if next != current {
		c.table.SetTargetFill(next)
	}
}
