// Package orchestrator implements the pure scheduling math behind group
// launch and group dropout (SPEC_FULL.md §4.1): given a member count and a
// strategy config, it computes each member's start-time (or disconnect-time)
// offset from t=0. pkg/catalog owns the actual goroutines, cancellation, and
// device lifecycle calls that these offsets drive.
package orchestrator

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// LaunchStrategy enumerates group launch strategies (spec §4.1).
type LaunchStrategy string

// Launch strategies.
const (
	LaunchImmediate   LaunchStrategy = "immediate"
	LaunchLinear      LaunchStrategy = "linear"
	LaunchBatch       LaunchStrategy = "batch"
	LaunchExponential LaunchStrategy = "exponential"
)

// LaunchConfig configures a group launch (spec §4.1).
type LaunchConfig struct {
	Strategy     LaunchStrategy
	DelayMs      int
	BatchSize    int
	MaxDelayMs   int
	ExponentBase float64
}

// normalized fills in the spec's documented defaults for any zero field.
func (c LaunchConfig) normalized() LaunchConfig {
	if c.Strategy == "" {
		c.Strategy = LaunchImmediate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxDelayMs <= 0 {
		c.MaxDelayMs = 60_000
	}
	if c.ExponentBase <= 0 {
		c.ExponentBase = 1.5
	}
	return c
}

// LaunchOffsets returns d(i) for 0 <= i < n, the start-time offset from the
// group-start epoch for member index i once members are ordered ascending
// by deviceId (spec §4.1 tie-break). The caller is responsible for sorting
// member ids ascending before indexing into this slice.
func LaunchOffsets(n int, cfg LaunchConfig) []time.Duration {
	cfg = cfg.normalized()
	offsets := make([]time.Duration, n)
	delay := time.Duration(cfg.DelayMs) * time.Millisecond
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond

	switch cfg.Strategy {
	case LaunchLinear:
		for i := range offsets {
			offsets[i] = time.Duration(i) * delay
		}
	case LaunchBatch:
		b := cfg.BatchSize
		for i := range offsets {
			offsets[i] = time.Duration(i/b) * delay
		}
	case LaunchExponential:
		for i := range offsets {
			d := float64(delay) * math.Pow(cfg.ExponentBase, float64(i))
			if time.Duration(d) > maxDelay {
				offsets[i] = maxDelay
			} else {
				offsets[i] = time.Duration(d)
			}
		}
	default: // immediate
		// offsets already zero-valued
	}
	return offsets
}

// EstimatedDuration returns the launch's total expected wall-clock span,
// the largest offset in the set (spec §4.1: startGroup "returns immediately
// with {acceptedCount, estimatedDurationMs}").
func EstimatedDuration(offsets []time.Duration) time.Duration {
	var max time.Duration
	for _, d := range offsets {
		if d > max {
			max = d
		}
	}
	return max
}

// SortAscending returns ids sorted ascending, the tie-break order launch
// and dropout both use (spec §4.1).
func SortAscending(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

// NewDropoutRNG seeds a PRNG from (groupId, wallClock) for the random
// dropout selection/timing strategies (spec §4.1).
func NewDropoutRNG(groupID string, wallClock time.Time) *rand.Rand {
	h := int64(wallClock.UnixNano())
	for _, c := range groupID {
		h = h*31 + int64(c)
	}
	return rand.New(rand.NewSource(h))
}
