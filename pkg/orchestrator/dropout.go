package orchestrator

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// DropoutStrategy enumerates group dropout timing strategies (spec §4.1).
type DropoutStrategy string

// Dropout strategies.
const (
	DropoutImmediate   DropoutStrategy = "immediate"
	DropoutLinear      DropoutStrategy = "linear"
	DropoutExponential DropoutStrategy = "exponential"
	DropoutRandom      DropoutStrategy = "random"
)

// DropoutConfig configures a programmed group failure (spec §4.1).
type DropoutConfig struct {
	Strategy DropoutStrategy

	// Selection: exactly one of Count or Percentage should be set.
	Count      int
	Percentage float64

	DelayMs      int
	MaxDelayMs   int // 0 means uncapped for exponential, unless DurationMs is set
	ExponentBase float64
	DurationMs   int // bound for "random" timing, and exponential's cap when MaxDelayMs is unset

	Reconnect        bool
	ReconnectDelayMs int
}

func (c DropoutConfig) normalized() DropoutConfig {
	if c.ExponentBase <= 0 {
		c.ExponentBase = 1.5
	}
	return c
}

// SelectTargets picks which of running's simulated member ids are dropped,
// per spec §4.1 selection rules: Count (or a Percentage-derived count) of
// running members, ascending by deviceId for deterministic strategies, or
// uniform-without-replacement via rng for the random strategy. running must
// already be filtered to simulated, currently-running members.
func SelectTargets(running []string, cfg DropoutConfig, rng *rand.Rand) []string {
	n := len(running)
	if n == 0 {
		return nil
	}

	want := cfg.Count
	if cfg.Percentage > 0 {
		want = int(math.Floor(cfg.Percentage / 100 * float64(n)))
	}
	if want > n {
		want = n
	}
	if want <= 0 {
		return nil
	}

	if cfg.Strategy == DropoutRandom {
		shuffled := make([]string, n)
		copy(shuffled, running)
		rng.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled[:want]
	}

	ordered := make([]string, n)
	copy(ordered, running)
	sort.Strings(ordered)
	return ordered[:want]
}

// Offsets returns the disconnect-time offset from t=0 for each of the k
// selected targets (already in selection order), per spec §4.1 timing
// rules. For "random" timing the returned offsets are sorted ascending
// (spec: "disconnect times are independently uniformly sampled ... then
// sorted").
func Offsets(k int, cfg DropoutConfig, rng *rand.Rand) []time.Duration {
	cfg = cfg.normalized()
	offsets := make([]time.Duration, k)
	delay := time.Duration(cfg.DelayMs) * time.Millisecond

	switch cfg.Strategy {
	case DropoutLinear:
		for i := range offsets {
			offsets[i] = time.Duration(i) * delay
		}
	case DropoutExponential:
		ceiling := time.Duration(cfg.MaxDelayMs) * time.Millisecond
		if cfg.MaxDelayMs <= 0 && cfg.DurationMs > 0 {
			ceiling = time.Duration(cfg.DurationMs) * time.Millisecond
		}
		for i := range offsets {
			d := float64(delay) * math.Pow(cfg.ExponentBase, float64(i))
			offsets[i] = time.Duration(d)
			if ceiling > 0 && offsets[i] > ceiling {
				offsets[i] = ceiling
			}
		}
	case DropoutRandom:
		duration := time.Duration(cfg.DurationMs) * time.Millisecond
		for i := range offsets {
			offsets[i] = time.Duration(rng.Int63n(int64(duration) + 1))
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	default: // immediate
		// offsets already zero-valued
	}
	return offsets
}
