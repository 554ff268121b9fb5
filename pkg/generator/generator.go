// Package generator implements the telemetry value generators a Virtual
// Device seeds one-per-attribute from its model's GeneratorSpec
// (SPEC_FULL.md §4.4).
package generator

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/crtx-sg/iotix/pkg/model"
)

// Generator produces successive telemetry values for one device attribute.
// Implementations are not safe for concurrent use; each Virtual Device
// attribute task owns exactly one.
type Generator interface {
	Next() (interface{}, error)
}

// New builds the Generator for a telemetry attribute's spec, seeding any
// randomness deterministically from the owning device id and attribute
// name so a given (deviceId, attribute) pair always produces the same
// value sequence across process restarts (spec §4.4).
func New(deviceID string, attr *model.TelemetryAttributeSpec) (Generator, error) {
	seed := seedFor(deviceID, attr.Name)
	spec := attr.Generator
	switch spec.Variant {
	case model.GeneratorRandom:
		return newRandomGenerator(spec, attr.DataType, seed)
	case model.GeneratorSequence:
		return newSequenceGenerator(spec), nil
	case model.GeneratorConstant:
		return &constantGenerator{value: spec.Value}, nil
	case model.GeneratorReplay:
		return newReplayGenerator(spec)
	case model.GeneratorCustom:
		return newCustomGenerator(spec)
	default:
		return nil, fmt.Errorf("generator: unsupported variant %q", spec.Variant)
	}
}

// seedFor derives a stable per-(device, attribute) seed, mirroring the
// teacher's deterministic hashing idiom (internal/id uses a similar
// fold-to-int strategy for its ULID counter) generalized here to FNV-1a
// over the two identifying strings.
func seedFor(deviceID, attrName string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(attrName))
	return int64(h.Sum64())
}

func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

type constantGenerator struct {
	value interface{}
}

func (g *constantGenerator) Next() (interface{}, error) {
	return g.value, nil
}
