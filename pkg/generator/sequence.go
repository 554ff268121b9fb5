package generator

import "github.com/crtx-sg/iotix/pkg/model"

// sequenceGenerator walks start, start+step, start+2*step, ... When wrap is
// set it restarts at start the first time the running value crosses back
// over start. Unlike the teacher's SequenceStore it needs no mutex: each
// Generator is owned by exactly one attribute task.
type sequenceGenerator struct {
	current float64
	step    float64
	start   float64
	wrap    bool
	started bool
}

func newSequenceGenerator(spec model.GeneratorSpec) *sequenceGenerator {
	return &sequenceGenerator{
		start: spec.Start,
		step:  spec.Step,
		wrap:  spec.Wrap,
	}
}

func (g *sequenceGenerator) Next() (interface{}, error) {
	if !g.started {
		g.current = g.start
		g.started = true
		return g.current, nil
	}
	g.current += g.step
	if g.wrap && wrapped(g.start, g.step, g.current) {
		g.current = g.start
	}
	return g.current, nil
}

// wrapped reports whether current has crossed back over start, i.e. the
// sign of (current - start) flipped relative to the step's sign. Only
// meaningful once at least one step has been taken.
func wrapped(start, step, current float64) bool {
	if step > 0 {
		return current < start
	}
	return current > start
}
