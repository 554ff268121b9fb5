package generator

import (
	"fmt"
	"sync"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// HandlerFunc computes a custom generator's next value given its tick
// count and static config. Registered handlers are process-global,
// matching the teacher's named-plugin registries (e.g. pkg/stateful's
// step-kind dispatch).
type HandlerFunc func(tick int64, cfg map[string]interface{}) (interface{}, error)

var (
	handlersMu sync.RWMutex
	handlers   = map[string]HandlerFunc{}
)

// RegisterHandler adds a named custom generator handler to the process-wide
// registry, for use by a generator spec's "handler" field.
func RegisterHandler(name string, fn HandlerFunc) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[name] = fn
}

func lookupHandler(name string) (HandlerFunc, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	fn, ok := handlers[name]
	return fn, ok
}

// customGenerator evaluates either a registered Go handler or a compiled
// expr-lang formula against a small environment (tick, elapsedSeconds,
// config) on every call.
type customGenerator struct {
	handler HandlerFunc
	cfg     map[string]interface{}

	program *vm.Program
	start   time.Time
	tick    int64
}

func newCustomGenerator(spec model.GeneratorSpec) (*customGenerator, error) {
	g := &customGenerator{cfg: spec.Config, start: time.Now()}

	if spec.Handler != "" {
		fn, ok := lookupHandler(spec.Handler)
		if !ok {
			return nil, fmt.Errorf("custom generator: unregistered handler %q", spec.Handler)
		}
		g.handler = fn
		return g, nil
	}

	env := customFormulaEnv(0, 0, spec.Config)
	program, err := expr.Compile(spec.Formula, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("custom generator: compile formula: %w", err)
	}
	g.program = program
	return g, nil
}

func (g *customGenerator) Next() (interface{}, error) {
	defer func() { g.tick++ }()

	if g.handler != nil {
		return g.handler(g.tick, g.cfg)
	}

	env := customFormulaEnv(g.tick, time.Since(g.start).Seconds(), g.cfg)
	return expr.Run(g.program, env)
}

func customFormulaEnv(tick int64, elapsedSeconds float64, cfg map[string]interface{}) map[string]interface{} {
	env := map[string]interface{}{
		"tick":           tick,
		"elapsedSeconds": elapsedSeconds,
		"config":         cfg,
	}
	for k, v := range cfg {
		if _, exists := env[k]; !exists {
			env[k] = v
		}
	}
	return env
}
