// Package engine wires the Device Manager (pkg/catalog), the Metrics Sink
// (pkg/sink), and process-level configuration into the single long-lived
// object a host binary starts and stops (SPEC_FULL.md §4.1). It plays the
// role the teacher's pkg/engine.Server plays for mockd: a functional-options
// constructor in front of everything pkg/controlplane needs to drive.
package engine
