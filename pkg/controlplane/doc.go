// Package controlplane exposes the Device Manager (pkg/engine, wrapping
// pkg/catalog) as the REST façade spec §6 describes: models, devices,
// groups, proxy bindings, webhooks, engine stats and health. Grounded on
// the teacher's pkg/engine/api: a narrow EngineController interface in
// front of the real engine, Go 1.22 method+pattern ServeMux routes, and
// small writeJSON/writeError helpers around pkg/httputil.
package controlplane
