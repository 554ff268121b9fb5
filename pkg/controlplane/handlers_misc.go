package controlplane

import "net/http"

// Version is set at build time via -ldflags, the same pattern the teacher
// uses for its own CLI version string; "dev" when built without it.
var Version = "dev"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: Version})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.GetStats()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalModels:       stats.TotalModels,
		TotalDevices:      stats.TotalDevices,
		RunningDevices:    stats.RunningDevices,
		RunningSimulated:  stats.RunningSimulated,
		RunningPhysical:   stats.RunningPhysical,
		TotalProxyDevices: stats.TotalProxyDevices,
		TotalGroups:       stats.TotalGroups,
		TotalMessagesSent: stats.TotalMessagesSent,
		TotalBytesSent:    stats.TotalBytesSent,
		UptimeSeconds:     stats.UptimeSeconds,
	})
}
