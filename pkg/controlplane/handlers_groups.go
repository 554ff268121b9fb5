package controlplane

import (
	"net/http"

	"github.com/crtx-sg/iotix/pkg/orchestrator"
)

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var req createGroupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	group, err := s.engine.CreateGroup(req.ModelID, req.GroupID, req.IDPattern, req.Count)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.engine.GetGroup(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleStartGroup(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var req launchGroupRequest
	if err := decodeOptionalJSONBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	cfg := orchestrator.LaunchConfig{
		Strategy:     orchestrator.LaunchStrategy(req.Strategy),
		DelayMs:      req.DelayMs,
		BatchSize:    req.BatchSize,
		MaxDelayMs:   req.MaxDelayMs,
		ExponentBase: req.ExponentBase,
	}

	result, err := s.engine.StartGroup(r.PathValue("id"), cfg)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupLaunchResponse{
		AcceptedCount:       result.AcceptedCount,
		EstimatedDurationMs: result.EstimatedDurationMs,
	})
}

func (s *Server) handleStopGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopGroup(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteGroup(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDropoutGroup(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var req dropoutGroupRequest
	if err := decodeOptionalJSONBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	cfg := orchestrator.DropoutConfig{
		Strategy:         orchestrator.DropoutStrategy(req.Strategy),
		Count:            req.Count,
		Percentage:       req.Percentage,
		DelayMs:          req.DelayMs,
		MaxDelayMs:       req.MaxDelayMs,
		ExponentBase:     req.ExponentBase,
		DurationMs:       req.DurationMs,
		Reconnect:        req.Reconnect,
		ReconnectDelayMs: req.ReconnectDelayMs,
	}

	result, err := s.engine.DropoutGroup(r.PathValue("id"), cfg)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupDropoutResponse{
		AffectedCount:       result.AffectedCount,
		EstimatedDurationMs: result.EstimatedDurationMs,
	})
}
