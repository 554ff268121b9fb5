package controlplane

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/crtx-sg/iotix/pkg/catalog"
	"github.com/crtx-sg/iotix/pkg/model"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.DeviceFilter{
		ModelID: q.Get("modelId"),
		GroupID: q.Get("groupId"),
		Status:  model.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	devices := s.engine.ListDevices(filter)
	writeJSON(w, http.StatusOK, listDevicesResponse{Devices: devices, Count: len(devices)})
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var req createDeviceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	dev, err := s.engine.CreateDevice(req.ModelID, req.DeviceID, req.GroupID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.engine.GetDevice(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteDevice(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleStartDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StartDevice(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

func (s *Server) handleStopDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopDevice(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.engine.DeviceMetrics(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := deviceMetricsResponse{
		MessagesSent:       metrics.MessagesSent,
		BytesSent:          metrics.BytesSent,
		ConnectionDuration: metrics.ConnectionDuration.Milliseconds(),
		ConnectionState:    metrics.ConnectionState,
	}
	if metrics.LastTelemetry != nil {
		ns := metrics.LastTelemetry.UnixNano()
		resp.LastTelemetry = &ns
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBindDevice(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	var binding model.BindingConfig
	if err := decodeJSONBody(r, &binding); err != nil {
		writeDecodeError(w, err)
		return
	}

	deviceID := r.PathValue("id")
	if err := s.engine.BindDevice(deviceID, binding); err != nil {
		writeEngineError(w, err)
		return
	}

	resp := bindResponse{Status: "bound"}
	if binding.Protocol == model.ProtocolHTTP {
		resp.WebhookURL = "/api/v1/webhooks/" + deviceID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnbindDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnbindDevice(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	binding, err := s.engine.GetBinding(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, binding)
}

// handleWebhook ingests an externally delivered HTTP proxy payload (spec
// §6: "400 if not JSON object"). The body must decode as a JSON object;
// arrays, scalars, and malformed JSON are all rejected the same way.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	limitedBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil || probe == nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "webhook body must be a JSON object")
		return
	}

	if err := s.engine.IngestWebhook(r.PathValue("id"), body); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
