package controlplane

import "github.com/crtx-sg/iotix/pkg/model"

// ErrorResponse is the error body shape spec §6 prescribes: {error, code},
// distinct from the teacher's internal {error, message} ErrorResponse.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is GET /health's body.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is GET /api/v1/version's body, a supplemental endpoint
// not named by spec.md but useful for any deployment tooling that probes
// what build is running.
type VersionResponse struct {
	Version string `json:"version"`
}

// createDeviceRequest is POST /api/v1/devices's body (spec §6).
type createDeviceRequest struct {
	ModelID  string `json:"modelId"`
	DeviceID string `json:"deviceId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

// createGroupRequest is POST /api/v1/groups's body (spec §6).
type createGroupRequest struct {
	ModelID   string `json:"modelId"`
	Count     int    `json:"count"`
	GroupID   string `json:"groupId,omitempty"`
	IDPattern string `json:"idPattern,omitempty"`
}

// launchGroupRequest is POST /api/v1/groups/{id}/start's body (spec §4.1
// launch config).
type launchGroupRequest struct {
	Strategy     string  `json:"strategy,omitempty"`
	DelayMs      int     `json:"delayMs,omitempty"`
	BatchSize    int     `json:"batchSize,omitempty"`
	MaxDelayMs   int     `json:"maxDelayMs,omitempty"`
	ExponentBase float64 `json:"exponentBase,omitempty"`
}

// groupLaunchResponse is POST /api/v1/groups/{id}/start's response.
type groupLaunchResponse struct {
	AcceptedCount       int   `json:"acceptedCount"`
	EstimatedDurationMs int64 `json:"estimatedDurationMs"`
}

// dropoutGroupRequest is POST /api/v1/groups/{id}/dropout's body (spec
// §4.1 dropout config).
type dropoutGroupRequest struct {
	Strategy         string  `json:"strategy,omitempty"`
	Count            int     `json:"count,omitempty"`
	Percentage       float64 `json:"percentage,omitempty"`
	DelayMs          int     `json:"delayMs,omitempty"`
	MaxDelayMs       int     `json:"maxDelayMs,omitempty"`
	ExponentBase     float64 `json:"exponentBase,omitempty"`
	DurationMs       int     `json:"durationMs,omitempty"`
	Reconnect        bool    `json:"reconnect,omitempty"`
	ReconnectDelayMs int     `json:"reconnectDelayMs,omitempty"`
}

// groupDropoutResponse is POST /api/v1/groups/{id}/dropout's response
// (spec §6: "Returns {affectedCount, estimatedDurationMs}").
type groupDropoutResponse struct {
	AffectedCount       int   `json:"affectedCount"`
	EstimatedDurationMs int64 `json:"estimatedDurationMs"`
}

// deviceMetricsResponse is GET /api/v1/devices/{id}/metrics's response
// (spec §6: "{messagesSent, bytesSent, lastTelemetry, connectionDuration,
// connectionState}").
type deviceMetricsResponse struct {
	MessagesSent       int64                 `json:"messagesSent"`
	BytesSent          int64                 `json:"bytesSent"`
	LastTelemetry      *int64                `json:"lastTelemetry,omitempty"` // nanoseconds since epoch
	ConnectionDuration int64                 `json:"connectionDuration"`      // milliseconds
	ConnectionState    model.ConnectionState `json:"connectionState"`
}

// bindResponse is POST /api/v1/devices/{id}/bind's response (spec §6:
// "{status:\"bound\", webhookUrl?}").
type bindResponse struct {
	Status     string `json:"status"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// listDevicesResponse is GET /api/v1/devices's response envelope.
type listDevicesResponse struct {
	Devices []*model.Device `json:"devices"`
	Count   int             `json:"count"`
}

// listModelsResponse is GET /api/v1/models's response envelope.
type listModelsResponse struct {
	Models []*model.DeviceModel `json:"models"`
	Count  int                  `json:"count"`
}

// statsResponse is GET /api/v1/stats's body (spec §4.1 getStats).
type statsResponse struct {
	TotalModels       int     `json:"totalModels"`
	TotalDevices      int64   `json:"totalDevices"`
	RunningDevices    int64   `json:"runningDevices"`
	RunningSimulated  int64   `json:"runningSimulated"`
	RunningPhysical   int64   `json:"runningPhysical"`
	TotalProxyDevices int64   `json:"totalProxyDevices"`
	TotalGroups       int64   `json:"totalGroups"`
	TotalMessagesSent int64   `json:"totalMessagesSent"`
	TotalBytesSent    int64   `json:"totalBytesSent"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}
