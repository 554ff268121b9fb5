// Package model defines the device engine's data model: device models,
// device instances, groups, and proxy bindings (spec §3).
package model

import "time"

// DeviceType enumerates the kinds of device a model can describe.
type DeviceType string

// Device types.
const (
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeGateway  DeviceType = "gateway"
	DeviceTypeActuator DeviceType = "actuator"
	DeviceTypeCustom   DeviceType = "custom"
	DeviceTypeProxy    DeviceType = "proxy"
)

// Protocol enumerates the egress/ingress wire protocols a model may use.
type Protocol string

// Protocols.
const (
	ProtocolMQTT Protocol = "mqtt"
	ProtocolCoAP Protocol = "coap"
	ProtocolHTTP Protocol = "http"
)

// AttributeDataType enumerates the telemetry value types.
type AttributeDataType string

// Attribute data types.
const (
	DataTypeNumber  AttributeDataType = "number"
	DataTypeInteger AttributeDataType = "integer"
	DataTypeBoolean AttributeDataType = "boolean"
	DataTypeString  AttributeDataType = "string"
	DataTypeBinary  AttributeDataType = "binary"
)

// GeneratorVariant enumerates the telemetry generator kinds (spec §4.4).
type GeneratorVariant string

// Generator variants.
const (
	GeneratorRandom   GeneratorVariant = "random"
	GeneratorSequence GeneratorVariant = "sequence"
	GeneratorConstant GeneratorVariant = "constant"
	GeneratorReplay   GeneratorVariant = "replay"
	GeneratorCustom   GeneratorVariant = "custom"
)

// Distribution enumerates the random generator's sampling distributions.
type Distribution string

// Distributions.
const (
	DistributionUniform     Distribution = "uniform"
	DistributionNormal      Distribution = "normal"
	DistributionExponential Distribution = "exponential"
)

// Source tags an emitted time-series point and a Device's origin.
type Source string

// Sources.
const (
	SourceSimulated Source = "simulated"
	SourcePhysical  Source = "physical"
)

// Status is the device lifecycle state (spec §4.1 state machine).
type Status string

// Device lifecycle states.
const (
	StatusCreated      Status = "CREATED"
	StatusStarting     Status = "STARTING"
	StatusRunning      Status = "RUNNING"
	StatusReconnecting Status = "RECONNECTING"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
	StatusError        Status = "ERROR"
	StatusDeleted      Status = "DELETED"
)

// ConnectionState is the transport-level connectivity of a device.
type ConnectionState string

// Connection states.
const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
)

// ConnectionSpec describes how a model's devices reach their broker/endpoint.
type ConnectionSpec struct {
	BrokerHost       string `json:"brokerHost" yaml:"brokerHost"`
	Port             int    `json:"port" yaml:"port"`
	QoS              int    `json:"qos,omitempty" yaml:"qos,omitempty"`
	KeepaliveSeconds int    `json:"keepaliveSeconds,omitempty" yaml:"keepaliveSeconds,omitempty"`
	ClientIDPattern  string `json:"clientIdPattern,omitempty" yaml:"clientIdPattern,omitempty"`
	TopicPattern     string `json:"topicPattern,omitempty" yaml:"topicPattern,omitempty"`
	// BaseURL and Path are used by the http protocol (POST BaseURL+Path).
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	// ResourcePath is used by the coap protocol.
	ResourcePath string `json:"resourcePath,omitempty" yaml:"resourcePath,omitempty"`
	Confirmable  bool   `json:"confirmable,omitempty" yaml:"confirmable,omitempty"`
}

// GeneratorSpec configures a telemetry attribute's value generator.
type GeneratorSpec struct {
	Variant GeneratorVariant `json:"type" yaml:"type"`

	// random
	Distribution Distribution `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Min          *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64     `json:"max,omitempty" yaml:"max,omitempty"`
	Mean         *float64     `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev       *float64     `json:"stddev,omitempty" yaml:"stddev,omitempty"`
	Rate         *float64     `json:"rate,omitempty" yaml:"rate,omitempty"`
	Precision    *int         `json:"precision,omitempty" yaml:"precision,omitempty"`

	// sequence
	Start float64 `json:"start,omitempty" yaml:"start,omitempty"`
	Step  float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Wrap  bool    `json:"wrap,omitempty" yaml:"wrap,omitempty"`

	// constant
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`

	// replay
	FilePath string `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	Column   string `json:"column,omitempty" yaml:"column,omitempty"`
	Loop     bool   `json:"loop,omitempty" yaml:"loop,omitempty"`

	// custom
	Handler string                 `json:"handler,omitempty" yaml:"handler,omitempty"`
	Formula string                 `json:"formula,omitempty" yaml:"formula,omitempty"`
	Config  map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// TelemetryAttributeSpec describes one telemetry field of a device model.
type TelemetryAttributeSpec struct {
	Name       string            `json:"name" yaml:"name"`
	DataType   AttributeDataType `json:"dataType" yaml:"dataType"`
	Unit       string            `json:"unit,omitempty" yaml:"unit,omitempty"`
	Generator  GeneratorSpec     `json:"generator" yaml:"generator"`
	IntervalMs int               `json:"intervalMs" yaml:"intervalMs"`
}

// DeviceModel is a registered, immutable-while-referenced device template
// (spec §3 DeviceModel).
type DeviceModel struct {
	ID         string                   `json:"id" yaml:"id"`
	Name       string                   `json:"name" yaml:"name"`
	Version    string                   `json:"version" yaml:"version"`
	Type       DeviceType               `json:"type" yaml:"type"`
	Protocol   Protocol                 `json:"protocol" yaml:"protocol"`
	Connection ConnectionSpec           `json:"connection" yaml:"connection"`
	Telemetry  []TelemetryAttributeSpec `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`

	// Carried through but not required on the core's hot path (spec §3).
	Commands   map[string]interface{} `json:"commands,omitempty" yaml:"commands,omitempty"`
	Behaviors  map[string]interface{} `json:"behaviors,omitempty" yaml:"behaviors,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Tags are free-form labels carried through to emitted time-series
	// points as an optional dashboard-grouping tag (SPEC_FULL.md §3).
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// IsProxy reports whether this model describes a proxy (passthrough) device.
func (m *DeviceModel) IsProxy() bool {
	return m.Type == DeviceTypeProxy
}

// Source returns the Source a Device created from this model should carry.
func (m *DeviceModel) Source() Source {
	if m.IsProxy() {
		return SourcePhysical
	}
	return SourceSimulated
}

// BindingConfig is the active association between a proxy device and an
// external ingress source (spec §3 BindingConfig).
type BindingConfig struct {
	Protocol    Protocol `json:"protocol" yaml:"protocol"`
	Broker      string   `json:"broker,omitempty" yaml:"broker,omitempty"`
	Port        int      `json:"port,omitempty" yaml:"port,omitempty"`
	Topic       string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	QoS         int      `json:"qos,omitempty" yaml:"qos,omitempty"`
	Username    string   `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordRef string   `json:"passwordRef,omitempty" yaml:"passwordRef,omitempty"`
	WebhookPath string   `json:"webhookPath,omitempty" yaml:"webhookPath,omitempty"`
}

// Device is a live instance created from a DeviceModel (spec §3 Device).
type Device struct {
	ID              string          `json:"id"`
	ModelID         string          `json:"modelId"`
	GroupID         string          `json:"groupId,omitempty"`
	Source          Source          `json:"source"`
	Status          Status          `json:"status"`
	ConnectionState ConnectionState `json:"connectionState"`

	MessagesSent    int64      `json:"messagesSent"`
	BytesSent       int64      `json:"bytesSent"`
	LastTelemetryAt *time.Time `json:"lastTelemetryAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`

	// Proxy-only fields (spec §3 Device, proxy additions).
	Binding              *BindingConfig `json:"binding,omitempty"`
	MessagesReceived     int64          `json:"messagesReceived,omitempty"`
	BytesReceived        int64          `json:"bytesReceived,omitempty"`
	ProxyDroppedPayloads int64          `json:"proxyDroppedPayloads,omitempty"`

	// Labels are arbitrary user metadata, persisted only for process
	// lifetime like everything else on Device (SPEC_FULL.md §3).
	Labels map[string]string `json:"labels,omitempty"`
}

// IsProxy reports whether this device instance is a proxy (physical) device.
func (d *Device) IsProxy() bool {
	return d.Source == SourcePhysical
}

// Group is a named collection of devices created from a single model
// (spec §3 Group).
type Group struct {
	ID            string          `json:"id"`
	ModelID       string          `json:"modelId"`
	ExpectedCount int             `json:"expectedCount"`
	IDPattern     string          `json:"idPattern"`
	Members       map[string]bool `json:"-"`
}

// MemberIDs returns the group's member device ids, unordered.
func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	return ids
}
