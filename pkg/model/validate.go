package model

import (
	"fmt"
	"regexp"

	"github.com/crtx-sg/iotix/pkg/ierr"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Validate enforces the structural invariants spec §3 lists for a
// DeviceModel, ahead of any JSON-Schema check (see ValidateSchema).
func (m *DeviceModel) Validate() error {
	if !idPattern.MatchString(m.ID) {
		return ierr.Validationf("id", "must match ^[a-z][a-z0-9-]*$")
	}
	if m.Name == "" {
		return ierr.Validationf("name", "must not be empty")
	}
	switch m.Type {
	case DeviceTypeSensor, DeviceTypeGateway, DeviceTypeActuator, DeviceTypeCustom, DeviceTypeProxy:
	default:
		return ierr.Validationf("type", fmt.Sprintf("unsupported device type %q", m.Type))
	}
	switch m.Protocol {
	case ProtocolMQTT, ProtocolCoAP, ProtocolHTTP:
	default:
		return ierr.Validationf("protocol", fmt.Sprintf("unsupported protocol %q", m.Protocol))
	}

	if m.IsProxy() {
		if len(m.Telemetry) != 0 {
			return ierr.Validationf("telemetry", "proxy models must not declare telemetry attributes")
		}
		return nil
	}

	if err := m.Connection.validate(m.Protocol); err != nil {
		return err
	}
	if len(m.Telemetry) == 0 {
		return ierr.Validationf("telemetry", "non-proxy models must declare at least one attribute")
	}
	seen := make(map[string]bool, len(m.Telemetry))
	for i := range m.Telemetry {
		attr := &m.Telemetry[i]
		if attr.Name == "" {
			return ierr.Validationf(fmt.Sprintf("telemetry[%d].name", i), "must not be empty")
		}
		if seen[attr.Name] {
			return ierr.Validationf(fmt.Sprintf("telemetry[%d].name", i), fmt.Sprintf("duplicate attribute %q", attr.Name))
		}
		seen[attr.Name] = true
		if err := attr.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConnectionSpec) validate(proto Protocol) error {
	if proto == ProtocolHTTP {
		if c.BaseURL == "" {
			return ierr.Validationf("connection.baseUrl", "required for http protocol")
		}
		return nil
	}
	if c.Port < 1 || c.Port > 65535 {
		return ierr.Validationf("connection.port", "must be between 1 and 65535")
	}
	if c.BrokerHost == "" {
		return ierr.Validationf("connection.brokerHost", "must not be empty")
	}
	if proto == ProtocolMQTT && (c.QoS < 0 || c.QoS > 2) {
		return ierr.Validationf("connection.qos", "must be 0, 1, or 2")
	}
	return nil
}

func (a *TelemetryAttributeSpec) validate(i int) error {
	if a.IntervalMs < 1 {
		return ierr.Validationf(fmt.Sprintf("telemetry[%d].intervalMs", i), "must be >= 1")
	}
	switch a.DataType {
	case DataTypeNumber, DataTypeInteger, DataTypeBoolean, DataTypeString, DataTypeBinary:
	default:
		return ierr.Validationf(fmt.Sprintf("telemetry[%d].dataType", i), fmt.Sprintf("unsupported data type %q", a.DataType))
	}
	return a.Generator.validate(i)
}

func (g *GeneratorSpec) validate(i int) error {
	field := func(suffix string) string { return fmt.Sprintf("telemetry[%d].generator.%s", i, suffix) }
	switch g.Variant {
	case GeneratorRandom:
		if g.Min != nil && g.Max != nil && *g.Min > *g.Max {
			return ierr.Validationf(field("min"), "must be <= max")
		}
		switch g.Distribution {
		case "", DistributionUniform, DistributionNormal, DistributionExponential:
		default:
			return ierr.Validationf(field("distribution"), fmt.Sprintf("unsupported distribution %q", g.Distribution))
		}
		if g.Distribution == DistributionExponential && g.Rate != nil && *g.Rate <= 0 {
			return ierr.Validationf(field("rate"), "must be > 0")
		}
	case GeneratorSequence:
		if g.Step == 0 {
			return ierr.Validationf(field("step"), "must not be 0")
		}
	case GeneratorConstant:
		if g.Value == nil {
			return ierr.Validationf(field("value"), "required for constant generator")
		}
	case GeneratorReplay:
		if g.FilePath == "" {
			return ierr.Validationf(field("filePath"), "required for replay generator")
		}
	case GeneratorCustom:
		if g.Handler == "" && g.Formula == "" {
			return ierr.Validationf(field("handler"), "custom generator requires handler or formula")
		}
	default:
		return ierr.Validationf(field("type"), fmt.Sprintf("unsupported generator type %q", g.Variant))
	}
	return nil
}

// Validate enforces the binding invariants spec §3 lists for a
// BindingConfig attached to a proxy device.
func (b *BindingConfig) Validate() error {
	switch b.Protocol {
	case ProtocolMQTT:
		if b.Broker == "" {
			return ierr.Validationf("broker", "required for mqtt binding")
		}
		if b.Topic == "" {
			return ierr.Validationf("topic", "required for mqtt binding")
		}
	case ProtocolHTTP:
		if b.WebhookPath == "" {
			return ierr.Validationf("webhookPath", "required for http binding")
		}
	case ProtocolCoAP:
		if b.Broker == "" {
			return ierr.Validationf("broker", "required for coap binding")
		}
	default:
		return ierr.Validationf("protocol", fmt.Sprintf("unsupported binding protocol %q", b.Protocol))
	}
	return nil
}
