package proxyadapter

import (
	"context"
	"fmt"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"

	"github.com/crtx-sg/iotix/pkg/model"
)

// mqttIngress subscribes to a topic on an external broker and forwards
// every received payload to the bound proxy device, mirroring the
// subscribe pattern the teacher's own integration tests use against its
// embedded broker (tests/integration/mqtt_test.go).
type mqttIngress struct {
	binding  model.BindingConfig
	clientID string
	timeout  time.Duration

	client mqttclient.Client
}

// NewMQTTIngress builds an ingress Adapter that subscribes to
// binding.Topic at binding.QoS on binding.Broker:binding.Port.
func NewMQTTIngress(binding model.BindingConfig, clientID string) Adapter {
	return &mqttIngress{binding: binding, clientID: clientID, timeout: 10 * time.Second}
}

func (a *mqttIngress) Start(ctx context.Context, handler TelemetryHandler) error {
	opts := mqttclient.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", a.binding.Broker, a.binding.Port))
	opts.SetClientID(a.clientID)
	opts.SetConnectTimeout(a.timeout)
	if a.binding.Username != "" {
		opts.SetUsername(a.binding.Username)
	}

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(a.timeout) {
		return fmt.Errorf("proxy mqtt ingress: connect timeout to %s:%d", a.binding.Broker, a.binding.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("proxy mqtt ingress: connect: %w", err)
	}

	subToken := client.Subscribe(a.binding.Topic, byte(a.binding.QoS), func(_ mqttclient.Client, msg mqttclient.Message) {
		handler(msg.Payload())
	})
	if !subToken.WaitTimeout(a.timeout) {
		client.Disconnect(250)
		return fmt.Errorf("proxy mqtt ingress: subscribe timeout on %s", a.binding.Topic)
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("proxy mqtt ingress: subscribe: %w", err)
	}

	a.client = client
	return nil
}

func (a *mqttIngress) Stop() error {
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
	return nil
}
