package adapter

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"
)

// mqttAdapter publishes over MQTT using the eclipse paho client, the same
// library the teacher's integration tests drive against its embedded
// broker (tests/integration/mqtt_test.go).
type mqttAdapter struct {
	cfg      Config
	clientID string

	mu     sync.Mutex
	client mqttclient.Client

	queue *outboundQueue
	done  chan struct{}
	wg    sync.WaitGroup

	messagesSent     atomic.Int64
	bytesSent        atomic.Int64
	publishErrors    atomic.Int64
}

// NewMQTT builds an MQTT Adapter from cfg. clientID should be unique per
// device; the adapter derives its broker URL from cfg.Connection.
func NewMQTT(clientID string, cfg Config) Adapter {
	return &mqttAdapter{
		cfg:      cfg,
		clientID: clientID,
		queue:    newOutboundQueue(cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Connect dials the broker and starts the adapter's delivery loop. It must
// only be called once per adapter instance; subsequent reconnects use dial.
func (a *mqttAdapter) Connect(ctx context.Context) error {
	if err := a.dial(ctx); err != nil {
		return err
	}
	a.wg.Add(1)
	go a.deliveryLoop()
	return nil
}

// dial establishes (or re-establishes) the paho client connection without
// touching the delivery loop.
func (a *mqttAdapter) dial(ctx context.Context) error {
	opts := mqttclient.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", a.cfg.Connection.BrokerHost, a.cfg.Connection.Port))
	opts.SetClientID(a.clientID)
	opts.SetConnectTimeout(a.cfg.ConnectTimeout)
	opts.SetAutoReconnect(false) // the adapter drives its own backoff loop
	opts.SetKeepAlive(time.Duration(keepaliveOrDefault(a.cfg.Connection.KeepaliveSeconds)) * time.Second)

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(a.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt adapter: connect timeout to %s:%d", a.cfg.Connection.BrokerHost, a.cfg.Connection.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt adapter: connect: %w", err)
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

func keepaliveOrDefault(seconds int) int {
	if seconds <= 0 {
		return 30
	}
	return seconds
}

func (a *mqttAdapter) Publish(topic string, payload []byte, qos int) error {
	a.queue.enqueue(outboundMsg{topic: topic, payload: payload, qos: qos})
	return nil
}

func (a *mqttAdapter) deliveryLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case msg := <-a.queue.ch:
			a.deliver(msg)
		}
	}
}

func (a *mqttAdapter) deliver(msg outboundMsg) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil || !client.IsConnected() {
		if err := a.reconnectWithBackoff(); err != nil {
			a.publishErrors.Add(1)
			return
		}
		a.mu.Lock()
		client = a.client
		a.mu.Unlock()
	}

	token := client.Publish(msg.topic, byte(msg.qos), false, msg.payload)
	if !token.WaitTimeout(a.cfg.PublishTimeout) {
		a.publishErrors.Add(1)
		return
	}
	if err := token.Error(); err != nil {
		a.publishErrors.Add(1)
		return
	}
	a.messagesSent.Add(1)
	a.bytesSent.Add(int64(len(msg.payload)))
}

// reconnectWithBackoff retries Connect with exponential backoff bounded by
// [ReconnectMinDelay, ReconnectMaxDelay] and +/- JitterFraction jitter,
// mirroring the teacher's tunnel reconnect loop (pkg/tunnel/manager.go:
// delay doubles each attempt, capped at maxDelay).
func (a *mqttAdapter) reconnectWithBackoff() error {
	delay := a.cfg.ReconnectMinDelay
	if delay <= 0 {
		delay = time.Second
	}
	max := a.cfg.ReconnectMaxDelay
	if max <= 0 {
		max = 60 * time.Second
	}

	for attempt := 0; attempt < 8; attempt++ {
		select {
		case <-a.done:
			return fmt.Errorf("mqtt adapter: closed during reconnect")
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ConnectTimeout)
		err := a.dial(ctx)
		cancel()
		if err == nil {
			return nil
		}

		jitter := 1 + (rand.Float64()*2-1)*a.cfg.JitterFraction
		sleep := time.Duration(float64(delay) * jitter)
		select {
		case <-time.After(sleep):
		case <-a.done:
			return fmt.Errorf("mqtt adapter: closed during reconnect")
		}

		delay *= 2
		if delay > max {
			delay = max
		}
	}
	return fmt.Errorf("mqtt adapter: exhausted reconnect attempts")
}

func (a *mqttAdapter) Close() error {
	close(a.done)
	a.wg.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
	return nil
}

func (a *mqttAdapter) Stats() Stats {
	return Stats{
		MessagesSent:     a.messagesSent.Load(),
		BytesSent:        a.bytesSent.Load(),
		PublishErrors:    a.publishErrors.Load(),
		DroppedPublishes: a.queue.droppedCount(),
	}
}
