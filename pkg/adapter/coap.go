package adapter

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

// coapAdapter publishes telemetry as CoAP POST requests over UDP, using
// confirmable (CON, retried by the library) or non-confirmable (NON,
// fire-and-forget) messages per the model's connection spec.
type coapAdapter struct {
	cfg  Config
	path string

	mu   sync.Mutex
	conn *client.Conn

	queue *outboundQueue
	done  chan struct{}
	wg    sync.WaitGroup

	messagesSent  atomic.Int64
	bytesSent     atomic.Int64
	publishErrors atomic.Int64
}

// NewCoAP builds a CoAP Adapter from cfg.
func NewCoAP(cfg Config) Adapter {
	path := cfg.Connection.ResourcePath
	if path == "" {
		path = "/telemetry"
	}
	return &coapAdapter{
		cfg:   cfg,
		path:  path,
		queue: newOutboundQueue(cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

func (a *coapAdapter) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Connection.BrokerHost, a.cfg.Connection.Port)
	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	conn, err := udp.Dial(addr, udp.WithContext(dialCtx))
	if err != nil {
		return fmt.Errorf("coap adapter: dial %s: %w", addr, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.wg.Add(1)
	go a.deliveryLoop()
	return nil
}

func (a *coapAdapter) Publish(topic string, payload []byte, qos int) error {
	a.queue.enqueue(outboundMsg{topic: topic, payload: payload, qos: qos})
	return nil
}

func (a *coapAdapter) deliveryLoop() {
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

func (a *coapAdapter) deliver(msg outboundMsg) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		a.publishErrors.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PublishTimeout)
	defer cancel()

	path := a.path
	if msg.topic != "" {
		path = a.path + "/" + msg.topic
	}

	req, err := conn.NewPostRequest(ctx, path, message.AppJSON, bytes.NewReader(msg.payload))
	if err != nil {
		a.publishErrors.Add(1)
		return
	}
	if !a.cfg.Connection.Confirmable {
		req.SetType(message.NonConfirmable)
	}

	resp, err := conn.Do(req)
	if err != nil {
		a.publishErrors.Add(1)
		return
	}
	defer conn.ReleaseMessage(resp)

	a.messagesSent.Add(1)
	a.bytesSent.Add(int64(len(msg.payload)))
}

func (a *coapAdapter) Close() error {
	close(a.done)
	a.wg.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	return nil
}

func (a *coapAdapter) Stats() Stats {
	return Stats{
		MessagesSent:     a.messagesSent.Load(),
		BytesSent:        a.bytesSent.Load(),
		PublishErrors:    a.publishErrors.Load(),
		DroppedPublishes: a.queue.droppedCount(),
	}
}
