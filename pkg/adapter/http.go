package adapter

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// httpAdapter publishes telemetry as HTTP POST requests against a pooled
// client, for models whose connection spec targets a plain HTTP sink
// (spec §4.5).
type httpAdapter struct {
	cfg     Config
	client  *http.Client
	baseURL string

	queue *outboundQueue
	done  chan struct{}
	wg    sync.WaitGroup

	messagesSent  atomic.Int64
	bytesSent     atomic.Int64
	publishErrors atomic.Int64
}

// NewHTTP builds an HTTP Adapter from cfg.
func NewHTTP(cfg Config) Adapter {
	return &httpAdapter{
		cfg:     cfg,
		baseURL: cfg.Connection.BaseURL + cfg.Connection.Path,
		client: &http.Client{
			Timeout: cfg.PublishTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		queue: newOutboundQueue(cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

func (a *httpAdapter) Connect(ctx context.Context) error {
	a.wg.Add(1)
	go a.deliveryLoop()
	return nil
}

func (a *httpAdapter) Publish(topic string, payload []byte, qos int) error {
	a.queue.enqueue(outboundMsg{topic: topic, payload: payload, qos: qos})
	return nil
}

func (a *httpAdapter) deliveryLoop() {
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

func (a *httpAdapter) deliver(msg outboundMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PublishTimeout)
	defer cancel()

	url := a.baseURL
	if msg.topic != "" {
		url = url + "/" + msg.topic
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg.payload))
	if err != nil {
		a.publishErrors.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.publishErrors.Add(1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.publishErrors.Add(1)
		return
	}
	a.messagesSent.Add(1)
	a.bytesSent.Add(int64(len(msg.payload)))
}

func (a *httpAdapter) Close() error {
	close(a.done)
	a.wg.Wait()
	a.client.CloseIdleConnections()
	return nil
}

func (a *httpAdapter) Stats() Stats {
	return Stats{
		MessagesSent:     a.messagesSent.Load(),
		BytesSent:        a.bytesSent.Load(),
		PublishErrors:    a.publishErrors.Load(),
		DroppedPublishes: a.queue.droppedCount(),
	}
}
