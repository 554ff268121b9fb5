package devbroker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crtx-sg/iotix/pkg/logging"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// SubscriptionHandler observes a published message, grounded on the
// teacher's mqtt.SubscriptionHandler.
type SubscriptionHandler func(topic string, payload []byte)

// Config configures the embedded broker.
type Config struct {
	Port int
}

// DefaultConfig returns the standard unencrypted MQTT port.
func DefaultConfig() Config {
	return Config{Port: 1883}
}

// Broker is a minimal, unauthenticated MQTT broker for local development
// and testing, grounded on the teacher's mqtt.Broker with TLS, ACL auth,
// recording, and test-panel session tracking all removed — none of those
// concerns apply to a dev-only loopback broker.
type Broker struct {
	cfg       Config
	server    *mqtt.Server
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	log       *slog.Logger

	subMu       sync.RWMutex
	subscribers map[string][]SubscriptionHandler
}

// New builds a Broker, wiring an allow-all auth hook (mochi-mqtt requires
// one) and a message hook that fans published messages out to any
// internal Subscribe callers.
func New(cfg Config) (*Broker, error) {
	if cfg.Port <= 0 {
		cfg.Port = 1883
	}

	server := mqtt.New(&mqtt.Options{InlineClient: true})
	b := &Broker{
		cfg:         cfg,
		server:      server,
		log:         logging.Nop(),
		subscribers: make(map[string][]SubscriptionHandler),
	}

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("devbroker: add allow hook: %w", err)
	}
	if err := server.AddHook(newMessageHook(b), nil); err != nil {
		return nil, fmt.Errorf("devbroker: add message hook: %w", err)
	}

	return b, nil
}

// SetLogger sets the operational logger.
func (b *Broker) SetLogger(log *slog.Logger) {
	if log != nil {
		b.log = log
	}
}

// Start begins listening for MQTT connections on cfg.Port.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.New("devbroker: already running")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	listenerID := fmt.Sprintf("devbroker-%d", b.cfg.Port)
	addr := fmt.Sprintf(":%d", b.cfg.Port)
	listener := listeners.NewTCP(listeners.Config{ID: listenerID, Address: addr})
	if err := b.server.AddListener(listener); err != nil {
		return fmt.Errorf("devbroker: add listener: %w", err)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Error("devbroker: serve error", "error", err)
		}
	}()

	b.running = true
	b.startedAt = time.Now()
	return nil
}

// Stop gracefully closes every connection and stops listening.
func (b *Broker) Stop(ctx context.Context, timeout time.Duration) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.server.Close() }()

	var closeErr error
	select {
	case err := <-done:
		closeErr = err
	case <-shutdownCtx.Done():
		closeErr = fmt.Errorf("devbroker: shutdown timed out: %w", shutdownCtx.Err())
	}

	b.mu.Lock()
	b.running = false
	b.startedAt = time.Time{}
	b.mu.Unlock()

	if closeErr != nil {
		return fmt.Errorf("devbroker: close: %w", closeErr)
	}
	return nil
}

// IsRunning reports whether the broker is currently listening.
func (b *Broker) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Publish publishes a message, letting the embedded broker act as a
// stand-in data source in tests.
func (b *Broker) Publish(topic string, payload []byte, qos byte, retain bool) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return errors.New("devbroker: not running")
	}
	return b.server.Publish(topic, payload, retain, qos)
}

// Subscribe registers an internal callback invoked for every publish whose
// topic matches pattern (supporting MQTT "+"/"#" wildcards), letting a
// test observe what a real subscriber would receive without running a
// second client.
func (b *Broker) Subscribe(pattern string, handler SubscriptionHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[pattern] = append(b.subscribers[pattern], handler)
}

func (b *Broker) notify(topic string, payload []byte) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for pattern, handlers := range b.subscribers {
		if matchTopic(pattern, topic) {
			for _, h := range handlers {
				go h(topic, payload)
			}
		}
	}
}

// Port returns the configured listening port.
func (b *Broker) Port() int {
	return b.cfg.Port
}

// Address returns the listener address, empty if not running.
func (b *Broker) Address() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return ""
	}
	return fmt.Sprintf(":%d", b.cfg.Port)
}

// matchTopic supports MQTT wildcards: "+" (single level) and "#"
// (multi-level), grounded on the teacher's mqtt.matchTopic.
func matchTopic(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}
