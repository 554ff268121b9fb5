package devbroker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_StartStopLifecycle(t *testing.T) {
	b, err := New(Config{Port: 18830})
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(context.Background(), time.Second) }()

	assert.True(t, b.IsRunning())
	assert.Equal(t, ":18830", b.Address())

	require.NoError(t, b.Stop(context.Background(), time.Second))
	assert.False(t, b.IsRunning())
	assert.Empty(t, b.Address())
}

func TestBroker_StartTwiceErrors(t *testing.T) {
	b, err := New(Config{Port: 18831})
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(context.Background(), time.Second) }()

	assert.Error(t, b.Start(context.Background()))
}

func TestBroker_PublishNotifiesMatchingSubscribers(t *testing.T) {
	b, err := New(Config{Port: 18832})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(context.Background(), time.Second) }()

	var mu sync.Mutex
	var received []string
	b.Subscribe("devices/+/telemetry", func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, topic)
	})

	require.NoError(t, b.Publish("devices/d1/telemetry", []byte(`{"temperature":21.5}`), 0, false))
	require.NoError(t, b.Publish("devices/d1/commands", []byte("ignored"), 0, false))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"devices/d1/telemetry"}, received)
}

func TestBroker_PublishWhileStoppedErrors(t *testing.T) {
	b, err := New(Config{Port: 18833})
	require.NoError(t, err)
	assert.Error(t, b.Publish("any/topic", []byte("x"), 0, false))
}
