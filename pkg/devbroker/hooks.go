package devbroker

import (
	"bytes"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// messageHook fans published messages out to the Broker's internal
// subscribers, grounded on the teacher's mqtt.MessageHook with the
// recording/request-log/mock-response branches removed.
type messageHook struct {
	mqtt.HookBase
	broker *Broker
}

func newMessageHook(b *Broker) *messageHook {
	return &messageHook{broker: b}
}

func (h *messageHook) ID() string { return "devbroker-message-hook" }

func (h *messageHook) Provides(b byte) bool {
	//nolint:gocritic // argument order is intentional
	return bytes.Contains([]byte{mqtt.OnPublish}, []byte{b})
}

func (h *messageHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	h.broker.notify(pk.TopicName, pk.Payload)
	return pk, nil
}
