package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutboundQueue_DropsOldestWhenFull(t *testing.T) {
	q := newOutboundQueue(2)
	q.enqueue(outboundMsg{topic: "a"})
	q.enqueue(outboundMsg{topic: "b"})
	q.enqueue(outboundMsg{topic: "c"})

	assert.EqualValues(t, 1, q.droppedCount())

	first := <-q.ch
	second := <-q.ch
	assert.Equal(t, "b", first.topic)
	assert.Equal(t, "c", second.topic)
}

func TestOutboundQueue_DefaultSize(t *testing.T) {
	q := newOutboundQueue(0)
	assert.Equal(t, 1024, cap(q.ch))
}
