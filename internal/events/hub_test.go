package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BacklogKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("webhook.push", map[string]int{"n": i})
	}

	msgs := h.Since(0)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	var data map[string]int
	require.NoError(t, json.Unmarshal(msgs[2].Data, &data))
	assert.Equal(t, 4, data["n"])

	assert.Len(t, h.Since(4), 1)
	assert.Empty(t, h.Since(5))
}

func TestHub_NilData(t *testing.T) {
	h := NewHub(0)
	h.Publish("ping", nil)
	assert.JSONEq(t, `{}`, string(h.Since(0)[0].Data))
}

func TestHub_Subscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()

	id := h.Publish("webhook.push", map[string]string{"source": "demo"})

	select {
	case msg := <-ch:
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, "webhook.push", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	h.Publish("webhook.push", nil)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish("flood", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}
