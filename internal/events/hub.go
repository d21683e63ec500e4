package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Message is one entry in the hub's stream.
type Message struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub fans messages out to stream subscribers and keeps the most recent ones
// so late clients can catch up.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	backlog []Message
	limit   int

	subs   map[int]chan Message
	nextID int
}

// NewHub creates a hub that retains up to backlog messages.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = 100
	}
	return &Hub{
		backlog: make([]Message, 0, backlog),
		limit:   backlog,
		subs:    make(map[int]chan Message),
	}
}

// Publish records data under msgType and hands it to every subscriber.
// Subscribers that are not keeping up miss the message rather than block.
func (h *Hub) Publish(msgType string, data any) int64 {
	raw := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	msg := Message{ID: h.lastID, Type: msgType, At: time.Now().UTC(), Data: raw}

	if len(h.backlog) == h.limit {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.limit-1]
	}
	h.backlog = append(h.backlog, msg)

	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return msg.ID
}

// Subscribe returns a channel of new messages and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Message, 64)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Since returns retained messages with ID greater than lastID, oldest first.
func (h *Hub) Since(lastID int64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, 0, len(h.backlog))
	for _, m := range h.backlog {
		if m.ID > lastID {
			out = append(out, m)
		}
	}
	return out
}
