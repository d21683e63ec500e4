package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/hookbus/internal/events"
)

const keepAliveInterval = 15 * time.Second

// rejection is what the stream exposes about a rejected delivery.
type rejection struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

// mirror republishes bus traffic into hub: accepted events as
// "webhook.<type>", rejections as "webhook.rejected".
func mirror(bus *events.Bus, hub *events.Hub) {
	bus.On(events.Wildcard, func(ctx context.Context, ev events.Event) {
		hub.Publish("webhook."+ev.Type, ev)
	})
	bus.OnError(func(f events.Failure) {
		r := rejection{Error: f.Err.Error()}
		if f.Request != nil {
			r.Path = f.Request.URL.Path
		}
		hub.Publish("webhook.rejected", r)
	})
}

// handleEvents streams the hub as server-sent events. Retained messages newer
// than Last-Event-ID are replayed first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := s.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	for _, msg := range s.hub.Since(lastID) {
		if err := writeSSE(w, msg); err != nil {
			return
		}
		lastID = msg.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.ID <= lastID {
				continue
			}
			if err := writeSSE(w, msg); err != nil {
				return
			}
			lastID = msg.ID
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeSSE frames one message. Data is single-line JSON.
func writeSSE(w http.ResponseWriter, msg events.Message) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", msg.ID, msg.Type, msg.Data)
	return err
}
