package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/smokersim/internal/engine"
)

const (
	maxSSEConns       = 8
	subscriberBuffer  = 64
	heartbeatInterval = 15 * time.Second
)

// Hub fans engine frames out to SSE subscribers. It is an engine observer and
// never blocks the scheduler: a subscriber that falls behind loses frames.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan engine.Frame
	nextID  int
	dropped atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan engine.Frame)}
}

// Observe broadcasts a frame.
func (h *Hub) Observe(f engine.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- f:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber.
func (h *Hub) Subscribe() (int, <-chan engine.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan engine.Frame, subscriberBuffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many frames slow subscribers have missed.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// handleStream streams frames as SSE: a "snapshot" event on connect, then a
// "tick" event per frame followed by one event per emitted simulation event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.StreamKey != "" && !bearerMatches(r, s.StreamKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(subID)

	writeSSE(w, "snapshot", engine.Frame{RunID: s.Eng.RunID(), Snapshot: s.Eng.Snapshot()})
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, "tick", f)
			for _, e := range f.Events {
				writeSSE(w, e.Category, e)
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSE writes a single event in SSE format.
func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
