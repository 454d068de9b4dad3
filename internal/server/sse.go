package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/certflow/internal/events"
)

const (
	// streamHistory is how many recent events are kept for Last-Event-ID replay.
	streamHistory = 512

	streamKeepalive = 15 * time.Second
)

// streamEvent is one workflow event as sent on /v1/events/stream.
type streamEvent struct {
	ID            uint64
	Topic         string
	CertificateID string
	Data          []byte
}

// streamFilter selects the events a stream client wants. Zero values match
// everything.
type streamFilter struct {
	topics      []string // NATS-style patterns
	certificate string
}

func (f streamFilter) match(evt *streamEvent) bool {
	if f.certificate != "" && evt.CertificateID != f.certificate {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, evt.Topic) {
			return true
		}
	}
	return false
}

type streamClient struct {
	filter streamFilter
	ch     chan *streamEvent
}

// EventHub fans workflow events out to /v1/events/stream clients and keeps
// a bounded history for reconnecting clients.
type EventHub struct {
	mu      sync.Mutex
	seq     uint64
	history []*streamEvent // oldest first, at most streamHistory long
	clients map[*streamClient]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*streamClient]struct{})}
}

// Broadcast encodes event and delivers it under topic. It has the shape of
// the workflow service's broadcast hook.
func (h *EventHub) Broadcast(topic string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("dropping unencodable event", "topic", topic, "err", err)
		return
	}
	var certID string
	if ref, ok := event.(events.Ref); ok {
		certID = ref.CertificateRef()
	}
	h.publish(topic, certID, data)
}

func (h *EventHub) publish(topic, certID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := &streamEvent{ID: h.seq, Topic: topic, CertificateID: certID, Data: data}
	if len(h.history) == streamHistory {
		copy(h.history, h.history[1:])
		h.history = h.history[:streamHistory-1]
	}
	h.history = append(h.history, evt)

	for c := range h.clients {
		if !c.filter.match(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default: // client too slow; it can resync with Last-Event-ID
		}
	}
}

// attach registers a client. When resume is set it also returns the buffered
// events after lastID that pass the filter, taken under the same lock so no
// event falls between replay and live delivery.
func (h *EventHub) attach(f streamFilter, resume bool, lastID uint64) (*streamClient, []*streamEvent) {
	c := &streamClient{filter: f, ch: make(chan *streamEvent, 64)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	var replay []*streamEvent
	if !resume {
		return c, nil
	}
	for _, evt := range h.history {
		if evt.ID > lastID && f.match(evt) {
			replay = append(replay, evt)
		}
	}
	return c, replay
}

func (h *EventHub) detach(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// matchTopicPattern matches dot-separated topics. "*" matches one segment
// and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	segs := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">":
			return i < len(segs)
		case i >= len(segs):
			return false
		case p != "*" && p != segs[i]:
			return false
		}
	}
	return len(pat) == len(segs)
}

// handleEventStream handles GET /v1/events/stream. Query parameters
// "topics" (comma separated patterns) and "certificate" narrow the stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	f := streamFilter{certificate: q.Get("certificate")}
	for t := range strings.SplitSeq(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	client, replay := s.hub.attach(f, err == nil, lastID)
	defer s.hub.detach(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range replay {
		writeStreamEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeStreamEvent(w, evt)
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}

func writeStreamEvent(w http.ResponseWriter, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
