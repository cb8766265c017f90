package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/envtree/internal/events"
)

const (
	// sseRingBufferSize is how many recent events are kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one event as sent to stream clients.
type sseEvent struct {
	ID        uint64
	Topic     string
	ProjectID string
	Data      []byte // JSON payload
}

// eventRing holds the most recent events, oldest overwritten first.
type eventRing struct {
	mu   sync.RWMutex
	buf  []sseEvent
	next int
	full bool
}

func newEventRing(size int) *eventRing {
	return &eventRing{buf: make([]sseEvent, size)}
}

func (r *eventRing) push(e sseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// since returns buffered events with ID > lastID, oldest first.
func (r *eventRing) since(lastID uint64) []*sseEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, start := r.next, 0
	if r.full {
		n, start = len(r.buf), r.next
	}
	var out []*sseEvent
	for i := range n {
		e := r.buf[(start+i)%len(r.buf)]
		if e.ID > lastID {
			out = append(out, &e)
		}
	}
	return out
}

// SSEHub fans config and project events out to stream clients. It is an
// events.Publisher, so it sits next to NATS in an events.MultiPublisher.
type SSEHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	seq     atomic.Uint64
	ring    *eventRing
}

// sseClient is one open stream. It only receives events of projects it
// was allowed to see when it connected.
type sseClient struct {
	topics   []string // patterns; empty matches every topic
	projects map[string]bool
	ch       chan *sseEvent
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[*sseClient]struct{}),
		ring:    newEventRing(sseRingBufferSize),
	}
}

func (h *SSEHub) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	h.broadcast(topic, events.ProjectOf(event), payload)
	return nil
}

// Close is a no-op; streams end with their requests.
func (h *SSEHub) Close() error { return nil }

func (h *SSEHub) broadcast(topic, projectID string, payload []byte) {
	evt := sseEvent{ID: h.seq.Add(1), Topic: topic, ProjectID: projectID, Data: payload}
	h.ring.push(evt)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(&evt) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
			// Slow client; it can catch up with Last-Event-ID.
		}
	}
}

func (h *SSEHub) subscribe(topics []string, projects map[string]bool) *sseClient {
	c := &sseClient{topics: topics, projects: projects, ch: make(chan *sseEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *SSEHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *SSEHub) eventsSince(lastID uint64) []*sseEvent {
	return h.ring.since(lastID)
}

// matches reports whether the client may see evt and asked for its topic.
func (c *sseClient) matches(evt *sseEvent) bool {
	if !c.projects[evt.ProjectID] {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}

func splitList(q string) []string {
	var out []string
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// streamProjects returns the projects a stream may observe: the requested
// ones after an access check, or every project of the user.
func (s *Server) streamProjects(ctx context.Context, requested []string) (map[string]bool, error) {
	uid := userID(ctx)
	allowed := make(map[string]bool)
	if len(requested) > 0 {
		for _, id := range requested {
			if _, err := s.svc.GetProject(ctx, uid, id); err != nil {
				return nil, err
			}
			allowed[id] = true
		}
		return allowed, nil
	}
	projects, err := s.svc.ListProjects(ctx, uid)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		allowed[p.ID] = true
	}
	return allowed, nil
}

// handleEventStream handles GET /v1/events/stream?topics=&projects=.
// Membership is evaluated when the stream opens.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	projects, err := s.streamProjects(r.Context(), splitList(q.Get("projects")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	client := s.hub.subscribe(splitList(q.Get("topics")), projects)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.hub.eventsSince(lastID) {
				if client.matches(evt) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sse client disconnected", "user_id", userID(ctx))
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Topic)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
