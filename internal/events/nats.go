package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// clientName identifies envtree connections in NATS monitoring.
	clientName = "envtree"

	// HeaderProject carries the project id of project-scoped events so
	// subscribers can filter without decoding the payload.
	HeaderProject = "Envtree-Project"
)

// projectScoped is implemented by payloads that belong to one project.
type projectScoped interface {
	EventProjectID() string
}

// NATSPublisher publishes JSON-encoded events on subjects named after
// their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name(clientName)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	msg, err := newMsg(topic, event)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(msg)
}

func newMsg(topic string, event any) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if project := ProjectOf(event); project != "" {
		msg.Header.Set(HeaderProject, project)
	}
	return msg, nil
}

// Flush blocks until the server has processed every published message.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives events from NATS. Its connection reconnects
// forever, one second apart.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url. opts are applied after the defaults,
// so callers can add disconnect and reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription buffers deliveries for one Subscribe call. Messages that
// arrive while the buffer is full are dropped so the NATS client never
// blocks on a slow consumer.
type subscription struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func (s *subscription) deliver(msg *nats.Msg) {
	m := Message{Topic: msg.Subject, Data: msg.Data}
	if msg.Header != nil {
		m.ProjectID = msg.Header.Get(HeaderProject)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
	default:
	}
}

// close discards undelivered messages so a cancelled subscriber reads a
// closed channel straight away.
func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for len(s.ch) > 0 {
		<-s.ch
	}
	close(s.ch)
}

// Subscribe accepts NATS wildcards such as "envtree.config.>".
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	sub := &subscription{ch: make(chan Message, 64)}
	ns, err := s.conn.Subscribe(topic, sub.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Messages published on other connections are only routed once the
	// server has seen the subscription.
	if err := s.conn.Flush(); err != nil {
		_ = ns.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = ns.Unsubscribe()
			sub.close()
		})
	}
	return sub.ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
