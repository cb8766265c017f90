package events

// Message is a raw event received from the bus. ProjectID is empty for
// events that are not scoped to a project.
type Message struct {
	Topic     string
	ProjectID string
	Data      []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel until cancel is
	// called, which also closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
