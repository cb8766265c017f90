package events

import (
	"context"
	"errors"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// MultiPublisher fans every event out to each of its publishers. All
// publishers are attempted; their errors are joined.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
