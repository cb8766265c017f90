// Package configs implements the config lifecycle for envtree projects:
// creating, duplicating, linking and unlinking configs, editing their values
// under optimistic version checks, and resolving the effective values of a
// linked chain for display and download. Projects and users are managed here
// too since every config operation is scoped by them.
package configs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store"
)

// Access decides whether a user may operate on a project.
type Access interface {
	UserHasAccess(ctx context.Context, userID, projectID string) (bool, error)
}

// StoreAccess grants access to project members.
type StoreAccess struct {
	Store store.Store
}

func (a StoreAccess) UserHasAccess(ctx context.Context, userID, projectID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return a.Store.IsProjectMember(ctx, projectID, userID)
}

// Service coordinates the store, access checks and event publishing.
type Service struct {
	store     store.Store
	access    Access
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService returns a Service. A nil access checks project membership, a
// nil publisher drops events and a nil logger uses slog.Default().
func NewService(s store.Store, access Access, p events.Publisher, logger *slog.Logger) *Service {
	if access == nil {
		access = StoreAccess{Store: s}
	}
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, access: access, publisher: p, logger: logger}
}

// authorize returns model.ErrUnauthorized when userID may not use projectID.
func (s *Service) authorize(ctx context.Context, userID, projectID string) error {
	ok, err := s.access.UserHasAccess(ctx, userID, projectID)
	if err != nil {
		return fmt.Errorf("check access to project %s: %w", projectID, err)
	}
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, model.ErrUnauthorized)
	}
	return nil
}

// recordAndPublish persists an event to the store and publishes it.
// Both operations are best-effort; failures are logged but do not block the caller.
func (s *Service) recordAndPublish(ctx context.Context, topic, projectID, configID, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event", "topic", topic, "project_id", projectID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:     topic,
		ProjectID: projectID,
		ConfigID:  configID,
		Actor:     actor,
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("failed to record event", "topic", topic, "project_id", projectID, "config_id", configID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "project_id", projectID, "config_id", configID, "error", err)
	}
}

// Events returns the recorded event history of a project.
func (s *Service) Events(ctx context.Context, userID, projectID string) ([]*model.Event, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.store.GetEvents(ctx, projectID)
}
