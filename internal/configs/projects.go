package configs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/idgen"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store"
)

// CreateProject creates a project with userID as its first member.
func (s *Service) CreateProject(ctx context.Context, userID, name, description string) (*model.Project, error) {
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("project owner: %w", err)
	}
	id, err := idgen.Project()
	if err != nil {
		return nil, err
	}
	p := &model.Project{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateProject(ctx, p); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return tx.AddProjectMember(ctx, p.ID, userID)
	})
	if err != nil {
		return nil, err
	}
	p.Members = []string{userID}

	s.recordAndPublish(ctx, events.TopicProjectCreated, p.ID, "", userID, events.ProjectChanged{Project: p, Actor: userID})
	return p, nil
}

// ListProjects returns the projects userID is a member of.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]*model.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject returns a project with its member IDs.
func (s *Service) GetProject(ctx context.Context, userID, projectID string) (*model.Project, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, projectID)
}

// DeleteProject removes a project together with its configs and memberships.
func (s *Service) DeleteProject(ctx context.Context, userID, projectID string) error {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	s.recordAndPublish(ctx, events.TopicProjectDeleted, projectID, "", userID, events.ProjectChanged{
		Project: &model.Project{ID: projectID},
		Actor:   userID,
	})
	return nil
}

// AddMember grants the user registered under email access to the project.
func (s *Service) AddMember(ctx context.Context, userID, projectID, email string) (*model.User, error) {
	if err := model.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	member, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.Invalid("email", "no user is registered with that email")
		}
		return nil, err
	}
	if err := s.store.AddProjectMember(ctx, projectID, member.ID); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	s.recordAndPublish(ctx, events.TopicMemberAdded, projectID, "", userID, events.MemberAdded{
		ProjectID: projectID, UserID: member.ID, Actor: userID,
	})
	member.AuthToken = ""
	return member, nil
}
