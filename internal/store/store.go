package store

import (
	"context"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// Store defines the persistence interface for users, projects and configs.
//
// Lookups of absent records return an error matching model.ErrNotFound.
// UpdateConfig is a compare-and-swap on the config's version token and
// returns model.ErrVersionConflict when the stored token differs.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error

	// Projects
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]*model.Project, error)
	ListAllProjects(ctx context.Context) ([]*model.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// Membership
	AddProjectMember(ctx context.Context, projectID, userID string) error
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]string, error)

	// Configs
	CreateConfig(ctx context.Context, config *model.Config) error
	GetConfig(ctx context.Context, projectID, id string) (*model.Config, error)
	ListConfigs(ctx context.Context, projectID string) ([]*model.Config, error)
	ListAllConfigs(ctx context.Context) ([]*model.Config, error)
	UpdateConfig(ctx context.Context, projectID, id, expectedVersion string, patch model.ConfigPatch) (*model.Config, error)
	DeleteConfig(ctx context.Context, projectID, id string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, projectID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
