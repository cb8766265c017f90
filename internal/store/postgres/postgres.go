// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
// Config values are sealed with box before they are written; a nil box
// stores them as plain JSON.
type PostgresStore struct {
	db  *sql.DB
	box *crypt.Box
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string, box *crypt.Box) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db, box: box}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *model.User) error {
	return queryCreateUser(ctx, s.db, user)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return queryGetUserBy(ctx, s.db, "id", id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return queryGetUserBy(ctx, s.db, "email", email)
}

func (s *PostgresStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	return queryGetUserBy(ctx, s.db, "auth_token", token)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return queryGetUserBy(ctx, s.db, "username", username)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *model.User) error {
	return queryUpdateUser(ctx, s.db, user)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	return queryDeleteUser(ctx, s.db, id)
}

func (s *PostgresStore) CreateProject(ctx context.Context, project *model.Project) error {
	return queryCreateProject(ctx, s.db, project)
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return queryGetProject(ctx, s.db, id)
}

func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID string) ([]*model.Project, error) {
	return queryListProjectsForUser(ctx, s.db, userID)
}

func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]*model.Project, error) {
	return queryListAllProjects(ctx, s.db)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	return queryDeleteProject(ctx, s.db, id)
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID string) error {
	return queryAddProjectMember(ctx, s.db, projectID, userID)
}

func (s *PostgresStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	return queryIsProjectMember(ctx, s.db, projectID, userID)
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	return queryListProjectMembers(ctx, s.db, projectID)
}

func (s *PostgresStore) CreateConfig(ctx context.Context, config *model.Config) error {
	return queryCreateConfig(ctx, s.db, s.box, config)
}

func (s *PostgresStore) GetConfig(ctx context.Context, projectID, id string) (*model.Config, error) {
	return queryGetConfig(ctx, s.db, s.box, projectID, id)
}

func (s *PostgresStore) ListConfigs(ctx context.Context, projectID string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.db, s.box, projectID)
}

func (s *PostgresStore) ListAllConfigs(ctx context.Context) ([]*model.Config, error) {
	return queryListAllConfigs(ctx, s.db, s.box)
}

func (s *PostgresStore) UpdateConfig(ctx context.Context, projectID, id, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	return queryUpdateConfig(ctx, s.db, s.box, projectID, id, expectedVersion, patch)
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, projectID, id string) error {
	return queryDeleteConfig(ctx, s.db, projectID, id)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, projectID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, projectID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx, box: s.box}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx  *sql.Tx
	box *crypt.Box
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateUser(ctx context.Context, user *model.User) error {
	return queryCreateUser(ctx, s.tx, user)
}

func (s *txStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return queryGetUserBy(ctx, s.tx, "id", id)
}

func (s *txStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return queryGetUserBy(ctx, s.tx, "email", email)
}

func (s *txStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	return queryGetUserBy(ctx, s.tx, "auth_token", token)
}

func (s *txStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return queryGetUserBy(ctx, s.tx, "username", username)
}

func (s *txStore) UpdateUser(ctx context.Context, user *model.User) error {
	return queryUpdateUser(ctx, s.tx, user)
}

func (s *txStore) DeleteUser(ctx context.Context, id string) error {
	return queryDeleteUser(ctx, s.tx, id)
}

func (s *txStore) CreateProject(ctx context.Context, project *model.Project) error {
	return queryCreateProject(ctx, s.tx, project)
}

func (s *txStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return queryGetProject(ctx, s.tx, id)
}

func (s *txStore) ListProjectsForUser(ctx context.Context, userID string) ([]*model.Project, error) {
	return queryListProjectsForUser(ctx, s.tx, userID)
}

func (s *txStore) ListAllProjects(ctx context.Context) ([]*model.Project, error) {
	return queryListAllProjects(ctx, s.tx)
}

func (s *txStore) DeleteProject(ctx context.Context, id string) error {
	return queryDeleteProject(ctx, s.tx, id)
}

func (s *txStore) AddProjectMember(ctx context.Context, projectID, userID string) error {
	return queryAddProjectMember(ctx, s.tx, projectID, userID)
}

func (s *txStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	return queryIsProjectMember(ctx, s.tx, projectID, userID)
}

func (s *txStore) ListProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	return queryListProjectMembers(ctx, s.tx, projectID)
}

func (s *txStore) CreateConfig(ctx context.Context, config *model.Config) error {
	return queryCreateConfig(ctx, s.tx, s.box, config)
}

func (s *txStore) GetConfig(ctx context.Context, projectID, id string) (*model.Config, error) {
	return queryGetConfig(ctx, s.tx, s.box, projectID, id)
}

func (s *txStore) ListConfigs(ctx context.Context, projectID string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.tx, s.box, projectID)
}

func (s *txStore) ListAllConfigs(ctx context.Context) ([]*model.Config, error) {
	return queryListAllConfigs(ctx, s.tx, s.box)
}

func (s *txStore) UpdateConfig(ctx context.Context, projectID, id, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	return queryUpdateConfig(ctx, s.tx, s.box, projectID, id, expectedVersion, patch)
}

func (s *txStore) DeleteConfig(ctx context.Context, projectID, id string) error {
	return queryDeleteConfig(ctx, s.tx, projectID, id)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, projectID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, projectID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
