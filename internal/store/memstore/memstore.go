// Package memstore implements store.Store in memory. It backs the
// memory:// database URL and is used throughout the tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store"
)

type state struct {
	users       map[string]*model.User
	projects    map[string]*model.Project
	members     map[string]map[string]bool // project ID -> user IDs
	configs     map[string]*model.Config
	events      []*model.Event
	nextEventID int64
}

func newState() *state {
	return &state{
		users:    map[string]*model.User{},
		projects: map[string]*model.Project{},
		members:  map[string]map[string]bool{},
		configs:  map[string]*model.Config{},
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, u := range st.users {
		u := *u
		cp.users[k] = &u
	}
	for k, p := range st.projects {
		p := *p
		cp.projects[k] = &p
	}
	for k, m := range st.members {
		set := make(map[string]bool, len(m))
		for id := range m {
			set[id] = true
		}
		cp.members[k] = set
	}
	for k, c := range st.configs {
		cp.configs[k] = c.Clone()
	}
	cp.events = append(cp.events, st.events...)
	cp.nextEventID = st.nextEventID
	return cp
}

// Store is an in-memory store.Store. Records are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction runs fn against a copy of the current state and keeps
// the copy only if fn succeeds. The store is locked for the duration, so fn
// must use the store it is given.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}

// Users

func (s *Store) checkUserUnique(u *model.User) error {
	for _, other := range s.st.users {
		if other.ID == u.ID {
			continue
		}
		switch {
		case other.Email == u.Email:
			return fmt.Errorf("email %s: %w", u.Email, model.ErrAlreadyExists)
		case u.Username != "" && other.Username == u.Username:
			return fmt.Errorf("username %s: %w", u.Username, model.ErrAlreadyExists)
		case u.AuthToken != "" && other.AuthToken == u.AuthToken:
			return fmt.Errorf("auth token: %w", model.ErrAlreadyExists)
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	defer s.lock()()
	if _, ok := s.st.users[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, model.ErrAlreadyExists)
	}
	if err := s.checkUserUnique(user); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u := *user
	s.st.users[user.ID] = &u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer s.lock()()
	u, ok := s.st.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) findUser(kind, want string, match func(*model.User) bool) (*model.User, error) {
	defer s.lock()()
	if want == "" {
		return nil, notFound(kind, "(empty)")
	}
	for _, u := range s.st.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound(kind, want)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser("user with email", email, func(u *model.User) bool { return u.Email == email })
}

func (s *Store) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	return s.findUser("user with token", token, func(u *model.User) bool { return u.AuthToken == token })
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser("user with username", username, func(u *model.User) bool { return u.Username == username })
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	defer s.lock()()
	existing, ok := s.st.users[user.ID]
	if !ok {
		return notFound("user", user.ID)
	}
	if err := s.checkUserUnique(user); err != nil {
		return err
	}
	u := *user
	u.CreatedAt = existing.CreatedAt
	s.st.users[user.ID] = &u
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.st.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.st.users, id)
	for _, m := range s.st.members {
		delete(m, id)
	}
	return nil
}

// Projects

func (s *Store) CreateProject(ctx context.Context, project *model.Project) error {
	defer s.lock()()
	if _, ok := s.st.projects[project.ID]; ok {
		return fmt.Errorf("project %s: %w", project.ID, model.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	p := *project
	p.Members = nil
	s.st.projects[project.ID] = &p
	s.st.members[project.ID] = map[string]bool{}
	return nil
}

func (s *Store) projectCopy(p *model.Project) *model.Project {
	cp := *p
	cp.Members = sortedKeys(s.st.members[p.ID])
	return &cp
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	defer s.lock()()
	p, ok := s.st.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	return s.projectCopy(p), nil
}

func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]*model.Project, error) {
	defer s.lock()()
	var out []*model.Project
	for id, p := range s.st.projects {
		if s.st.members[id][userID] {
			out = append(out, s.projectCopy(p))
		}
	}
	sortProjects(out)
	return out, nil
}

func (s *Store) ListAllProjects(ctx context.Context) ([]*model.Project, error) {
	defer s.lock()()
	out := make([]*model.Project, 0, len(s.st.projects))
	for _, p := range s.st.projects {
		out = append(out, s.projectCopy(p))
	}
	sortProjects(out)
	return out, nil
}

// DeleteProject removes the project with its memberships and configs.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.st.projects[id]; !ok {
		return notFound("project", id)
	}
	delete(s.st.projects, id)
	delete(s.st.members, id)
	for cid, c := range s.st.configs {
		if c.ProjectID == id {
			delete(s.st.configs, cid)
		}
	}
	return nil
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) error {
	defer s.lock()()
	if _, ok := s.st.projects[projectID]; !ok {
		return notFound("project", projectID)
	}
	if _, ok := s.st.users[userID]; !ok {
		return notFound("user", userID)
	}
	s.st.members[projectID][userID] = true
	return nil
}

func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	defer s.lock()()
	return s.st.members[projectID][userID], nil
}

func (s *Store) ListProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	defer s.lock()()
	if _, ok := s.st.projects[projectID]; !ok {
		return nil, notFound("project", projectID)
	}
	return sortedKeys(s.st.members[projectID]), nil
}

// Configs

func (s *Store) CreateConfig(ctx context.Context, config *model.Config) error {
	defer s.lock()()
	if _, ok := s.st.projects[config.ProjectID]; !ok {
		return notFound("project", config.ProjectID)
	}
	if _, ok := s.st.configs[config.ID]; ok {
		return fmt.Errorf("config %s: %w", config.ID, model.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}
	config.UpdatedAt = now
	s.st.configs[config.ID] = config.Clone()
	return nil
}

func (s *Store) lookupConfig(projectID, id string) (*model.Config, error) {
	c, ok := s.st.configs[id]
	if !ok || c.ProjectID != projectID {
		return nil, notFound("config", id)
	}
	return c, nil
}

func (s *Store) GetConfig(ctx context.Context, projectID, id string) (*model.Config, error) {
	defer s.lock()()
	c, err := s.lookupConfig(projectID, id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *Store) ListConfigs(ctx context.Context, projectID string) ([]*model.Config, error) {
	defer s.lock()()
	var out []*model.Config
	for _, c := range s.st.configs {
		if c.ProjectID == projectID {
			out = append(out, c.Clone())
		}
	}
	sortConfigs(out)
	return out, nil
}

func (s *Store) ListAllConfigs(ctx context.Context) ([]*model.Config, error) {
	defer s.lock()()
	out := make([]*model.Config, 0, len(s.st.configs))
	for _, c := range s.st.configs {
		out = append(out, c.Clone())
	}
	sortConfigs(out)
	return out, nil
}

// UpdateConfig applies patch when the stored version equals expectedVersion.
func (s *Store) UpdateConfig(ctx context.Context, projectID, id, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	defer s.lock()()
	c, err := s.lookupConfig(projectID, id)
	if err != nil {
		return nil, err
	}
	if c.Version != expectedVersion {
		return nil, fmt.Errorf("config %s: %w", id, model.ErrVersionConflict)
	}

	next := c.Clone()
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Values != nil {
		next.Values = patch.Values.Clone()
	}
	if patch.ClearLink {
		next.LinkedConfigID = ""
		next.LinkedProjectConfigID = ""
	}
	next.Version = patch.Version
	next.UpdatedAt = time.Now().UTC()
	s.st.configs[id] = next
	return next.Clone(), nil
}

func (s *Store) DeleteConfig(ctx context.Context, projectID, id string) error {
	defer s.lock()()
	if _, err := s.lookupConfig(projectID, id); err != nil {
		return err
	}
	delete(s.st.configs, id)
	return nil
}

// Events

func (s *Store) RecordEvent(ctx context.Context, event *model.Event) error {
	defer s.lock()()
	s.st.nextEventID++
	event.ID = s.st.nextEventID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	e := *event
	s.st.events = append(s.st.events, &e)
	return nil
}

func (s *Store) GetEvents(ctx context.Context, projectID string) ([]*model.Event, error) {
	defer s.lock()()
	var out []*model.Event
	for _, e := range s.st.events {
		if e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortProjects(ps []*model.Project) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID < ps[j].ID
	})
}

func sortConfigs(cs []*model.Config) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
