package configs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/envtree/internal/idgen"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// RegisterUser creates an account with a fresh auth token.
func (s *Service) RegisterUser(ctx context.Context, email, name string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(email); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name != "" {
		if err := model.ValidateName("name", name); err != nil {
			return nil, err
		}
	}
	id, err := idgen.User()
	if err != nil {
		return nil, err
	}
	token, err := idgen.AuthToken()
	if err != nil {
		return nil, err
	}

	u := &model.User{ID: id, Email: email, Name: name, AuthToken: token}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, model.Invalid("email", "email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// CurrentUser returns the account of userID.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// RenameUser changes the display name of userID.
func (s *Service) RenameUser(ctx context.Context, userID, name string) (*model.User, error) {
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}
	return s.updateUser(ctx, userID, func(u *model.User) { u.Name = strings.TrimSpace(name) })
}

// SetUsername claims a unique username for userID.
func (s *Service) SetUsername(ctx context.Context, userID, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := model.ValidateName("username", username); err != nil {
		return nil, err
	}
	other, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil && other.ID != userID:
		return nil, model.Invalid("username", "username already in use")
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, err
	}
	return s.updateUser(ctx, userID, func(u *model.User) { u.Username = username })
}

// RegenerateAuthToken replaces the auth token of userID, invalidating the old one.
func (s *Service) RegenerateAuthToken(ctx context.Context, userID string) (*model.User, error) {
	token, err := idgen.AuthToken()
	if err != nil {
		return nil, err
	}
	return s.updateUser(ctx, userID, func(u *model.User) { u.AuthToken = token })
}

// DeleteUser removes the account and its memberships. Projects are kept.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

// AuthenticateToken resolves an auth token to its user.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, model.ErrUnauthorized
	}
	u, err := s.store.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// AuthenticateEmailToken resolves credentials given as email plus auth token,
// as sent by the download CLI.
func (s *Service) AuthenticateEmailToken(ctx context.Context, email, token string) (*model.User, error) {
	u, err := s.AuthenticateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Email, strings.TrimSpace(email)) {
		return nil, model.ErrUnauthorized
	}
	return u, nil
}

func (s *Service) updateUser(ctx context.Context, userID string, mutate func(*model.User)) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutate(u)
	if err := s.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, model.Invalid("username", "username already in use")
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}
