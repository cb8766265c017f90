// Package server exposes the configs service over HTTP, server-sent events
// and gRPC.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// Server holds the transport-independent state shared by the HTTP and gRPC
// front ends.
type Server struct {
	svc    *configs.Service
	hub    *SSEHub
	logger *slog.Logger
}

// New returns a Server for svc. Events published to hub are streamed to SSE
// clients; a nil hub disables streaming. A nil logger uses slog.Default().
func New(svc *configs.Service, hub *SSEHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, hub: hub, logger: logger}
}

type userKey struct{}

// withUser stores the authenticated user in ctx.
func withUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// userFrom returns the authenticated user stored in ctx, or nil.
func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey{}).(*model.User)
	return u
}

// userID returns the ID of the authenticated user, or "" when unauthenticated.
func userID(ctx context.Context) string {
	if u := userFrom(ctx); u != nil {
		return u.ID
	}
	return ""
}

// errorKind classifies a service error for transport mapping.
type errorKind int

const (
	kindInternal errorKind = iota
	kindNotFound
	kindConflict
	kindInvalid
	kindCycle
	kindUnauthenticated
)

func classify(err error) errorKind {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return kindInvalid
	case errors.Is(err, model.ErrVersionConflict):
		return kindConflict
	case errors.Is(err, model.ErrCycleDetected):
		return kindCycle
	case errors.Is(err, model.ErrNotFound):
		return kindNotFound
	case errors.Is(err, errUnauthenticated):
		return kindUnauthenticated
	}
	return kindInternal
}

var errUnauthenticated = errors.New("unauthenticated")

// publicMessage is the error text sent to clients. Access failures read the
// same as missing records and internal failures are not described.
func publicMessage(err error) string {
	switch classify(err) {
	case kindNotFound:
		return "not found"
	case kindConflict:
		return model.ErrVersionConflict.Error()
	case kindCycle:
		return model.ErrCycleDetected.Error()
	case kindUnauthenticated:
		return "unauthenticated"
	case kindInternal:
		return "internal server error"
	}
	return err.Error()
}
