package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// Authenticator resolves an auth token to its user.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*model.User, error)
}

// LoggingInterceptor logs one line per unary RPC with its status code.
// Server faults log at Error, caller mistakes such as NotFound or a stale
// version at Warn, successes at Debug.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		switch code {
		case codes.OK:
			logger.Debug("rpc completed", attrs...)
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			logger.Error("rpc failed", append(attrs, "error", err)...)
		default:
			logger.Warn("rpc rejected", append(attrs, "error", err)...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal and logs
// the stack.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in rpc handler",
					"method", info.FullMethod,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// grpcAuthExempt reports whether method may be called without a token.
func grpcAuthExempt(method string) bool {
	return method == HealthMethod || strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// AuthInterceptor returns a gRPC unary interceptor that resolves the
// "authorization" metadata header to a user and stores it in the context.
// Health checks are exempt.
func AuthInterceptor(authn Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if grpcAuthExempt(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get("authorization")
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}
		token, ok := strings.CutPrefix(vals[0], "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization scheme")
		}

		u, err := authn.AuthenticateToken(ctx, token)
		if err != nil {
			if errors.Is(err, model.ErrUnauthorized) {
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			}
			return nil, status.Error(codes.Internal, "internal server error")
		}
		return handler(withUser(ctx, u), req)
	}
}

// AuthMiddleware wraps an http.Handler and resolves the Authorization header
// to a user, which handlers read back with userFrom. GET /v1/health and the
// legacy POST /api/config (credentials in the body) are exempt. POST
// /v1/users is open when adminToken is empty and otherwise requires it.
func AuthMiddleware(authn Authenticator, adminToken string, next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/health",
			r.Method == http.MethodPost && r.URL.Path == "/api/config":
			next.ServeHTTP(w, r)
			return
		case r.Method == http.MethodPost && r.URL.Path == "/v1/users":
			if adminToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided, ok := bearer(w, r)
			if !ok {
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		provided, ok := bearer(w, r)
		if !ok {
			return
		}
		u, err := authn.AuthenticateToken(r.Context(), provided)
		if err != nil {
			if !errors.Is(err, model.ErrUnauthorized) {
				logger.Error("authenticate request", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

// bearer extracts the bearer token, writing a 401 when it is missing.
func bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return "", false
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
		return "", false
	}
	return token, true
}
