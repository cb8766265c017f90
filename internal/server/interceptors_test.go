package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// fakeAuth accepts a single token.
type fakeAuth struct {
	token string
	user  *model.User
	err   error
}

func (f fakeAuth) AuthenticateToken(_ context.Context, token string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token == "" || token != f.token {
		return nil, model.ErrUnauthorized
	}
	return f.user, nil
}

var alice = &model.User{ID: "usr-alice", Email: "alice@example.com"}

// stubHandler is a gRPC handler that echoes the authenticated user ID.
func stubHandler(ctx context.Context, _ any) (any, error) {
	return userID(ctx), nil
}

func TestAuthInterceptor(t *testing.T) {
	interceptor := AuthInterceptor(fakeAuth{token: "secret", user: alice})
	info := &grpc.UnaryServerInfo{FullMethod: ListConfigsMethod}

	for _, tc := range []struct {
		name     string
		ctx      context.Context
		wantCode codes.Code
	}{
		{"MissingMetadata", context.Background(), codes.Unauthenticated},
		{"MissingHeader", metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "value")), codes.Unauthenticated},
		{"InvalidScheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic secret")), codes.Unauthenticated},
		{"WrongToken", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer wrong")), codes.Unauthenticated},
		{"CorrectToken", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer secret")), codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := interceptor(tc.ctx, nil, info, stubHandler)
			if status.Code(err) != tc.wantCode {
				t.Fatalf("code = %v, want %v (err=%v)", status.Code(err), tc.wantCode, err)
			}
			if tc.wantCode == codes.OK && resp != alice.ID {
				t.Fatalf("handler saw user %v, want %s", resp, alice.ID)
			}
		})
	}
}

func TestAuthInterceptor_HealthExempt(t *testing.T) {
	interceptor := AuthInterceptor(fakeAuth{token: "secret"})
	for _, method := range []string{HealthMethod, "/grpc.health.v1.Health/Check"} {
		if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: method}, stubHandler); err != nil {
			t.Fatalf("%s: expected no error, got %v", method, err)
		}
	}
}

func TestAuthInterceptor_StoreFailure(t *testing.T) {
	interceptor := AuthInterceptor(fakeAuth{err: errors.New("db down")})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer secret"))
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: ListConfigsMethod}, stubHandler)
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	_, err := RecoveryInterceptor(logger)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: ListConfigsMethod},
		func(context.Context, any) (any, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
	if !strings.Contains(logs.String(), "panic=boom") {
		t.Errorf("panic not logged: %s", logs.String())
	}
}

func TestLoggingInterceptor_Levels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"OK", nil, "level=DEBUG"},
		{"NotFound", status.Error(codes.NotFound, "config cfg-1 not found"), "level=WARN"},
		{"Conflict", status.Error(codes.Aborted, "config version mismatch"), "level=WARN"},
		{"Internal", status.Error(codes.Internal, "db down"), "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			_, err := LoggingInterceptor(logger)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: ExportConfigMethod},
				func(context.Context, any) (any, error) { return nil, tt.err })
			if err != tt.err {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if !strings.Contains(logs.String(), tt.level) {
				t.Errorf("log %q lacks %s", logs.String(), tt.level)
			}
		})
	}
}

// --- AuthMiddleware tests ---

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(userID(r.Context())))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(fakeAuth{token: "secret", user: alice}, "admin", userEcho(), nil)

	for _, tc := range []struct {
		name     string
		method   string
		path     string
		auth     string
		wantCode int
		wantUser string
	}{
		{"NoHeader", http.MethodGet, "/v1/projects", "", http.StatusUnauthorized, ""},
		{"WrongScheme", http.MethodGet, "/v1/projects", "Basic secret", http.StatusUnauthorized, ""},
		{"WrongToken", http.MethodGet, "/v1/projects", "Bearer wrong", http.StatusUnauthorized, ""},
		{"UserToken", http.MethodGet, "/v1/projects", "Bearer secret", http.StatusOK, alice.ID},
		{"HealthExempt", http.MethodGet, "/v1/health", "", http.StatusOK, ""},
		{"LegacyExempt", http.MethodPost, "/api/config", "", http.StatusOK, ""},
		{"RegisterNeedsAdmin", http.MethodPost, "/v1/users", "Bearer secret", http.StatusUnauthorized, ""},
		{"RegisterWithAdmin", http.MethodPost, "/v1/users", "Bearer admin", http.StatusOK, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d; body: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if tc.wantCode == http.StatusOK && rec.Body.String() != tc.wantUser {
				t.Errorf("user = %q, want %q", rec.Body.String(), tc.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_StoreFailure(t *testing.T) {
	handler := AuthMiddleware(fakeAuth{err: errors.New("db down")}, "", userEcho(), slogDiscard())
	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHTTPStatus(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrUnauthorized, http.StatusNotFound},
		{model.ErrVersionConflict, http.StatusConflict},
		{model.Invalid("name", "is required"), http.StatusBadRequest},
		{model.ErrCycleDetected, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		if got := httpStatus(tc.err); got != tc.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if msg := publicMessage(model.ErrUnauthorized); msg != "not found" {
		t.Errorf("unauthorized message = %q, want \"not found\"", msg)
	}
}
