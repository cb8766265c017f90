package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	svc     *configs.Service
	store   *memstore.Store
	hub     *SSEHub
	user    *model.User
	project *model.Project
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	st := memstore.New()
	hub := NewSSEHub()
	svc := configs.NewService(st, nil, hub, nil)
	srv := New(svc, hub, nil)

	ctx := context.Background()
	u, err := svc.RegisterUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	p, err := svc.CreateProject(ctx, u.ID, "web", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return &testEnv{
		srv:     srv,
		handler: srv.NewHTTPHandler(adminToken),
		svc:     svc,
		store:   st,
		hub:     hub,
		user:    u,
		project: p,
	}
}

// do sends a request through the handler. A non-nil body is JSON-encoded.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
