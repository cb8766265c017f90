package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/server"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
)

func init() {
	color.NoColor = true
}

// testServer is a running envtree HTTP server with one registered user and
// a project holding a base config and a linked child.
type testServer struct {
	url     string
	user    *model.User
	client  *client.HTTPClient
	project *model.Project
	base    *model.Config
	child   *model.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	hub := server.NewSSEHub()
	svc := configs.NewService(memstore.New(), nil, hub, nil)
	ts := httptest.NewServer(server.New(svc, hub, nil).NewHTTPHandler(""))
	t.Cleanup(ts.Close)

	u, err := client.NewHTTPClient(ts.URL, "").RegisterUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	c := client.NewHTTPClient(ts.URL, u.AuthToken)

	p, err := c.CreateProject(ctx, "web", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	base, err := c.CreateConfig(ctx, p.ID, "base")
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	base, err = c.UpdateValues(ctx, p.ID, base.ID, base.Version, model.ValueMap{
		"DB_URL":  {Value: model.StringPtr("postgres://db"), Hidden: true},
		"TIMEOUT": {Value: model.StringPtr("5")},
	})
	if err != nil {
		t.Fatalf("UpdateValues: %v", err)
	}
	child, err := c.LinkConfig(ctx, p.ID, base.ID, "child")
	if err != nil {
		t.Fatalf("LinkConfig: %v", err)
	}
	child, err = c.SetValue(ctx, p.ID, child.ID, "TIMEOUT", client.SetValueRequest{
		Version: child.Version, Value: model.StringPtr("10"), Create: true,
	})
	if err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	return &testServer{url: ts.URL, user: u, client: c, project: p, base: base, child: child}
}
