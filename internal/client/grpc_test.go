package client

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/server"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
)

func TestGRPCClient(t *testing.T) {
	ctx := context.Background()
	svc := configs.NewService(memstore.New(), nil, nil, nil)
	u, err := svc.RegisterUser(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	p, _ := svc.CreateProject(ctx, u.ID, "web", "")
	cfg, _ := svc.Create(ctx, u.ID, p.ID, "dev")
	if _, err := svc.SetValue(ctx, u.ID, p.ID, cfg.ID, cfg.Version, "K", model.ConfigValue{Value: model.StringPtr("v"), Group: model.StringPtr("g")}, true); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	gs := server.NewGRPCServer(server.New(svc, nil, nil))
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) })
	c, err := NewGRPCClient("passthrough:///bufnet", u.AuthToken, dialer)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	defer c.Close()

	if s, err := c.Health(ctx); err != nil || s != "ok" {
		t.Fatalf("Health = %q, %v", s, err)
	}

	d, err := c.Download(ctx, p.ID, cfg.ID, export.FormatJSONGrouped)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if d.Format != export.FormatJSONGrouped || d.Filename != "secrets.json" {
		t.Errorf("download = %+v", d)
	}
	if got := string(d.Content); got != "{\n\t\"g\": {\n\t\t\"K\": \"v\"\n\t}\n}\n" {
		t.Errorf("content = %q", got)
	}

	list, err := c.ListConfigs(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}
	if len(list) != 1 || list[0].Name != "dev" || len(list[0].Keys) != 1 || list[0].Dangling {
		t.Errorf("list = %+v", list)
	}

	anon, err := NewGRPCClient("passthrough:///bufnet", "", dialer)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	defer anon.Close()
	if _, err := anon.Download(ctx, p.ID, cfg.ID, export.FormatEnv); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous download code = %v", status.Code(err))
	}
}
