package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/envtree/internal/model"
)

func dialTestGRPC(t *testing.T, env *testEnv) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(env.srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestGRPC_Health(t *testing.T) {
	env := newTestEnv(t, "")
	conn := dialTestGRPC(t, env)
	ctx := context.Background()

	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, HealthMethod, &structpb.Struct{}, resp); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := resp.Fields["status"].GetStringValue(); got != "ok" {
		t.Errorf("status = %q", got)
	}

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v", hc.GetStatus())
	}
}

func TestGRPC_Reflection(t *testing.T) {
	// ConfigService has no compiled descriptor to point reflection at.
	if md := ConfigServiceDesc.Metadata; md != nil {
		t.Errorf("ConfigServiceDesc.Metadata = %v, want nil", md)
	}

	env := newTestEnv(t, "")
	conn := dialTestGRPC(t, env)
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(context.Background())
	if err != nil {
		t.Fatalf("ServerReflectionInfo: %v", err)
	}
	defer stream.CloseSend()

	if err := stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	names := map[string]bool{}
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names[svc.GetName()] = true
	}
	for _, want := range []string{ServiceName, healthpb.Health_ServiceDesc.ServiceName} {
		if !names[want] {
			t.Errorf("reflection services %v missing %s", names, want)
		}
	}

	if err := stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: healthpb.Health_ServiceDesc.ServiceName,
		},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp, err = stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(resp.GetFileDescriptorResponse().GetFileDescriptorProto()) == 0 {
		t.Errorf("no descriptor for health service: %v", resp.GetErrorResponse())
	}
}

func TestGRPC_ExportAndList(t *testing.T) {
	env := newTestEnv(t, "")
	conn := dialTestGRPC(t, env)
	bg := context.Background()

	c, err := env.svc.Create(bg, env.user.ID, env.project.ID, "dev")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.svc.Update(bg, env.user.ID, env.project.ID, c.ID, c.Version, model.ValueMap{
		"A": {Value: model.StringPtr("1")},
		"B": {},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	req := mustStruct(t, map[string]any{"project_id": env.project.ID, "config_id": c.ID, "format": "env"})

	// Unauthenticated calls are rejected.
	if err := conn.Invoke(bg, ExportConfigMethod, req, new(structpb.Struct)); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no token: code = %v", status.Code(err))
	}

	ctx := metadata.AppendToOutgoingContext(bg, "authorization", "Bearer "+env.user.AuthToken)
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, ExportConfigMethod, req, resp); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}
	if got := resp.Fields["content"].GetStringValue(); got != "A=1\nB=\n" {
		t.Errorf("content = %q", got)
	}
	if got := resp.Fields["filename"].GetStringValue(); got != ".env" {
		t.Errorf("filename = %q", got)
	}
	values := resp.Fields["values"].GetStructValue().GetFields()
	if values["A"].GetStringValue() != "1" {
		t.Errorf("values[A] = %v", values["A"])
	}
	if _, isNull := values["B"].GetKind().(*structpb.Value_NullValue); !isNull {
		t.Errorf("values[B] = %v, want null", values["B"])
	}

	list := new(structpb.Struct)
	if err := conn.Invoke(ctx, ListConfigsMethod, mustStruct(t, map[string]any{"project_id": env.project.ID}), list); err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}
	items := list.Fields["configs"].GetListValue().GetValues()
	if len(items) != 1 || items[0].GetStructValue().Fields["name"].GetStringValue() != "dev" {
		t.Errorf("configs = %v", items)
	}
}

func TestGRPC_Errors(t *testing.T) {
	env := newTestEnv(t, "")
	conn := dialTestGRPC(t, env)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+env.user.AuthToken)

	for _, tc := range []struct {
		name string
		req  map[string]any
		want codes.Code
	}{
		{"MissingFields", map[string]any{"project_id": env.project.ID}, codes.InvalidArgument},
		{"BadFormat", map[string]any{"project_id": env.project.ID, "config_id": "cfg-x", "format": "yaml"}, codes.InvalidArgument},
		{"UnknownConfig", map[string]any{"project_id": env.project.ID, "config_id": "cfg-x"}, codes.NotFound},
		{"ForeignProject", map[string]any{"project_id": "prj-other", "config_id": "cfg-x"}, codes.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := conn.Invoke(ctx, ExportConfigMethod, mustStruct(t, tc.req), new(structpb.Struct))
			if status.Code(err) != tc.want {
				t.Fatalf("code = %v, want %v (err=%v)", status.Code(err), tc.want, err)
			}
		})
	}
}
