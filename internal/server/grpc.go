package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/resolve"
)

// Fully qualified gRPC names of the config service.
const (
	ServiceName        = "envtree.v1.ConfigService"
	ExportConfigMethod = "/" + ServiceName + "/ExportConfig"
	ListConfigsMethod  = "/" + ServiceName + "/ListConfigs"
	HealthMethod       = "/" + ServiceName + "/Health"
)

// ConfigServiceServer is the server API of envtree.v1.ConfigService.
// Requests and responses are google.protobuf.Struct messages.
type ConfigServiceServer interface {
	ExportConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConfigs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(ConfigServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConfigServiceServer), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
	}
}

// ConfigServiceDesc describes envtree.v1.ConfigService for grpc.Server.
var ConfigServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExportConfig", Handler: unaryHandler(ExportConfigMethod, ConfigServiceServer.ExportConfig)},
		{MethodName: "ListConfigs", Handler: unaryHandler(ListConfigsMethod, ConfigServiceServer.ListConfigs)},
		{MethodName: "Health", Handler: unaryHandler(HealthMethod, ConfigServiceServer.Health)},
	},
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the config service, the standard health service and reflection.
func NewGRPCServer(s *Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(s.svc),
		),
	)

	srv.RegisterService(&ConfigServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// grpcError maps a service error onto a gRPC status.
func grpcError(err error) error {
	code := codes.Internal
	switch classify(err) {
	case kindNotFound:
		code = codes.NotFound
	case kindConflict:
		code = codes.Aborted
	case kindInvalid:
		code = codes.InvalidArgument
	case kindCycle:
		code = codes.FailedPrecondition
	case kindUnauthenticated:
		code = codes.Unauthenticated
	}
	return status.Error(code, publicMessage(err))
}

func stringField(req *structpb.Struct, name string) string {
	if v, ok := req.GetFields()[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

// ExportConfig renders a config. Request fields: project_id, config_id,
// format. Response fields: format, filename, content_type, content and the
// flattened values.
func (s *Server) ExportConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, configID := stringField(req, "project_id"), stringField(req, "config_id")
	if projectID == "" || configID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id and config_id are required")
	}
	format, err := export.ParseFormat(stringField(req, "format"))
	if err != nil {
		return nil, grpcError(err)
	}

	rc, err := s.svc.Get(ctx, userID(ctx), projectID, configID)
	if err != nil {
		return nil, grpcError(err)
	}
	body, err := export.Render(rc.Values, format)
	if err != nil {
		return nil, grpcError(err)
	}

	values := make(map[string]any, len(rc.Values))
	for k, v := range rc.Values {
		if v.Value == nil {
			values[k] = nil
		} else {
			values[k] = *v.Value
		}
	}
	resp, err := structpb.NewStruct(map[string]any{
		"format":       string(format),
		"filename":     format.DefaultFilename(),
		"content_type": format.ContentType(),
		"content":      string(body),
		"values":       values,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

// ListConfigs returns a summary of every config of a project. Request
// field: project_id.
func (s *Server) ListConfigs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID := stringField(req, "project_id")
	if projectID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id is required")
	}
	list, err := s.svc.List(ctx, userID(ctx), projectID)
	if err != nil {
		return nil, grpcError(err)
	}

	out := make([]any, 0, len(list))
	for _, rc := range list {
		c := rc.Config
		out = append(out, map[string]any{
			"id":               c.ID,
			"name":             c.Name,
			"version":          c.Version,
			"linked_config_id": c.LinkedConfigID,
			"dangling":         c.Dangling(),
			"keys":             anyStrings(resolve.Keys(rc.Values)),
		})
	}
	resp, err := structpb.NewStruct(map[string]any{"configs": out})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

// Health returns the service health status.
func (s *Server) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func anyStrings(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
