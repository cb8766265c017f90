package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/server"
)

// GRPCClient talks to envtree.v1.ConfigService.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// Extra dial options are appended to the insecure transport default.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download fetches the rendered config through ExportConfig.
func (c *GRPCClient) Download(ctx context.Context, projectID, configID string, format export.Format) (*Download, error) {
	resp, err := c.invoke(ctx, server.ExportConfigMethod, map[string]any{
		"project_id": projectID,
		"config_id":  configID,
		"format":     string(format),
	})
	if err != nil {
		return nil, err
	}
	f := resp.GetFields()
	return &Download{
		Format:   export.Format(f["format"].GetStringValue()),
		Filename: f["filename"].GetStringValue(),
		Content:  []byte(f["content"].GetStringValue()),
	}, nil
}

// ConfigSummary is one entry of ListConfigs.
type ConfigSummary struct {
	ID             string
	Name           string
	Version        string
	LinkedConfigID string
	Dangling       bool
	Keys           []string
}

func (c *GRPCClient) ListConfigs(ctx context.Context, projectID string) ([]ConfigSummary, error) {
	resp, err := c.invoke(ctx, server.ListConfigsMethod, map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	var out []ConfigSummary
	for _, v := range resp.GetFields()["configs"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		s := ConfigSummary{
			ID:             f["id"].GetStringValue(),
			Name:           f["name"].GetStringValue(),
			Version:        f["version"].GetStringValue(),
			LinkedConfigID: f["linked_config_id"].GetStringValue(),
			Dangling:       f["dangling"].GetBoolValue(),
		}
		for _, k := range f["keys"].GetListValue().GetValues() {
			s.Keys = append(s.Keys, k.GetStringValue())
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.invoke(ctx, server.HealthMethod, map[string]any{})
	if err != nil {
		return "", err
	}
	return resp.GetFields()["status"].GetStringValue(), nil
}
