package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/certflow/internal/progress"
)

// summaryMethod is the full method name of Completion/Summary.
const summaryMethod = "/certflow.v1.Completion/Summary"

// Summary is the completion summary answered over gRPC.
type Summary struct {
	CertificateID   string
	CertificateType string
	Percentage      int
	Lines           []progress.Line
	Missing         []string
}

// GRPCClient talks to the Completion service over gRPC.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
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

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// Summary fetches the completion summary of a certificate.
func (c *GRPCClient) Summary(ctx context.Context, id string) (*Summary, error) {
	in, err := structpb.NewStruct(map[string]any{"certificate_id": id})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), summaryMethod, in, out); err != nil {
		return nil, err
	}

	fields := out.GetFields()
	summary := fields["summary"].GetStructValue().GetFields()
	s := &Summary{
		CertificateID:   fields["certificate_id"].GetStringValue(),
		CertificateType: summary["certificate_type"].GetStringValue(),
		Percentage:      int(summary["percentage"].GetNumberValue()),
	}
	for _, v := range fields["lines"].GetListValue().GetValues() {
		line := v.GetStructValue().GetFields()
		s.Lines = append(s.Lines, progress.Line{
			Label: line["label"].GetStringValue(),
			Value: line["value"].GetStringValue(),
		})
	}
	for _, v := range fields["missing"].GetListValue().GetValues() {
		s.Missing = append(s.Missing, v.GetStringValue())
	}
	return s, nil
}

// Health checks the serving status of the Completion service.
func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: "certflow.v1.Completion",
	})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
