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
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialTestGRPC(t *testing.T, env *testEnv, token string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(env.srv, token)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func summaryRequest(t *testing.T, id string) *structpb.Struct {
	t.Helper()
	in, err := structpb.NewStruct(map[string]any{"certificate_id": id})
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func TestGRPCSummary(t *testing.T) {
	env := newTestServer(t)
	cert := createCertificate(t, env.handler)
	conn := dialTestGRPC(t, env, "")

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), SummaryMethod, summaryRequest(t, cert.ID), out); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	fields := out.GetFields()
	if got := fields["certificate_id"].GetStringValue(); got != cert.ID {
		t.Errorf("certificate_id = %q", got)
	}
	summary := fields["summary"].GetStructValue().GetFields()
	if got := summary["certificate_type"].GetStringValue(); got != "EICR" {
		t.Errorf("summary type = %q", got)
	}
	if len(fields["lines"].GetListValue().GetValues()) == 0 {
		t.Error("expected display lines")
	}
}

func TestGRPCSummaryErrors(t *testing.T) {
	env := newTestServer(t)
	conn := dialTestGRPC(t, env, "")

	for _, tc := range []struct {
		name string
		id   string
		want codes.Code
	}{
		{"missing id", "", codes.InvalidArgument},
		{"unknown certificate", "cert-missing", codes.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := conn.Invoke(context.Background(), SummaryMethod, summaryRequest(t, tc.id), new(structpb.Struct))
			if status.Code(err) != tc.want {
				t.Fatalf("code = %v, want %v", status.Code(err), tc.want)
			}
		})
	}
}

func TestGRPCAuthAndHealth(t *testing.T) {
	env := newTestServer(t)
	cert := createCertificate(t, env.handler)
	conn := dialTestGRPC(t, env, "secret")
	ctx := context.Background()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: CompletionService})
	if err != nil {
		t.Fatalf("health without token: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v", resp.GetStatus())
	}

	err = conn.Invoke(ctx, SummaryMethod, summaryRequest(t, cert.ID), new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without token, got %v", err)
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer secret")
	if err := conn.Invoke(authed, SummaryMethod, summaryRequest(t, cert.ID), new(structpb.Struct)); err != nil {
		t.Fatalf("Summary with token: %v", err)
	}
}
