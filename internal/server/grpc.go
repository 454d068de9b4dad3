package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/progress"
)

// CompletionService is the gRPC service name of the completion summary API.
const CompletionService = "certflow.v1.Completion"

// SummaryMethod is the full method name of Completion/Summary.
const SummaryMethod = "/" + CompletionService + "/Summary"

// completionServer is the handler type of the Completion service. Messages
// are google.protobuf.Struct so no generated code is needed.
type completionServer interface {
	Summary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var completionServiceDesc = grpc.ServiceDesc{
	ServiceName: CompletionService,
	HandlerType: (*completionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Summary", Handler: summaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "certflow/v1/completion.proto",
}

func summaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(completionServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SummaryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(completionServer).Summary(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the Completion service, health and reflection, and returns the server
// ready to serve.
func NewGRPCServer(s *Server, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			NewRecoveryInterceptor(s.logger),
			NewLoggingInterceptor(s.logger),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&completionServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CompletionService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv
}

// Summary answers Completion/Summary. The request carries "certificate_id";
// the response holds the summary, its display lines and the missing sections.
func (s *Server) Summary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["certificate_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "certificate_id is required")
	}

	var cert *model.Certificate
	if ws, ok := s.workspaces.Lookup(id); ok {
		cert = ws.Status().Certificate
	} else {
		var err error
		if cert, err = s.svc.Get(ctx, id); err != nil {
			return nil, serviceStatus(err, "certificate")
		}
	}

	summary := progress.Summarize(cert, progress.Estimate(cert))
	out, err := toStruct(map[string]any{
		"certificate_id": id,
		"summary":        summary,
		"lines":          progress.Lines(summary),
		"missing":        progress.Missing(cert),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode summary: %v", err)
	}
	return out, nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	return st, nil
}
