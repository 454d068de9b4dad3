package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

func TestAuthInterceptor(t *testing.T) {
	for _, tc := range []struct {
		name   string
		token  string
		method string
		md     metadata.MD // nil: no incoming metadata
		want   codes.Code
	}{
		{"disabled", "", SummaryMethod, nil, codes.OK},
		{"health exempt", "secret", "/grpc.health.v1.Health/Check", nil, codes.OK},
		{"missing metadata", "secret", SummaryMethod, nil, codes.Unauthenticated},
		{"missing header", "secret", SummaryMethod, metadata.Pairs("other", "value"), codes.Unauthenticated},
		{"wrong token", "secret", SummaryMethod, metadata.Pairs("authorization", "Bearer wrong"), codes.Unauthenticated},
		{"invalid scheme", "secret", SummaryMethod, metadata.Pairs("authorization", "Basic secret"), codes.Unauthenticated},
		{"correct token", "secret", SummaryMethod, metadata.Pairs("authorization", "Bearer secret"), codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			resp, err := AuthInterceptor(tc.token)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, stubHandler)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %v, want %v (err %v)", got, tc.want, err)
			}
			if tc.want == codes.OK && resp != "ok" {
				t.Fatalf("expected 'ok', got %v", resp)
			}
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	panicky := func(context.Context, any) (any, error) { panic("boom") }
	_, err := NewRecoveryInterceptor(slog.New(slog.DiscardHandler))(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: SummaryMethod}, panicky)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	req, _ := structpb.NewStruct(map[string]any{"certificate_id": "cert-9"})
	failing := func(context.Context, any) (any, error) { return nil, status.Error(codes.NotFound, "gone") }

	_, err := NewLoggingInterceptor(logger)(context.Background(), req, &grpc.UnaryServerInfo{FullMethod: SummaryMethod}, failing)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("error not passed through: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"rpc failed", "certificate_id=cert-9", "code=NotFound"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestCheckBearer(t *testing.T) {
	for _, tc := range []struct {
		header string
		want   error
	}{
		{"", errNoCredentials},
		{"Basic secret", errAuthScheme},
		{"Bearer nope", errBadToken},
		{"Bearer secret", nil},
	} {
		if got := checkBearer(tc.header, "secret"); got != tc.want {
			t.Errorf("checkBearer(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for _, tc := range []struct {
		name  string
		token string
		path  string
		auth  string
		want  int
	}{
		{"no header", "secret", "/v1/certificates", "", http.StatusUnauthorized},
		{"wrong token", "secret", "/v1/certificates", "Bearer wrong", http.StatusUnauthorized},
		{"invalid scheme", "secret", "/v1/certificates", "Basic secret", http.StatusUnauthorized},
		{"correct token", "secret", "/v1/certificates", "Bearer secret", http.StatusOK},
		{"health exempt", "secret", "/v1/health", "", http.StatusOK},
		{"disabled", "", "/v1/certificates", "", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tc.token, ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d; body: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	s := &Server{logger: slog.New(slog.NewTextHandler(&buf, nil))}
	h := s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/certificates/cert-1/save", nil)
	req.Header.Set(ActorHeader, "jo")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"status=418", "actor=jo", "path=/v1/certificates/cert-1/save"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
