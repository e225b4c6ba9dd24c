package grpcutil

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingUnaryInterceptor(t *testing.T) {
	logger := slog.Default()
	interceptor := LoggingUnaryInterceptor(logger)

	t.Run("successful call", func(t *testing.T) {
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return "response", nil
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("response = %v, want %v", resp, "response")
		}
	})

	t.Run("failed call", func(t *testing.T) {
		expectedErr := status.Error(codes.NotFound, "not found")
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, expectedErr
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if err != expectedErr {
			t.Errorf("error = %v, want %v", err, expectedErr)
		}
		if resp != nil {
			t.Errorf("response = %v, want nil", resp)
		}
	})
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := slog.Default()
	interceptor := RecoveryUnaryInterceptor(logger)

	t.Run("no panic", func(t *testing.T) {
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return "response", nil
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("response = %v, want %v", resp, "response")
		}
	})

	t.Run("panic recovery", func(t *testing.T) {
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			panic("test panic")
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if resp != nil {
			t.Errorf("response = %v, want nil", resp)
		}
		if err == nil {
			t.Fatal("expected error after panic")
		}

		s, ok := status.FromError(err)
		if !ok {
			t.Fatal("expected gRPC status error")
		}
		if s.Code() != codes.Internal {
			t.Errorf("Code() = %v, want %v", s.Code(), codes.Internal)
		}
	})

	t.Run("handler returns error", func(t *testing.T) {
		expectedErr := errors.New("handler error")
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, expectedErr
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if resp != nil {
			t.Errorf("response = %v, want nil", resp)
		}
		if err != expectedErr {
			t.Errorf("error = %v, want %v", err, expectedErr)
		}
	})
}

func TestTimeoutUnaryInterceptor(t *testing.T) {
	t.Run("completes before timeout", func(t *testing.T) {
		interceptor := TimeoutUnaryInterceptor(5 * time.Second)
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return "response", nil
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("response = %v, want %v", resp, "response")
		}
	})

	t.Run("context has deadline", func(t *testing.T) {
		interceptor := TimeoutUnaryInterceptor(100 * time.Millisecond)
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				return nil, errors.New("expected deadline to be set")
			}
			if time.Until(deadline) > 100*time.Millisecond {
				return nil, errors.New("deadline too far in future")
			}
			return "response", nil
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		resp, err := interceptor(context.Background(), "request", info, handler)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("response = %v, want %v", resp, "response")
		}
	})

	t.Run("times out", func(t *testing.T) {
		interceptor := TimeoutUnaryInterceptor(10 * time.Millisecond)
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
				return "response", nil
			}
		}

		info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/Analyze"}
		_, err := interceptor(context.Background(), "request", info, handler)

		if err != context.DeadlineExceeded {
			t.Errorf("error = %v, want %v", err, context.DeadlineExceeded)
		}
	})
}

func TestMetricsUnaryInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	interceptor := MetricsUnaryInterceptor(reg)
	info := &grpc.UnaryServerInfo{FullMethod: "/perftrace.timing.v1.TimingService/GetAnalysis"}

	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	missing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "analysis not found")
	}

	for i := 0; i < 2; i++ {
		if _, err := interceptor(context.Background(), nil, info, ok); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := interceptor(context.Background(), nil, info, missing); status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.NotFound)
	}

	// One series per (method, code) pair.
	if n, err := promtest.GatherAndCount(reg, "perftrace_grpc_requests_total"); err != nil || n != 2 {
		t.Errorf("GatherAndCount(requests) = %d, %v, want 2, nil", n, err)
	}
	if n, err := promtest.GatherAndCount(reg, "perftrace_grpc_request_duration_seconds"); err != nil || n != 1 {
		t.Errorf("GatherAndCount(latency) = %d, %v, want 1, nil", n, err)
	}
}
