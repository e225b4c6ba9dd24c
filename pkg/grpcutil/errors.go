package grpcutil

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NotFoundError creates a NOT_FOUND gRPC error.
func NotFoundError(resource, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resource, id)
}

// InvalidArgumentError creates an INVALID_ARGUMENT gRPC error.
func InvalidArgumentError(field, reason string) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %s", field, reason)
}

// InternalError creates an INTERNAL gRPC error.
func InternalError(err error) error {
	return status.Errorf(codes.Internal, "internal error: %v", err)
}

// WrapError prefixes err with context, keeping its gRPC code.
// Errors without a status become INTERNAL.
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)
	if s, ok := status.FromError(err); ok {
		return status.Errorf(s.Code(), "%s: %s", msg, s.Message())
	}
	return status.Errorf(codes.Internal, "%s: %v", msg, err)
}

// Describe renders a client-side RPC error for humans.
func Describe(err error) string {
	s, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	switch s.Code() {
	case codes.Unavailable:
		return "server unavailable: " + s.Message()
	case codes.DeadlineExceeded:
		return "request timed out"
	default:
		return s.Message()
	}
}

// IsNotFound checks if an error is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsInvalidArgument checks if an error is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}

// IsUnavailable checks if an error is an UNAVAILABLE error.
func IsUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
