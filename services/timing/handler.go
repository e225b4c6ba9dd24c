package timing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/instantcocoa/perftrace/pkg/grpcutil"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "perftrace.timing.v1.TimingService"

// TimingServer is the gRPC surface of the analysis service.
// Messages are google.protobuf.Struct values carrying the JSON form of
// AnalyzeInput, Analysis, ListQuery and ListResult.
type TimingServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAnalyses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// TimingServiceDesc describes TimingService for grpc.Server.RegisterService.
var TimingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TimingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unaryHandler("Analyze", TimingServer.Analyze)},
		{MethodName: "GetAnalysis", Handler: unaryHandler("GetAnalysis", TimingServer.GetAnalysis)},
		{MethodName: "ListAnalyses", Handler: unaryHandler("ListAnalyses", TimingServer.ListAnalyses)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "perftrace/timing/v1/timing.proto",
}

func unaryHandler(method string, call func(TimingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TimingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TimingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Handler implements TimingServer on top of Service.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new timing service handler.
func NewHandler(logger *slog.Logger, svc *Service) *Handler {
	return &Handler{
		logger:  logger.With("component", "handler"),
		service: svc,
	}
}

// Register registers the handler with a gRPC server.
func (h *Handler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&TimingServiceDesc, h)
}

// Analyze runs and stores an analysis.
func (h *Handler) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in AnalyzeInput
	if err := fromStruct(req, &in); err != nil {
		return nil, grpcutil.InvalidArgumentError("request", err.Error())
	}

	h.logger.InfoContext(ctx, "analyzing capture", "name", in.Name, "records", len(in.Records))

	a, err := h.service.Analyze(ctx, in)
	if err != nil {
		return nil, h.toStatus(ctx, "analyze", err)
	}
	return toStruct(a)
}

// GetAnalysis returns a stored analysis.
func (h *Handler) GetAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, grpcutil.InvalidArgumentError("id", "must not be empty")
	}

	a, err := h.service.GetAnalysis(ctx, id)
	if errors.Is(err, ErrAnalysisNotFound) {
		return nil, grpcutil.NotFoundError("analysis", id)
	}
	if err != nil {
		return nil, h.toStatus(ctx, "get analysis", err)
	}
	return toStruct(a)
}

// ListAnalyses lists stored analyses.
func (h *Handler) ListAnalyses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var q ListQuery
	if err := fromStruct(req, &q); err != nil {
		return nil, grpcutil.InvalidArgumentError("request", err.Error())
	}

	res, err := h.service.ListAnalyses(ctx, q)
	if err != nil {
		return nil, h.toStatus(ctx, "list analyses", err)
	}
	return toStruct(res)
}

func (h *Handler) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrAnalysisNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		h.logger.ErrorContext(ctx, "failed to "+op, "error", err)
		return grpcutil.InternalError(err)
	}
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	return json.Unmarshal(data, v)
}

// Client calls a remote TimingService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in interface{}, out interface{}) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// Analyze submits a capture for analysis.
func (c *Client) Analyze(ctx context.Context, in AnalyzeInput) (*Analysis, error) {
	var a Analysis
	if err := c.invoke(ctx, "Analyze", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnalysis fetches a stored analysis.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	var a Analysis
	if err := c.invoke(ctx, "GetAnalysis", map[string]string{"id": id}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses lists stored analyses.
func (c *Client) ListAnalyses(ctx context.Context, q ListQuery) (*ListResult, error) {
	var res ListResult
	if err := c.invoke(ctx, "ListAnalyses", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
