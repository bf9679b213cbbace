// Package grpcapi serves the analysis service over gRPC and a grpc-gateway
// JSON proxy. Requests and responses travel as google.protobuf.Struct
// carrying the same JSON documents the HTTP API uses.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/identity"
	"github.com/jmerrifield20/threatlens/internal/pattern"
	"github.com/jmerrifield20/threatlens/internal/threat"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "threatlens.v1.AnalysisService"

const (
	analyzeMethod      = "/" + ServiceName + "/Analyze"
	listPatternsMethod = "/" + ServiceName + "/ListPatterns"
)

// AnalysisServiceServer is the server API for threatlens.v1.AnalysisService.
type AnalysisServiceServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPatterns(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes threatlens.v1.AnalysisService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "ListPatterns", Handler: listPatternsHandler},
	},
	Metadata: "threatlens/v1/analysis.proto",
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServiceServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServiceServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listPatternsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServiceServer).ListPatterns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listPatternsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServiceServer).ListPatterns(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements AnalysisServiceServer on top of analysis.Service.
type Server struct {
	svc    *analysis.Service
	logger *zap.Logger
}

// NewServer creates a Server.
func NewServer(svc *analysis.Service, logger *zap.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv AnalysisServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Analyze runs one analysis. The caller id comes from the identity
// interceptor.
func (s *Server) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req tm.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	resp, err := s.svc.AnalyzeThreatModel(ctx, &req, identity.UserIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(resp)
}

// ListPatterns returns the current pattern catalog.
func (s *Server) ListPatterns(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ps := s.svc.Matcher().Patterns()
	return toStruct(struct {
		Patterns []pattern.Pattern `json:"patterns"`
		Total    int               `json:"total"`
	}{ps, len(ps)})
}

func (s *Server) toStatus(err error) error {
	var ve *threat.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, analysis.ErrMethodologyNotImplemented):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error("grpc analysis failed", zap.Error(err))
	var se *threat.StageError
	if errors.As(err, &se) {
		return status.Errorf(codes.Internal, "analysis failed at stage %q", se.Stage)
	}
	return status.Error(codes.Internal, "internal error")
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Client is a thin typed client for AnalysisService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Analyze sends req and decodes the response.
func (c *Client) Analyze(ctx context.Context, req *tm.Request, opts ...grpc.CallOption) (*tm.Response, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	var resp tm.Response
	if err := fromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// ListPatterns returns the server's pattern catalog.
func (c *Client) ListPatterns(ctx context.Context, opts ...grpc.CallOption) ([]pattern.Pattern, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listPatternsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var body struct {
		Patterns []pattern.Pattern `json:"patterns"`
	}
	if err := fromStruct(out, &body); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	return body.Patterns, nil
}
