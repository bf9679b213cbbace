package grpcapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/threatlens/internal/identity"
)

const maxGatewayBody = 2 << 20

// NewGateway returns a grpc-gateway mux proxying JSON requests to the gRPC
// service behind cc:
//
//	POST /v1/analyze   -> Analyze
//	GET  /v1/patterns  -> ListPatterns
//
// Authorization and x-user-id headers are forwarded as metadata.
func NewGateway(cc grpc.ClientConnInterface, logger *zap.Logger) (*runtime.ServeMux, error) {
	marshaler := &runtime.JSONPb{
		MarshalOptions: protojson.MarshalOptions{
			UseProtoNames:   true,
			EmitUnpopulated: false,
		},
		UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
	}
	mux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, marshaler),
	)

	if err := mux.HandlePath(http.MethodPost, "/v1/analyze", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxGatewayBody))
		if err != nil {
			runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
			return
		}
		in := new(structpb.Struct)
		if err := protojson.Unmarshal(body, in); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		out := new(structpb.Struct)
		if err := cc.Invoke(outgoing(r), analyzeMethod, in, out); err != nil {
			logger.Debug("gateway analyze failed", zap.Error(err))
			runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
			return
		}
		writeStruct(w, out)
	}); err != nil {
		return nil, fmt.Errorf("register /v1/analyze: %w", err)
	}

	if err := mux.HandlePath(http.MethodGet, "/v1/patterns", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		out := new(structpb.Struct)
		if err := cc.Invoke(outgoing(r), listPatternsMethod, &emptypb.Empty{}, out); err != nil {
			runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
			return
		}
		writeStruct(w, out)
	}); err != nil {
		return nil, fmt.Errorf("register /v1/patterns: %w", err)
	}

	return mux, nil
}

// outgoing copies the forwarded headers into gRPC metadata. HandlePath
// handlers skip the gateway's header annotation.
func outgoing(r *http.Request) context.Context {
	pairs := make([]string, 0, 4)
	for _, h := range []string{"Authorization", identity.UserIDHeader} {
		if v := r.Header.Get(h); v != "" {
			pairs = append(pairs, strings.ToLower(h), v)
		}
	}
	if len(pairs) == 0 {
		return r.Context()
	}
	return metadata.NewOutgoingContext(r.Context(), metadata.Pairs(pairs...))
}

// writeStruct writes the struct as plain JSON. Struct field names are the
// API's own camelCase keys so the proto-name option has no effect here.
func writeStruct(w http.ResponseWriter, s *structpb.Struct) {
	data, err := protojson.Marshal(s)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	data, _ := protojson.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"error": structpb.NewStringValue(msg),
	}})
	w.Write(data) //nolint:errcheck
}
