// handler.go implements a JSON-RPC-style handler over gRPC unary calls.
// Requests and replies travel as JSON through backend.JSONCodec, so the relay
// needs no protoc code generation.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Handler dispatches JSON-RPC requests to the Service.
type Handler struct {
	service  *Service
	dispatch map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NewHandler creates a handler backed by the given service.
func NewHandler(svc *Service) *Handler {
	h := &Handler{service: svc}
	h.dispatch = map[string]handlerFunc{
		backend.MethodConnectSource:   h.handleConnectSource,
		backend.MethodConnectTarget:   h.handleConnectTarget,
		backend.MethodConvert:         h.handleConvert,
		backend.MethodExecute:         h.handleExecute,
		backend.MethodReset:           h.handleReset,
		backend.MethodPollStatus:      h.handlePollStatus,
		backend.MethodFetchWorstSites: h.handleFetchWorstSites,

		"relay.stats": h.handleStats,
	}
	return h
}

// Handle processes a JSON-RPC request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *backend.RPCRequest) *backend.RPCResponse {
	fn, ok := h.dispatch[req.Method]
	if !ok {
		return &backend.RPCResponse{Error: fmt.Sprintf("unknown method: %s", req.Method), Kind: core.KindValidation}
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		return errorResponse(err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return &backend.RPCResponse{Error: fmt.Sprintf("encoding result: %v", err), Kind: core.KindBackend}
	}
	return &backend.RPCResponse{Result: resultJSON}
}

// errorResponse carries the message without the relay-side op prefix so the
// client can rebuild the error under its own op.
func errorResponse(err error) *backend.RPCResponse {
	var e *core.Error
	if errors.As(err, &e) {
		return &backend.RPCResponse{Error: e.Message, Kind: e.Kind}
	}
	return &backend.RPCResponse{Error: err.Error(), Kind: core.KindBackend}
}

// RegisterWithGRPC registers the handler under backend.RPCService. The server
// must be built with ServerOptions so the JSON codec is in force.
func (h *Handler) RegisterWithGRPC(s *grpc.Server) {
	sd := grpc.ServiceDesc{
		ServiceName: backend.RPCService,
		HandlerType: (*relayServiceHandler)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Call",
				Handler:    h.grpcCallHandler,
			},
		},
		Streams: []grpc.StreamDesc{},
	}
	s.RegisterService(&sd, h)
}

// relayServiceHandler is the interface type for gRPC service registration.
type relayServiceHandler interface{}

func (h *Handler) grpcCallHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req backend.RPCRequest
	if err := dec(&req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if interceptor == nil {
		return h.Handle(ctx, &req), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: backend.RPCCallRoute}
	return interceptor(ctx, &req, info, func(ctx context.Context, r any) (any, error) {
		return h.Handle(ctx, r.(*backend.RPCRequest)), nil
	})
}

// --- Handler implementations ---

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return core.Validation("", "missing params")
	}
	if err := json.Unmarshal(params, out); err != nil {
		return core.Validation("", "invalid params: %v", err)
	}
	return nil
}

func (h *Handler) handleConnectSource(ctx context.Context, params json.RawMessage) (any, error) {
	var creds core.SourceCredentials
	if err := decodeParams(params, &creds); err != nil {
		return nil, err
	}
	return h.service.ConnectSource(ctx, creds)
}

func (h *Handler) handleConnectTarget(ctx context.Context, params json.RawMessage) (any, error) {
	var creds core.TargetCredentials
	if err := decodeParams(params, &creds); err != nil {
		return nil, err
	}
	return h.service.ConnectTarget(ctx, creds)
}

func (h *Handler) handleConvert(ctx context.Context, params json.RawMessage) (any, error) {
	var req backend.ConvertRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return h.service.Convert(ctx, req)
}

func (h *Handler) handleExecute(ctx context.Context, params json.RawMessage) (any, error) {
	var req backend.ExecuteRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return h.service.Execute(ctx, req)
}

func (h *Handler) handleReset(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]bool{"success": true}, h.service.Reset(ctx)
}

func (h *Handler) handlePollStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.service.PollStatus(ctx)
}

func (h *Handler) handleFetchWorstSites(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.service.FetchWorstSites(ctx)
}

func (h *Handler) handleStats(_ context.Context, _ json.RawMessage) (any, error) {
	return h.service.Stats(), nil
}
