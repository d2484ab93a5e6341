package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Relay method names and the gRPC route they travel on.
const (
	RPCService   = "wlanmigrate.v1.MigrationBackend"
	RPCCallRoute = "/" + RPCService + "/Call"

	MethodConnectSource   = "backend.connect_source"
	MethodConnectTarget   = "backend.connect_target"
	MethodConvert         = "backend.convert"
	MethodExecute         = "backend.execute"
	MethodReset           = "backend.reset"
	MethodPollStatus      = "backend.poll_status"
	MethodFetchWorstSites = "backend.fetch_worst_sites"
)

// RPCRequest is a generic JSON-RPC-style request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a generic JSON-RPC-style response. Kind carries the
// core.ErrorKind of a failure so the client can rebuild it.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Kind   core.ErrorKind  `json:"kind,omitempty"`
}

// JSONCodec is the gRPC codec used on the relay route. Requests and replies
// are plain JSON so no generated stubs are needed.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// GRPCClient reaches a backend through wlanmigrate-relay.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialRelay connects to a relay at target. A nil creds dials without TLS.
func DialRelay(target string, creds credentials.TransportCredentials, opts ...grpc.DialOption) (*GRPCClient, error) {
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, params, out any) error {
	op := method
	req := RPCRequest{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return core.Validation(op, "encoding params: %v", err)
		}
		req.Params = raw
	}

	var resp RPCResponse
	if err := c.conn.Invoke(ctx, RPCCallRoute, &req, &resp); err != nil {
		return core.TransportFailure(op, err)
	}
	if resp.Error != "" {
		switch resp.Kind {
		case core.KindValidation:
			return core.Validation(op, "%s", resp.Error)
		case core.KindTransport:
			return core.TransportFailure(op, fmt.Errorf("%s", resp.Error))
		default:
			return core.BackendFailure(op, resp.Error)
		}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return core.BackendFailure(op, fmt.Sprintf("decoding relay result: %v", err))
	}
	return nil
}

func (c *GRPCClient) ConnectSource(ctx context.Context, creds core.SourceCredentials) (*core.SourceInventory, error) {
	var inv core.SourceInventory
	if err := c.invoke(ctx, MethodConnectSource, creds, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *GRPCClient) ConnectTarget(ctx context.Context, creds core.TargetCredentials) (*core.TargetInventory, error) {
	var inv core.TargetInventory
	if err := c.invoke(ctx, MethodConnectTarget, creds, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *GRPCClient) Convert(ctx context.Context, req ConvertRequest) (*core.ConversionResult, error) {
	var res core.ConversionResult
	if err := c.invoke(ctx, MethodConvert, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) Execute(ctx context.Context, req ExecuteRequest) (*core.ExecuteResult, error) {
	var res core.ExecuteResult
	if err := c.invoke(ctx, MethodExecute, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) Reset(ctx context.Context) error {
	return c.invoke(ctx, MethodReset, nil, nil)
}

func (c *GRPCClient) PollStatus(ctx context.Context) (core.StatusReport, error) {
	var rep core.StatusReport
	err := c.invoke(ctx, MethodPollStatus, nil, &rep)
	return rep, err
}

func (c *GRPCClient) FetchWorstSites(ctx context.Context) ([]core.WorstSite, error) {
	var sites []core.WorstSite
	if err := c.invoke(ctx, MethodFetchWorstSites, nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}
