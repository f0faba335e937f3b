package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"strategylab/services/runner"
)

// CodecName is the gRPC content subtype the backtest service speaks. Messages are the
// same JSON documents the HTTP API accepts.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "strategylab.v1.BacktestService"

type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BatchResponse, error)
	GetBacktest(context.Context, *JobRequest) (*runner.Response, error)
}

// UnimplementedBacktestServiceServer can be embedded for forward compatibility.
type UnimplementedBacktestServiceServer struct{}

func (UnimplementedBacktestServiceServer) ExecuteBacktest(context.Context, *BacktestRequest) (*BatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ExecuteBacktest not implemented")
}

func (UnimplementedBacktestServiceServer) GetBacktest(context.Context, *JobRequest) (*runner.Response, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBacktest not implemented")
}

func RegisterBacktestServiceServer(s grpc.ServiceRegistrar, srv BacktestServiceServer) {
	s.RegisterService(&BacktestService_ServiceDesc, srv)
}

func executeBacktestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BacktestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ExecuteBacktest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, req.(*BacktestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBacktestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(JobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).GetBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetBacktest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BacktestServiceServer).GetBacktest(ctx, req.(*JobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var BacktestService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteBacktest", Handler: executeBacktestHandler},
		{MethodName: "GetBacktest", Handler: getBacktestHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strategylab/backtest.json",
}

type BacktestServiceClient interface {
	ExecuteBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BatchResponse, error)
	GetBacktest(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*runner.Response, error)
}

type backtestServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBacktestServiceClient(cc grpc.ClientConnInterface) BacktestServiceClient {
	return &backtestServiceClient{cc: cc}
}

func (c *backtestServiceClient) ExecuteBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BatchResponse, error) {
	out := new(BatchResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ExecuteBacktest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backtestServiceClient) GetBacktest(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*runner.Response, error) {
	out := new(runner.Response)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetBacktest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusError converts a run error into a gRPC status carrying the API error code.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	api := runner.Classify(err)
	var c codes.Code
	switch api.Code {
	case runner.CodeInvalidStrategy, runner.CodeInvalidParams:
		c = codes.InvalidArgument
	case runner.CodeDataNotFound:
		c = codes.NotFound
	case runner.CodeTimeout:
		c = codes.DeadlineExceeded
	case runner.CodeOverloaded:
		c = codes.ResourceExhausted
	default:
		c = codes.Internal
	}
	return status.Error(c, api.Error())
}
