package backend

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified name of the Backend service.
const ServiceName = "backend.Backend"

// Full method names of the Backend service.
const (
	HealthMethod    = "/" + ServiceName + "/Health"
	LoadModelMethod = "/" + ServiceName + "/LoadModel"
	TTSMethod       = "/" + ServiceName + "/TTS"
)

// BackendServer is the server API of the Backend service.
type BackendServer interface {
	Health(ctx context.Context, req *HealthMessage) (*Reply, error)
	LoadModel(ctx context.Context, req *ModelOptions) (*Result, error)
	TTS(ctx context.Context, req *TTSRequest) (*Result, error)
}

// BackendClient is the client API of the Backend service.
type BackendClient interface {
	Health(ctx context.Context, req *HealthMessage, opts ...grpc.CallOption) (*Reply, error)
	LoadModel(ctx context.Context, req *ModelOptions, opts ...grpc.CallOption) (*Result, error)
	TTS(ctx context.Context, req *TTSRequest, opts ...grpc.CallOption) (*Result, error)
}

// ServiceDesc describes the Backend service to a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{ //nolint:gochecknoglobals
	ServiceName: ServiceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
		{MethodName: "LoadModel", Handler: loadModelHandler},
		{MethodName: "TTS", Handler: ttsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "backend.proto",
}

// RegisterBackendServer registers srv on the given registrar.
func RegisterBackendServer(registrar grpc.ServiceRegistrar, srv BackendServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func healthHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	req := new(HealthMessage)

	err := dec(req)
	if err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(BackendServer).Health(ctx, req)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HealthMethod}
	handler := func(ctx context.Context, in any) (any, error) {
		return srv.(BackendServer).Health(ctx, in.(*HealthMessage))
	}

	return interceptor(ctx, req, info, handler)
}

func loadModelHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	req := new(ModelOptions)

	err := dec(req)
	if err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(BackendServer).LoadModel(ctx, req)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LoadModelMethod}
	handler := func(ctx context.Context, in any) (any, error) {
		return srv.(BackendServer).LoadModel(ctx, in.(*ModelOptions))
	}

	return interceptor(ctx, req, info, handler)
}

func ttsHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	req := new(TTSRequest)

	err := dec(req)
	if err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(BackendServer).TTS(ctx, req)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TTSMethod}
	handler := func(ctx context.Context, in any) (any, error) {
		return srv.(BackendServer).TTS(ctx, in.(*TTSRequest))
	}

	return interceptor(ctx, req, info, handler)
}

type backendClient struct {
	conn grpc.ClientConnInterface
}

// NewBackendClient returns a client for the Backend service on conn.
func NewBackendClient(conn grpc.ClientConnInterface) BackendClient {
	return &backendClient{conn: conn}
}

func (c *backendClient) Health(ctx context.Context, req *HealthMessage, opts ...grpc.CallOption) (*Reply, error) {
	out := new(Reply)

	err := c.conn.Invoke(ctx, HealthMethod, req, out, opts...)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *backendClient) LoadModel(ctx context.Context, req *ModelOptions, opts ...grpc.CallOption) (*Result, error) {
	out := new(Result)

	err := c.conn.Invoke(ctx, LoadModelMethod, req, out, opts...)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *backendClient) TTS(ctx context.Context, req *TTSRequest, opts ...grpc.CallOption) (*Result, error) {
	out := new(Result)

	err := c.conn.Invoke(ctx, TTSMethod, req, out, opts...)
	if err != nil {
		return nil, err
	}

	return out, nil
}
