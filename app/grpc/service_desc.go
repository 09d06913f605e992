package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "mailer.v1.EmailQueue"

// EmailQueueServer is the server API of mailer.v1.EmailQueue. Messages use
// the well-known Struct and Empty types.
type EmailQueueServer interface {
	Enqueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	PauseQueue(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	ResumeQueue(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	ClearFailedJobs(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var EmailQueueServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EmailQueueServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Enqueue", Handler: enqueueHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "PauseQueue", Handler: pauseQueueHandler},
		{MethodName: "ResumeQueue", Handler: resumeQueueHandler},
		{MethodName: "ClearFailedJobs", Handler: clearFailedJobsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mailer/v1/email_queue.proto",
}

// RegisterEmailQueueServer registers srv on s.
func RegisterEmailQueueServer(s grpc.ServiceRegistrar, srv EmailQueueServer) {
	s.RegisterService(&EmailQueueServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func enqueueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmailQueueServer).Enqueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Enqueue")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmailQueueServer).Enqueue(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmailQueueServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetStats")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmailQueueServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func pauseQueueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmailQueueServer).PauseQueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("PauseQueue")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmailQueueServer).PauseQueue(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func resumeQueueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmailQueueServer).ResumeQueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ResumeQueue")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmailQueueServer).ResumeQueue(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func clearFailedJobsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmailQueueServer).ClearFailedJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ClearFailedJobs")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmailQueueServer).ClearFailedJobs(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// EmailQueueClient calls mailer.v1.EmailQueue over cc.
type EmailQueueClient struct {
	cc grpc.ClientConnInterface
}

func NewEmailQueueClient(cc grpc.ClientConnInterface) *EmailQueueClient {
	return &EmailQueueClient{cc: cc}
}

func (c *EmailQueueClient) Enqueue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Enqueue"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EmailQueueClient) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetStats"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EmailQueueClient) PauseQueue(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("PauseQueue"), &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *EmailQueueClient) ResumeQueue(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("ResumeQueue"), &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *EmailQueueClient) ClearFailedJobs(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ClearFailedJobs"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
