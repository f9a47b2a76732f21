package agent

import (
	"context"

	"github.com/ashureev/carolina/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var agentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Responder)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Respond", Handler: respondHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carolina/agent/v1/agent.proto",
}

// RegisterResponder serves r as the agent service on s.
func RegisterResponder(s grpc.ServiceRegistrar, r Responder) {
	s.RegisterService(&agentServiceDesc, r)
}

func respondHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	r := srv.(Responder)
	if interceptor == nil {
		return serveRespond(ctx, r, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: respondMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return serveRespond(ctx, r, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func serveRespond(ctx context.Context, r Responder, in *structpb.Struct) (*structpb.Struct, error) {
	req := requestFromStruct(in)
	if req.Message == "" {
		return nil, status.Error(codes.InvalidArgument, "message is required")
	}
	reply, err := r.Respond(ctx, req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := replyToStruct(reply)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func roleOf(s string) domain.Role {
	if r := domain.Role(s); r.Valid() {
		return r
	}
	return domain.RoleUser
}
