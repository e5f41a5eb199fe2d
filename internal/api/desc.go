package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "driftpro.v1.ChatStore"

// Method names. Every request is a structpb.Struct of named arguments.
const (
	MethodListMessages    = "ListMessages"
	MethodAddMessage      = "AddMessage"
	MethodUpdateSummary   = "UpdateSummary"
	MethodAddReader       = "AddReader"
	MethodAdvanceStatus   = "AdvanceStatus"
	MethodDeleteMessage   = "DeleteMessage"
	MethodMessagesNotFrom = "MessagesNotFrom"
	MethodSearchMessages  = "SearchMessages"
	MethodCreateChat      = "CreateChat"
	MethodListChats       = "ListChats"
	MethodGetChat         = "GetChat"
	MethodSetTyping       = "SetTyping"
	MethodStatus          = "Status"

	StreamWatchMessages = "WatchMessages"
	StreamWatchTyping   = "WatchTyping"
)

// FullMethod returns the invoke path for a method name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type unaryFunc func(*Service, context.Context, *structpb.Struct) (proto.Message, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(*Service)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}

type streamFunc func(*Service, *structpb.Struct, grpc.ServerStream) error

func serverStream(name string, call streamFunc) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName: name,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(*Service), in, stream)
		},
		ServerStreams: true,
	}
}

// ServiceDesc describes the ChatStore service for both server registration
// and client stream setup.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodListMessages, (*Service).listMessages),
		unary(MethodAddMessage, (*Service).addMessage),
		unary(MethodUpdateSummary, (*Service).updateSummary),
		unary(MethodAddReader, (*Service).addReader),
		unary(MethodAdvanceStatus, (*Service).advanceStatus),
		unary(MethodDeleteMessage, (*Service).deleteMessage),
		unary(MethodMessagesNotFrom, (*Service).messagesNotFrom),
		unary(MethodSearchMessages, (*Service).searchMessages),
		unary(MethodCreateChat, (*Service).createChat),
		unary(MethodListChats, (*Service).listChats),
		unary(MethodGetChat, (*Service).getChat),
		unary(MethodSetTyping, (*Service).setTyping),
		unary(MethodStatus, (*Service).status),
	},
	Streams: []grpc.StreamDesc{
		serverStream(StreamWatchMessages, (*Service).watchMessages),
		serverStream(StreamWatchTyping, (*Service).watchTyping),
	},
	Metadata: "driftpro/v1/chat_store",
}

// StreamDesc returns the descriptor of a server stream by name.
func StreamDesc(name string) *grpc.StreamDesc {
	for i := range ServiceDesc.Streams {
		if ServiceDesc.Streams[i].StreamName == name {
			return &ServiceDesc.Streams[i]
		}
	}
	return nil
}

// Register attaches svc to s.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&ServiceDesc, svc)
}
