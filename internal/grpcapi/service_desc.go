// Package grpcapi exposes the collaborator task lifecycle over gRPC.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated stubs; the method table below is registered by hand.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "collab.v1.CollaboratorService"

// Method names
const (
	MethodGetTask              = "GetTask"
	MethodListTasks            = "ListTasks"
	MethodChangeTaskStatus     = "ChangeTaskStatus"
	MethodBulkChangeTaskStatus = "BulkChangeTaskStatus"
	MethodSaveTrackedTime      = "SaveTrackedTime"
	MethodSubmitDeliverable    = "SubmitDeliverable"
	MethodListSubmissions      = "ListSubmissions"
	MethodReviewTask           = "ReviewTask"
	MethodGetLeaderboard       = "GetLeaderboard"
)

// FullMethod returns the "/service/method" path of a method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// CollaboratorServer is the server API for the collaborator service
type CollaboratorServer interface {
	GetTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeTaskStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkChangeTaskStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveTrackedTime(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitDeliverable(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSubmissions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReviewTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CollaboratorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CollaboratorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CollaboratorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for the collaborator service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollaboratorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodGetTask, CollaboratorServer.GetTask),
		unaryHandler(MethodListTasks, CollaboratorServer.ListTasks),
		unaryHandler(MethodChangeTaskStatus, CollaboratorServer.ChangeTaskStatus),
		unaryHandler(MethodBulkChangeTaskStatus, CollaboratorServer.BulkChangeTaskStatus),
		unaryHandler(MethodSaveTrackedTime, CollaboratorServer.SaveTrackedTime),
		unaryHandler(MethodSubmitDeliverable, CollaboratorServer.SubmitDeliverable),
		unaryHandler(MethodListSubmissions, CollaboratorServer.ListSubmissions),
		unaryHandler(MethodReviewTask, CollaboratorServer.ReviewTask),
		unaryHandler(MethodGetLeaderboard, CollaboratorServer.GetLeaderboard),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "collab/v1/collaborator.proto",
}

// RegisterCollaboratorServer registers srv on s
func RegisterCollaboratorServer(s grpc.ServiceRegistrar, srv CollaboratorServer) {
	s.RegisterService(&ServiceDesc, srv)
}
