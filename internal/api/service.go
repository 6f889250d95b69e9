// Package api describes the gophvault.RecordStore gRPC service. Messages are
// protobuf well-known types (Struct, BytesValue, StringValue, Empty), so the
// service needs no generated code; this file plays the role of the
// generated _grpc.pb.go.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gophvault.RecordStore"

// Full method names.
const (
	MethodRegister     = "/" + ServiceName + "/Register"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefreshToken = "/" + ServiceName + "/RefreshToken"
	MethodGetParams    = "/" + ServiceName + "/GetParams"
	MethodPutParams    = "/" + ServiceName + "/PutParams"
	MethodInsert       = "/" + ServiceName + "/Insert"
	MethodFetchAll     = "/" + ServiceName + "/FetchAll"
	MethodUpdate       = "/" + ServiceName + "/Update"
	MethodDelete       = "/" + ServiceName + "/Delete"
	MethodReplaceBlobs = "/" + ServiceName + "/ReplaceBlobs"
)

// PublicMethods do not require an access token.
var PublicMethods = map[string]bool{
	MethodRegister:     true,
	MethodLogin:        true,
	MethodRefreshToken: true,
}

// RecordStoreServer is implemented by the server.
//
//	Register     Struct{username, password}          -> Empty
//	Login        Struct{username, password}          -> Struct{owner_id, access_token, refresh_token}
//	RefreshToken StringValue(refresh token)          -> Struct{owner_id, access_token, refresh_token}
//	GetParams    Empty                               -> Struct{salt, iterations, cipher, canary}
//	PutParams    Struct{salt, iterations, cipher, canary} -> Empty
//	Insert       BytesValue(blob)                    -> StringValue(record id)
//	FetchAll     Empty                               -> stream Struct{id, blob, created_at, updated_at}
//	Update       Struct{id, blob}                    -> Empty
//	Delete       StringValue(record id)              -> Empty
//	ReplaceBlobs Struct{<record id>: blob, ...}      -> Empty, all or nothing
//
// Everything but Register, Login and RefreshToken acts on the owner named
// by the access token.
type RecordStoreServer interface {
	Register(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetParams(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PutParams(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Insert(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	FetchAll(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	ReplaceBlobs(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterRecordStoreServer registers srv on s.
func RegisterRecordStoreServer(s grpc.ServiceRegistrar, srv RecordStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any, Resp any](method string, call func(RecordStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecordStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fetchAllHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecordStoreServer).FetchAll(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc for gophvault.RecordStore.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(MethodRegister, RecordStoreServer.Register)},
		{MethodName: "Login", Handler: unary(MethodLogin, RecordStoreServer.Login)},
		{MethodName: "RefreshToken", Handler: unary(MethodRefreshToken, RecordStoreServer.RefreshToken)},
		{MethodName: "GetParams", Handler: unary(MethodGetParams, RecordStoreServer.GetParams)},
		{MethodName: "PutParams", Handler: unary(MethodPutParams, RecordStoreServer.PutParams)},
		{MethodName: "Insert", Handler: unary(MethodInsert, RecordStoreServer.Insert)},
		{MethodName: "Update", Handler: unary(MethodUpdate, RecordStoreServer.Update)},
		{MethodName: "Delete", Handler: unary(MethodDelete, RecordStoreServer.Delete)},
		{MethodName: "ReplaceBlobs", Handler: unary(MethodReplaceBlobs, RecordStoreServer.ReplaceBlobs)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "FetchAll", Handler: fetchAllHandler, ServerStreams: true},
	},
	Metadata: "gophvault/recordstore",
}

// RecordStoreClient is the client side of gophvault.RecordStore.
type RecordStoreClient struct {
	cc grpc.ClientConnInterface
}

// NewRecordStoreClient binds a client to a connection.
func NewRecordStoreClient(cc grpc.ClientConnInterface) *RecordStoreClient {
	return &RecordStoreClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordStoreClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodRegister, in, opts...)
}

func (c *RecordStoreClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, MethodLogin, in, opts...)
}

func (c *RecordStoreClient) RefreshToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, MethodRefreshToken, in, opts...)
}

func (c *RecordStoreClient) GetParams(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, MethodGetParams, in, opts...)
}

func (c *RecordStoreClient) PutParams(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodPutParams, in, opts...)
}

func (c *RecordStoreClient) Insert(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, MethodInsert, in, opts...)
}

func (c *RecordStoreClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodUpdate, in, opts...)
}

func (c *RecordStoreClient) Delete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodDelete, in, opts...)
}

func (c *RecordStoreClient) ReplaceBlobs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodReplaceBlobs, in, opts...)
}

func (c *RecordStoreClient) FetchAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodFetchAll, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
