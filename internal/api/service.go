package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "keyvault.v1.VaultStore"

const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodSignUp       = "/" + ServiceName + "/SignUp"
	MethodSignIn       = "/" + ServiceName + "/SignIn"
	MethodGetConfig    = "/" + ServiceName + "/GetConfig"
	MethodPutConfig    = "/" + ServiceName + "/PutConfig"
	MethodListRecords  = "/" + ServiceName + "/ListRecords"
	MethodPutRecord    = "/" + ServiceName + "/PutRecord"
	MethodDeleteRecord = "/" + ServiceName + "/DeleteRecord"
	MethodRotate       = "/" + ServiceName + "/Rotate"
)

// PublicMethods can be called without an access token.
var PublicMethods = map[string]bool{
	MethodPing:   true,
	MethodSignUp: true,
	MethodSignIn: true,
}

// VaultStoreServer is implemented by the server. Every method except the
// public ones acts on the user carried by the access token.
type VaultStoreServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	SignUp(context.Context, *SignUpRequest) (*SignUpResponse, error)
	SignIn(context.Context, *SignInRequest) (*SignInResponse, error)
	GetConfig(context.Context, *GetConfigRequest) (*GetConfigResponse, error)
	PutConfig(context.Context, *PutConfigRequest) (*PutConfigResponse, error)
	ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error)
	PutRecord(context.Context, *PutRecordRequest) (*PutRecordResponse, error)
	DeleteRecord(context.Context, *DeleteRecordRequest) (*DeleteRecordResponse, error)
	Rotate(context.Context, *RotateRequest) (*RotateResponse, error)
}

func RegisterVaultStoreServer(s grpc.ServiceRegistrar, srv VaultStoreServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(MethodPing, VaultStoreServer.Ping)},
		{MethodName: "SignUp", Handler: unary(MethodSignUp, VaultStoreServer.SignUp)},
		{MethodName: "SignIn", Handler: unary(MethodSignIn, VaultStoreServer.SignIn)},
		{MethodName: "GetConfig", Handler: unary(MethodGetConfig, VaultStoreServer.GetConfig)},
		{MethodName: "PutConfig", Handler: unary(MethodPutConfig, VaultStoreServer.PutConfig)},
		{MethodName: "ListRecords", Handler: unary(MethodListRecords, VaultStoreServer.ListRecords)},
		{MethodName: "PutRecord", Handler: unary(MethodPutRecord, VaultStoreServer.PutRecord)},
		{MethodName: "DeleteRecord", Handler: unary(MethodDeleteRecord, VaultStoreServer.DeleteRecord)},
		{MethodName: "Rotate", Handler: unary(MethodRotate, VaultStoreServer.Rotate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keyvault/v1/vault_store",
}

// unary adapts a typed server method to grpc.MethodHandler, running the
// configured interceptor chain the way generated code does.
func unary[Req, Resp any](fullMethod string, call func(VaultStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VaultStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VaultStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
