package api

import (
	"context"

	"google.golang.org/grpc"
)

// VaultStoreClient is the client side of VaultStoreServer.
type VaultStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewVaultStoreClient(cc grpc.ClientConnInterface) *VaultStoreClient {
	return &VaultStoreClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VaultStoreClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *VaultStoreClient) SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*SignUpResponse, error) {
	return invoke[SignUpResponse](ctx, c.cc, MethodSignUp, in, opts)
}

func (c *VaultStoreClient) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*SignInResponse, error) {
	return invoke[SignInResponse](ctx, c.cc, MethodSignIn, in, opts)
}

func (c *VaultStoreClient) GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*GetConfigResponse, error) {
	return invoke[GetConfigResponse](ctx, c.cc, MethodGetConfig, in, opts)
}

func (c *VaultStoreClient) PutConfig(ctx context.Context, in *PutConfigRequest, opts ...grpc.CallOption) (*PutConfigResponse, error) {
	return invoke[PutConfigResponse](ctx, c.cc, MethodPutConfig, in, opts)
}

func (c *VaultStoreClient) ListRecords(ctx context.Context, in *ListRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	return invoke[ListRecordsResponse](ctx, c.cc, MethodListRecords, in, opts)
}

func (c *VaultStoreClient) PutRecord(ctx context.Context, in *PutRecordRequest, opts ...grpc.CallOption) (*PutRecordResponse, error) {
	return invoke[PutRecordResponse](ctx, c.cc, MethodPutRecord, in, opts)
}

func (c *VaultStoreClient) DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error) {
	return invoke[DeleteRecordResponse](ctx, c.cc, MethodDeleteRecord, in, opts)
}

func (c *VaultStoreClient) Rotate(ctx context.Context, in *RotateRequest, opts ...grpc.CallOption) (*RotateResponse, error) {
	return invoke[RotateResponse](ctx, c.cc, MethodRotate, in, opts)
}
