package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/identity"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenSource returns the access token to attach to a protected call.
type TokenSource func() (string, error)

// vaultStoreAPI is the subset of api.VaultStoreClient the client uses.
type vaultStoreAPI interface {
	Ping(ctx context.Context, in *api.PingRequest, opts ...grpc.CallOption) (*api.PingResponse, error)
	SignUp(ctx context.Context, in *api.SignUpRequest, opts ...grpc.CallOption) (*api.SignUpResponse, error)
	SignIn(ctx context.Context, in *api.SignInRequest, opts ...grpc.CallOption) (*api.SignInResponse, error)
	GetConfig(ctx context.Context, in *api.GetConfigRequest, opts ...grpc.CallOption) (*api.GetConfigResponse, error)
	PutConfig(ctx context.Context, in *api.PutConfigRequest, opts ...grpc.CallOption) (*api.PutConfigResponse, error)
	ListRecords(ctx context.Context, in *api.ListRecordsRequest, opts ...grpc.CallOption) (*api.ListRecordsResponse, error)
	PutRecord(ctx context.Context, in *api.PutRecordRequest, opts ...grpc.CallOption) (*api.PutRecordResponse, error)
	DeleteRecord(ctx context.Context, in *api.DeleteRecordRequest, opts ...grpc.CallOption) (*api.DeleteRecordResponse, error)
	Rotate(ctx context.Context, in *api.RotateRequest, opts ...grpc.CallOption) (*api.RotateResponse, error)
}

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      vaultStoreAPI

	mu     sync.RWMutex
	tokens TokenSource
}

var (
	_ store.RecordStore      = (*GRPCClient)(nil)
	_ identity.Authenticator = (*GRPCClient)(nil)
)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if api.PublicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	s.mu.RLock()
	tokens := s.tokens
	s.mu.RUnlock()
	if tokens == nil {
		return common.ErrUnauthorized
	}

	token, err := tokens()
	if err != nil {
		return err
	}

	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// NewGRPCClient dials endpointURL lazily. A zero timeout disables the
// per-call deadline.
func NewGRPCClient(endpointURL string, timeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(extra ...grpc.DialOption) error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, extra...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewVaultStoreClient(conn)
	return nil
}

// SetTokenSource installs the function that supplies access tokens, usually
// identity.Session.Token.
func (s *GRPCClient) SetTokenSource(ts TokenSource) {
	s.mu.Lock()
	s.tokens = ts
	s.mu.Unlock()
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) SignUp(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	resp, err := s.client.SignUp(ctx, &api.SignUpRequest{Username: username, Password: password})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.UserID, nil
}

func (s *GRPCClient) SignIn(ctx context.Context, username, password string) (*api.SignInResponse, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	resp, err := s.client.SignIn(ctx, &api.SignInRequest{Username: username, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) GetConfig(ctx context.Context, _ string) (*models.VaultConfig, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	resp, err := s.client.GetConfig(ctx, &api.GetConfigRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Config, nil
}

func (s *GRPCClient) PutConfig(ctx context.Context, _ string, cfg models.VaultConfig) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.client.PutConfig(ctx, &api.PutConfigRequest{Config: cfg})
	return s.mapError(err)
}

func (s *GRPCClient) ListRecords(ctx context.Context, _ string) ([]models.EncryptedRecord, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	resp, err := s.client.ListRecords(ctx, &api.ListRecordsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Records, nil
}

func (s *GRPCClient) PutRecord(ctx context.Context, _ string, rec models.EncryptedRecord) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.client.PutRecord(ctx, &api.PutRecordRequest{Record: rec})
	return s.mapError(err)
}

func (s *GRPCClient) DeleteRecord(ctx context.Context, _ string, id string) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.client.DeleteRecord(ctx, &api.DeleteRecordRequest{ID: id})
	return s.mapError(err)
}

func (s *GRPCClient) Rotate(ctx context.Context, _ string, cfg models.VaultConfig, records []models.EncryptedRecord) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.client.Rotate(ctx, &api.RotateRequest{Config: cfg, Records: records})
	return s.mapError(err)
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return common.ErrNotFound
	case codes.AlreadyExists:
		return common.ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrMalformed, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
