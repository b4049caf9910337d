package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/server/blobstore"
	"github.com/dmitrijs2005/keyvault/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK", ServerTime: s.now().UTC()}, nil
}

func (s *GRPCServer) SignUp(ctx context.Context, req *api.SignUpRequest) (*api.SignUpResponse, error) {

	s.logger.Info(ctx, "Sign-up request")

	account, err := s.accounts.SignUp(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Signed up", "user_id", account.ID)
	return &api.SignUpResponse{UserID: account.ID}, nil
}

func (s *GRPCServer) SignIn(ctx context.Context, req *api.SignInRequest) (*api.SignInResponse, error) {

	token, err := s.accounts.SignIn(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.SignInResponse{UserID: token.UserID, AccessToken: token.AccessToken, ExpiresAt: token.ExpiresAt}, nil
}

func (s *GRPCServer) GetConfig(ctx context.Context, req *api.GetConfigRequest) (*api.GetConfigResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := s.records.GetConfig(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.GetConfigResponse{Config: *cfg}, nil
}

func (s *GRPCServer) PutConfig(ctx context.Context, req *api.PutConfigRequest) (*api.PutConfigResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	cfg := req.Config
	cfg.UserID = userID
	if err := s.records.PutConfig(ctx, userID, cfg); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Vault created", "user_id", userID)
	return &api.PutConfigResponse{}, nil
}

func (s *GRPCServer) ListRecords(ctx context.Context, req *api.ListRecordsRequest) (*api.ListRecordsResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListRecords(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.ListRecordsResponse{Records: records}, nil
}

func (s *GRPCServer) PutRecord(ctx context.Context, req *api.PutRecordRequest) (*api.PutRecordResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.Record.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "record id is required")
	}

	if err := s.records.PutRecord(ctx, userID, req.Record); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.PutRecordResponse{}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *api.DeleteRecordRequest) (*api.DeleteRecordResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "record id is required")
	}

	if err := s.records.DeleteRecord(ctx, userID, req.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &api.DeleteRecordResponse{}, nil
}

func (s *GRPCServer) Rotate(ctx context.Context, req *api.RotateRequest) (*api.RotateResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range req.Records {
		if r.ID == "" {
			return nil, status.Error(codes.InvalidArgument, "record id is required")
		}
	}

	cfg := req.Config
	cfg.UserID = userID
	if err := s.records.Rotate(ctx, userID, cfg, req.Records); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Vault rotated", "user_id", userID, "records", len(req.Records))
	return &api.RotateResponse{}, nil
}

func userIDFrom(ctx context.Context) (string, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Internal, "no user in context")
	}
	return userID, nil
}

// toStatus maps domain errors onto gRPC codes. Anything unexpected is
// logged and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, services.ErrInvalidAccount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrMalformed):
		return status.Error(codes.InvalidArgument, "malformed data")
	case errors.Is(err, blobstore.ErrConcurrentUpdate):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		s.logger.Error(ctx, "request error", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
