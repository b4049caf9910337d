package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/server/auth"
	"github.com/dmitrijs2005/keyvault/internal/server/blobstore"
	"github.com/dmitrijs2005/keyvault/internal/server/services"
	"github.com/dmitrijs2005/keyvault/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func codeOf(t *testing.T, err error) codes.Code {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	return st.Code()
}

func sampleConfig() models.VaultConfig {
	return models.VaultConfig{
		Version:   models.VaultConfigVersion,
		UserID:    "spoofed",
		Salt:      make([]byte, 16),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleRecord(id string) models.EncryptedRecord {
	return models.EncryptedRecord{
		ID:         id,
		Version:    1,
		Algorithm:  models.AlgAES256GCM,
		Ciphertext: []byte("ct-" + id),
		Nonce:      make([]byte, 12),
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(newFakeAccounts(), store.NewMemory())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	resp, err := s.Ping(context.Background(), &api.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, fixed, resp.ServerTime)
}

func TestSignUpAndSignIn(t *testing.T) {
	s := newTestServer(newFakeAccounts(), store.NewMemory())
	ctx := context.Background()

	up, err := s.SignUp(ctx, &api.SignUpRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NotEmpty(t, up.UserID)

	_, err = s.SignUp(ctx, &api.SignUpRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, codes.AlreadyExists, codeOf(t, err))

	_, err = s.SignUp(ctx, &api.SignUpRequest{Username: "", Password: "pw"})
	assert.Equal(t, codes.InvalidArgument, codeOf(t, err))

	in, err := s.SignIn(ctx, &api.SignInRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, up.UserID, in.UserID)
	assert.True(t, in.ExpiresAt.After(time.Now()))

	userID, err := auth.GetUserIDFromToken(in.AccessToken, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, up.UserID, userID)

	_, err = s.SignIn(ctx, &api.SignInRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, codes.Unauthenticated, codeOf(t, err))
}

func TestSignIn_InternalErrorHidesDetail(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.signInErr = fmt.Errorf("db down: %w", common.ErrInternal)
	s := newTestServer(accounts, store.NewMemory())

	_, err := s.SignIn(context.Background(), &api.SignInRequest{Username: "a", Password: "b"})
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}

func TestProtectedHandlers_RequireUser(t *testing.T) {
	s := newTestServer(newFakeAccounts(), store.NewMemory())
	ctx := context.Background()

	calls := map[string]func() error{
		"GetConfig": func() error { _, err := s.GetConfig(ctx, &api.GetConfigRequest{}); return err },
		"PutConfig": func() error {
			_, err := s.PutConfig(ctx, &api.PutConfigRequest{Config: sampleConfig()})
			return err
		},
		"ListRecords": func() error { _, err := s.ListRecords(ctx, &api.ListRecordsRequest{}); return err },
		"PutRecord": func() error {
			_, err := s.PutRecord(ctx, &api.PutRecordRequest{Record: sampleRecord("r1")})
			return err
		},
		"DeleteRecord": func() error { _, err := s.DeleteRecord(ctx, &api.DeleteRecordRequest{ID: "r1"}); return err },
		"Rotate": func() error {
			_, err := s.Rotate(ctx, &api.RotateRequest{Config: sampleConfig()})
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, codes.Internal, codeOf(t, call()))
		})
	}
}

func TestVaultLifecycle(t *testing.T) {
	mem := store.NewMemory()
	s := newTestServer(newFakeAccounts(), mem)
	ctx := withUser(context.Background(), "u1")

	_, err := s.GetConfig(ctx, &api.GetConfigRequest{})
	assert.Equal(t, codes.NotFound, codeOf(t, err))

	list, err := s.ListRecords(ctx, &api.ListRecordsRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Records)

	_, err = s.PutConfig(ctx, &api.PutConfigRequest{Config: sampleConfig()})
	require.NoError(t, err)

	_, err = s.PutConfig(ctx, &api.PutConfigRequest{Config: sampleConfig()})
	assert.Equal(t, codes.AlreadyExists, codeOf(t, err))

	got, err := s.GetConfig(ctx, &api.GetConfigRequest{})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Config.UserID)

	_, err = s.PutRecord(ctx, &api.PutRecordRequest{Record: sampleRecord("r1")})
	require.NoError(t, err)
	_, err = s.PutRecord(ctx, &api.PutRecordRequest{Record: sampleRecord("r2")})
	require.NoError(t, err)

	list, err = s.ListRecords(ctx, &api.ListRecordsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Records, 2)

	_, err = s.DeleteRecord(ctx, &api.DeleteRecordRequest{ID: "r1"})
	require.NoError(t, err)
	_, err = s.DeleteRecord(ctx, &api.DeleteRecordRequest{ID: "r1"})
	assert.Equal(t, codes.NotFound, codeOf(t, err))

	rotated := sampleConfig()
	rotated.Salt = []byte("0123456789abcdef")
	_, err = s.Rotate(ctx, &api.RotateRequest{Config: rotated, Records: []models.EncryptedRecord{sampleRecord("r3")}})
	require.NoError(t, err)

	cfg, err := mem.GetConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cfg.UserID)
	assert.Equal(t, []byte("0123456789abcdef"), []byte(cfg.Salt))

	recs, err := mem.ListRecords(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r3", recs[0].ID)

	other, err := s.ListRecords(withUser(context.Background(), "u2"), &api.ListRecordsRequest{})
	require.NoError(t, err)
	assert.Empty(t, other.Records)
}

func TestRecordHandlers_RejectEmptyID(t *testing.T) {
	s := newTestServer(newFakeAccounts(), store.NewMemory())
	ctx := withUser(context.Background(), "u1")

	_, err := s.PutRecord(ctx, &api.PutRecordRequest{Record: sampleRecord("")})
	assert.Equal(t, codes.InvalidArgument, codeOf(t, err))

	_, err = s.DeleteRecord(ctx, &api.DeleteRecordRequest{})
	assert.Equal(t, codes.InvalidArgument, codeOf(t, err))

	_, err = s.Rotate(ctx, &api.RotateRequest{Config: sampleConfig(), Records: []models.EncryptedRecord{sampleRecord("")}})
	assert.Equal(t, codes.InvalidArgument, codeOf(t, err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{common.ErrNotFound, codes.NotFound},
		{fmt.Errorf("wrapped: %w", common.ErrAlreadyExists), codes.AlreadyExists},
		{common.ErrUnauthorized, codes.Unauthenticated},
		{services.ErrInvalidAccount, codes.InvalidArgument},
		{common.ErrMalformed, codes.InvalidArgument},
		{blobstore.ErrConcurrentUpdate, codes.Aborted},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestServer(newFakeAccounts(), failingStore{err: tt.err})
			_, err := s.ListRecords(withUser(context.Background(), "u1"), &api.ListRecordsRequest{})
			assert.Equal(t, tt.code, codeOf(t, err))
		})
	}
}
