package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/server/auth"
	srvmodels "github.com/dmitrijs2005/keyvault/internal/server/models"
	"github.com/dmitrijs2005/keyvault/internal/server/services"
	"github.com/dmitrijs2005/keyvault/internal/store"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

type fakeAccounts struct {
	mu       sync.Mutex
	byName   map[string]srvmodels.Account
	validity time.Duration

	signUpErr error
	signInErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byName: map[string]srvmodels.Account{}, validity: time.Hour}
}

func (f *fakeAccounts) SignUp(_ context.Context, username, password string) (*srvmodels.Account, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if username == "" || password == "" {
		return nil, services.ErrInvalidAccount
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[username]; ok {
		return nil, common.ErrAlreadyExists
	}
	a := srvmodels.Account{ID: uuid.NewString(), Username: username, PasswordHash: password, CreatedAt: time.Now()}
	f.byName[username] = a
	return &a, nil
}

func (f *fakeAccounts) SignIn(_ context.Context, username, password string) (*services.Token, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}

	f.mu.Lock()
	a, ok := f.byName[username]
	f.mu.Unlock()
	if !ok || a.PasswordHash != password {
		return nil, common.ErrUnauthorized
	}

	token, exp, err := auth.GenerateToken(a.ID, a.Username, []byte(testSecret), f.validity)
	if err != nil {
		return nil, err
	}
	return &services.Token{UserID: a.ID, AccessToken: token, ExpiresAt: exp}, nil
}

// failingStore returns err from every call.
type failingStore struct{ err error }

var _ store.RecordStore = failingStore{}

func (f failingStore) GetConfig(context.Context, string) (*models.VaultConfig, error) {
	return nil, f.err
}
func (f failingStore) PutConfig(context.Context, string, models.VaultConfig) error { return f.err }
func (f failingStore) ListRecords(context.Context, string) ([]models.EncryptedRecord, error) {
	return nil, f.err
}
func (f failingStore) PutRecord(context.Context, string, models.EncryptedRecord) error { return f.err }
func (f failingStore) DeleteRecord(context.Context, string, string) error            { return f.err }
func (f failingStore) Rotate(context.Context, string, models.VaultConfig, []models.EncryptedRecord) error {
	return f.err
}

func newTestServer(accounts AccountService, records store.RecordStore) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop{}, accounts, records, testSecret)
}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
