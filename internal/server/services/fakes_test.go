package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
	smodels "github.com/dmitrijs2005/keyvault/internal/server/models"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/records"
	"github.com/stretchr/testify/require"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeAccountsRepo struct {
	mu        sync.Mutex
	byName    map[string]*smodels.Account
	createErr error
	getErr    error
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byName: map[string]*smodels.Account{}}
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *smodels.Account) (*smodels.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byName[a.Username]; ok {
		return nil, common.ErrAlreadyExists
	}
	cp := *a
	f.byName[a.Username] = &cp
	return a, nil
}

func (f *fakeAccountsRepo) GetByUsername(_ context.Context, username string) (*smodels.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byName[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// fakeRecordsRepo keeps one vault per user in memory and can fail on a
// chosen method.
type fakeRecordsRepo struct {
	configs map[string]models.VaultConfig
	records map[string]map[string]models.EncryptedRecord
	failOn  string
}

func newFakeRecordsRepo() *fakeRecordsRepo {
	return &fakeRecordsRepo{
		configs: map[string]models.VaultConfig{},
		records: map[string]map[string]models.EncryptedRecord{},
	}
}

func (f *fakeRecordsRepo) fail(method string) error {
	if f.failOn == method {
		return errBoom{}
	}
	return nil
}

func (f *fakeRecordsRepo) GetConfig(_ context.Context, userID string) (*models.VaultConfig, error) {
	if err := f.fail("GetConfig"); err != nil {
		return nil, err
	}
	c, ok := f.configs[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (f *fakeRecordsRepo) InsertConfig(_ context.Context, userID string, cfg models.VaultConfig) error {
	if err := f.fail("InsertConfig"); err != nil {
		return err
	}
	if _, ok := f.configs[userID]; ok {
		return common.ErrAlreadyExists
	}
	f.configs[userID] = cfg
	return nil
}

func (f *fakeRecordsRepo) UpdateConfig(_ context.Context, userID string, cfg models.VaultConfig) error {
	if err := f.fail("UpdateConfig"); err != nil {
		return err
	}
	if _, ok := f.configs[userID]; !ok {
		return common.ErrNotFound
	}
	f.configs[userID] = cfg
	return nil
}

func (f *fakeRecordsRepo) List(_ context.Context, userID string) ([]models.EncryptedRecord, error) {
	if err := f.fail("List"); err != nil {
		return nil, err
	}
	var out []models.EncryptedRecord
	for _, r := range f.records[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRecordsRepo) Upsert(_ context.Context, userID string, rec models.EncryptedRecord) error {
	if err := f.fail("Upsert"); err != nil {
		return err
	}
	if f.records[userID] == nil {
		f.records[userID] = map[string]models.EncryptedRecord{}
	}
	f.records[userID][rec.ID] = rec
	return nil
}

func (f *fakeRecordsRepo) Delete(_ context.Context, userID, id string) error {
	if err := f.fail("Delete"); err != nil {
		return err
	}
	if _, ok := f.records[userID][id]; !ok {
		return common.ErrNotFound
	}
	delete(f.records[userID], id)
	return nil
}

func (f *fakeRecordsRepo) DeleteAll(_ context.Context, userID string) error {
	if err := f.fail("DeleteAll"); err != nil {
		return err
	}
	delete(f.records, userID)
	return nil
}

type fakeRepoManager struct {
	a *fakeAccountsRepo
	r *fakeRecordsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return m.a }
func (m *fakeRepoManager) Records(dbx.DBTX) records.Repository          { return m.r }
