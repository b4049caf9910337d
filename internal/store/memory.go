package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Memory is an in-process RecordStore. Values are deep-copied on the way in
// and out so callers cannot alias stored bytes.
type Memory struct {
	mu      sync.RWMutex
	configs map[string]models.VaultConfig
	records map[string]map[string]models.EncryptedRecord
}

func NewMemory() *Memory {
	return &Memory{
		configs: make(map[string]models.VaultConfig),
		records: make(map[string]map[string]models.EncryptedRecord),
	}
}

func (m *Memory) GetConfig(_ context.Context, userID string) (*models.VaultConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := cloneConfig(cfg)
	return &out, nil
}

func (m *Memory) PutConfig(_ context.Context, userID string, cfg models.VaultConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[userID]; ok {
		return common.ErrAlreadyExists
	}
	m.configs[userID] = cloneConfig(cfg)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, userID string) ([]models.EncryptedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[userID]
	out := make([]models.EncryptedRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PutRecord(_ context.Context, userID string, rec models.EncryptedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs, ok := m.records[userID]
	if !ok {
		recs = make(map[string]models.EncryptedRecord)
		m.records[userID] = recs
	}
	recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[userID][id]; !ok {
		return common.ErrNotFound
	}
	delete(m.records[userID], id)
	return nil
}

func (m *Memory) Rotate(_ context.Context, userID string, cfg models.VaultConfig, records []models.EncryptedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[userID]; !ok {
		return common.ErrNotFound
	}

	recs := make(map[string]models.EncryptedRecord, len(records))
	for _, r := range records {
		recs[r.ID] = cloneRecord(r)
	}
	m.configs[userID] = cloneConfig(cfg)
	m.records[userID] = recs
	return nil
}

func cloneConfig(c models.VaultConfig) models.VaultConfig {
	c.Salt = append(models.Salt(nil), c.Salt...)
	c.Verifier.Nonce = append([]byte(nil), c.Verifier.Nonce...)
	c.Verifier.Ciphertext = append([]byte(nil), c.Verifier.Ciphertext...)
	return c
}

func cloneRecord(r models.EncryptedRecord) models.EncryptedRecord {
	r.Nonce = append([]byte(nil), r.Nonce...)
	r.Ciphertext = append([]byte(nil), r.Ciphertext...)
	return r
}
