package vault

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// RecordFailure is one record that did not authenticate under the vault
// key. It matches common.ErrRecordDecryptFailed with errors.Is.
type RecordFailure struct {
	ID  string
	Err error
}

func (f RecordFailure) Error() string {
	return fmt.Sprintf("record %s: %v", f.ID, f.Err)
}

func (f RecordFailure) Unwrap() []error {
	return []error{common.ErrRecordDecryptFailed, f.Err}
}

// FetchResult summarises one fetch-and-decrypt pass.
type FetchResult struct {
	Total     int
	Decrypted []models.DecryptedRecord
	Failures  []RecordFailure
}

// Err combines every per-record failure, or nil when all records opened.
func (r *FetchResult) Err() error {
	if r == nil {
		return nil
	}
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// KeyLooksWrong reports the only fetch-level failure: records exist but
// none of them opened.
func (r *FetchResult) KeyLooksWrong() bool {
	return r != nil && r.Total > 0 && len(r.Decrypted) == 0
}

// DecryptAll opens every record independently on a bounded pool of
// goroutines. A failing record never stops the others. limit <= 0 means
// GOMAXPROCS.
func DecryptAll(ctx context.Context, key *cryptox.SymmetricKey, records []models.EncryptedRecord, limit int) *FetchResult {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	res := &FetchResult{Total: len(records)}
	plain := make([]*models.DecryptedRecord, len(records))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)

	for i, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				res.Failures = append(res.Failures, RecordFailure{ID: rec.ID, Err: err})
				mu.Unlock()
				return nil
			}

			payload, err := cryptox.DecryptData(key, cryptox.SealedFromRecord(rec))
			if err != nil {
				mu.Lock()
				res.Failures = append(res.Failures, RecordFailure{ID: rec.ID, Err: err})
				mu.Unlock()
				return nil
			}

			plain[i] = &models.DecryptedRecord{
				ID:        rec.ID,
				Payload:   payload,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range plain {
		if p != nil {
			res.Decrypted = append(res.Decrypted, *p)
		}
	}
	return res
}
