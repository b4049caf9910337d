// Package vault is the state machine that owns the vault key for a user.
//
// A Vault moves between Loading, NeedsSetup, SettingUp, Locked, Unlocking
// and Unlocked. It is the only holder of the derived key: the key enters
// through Setup, Unlock or a verified cache hit and is destroyed on Lock.
// Records are decrypted into memory only while Unlocked.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/keycache"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/store"
)

// Options tune a Vault. Zero values pick the defaults.
type Options struct {
	MinPasswordLength int
	KDF               models.KDFParams
	Algorithm         models.Algorithm
	DecryptWorkers    int
	// Mirror, when set, receives every config the vault loads or writes.
	Mirror ConfigMirror
}

func (o Options) withDefaults() Options {
	if o.MinPasswordLength <= 0 {
		o.MinPasswordLength = DefaultMinPasswordLength
	}
	if o.KDF.Algorithm == "" {
		o.KDF = cryptox.DefaultKDFParams()
	}
	if o.Algorithm == models.AlgUnknown {
		o.Algorithm = cryptox.DefaultAlgorithm
	}
	return o
}

type Vault struct {
	store  store.RecordStore
	cache  *keycache.Cache
	logger logging.Logger
	opts   Options
	now    func() time.Time

	// opMu serialises operations; mu guards the fields below for readers.
	opMu sync.Mutex
	mu   sync.RWMutex

	state       State
	userID      string
	config      *models.VaultConfig
	key         *cryptox.SymmetricKey
	records     map[string]models.DecryptedRecord
	failures    []RecordFailure
	cacheFailed bool
	// loaded is set once records reflect a successful fetch. Until then
	// records may be an empty placeholder.
	loaded bool
}

func New(st store.RecordStore, cache *keycache.Cache, logger logging.Logger, opts Options) *Vault {
	if cache == nil {
		cache = keycache.New(keycache.NoopBackend{}, logger)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Vault{
		store:  st,
		cache:  cache,
		logger: logger.With("module", "vault"),
		opts:   opts.withDefaults(),
		now:    time.Now,
		state:  StateLoading,
	}
}

func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// UserID is the user the vault was last loaded for.
func (v *Vault) UserID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.userID
}

// AutoUnlockAvailable reports whether the next start can unlock from the
// key cache. It turns false when caching the key failed this session.
func (v *Vault) AutoUnlockAvailable() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cache.Enabled() && !v.cacheFailed
}

// Failures lists the records that did not decrypt in the last fetch.
func (v *Vault) Failures() []RecordFailure {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]RecordFailure(nil), v.failures...)
}

func (v *Vault) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// Load reads the vault config for userID. Without one the vault needs
// setup. With one it becomes Locked and then tries to unlock silently from
// the key cache; that attempt never returns an error; it just leaves the
// vault Locked. If the store fails and Options.Mirror holds a copy of the
// config, that copy is used instead.
func (v *Vault) Load(ctx context.Context, userID string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.dropKeyLocked()
	v.state = StateLoading
	v.userID = userID
	v.config = nil
	v.cacheFailed = false
	v.mu.Unlock()

	cfg, err := v.store.GetConfig(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		v.setState(StateNeedsSetup)
		v.logger.Info(ctx, "no vault yet", "user_id", userID)
		return nil
	}
	fromMirror := false
	if err != nil {
		cfg = v.mirroredConfig(ctx, userID)
		if cfg == nil {
			return fmt.Errorf("%w: config: %w", common.ErrRecordFetchFailed, err)
		}
		fromMirror = true
		v.logger.Warn(ctx, "using local copy of vault config", "user_id", userID, "error", err)
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if !fromMirror {
		v.mirrorConfig(ctx, cfg)
	}

	v.mu.Lock()
	v.config = cfg
	v.state = StateLocked
	v.mu.Unlock()

	v.autoUnlock(ctx)
	return nil
}

func validateConfig(cfg *models.VaultConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty vault config", common.ErrMalformed)
	}
	if cfg.Version != models.VaultConfigVersion {
		return fmt.Errorf("%w: vault config version %d", common.ErrMalformed, cfg.Version)
	}
	if len(cfg.Salt) < common.MinSaltSize {
		return fmt.Errorf("%w: salt is %d bytes", common.ErrMalformed, len(cfg.Salt))
	}
	if err := cryptox.ValidateKDFParams(cfg.KDF); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformed, err)
	}
	if cfg.Verifier.Version != models.VerifierVersion || len(cfg.Verifier.Ciphertext) == 0 {
		return fmt.Errorf("%w: verifier", common.ErrMalformed)
	}
	return nil
}

// autoUnlock runs with opMu held and the vault Locked.
func (v *Vault) autoUnlock(ctx context.Context) {
	v.mu.RLock()
	userID, cfg := v.userID, v.config
	v.mu.RUnlock()

	key, err := v.cache.LoadKey(ctx, userID, cfg.Verifier)
	if err != nil {
		v.logger.Warn(ctx, "auto-unlock skipped", "error", err)
		return
	}
	if key == nil {
		return
	}

	v.setState(StateUnlocking)

	res, err := v.fetch(ctx, userID, key)
	if err != nil {
		v.logger.Warn(ctx, "auto-unlock could not load records", "error", err)
		key.Destroy()
		v.setState(StateLocked)
		return
	}
	if res.KeyLooksWrong() {
		v.logger.Warn(ctx, "auto-unlock could not decrypt any record", "total", res.Total)
		key.Destroy()
		v.setState(StateLocked)
		return
	}

	v.mu.Lock()
	v.key = key
	v.applyLocked(res)
	v.state = StateUnlocked
	v.mu.Unlock()

	v.logger.Info(ctx, "vault unlocked from cache", "records", len(res.Decrypted), "failed", len(res.Failures))
}

// BeginSetup moves a vault without config into SettingUp.
func (v *Vault) BeginSetup() error {
	v.opMu.Lock()
	defer v.opMu.Unlock()
	return v.beginSetupLocked()
}

func (v *Vault) beginSetupLocked() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case StateNeedsSetup, StateSettingUp:
		v.state = StateSettingUp
		return nil
	default:
		return fmt.Errorf("%w: setup from %s", common.ErrInvalidState, v.state)
	}
}

// Setup creates the vault. password and confirm are wiped before return.
// A policy violation returns *common.SetupValidationError and keeps the
// vault in SettingUp. Failing to persist the config is fatal to the setup
// and returns common.ErrStorageWriteFailed.
func (v *Vault) Setup(ctx context.Context, password, confirm []byte) error {
	defer common.WipeByteArray(password)
	defer common.WipeByteArray(confirm)

	v.opMu.Lock()
	defer v.opMu.Unlock()

	if err := v.beginSetupLocked(); err != nil {
		return err
	}
	if err := validateNewPassword(password, confirm, v.opts.MinPasswordLength); err != nil {
		return err
	}

	cfg, key, err := v.newConfig(password)
	if err != nil {
		return err
	}

	userID := v.UserID()
	cfg.UserID = userID

	if err := v.store.PutConfig(ctx, userID, *cfg); err != nil {
		key.Destroy()
		v.setState(StateNeedsSetup)
		v.logger.Error(ctx, "failed to persist vault config", "error", err)
		return fmt.Errorf("%w: %w", common.ErrStorageWriteFailed, err)
	}

	v.mirrorConfig(ctx, cfg)
	cacheFailed := v.cacheKey(ctx, userID, key)

	v.mu.Lock()
	v.config = cfg
	v.key = key
	v.records = make(map[string]models.DecryptedRecord)
	v.failures = nil
	v.loaded = true
	v.cacheFailed = cacheFailed
	v.state = StateUnlocked
	v.mu.Unlock()

	v.logger.Info(ctx, "vault created", "user_id", userID, "kdf", cfg.KDF.Algorithm)
	return nil
}

// newConfig derives a fresh salt, key and verifier from password.
func (v *Vault) newConfig(password []byte) (*models.VaultConfig, *cryptox.SymmetricKey, error) {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	key, err := cryptox.DeriveKey(password, salt, v.opts.KDF)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := cryptox.CreateKeyVerifier(key)
	if err != nil {
		key.Destroy()
		return nil, nil, err
	}

	return &models.VaultConfig{
		Version:   models.VaultConfigVersion,
		Salt:      salt,
		KDF:       v.opts.KDF,
		Verifier:  verifier,
		CreatedAt: v.now().UTC(),
	}, key, nil
}

// cacheKey stores key for auto-unlock. It reports whether that failed; a
// failure never blocks the caller.
func (v *Vault) cacheKey(ctx context.Context, userID string, key *cryptox.SymmetricKey) bool {
	if err := v.cache.SaveKey(ctx, userID, key); err != nil {
		v.logger.Warn(ctx, "could not cache key, auto-unlock disabled", "error", err)
		return true
	}
	return false
}

// Unlock checks password against the stored verifier and, when it is
// right, decrypts the record set. password is wiped before return.
//
// A wrong password returns common.ErrVerificationFailed and leaves the
// vault Locked with nothing cached. When the key is right the vault is
// Unlocked even if loading records fails: that case returns
// common.ErrRecordFetchFailed, and a record set of which nothing opened
// returns common.ErrRecordsUndecryptable.
func (v *Vault) Unlock(ctx context.Context, password []byte) (*FetchResult, error) {
	defer common.WipeByteArray(password)

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.state != StateLocked {
		st := v.state
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: unlock from %s", common.ErrInvalidState, st)
	}
	v.state = StateUnlocking
	userID, cfg := v.userID, v.config
	v.mu.Unlock()

	key, err := cryptox.DeriveKey(password, cfg.Salt, cfg.KDF)
	if err != nil {
		v.setState(StateLocked)
		return nil, fmt.Errorf("%w: %w", common.ErrMalformed, err)
	}

	if !cryptox.VerifyKey(key, cfg.Verifier) {
		key.Destroy()
		v.setState(StateLocked)
		v.logger.Info(ctx, "unlock rejected")
		return nil, common.ErrVerificationFailed
	}

	cacheFailed := v.cacheKey(ctx, userID, key)

	v.mu.Lock()
	v.key = key
	v.records = make(map[string]models.DecryptedRecord)
	v.failures = nil
	v.loaded = false
	v.cacheFailed = cacheFailed
	v.state = StateUnlocked
	v.mu.Unlock()

	return v.refreshLocked(ctx)
}

// Refresh re-reads and decrypts the record set.
func (v *Vault) Refresh(ctx context.Context) (*FetchResult, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.State() != StateUnlocked {
		return nil, common.ErrVaultLocked
	}
	return v.refreshLocked(ctx)
}

func (v *Vault) refreshLocked(ctx context.Context) (*FetchResult, error) {
	v.mu.RLock()
	userID, key := v.userID, v.key
	v.mu.RUnlock()

	res, err := v.fetch(ctx, userID, key)
	if err != nil {
		v.logger.Error(ctx, "could not load records", "error", err)
		return nil, err
	}

	v.mu.Lock()
	v.applyLocked(res)
	v.mu.Unlock()

	v.logger.Info(ctx, "records loaded", "total", res.Total, "decrypted", len(res.Decrypted), "failed", len(res.Failures))
	if res.KeyLooksWrong() {
		return res, fmt.Errorf("%w: %w", common.ErrRecordsUndecryptable, res.Err())
	}
	return res, nil
}

func (v *Vault) fetch(ctx context.Context, userID string, key *cryptox.SymmetricKey) (*FetchResult, error) {
	recs, err := v.store.ListRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRecordFetchFailed, err)
	}

	res := DecryptAll(ctx, key, recs, v.opts.DecryptWorkers)
	for _, f := range res.Failures {
		v.logger.Warn(ctx, "record failed to decrypt", "record_id", f.ID)
	}
	return res, nil
}

func (v *Vault) applyLocked(res *FetchResult) {
	v.records = make(map[string]models.DecryptedRecord, len(res.Decrypted))
	for _, r := range res.Decrypted {
		v.records[r.ID] = r
	}
	v.failures = res.Failures
	v.loaded = true
}

// Lock drops the key and every decrypted record. With forgetDevice the
// key cache is cleared as well, so the next start asks for the password.
func (v *Vault) Lock(ctx context.Context, forgetDevice bool) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()
	return v.lockLocked(ctx, forgetDevice)
}

func (v *Vault) lockLocked(ctx context.Context, forgetDevice bool) error {
	v.mu.Lock()
	v.dropKeyLocked()
	switch v.state {
	case StateUnlocked, StateUnlocking:
		v.state = StateLocked
	case StateSettingUp:
		v.state = StateNeedsSetup
	}
	v.mu.Unlock()

	v.logger.Info(ctx, "vault locked", "forget_device", forgetDevice)

	if forgetDevice {
		if err := v.cache.ClearKey(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) dropKeyLocked() {
	if v.key != nil {
		v.key.Destroy()
		v.key = nil
	}
	v.records = nil
	v.failures = nil
	v.loaded = false
}

// Records returns the decrypted records ordered by creation time.
func (v *Vault) Records() ([]models.DecryptedRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.state != StateUnlocked {
		return nil, common.ErrVaultLocked
	}
	out := make([]models.DecryptedRecord, 0, len(v.records))
	for _, r := range v.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v *Vault) Record(id string) (models.DecryptedRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.state != StateUnlocked {
		return models.DecryptedRecord{}, common.ErrVaultLocked
	}
	r, ok := v.records[id]
	if !ok {
		return models.DecryptedRecord{}, common.ErrNotFound
	}
	return r, nil
}
