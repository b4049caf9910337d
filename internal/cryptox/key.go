package cryptox

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// KeySize is the length of every vault key in bytes.
const KeySize = 32

var (
	ErrKeyUnavailable = errors.New("key unavailable")
	ErrKeySize        = errors.New("invalid key size")
)

// SymmetricKey is an opaque handle to a vault key. The key material is kept
// encrypted in memory and cannot be printed or marshalled.
type SymmetricKey struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// NewSymmetricKey seals raw into a new key handle. raw is wiped.
func NewSymmetricKey(raw []byte) (*SymmetricKey, error) {
	if len(raw) != KeySize {
		memguard.WipeBytes(raw)
		return nil, ErrKeySize
	}
	return &SymmetricKey{enclave: memguard.NewEnclave(raw)}, nil
}

// Use opens the key for the duration of fn. The slice passed to fn is
// destroyed when fn returns and must not be retained.
func (k *SymmetricKey) Use(fn func(raw []byte) error) error {
	if k == nil {
		return ErrKeyUnavailable
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.enclave == nil {
		return ErrKeyUnavailable
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return ErrKeyUnavailable
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// Destroy drops the key. Later Use calls return ErrKeyUnavailable.
func (k *SymmetricKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}

func (k *SymmetricKey) String() string { return "SymmetricKey(redacted)" }

func (k *SymmetricKey) GoString() string { return k.String() }

func (k *SymmetricKey) MarshalJSON() ([]byte, error) {
	return nil, errors.New("symmetric key is not serializable")
}

func (k *SymmetricKey) MarshalText() ([]byte, error) {
	return nil, errors.New("symmetric key is not serializable")
}
