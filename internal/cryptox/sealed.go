package cryptox

import (
	"fmt"
	"math"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Sealed wire layout.
const (
	sealedFieldVersion    protowire.Number = 1
	sealedFieldAlgorithm  protowire.Number = 2
	sealedFieldNonce      protowire.Number = 3
	sealedFieldCiphertext protowire.Number = 4
)

// MarshalBinary encodes s in protobuf wire format. New fields can be added
// without breaking older readers, which skip what they do not know.
func (s Sealed) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, sealedFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Version))
	b = protowire.AppendTag(b, sealedFieldAlgorithm, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Algorithm))
	b = protowire.AppendTag(b, sealedFieldNonce, protowire.BytesType)
	b = protowire.AppendBytes(b, s.Nonce)
	b = protowire.AppendTag(b, sealedFieldCiphertext, protowire.BytesType)
	b = protowire.AppendBytes(b, s.Ciphertext)
	return b, nil
}

// ParseSealed decodes the output of MarshalBinary. Unknown versions and
// algorithms are rejected with common.ErrMalformed.
func ParseSealed(b []byte) (Sealed, error) {
	var s Sealed

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Sealed{}, fmt.Errorf("%w: %v", common.ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == sealedFieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Sealed{}, fmt.Errorf("%w: version: %v", common.ErrMalformed, protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return Sealed{}, fmt.Errorf("%w: version %d out of range", common.ErrMalformed, v)
			}
			s.Version = uint32(v)
			b = b[n:]
		case num == sealedFieldAlgorithm && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Sealed{}, fmt.Errorf("%w: algorithm: %v", common.ErrMalformed, protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return Sealed{}, fmt.Errorf("%w: algorithm %d out of range", common.ErrMalformed, v)
			}
			s.Algorithm = models.Algorithm(v)
			b = b[n:]
		case num == sealedFieldNonce && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Sealed{}, fmt.Errorf("%w: nonce: %v", common.ErrMalformed, protowire.ParseError(n))
			}
			s.Nonce = append([]byte(nil), v...)
			b = b[n:]
		case num == sealedFieldCiphertext && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Sealed{}, fmt.Errorf("%w: ciphertext: %v", common.ErrMalformed, protowire.ParseError(n))
			}
			s.Ciphertext = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Sealed{}, fmt.Errorf("%w: field %d: %v", common.ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if s.Version != SealedVersion {
		return Sealed{}, fmt.Errorf("%w: unsupported version %d", common.ErrMalformed, s.Version)
	}
	switch s.Algorithm {
	case models.AlgAES256GCM, models.AlgXChaCha20Poly1305:
	default:
		return Sealed{}, fmt.Errorf("%w: unsupported algorithm %d", common.ErrMalformed, s.Algorithm)
	}
	return s, nil
}

// SealedFromRecord extracts the sealed part of a stored record.
func SealedFromRecord(r models.EncryptedRecord) Sealed {
	return Sealed{
		Version:    r.Version,
		Algorithm:  r.Algorithm,
		Nonce:      r.Nonce,
		Ciphertext: r.Ciphertext,
	}
}
