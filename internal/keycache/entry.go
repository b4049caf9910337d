package keycache

import (
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"google.golang.org/protobuf/encoding/protowire"
)

const entryVersion uint32 = 1

const (
	fieldVersion protowire.Number = 1
	fieldUserID  protowire.Number = 2
	fieldKey     protowire.Number = 3
	fieldSavedAt protowire.Number = 4
)

type entry struct {
	Version uint32
	UserID  string
	Key     []byte
	SavedAt time.Time
}

func encodeEntry(e entry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Version))
	b = protowire.AppendTag(b, fieldUserID, protowire.BytesType)
	b = protowire.AppendString(b, e.UserID)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Key)
	b = protowire.AppendTag(b, fieldSavedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.SavedAt.UnixNano()))
	return b
}

func decodeEntry(b []byte) (entry, error) {
	var e entry

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return entry{}, fmt.Errorf("%w: %v", common.ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return entry{}, fmt.Errorf("%w: version", common.ErrMalformed)
			}
			if v > math.MaxUint32 {
				common.WipeByteArray(e.Key)
				return entry{}, fmt.Errorf("%w: version %d out of range", common.ErrMalformed, v)
			}
			e.Version = uint32(v)
			b = b[n:]
		case num == fieldUserID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return entry{}, fmt.Errorf("%w: user id", common.ErrMalformed)
			}
			e.UserID = v
			b = b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return entry{}, fmt.Errorf("%w: key", common.ErrMalformed)
			}
			e.Key = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldSavedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return entry{}, fmt.Errorf("%w: saved at", common.ErrMalformed)
			}
			e.SavedAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return entry{}, fmt.Errorf("%w: field %d", common.ErrMalformed, num)
			}
			b = b[n:]
		}
	}

	if e.Version != entryVersion {
		common.WipeByteArray(e.Key)
		return entry{}, fmt.Errorf("%w: entry version %d", common.ErrMalformed, e.Version)
	}
	return e, nil
}
