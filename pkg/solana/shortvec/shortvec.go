// Package shortvec implements the compact-u16 length prefix used by the
// transaction wire format: 7 bits per byte, high bit set on all but the last.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodedLen = 3

// EncodeLen writes the compact encoding of length to w. Lengths above
// math.MaxUint16 are rejected.
func EncodeLen(w io.Writer, length int) (int, error) {
	if length < 0 || length > math.MaxUint16 {
		return 0, errors.Errorf("len must be in [0, %d]", math.MaxUint16)
	}

	encoded := make([]byte, 0, maxEncodedLen)
	for {
		b := byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			encoded = append(encoded, b)
			break
		}
		encoded = append(encoded, b|0x80)
	}

	return w.Write(encoded)
}

// DecodeLen reads a compact encoded length from r.
func DecodeLen(r io.Reader) (int, error) {
	var val int
	b := make([]byte, 1)

	for i := 0; ; i++ {
		if i == maxEncodedLen {
			return 0, errors.Errorf("invalid size: more than %d bytes", maxEncodedLen)
		}

		if _, err := io.ReadFull(r, b); err != nil {
			return 0, err
		}

		val |= int(b[0]&0x7f) << (i * 7)
		if b[0]&0x80 == 0 {
			return val, nil
		}
	}
}
