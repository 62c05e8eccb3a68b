package ledger

import "errors"

// ErrShortVec is returned when a compact length prefix is truncated or
// does not fit in 16 bits.
var ErrShortVec = errors.New("ledger: invalid compact-u16 length")

// appendShortVec appends n in the ledger's compact-u16 encoding: seven
// bits per byte, least significant group first, high bit set on every
// byte but the last.
func appendShortVec(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// readShortVec decodes a compact-u16 at the start of b and returns the
// value and the number of bytes consumed.
func readShortVec(b []byte) (int, int, error) {
	var v uint32
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, ErrShortVec
		}
		v |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			if v > 0xffff {
				return 0, 0, ErrShortVec
			}
			return int(v), i + 1, nil
		}
	}
	return 0, 0, ErrShortVec
}
