package solana

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when wire bytes end before a value is complete.
var ErrShortBuffer = errors.New("solana: short buffer")

// AppendCompactU16 appends n in the shortvec encoding: 7 bits per byte, low
// bits first, high bit set on every byte but the last.
func AppendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}

// DecodeCompactU16 reads a shortvec length and returns it with the number of
// bytes consumed. Aliased (non-minimal) and overflowing encodings are rejected.
func DecodeCompactU16(b []byte) (int, int, error) {
	var v uint32
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, ErrShortBuffer
		}
		elem := uint32(b[i])
		if i == 2 && elem > 0x03 {
			return 0, 0, fmt.Errorf("solana: compact-u16 overflow")
		}
		if elem == 0 && i > 0 {
			return 0, 0, fmt.Errorf("solana: compact-u16 alias")
		}
		v |= (elem & 0x7f) << (7 * i)
		if elem&0x80 == 0 {
			return int(v), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("solana: compact-u16 too long")
}
