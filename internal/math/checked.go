package math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrOverflow is returned when a pool, volume, or payout computation would
// exceed the uint64 range. Arithmetic failures are fatal to the operation
// that triggered them; amounts never saturate or wrap.
var ErrOverflow = errors.New("arithmetic overflow")

// CheckedAdd returns a + b, or ErrOverflow if the sum exceeds uint64.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Int128 intermediates are pooled big.Ints
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes ⌊a × b ÷ d⌋ with a 128-bit-wide intermediate, so the
// multiplication cannot overflow for any uint64 inputs. d must be nonzero.
// Callers keep a <= d (shares never exceed total volume), which bounds the
// quotient by b and keeps the result within uint64.
func MulDiv(a, b, d uint64) uint64 {
	num := getInt128()
	den := getInt128()

	num.SetUint64(a)
	den.SetUint64(b)
	num.Mul(num, den)

	den.SetUint64(d)
	num.Quo(num, den)

	result := num.Uint64()

	putInt128(num)
	putInt128(den)

	return result
}
