// Package difficulty implements the hashrate<->target math kernels:
// converting a nominal hashrate and target share rate to a share-acceptance
// target, its inverse, and conversions between Bitcoin's compact-nBits
// representation, a 32-byte target, and a relative difficulty.
package difficulty

import (
	"errors"
	"math/big"

	"github.com/stratum-sv2/sv2core/pkg/merkle"
)

// ErrInvalidSharesPerMinute is returned when shares_per_min <= 0.
var ErrInvalidSharesPerMinute = errors.New("difficulty: shares_per_min must be > 0")

// ErrInvalidHashRate is returned when hashrate < 0.
var ErrInvalidHashRate = errors.New("difficulty: hashrate must be >= 0")

var (
	two256    = new(big.Int).Lsh(big.NewInt(1), 256)
	two256m1  = new(big.Int).Sub(two256, big.NewInt(1))
	secPerMin = big.NewFloat(60)
)

// shareInterval returns s = 60 / shares_per_min as a big.Float.
func shareInterval(sharesPerMin float64) *big.Float {
	return new(big.Float).Quo(secPerMin, big.NewFloat(sharesPerMin))
}

// HashRateToTarget computes t = (2^256 - h*s) / (h*s + 1) with
// s = 60/shares_per_min. hashrate is in hashes/second.
//
// Returns the 32-byte big-endian target; callers that need the wire form
// (little-endian) should reverse it with pkg/merkle.ReverseBytes.
func HashRateToTarget(hashrate, sharesPerMin float64) ([32]byte, error) {
	if sharesPerMin <= 0 {
		return [32]byte{}, ErrInvalidSharesPerMinute
	}
	if hashrate < 0 {
		return [32]byte{}, ErrInvalidHashRate
	}

	s := shareInterval(sharesPerMin)
	hs := new(big.Float).Mul(big.NewFloat(hashrate), s)

	two256f := new(big.Float).SetInt(two256)
	numerator := new(big.Float).Sub(two256f, hs)
	if numerator.Sign() < 0 {
		numerator.SetInt64(0)
	}
	denominator := new(big.Float).Add(hs, big.NewFloat(1))

	targetF := new(big.Float).Quo(numerator, denominator)
	targetInt, _ := targetF.Int(nil)
	if targetInt.Sign() < 0 {
		targetInt.SetInt64(0)
	}
	if targetInt.Cmp(two256m1) > 0 {
		targetInt.Set(two256m1)
	}

	return bigIntToU256BE(targetInt), nil
}

// HashRateFromTarget computes h = (2^256 - t) / (s * (t + 1)) with the same
// s = 60/shares_per_min, the inverse of HashRateToTarget.
// target is the 32-byte big-endian target.
func HashRateFromTarget(target [32]byte, sharesPerMin float64) (float64, error) {
	if sharesPerMin <= 0 {
		return 0, ErrInvalidSharesPerMinute
	}

	s := shareInterval(sharesPerMin)
	t := new(big.Int).SetBytes(target[:])
	tf := new(big.Float).SetInt(t)

	two256f := new(big.Float).SetInt(two256)
	numerator := new(big.Float).Sub(two256f, tf)
	tPlus1 := new(big.Float).Add(tf, big.NewFloat(1))
	denominator := new(big.Float).Mul(s, tPlus1)

	hf := new(big.Float).Quo(numerator, denominator)
	h, _ := hf.Float64()
	if h < 0 {
		h = 0
	}
	return h, nil
}

// bigIntToU256BE renders n as a 32-byte big-endian array, left-padded with
// zeros.
func bigIntToU256BE(n *big.Int) [32]byte {
	var out [32]byte
	b := n.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// TargetToWireLE converts a 32-byte big-endian target to its little-endian
// wire form.
func TargetToWireLE(target [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], merkle.ReverseBytes(target[:]))
	return out
}

// CompactToTarget converts a Bitcoin compact (nBits) representation to a
// big.Int target.
func CompactToTarget(compact uint32) *big.Int {
	exponent := compact >> 24
	mantissa := compact & 0x007fffff

	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		target.Rsh(target, uint(8*(3-exponent)))
	} else {
		target.Lsh(target, uint(8*(exponent-3)))
	}
	if compact&0x00800000 != 0 {
		target.Neg(target)
	}
	return target
}

// TargetToDifficulty converts a target to a difficulty relative to maxTarget.
func TargetToDifficulty(target, maxTarget *big.Int) float64 {
	if target == nil || target.Sign() == 0 {
		return 0
	}
	maxFloat := new(big.Float).SetInt(maxTarget)
	targetFloat := new(big.Float).SetInt(target)
	diff := new(big.Float).Quo(maxFloat, targetFloat)
	result, _ := diff.Float64()
	return result
}
