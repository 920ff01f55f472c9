// Package merkle implements the hash kernels used by job construction and
// share validation: SHA256d, Merkle-root-from-path reconstruction, and the
// short transaction id used by compact block relay extensions.
//
// The root-from-path fold follows original_source's
// protocols/v2/messages-sv2/src/job_dispatcher.rs::merkle_root_from_path.
package merkle

import (
	"crypto/sha256"
)

// DoubleSHA256 computes SHA256d(data) = SHA256(SHA256(data)).
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// ReverseBytes returns a new slice with bytes reversed (internal <-> display
// byte order conversion).
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// RootFromPath computes the 32-byte Merkle root for an extended job's
// derived standard job.
//
// coinbase = coinbaseTxPrefix ‖ extranonce ‖ coinbaseTxSuffix
// root     = fold(SHA256d(coinbase), path, func(root, sibling) SHA256d(root‖sibling))
func RootFromPath(coinbaseTxPrefix, coinbaseTxSuffix, extranonce []byte, path [][]byte) [32]byte {
	coinbase := make([]byte, 0, len(coinbaseTxPrefix)+len(extranonce)+len(coinbaseTxSuffix))
	coinbase = append(coinbase, coinbaseTxPrefix...)
	coinbase = append(coinbase, extranonce...)
	coinbase = append(coinbase, coinbaseTxSuffix...)

	root := DoubleSHA256(coinbase)
	for _, sibling := range path {
		combined := make([]byte, 0, 32+len(sibling))
		combined = append(combined, root[:]...)
		combined = append(combined, sibling...)
		root = DoubleSHA256(combined)
	}
	return root
}

// siphashK0K1 derives the two little-endian uint64 SipHash keys from the
// first 16 bytes of SHA256(nonce).
func siphashK0K1(nonce uint64) (k0, k1 uint64) {
	var nb [8]byte
	for i := 0; i < 8; i++ {
		nb[i] = byte(nonce >> (8 * i))
	}
	sum := sha256.Sum256(nb[:])
	k0 = leUint64(sum[0:8])
	k1 = leUint64(sum[8:16])
	return
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// ShortTxID computes SipHash-2-4(k0, k1, txid) truncated to its 6 low bytes,
// where (k0, k1) derive from nonce per siphashK0K1.
func ShortTxID(nonce uint64, txid []byte) [6]byte {
	k0, k1 := siphashK0K1(nonce)
	h := sipHash24(k0, k1, txid)
	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = byte(h >> (8 * i))
	}
	return out
}

// sipHash24 is a minimal SipHash-2-4 implementation (64-bit output). The
// standard library has no SipHash, and pulling in a dependency for one
// well-specified function isn't worth it.
func sipHash24(k0, k1 uint64, data []byte) uint64 {
	v0 := uint64(0x736f6d6570736575) ^ k0
	v1 := uint64(0x646f72616e646f6d) ^ k1
	v2 := uint64(0x6c7967656e657261) ^ k0
	v3 := uint64(0x7465646279746573) ^ k1

	round := func() {
		v0 += v1
		v1 = rotl(v1, 13)
		v1 ^= v0
		v0 = rotl(v0, 32)
		v2 += v3
		v3 = rotl(v3, 16)
		v3 ^= v2
		v0 += v3
		v3 = rotl(v3, 21)
		v3 ^= v0
		v2 += v1
		v1 = rotl(v1, 17)
		v1 ^= v2
		v2 = rotl(v2, 32)
	}

	n := len(data)
	end := n - (n % 8)
	var m uint64
	for i := 0; i < end; i += 8 {
		m = leUint64(data[i : i+8])
		v3 ^= m
		round()
		round()
		v0 ^= m
	}

	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(n)
	m = leUint64(last[:])
	v3 ^= m
	round()
	round()
	v0 ^= m

	v2 ^= 0xff
	round()
	round()
	round()
	round()

	return v0 ^ v1 ^ v2 ^ v3
}

func rotl(x uint64, b uint) uint64 {
	return (x << b) | (x >> (64 - b))
}
