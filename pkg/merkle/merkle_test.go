package merkle

import (
	"bytes"
	"testing"
)

func TestRootFromPathEmptyPathEqualsCoinbaseHash(t *testing.T) {
	prefix := []byte{0x01, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0x54, 0x03, 0x4f, 0x06, 0x0b}
	extranonce := bytes.Repeat([]byte{0x0a}, 8)
	suffix := []byte{0xff, 0xff, 0xff, 0xff, 0x01}

	root := RootFromPath(prefix, suffix, extranonce, nil)

	coinbase := append(append(append([]byte{}, prefix...), extranonce...), suffix...)
	want := DoubleSHA256(coinbase)

	if root != want {
		t.Fatalf("empty-path root = %x, want coinbase hash %x", root, want)
	}
}

func TestRootFromPathFoldsEachSibling(t *testing.T) {
	prefix := []byte("prefix")
	suffix := []byte("suffix")
	extranonce := []byte{1, 2, 3, 4}

	sib1 := bytes.Repeat([]byte{0xaa}, 32)
	sib2 := bytes.Repeat([]byte{0xbb}, 32)

	got := RootFromPath(prefix, suffix, extranonce, [][]byte{sib1, sib2})

	coinbase := append(append(append([]byte{}, prefix...), extranonce...), suffix...)
	step0 := DoubleSHA256(coinbase)
	step1 := DoubleSHA256(append(append([]byte{}, step0[:]...), sib1...))
	want := DoubleSHA256(append(append([]byte{}, step1[:]...), sib2...))

	if got != want {
		t.Fatalf("root = %x, want %x", got, want)
	}
}

func TestReverseBytes(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	got := ReverseBytes(in)
	want := []byte{4, 3, 2, 1}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReverseBytes = %v, want %v", got, want)
	}
	// Original must be untouched.
	if !bytes.Equal(in, []byte{1, 2, 3, 4}) {
		t.Fatalf("ReverseBytes mutated its input: %v", in)
	}
}

func TestShortTxIDDeterministic(t *testing.T) {
	txid := bytes.Repeat([]byte{0x42}, 32)
	a := ShortTxID(7, txid)
	b := ShortTxID(7, txid)
	if a != b {
		t.Fatalf("ShortTxID not deterministic: %x != %x", a, b)
	}
}

func TestShortTxIDVariesWithNonceAndTxID(t *testing.T) {
	txid := bytes.Repeat([]byte{0x42}, 32)
	a := ShortTxID(1, txid)
	b := ShortTxID(2, txid)
	if a == b {
		t.Fatalf("ShortTxID did not vary with nonce: %x", a)
	}

	otherTxID := bytes.Repeat([]byte{0x24}, 32)
	c := ShortTxID(1, otherTxID)
	if a == c {
		t.Fatalf("ShortTxID did not vary with txid: %x", a)
	}
}
