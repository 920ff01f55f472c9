// Package binary implements the SV2 wire-primitive codec: fixed-width
// little-endian integers and the compound length/count-prefixed types used
// throughout the mining, job-declaration, template-distribution and common
// sub-protocols.
//
// Decoding borrows slices from the caller's buffer rather than copying, so
// the lifetime of a decoded message is tied to the buffer it was decoded
// from. This package has no owning clone helper: callers that need a
// message to outlive its frame buffer (a future job queued for later
// promotion, for example) must copy its borrowed slices themselves.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Error taxonomy for codec failures. No truncation or padding is implied
// by any of these — a short buffer is always an error.
var (
	ErrTruncated       = errors.New("binary: truncated input")
	ErrMalformedLength = errors.New("binary: malformed length prefix")
	ErrTooLong         = errors.New("binary: value exceeds maximum length")
	ErrUnexpected      = errors.New("binary: unexpected value")
)

// U256Len is the length in bytes of a U256.
const U256Len = 32

// U256 is a raw 32-byte value. No byte-order conversion is
// applied by the codec itself — callers reverse as needed for display or
// big.Int interop (see pkg/merkle).
type U256 [U256Len]byte

// ShortTxID is a 6-byte SipHash-2-4 truncated transaction identifier.
type ShortTxID [6]byte

// Reader decodes SV2 wire primitives from a byte slice, borrowing
// subslices rather than copying, with fixed 1-byte/2-byte length prefixes
// in place of Bitcoin's variable-width varint.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for decoding. buf is not copied; decoded byte slices
// borrow from it.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Remaining returns the unread tail of the buffer without advancing.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.Len())
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.take(1)[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.take(2)), nil
}

// U24 reads a little-endian 24-bit unsigned integer into a uint32.
func (r *Reader) U24() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	b := r.take(3)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.take(4)), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.take(8)), nil
}

// Bytes reads exactly n raw bytes, borrowed from the input buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	return r.take(n), nil
}

// U256 reads a 32-byte U256.
func (r *Reader) U256() (U256, error) {
	b, err := r.Bytes(U256Len)
	if err != nil {
		return U256{}, err
	}
	var out U256
	copy(out[:], b)
	return out, nil
}

// ShortTxID reads a 6-byte short transaction id.
func (r *Reader) ShortTxID() (ShortTxID, error) {
	b, err := r.Bytes(6)
	if err != nil {
		return ShortTxID{}, err
	}
	var out ShortTxID
	copy(out[:], b)
	return out, nil
}

// B0_32 reads a 1-byte-length-prefixed byte string, length bounded to 32.
func (r *Reader) B0_32() ([]byte, error) {
	return r.boundedBytes(1, 32)
}

// B0_255 reads a 1-byte-length-prefixed byte string, length bounded to 255.
func (r *Reader) B0_255() ([]byte, error) {
	return r.boundedBytes(1, 255)
}

// B0_64K reads a 2-byte-length-prefixed byte string, length bounded to 65535.
func (r *Reader) B0_64K() ([]byte, error) {
	return r.boundedBytes(2, 65535)
}

func (r *Reader) boundedBytes(lenWidth int, max int) ([]byte, error) {
	var n int
	switch lenWidth {
	case 1:
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		n = int(v)
	case 2:
		v, err := r.U16()
		if err != nil {
			return nil, err
		}
		n = int(v)
	default:
		return nil, fmt.Errorf("%w: unsupported length width %d", ErrMalformedLength, lenWidth)
	}
	if n > max {
		return nil, fmt.Errorf("%w: length %d exceeds max %d", ErrTooLong, n, max)
	}
	return r.Bytes(n)
}

// ReadSeq0_255 reads a 1-byte count followed by count items decoded by f.
func ReadSeq0_255[T any](r *Reader, f func(*Reader) (T, error)) ([]T, error) {
	count, err := r.U8()
	if err != nil {
		return nil, err
	}
	return readSeq(r, int(count), f)
}

// ReadSeq0_64K reads a 2-byte count followed by count items decoded by f.
func ReadSeq0_64K[T any](r *Reader, f func(*Reader) (T, error)) ([]T, error) {
	count, err := r.U16()
	if err != nil {
		return nil, err
	}
	return readSeq(r, int(count), f)
}

func readSeq[T any](r *Reader, count int, f func(*Reader) (T, error)) ([]T, error) {
	out := make([]T, 0, count)
	for i := 0; i < count; i++ {
		v, err := f(r)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Writer encodes SV2 wire primitives into a growing byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// U8 appends one byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U24 appends a little-endian 24-bit unsigned integer.
func (w *Writer) U24(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16))
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Raw appends raw bytes unprefixed.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// U256 appends a 32-byte U256.
func (w *Writer) U256(v U256) { w.buf = append(w.buf, v[:]...) }

// ShortTxID appends a 6-byte short transaction id.
func (w *Writer) ShortTxID(v ShortTxID) { w.buf = append(w.buf, v[:]...) }

// B0_32 appends a 1-byte length prefix then b. Errors if len(b) > 32.
func (w *Writer) B0_32(b []byte) error { return w.boundedBytes(1, 32, b) }

// B0_255 appends a 1-byte length prefix then b. Errors if len(b) > 255.
func (w *Writer) B0_255(b []byte) error { return w.boundedBytes(1, 255, b) }

// B0_64K appends a 2-byte length prefix then b. Errors if len(b) > 65535.
func (w *Writer) B0_64K(b []byte) error { return w.boundedBytes(2, 65535, b) }

func (w *Writer) boundedBytes(lenWidth, max int, b []byte) error {
	if len(b) > max {
		return fmt.Errorf("%w: length %d exceeds max %d", ErrTooLong, len(b), max)
	}
	switch lenWidth {
	case 1:
		w.U8(uint8(len(b)))
	case 2:
		w.U16(uint16(len(b)))
	default:
		return fmt.Errorf("%w: unsupported length width %d", ErrMalformedLength, lenWidth)
	}
	w.Raw(b)
	return nil
}

// WriteSeq0_255 appends a 1-byte count then each item encoded by f. Errors if
// len(items) > 255.
func WriteSeq0_255[T any](w *Writer, items []T, f func(*Writer, T) error) error {
	if len(items) > 255 {
		return fmt.Errorf("%w: count %d exceeds max 255", ErrTooLong, len(items))
	}
	w.U8(uint8(len(items)))
	for i, it := range items {
		if err := f(w, it); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// WriteSeq0_64K appends a 2-byte count then each item encoded by f. Errors if
// len(items) > 65535.
func WriteSeq0_64K[T any](w *Writer, items []T, f func(*Writer, T) error) error {
	if len(items) > 65535 {
		return fmt.Errorf("%w: count %d exceeds max 65535", ErrTooLong, len(items))
	}
	w.U16(uint16(len(items)))
	for i, it := range items {
		if err := f(w, it); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}
