// Package frame implements the SV2 wire framing layer: a
// 6-byte header (extension type, message type, 24-bit length) followed by
// a payload, and a resumable decoder that can be fed a growing byte
// buffer a chunk at a time, rather than blocking on a whole message
// arriving in one read.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the fixed size of an SV2 frame header in bytes:
// extension_type(2) + msg_type(1) + msg_length(3).
const HeaderLen = 6

// MaxPayloadLen is the maximum payload size a frame may declare
//.
const MaxPayloadLen = 16 * 1024 * 1024

// ErrOversize is returned when a header declares a payload longer than
// MaxPayloadLen.
var ErrOversize = errors.New("frame: payload exceeds maximum size")

// ErrTruncatedHeader is returned when fewer than HeaderLen bytes are
// available to parse a header.
var ErrTruncatedHeader = errors.New("frame: truncated header")

// Incomplete signals that the decoder needs Need more bytes appended to
// the buffer before it can make progress. It is not a terminal error —
// callers should read more data and retry.
type Incomplete struct {
	Need int
}

func (e *Incomplete) Error() string {
	return fmt.Sprintf("frame: incomplete, need %d more bytes", e.Need)
}

// Header is the parsed 6-byte SV2 frame header.
type Header struct {
	ExtensionType uint16
	MsgType       uint8
	MsgLength     uint32 // 24-bit value, stored widened
}

// Frame is a fully decoded SV2 frame: a header plus its payload, the
// latter borrowed from the buffer it was decoded out of. Callers that
// need the payload to outlive the buffer must copy it themselves.
type Frame struct {
	Header  Header
	Payload []byte
}

// EncodeHeader writes h's 6-byte wire form.
func EncodeHeader(h Header) [HeaderLen]byte {
	var out [HeaderLen]byte
	binary.LittleEndian.PutUint16(out[0:2], h.ExtensionType)
	out[2] = h.MsgType
	out[3] = byte(h.MsgLength)
	out[4] = byte(h.MsgLength >> 8)
	out[5] = byte(h.MsgLength >> 16)
	return out
}

// DecodeHeader parses a 6-byte header from b. b must be exactly HeaderLen
// bytes; callers slicing from a larger buffer should pass b[:HeaderLen].
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrTruncatedHeader
	}
	return Header{
		ExtensionType: binary.LittleEndian.Uint16(b[0:2]),
		MsgType:       b[2],
		MsgLength:     uint32(b[3]) | uint32(b[4])<<8 | uint32(b[5])<<16,
	}, nil
}

// Encode renders a complete Sv2Frame: header followed by payload. The
// caller is responsible for ensuring len(payload) fits in 24 bits and
// does not exceed MaxPayloadLen.
func Encode(extType uint16, msgType uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrOversize, len(payload))
	}
	hdr := EncodeHeader(Header{ExtensionType: extType, MsgType: msgType, MsgLength: uint32(len(payload))})
	out := make([]byte, 0, HeaderLen+len(payload))
	out = append(out, hdr[:]...)
	out = append(out, payload...)
	return out, nil
}

// Decoder incrementally parses frames out of a growing buffer, so a
// caller reading off a net.Conn in arbitrary-sized chunks can feed bytes
// in as they arrive rather than blocking on a whole frame. It never
// blocks and never performs I/O itself.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to decode one frame from the buffered bytes. On success
// it returns the frame and advances past it, discarding the consumed
// bytes. If not enough data has been buffered yet, it returns
// (nil, *Incomplete) describing how many more bytes are needed; the
// caller should Feed more data and call Next again. A header declaring
// an oversize payload returns ErrOversize immediately, without waiting
// for the payload to arrive (an attacker-controlled length must not be
// allowed to grow the buffer unbounded).
//
// The returned Frame's Payload aliases the Decoder's internal buffer
// until the next Feed/Next call that reallocates it; callers needing the
// payload to outlive that must copy it.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.buf) < HeaderLen {
		return nil, &Incomplete{Need: HeaderLen - len(d.buf)}
	}
	hdr, err := DecodeHeader(d.buf[:HeaderLen])
	if err != nil {
		return nil, err
	}
	if hdr.MsgLength > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrOversize, hdr.MsgLength)
	}
	total := HeaderLen + int(hdr.MsgLength)
	if len(d.buf) < total {
		return nil, &Incomplete{Need: total - len(d.buf)}
	}

	payload := d.buf[HeaderLen:total]
	d.buf = d.buf[total:]
	return &Frame{Header: hdr, Payload: payload}, nil
}

// Pending returns the number of unconsumed bytes currently buffered.
func (d *Decoder) Pending() int { return len(d.buf) }

// NoiseDecoder parses the 2-byte-length-prefixed frames used once a
// session is in Noise transport mode. The length covers ciphertext+tag; the
// decoder itself does not decrypt — callers pass the returned ciphertext
// to the transport's Decrypt.
type NoiseDecoder struct {
	buf []byte
}

// NewNoiseDecoder creates an empty NoiseDecoder.
func NewNoiseDecoder() *NoiseDecoder {
	return &NoiseDecoder{}
}

// Feed appends newly-read bytes.
func (d *NoiseDecoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next length-prefixed ciphertext chunk, or
// (nil, *Incomplete) if more data is needed.
func (d *NoiseDecoder) Next() ([]byte, error) {
	const lenPrefix = 2
	if len(d.buf) < lenPrefix {
		return nil, &Incomplete{Need: lenPrefix - len(d.buf)}
	}
	n := int(binary.LittleEndian.Uint16(d.buf[:lenPrefix]))
	total := lenPrefix + n
	if len(d.buf) < total {
		return nil, &Incomplete{Need: total - len(d.buf)}
	}
	ciphertext := d.buf[lenPrefix:total]
	d.buf = d.buf[total:]
	return ciphertext, nil
}

// EncodeNoise length-prefixes ciphertext with a 2-byte little-endian
// length, matching NoiseDecoder's framing.
func EncodeNoise(ciphertext []byte) []byte {
	out := make([]byte, 2+len(ciphertext))
	binary.LittleEndian.PutUint16(out[:2], uint16(len(ciphertext)))
	copy(out[2:], ciphertext)
	return out
}
