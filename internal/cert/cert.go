// Package cert implements the certificate that an SV2 responder presents
// during the Noise handshake, and the verification an initiator performs
// against a pinned authority key: an authority key signs a time-bounded
// certificate binding a rotating static Noise key to the responder's
// identity, the shape original_source's
// protocols/v2/noise-sv2/src/signature_message.rs describes.
package cert

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"time"
)

// SignatureVersion is the only certificate wire version this package
// produces or accepts.
const SignatureVersion uint16 = 0

// SignatureLen is the length of an Ed25519 signature.
const SignatureLen = ed25519.SignatureSize

// ErrInvalidCertificate covers every way a presented certificate can fail
// validation: not yet valid, expired, or a bad signature. Callers only
// need to distinguish "valid" from "not", never which check failed.
var ErrInvalidCertificate = errors.New("cert: invalid certificate")

// ErrMalformed is returned when a certificate's wire form is the wrong
// length.
var ErrMalformed = errors.New("cert: malformed certificate message")

// SignatureNoiseMessage is the payload a responder sends during the
// handshake's second message, signed by the pool/proxy operator's
// authority key over the responder's static Noise public key.
type SignatureNoiseMessage struct {
	Version       uint16
	ValidFrom     uint32
	NotValidAfter uint32
	Signature     [SignatureLen]byte
}

// wireLen is the encoded size: version(2) + valid_from(4) + not_valid_after(4) + signature(64).
const wireLen = 2 + 4 + 4 + SignatureLen

// Encode serializes m to its wire form.
func (m SignatureNoiseMessage) Encode() []byte {
	out := make([]byte, wireLen)
	binary.LittleEndian.PutUint16(out[0:2], m.Version)
	binary.LittleEndian.PutUint32(out[2:6], m.ValidFrom)
	binary.LittleEndian.PutUint32(out[6:10], m.NotValidAfter)
	copy(out[10:], m.Signature[:])
	return out
}

// Decode parses a SignatureNoiseMessage from its wire form.
func Decode(b []byte) (SignatureNoiseMessage, error) {
	if len(b) != wireLen {
		return SignatureNoiseMessage{}, ErrMalformed
	}
	var m SignatureNoiseMessage
	m.Version = binary.LittleEndian.Uint16(b[0:2])
	m.ValidFrom = binary.LittleEndian.Uint32(b[2:6])
	m.NotValidAfter = binary.LittleEndian.Uint32(b[6:10])
	copy(m.Signature[:], b[10:])
	return m, nil
}

// signedPart is the canonical serialization an authority signs over and a
// verifier reconstructs: the certificate header plus the two public keys
// that bind it to a specific handshake.
func signedPart(version uint16, validFrom, notValidAfter uint32, remoteStaticPublicKey []byte, authorityPublicKey ed25519.PublicKey) []byte {
	out := make([]byte, 0, 2+4+4+len(remoteStaticPublicKey)+len(authorityPublicKey))
	var hdr [10]byte
	binary.LittleEndian.PutUint16(hdr[0:2], version)
	binary.LittleEndian.PutUint32(hdr[2:6], validFrom)
	binary.LittleEndian.PutUint32(hdr[6:10], notValidAfter)
	out = append(out, hdr[:]...)
	out = append(out, remoteStaticPublicKey...)
	out = append(out, authorityPublicKey...)
	return out
}

// Sign builds and signs a SignatureNoiseMessage binding remoteStaticPublicKey
// (the responder's Noise static public key, exchanged during the
// handshake) to authorityPublicKey, valid over [validFrom, notValidAfter).
func Sign(authorityPrivateKey ed25519.PrivateKey, validFrom, notValidAfter uint32, remoteStaticPublicKey []byte, authorityPublicKey ed25519.PublicKey) SignatureNoiseMessage {
	msg := signedPart(SignatureVersion, validFrom, notValidAfter, remoteStaticPublicKey, authorityPublicKey)
	sig := ed25519.Sign(authorityPrivateKey, msg)
	out := SignatureNoiseMessage{Version: SignatureVersion, ValidFrom: validFrom, NotValidAfter: notValidAfter}
	copy(out.Signature[:], sig)
	return out
}

// Validate checks m against remoteStaticPublicKey (extracted from the
// live handshake) and the initiator's pinned authorityPublicKey, at time
// now. Rejects if now < valid_from, now >= not_valid_after, or the
// signature does not verify.
func Validate(m SignatureNoiseMessage, remoteStaticPublicKey []byte, authorityPublicKey ed25519.PublicKey, now time.Time) error {
	validFrom := time.Unix(int64(m.ValidFrom), 0)
	notValidAfter := time.Unix(int64(m.NotValidAfter), 0)
	if now.Before(validFrom) {
		return ErrInvalidCertificate
	}
	if !now.Before(notValidAfter) {
		return ErrInvalidCertificate
	}
	msg := signedPart(m.Version, m.ValidFrom, m.NotValidAfter, remoteStaticPublicKey, authorityPublicKey)
	if !ed25519.Verify(authorityPublicKey, msg, m.Signature[:]) {
		return ErrInvalidCertificate
	}
	return nil
}
