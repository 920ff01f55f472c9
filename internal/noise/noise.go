// Package noise implements the SV2 handshake and transport: algorithm
// negotiation, a Noise XX-pattern handshake binding a signed certificate
// to the responder's static key, and AEAD transport encrypt/decrypt.
//
// The handshake drives flynn/noise directly through an explicit
// send-message/receive-message state machine, since SV2's handshake
// (algorithm negotiation up front, a signed certificate instead of a bare
// static key, a pinned "Noise_NX_25519_<Cipher>_BLAKE2s" suite name) has
// no off-the-shelf transport wrapper to reuse.
package noise

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	flynnnoise "github.com/flynn/noise"

	"github.com/stratum-sv2/sv2core/internal/cert"
	"github.com/stratum-sv2/sv2core/internal/metrics"
)

// Algo identifies a negotiable AEAD algorithm: ChaChaPoly = 1, AesGcm = 2.
type Algo uint8

const (
	AlgoChaChaPoly Algo = 1
	AlgoAesGcm     Algo = 2
)

func (a Algo) String() string {
	switch a {
	case AlgoChaChaPoly:
		return "ChaChaPoly"
	case AlgoAesGcm:
		return "AesGcm"
	default:
		return fmt.Sprintf("Algo(%d)", uint8(a))
	}
}

// MaxTransportPlaintext is the largest plaintext a single transport
// message may carry.
const MaxTransportPlaintext = 65519

var (
	// ErrNoCompatibleAlgo is returned by a responder when none of the
	// initiator's requested algorithms are in its own supported list.
	ErrNoCompatibleAlgo = errors.New("noise: no compatible algorithm")
	// ErrDecryptFailed is returned when transport or handshake AEAD
	// decryption fails (bad tag, wrong key, or tampered ciphertext).
	ErrDecryptFailed = errors.New("noise: decrypt failed")
	// ErrFrameTooLarge is returned when a plaintext exceeds
	// MaxTransportPlaintext.
	ErrFrameTooLarge = errors.New("noise: frame too large")
	// ErrUnexpectedStage is returned when a handshake method is called out
	// of order (e.g. Step3 before Step2).
	ErrUnexpectedStage = errors.New("noise: handshake called out of order")
)

// EncodeNegotiation serializes a NegotiationMessage: a 1-byte count
// followed by that many 1-byte algorithm tags.
func EncodeNegotiation(algos []Algo) []byte {
	out := make([]byte, 1+len(algos))
	out[0] = uint8(len(algos))
	for i, a := range algos {
		out[1+i] = uint8(a)
	}
	return out
}

// DecodeNegotiation parses a NegotiationMessage.
func DecodeNegotiation(b []byte) ([]Algo, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("noise: truncated negotiation message")
	}
	count := int(b[0])
	if len(b) < 1+count {
		return nil, fmt.Errorf("noise: truncated negotiation message: want %d tags, have %d", count, len(b)-1)
	}
	out := make([]Algo, count)
	for i := 0; i < count; i++ {
		out[i] = Algo(b[1+i])
	}
	return out, nil
}

// prologue builds the canonical "count(requested) || algo_tags ||
// chosen_algo_tag" byte string both sides must agree on bit-for-bit
//.
func prologue(requested []Algo, chosen Algo) []byte {
	out := EncodeNegotiation(requested)
	return append(out, uint8(chosen))
}

// cipherSuite maps a negotiated algorithm to the flynn/noise CipherSuite
// parameterizing Noise_NX_25519_<Cipher>_BLAKE2s.
func cipherSuite(algo Algo) (flynnnoise.CipherSuite, error) {
	switch algo {
	case AlgoChaChaPoly:
		return flynnnoise.NewCipherSuite(flynnnoise.DH25519, flynnnoise.CipherChaChaPoly, flynnnoise.HashBLAKE2s), nil
	case AlgoAesGcm:
		return flynnnoise.NewCipherSuite(flynnnoise.DH25519, flynnnoise.CipherAESGCM, flynnnoise.HashBLAKE2s), nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrNoCompatibleAlgo, algo)
	}
}

// StaticKeypair generates a fresh X25519 static keypair for use as a
// session's Noise identity, using the ChaChaPoly suite's DH function
// (the DH function is the same across algo choices — only cipher/hash
// differ).
func StaticKeypair() (flynnnoise.DHKey, error) {
	suite, _ := cipherSuite(AlgoChaChaPoly)
	return suite.GenerateKeypair(rand.Reader)
}

// Authority holds the keypair used to sign responder certificates
// (the pool/proxy operator's long-lived identity, distinct from the
// per-session static Noise key).
type Authority struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// CertValidity controls the window a freshly-minted certificate is valid
// for; responders mint one per session start using time.Now().
type CertValidity struct {
	ValidFrom     time.Time
	NotValidAfter time.Time
}

func (v CertValidity) encode() (uint32, uint32) {
	return uint32(v.ValidFrom.Unix()), uint32(v.NotValidAfter.Unix())
}

// stage tracks where a handshake session is in the 3-message XX exchange
// plus the 1-message negotiation that precedes it.
type stage int

const (
	stageNegotiating stage = iota
	stageHandshaking
	stageDone
)

// Initiator drives the initiator side of the handshake: send
// negotiation, receive chosen algo, perform the XX exchange, validate the
// responder's certificate against a pinned authority key.
type Initiator struct {
	preferredAlgos  []Algo
	authorityPubKey ed25519.PublicKey
	staticKeypair   flynnnoise.DHKey
	now             func() time.Time

	stage      stage
	chosenAlgo Algo
	hs         *flynnnoise.HandshakeState

	sendCipher, recvCipher *flynnnoise.CipherState
}

// NewInitiator creates an initiator that will offer preferredAlgos (in
// preference order) and verify the responder's certificate against
// authorityPubKey.
func NewInitiator(staticKeypair flynnnoise.DHKey, preferredAlgos []Algo, authorityPubKey ed25519.PublicKey) *Initiator {
	return &Initiator{
		preferredAlgos:  preferredAlgos,
		authorityPubKey: authorityPubKey,
		staticKeypair:   staticKeypair,
		now:             time.Now,
	}
}

// Step1 returns the NegotiationMessage bytes to send.
func (in *Initiator) Step1() []byte {
	return EncodeNegotiation(in.preferredAlgos)
}

// Step2 consumes the responder's 1-byte chosen-algorithm reply and
// returns the handshake's first message ("-> e") to send.
func (in *Initiator) Step2(chosenAlgoByte byte) ([]byte, error) {
	if in.stage != stageNegotiating {
		return nil, ErrUnexpectedStage
	}
	chosen := Algo(chosenAlgoByte)
	suite, err := cipherSuite(chosen)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, err
	}
	in.chosenAlgo = chosen

	hs, err := flynnnoise.NewHandshakeState(flynnnoise.Config{
		CipherSuite:   suite,
		Random:        rand.Reader,
		Pattern:       flynnnoise.HandshakeXX,
		Initiator:     true,
		Prologue:      prologue(in.preferredAlgos, chosen),
		StaticKeypair: in.staticKeypair,
	})
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: build initiator handshake: %w", err)
	}
	in.hs = hs

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: write handshake message 1: %w", err)
	}
	in.stage = stageHandshaking
	return msg, nil
}

// Step3 consumes the responder's "<- e, ee, s, es, SIG" message, validates
// the embedded certificate, and returns the final "-> s, se" message to
// send. On success the session is ready for Transport().
func (in *Initiator) Step3(received []byte) ([]byte, error) {
	if in.stage != stageHandshaking || in.hs == nil {
		return nil, ErrUnexpectedStage
	}
	payload, _, _, err := in.hs.ReadMessage(nil, received)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	sigMsg, err := cert.Decode(payload)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: decode certificate: %w", err)
	}
	remoteStatic := in.hs.PeerStatic()
	if err := cert.Validate(sigMsg, remoteStatic, in.authorityPubKey, in.now()); err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, err
	}

	out, cs1, cs2, err := in.hs.WriteMessage(nil, nil)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: write handshake message 3: %w", err)
	}
	in.sendCipher, in.recvCipher = cs1, cs2
	in.stage = stageDone
	return out, nil
}

// Transport returns the completed session's AEAD transport. It is an
// error to call this before the handshake finishes.
func (in *Initiator) Transport() (*Transport, error) {
	if in.stage != stageDone {
		return nil, ErrUnexpectedStage
	}
	metrics.HandshakesCompleted.Inc()
	return &Transport{send: in.sendCipher, recv: in.recvCipher}, nil
}

// Responder drives the responder side: receive negotiation, choose an
// algorithm from its own preference list, perform the XX exchange while
// presenting a freshly-signed certificate, and finish the handshake.
type Responder struct {
	supportedAlgos []Algo
	staticKeypair  flynnnoise.DHKey
	authority      Authority
	validity       CertValidity

	stage      stage
	chosenAlgo Algo
	requested  []Algo
	hs         *flynnnoise.HandshakeState

	sendCipher, recvCipher *flynnnoise.CipherState
}

// NewResponder creates a responder that accepts any of supportedAlgos (in
// preference order) and signs its certificate with authority.
func NewResponder(staticKeypair flynnnoise.DHKey, supportedAlgos []Algo, authority Authority, validity CertValidity) *Responder {
	return &Responder{
		supportedAlgos: supportedAlgos,
		staticKeypair:  staticKeypair,
		authority:      authority,
		validity:       validity,
	}
}

// Step1 consumes the initiator's NegotiationMessage and returns the
// 1-byte chosen-algorithm reply: the first entry in supportedAlgos that
// also appears in the initiator's requested list.
func (r *Responder) Step1(negotiationMsg []byte) (byte, error) {
	requested, err := DecodeNegotiation(negotiationMsg)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return 0, err
	}
	r.requested = requested

	requestedSet := make(map[Algo]bool, len(requested))
	for _, a := range requested {
		requestedSet[a] = true
	}
	for _, a := range r.supportedAlgos {
		if requestedSet[a] {
			r.chosenAlgo = a
			r.stage = stageHandshaking
			return uint8(a), nil
		}
	}
	metrics.HandshakesFailed.Inc()
	return 0, ErrNoCompatibleAlgo
}

// Step2 consumes the initiator's "-> e" message and returns the
// responder's "<- e, ee, s, es, SIG" message, embedding a freshly-signed
// certificate over this session's static public key.
func (r *Responder) Step2(received []byte) ([]byte, error) {
	if r.stage != stageHandshaking {
		return nil, ErrUnexpectedStage
	}
	suite, err := cipherSuite(r.chosenAlgo)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, err
	}

	hs, err := flynnnoise.NewHandshakeState(flynnnoise.Config{
		CipherSuite:   suite,
		Random:        rand.Reader,
		Pattern:       flynnnoise.HandshakeXX,
		Initiator:     false,
		Prologue:      prologue(r.requested, r.chosenAlgo),
		StaticKeypair: r.staticKeypair,
	})
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: build responder handshake: %w", err)
	}
	r.hs = hs

	if _, _, _, err := hs.ReadMessage(nil, received); err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	validFrom, notValidAfter := r.validity.encode()
	sigMsg := cert.Sign(r.authority.PrivateKey, validFrom, notValidAfter, r.staticKeypair.Public, r.authority.PublicKey)

	out, _, _, err := hs.WriteMessage(nil, sigMsg.Encode())
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return nil, fmt.Errorf("noise: write handshake message 2: %w", err)
	}
	return out, nil
}

// Step3 consumes the initiator's final "-> s, se" message, completing the
// handshake. After this call Transport() is ready.
func (r *Responder) Step3(received []byte) error {
	if r.hs == nil {
		return ErrUnexpectedStage
	}
	_, cs1, cs2, err := r.hs.ReadMessage(nil, received)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	// Roles are swapped relative to the initiator: the responder's
	// receiving cipher is the initiator's sending cipher and vice versa.
	r.recvCipher, r.sendCipher = cs1, cs2
	r.stage = stageDone
	return nil
}

// Transport returns the completed session's AEAD transport.
func (r *Responder) Transport() (*Transport, error) {
	if r.stage != stageDone {
		return nil, ErrUnexpectedStage
	}
	metrics.HandshakesCompleted.Inc()
	return &Transport{send: r.sendCipher, recv: r.recvCipher}, nil
}

// Transport wraps the two CipherStates a completed handshake produces,
// each maintaining its own internal nonce counter, and enforces
// MaxTransportPlaintext on every encrypt.
type Transport struct {
	send, recv *flynnnoise.CipherState
}

// Encrypt seals plaintext for transmission. Returns ErrFrameTooLarge if
// plaintext exceeds MaxTransportPlaintext.
func (t *Transport) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxTransportPlaintext {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(plaintext))
	}
	return t.send.Encrypt(nil, nil, plaintext), nil
}

// Decrypt opens a received ciphertext+tag.
func (t *Transport) Decrypt(ciphertext []byte) ([]byte, error) {
	out, err := t.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return out, nil
}

