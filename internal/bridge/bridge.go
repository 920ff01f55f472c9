package bridge

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	sv2binary "github.com/stratum-sv2/sv2core/pkg/binary"
	"github.com/stratum-sv2/sv2core/pkg/merkle"

	"github.com/stratum-sv2/sv2core/internal/difficulty"
	"github.com/stratum-sv2/sv2core/internal/metrics"
	"github.com/stratum-sv2/sv2core/internal/stratum"
	"github.com/stratum-sv2/sv2core/internal/sv2msg"
)

// ErrNoFutureJob is returned when a SetNewPrevHash names a job_id this
// bridge never saw as a future extended job.
var ErrNoFutureJob = errors.New("bridge: no future job for prev-hash job_id")

// ErrUnknownSession is returned for an operation against a session id the
// bridge never opened.
var ErrUnknownSession = errors.New("bridge: unknown session")

// pdiff is the Bitcoin "pool difficulty 1" target used to convert a raw
// 32-byte target into the small decimal value mining.set_difficulty sends.
var pdiff, _ = new(big.Int).SetString("00000000FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", 16)

// maxStoredSV1Jobs bounds how many translated jobs a bridge keeps for
// later mining.submit lookups; mirrors internal/channel's eviction policy.
const maxStoredSV1Jobs = 20

// defaultVersionRollingMinBitCount is the minimum rolling-bit count this
// bridge advertises when a device negotiates version-rolling.
const defaultVersionRollingMinBitCount = 2

type sv1Job struct {
	id            uint32
	extendedJobID uint32
	coinbase1     string
	coinbase2     string
	merkleBranch  []string
	version       uint32
}

// Session is one SV1 downstream connection's negotiated state.
type Session struct {
	ID string

	mu                       sync.Mutex
	authorized               map[string]struct{}
	versionRollingNegotiated bool
	versionRollingMask       uint32
	extranonce1              []byte
	extranonce2Size          int
	limiter                  *rate.Limiter
}

func (s *Session) isAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authorized) > 0
}

// Push is a batch of SV1 notifications a caller's I/O loop should write to
// one session, in order.
type Push struct {
	SessionID     string
	Notifications []*stratum.Notification
}

// Bridge is the per-extended-channel SV1<->SV2 translation engine: it
// terminates SV1 JSON-RPC sessions, allocates each one an extranonce1 under
// a shared upstream-assigned prefix, and translates NewExtendedMiningJob /
// SetNewPrevHash / SetTarget from the upstream into mining.notify /
// mining.set_difficulty for every downstream, and mining.submit back into
// SubmitSharesExtended.
type Bridge struct {
	mu sync.Mutex

	log            *zap.Logger
	channelID      uint32
	extranonceBase []byte
	range1Size     int
	range2Size     int
	nextRange1     uint64
	sequence       atomic.Uint32

	target          sv2binary.U256
	firstPairReady  bool
	havePrevHash    bool
	prevHashStratum string
	nbits           uint32
	minNtime        uint32

	currentJob *sv1Job
	jobIDGen   uint32
	jobs       map[uint32]*sv1Job
	jobOrder   []uint32
	futureJobs map[uint32]*sv1Job

	sessions map[string]*Session
}

// NewBridge creates a bridge for extended channel channelID. extranonceBase
// is the upstream-assigned range0 prefix; range1Size bytes are allocated
// per-session (range1) on top of it, leaving range2Size bytes for the SV1
// device's own extranonce2 counter.
func NewBridge(channelID uint32, extranonceBase []byte, range1Size, range2Size int, log *zap.Logger) *Bridge {
	return &Bridge{
		log:            log,
		channelID:      channelID,
		extranonceBase: append([]byte(nil), extranonceBase...),
		range1Size:     range1Size,
		range2Size:     range2Size,
		jobs:           make(map[uint32]*sv1Job),
		futureJobs:     make(map[uint32]*sv1Job),
		sessions:       make(map[string]*Session),
	}
}

func (b *Bridge) allocateRange1() []byte {
	n := b.nextRange1
	b.nextRange1++
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], n)
	out := make([]byte, b.range1Size)
	copy(out, full[8-b.range1Size:])
	return out
}

// OpenSession registers a new SV1 downstream connection and allocates its
// extranonce1. submitRate/submitBurst bound how many mining.submit lines
// per second this session's mining.submit calls accept before being
// silently dropped (still acked true, per SV1's asynchronous-ack contract).
func (b *Bridge) OpenSession(id string, submitRate rate.Limit, submitBurst int) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Session{
		ID:              id,
		authorized:      make(map[string]struct{}),
		extranonce1:     append(append([]byte(nil), b.extranonceBase...), b.allocateRange1()...),
		extranonce2Size: b.range2Size,
		limiter:         rate.NewLimiter(submitRate, submitBurst),
	}
	b.sessions[id] = s
	metrics.BridgeSessions.Inc()
	return s
}

// CloseSession forgets a session.
func (b *Bridge) CloseSession(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[id]; ok {
		metrics.BridgeSessions.Dec()
	}
	delete(b.sessions, id)
}

func (b *Bridge) session(id string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// HandleConfigure implements mining.configure: when the device asks for
// version-rolling it reports support with defaultVersionRollingMask and
// defaultVersionRollingMinBitCount; otherwise it replies with an empty
// result.
func (b *Bridge) HandleConfigure(sessionID string, req *stratum.Request) (*stratum.Response, error) {
	s, err := b.session(sessionID)
	if err != nil {
		return nil, err
	}
	params, err := decodeConfigureParams(req.Params)
	if err != nil {
		return nil, err
	}
	rolling := params.wantsVersionRolling()
	s.mu.Lock()
	s.versionRollingNegotiated = rolling
	s.versionRollingMask = defaultVersionRollingMask
	s.mu.Unlock()
	if !rolling {
		return &stratum.Response{ID: req.ID, Result: map[string]interface{}{}}, nil
	}
	return buildConfigureResult(req.ID, defaultVersionRollingMask, defaultVersionRollingMinBitCount, false), nil
}

// HandleSubscribe implements mining.subscribe, handing back this session's
// extranonce1/extranonce2_size.
func (b *Bridge) HandleSubscribe(sessionID string, req *stratum.Request) (*stratum.Response, error) {
	s, err := b.session(sessionID)
	if err != nil {
		return nil, err
	}
	if _, _, err := decodeSubscribeParams(req.Params); err != nil {
		return nil, err
	}
	s.mu.Lock()
	extranonce1 := append([]byte(nil), s.extranonce1...)
	extranonce2Size := s.extranonce2Size
	s.mu.Unlock()
	return buildSubscribeResult(req.ID, "1", "2", extranonce1, extranonce2Size), nil
}

// HandleAuthorize implements mining.authorize. If this is the session's
// first successful authorization and an active job already exists, the
// returned notifications (set_difficulty, then notify) must be pushed to
// the session immediately afterward.
func (b *Bridge) HandleAuthorize(sessionID string, req *stratum.Request) (*stratum.Response, []*stratum.Notification, error) {
	s, err := b.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	user, _, err := decodeAuthorizeParams(req.Params)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	_, wasAuthorized := s.authorized[user]
	s.authorized[user] = struct{}{}
	s.mu.Unlock()

	var push []*stratum.Notification
	if !wasAuthorized {
		b.mu.Lock()
		if b.currentJob != nil && b.havePrevHash {
			push = append(push, buildSetDifficulty(b.currentDifficulty()))
			push = append(push, b.notifyFor(true))
		}
		b.mu.Unlock()
	}
	return buildBoolResult(req.ID, true), push, nil
}

// HandleSubmit implements mining.submit: it always acks true (SV1's
// asynchronous-ack contract) and, when the job is known and the session
// hasn't exceeded its submit rate, returns the translated
// SubmitSharesExtended to forward upstream.
func (b *Bridge) HandleSubmit(sessionID string, req *stratum.Request) (*stratum.Response, sv2msg.Message, error) {
	s, err := b.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	p, err := decodeSubmitParams(req.Params)
	if err != nil {
		return nil, nil, err
	}
	ack := buildBoolResult(req.ID, true)

	if !s.limiter.Allow() {
		return ack, nil, nil
	}

	jobID64, err := strconv.ParseUint(p.JobID, 16, 32)
	if err != nil {
		return ack, nil, nil
	}
	nonce64, err := strconv.ParseUint(p.Nonce, 16, 32)
	if err != nil {
		return ack, nil, nil
	}
	ntime64, err := strconv.ParseUint(p.Ntime, 16, 32)
	if err != nil {
		return ack, nil, nil
	}
	extranonce2, err := hex.DecodeString(p.Extranonce2)
	if err != nil {
		return ack, nil, nil
	}

	b.mu.Lock()
	sj, ok := b.jobs[uint32(jobID64)]
	b.mu.Unlock()
	if !ok {
		return ack, nil, nil
	}

	s.mu.Lock()
	version := sj.version
	if s.versionRollingNegotiated && p.VersionBits != nil {
		version = (sj.version &^ s.versionRollingMask) | (*p.VersionBits & s.versionRollingMask)
	}
	extranonce := append(append([]byte(nil), s.extranonce1...), extranonce2...)
	s.mu.Unlock()

	extended := sv2msg.SubmitSharesExtended{
		ChannelID:      b.channelID,
		SequenceNumber: b.sequence.Add(1),
		JobID:          sj.extendedJobID,
		Nonce:          uint32(nonce64),
		Ntime:          uint32(ntime64),
		Version:        version,
		Extranonce:     extranonce,
	}
	metrics.SharesAccepted.Inc()
	return ack, extended, nil
}

// ReceiveNewExtendedMiningJob records an upstream job translation. A
// non-future job becomes current immediately; if a previous hash is
// already known, this also broadcasts a fresh mining.notify (clean_jobs)
// to every authorized session. A future job is held until the matching
// ReceiveSetNewPrevHash promotes it.
func (b *Bridge) ReceiveNewExtendedMiningJob(msg sv2msg.NewExtendedMiningJob) []Push {
	b.mu.Lock()
	defer b.mu.Unlock()

	merkleBranch := make([]string, len(msg.MerklePath))
	for i, node := range msg.MerklePath {
		merkleBranch[i] = hex.EncodeToString(node[:])
	}

	b.jobIDGen++
	sj := &sv1Job{
		id:            b.jobIDGen,
		extendedJobID: msg.JobID,
		coinbase1:     hex.EncodeToString(msg.CoinbaseTxPrefix),
		coinbase2:     hex.EncodeToString(msg.CoinbaseTxSuffix),
		merkleBranch:  merkleBranch,
		version:       msg.Version,
	}

	if msg.FutureJob {
		b.futureJobs[msg.JobID] = sj
		return nil
	}

	b.storeJob(sj)
	b.currentJob = sj
	if !b.havePrevHash {
		return nil
	}
	return b.broadcast(true)
}

func (b *Bridge) storeJob(sj *sv1Job) {
	b.jobs[sj.id] = sj
	b.jobOrder = append(b.jobOrder, sj.id)
	for len(b.jobOrder) > maxStoredSV1Jobs {
		oldest := b.jobOrder[0]
		b.jobOrder = b.jobOrder[1:]
		delete(b.jobs, oldest)
	}
}

// ReceiveSetNewPrevHash promotes the future job msg.JobID to current,
// records the new previous hash/nbits/min-ntime, and broadcasts a fresh
// mining.notify (plus, the first time, an initial mining.set_difficulty)
// to every authorized session.
func (b *Bridge) ReceiveSetNewPrevHash(msg sv2msg.SetNewPrevHash) ([]Push, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sj, ok := b.futureJobs[msg.JobID]
	if !ok {
		b.log.Warn("set_new_prev_hash for unknown future job", zap.Uint32("job_id", msg.JobID))
		return nil, ErrNoFutureJob
	}
	b.futureJobs = make(map[uint32]*sv1Job)
	b.storeJob(sj)
	b.currentJob = sj

	b.prevHashStratum = stratumPrevHashFromWire(msg.PrevHash)
	b.nbits = msg.Nbits
	b.minNtime = msg.MinNtime
	b.havePrevHash = true

	b.log.Debug("promoted future job on new prev hash",
		zap.Uint32("job_id", msg.JobID), zap.String("prev_hash", b.prevHashStratum))
	return b.broadcast(true), nil
}

// ReceiveSetTarget updates the share-acceptance target and broadcasts a
// fresh mining.set_difficulty to every authorized session if it changed.
func (b *Bridge) ReceiveSetTarget(msg sv2msg.SetTarget) []Push {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.MaxTarget == b.target {
		return nil
	}
	b.target = msg.MaxTarget
	diff := buildSetDifficulty(b.currentDifficulty())

	var pushes []Push
	for id, s := range b.sessions {
		if !s.isAuthorized() {
			continue
		}
		pushes = append(pushes, Push{SessionID: id, Notifications: []*stratum.Notification{diff}})
	}
	return pushes
}

// broadcast must be called with b.mu held. It builds a notify (and, the
// first time a job/prevhash pair is complete, a preceding set_difficulty)
// and returns one Push per currently-authorized session.
func (b *Bridge) broadcast(cleanJobs bool) []Push {
	notify := b.notifyFor(cleanJobs)
	firstPair := !b.firstPairReady
	b.firstPairReady = true

	var pushes []Push
	for id, s := range b.sessions {
		if !s.isAuthorized() {
			continue
		}
		notifs := []*stratum.Notification{notify}
		if firstPair {
			notifs = append([]*stratum.Notification{buildSetDifficulty(b.currentDifficulty())}, notifs...)
		}
		pushes = append(pushes, Push{SessionID: id, Notifications: notifs})
	}
	return pushes
}

// notifyFor must be called with b.mu held.
func (b *Bridge) notifyFor(cleanJobs bool) *stratum.Notification {
	j := b.currentJob
	return buildNotify(
		fmt.Sprintf("%x", j.id),
		b.prevHashStratum,
		j.coinbase1,
		j.coinbase2,
		j.merkleBranch,
		j.version,
		b.nbits,
		b.minNtime,
		cleanJobs,
	)
}

// currentDifficulty must be called with b.mu held.
func (b *Bridge) currentDifficulty() float64 {
	var zero sv2binary.U256
	if b.target == zero {
		return 1
	}
	be := merkle.ReverseBytes(b.target[:])
	return difficulty.TargetToDifficulty(new(big.Int).SetBytes(be), pdiff)
}

// stratumPrevHashFromWire converts an SV2 previous-hash value into SV1's
// prevhash wire format: each 4-byte word of the 32-byte value byte-swapped.
// Same word-swap internal/work/template.go's displayToStratumPrevHash
// applies, adapted for a value already in internal (non-reversed) byte
// order on this wire.
func stratumPrevHashFromWire(prevHash sv2binary.U256) string {
	b := append([]byte(nil), prevHash[:]...)
	for i := 0; i < len(b)-3; i += 4 {
		b[i], b[i+3] = b[i+3], b[i]
		b[i+1], b[i+2] = b[i+2], b[i+1]
	}
	return hex.EncodeToString(b)
}
