// Package channel implements the extended/group/standard channel topology
// and the job-dispatch engine that rewrites an extended job into the
// per-standard-channel jobs its member devices receive, promotes future
// jobs on a new previous-hash, and translates standard-channel share
// submissions into the extended form an upstream expects.
//
// Grounded on internal/work/generator.go's job storage/eviction (a
// monotonic job-id counter plus a bounded map evicted oldest-first) and
// internal/work/template.go's merkle-root rebuild, generalized from a
// single-upstream SV1 job broadcast to the extended -> group -> standard
// fan-out tree original_source's
// protocols/v2/messages-sv2/src/job_dispatcher.rs describes.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	sv2binary "github.com/stratum-sv2/sv2core/pkg/binary"
	"github.com/stratum-sv2/sv2core/pkg/merkle"

	"github.com/stratum-sv2/sv2core/internal/difficulty"
	"github.com/stratum-sv2/sv2core/internal/metrics"
	"github.com/stratum-sv2/sv2core/internal/sv2msg"
)

// ErrNoFutureJobs is returned when a SetNewPrevHash names a job_id with no
// matching future job registered.
var ErrNoFutureJobs = errors.New("channel: no future job for prev-hash job_id")

// maxStoredJobs bounds how many standard job records a dispatcher keeps;
// past this, the oldest (by job id) is evicted, which is what makes a late
// share resolvable as "stale" rather than indistinguishable from garbage.
const maxStoredJobs = 20

// standardJob is a dispatcher's record of one job it handed to a standard
// channel, enough to translate a later share back to the extended upstream.
type standardJob struct {
	standardJobID    uint32
	extendedJobID    uint32
	channelID        uint32
	version          uint32
	extranoncePrefix []byte
}

// StandardChannelRecord is what OpenStandardChannel hands back to the
// caller and keeps internally to answer later share submissions.
type StandardChannelRecord struct {
	ChannelID        uint32
	GroupChannelID   uint32
	Downstream       string
	ExtranoncePrefix []byte
	Target           sv2binary.U256
	HeaderOnly       bool
}

type child struct {
	downstream string
	channelID  uint32
	isGroup    bool
}

// GroupDispatcher is the per-upstream-extended-channel engine: it owns
// channel-id and extranonce-prefix allocation for every standard channel
// opened under it, and drives job rewriting/promotion/share-translation
// for its children. Safe for concurrent use.
type GroupDispatcher struct {
	mu sync.Mutex

	log            *zap.Logger
	groupChannelID uint32
	sharesPerMin   float64

	extranonceBase []byte
	range1Size     int
	nextRange1     uint64
	nextChannelID  uint32

	minNtime uint32
	nbits    uint32
	prevHashValue sv2binary.U256

	jobIDGen   uint32
	jobs       map[uint32]*standardJob
	jobOrder   []uint32
	futureJobs map[uint32]map[uint32]*standardJob

	children     []child
	standardByID map[uint32]*StandardChannelRecord
}

// NewGroupDispatcher creates a dispatcher for the extended channel
// groupChannelID. extranonceBase is the upstream-assigned prefix (range0)
// every channel this dispatcher opens inherits; range1Size is how many
// bytes of per-device extranonce (range1) this dispatcher allocates on top
// of it.
func NewGroupDispatcher(groupChannelID uint32, extranonceBase []byte, range1Size int, sharesPerMin float64, log *zap.Logger) *GroupDispatcher {
	return &GroupDispatcher{
		log:            log,
		groupChannelID: groupChannelID,
		sharesPerMin:   sharesPerMin,
		extranonceBase: append([]byte(nil), extranonceBase...),
		range1Size:     range1Size,
		nextChannelID:  groupChannelID + 1,
		jobs:           make(map[uint32]*standardJob),
		futureJobs:     make(map[uint32]map[uint32]*standardJob),
		standardByID:   make(map[uint32]*StandardChannelRecord),
	}
}

func (d *GroupDispatcher) allocateRange1() []byte {
	n := d.nextRange1
	d.nextRange1++
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], n)
	out := make([]byte, d.range1Size)
	copy(out, full[8-d.range1Size:])
	return out
}

// OpenStandardChannel implements "Opening a standard channel" for a proxy
// whose upstream channel is header-only-off: it allocates a channel id and
// extranonce prefix, computes the share-acceptance target from hashrate,
// and registers downstream as that channel's owner.
func (d *GroupDispatcher) OpenStandardChannel(requestID uint32, downstream string, hashrate float64, headerOnly bool) (sv2msg.OpenStandardMiningChannelSuccess, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, err := difficulty.HashRateToTarget(hashrate, d.sharesPerMin)
	if err != nil {
		return sv2msg.OpenStandardMiningChannelSuccess{}, fmt.Errorf("compute target: %w", err)
	}
	wireTarget := sv2binary.U256(difficulty.TargetToWireLE(target))

	channelID := d.nextChannelID
	d.nextChannelID++

	prefix := append(append([]byte(nil), d.extranonceBase...), d.allocateRange1()...)

	rec := &StandardChannelRecord{
		ChannelID:        channelID,
		GroupChannelID:   d.groupChannelID,
		Downstream:       downstream,
		ExtranoncePrefix: prefix,
		Target:           wireTarget,
		HeaderOnly:       headerOnly,
	}
	d.standardByID[channelID] = rec
	d.children = append(d.children, child{downstream: downstream, channelID: channelID, isGroup: false})
	metrics.ChannelsOpen.Inc()

	return sv2msg.OpenStandardMiningChannelSuccess{
		RequestID:        requestID,
		ChannelID:        channelID,
		Target:           wireTarget,
		ExtranoncePrefix: prefix,
		GroupChannelID:   d.groupChannelID,
	}, nil
}

// AddGroupChild registers channelID (belonging to downstream) as a nested
// group channel: extended jobs relay to it unchanged rather than being
// rewritten into a standard job.
func (d *GroupDispatcher) AddGroupChild(downstream string, channelID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children = append(d.children, child{downstream: downstream, channelID: channelID, isGroup: true})
}

// StandardChannel returns the record for channelID, if one was opened
// through this dispatcher.
func (d *GroupDispatcher) StandardChannel(channelID uint32) (StandardChannelRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.standardByID[channelID]
	if !ok {
		return StandardChannelRecord{}, false
	}
	return *rec, true
}

// ReceiveNewExtendedMiningJob implements "Receiving NewExtendedMiningJob on
// an extended upstream channel": it relays unchanged to group children and
// derives a rewritten NewMiningJob for each standard child, in insertion
// order, standard children first.
func (d *GroupDispatcher) ReceiveNewExtendedMiningJob(msg sv2msg.NewExtendedMiningJob) []sv2msg.Directive {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := make([][]byte, len(msg.MerklePath))
	for i, node := range msg.MerklePath {
		b := node
		path[i] = b[:]
	}

	var standardDirectives, groupDirectives []sv2msg.Directive
	for _, c := range d.children {
		if c.isGroup {
			groupDirectives = append(groupDirectives, sv2msg.RelaySame(c.downstream))
			continue
		}
		rec, ok := d.standardByID[c.channelID]
		if !ok {
			continue
		}
		root := merkle.RootFromPath(msg.CoinbaseTxPrefix, msg.CoinbaseTxSuffix, rec.ExtranoncePrefix, path)

		d.jobIDGen++
		standardJobID := d.jobIDGen
		sj := &standardJob{
			standardJobID:    standardJobID,
			extendedJobID:    msg.JobID,
			channelID:        c.channelID,
			version:          msg.Version,
			extranoncePrefix: rec.ExtranoncePrefix,
		}

		rewritten := sv2msg.NewMiningJob{
			ChannelID:  c.channelID,
			JobID:      standardJobID,
			FutureJob:  msg.FutureJob,
			Version:    msg.Version,
			MerkleRoot: sv2binary.U256(root),
		}

		if msg.FutureJob {
			if d.futureJobs[msg.JobID] == nil {
				d.futureJobs[msg.JobID] = make(map[uint32]*standardJob)
			}
			d.futureJobs[msg.JobID][standardJobID] = sj
		} else {
			d.storeJob(sj)
		}

		standardDirectives = append(standardDirectives, sv2msg.RelayNew(c.downstream, rewritten))
		metrics.JobsDispatched.Inc()
	}

	return append(standardDirectives, groupDirectives...)
}

func (d *GroupDispatcher) storeJob(sj *standardJob) {
	d.jobs[sj.standardJobID] = sj
	d.jobOrder = append(d.jobOrder, sj.standardJobID)
	for len(d.jobOrder) > maxStoredJobs {
		oldest := d.jobOrder[0]
		d.jobOrder = d.jobOrder[1:]
		delete(d.jobs, oldest)
	}
}

// ReceiveSetNewPrevHash implements "Receiving SetNewPrevHash": it promotes
// the named job_id's future jobs to active and clears every other pending
// future job.
func (d *GroupDispatcher) ReceiveSetNewPrevHash(msg sv2msg.SetNewPrevHash) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	promoted, ok := d.futureJobs[msg.JobID]
	if !ok {
		d.log.Warn("set_new_prev_hash for unknown future job",
			zap.Uint32("job_id", msg.JobID), zap.Uint32("group_channel_id", d.groupChannelID))
		return ErrNoFutureJobs
	}
	// A new prev-hash retires every job from the prior epoch, not just the
	// ones it doesn't promote: the live job set becomes exactly the jobs
	// promoted here, so a replace rather than a merge into the existing set.
	d.jobs = make(map[uint32]*standardJob, len(promoted))
	d.jobOrder = make([]uint32, 0, len(promoted))
	for _, sj := range promoted {
		d.jobs[sj.standardJobID] = sj
		d.jobOrder = append(d.jobOrder, sj.standardJobID)
	}
	metrics.FutureJobsPromoted.Add(float64(len(promoted)))
	d.futureJobs = make(map[uint32]map[uint32]*standardJob)

	d.prevHashValue = msg.PrevHash
	d.nbits = msg.Nbits
	d.minNtime = msg.MinNtime
	d.log.Debug("promoted future jobs on new prev hash",
		zap.Uint32("job_id", msg.JobID), zap.Int("promoted", len(promoted)))
	return nil
}

// ReceiveSubmitSharesStandard implements "Receiving SubmitSharesStandard
// from downstream": on a known job it returns the SubmitSharesExtended to
// forward upstream; on an unknown job it returns a SubmitSharesError
// distinguishing a job that was once valid (stale-share) from one that
// was never issued (invalid-job-id).
func (d *GroupDispatcher) ReceiveSubmitSharesStandard(msg sv2msg.SubmitSharesStandard) sv2msg.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	sj, ok := d.jobs[msg.JobID]
	if !ok {
		code := sv2msg.ErrorCodeInvalidJobID
		if msg.JobID > 0 && msg.JobID <= d.jobIDGen {
			code = sv2msg.ErrorCodeStaleShare
		}
		d.log.Debug("rejecting submit for unknown job", zap.Uint32("job_id", msg.JobID), zap.ByteString("error_code", code))
		metrics.SharesRejected.WithLabelValues(string(code)).Inc()
		return sv2msg.SubmitSharesError{
			ChannelID:      msg.ChannelID,
			SequenceNumber: msg.SequenceNumber,
			ErrorCode:      code,
		}
	}

	metrics.SharesAccepted.Inc()
	return sv2msg.SubmitSharesExtended{
		ChannelID:      d.groupChannelID,
		SequenceNumber: msg.SequenceNumber,
		JobID:          sj.extendedJobID,
		Nonce:          msg.Nonce,
		Ntime:          msg.Ntime,
		Version:        msg.Version,
		Extranonce:     sj.extranoncePrefix,
	}
}
