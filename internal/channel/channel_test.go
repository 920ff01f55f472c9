package channel

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap"

	sv2binary "github.com/stratum-sv2/sv2core/pkg/binary"

	"github.com/stratum-sv2/sv2core/internal/sv2msg"
)

func newTestDispatcher() *GroupDispatcher {
	return NewGroupDispatcher(100, []byte{0xaa, 0xbb}, 4, 1.0, zap.NewNop())
}

func TestOpenStandardChannelAssignsDistinctChannelsAndPrefixes(t *testing.T) {
	d := newTestDispatcher()

	a, err := d.OpenStandardChannel(7, "miner-a", 1e12, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.OpenStandardChannel(8, "miner-b", 1e12, false)
	if err != nil {
		t.Fatal(err)
	}

	if a.RequestID != 7 || b.RequestID != 8 {
		t.Fatalf("request ids not round-tripped: a=%d b=%d", a.RequestID, b.RequestID)
	}
	if a.ChannelID == b.ChannelID {
		t.Fatalf("expected distinct channel ids, both got %d", a.ChannelID)
	}
	if a.GroupChannelID != 100 || b.GroupChannelID != 100 {
		t.Fatalf("expected group_channel_id 100, got %d and %d", a.GroupChannelID, b.GroupChannelID)
	}
	if bytes.Equal(a.ExtranoncePrefix, b.ExtranoncePrefix) {
		t.Fatalf("expected distinct extranonce prefixes, both got %x", a.ExtranoncePrefix)
	}
	if !bytes.HasPrefix(a.ExtranoncePrefix, []byte{0xaa, 0xbb}) {
		t.Fatalf("expected prefix to carry the extranonce base, got %x", a.ExtranoncePrefix)
	}

	rec, ok := d.StandardChannel(a.ChannelID)
	if !ok || rec.Downstream != "miner-a" {
		t.Fatalf("StandardChannel lookup failed: %+v, ok=%v", rec, ok)
	}
}

func TestReceiveNewExtendedMiningJobOrdersStandardBeforeGroup(t *testing.T) {
	d := newTestDispatcher()

	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}
	d.AddGroupChild("nested-proxy", 200)
	if _, err := d.OpenStandardChannel(2, "miner-b", 1e12, false); err != nil {
		t.Fatal(err)
	}

	job := sv2msg.NewExtendedMiningJob{
		ChannelID:        100,
		JobID:            55,
		FutureJob:        false,
		Version:          0x20000000,
		MerklePath:       []sv2binary.U256{{0x01}, {0x02}},
		CoinbaseTxPrefix: []byte{0x01, 0x02},
		CoinbaseTxSuffix: []byte{0x03, 0x04},
	}

	directives := d.ReceiveNewExtendedMiningJob(job)
	if len(directives) != 3 {
		t.Fatalf("expected 3 directives (2 standard + 1 group), got %d", len(directives))
	}
	for i := 0; i < 2; i++ {
		if !directives[i].IsRelayNew() {
			t.Fatalf("directive %d: expected RelayNew (standard rewrite), got %v", i, directives[i])
		}
	}
	if !directives[2].IsRelaySame() || directives[2].Remote != "nested-proxy" {
		t.Fatalf("expected trailing RelaySame(nested-proxy), got %v", directives[2])
	}
}

func TestReceiveNewExtendedMiningJobRewritesMerkleRoot(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}

	job := sv2msg.NewExtendedMiningJob{
		ChannelID:        100,
		JobID:            1,
		FutureJob:        false,
		Version:          0x20000000,
		CoinbaseTxPrefix: []byte{0xde, 0xad},
		CoinbaseTxSuffix: []byte{0xbe, 0xef},
	}
	directives := d.ReceiveNewExtendedMiningJob(job)
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	rewritten, ok := directives[0].Message.(sv2msg.NewMiningJob)
	if !ok {
		t.Fatalf("expected a NewMiningJob, got %T", directives[0].Message)
	}
	var zero sv2binary.U256
	if rewritten.MerkleRoot == zero {
		t.Fatal("expected a non-zero rewritten merkle root")
	}
	if rewritten.Version != job.Version {
		t.Fatalf("expected version to carry through, got %d", rewritten.Version)
	}
}

func TestReceiveSetNewPrevHashPromotesFutureJobs(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}

	futureJob := sv2msg.NewExtendedMiningJob{
		ChannelID: 100,
		JobID:     9,
		FutureJob: true,
	}
	directives := d.ReceiveNewExtendedMiningJob(futureJob)
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive for the future job, got %d", len(directives))
	}
	rewritten := directives[0].Message.(sv2msg.NewMiningJob)

	if err := d.ReceiveSetNewPrevHash(sv2msg.SetNewPrevHash{ChannelID: 100, JobID: 9, Nbits: 0x1d00ffff}); err != nil {
		t.Fatal(err)
	}

	result := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{
		ChannelID: rewritten.ChannelID,
		JobID:     rewritten.JobID,
		Nonce:     42,
	})
	if _, ok := result.(sv2msg.SubmitSharesExtended); !ok {
		t.Fatalf("expected the promoted job to be submittable, got %T: %+v", result, result)
	}
}

func TestReceiveSetNewPrevHashUnknownJobID(t *testing.T) {
	d := newTestDispatcher()
	err := d.ReceiveSetNewPrevHash(sv2msg.SetNewPrevHash{JobID: 999})
	if !errors.Is(err, ErrNoFutureJobs) {
		t.Fatalf("expected ErrNoFutureJobs, got %v", err)
	}
}

func TestReceiveSubmitSharesStandardForwardsKnownJob(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}
	job := sv2msg.NewExtendedMiningJob{ChannelID: 100, JobID: 3}
	directives := d.ReceiveNewExtendedMiningJob(job)
	rewritten := directives[0].Message.(sv2msg.NewMiningJob)

	result := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{
		ChannelID:      rewritten.ChannelID,
		SequenceNumber: 1,
		JobID:          rewritten.JobID,
		Nonce:          55,
		Ntime:          100,
		Version:        0x20000000,
	})
	extended, ok := result.(sv2msg.SubmitSharesExtended)
	if !ok {
		t.Fatalf("expected SubmitSharesExtended, got %T", result)
	}
	if extended.ChannelID != 100 || extended.JobID != job.JobID || extended.Nonce != 55 {
		t.Fatalf("unexpected translated share: %+v", extended)
	}
}

func TestReceiveSubmitSharesStandardInvalidJobID(t *testing.T) {
	d := newTestDispatcher()
	result := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{ChannelID: 100, JobID: 12345})
	errMsg, ok := result.(sv2msg.SubmitSharesError)
	if !ok {
		t.Fatalf("expected SubmitSharesError, got %T", result)
	}
	if !bytes.Equal(errMsg.ErrorCode, sv2msg.ErrorCodeInvalidJobID) {
		t.Fatalf("expected invalid-job-id, got %q", errMsg.ErrorCode)
	}
}

func TestReceiveSubmitSharesStandardStaleShareAfterEviction(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}

	first := d.ReceiveNewExtendedMiningJob(sv2msg.NewExtendedMiningJob{ChannelID: 100, JobID: 1})
	firstJob := first[0].Message.(sv2msg.NewMiningJob)

	for i := 0; i < maxStoredJobs; i++ {
		d.ReceiveNewExtendedMiningJob(sv2msg.NewExtendedMiningJob{ChannelID: 100, JobID: uint32(i + 2)})
	}

	result := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{
		ChannelID: firstJob.ChannelID,
		JobID:     firstJob.JobID,
	})
	errMsg, ok := result.(sv2msg.SubmitSharesError)
	if !ok {
		t.Fatalf("expected the evicted job's share to error, got %T", result)
	}
	if !bytes.Equal(errMsg.ErrorCode, sv2msg.ErrorCodeStaleShare) {
		t.Fatalf("expected stale-share for an evicted job id, got %q", errMsg.ErrorCode)
	}
}

func TestReceiveSetNewPrevHashRetiresPriorEpochJobs(t *testing.T) {
	d := newTestDispatcher()
	if _, err := d.OpenStandardChannel(1, "miner-a", 1e12, false); err != nil {
		t.Fatal(err)
	}

	// A non-future job active under the current prev-hash epoch.
	standing := d.ReceiveNewExtendedMiningJob(sv2msg.NewExtendedMiningJob{ChannelID: 100, JobID: 1})
	standingJob := standing[0].Message.(sv2msg.NewMiningJob)

	// A future job for the next epoch.
	future := d.ReceiveNewExtendedMiningJob(sv2msg.NewExtendedMiningJob{ChannelID: 100, JobID: 2, FutureJob: true})
	futureJob := future[0].Message.(sv2msg.NewMiningJob)

	if err := d.ReceiveSetNewPrevHash(sv2msg.SetNewPrevHash{ChannelID: 100, JobID: 2, Nbits: 0x1d00ffff}); err != nil {
		t.Fatal(err)
	}

	// The standing job from the prior epoch must be stale immediately, not
	// merely eventually evicted by the job-count cap.
	result := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{
		ChannelID: standingJob.ChannelID,
		JobID:     standingJob.JobID,
	})
	errMsg, ok := result.(sv2msg.SubmitSharesError)
	if !ok {
		t.Fatalf("expected the prior-epoch job's share to error, got %T", result)
	}
	if !bytes.Equal(errMsg.ErrorCode, sv2msg.ErrorCodeStaleShare) {
		t.Fatalf("expected stale-share for a prior-epoch job, got %q", errMsg.ErrorCode)
	}

	// The promoted job must still be submittable.
	promotedResult := d.ReceiveSubmitSharesStandard(sv2msg.SubmitSharesStandard{
		ChannelID: futureJob.ChannelID,
		JobID:     futureJob.JobID,
	})
	if _, ok := promotedResult.(sv2msg.SubmitSharesExtended); !ok {
		t.Fatalf("expected the promoted job to remain submittable, got %T: %+v", promotedResult, promotedResult)
	}
}
