package sv2msg

import (
	"errors"
	"testing"

	"github.com/stratum-sv2/sv2core/pkg/binary"
)

type recordingDownstreamHandler struct {
	lastFrom string
}

func (h *recordingDownstreamHandler) HandleSetupConnection(from string, m SetupConnection) (Directive, error) {
	h.lastFrom = from
	return Respond(SetupConnectionSuccess{UsedVersion: m.MaxVersion}), nil
}

func (h *recordingDownstreamHandler) HandleOpenStandardMiningChannel(from string, m OpenStandardMiningChannel) (Directive, error) {
	return RelayNew("", OpenStandardMiningChannelSuccess{RequestID: m.RequestID, ChannelID: 1}), nil
}

func (h *recordingDownstreamHandler) HandleOpenExtendedMiningChannel(from string, m OpenExtendedMiningChannel) (Directive, error) {
	return None(nil), nil
}

func (h *recordingDownstreamHandler) HandleUpdateChannel(from string, m UpdateChannel) (Directive, error) {
	return None(nil), nil
}

func (h *recordingDownstreamHandler) HandleCloseChannel(from string, m CloseChannel) (Directive, error) {
	return None(nil), nil
}

func (h *recordingDownstreamHandler) HandleSubmitSharesStandard(from string, m SubmitSharesStandard) (Directive, error) {
	return RelaySame("pool-upstream"), nil
}

func (h *recordingDownstreamHandler) HandleSubmitSharesExtended(from string, m SubmitSharesExtended) (Directive, error) {
	return None(nil), nil
}

func (h *recordingDownstreamHandler) HandleSetCustomMiningJob(from string, m SetCustomMiningJob) (Directive, error) {
	return None(nil), nil
}

func TestDispatchDownstreamRoutesToCommonHandler(t *testing.T) {
	h := &recordingDownstreamHandler{}
	sc := SetupConnection{Protocol: 0, MinVersion: 2, MaxVersion: 2}
	d, err := DispatchDownstream("miner-1", MsgSetupConnection, sc.Encode(), h, h)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsRespond() {
		t.Fatalf("expected Respond directive, got %v", d)
	}
	if h.lastFrom != "miner-1" {
		t.Fatalf("handler did not receive from id, got %q", h.lastFrom)
	}
}

func TestDispatchDownstreamRoutesToMiningHandler(t *testing.T) {
	h := &recordingDownstreamHandler{}
	share := SubmitSharesStandard{ChannelID: 1, SequenceNumber: 1, JobID: 1, Nonce: 1, Ntime: 1, Version: 1}
	d, err := DispatchDownstream("miner-1", MsgSubmitSharesStandard, share.Encode(), h, h)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsRelaySame() || d.Remote != "pool-upstream" {
		t.Fatalf("expected RelaySame(pool-upstream), got %v", d)
	}
}

func TestDispatchDownstreamRejectsMessageWithNoHandler(t *testing.T) {
	sc := SetupConnection{}
	_, err := DispatchDownstream("miner-1", MsgSetupConnection, sc.Encode(), nil, nil)
	if !errors.Is(err, ErrWrongCapability) {
		t.Fatalf("expected ErrWrongCapability, got %v", err)
	}
}

func TestDispatchDownstreamRejectsUpstreamOnlyMessage(t *testing.T) {
	h := &recordingDownstreamHandler{}
	success := SetupConnectionSuccess{UsedVersion: 2}.Encode()
	_, err := DispatchDownstream("miner-1", MsgSetupConnectionSuccess, success, h, h)
	if err == nil {
		t.Fatal("expected an error dispatching an upstream-only message as if from a downstream")
	}
}

type recordingUpstreamHandler struct {
	gotTarget binary.U256
}

func (h *recordingUpstreamHandler) HandleSetupConnectionSuccess(from string, m SetupConnectionSuccess) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSetupConnectionError(from string, m SetupConnectionError) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleOpenStandardMiningChannelSuccess(from string, m OpenStandardMiningChannelSuccess) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleOpenExtendedMiningChannelSuccess(from string, m OpenExtendedMiningChannelSuccess) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleOpenMiningChannelError(from string, m OpenMiningChannelError) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleUpdateChannelError(from string, m UpdateChannelError) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleNewMiningJob(from string, m NewMiningJob) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleNewExtendedMiningJob(from string, m NewExtendedMiningJob) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSetNewPrevHash(from string, m SetNewPrevHash) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSetTarget(from string, m SetTarget) (Directive, error) {
	h.gotTarget = m.MaxTarget
	return Multiple(RelaySame("downstream-a"), RelaySame("downstream-b")), nil
}

func (h *recordingUpstreamHandler) HandleSetExtranoncePrefix(from string, m SetExtranoncePrefix) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSubmitSharesSuccess(from string, m SubmitSharesSuccess) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSubmitSharesError(from string, m SubmitSharesError) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSetCustomMiningJobSuccess(from string, m SetCustomMiningJobSuccess) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleSetCustomMiningJobError(from string, m SetCustomMiningJobError) (Directive, error) {
	return None(nil), nil
}

func (h *recordingUpstreamHandler) HandleReconnect(from string, m Reconnect) (Directive, error) {
	return None(nil), nil
}

func TestDispatchUpstreamFansOutSetTargetToGroupMembers(t *testing.T) {
	h := &recordingUpstreamHandler{}
	target := binary.U256{0x01, 0x02}
	st := SetTarget{ChannelID: 9, MaxTarget: target}
	d, err := DispatchUpstream("pool-1", MsgSetTarget, st.Encode(), h, h)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsMultiple() || len(d.Parts) != 2 {
		t.Fatalf("expected Multiple(2), got %v", d)
	}
	if h.gotTarget != target {
		t.Fatalf("handler did not observe target: got %x, want %x", h.gotTarget, target)
	}
}

func TestDispatchUpstreamUnknownMsgType(t *testing.T) {
	h := &recordingUpstreamHandler{}
	_, err := DispatchUpstream("pool-1", 0xfd, nil, h, h)
	if !errors.Is(err, ErrUnknownMsgType) {
		t.Fatalf("expected ErrUnknownMsgType, got %v", err)
	}
}

func TestDirectiveStringers(t *testing.T) {
	cases := []Directive{
		RelaySame("x"),
		RelayNew("x", SetTarget{}),
		Respond(SetTarget{}),
		Multiple(None(nil)),
		None(nil),
	}
	for _, d := range cases {
		if d.String() == "" {
			t.Fatalf("empty String() for %#v", d)
		}
	}
}
