// Package events defines the structured event stream an orchestrator
// fans in from the channel engine, SV1 bridge, and noise transport:
// one tagged type per state transition worth logging, metering, or
// acting on (e.g. closing a downstream on a handshake failure).
package events

import "github.com/stratum-sv2/sv2core/internal/sv2msg"

// Event is the tagged-union interface every event type implements.
type Event interface {
	// Kind returns a short, stable name for metrics/logging labels.
	Kind() string
}

// ChannelOpened signals a standard or extended channel was opened.
type ChannelOpened struct {
	ChannelID  uint32
	Downstream string
}

func (ChannelOpened) Kind() string { return "channel_opened" }

// JobDispatched signals a standard/SV1 job was derived from an upstream
// extended job and handed to a downstream.
type JobDispatched struct {
	ChannelID uint32
	JobID     uint32
	FutureJob bool
}

func (JobDispatched) Kind() string { return "job_dispatched" }

// PrevHashPromoted signals future jobs under JobID were promoted to
// active on a new previous hash.
type PrevHashPromoted struct {
	JobID     uint32
	Promoted  int
	ChannelID uint32
}

func (PrevHashPromoted) Kind() string { return "prev_hash_promoted" }

// ShareResult signals the outcome of a submitted share.
type ShareResult struct {
	ChannelID uint32
	JobID     uint32
	Accepted  bool
	ErrorCode string
}

func (ShareResult) Kind() string { return "share_result" }

// BridgeSessionOpened signals a new SV1 downstream connected to the bridge.
type BridgeSessionOpened struct {
	SessionID string
}

func (BridgeSessionOpened) Kind() string { return "bridge_session_opened" }

// BridgeSessionClosed signals an SV1 downstream disconnected.
type BridgeSessionClosed struct {
	SessionID string
	Reason    string
}

func (BridgeSessionClosed) Kind() string { return "bridge_session_closed" }

// HandshakeCompleted signals a noise session was established.
type HandshakeCompleted struct {
	RemoteStatic string
}

func (HandshakeCompleted) Kind() string { return "handshake_completed" }

// HandshakeFailed signals a noise handshake was aborted or rejected.
type HandshakeFailed struct {
	Reason string
}

func (HandshakeFailed) Kind() string { return "handshake_failed" }

// MessageDropped signals a dispatched message could not be delivered to
// its target (e.g. a relay whose downstream has since disconnected).
type MessageDropped struct {
	Downstream string
	MsgType    uint8
}

func (MessageDropped) Kind() string { return "message_dropped" }

// FromSubmitResult builds a ShareResult from a channel/bridge dispatch
// outcome: msg is either a SubmitSharesExtended (accepted) or a
// SubmitSharesError (rejected).
func FromSubmitResult(channelID uint32, msg sv2msg.Message) ShareResult {
	switch m := msg.(type) {
	case sv2msg.SubmitSharesExtended:
		return ShareResult{ChannelID: channelID, JobID: m.JobID, Accepted: true}
	case sv2msg.SubmitSharesError:
		return ShareResult{ChannelID: channelID, ErrorCode: string(m.ErrorCode)}
	default:
		return ShareResult{ChannelID: channelID}
	}
}
