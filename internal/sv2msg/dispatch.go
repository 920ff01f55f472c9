package sv2msg

import "fmt"

// Directive tells a connection's I/O loop what to do with the Message a
// handler produced: relay it (to the same remote the original came from,
// or to an explicitly named one), respond directly, fan out to several
// directives at once, or do nothing (optionally keeping the message around
// for further, non-routing use).
//
// Generalized from original_source's utils/general-utils-sv2/src/send_to.rs
// SendTo_ enum: RelayNewMessageToRemote and RelayNewMessage collapse into
// one RelayNew carrying an optional remote (empty Remote means "let the
// caller pick," matching the extended-channel case send_to.rs documents).
type Directive struct {
	kind    directiveKind
	Remote  string
	Message Message
	Parts   []Directive
}

type directiveKind uint8

const (
	directiveNone directiveKind = iota
	directiveRelaySame
	directiveRelayNew
	directiveRespond
	directiveMultiple
)

// RelaySame relays the message exactly as received to remote.
func RelaySame(remote string) Directive {
	return Directive{kind: directiveRelaySame, Remote: remote}
}

// RelayNew relays msg (a transformed or freshly-built message) to remote.
// An empty remote defers the choice of destination to the caller, for
// topologies (an extended channel feeding many standard downstreams) where
// no single remote is the natural target.
func RelayNew(remote string, msg Message) Directive {
	return Directive{kind: directiveRelayNew, Remote: remote, Message: msg}
}

// Respond replies directly to the sender of the message being handled.
func Respond(msg Message) Directive {
	return Directive{kind: directiveRespond, Message: msg}
}

// Multiple bundles several directives to be carried out in order.
func Multiple(parts ...Directive) Directive {
	return Directive{kind: directiveMultiple, Parts: parts}
}

// None produces no routing action. msg may be nil (discard) or a message
// that still needs non-routing handling (e.g. a Template-Distribution
// message translated into a Mining-side job before any send happens).
func None(msg Message) Directive {
	return Directive{kind: directiveNone, Message: msg}
}

// IsRelaySame reports whether d relays the original message unmodified.
func (d Directive) IsRelaySame() bool { return d.kind == directiveRelaySame }

// IsRelayNew reports whether d relays a newly-built or transformed message.
func (d Directive) IsRelayNew() bool { return d.kind == directiveRelayNew }

// IsRespond reports whether d responds directly to the sender.
func (d Directive) IsRespond() bool { return d.kind == directiveRespond }

// IsMultiple reports whether d bundles several directives.
func (d Directive) IsMultiple() bool { return d.kind == directiveMultiple }

// IsNone reports whether d carries no routing action.
func (d Directive) IsNone() bool { return d.kind == directiveNone }

func (d Directive) String() string {
	switch d.kind {
	case directiveRelaySame:
		return fmt.Sprintf("RelaySame(%s)", d.Remote)
	case directiveRelayNew:
		return fmt.Sprintf("RelayNew(%s, %#x)", d.Remote, d.Message.MsgType())
	case directiveRespond:
		return fmt.Sprintf("Respond(%#x)", d.Message.MsgType())
	case directiveMultiple:
		return fmt.Sprintf("Multiple(%d)", len(d.Parts))
	default:
		return "None"
	}
}

// ErrWrongCapability is returned when a message arrives for a role that
// never registered a handler for it (e.g. a mining message reaching a
// connection that only set up the Common capability set).
var ErrWrongCapability = fmt.Errorf("sv2msg: message valid for role but no handler registered")

// DownstreamCommonHandler handles Common sub-protocol messages received
// from a downstream (the role-neutral connection-setup exchange every
// SV2 link starts with).
type DownstreamCommonHandler interface {
	HandleSetupConnection(from string, m SetupConnection) (Directive, error)
}

// UpstreamCommonHandler handles Common sub-protocol messages received
// from an upstream.
type UpstreamCommonHandler interface {
	HandleSetupConnectionSuccess(from string, m SetupConnectionSuccess) (Directive, error)
	HandleSetupConnectionError(from string, m SetupConnectionError) (Directive, error)
}

// DownstreamMiningHandler handles Mining sub-protocol messages received
// from a downstream (a mining device, or a proxy acting as one upstream).
type DownstreamMiningHandler interface {
	HandleOpenStandardMiningChannel(from string, m OpenStandardMiningChannel) (Directive, error)
	HandleOpenExtendedMiningChannel(from string, m OpenExtendedMiningChannel) (Directive, error)
	HandleUpdateChannel(from string, m UpdateChannel) (Directive, error)
	HandleCloseChannel(from string, m CloseChannel) (Directive, error)
	HandleSubmitSharesStandard(from string, m SubmitSharesStandard) (Directive, error)
	HandleSubmitSharesExtended(from string, m SubmitSharesExtended) (Directive, error)
	HandleSetCustomMiningJob(from string, m SetCustomMiningJob) (Directive, error)
}

// UpstreamMiningHandler handles Mining sub-protocol messages received
// from an upstream pool or proxy.
type UpstreamMiningHandler interface {
	HandleOpenStandardMiningChannelSuccess(from string, m OpenStandardMiningChannelSuccess) (Directive, error)
	HandleOpenExtendedMiningChannelSuccess(from string, m OpenExtendedMiningChannelSuccess) (Directive, error)
	HandleOpenMiningChannelError(from string, m OpenMiningChannelError) (Directive, error)
	HandleUpdateChannelError(from string, m UpdateChannelError) (Directive, error)
	HandleNewMiningJob(from string, m NewMiningJob) (Directive, error)
	HandleNewExtendedMiningJob(from string, m NewExtendedMiningJob) (Directive, error)
	HandleSetNewPrevHash(from string, m SetNewPrevHash) (Directive, error)
	HandleSetTarget(from string, m SetTarget) (Directive, error)
	HandleSetExtranoncePrefix(from string, m SetExtranoncePrefix) (Directive, error)
	HandleSubmitSharesSuccess(from string, m SubmitSharesSuccess) (Directive, error)
	HandleSubmitSharesError(from string, m SubmitSharesError) (Directive, error)
	HandleSetCustomMiningJobSuccess(from string, m SetCustomMiningJobSuccess) (Directive, error)
	HandleSetCustomMiningJobError(from string, m SetCustomMiningJobError) (Directive, error)
	HandleReconnect(from string, m Reconnect) (Directive, error)
}

// DispatchDownstream decodes a message received from a downstream and
// invokes the matching handler on h (Common messages) or m (Mining
// messages). Either handler may be nil if the connection never registers
// that capability set; a message whose handler is nil yields
// ErrWrongCapability. A msg_type with no decoder, or one not valid from a
// downstream, yields ErrUnknownMsgType.
func DispatchDownstream(from string, msgType uint8, payload []byte, h DownstreamCommonHandler, m DownstreamMiningHandler) (Directive, error) {
	msg, err := Decode(msgType, payload)
	if err != nil {
		return Directive{}, err
	}
	switch v := msg.(type) {
	case SetupConnection:
		if h == nil {
			return Directive{}, ErrWrongCapability
		}
		return h.HandleSetupConnection(from, v)
	case OpenStandardMiningChannel:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleOpenStandardMiningChannel(from, v)
	case OpenExtendedMiningChannel:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleOpenExtendedMiningChannel(from, v)
	case UpdateChannel:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleUpdateChannel(from, v)
	case CloseChannel:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleCloseChannel(from, v)
	case SubmitSharesStandard:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSubmitSharesStandard(from, v)
	case SubmitSharesExtended:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSubmitSharesExtended(from, v)
	case SetCustomMiningJob:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetCustomMiningJob(from, v)
	default:
		return Directive{}, fmt.Errorf("%w: %#x not valid from a downstream", ErrUnknownMsgType, msgType)
	}
}

// DispatchUpstream decodes a message received from an upstream and invokes
// the matching handler on h (Common messages) or m (Mining messages).
func DispatchUpstream(from string, msgType uint8, payload []byte, h UpstreamCommonHandler, m UpstreamMiningHandler) (Directive, error) {
	msg, err := Decode(msgType, payload)
	if err != nil {
		return Directive{}, err
	}
	switch v := msg.(type) {
	case SetupConnectionSuccess:
		if h == nil {
			return Directive{}, ErrWrongCapability
		}
		return h.HandleSetupConnectionSuccess(from, v)
	case SetupConnectionError:
		if h == nil {
			return Directive{}, ErrWrongCapability
		}
		return h.HandleSetupConnectionError(from, v)
	case OpenStandardMiningChannelSuccess:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleOpenStandardMiningChannelSuccess(from, v)
	case OpenExtendedMiningChannelSuccess:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleOpenExtendedMiningChannelSuccess(from, v)
	case OpenMiningChannelError:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleOpenMiningChannelError(from, v)
	case UpdateChannelError:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleUpdateChannelError(from, v)
	case NewMiningJob:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleNewMiningJob(from, v)
	case NewExtendedMiningJob:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleNewExtendedMiningJob(from, v)
	case SetNewPrevHash:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetNewPrevHash(from, v)
	case SetTarget:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetTarget(from, v)
	case SetExtranoncePrefix:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetExtranoncePrefix(from, v)
	case SubmitSharesSuccess:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSubmitSharesSuccess(from, v)
	case SubmitSharesError:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSubmitSharesError(from, v)
	case SetCustomMiningJobSuccess:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetCustomMiningJobSuccess(from, v)
	case SetCustomMiningJobError:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleSetCustomMiningJobError(from, v)
	case Reconnect:
		if m == nil {
			return Directive{}, ErrWrongCapability
		}
		return m.HandleReconnect(from, v)
	default:
		return Directive{}, fmt.Errorf("%w: %#x not valid from an upstream", ErrUnknownMsgType, msgType)
	}
}
