// Package selector implements the routing maps that tie a downstream
// connection's pending requests and open channels to the upstream (or
// upstream pool) responsible for them, and pairs a newly-connecting
// downstream with a compatible upstream by protocol version and flags.
//
// Pairing and flag-check semantics follow original_source's
// protocols/v2/roles-logic-sv2/src/selectors.rs.
package selector

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownRequestID is returned when a request id has no pending
// downstream registered for it (duplicate or forged success message).
var ErrUnknownRequestID = errors.New("selector: unknown request id")

// ErrUnknownChannelID is returned when a channel id has no downstream(s)
// registered for it.
var ErrUnknownChannelID = errors.New("selector: unknown channel id")

// ErrUnknownUpstreamID is returned when an upstream id has no entry.
var ErrUnknownUpstreamID = errors.New("selector: unknown upstream id")

// ErrNoCompatibleUpstream is returned when no registered upstream is
// pairable with a downstream's requested version range and flags.
var ErrNoCompatibleUpstream = errors.New("selector: no compatible upstream")

// DownstreamID identifies a downstream connection. The selector treats it
// as an opaque handle; callers supply whatever their transport layer uses
// to address a peer (a net.Conn wrapper, an actor mailbox, etc).
type DownstreamID = string

// Protocol is the SV2 sub-protocol a SetupConnection negotiates
//: mining, job-declaration, template-distribution.
type Protocol uint8

const (
	ProtocolMining Protocol = iota
	ProtocolJobDeclaration
	ProtocolTemplateDistribution
)

// Upstream is a registered upstream candidate available for pairing.
type Upstream struct {
	ID         string
	Protocol   Protocol
	Version    uint16
	Flags      uint32
	Downstream DownstreamID // transport handle used to reach this upstream
}

// FlagCheck decides whether requestedFlags are acceptable given an
// upstream's advertised flags, for the given protocol. Callers supply the
// protocol-specific bit semantics; this layer is intentionally abstract
// over them. A nil FlagCheck accepts any combination.
type FlagCheck func(proto Protocol, requestedFlags, upstreamFlags uint32) bool

// Selector holds the routing maps (pending requests, group and standard
// channel membership) and the set of registered upstreams available for
// pairing. Safe for concurrent use.
type Selector struct {
	mu sync.Mutex
	log *zap.Logger

	pendingByRequestID map[uint32]DownstreamID
	groupsByChannelID  map[uint32][]DownstreamID
	standardByChannelID map[uint32]DownstreamID
	upstreamsByID      map[string]*Upstream

	flagCheck FlagCheck
}

// New creates an empty Selector. log may be nil (a no-op logger is used).
func New(log *zap.Logger, flagCheck FlagCheck) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	if flagCheck == nil {
		flagCheck = func(Protocol, uint32, uint32) bool { return true }
	}
	return &Selector{
		log:                 log,
		pendingByRequestID:  make(map[uint32]DownstreamID),
		groupsByChannelID:   make(map[uint32][]DownstreamID),
		standardByChannelID: make(map[uint32]DownstreamID),
		upstreamsByID:       make(map[string]*Upstream),
		flagCheck:           flagCheck,
	}
}

// RegisterUpstream adds or replaces an upstream candidate.
func (s *Selector) RegisterUpstream(u *Upstream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstreamsByID[u.ID] = u
}

// RemoveUpstream drops an upstream candidate, e.g. on disconnect.
func (s *Selector) RemoveUpstream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.upstreamsByID, id)
}

// TrackRequest records that requestID was issued on behalf of downstream,
// so a later OpenStandardMiningChannelSuccess (or error) can be routed
// back. Each call logs a fresh uuid as correlation_id; it appears only in
// log fields — wire ids remain plain uint32.
func (s *Selector) TrackRequest(requestID uint32, downstream DownstreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingByRequestID[requestID] = downstream
	s.log.Debug("tracking request",
		zap.Uint32("request_id", requestID),
		zap.String("downstream", downstream),
		zap.String("correlation_id", uuid.NewString()),
	)
}

// ResolveRequest pops and returns the downstream registered for requestID
//. Returns ErrUnknownRequestID if none is pending.
func (s *Selector) ResolveRequest(requestID uint32) (DownstreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pendingByRequestID[requestID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownRequestID, requestID)
	}
	delete(s.pendingByRequestID, requestID)
	return d, nil
}

// BindStandardChannel inserts a freshly-opened standard channel into the
// channel_id -> downstream map. Use BindGroupChannel for channels that
// admit multiple downstream members.
func (s *Selector) BindStandardChannel(channelID uint32, downstream DownstreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standardByChannelID[channelID] = downstream
}

// BindGroupChannel adds downstream as a member of the group identified by
// channelID. A group channel aggregates multiple standard channels
//; iteration order for relays is insertion order.
func (s *Selector) BindGroupChannel(channelID uint32, downstream DownstreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.groupsByChannelID[channelID]
	for _, m := range members {
		if m == downstream {
			return
		}
	}
	s.groupsByChannelID[channelID] = append(members, downstream)
}

// StandardDownstream returns the unique downstream bound to channelID.
func (s *Selector) StandardDownstream(channelID uint32) (DownstreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.standardByChannelID[channelID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownChannelID, channelID)
	}
	return d, nil
}

// GroupMembers returns the downstreams bound to group channelID, in
// insertion order. The returned slice is a copy; callers must not rely on
// it reflecting later membership changes.
func (s *Selector) GroupMembers(channelID uint32) ([]DownstreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groupsByChannelID[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannelID, channelID)
	}
	out := make([]DownstreamID, len(members))
	copy(out, members)
	return out, nil
}

// UnbindChannel removes channelID from both the standard and group maps,
// e.g. on CloseChannel.
func (s *Selector) UnbindChannel(channelID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.standardByChannelID, channelID)
	delete(s.groupsByChannelID, channelID)
}

// Pair selects a registered upstream compatible with a downstream's
// requested protocol, version range, and flags. Among pairable upstreams it returns the
// first found (registration order is not guaranteed across a map, so
// callers needing a deterministic tie-break should register a single
// upstream per protocol, which is the common proxy topology) along with
// the bitwise-OR of all pairable upstreams' flags, i.e. the aggregate
// supported-flag set.
func (s *Selector) Pair(proto Protocol, minVersion, maxVersion uint16, requestedFlags uint32) (*Upstream, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chosen *Upstream
	var aggregateFlags uint32
	for _, u := range s.upstreamsByID {
		if u.Protocol != proto {
			continue
		}
		if u.Version < minVersion || u.Version > maxVersion {
			continue
		}
		if !s.flagCheck(proto, requestedFlags, u.Flags) {
			continue
		}
		aggregateFlags |= u.Flags
		if chosen == nil {
			chosen = u
		}
	}
	if chosen == nil {
		return nil, 0, fmt.Errorf("%w: protocol=%d version=[%d,%d]", ErrNoCompatibleUpstream, proto, minVersion, maxVersion)
	}
	return chosen, aggregateFlags, nil
}

// Upstream looks up a registered upstream by id.
func (s *Selector) Upstream(id string) (*Upstream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.upstreamsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpstreamID, id)
	}
	return u, nil
}
