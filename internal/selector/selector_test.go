package selector

import (
	"errors"
	"testing"
)

func TestTrackAndResolveRequest(t *testing.T) {
	s := New(nil, nil)
	s.TrackRequest(7, "downstream-a")

	got, err := s.ResolveRequest(7)
	if err != nil {
		t.Fatal(err)
	}
	if got != "downstream-a" {
		t.Fatalf("got %q, want downstream-a", got)
	}

	if _, err := s.ResolveRequest(7); !errors.Is(err, ErrUnknownRequestID) {
		t.Fatalf("expected ErrUnknownRequestID on second resolve, got %v", err)
	}
}

func TestBindStandardAndGroupChannels(t *testing.T) {
	s := New(nil, nil)
	s.BindGroupChannel(1, "dev-a")
	s.BindGroupChannel(1, "dev-b")
	s.BindGroupChannel(1, "dev-a") // duplicate, should not double-insert

	members, err := s.GroupMembers(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0] != "dev-a" || members[1] != "dev-b" {
		t.Fatalf("members = %v, want [dev-a dev-b] in insertion order", members)
	}

	s.BindStandardChannel(42, "dev-c")
	got, err := s.StandardDownstream(42)
	if err != nil {
		t.Fatal(err)
	}
	if got != "dev-c" {
		t.Fatalf("got %q, want dev-c", got)
	}

	s.UnbindChannel(42)
	if _, err := s.StandardDownstream(42); !errors.Is(err, ErrUnknownChannelID) {
		t.Fatalf("expected ErrUnknownChannelID after unbind, got %v", err)
	}
}

func TestPairSelectsVersionAndFlagCompatibleUpstream(t *testing.T) {
	flagCheck := func(proto Protocol, requested, upstream uint32) bool {
		return requested&upstream == requested
	}
	s := New(nil, flagCheck)

	s.RegisterUpstream(&Upstream{ID: "too-old", Protocol: ProtocolMining, Version: 1, Flags: 0xff})
	s.RegisterUpstream(&Upstream{ID: "wrong-flags", Protocol: ProtocolMining, Version: 2, Flags: 0x01})
	s.RegisterUpstream(&Upstream{ID: "good", Protocol: ProtocolMining, Version: 2, Flags: 0x0f})

	u, aggregate, err := s.Pair(ProtocolMining, 2, 2, 0x0c)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "good" {
		t.Fatalf("paired with %q, want good", u.ID)
	}
	if aggregate&0x0c != 0x0c {
		t.Fatalf("aggregate flags %#x missing requested bits", aggregate)
	}
}

func TestPairReturnsErrorWhenNoneCompatible(t *testing.T) {
	s := New(nil, nil)
	s.RegisterUpstream(&Upstream{ID: "v1", Protocol: ProtocolMining, Version: 1, Flags: 0})

	if _, _, err := s.Pair(ProtocolMining, 2, 5, 0); !errors.Is(err, ErrNoCompatibleUpstream) {
		t.Fatalf("expected ErrNoCompatibleUpstream, got %v", err)
	}
}

func TestPairIgnoresOtherProtocols(t *testing.T) {
	s := New(nil, nil)
	s.RegisterUpstream(&Upstream{ID: "jd", Protocol: ProtocolJobDeclaration, Version: 2, Flags: 0})

	if _, _, err := s.Pair(ProtocolMining, 2, 2, 0); !errors.Is(err, ErrNoCompatibleUpstream) {
		t.Fatalf("expected ErrNoCompatibleUpstream across protocols, got %v", err)
	}
}

func TestRemoveUpstreamMakesItUnpairable(t *testing.T) {
	s := New(nil, nil)
	s.RegisterUpstream(&Upstream{ID: "u1", Protocol: ProtocolMining, Version: 2, Flags: 0})
	s.RemoveUpstream("u1")

	if _, _, err := s.Pair(ProtocolMining, 2, 2, 0); !errors.Is(err, ErrNoCompatibleUpstream) {
		t.Fatalf("expected ErrNoCompatibleUpstream after removal, got %v", err)
	}
	if _, err := s.Upstream("u1"); !errors.Is(err, ErrUnknownUpstreamID) {
		t.Fatalf("expected ErrUnknownUpstreamID, got %v", err)
	}
}
