package conn

import (
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stratum-sv2/sv2core/internal/noise"
	"github.com/stratum-sv2/sv2core/internal/sv2msg"
)

// handshakedTransports runs a full noise handshake locally (no bytes over
// the wire) and returns the initiator and responder's matching transport
// pair, mirroring internal/noise's own round-trip test.
func handshakedTransports(t *testing.T) (*noise.Transport, *noise.Transport) {
	t.Helper()
	authorityPub, authorityPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	initStatic, err := noise.StaticKeypair()
	if err != nil {
		t.Fatal(err)
	}
	respStatic, err := noise.StaticKeypair()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	validity := noise.CertValidity{ValidFrom: now.Add(-time.Hour), NotValidAfter: now.Add(time.Hour)}

	initiator := noise.NewInitiator(initStatic, []noise.Algo{noise.AlgoChaChaPoly}, authorityPub)
	responder := noise.NewResponder(respStatic, []noise.Algo{noise.AlgoChaChaPoly}, noise.Authority{PublicKey: authorityPub, PrivateKey: authorityPriv}, validity)

	negotiation := initiator.Step1()
	chosenByte, err := responder.Step1(negotiation)
	if err != nil {
		t.Fatal(err)
	}
	msg1, err := initiator.Step2(chosenByte)
	if err != nil {
		t.Fatal(err)
	}
	msg2, err := responder.Step2(msg1)
	if err != nil {
		t.Fatal(err)
	}
	msg3, err := initiator.Step3(msg2)
	if err != nil {
		t.Fatal(err)
	}
	if err := responder.Step3(msg3); err != nil {
		t.Fatal(err)
	}
	initTransport, err := initiator.Transport()
	if err != nil {
		t.Fatal(err)
	}
	respTransport, err := responder.Transport()
	if err != nil {
		t.Fatal(err)
	}
	return initTransport, respTransport
}

type stubDownstreamCommon struct {
	received chan sv2msg.SetupConnection
}

func (s *stubDownstreamCommon) HandleSetupConnection(from string, m sv2msg.SetupConnection) (sv2msg.Directive, error) {
	s.received <- m
	return sv2msg.Respond(sv2msg.SetupConnectionSuccess{UsedVersion: 2, Flags: 0}), nil
}

type stubUpstreamCommon struct {
	success chan sv2msg.SetupConnectionSuccess
}

func (s *stubUpstreamCommon) HandleSetupConnectionSuccess(from string, m sv2msg.SetupConnectionSuccess) (sv2msg.Directive, error) {
	s.success <- m
	return sv2msg.None(nil), nil
}

func (s *stubUpstreamCommon) HandleSetupConnectionError(from string, m sv2msg.SetupConnectionError) (sv2msg.Directive, error) {
	return sv2msg.None(nil), nil
}

func TestConnRoundTripsSetupConnection(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	clientTransport, serverTransport := handshakedTransports(t)

	log := zap.NewNop()
	registry := NewRegistry(log)

	downstream := &stubDownstreamCommon{received: make(chan sv2msg.SetupConnection, 1)}
	upstream := &stubUpstreamCommon{success: make(chan sv2msg.SetupConnectionSuccess, 1)}

	serverConn := New("server", false, serverRaw, serverTransport, Handlers{DownstreamCommon: downstream}, registry, log)
	clientConn := New("client", true, clientRaw, clientTransport, Handlers{UpstreamCommon: upstream}, registry, log)
	registry.Add(serverConn)
	registry.Add(clientConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverConn.Run(ctx)
	go clientConn.Run(ctx)

	clientConn.Send(sv2msg.SetupConnection{
		Protocol:   0,
		MinVersion: 2,
		MaxVersion: 2,
		VendorName: []byte("test"),
	})

	select {
	case got := <-downstream.received:
		if got.MinVersion != 2 {
			t.Fatalf("unexpected SetupConnection: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to receive SetupConnection")
	}

	select {
	case got := <-upstream.success:
		if got.UsedVersion != 2 {
			t.Fatalf("unexpected SetupConnectionSuccess: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to receive SetupConnectionSuccess")
	}
}

func TestRegistryRouteToUnknownRemoteErrors(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	err := r.Route("from", sv2msg.RelayNew("ghost", sv2msg.SetupConnectionSuccess{}))
	if err == nil {
		t.Fatal("expected an error routing to an unregistered remote")
	}
}

func TestRegistryAddRemoveTracksMembership(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c := &Conn{ID: "a"}
	r.Add(c)
	if _, ok := r.Get("a"); !ok {
		t.Fatal("expected a to be registered")
	}
	r.Remove("a")
	if _, ok := r.Get("a"); ok {
		t.Fatal("expected a to be removed")
	}
}

func TestResolveRelaySameReplacesNestedDirectives(t *testing.T) {
	orig := sv2msg.SetupConnectionSuccess{UsedVersion: 2}
	d := sv2msg.Multiple(sv2msg.RelaySame("x"), sv2msg.RelaySame("y"))
	resolved := resolveRelaySame(d, orig)
	if !resolved.IsMultiple() || len(resolved.Parts) != 2 {
		t.Fatalf("expected a resolved Multiple with 2 parts, got %+v", resolved)
	}
	for _, part := range resolved.Parts {
		if !part.IsRelayNew() || part.Message != sv2msg.Message(orig) {
			t.Fatalf("expected every part resolved to RelayNew(orig), got %+v", part)
		}
	}
}
