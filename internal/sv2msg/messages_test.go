package sv2msg

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stratum-sv2/sv2core/pkg/binary"
)

func TestSetupConnectionRoundTrip(t *testing.T) {
	want := SetupConnection{
		Protocol:        0,
		MinVersion:      2,
		MaxVersion:      2,
		Flags:           0,
		EndpointHost:    []byte("pool.example.com"),
		EndpointPort:    3333,
		VendorName:      []byte("ACME"),
		HardwareVersion: []byte("S19"),
		Firmware:        []byte("v1.0"),
		DeviceID:        []byte("abc123"),
	}
	got, err := DecodeSetupConnection(binary.NewReader(want.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if got.MinVersion != want.MinVersion || got.EndpointPort != want.EndpointPort {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !bytes.Equal(got.EndpointHost, want.EndpointHost) {
		t.Fatalf("host mismatch: got %q, want %q", got.EndpointHost, want.EndpointHost)
	}
}

func TestOpenStandardMiningChannelRoundTrip(t *testing.T) {
	want := OpenStandardMiningChannel{
		RequestID:       7,
		UserIdentity:    []byte("worker.1"),
		NominalHashRate: 123456.75,
		MaxTarget:       binary.U256{0xff, 0xff},
	}
	got, err := DecodeOpenStandardMiningChannel(binary.NewReader(want.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != want.RequestID || got.NominalHashRate != want.NominalHashRate {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.MaxTarget != want.MaxTarget {
		t.Fatalf("target mismatch: got %x, want %x", got.MaxTarget, want.MaxTarget)
	}
}

func TestNewExtendedMiningJobRoundTrip(t *testing.T) {
	want := NewExtendedMiningJob{
		ChannelID:             4,
		JobID:                 9,
		FutureJob:             true,
		Version:               0x20000000,
		VersionRollingAllowed: true,
		MerklePath:            []binary.U256{{1}, {2}, {3}},
		CoinbaseTxPrefix:      []byte{0xde, 0xad},
		CoinbaseTxSuffix:      []byte{0xbe, 0xef},
	}
	got, err := DecodeNewExtendedMiningJob(binary.NewReader(want.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if !got.FutureJob || !got.VersionRollingAllowed {
		t.Fatalf("boolean flags lost: %+v", got)
	}
	if len(got.MerklePath) != 3 || got.MerklePath[2] != want.MerklePath[2] {
		t.Fatalf("merkle path mismatch: got %v", got.MerklePath)
	}
	if !bytes.Equal(got.CoinbaseTxPrefix, want.CoinbaseTxPrefix) {
		t.Fatalf("prefix mismatch")
	}
}

func TestSubmitSharesExtendedRoundTrip(t *testing.T) {
	want := SubmitSharesExtended{
		ChannelID:      1,
		SequenceNumber: 2,
		JobID:          3,
		Nonce:          4,
		Ntime:          5,
		Version:        6,
		Extranonce:     []byte{0x01, 0x02, 0x03},
	}
	got, err := DecodeSubmitSharesExtended(binary.NewReader(want.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != want.Nonce || got.Ntime != want.Ntime {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !bytes.Equal(got.Extranonce, want.Extranonce) {
		t.Fatalf("extranonce mismatch")
	}
}

func TestDecodeRejectsUnknownMsgType(t *testing.T) {
	_, err := Decode(0xfe, nil)
	if !errors.Is(err, ErrUnknownMsgType) {
		t.Fatalf("expected ErrUnknownMsgType, got %v", err)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	full := SetTarget{ChannelID: 1, MaxTarget: binary.U256{0xff}}.Encode()
	_, err := Decode(MsgSetTarget, full[:len(full)-4])
	if err == nil {
		t.Fatal("expected error decoding truncated SetTarget payload")
	}
}

func TestSetCustomMiningJobRoundTrip(t *testing.T) {
	want := SetCustomMiningJob{
		ChannelID:          1,
		RequestID:          2,
		Token:              []byte("tok"),
		Version:            3,
		PrevHash:           binary.U256{0xaa},
		MinNtime:           4,
		Nbits:              5,
		CoinbaseTxVersion:  6,
		CoinbasePrefix:     []byte{0x01},
		CoinbaseSuffix:     []byte{0x02},
		CoinbaseTxLocktime: 7,
		MerklePath:         []binary.U256{{0x01}, {0x02}},
	}
	got, err := DecodeSetCustomMiningJob(binary.NewReader(want.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != want.RequestID || len(got.MerklePath) != 2 {
		t.Fatalf("got %+v", got)
	}
}
