// Package sv2msg implements the tagged-union message set for the Common
// and Mining sub-protocols, their binary codec built on
// pkg/binary, and the dispatch layer that turns a decoded message into a
// routing directive.
//
// Job-Declaration and Template-Distribution messages are out of scope:
// full JD/TD role orchestration isn't implemented, and no component in
// this tree parses their wire forms — only the Common and Mining
// families, which the channel/job engine and SV1 bridge actually
// exercise, are.
//
// Field layout and message grouping follow
// original_source's protocols/v2/messages-sv2/src/*.rs.
package sv2msg

import (
	"errors"
	"fmt"
	"math"

	"github.com/stratum-sv2/sv2core/pkg/binary"
)

// Protocol identifies which sub-protocol family a message belongs to.
// Only Common and Mining are modeled; see the package doc comment.
type Protocol uint8

const (
	ProtocolCommon Protocol = iota
	ProtocolMining
)

// Message type bytes, grouped by family with room to grow. Nothing
// downstream of this package cares about the numeric value beyond
// round-tripping through Decode, so these are this implementation's own
// assignment rather than a value pinned elsewhere.
const (
	MsgSetupConnection        uint8 = 0x00
	MsgSetupConnectionSuccess uint8 = 0x01
	MsgSetupConnectionError   uint8 = 0x02
	MsgChannelEndpointChanged uint8 = 0x03
)

const (
	MsgOpenStandardMiningChannel        uint8 = 0x10
	MsgOpenStandardMiningChannelSuccess uint8 = 0x11
	MsgOpenExtendedMiningChannel        uint8 = 0x12
	MsgOpenExtendedMiningChannelSuccess uint8 = 0x13
	MsgOpenMiningChannelError           uint8 = 0x14
	MsgUpdateChannel                    uint8 = 0x15
	MsgUpdateChannelError               uint8 = 0x16
	MsgCloseChannel                     uint8 = 0x17
	MsgSetExtranoncePrefix              uint8 = 0x18
	MsgSubmitSharesStandard             uint8 = 0x19
	MsgSubmitSharesExtended             uint8 = 0x1a
	MsgSubmitSharesSuccess              uint8 = 0x1b
	MsgSubmitSharesError                uint8 = 0x1c
	MsgNewMiningJob                     uint8 = 0x1d
	MsgNewExtendedMiningJob             uint8 = 0x1e
	MsgSetNewPrevHash                   uint8 = 0x1f
	MsgSetTarget                        uint8 = 0x20
	MsgSetCustomMiningJob               uint8 = 0x21
	MsgSetCustomMiningJobSuccess        uint8 = 0x22
	MsgSetCustomMiningJobError          uint8 = 0x23
	MsgReconnect                        uint8 = 0x24
)

// ErrUnknownMsgType is returned when a msg_type byte has no registered
// decoder for the given protocol.
var ErrUnknownMsgType = errors.New("sv2msg: unknown msg_type")

// Message is implemented by every concrete SV2 message this package
// knows how to encode. MsgType identifies the variant for framing.
type Message interface {
	MsgType() uint8
	Encode() []byte
}

func writeF32(w *binary.Writer, v float32) {
	w.U32(math.Float32bits(v))
}

func readF32(r *binary.Reader) (float32, error) {
	bits, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func writeU256Seq(w *binary.Writer, items []binary.U256) error {
	return binary.WriteSeq0_255(w, items, func(w *binary.Writer, v binary.U256) error {
		w.U256(v)
		return nil
	})
}

func readU256Seq(r *binary.Reader) ([]binary.U256, error) {
	return binary.ReadSeq0_255(r, func(r *binary.Reader) (binary.U256, error) { return r.U256() })
}

// --- Common sub-protocol ----------------------------------------------

// SetupConnection is the first message on any new connection.
type SetupConnection struct {
	Protocol         uint8
	MinVersion       uint16
	MaxVersion       uint16
	Flags            uint32
	EndpointHost     []byte
	EndpointPort     uint16
	VendorName       []byte
	HardwareVersion  []byte
	Firmware         []byte
	DeviceID         []byte
}

func (SetupConnection) MsgType() uint8 { return MsgSetupConnection }

func (m SetupConnection) Encode() []byte {
	w := binary.NewWriter()
	w.U8(m.Protocol)
	w.U16(m.MinVersion)
	w.U16(m.MaxVersion)
	w.U32(m.Flags)
	_ = w.B0_255(m.EndpointHost)
	w.U16(m.EndpointPort)
	_ = w.B0_255(m.VendorName)
	_ = w.B0_255(m.HardwareVersion)
	_ = w.B0_255(m.Firmware)
	_ = w.B0_255(m.DeviceID)
	return w.Bytes()
}

func DecodeSetupConnection(r *binary.Reader) (SetupConnection, error) {
	var m SetupConnection
	var err error
	if m.Protocol, err = r.U8(); err != nil {
		return m, err
	}
	if m.MinVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.MaxVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	if m.EndpointHost, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.EndpointPort, err = r.U16(); err != nil {
		return m, err
	}
	if m.VendorName, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.HardwareVersion, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.Firmware, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.DeviceID, err = r.B0_255(); err != nil {
		return m, err
	}
	return m, nil
}

// SetupConnectionSuccess replies with the negotiated version and flags.
type SetupConnectionSuccess struct {
	UsedVersion uint16
	Flags       uint32
}

func (SetupConnectionSuccess) MsgType() uint8 { return MsgSetupConnectionSuccess }

func (m SetupConnectionSuccess) Encode() []byte {
	w := binary.NewWriter()
	w.U16(m.UsedVersion)
	w.U32(m.Flags)
	return w.Bytes()
}

func DecodeSetupConnectionSuccess(r *binary.Reader) (SetupConnectionSuccess, error) {
	var m SetupConnectionSuccess
	var err error
	if m.UsedVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	return m, nil
}

// SetupConnectionError rejects a connection attempt.
type SetupConnectionError struct {
	Flags     uint32
	ErrorCode []byte
}

func (SetupConnectionError) MsgType() uint8 { return MsgSetupConnectionError }

func (m SetupConnectionError) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.Flags)
	_ = w.B0_32(m.ErrorCode)
	return w.Bytes()
}

func DecodeSetupConnectionError(r *binary.Reader) (SetupConnectionError, error) {
	var m SetupConnectionError
	var err error
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// --- Mining sub-protocol ------------------------------------------------

// OpenStandardMiningChannel requests a new standard channel.
type OpenStandardMiningChannel struct {
	RequestID      uint32
	UserIdentity   []byte
	NominalHashRate float32
	MaxTarget      binary.U256
}

func (OpenStandardMiningChannel) MsgType() uint8 { return MsgOpenStandardMiningChannel }

func (m OpenStandardMiningChannel) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.RequestID)
	_ = w.B0_255(m.UserIdentity)
	writeF32(w, m.NominalHashRate)
	w.U256(m.MaxTarget)
	return w.Bytes()
}

func DecodeOpenStandardMiningChannel(r *binary.Reader) (OpenStandardMiningChannel, error) {
	var m OpenStandardMiningChannel
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.UserIdentity, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = readF32(r); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	return m, nil
}

// OpenStandardMiningChannelSuccess is the dispatcher's reply when a
// standard channel opens successfully.
type OpenStandardMiningChannelSuccess struct {
	RequestID        uint32
	ChannelID        uint32
	Target           binary.U256
	ExtranoncePrefix []byte
	GroupChannelID   uint32
}

func (OpenStandardMiningChannelSuccess) MsgType() uint8 {
	return MsgOpenStandardMiningChannelSuccess
}

func (m OpenStandardMiningChannelSuccess) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.RequestID)
	w.U32(m.ChannelID)
	w.U256(m.Target)
	_ = w.B0_32(m.ExtranoncePrefix)
	w.U32(m.GroupChannelID)
	return w.Bytes()
}

func DecodeOpenStandardMiningChannelSuccess(r *binary.Reader) (OpenStandardMiningChannelSuccess, error) {
	var m OpenStandardMiningChannelSuccess
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Target, err = r.U256(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	if m.GroupChannelID, err = r.U32(); err != nil {
		return m, err
	}
	return m, nil
}

// OpenExtendedMiningChannel requests a new extended channel.
type OpenExtendedMiningChannel struct {
	RequestID         uint32
	UserIdentity      []byte
	NominalHashRate   float32
	MaxTarget         binary.U256
	MinExtranonceSize uint16
}

func (OpenExtendedMiningChannel) MsgType() uint8 { return MsgOpenExtendedMiningChannel }

func (m OpenExtendedMiningChannel) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.RequestID)
	_ = w.B0_255(m.UserIdentity)
	writeF32(w, m.NominalHashRate)
	w.U256(m.MaxTarget)
	w.U16(m.MinExtranonceSize)
	return w.Bytes()
}

func DecodeOpenExtendedMiningChannel(r *binary.Reader) (OpenExtendedMiningChannel, error) {
	var m OpenExtendedMiningChannel
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.UserIdentity, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = readF32(r); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	if m.MinExtranonceSize, err = r.U16(); err != nil {
		return m, err
	}
	return m, nil
}

// OpenExtendedMiningChannelSuccess replies to OpenExtendedMiningChannel.
type OpenExtendedMiningChannelSuccess struct {
	RequestID        uint32
	ChannelID        uint32
	Target           binary.U256
	ExtranonceSize   uint16
	ExtranoncePrefix []byte
}

func (OpenExtendedMiningChannelSuccess) MsgType() uint8 {
	return MsgOpenExtendedMiningChannelSuccess
}

func (m OpenExtendedMiningChannelSuccess) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.RequestID)
	w.U32(m.ChannelID)
	w.U256(m.Target)
	w.U16(m.ExtranonceSize)
	_ = w.B0_32(m.ExtranoncePrefix)
	return w.Bytes()
}

func DecodeOpenExtendedMiningChannelSuccess(r *binary.Reader) (OpenExtendedMiningChannelSuccess, error) {
	var m OpenExtendedMiningChannelSuccess
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Target, err = r.U256(); err != nil {
		return m, err
	}
	if m.ExtranonceSize, err = r.U16(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// OpenMiningChannelError rejects an open-channel request.
type OpenMiningChannelError struct {
	RequestID uint32
	ErrorCode []byte
}

func (OpenMiningChannelError) MsgType() uint8 { return MsgOpenMiningChannelError }

func (m OpenMiningChannelError) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.RequestID)
	_ = w.B0_32(m.ErrorCode)
	return w.Bytes()
}

func DecodeOpenMiningChannelError(r *binary.Reader) (OpenMiningChannelError, error) {
	var m OpenMiningChannelError
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// NewMiningJob is sent on a standard channel; it is derived from an
// extended job by the channel/job engine rather than built directly.
type NewMiningJob struct {
	ChannelID  uint32
	JobID      uint32
	FutureJob  bool
	Version    uint32
	MerkleRoot binary.U256
}

func (NewMiningJob) MsgType() uint8 { return MsgNewMiningJob }

func (m NewMiningJob) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.U8(boolToU8(m.FutureJob))
	w.U32(m.Version)
	w.U256(m.MerkleRoot)
	return w.Bytes()
}

func DecodeNewMiningJob(r *binary.Reader) (NewMiningJob, error) {
	var m NewMiningJob
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	var flag uint8
	if flag, err = r.U8(); err != nil {
		return m, err
	}
	m.FutureJob = flag != 0
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.MerkleRoot, err = r.U256(); err != nil {
		return m, err
	}
	return m, nil
}

// NewExtendedMiningJob is sent on an extended upstream channel.
type NewExtendedMiningJob struct {
	ChannelID             uint32
	JobID                 uint32
	FutureJob             bool
	Version               uint32
	VersionRollingAllowed bool
	MerklePath            []binary.U256
	CoinbaseTxPrefix      []byte
	CoinbaseTxSuffix      []byte
}

func (NewExtendedMiningJob) MsgType() uint8 { return MsgNewExtendedMiningJob }

func (m NewExtendedMiningJob) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.U8(boolToU8(m.FutureJob))
	w.U32(m.Version)
	w.U8(boolToU8(m.VersionRollingAllowed))
	_ = writeU256Seq(w, m.MerklePath)
	_ = w.B0_64K(m.CoinbaseTxPrefix)
	_ = w.B0_64K(m.CoinbaseTxSuffix)
	return w.Bytes()
}

func DecodeNewExtendedMiningJob(r *binary.Reader) (NewExtendedMiningJob, error) {
	var m NewExtendedMiningJob
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	var flag uint8
	if flag, err = r.U8(); err != nil {
		return m, err
	}
	m.FutureJob = flag != 0
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if flag, err = r.U8(); err != nil {
		return m, err
	}
	m.VersionRollingAllowed = flag != 0
	if m.MerklePath, err = readU256Seq(r); err != nil {
		return m, err
	}
	if m.CoinbaseTxPrefix, err = r.B0_64K(); err != nil {
		return m, err
	}
	if m.CoinbaseTxSuffix, err = r.B0_64K(); err != nil {
		return m, err
	}
	return m, nil
}

// SetNewPrevHash promotes a future job to the active job.
type SetNewPrevHash struct {
	ChannelID uint32
	JobID     uint32
	PrevHash  binary.U256
	MinNtime  uint32
	Nbits     uint32
}

func (SetNewPrevHash) MsgType() uint8 { return MsgSetNewPrevHash }

func (m SetNewPrevHash) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.U256(m.PrevHash)
	w.U32(m.MinNtime)
	w.U32(m.Nbits)
	return w.Bytes()
}

func DecodeSetNewPrevHash(r *binary.Reader) (SetNewPrevHash, error) {
	var m SetNewPrevHash
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.PrevHash, err = r.U256(); err != nil {
		return m, err
	}
	if m.MinNtime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nbits, err = r.U32(); err != nil {
		return m, err
	}
	return m, nil
}

// SubmitSharesStandard is a share submission on a standard channel.
type SubmitSharesStandard struct {
	ChannelID      uint32
	SequenceNumber uint32
	JobID          uint32
	Nonce          uint32
	Ntime          uint32
	Version        uint32
}

func (SubmitSharesStandard) MsgType() uint8 { return MsgSubmitSharesStandard }

func (m SubmitSharesStandard) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	w.U32(m.JobID)
	w.U32(m.Nonce)
	w.U32(m.Ntime)
	w.U32(m.Version)
	return w.Bytes()
}

func DecodeSubmitSharesStandard(r *binary.Reader) (SubmitSharesStandard, error) {
	var m SubmitSharesStandard
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nonce, err = r.U32(); err != nil {
		return m, err
	}
	if m.Ntime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	return m, nil
}

// SubmitSharesExtended is a share submission carrying the miner's full
// extranonce, forwarded upstream from a standard share.
type SubmitSharesExtended struct {
	ChannelID      uint32
	SequenceNumber uint32
	JobID          uint32
	Nonce          uint32
	Ntime          uint32
	Version        uint32
	Extranonce     []byte
}

func (SubmitSharesExtended) MsgType() uint8 { return MsgSubmitSharesExtended }

func (m SubmitSharesExtended) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	w.U32(m.JobID)
	w.U32(m.Nonce)
	w.U32(m.Ntime)
	w.U32(m.Version)
	_ = w.B0_32(m.Extranonce)
	return w.Bytes()
}

func DecodeSubmitSharesExtended(r *binary.Reader) (SubmitSharesExtended, error) {
	var m SubmitSharesExtended
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nonce, err = r.U32(); err != nil {
		return m, err
	}
	if m.Ntime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.Extranonce, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// SubmitSharesSuccess acknowledges one or more accepted shares.
type SubmitSharesSuccess struct {
	ChannelID               uint32
	LastSequenceNumber      uint32
	NewSubmitsAcceptedCount uint32
	NewSharesSum            uint64
}

func (SubmitSharesSuccess) MsgType() uint8 { return MsgSubmitSharesSuccess }

func (m SubmitSharesSuccess) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.LastSequenceNumber)
	w.U32(m.NewSubmitsAcceptedCount)
	w.U64(m.NewSharesSum)
	return w.Bytes()
}

func DecodeSubmitSharesSuccess(r *binary.Reader) (SubmitSharesSuccess, error) {
	var m SubmitSharesSuccess
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.LastSequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.NewSubmitsAcceptedCount, err = r.U32(); err != nil {
		return m, err
	}
	if m.NewSharesSum, err = r.U64(); err != nil {
		return m, err
	}
	return m, nil
}

// SubmitSharesError rejects a share submission, typically with
// ErrorCodeStaleShare or ErrorCodeInvalidJobID.
type SubmitSharesError struct {
	ChannelID      uint32
	SequenceNumber uint32
	ErrorCode      []byte
}

func (SubmitSharesError) MsgType() uint8 { return MsgSubmitSharesError }

// Well-known error codes for SubmitSharesError.
var (
	ErrorCodeStaleShare    = []byte("stale-share")
	ErrorCodeInvalidJobID  = []byte("invalid-job-id")
)

func (m SubmitSharesError) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	_ = w.B0_32(m.ErrorCode)
	return w.Bytes()
}

func DecodeSubmitSharesError(r *binary.Reader) (SubmitSharesError, error) {
	var m SubmitSharesError
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// SetTarget updates a channel's share-acceptance target.
type SetTarget struct {
	ChannelID uint32
	MaxTarget binary.U256
}

func (SetTarget) MsgType() uint8 { return MsgSetTarget }

func (m SetTarget) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U256(m.MaxTarget)
	return w.Bytes()
}

func DecodeSetTarget(r *binary.Reader) (SetTarget, error) {
	var m SetTarget
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	return m, nil
}

// SetExtranoncePrefix updates a channel's extranonce prefix.
type SetExtranoncePrefix struct {
	ChannelID        uint32
	ExtranoncePrefix []byte
}

func (SetExtranoncePrefix) MsgType() uint8 { return MsgSetExtranoncePrefix }

func (m SetExtranoncePrefix) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	_ = w.B0_32(m.ExtranoncePrefix)
	return w.Bytes()
}

func DecodeSetExtranoncePrefix(r *binary.Reader) (SetExtranoncePrefix, error) {
	var m SetExtranoncePrefix
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// UpdateChannel requests a hashrate/target change on an existing channel.
type UpdateChannel struct {
	ChannelID       uint32
	NominalHashRate float32
	MaxTarget       binary.U256
}

func (UpdateChannel) MsgType() uint8 { return MsgUpdateChannel }

func (m UpdateChannel) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	writeF32(w, m.NominalHashRate)
	w.U256(m.MaxTarget)
	return w.Bytes()
}

func DecodeUpdateChannel(r *binary.Reader) (UpdateChannel, error) {
	var m UpdateChannel
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = readF32(r); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	return m, nil
}

// UpdateChannelError rejects an UpdateChannel request.
type UpdateChannelError struct {
	ChannelID uint32
	ErrorCode []byte
}

func (UpdateChannelError) MsgType() uint8 { return MsgUpdateChannelError }

func (m UpdateChannelError) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	_ = w.B0_32(m.ErrorCode)
	return w.Bytes()
}

func DecodeUpdateChannelError(r *binary.Reader) (UpdateChannelError, error) {
	var m UpdateChannelError
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// CloseChannel ends a channel.
type CloseChannel struct {
	ChannelID  uint32
	ReasonCode []byte
}

func (CloseChannel) MsgType() uint8 { return MsgCloseChannel }

func (m CloseChannel) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	_ = w.B0_32(m.ReasonCode)
	return w.Bytes()
}

func DecodeCloseChannel(r *binary.Reader) (CloseChannel, error) {
	var m CloseChannel
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ReasonCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

// Reconnect instructs a downstream to reconnect to a new host/port.
type Reconnect struct {
	NewHost []byte
	NewPort uint16
}

func (Reconnect) MsgType() uint8 { return MsgReconnect }

func (m Reconnect) Encode() []byte {
	w := binary.NewWriter()
	_ = w.B0_255(m.NewHost)
	w.U16(m.NewPort)
	return w.Bytes()
}

func DecodeReconnect(r *binary.Reader) (Reconnect, error) {
	var m Reconnect
	var err error
	if m.NewHost, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.NewPort, err = r.U16(); err != nil {
		return m, err
	}
	return m, nil
}

// SetCustomMiningJob proposes a custom job body for a channel.
type SetCustomMiningJob struct {
	ChannelID          uint32
	RequestID          uint32
	Token              []byte
	Version            uint32
	PrevHash           binary.U256
	MinNtime           uint32
	Nbits              uint32
	CoinbaseTxVersion  uint32
	CoinbasePrefix     []byte
	CoinbaseSuffix     []byte
	CoinbaseTxLocktime uint32
	MerklePath         []binary.U256
}

func (SetCustomMiningJob) MsgType() uint8 { return MsgSetCustomMiningJob }

func (m SetCustomMiningJob) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.RequestID)
	_ = w.B0_255(m.Token)
	w.U32(m.Version)
	w.U256(m.PrevHash)
	w.U32(m.MinNtime)
	w.U32(m.Nbits)
	w.U32(m.CoinbaseTxVersion)
	_ = w.B0_255(m.CoinbasePrefix)
	_ = w.B0_255(m.CoinbaseSuffix)
	w.U32(m.CoinbaseTxLocktime)
	_ = writeU256Seq(w, m.MerklePath)
	return w.Bytes()
}

func DecodeSetCustomMiningJob(r *binary.Reader) (SetCustomMiningJob, error) {
	var m SetCustomMiningJob
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Token, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.PrevHash, err = r.U256(); err != nil {
		return m, err
	}
	if m.MinNtime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nbits, err = r.U32(); err != nil {
		return m, err
	}
	if m.CoinbaseTxVersion, err = r.U32(); err != nil {
		return m, err
	}
	if m.CoinbasePrefix, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.CoinbaseSuffix, err = r.B0_255(); err != nil {
		return m, err
	}
	if m.CoinbaseTxLocktime, err = r.U32(); err != nil {
		return m, err
	}
	if m.MerklePath, err = readU256Seq(r); err != nil {
		return m, err
	}
	return m, nil
}

// SetCustomMiningJobSuccess acknowledges a custom job, assigning it a job id.
type SetCustomMiningJobSuccess struct {
	ChannelID uint32
	RequestID uint32
	JobID     uint32
}

func (SetCustomMiningJobSuccess) MsgType() uint8 { return MsgSetCustomMiningJobSuccess }

func (m SetCustomMiningJobSuccess) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.RequestID)
	w.U32(m.JobID)
	return w.Bytes()
}

func DecodeSetCustomMiningJobSuccess(r *binary.Reader) (SetCustomMiningJobSuccess, error) {
	var m SetCustomMiningJobSuccess
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	return m, nil
}

// SetCustomMiningJobError rejects a custom job proposal.
type SetCustomMiningJobError struct {
	ChannelID uint32
	RequestID uint32
	ErrorCode []byte
}

func (SetCustomMiningJobError) MsgType() uint8 { return MsgSetCustomMiningJobError }

func (m SetCustomMiningJobError) Encode() []byte {
	w := binary.NewWriter()
	w.U32(m.ChannelID)
	w.U32(m.RequestID)
	_ = w.B0_32(m.ErrorCode)
	return w.Bytes()
}

func DecodeSetCustomMiningJobError(r *binary.Reader) (SetCustomMiningJobError, error) {
	var m SetCustomMiningJobError
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.B0_32(); err != nil {
		return m, err
	}
	return m, nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Decode parses payload according to msgType, returning the concrete
// Message value as a Message interface. Unknown msg_type bytes yield
// ErrUnknownMsgType.
func Decode(msgType uint8, payload []byte) (Message, error) {
	r := binary.NewReader(payload)
	switch msgType {
	case MsgSetupConnection:
		return DecodeSetupConnection(r)
	case MsgSetupConnectionSuccess:
		return DecodeSetupConnectionSuccess(r)
	case MsgSetupConnectionError:
		return DecodeSetupConnectionError(r)
	case MsgOpenStandardMiningChannel:
		return DecodeOpenStandardMiningChannel(r)
	case MsgOpenStandardMiningChannelSuccess:
		return DecodeOpenStandardMiningChannelSuccess(r)
	case MsgOpenExtendedMiningChannel:
		return DecodeOpenExtendedMiningChannel(r)
	case MsgOpenExtendedMiningChannelSuccess:
		return DecodeOpenExtendedMiningChannelSuccess(r)
	case MsgOpenMiningChannelError:
		return DecodeOpenMiningChannelError(r)
	case MsgNewMiningJob:
		return DecodeNewMiningJob(r)
	case MsgNewExtendedMiningJob:
		return DecodeNewExtendedMiningJob(r)
	case MsgSetNewPrevHash:
		return DecodeSetNewPrevHash(r)
	case MsgSubmitSharesStandard:
		return DecodeSubmitSharesStandard(r)
	case MsgSubmitSharesExtended:
		return DecodeSubmitSharesExtended(r)
	case MsgSubmitSharesSuccess:
		return DecodeSubmitSharesSuccess(r)
	case MsgSubmitSharesError:
		return DecodeSubmitSharesError(r)
	case MsgSetTarget:
		return DecodeSetTarget(r)
	case MsgSetExtranoncePrefix:
		return DecodeSetExtranoncePrefix(r)
	case MsgUpdateChannel:
		return DecodeUpdateChannel(r)
	case MsgUpdateChannelError:
		return DecodeUpdateChannelError(r)
	case MsgCloseChannel:
		return DecodeCloseChannel(r)
	case MsgReconnect:
		return DecodeReconnect(r)
	case MsgSetCustomMiningJob:
		return DecodeSetCustomMiningJob(r)
	case MsgSetCustomMiningJobSuccess:
		return DecodeSetCustomMiningJobSuccess(r)
	case MsgSetCustomMiningJobError:
		return DecodeSetCustomMiningJobError(r)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownMsgType, msgType)
	}
}
