// Package bridge translates between the SV1 line-delimited JSON-RPC
// protocol spoken by legacy mining devices and the SV2 extended-channel
// messages exchanged with an upstream, reusing internal/stratum's Codec for
// the wire side.
package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stratum-sv2/sv2core/internal/stratum"
)

// defaultVersionRollingMask is the AsicBoost version-rolling mask this
// bridge returns to every device whose mining.configure asks for
// version-rolling; a mask the device proposes is not taken into account.
// 0x1fffe000 is the mask in common use across SV1 pools and
// firmware (BIP 320's 16-bit rolling window shifted into version bits 13-28).
const defaultVersionRollingMask = 0x1fffe000

// configureParams mirrors the two-element mining.configure params array:
// a list of extension names followed by a per-extension options object.
type configureParams struct {
	Extensions []string
	Options    map[string]json.RawMessage
}

func decodeConfigureParams(raw json.RawMessage) (configureParams, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return configureParams{}, fmt.Errorf("mining.configure: %w", err)
	}
	if len(arr) == 0 {
		return configureParams{}, fmt.Errorf("mining.configure: expected at least one element")
	}
	var out configureParams
	if err := json.Unmarshal(arr[0], &out.Extensions); err != nil {
		return configureParams{}, fmt.Errorf("mining.configure: extensions: %w", err)
	}
	out.Options = map[string]json.RawMessage{}
	if len(arr) > 1 {
		if err := json.Unmarshal(arr[1], &out.Options); err != nil {
			return configureParams{}, fmt.Errorf("mining.configure: options: %w", err)
		}
	}
	return out, nil
}

func (p configureParams) wantsVersionRolling() bool {
	for _, ext := range p.Extensions {
		if ext == "version-rolling" {
			return true
		}
	}
	return false
}

func buildConfigureResult(id interface{}, mask, minBitCount uint32, minDifficulty bool) *stratum.Response {
	result := map[string]interface{}{
		"version-rolling":                true,
		"version-rolling.mask":           fmt.Sprintf("%08x", mask),
		"version-rolling.min-bit-count":  fmt.Sprintf("%08x", minBitCount),
	}
	if minDifficulty {
		result["minimum-difficulty"] = true
	}
	return &stratum.Response{ID: id, Result: result}
}

func decodeSubscribeParams(raw json.RawMessage) (userAgent, resumeID string, err error) {
	if len(raw) == 0 {
		return "", "", nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", "", fmt.Errorf("mining.subscribe: %w", err)
	}
	if len(arr) > 0 {
		userAgent = arr[0]
	}
	if len(arr) > 1 {
		resumeID = arr[1]
	}
	return userAgent, resumeID, nil
}

func buildSubscribeResult(id interface{}, setDifficultyID, notifyID string, extranonce1 []byte, extranonce2Size int) *stratum.Response {
	subscriptions := []interface{}{
		[]interface{}{"mining.set_difficulty", setDifficultyID},
		[]interface{}{"mining.notify", notifyID},
	}
	return &stratum.Response{
		ID: id,
		Result: []interface{}{
			subscriptions,
			hex.EncodeToString(extranonce1),
			extranonce2Size,
		},
	}
}

func decodeAuthorizeParams(raw json.RawMessage) (user, pass string, err error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", "", fmt.Errorf("mining.authorize: %w", err)
	}
	if len(arr) == 0 {
		return "", "", fmt.Errorf("mining.authorize: expected a worker name")
	}
	user = arr[0]
	if len(arr) > 1 {
		pass = arr[1]
	}
	return user, pass, nil
}

func buildBoolResult(id interface{}, ok bool) *stratum.Response {
	return &stratum.Response{ID: id, Result: ok}
}

// submitParams mirrors mining.submit(user, job_id, extranonce2, ntime,
// nonce, version_bits?); version_bits is only present with version-rolling
// negotiated.
type submitParams struct {
	User        string
	JobID       string
	Extranonce2 string
	Ntime       string
	Nonce       string
	VersionBits *uint32
}

func decodeSubmitParams(raw json.RawMessage) (submitParams, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return submitParams{}, fmt.Errorf("mining.submit: %w", err)
	}
	if len(arr) < 5 {
		return submitParams{}, fmt.Errorf("mining.submit: expected at least 5 params, got %d", len(arr))
	}
	out := submitParams{
		User:        arr[0],
		JobID:       arr[1],
		Extranonce2: arr[2],
		Ntime:       arr[3],
		Nonce:       arr[4],
	}
	if len(arr) > 5 {
		var v uint32
		if _, err := fmt.Sscanf(arr[5], "%x", &v); err != nil {
			return submitParams{}, fmt.Errorf("mining.submit: version_bits: %w", err)
		}
		out.VersionBits = &v
	}
	return out, nil
}

func buildSetDifficulty(value float64) *stratum.Notification {
	return &stratum.Notification{
		Method: "mining.set_difficulty",
		Params: []interface{}{value},
	}
}

func buildNotify(jobID string, prevHash, coinbase1, coinbase2 string, merkleBranch []string, version, nbits, ntime uint32, cleanJobs bool) *stratum.Notification {
	return &stratum.Notification{
		Method: "mining.notify",
		Params: []interface{}{
			jobID,
			prevHash,
			coinbase1,
			coinbase2,
			toInterfaceSlice(merkleBranch),
			fmt.Sprintf("%08x", version),
			fmt.Sprintf("%08x", nbits),
			fmt.Sprintf("%08x", ntime),
			cleanJobs,
		},
	}
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
