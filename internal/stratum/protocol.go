// Package stratum implements the SV1 wire codec internal/bridge speaks to
// downstream mining devices: newline-delimited JSON-RPC requests in
// (mining.subscribe, mining.authorize, mining.configure, mining.submit) and
// responses/notifications out (mining.notify, mining.set_difficulty).
package stratum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	// writeTimeout bounds a single push to a downstream device. A device
	// that stops reading (crashed firmware, a dead TCP half-close the
	// kernel hasn't noticed yet) must not stall the bridge's job fan-out
	// to every other session sharing this goroutine.
	writeTimeout = 10 * time.Second

	// maxLineSize bounds a single inbound JSON-RPC line. SV1 requests
	// from a device are small and fixed-shape (mining.subscribe,
	// mining.authorize, mining.submit all fit in a few hundred bytes);
	// this is sized generously above that to tolerate a verbose user-agent
	// string in mining.subscribe while still rejecting a device that never
	// sends a newline from growing the scan buffer without bound.
	maxLineSize = 4 * 1024
)

// Request is a device-to-bridge SV1 call: ID is echoed back verbatim on
// the matching Response, Method is one of the mining.* RPCs, and Params is
// the call's positional argument array (SV1 has no named parameters).
type Request struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response answers a Request with the same ID. Error is nil on success or
// an SV1 error triple: [code, message, traceback-or-null].
type Response struct {
	ID     interface{}   `json:"id"`
	Result interface{}   `json:"result"`
	Error  []interface{} `json:"error"`
}

// Notification is a bridge-to-device push with no reply expected:
// mining.notify (new job) or mining.set_difficulty (new target).
type Notification struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// NewError builds the [code, message, null] triple SV1 expects in a
// Response.Error field.
func NewError(code int, message string) []interface{} {
	return []interface{}{code, message, nil}
}

// Codec reads and writes one downstream device's newline-delimited
// JSON-RPC stream.
type Codec struct {
	conn    net.Conn
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// NewCodec wraps conn, a newly-accepted connection from a mining device,
// in a Codec.
func NewCodec(conn net.Conn) *Codec {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024), maxLineSize)
	return &Codec{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}
}

// ReadRequest blocks for the device's next line and decodes it as a
// Request.
func (c *Codec) ReadRequest() (*Request, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		return nil, fmt.Errorf("connection closed")
	}

	var req Request
	if err := json.Unmarshal(c.scanner.Bytes(), &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	return &req, nil
}

// SendResponse answers a Request.
func (c *Codec) SendResponse(resp *Response) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.encoder.Encode(resp)
}

// SendNotification pushes a job or difficulty update to the device.
func (c *Codec) SendNotification(notif *Notification) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.encoder.Encode(notif)
}

// Close closes the underlying device connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
