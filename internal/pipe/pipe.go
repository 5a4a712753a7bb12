// Package pipe implements the authenticated, length-prefixed duplex
// message protocol between an unelevated parent and its elevated child
// helper process. The wire format is transport-agnostic; Windows uses
// named pipes (github.com/Microsoft/go-winio) and every other platform
// uses a Unix domain socket behind the same Transport interface, per the
// "isolate it behind a trait" design note.
package pipe

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/metrics"
)

// Reserved message types. All other numeric ids are caller-defined
// (execute-exe, execute-msi, cache-complete-payload, detect-related-
// bundles, save-state, session-begin/resume/end, cache-cleanup,
// clean-package, and so on).
const (
	TypeLog       uint32 = 0xF0000001
	TypeComplete  uint32 = 0xF0000002
	TypeTerminate uint32 = 0xF0000003
)

// Message is one length-prefixed frame: `u32 type | u32 cbData | cbData
// bytes`.
type Message struct {
	Type uint32
	Data []byte
}

// Conn is one half-duplex endpoint of the wire protocol. Pumping is
// single-threaded per endpoint; at most one outstanding request is
// permitted at a time (enforced by callers, not this type).
type Conn struct {
	raw net.Conn
}

// NewConn wraps an established net.Conn (from a Transport) as a protocol
// endpoint.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// WriteMessage writes one frame.
func (c *Conn) WriteMessage(msg Message) error {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], msg.Type)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(msg.Data)))

	if _, err := c.raw.Write(header); err != nil {
		return errkind.Wrap(errkind.IO, "write pipe message header", err)
	}
	if len(msg.Data) > 0 {
		if _, err := c.raw.Write(msg.Data); err != nil {
			return errkind.Wrap(errkind.IO, "write pipe message body", err)
		}
	}
	metrics.PipeMessages.WithLabelValues("send", fmt.Sprintf("%#x", msg.Type)).Inc()
	return nil
}

// ReadMessage reads one frame, blocking until a full frame arrives or the
// connection closes.
func (c *Conn) ReadMessage() (Message, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(c.raw, header); err != nil {
		return Message{}, errkind.Wrap(errkind.IO, "read pipe message header", err)
	}

	msgType := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])

	data := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.raw, data); err != nil {
			return Message{}, errkind.Wrap(errkind.IO, "read pipe message body", err)
		}
	}

	metrics.PipeMessages.WithLabelValues("recv", fmt.Sprintf("%#x", msgType)).Inc()
	return Message{Type: msgType, Data: data}, nil
}

// Close closes the underlying transport connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// AuthenticateChild writes secret as the first outbound message from the
// child's side of the connection.
func (c *Conn) AuthenticateChild(secret []byte) error {
	return c.WriteMessage(Message{Type: TypeLog, Data: secret})
}

// AuthenticateParent reads the first message from conn and verifies it
// matches the expected secret. On mismatch the connection is closed and an
// Authentication error is returned; the parent must then refuse any
// further messages on this connection.
func (c *Conn) AuthenticateParent(ctx context.Context, expectedSecret []byte) error {
	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.ReadMessage()
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		c.Close()
		return errkind.Wrap(errkind.Authentication, "handshake timed out", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return errkind.Wrap(errkind.Authentication, "child process died before connect", r.err)
		}
		if !hmacEqual(r.msg.Data, expectedSecret) {
			c.Close()
			return errkind.New(errkind.Authentication, "pipe secret mismatch")
		}
		return nil
	}
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// NewSecret returns a fresh random handshake secret.
func NewSecret() ([]byte, error) {
	return randomBytes(32)
}

// NewPipeName returns a fresh random pipe/socket name.
func NewPipeName(prefix string) (string, error) {
	b, err := randomBytes(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%x", prefix, b), nil
}
