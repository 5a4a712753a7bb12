package pipe

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// Handler processes one request message and returns the u32 result code
// carried back to the caller in the matching Complete message. A Handler
// for TypeLog receives the child's log line as Data and should return 0.
type Handler func(ctx context.Context, msg Message) (uint32, error)

// Pump drives one side of an established, authenticated connection: read
// a message, dispatch it to handler, write back a Complete message
// carrying the handler's result code. It returns when the peer sends
// TypeTerminate, the connection closes, or ctx is cancelled.
func Pump(ctx context.Context, conn *Conn, handler Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if msg.Type == TypeTerminate {
			return nil
		}

		result, herr := handler(ctx, msg)
		if herr != nil {
			logger.Error("pipe message handler failed", "type", msg.Type, "error", herr)
		}

		reply := Message{Type: TypeComplete, Data: encodeResult(result)}
		if err := conn.WriteMessage(reply); err != nil {
			return errkind.Wrap(errkind.IO, "write pipe complete reply", err)
		}
	}
}

// SendRequest writes msg and blocks for the matching Complete reply,
// returning its result code.
func SendRequest(conn *Conn, msg Message) (uint32, error) {
	if err := conn.WriteMessage(msg); err != nil {
		return 0, err
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	if reply.Type != TypeComplete {
		return 0, errkind.New(errkind.IO, "expected complete message in reply")
	}
	return decodeResult(reply.Data), nil
}

// SendTerminate signals the peer's Pump loop to exit.
func SendTerminate(conn *Conn) error {
	return conn.WriteMessage(Message{Type: TypeTerminate})
}

func encodeResult(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeResult(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
