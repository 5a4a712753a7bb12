package pipe

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandshake_MatchingSecretSucceeds(t *testing.T) {
	dir := t.TempDir()
	transport := NewTransport(dir)
	name, err := NewPipeName("test")
	require.NoError(t, err)

	secret, err := NewSecret()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, name)
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := ln.Accept(ctx)
		if err != nil {
			serverErr <- err
			return
		}
		conn := NewConn(raw)
		serverErr <- conn.AuthenticateParent(ctx, secret)
	}()

	raw, err := transport.Dial(ctx, name)
	require.NoError(t, err)
	childConn := NewConn(raw)
	require.NoError(t, childConn.AuthenticateChild(secret))

	require.NoError(t, <-serverErr)
}

func TestHandshake_MismatchedSecretFails(t *testing.T) {
	dir := t.TempDir()
	transport := NewTransport(dir)
	name, err := NewPipeName("test")
	require.NoError(t, err)

	secret, err := NewSecret()
	require.NoError(t, err)
	wrongSecret, err := NewSecret()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, name)
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := ln.Accept(ctx)
		if err != nil {
			serverErr <- err
			return
		}
		conn := NewConn(raw)
		serverErr <- conn.AuthenticateParent(ctx, secret)
	}()

	raw, err := transport.Dial(ctx, name)
	require.NoError(t, err)
	childConn := NewConn(raw)
	require.NoError(t, childConn.AuthenticateChild(wrongSecret))

	require.Error(t, <-serverErr)
}

func TestPump_DispatchesAndRepliesWithResult(t *testing.T) {
	dir := t.TempDir()
	transport := NewTransport(dir)
	name, err := NewPipeName("test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, name)
	require.NoError(t, err)
	defer ln.Close()

	const executeMsgType uint32 = 100

	go func() {
		raw, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		conn := NewConn(raw)
		Pump(ctx, conn, func(ctx context.Context, msg Message) (uint32, error) {
			if msg.Type == executeMsgType {
				return 666, nil
			}
			return 0, nil
		}, slog.Default())
	}()

	raw, err := transport.Dial(ctx, name)
	require.NoError(t, err)
	childConn := NewConn(raw)

	result, err := SendRequest(childConn, Message{Type: executeMsgType, Data: []byte("C:\\setup.exe")})
	require.NoError(t, err)
	require.EqualValues(t, 666, result)

	require.NoError(t, SendTerminate(childConn))
}

func TestMessage_RoundTripsThroughWireFormat(t *testing.T) {
	dir := t.TempDir()
	transport := NewTransport(dir)
	name, err := NewPipeName("test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := transport.Listen(ctx, name)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan Message, 1)
	go func() {
		raw, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		conn := NewConn(raw)
		msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	raw, err := transport.Dial(ctx, name)
	require.NoError(t, err)
	conn := NewConn(raw)

	want := Message{Type: TypeLog, Data: []byte("installing payload 3 of 10")}
	require.NoError(t, conn.WriteMessage(want))

	got := <-received
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.Data, got.Data)
}
