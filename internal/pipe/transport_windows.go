//go:build windows

package pipe

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// WindowsTransport backs the wire protocol with a named pipe
// (\\.\pipe\<name>), matching the original engine's IPC transport.
type WindowsTransport struct{}

// NewTransport returns the platform transport. dir is unused on Windows;
// named pipes are addressed by name alone.
func NewTransport(dir string) Transport {
	return &WindowsTransport{}
}

type winioListener struct {
	ln net.Listener
}

func (t *WindowsTransport) Listen(ctx context.Context, name string) (Listener, error) {
	ln, err := winio.ListenPipe(`\\.\pipe\`+name, &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;OW)",
		MessageMode:        false,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "listen on named pipe", err)
	}
	return &winioListener{ln: ln}, nil
}

func (l *winioListener) Accept(ctx context.Context) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		l.ln.Close()
		return nil, errkind.Wrap(errkind.IO, "accept cancelled", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, errkind.Wrap(errkind.IO, "accept pipe connection", r.err)
		}
		return r.conn, nil
	}
}

func (l *winioListener) Close() error {
	return l.ln.Close()
}

func (t *WindowsTransport) Dial(ctx context.Context, name string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, `\\.\pipe\`+name)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "dial named pipe", err)
	}
	return conn, nil
}
