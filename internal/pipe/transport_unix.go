//go:build !windows

package pipe

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// UnixTransport backs the wire protocol with a Unix domain socket under a
// process-private directory, substituting for the named-pipe transport on
// non-Windows platforms per the transport-isolation design note.
type UnixTransport struct {
	dir string
}

// NewTransport returns the platform transport. On non-Windows platforms
// sockets are created under dir (typically an os.MkdirTemp result owned
// by the current process).
func NewTransport(dir string) Transport {
	return &UnixTransport{dir: dir}
}

type unixListener struct {
	ln   net.Listener
	path string
}

func (t *UnixTransport) Listen(ctx context.Context, name string) (Listener, error) {
	path := filepath.Join(t.dir, name+".sock")
	os.Remove(path)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "listen on pipe socket", err)
	}
	return &unixListener{ln: ln, path: path}, nil
}

func (l *unixListener) Accept(ctx context.Context) (net.Conn, error) {
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

func (l *unixListener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}

func (t *UnixTransport) Dial(ctx context.Context, name string) (net.Conn, error) {
	path := filepath.Join(t.dir, name+".sock")
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "dial pipe socket", err)
	}
	return conn, nil
}
