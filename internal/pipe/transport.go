package pipe

import (
	"context"
	"net"
)

// Transport creates and accepts connections for one named channel. The
// Windows implementation backs this with a named pipe; every other
// platform uses a Unix domain socket in a process-private directory.
// Both implementations expose the identical Listener/Dial surface so the
// rest of this package, and everything built on it, is platform-agnostic.
type Transport interface {
	// Listen starts accepting connections on name and returns a Listener.
	// The parent process calls this before spawning the child.
	Listen(ctx context.Context, name string) (Listener, error)

	// Dial connects to a channel a parent is listening on. The child
	// process calls this after being launched with the channel name.
	Dial(ctx context.Context, name string) (net.Conn, error)
}

// Listener accepts one connection at a time from a Transport.
type Listener interface {
	Accept(ctx context.Context) (net.Conn, error)
	Close() error
}
