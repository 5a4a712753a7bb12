package main

import (
	"context"
	"log/slog"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/pipe"
)

// noopCallback answers every progress/files-in-use callback with
// "continue"; an elevated helper has no UX of its own to consult and
// relies on the parent's callback stream instead.
type noopCallback struct{}

func (noopCallback) Progress(int) bool        { return true }
func (noopCallback) FilesInUse([]string) bool { return true }

// runElevatedChild connects back to the parent over the named pipe it
// was launched with, authenticates as the child side, and dispatches
// every TypeExecutePackage request it receives to the local router
// until the parent sends TypeTerminate or the connection drops.
func runElevatedChild(ctx context.Context, args *elevationArgs, m *manifest.Manifest, router *engine.Router, log *slog.Logger) error {
	transport := pipe.NewTransport("")
	raw, err := transport.Dial(ctx, args.PipeName)
	if err != nil {
		return err
	}
	conn := pipe.NewConn(raw)
	defer conn.Close()

	if err := conn.AuthenticateChild([]byte(args.Secret)); err != nil {
		return err
	}

	handler := func(ctx context.Context, msg pipe.Message) (uint32, error) {
		if msg.Type != pipe.TypeExecutePackage {
			return 0, nil
		}
		payload, err := pipe.DecodeExecutePackage(msg.Data)
		if err != nil {
			return 1, err
		}
		idx, ok := m.PackageByID(payload.PackageID)
		if !ok {
			return 1, nil
		}
		pkg := m.Packages[idx]
		req := engine.ExecuteRequest{
			Package:        pkg,
			Action:         manifest.Action(payload.Action),
			Direction:      engine.ActionDirection(payload.Direction),
			CachedPayloads: payload.CachedPayloads,
			Properties:     payload.Properties,
		}
		result, err := router.Dispatch(ctx, pkg.Kind, req, noopCallback{})
		if err != nil {
			return 1, err
		}
		if result.ExitCode != 0 {
			return uint32(result.ExitCode), nil
		}
		return 0, nil
	}

	return pipe.Pump(ctx, conn, handler, log)
}
