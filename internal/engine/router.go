package engine

import (
	"context"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// Router dispatches one package action to the Engine registered for its
// kind. It implements the applier's Dispatcher interface and runs every
// package in the current process, whatever its PerMachine flag; it does
// not forward per-machine packages over the control pipe. The elevated
// helper runs its own Router for the execute requests it receives.
type Router struct {
	engines map[manifest.PackageKind]Engine
}

// NewRouter builds a Router from one Engine per package kind. A nil
// entry for a kind means packages of that kind are never dispatched
// through this Router (for example, an unelevated process wiring only
// the kinds it can run per-user).
func NewRouter(exe, msi, msp, msu Engine) *Router {
	return &Router{engines: map[manifest.PackageKind]Engine{
		manifest.KindExe: exe,
		manifest.KindMsi: msi,
		manifest.KindMsp: msp,
		manifest.KindMsu: msu,
	}}
}

// Dispatch runs req against the Engine registered for kind.
func (r *Router) Dispatch(ctx context.Context, kind manifest.PackageKind, req ExecuteRequest, cb Callback) (Result, error) {
	e, ok := r.engines[kind]
	if !ok || e == nil {
		return Result{}, errkind.New(errkind.Fatal, "no engine registered for package kind "+kind.String())
	}
	return e.Execute(ctx, req, cb)
}

// Detect runs every package in pkgs through the Engine for its kind,
// updating each package's CurrentState in place.
func (r *Router) Detect(ctx context.Context, pkgs []manifest.Package) error {
	for i := range pkgs {
		e, ok := r.engines[pkgs[i].Kind]
		if !ok || e == nil {
			return errkind.New(errkind.Fatal, "no engine registered for package kind "+pkgs[i].Kind.String())
		}
		if err := e.Detect(ctx, &pkgs[i]); err != nil {
			return err
		}
	}
	return nil
}
