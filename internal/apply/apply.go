// Package apply implements the applier (C8): the state machine that
// walks a plan's cache and execute action lists, coordinating a cache
// goroutine and an execute goroutine the way the teacher's async worker
// pool coordinates job workers and a queue monitor, with rollback run on
// package failure: of everything executed so far in a vital boundary, of
// the failed boundary's own packages in a non-vital one.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitaliisemenov/chainboot/internal/acquire"
	"github.com/vitaliisemenov/chainboot/internal/cache"
	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/metrics"
	"github.com/vitaliisemenov/chainboot/internal/plan"
)

// RestartState is the restart severity a package action or overall run
// reports back.
type RestartState int

const (
	RestartNone RestartState = iota
	RestartRequired
	RestartInitiated
)

// Max folds two restart states into their maximum severity.
func (r RestartState) Max(other RestartState) RestartState {
	if other > r {
		return other
	}
	return r
}

// Registrar persists and removes the bundle's own registration record
// (ARP entry, dependency providers, resume state) independent of any one
// package's install state.
type Registrar interface {
	Register(ctx context.Context, bundleID string) error
	Unregister(ctx context.Context, bundleID string, suspended bool) error
	Save(ctx context.Context, state []byte) error
}

// Dispatcher runs one package's execute request. The engine Router, the
// implementation the command wires in, runs every package locally; no
// implementation in this module forwards per-machine packages to an
// elevated helper over the control pipe.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind manifest.PackageKind, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error)
}

// SourceResolver maps a payload key to its acquisition source and cache
// verification metadata.
type SourceResolver interface {
	SourceFor(payloadKey string) (acquire.Source, cache.PayloadRef, error)
	ContainerSourceFor(containerID string) (acquire.Source, error)
}

// Applier runs one Plan to completion.
type Applier struct {
	manifest   *manifest.Manifest
	acquirer   *acquire.Acquirer
	cacheStore *cache.Store
	dispatcher Dispatcher
	resolver   SourceResolver
	registrar  Registrar
	logger     *slog.Logger

	mu               sync.Mutex
	tryAgainAttempts map[string]int
	stagedPayloads   map[string]string
}

// New returns an Applier wired to its collaborators.
func New(m *manifest.Manifest, acquirer *acquire.Acquirer, cacheStore *cache.Store, dispatcher Dispatcher, resolver SourceResolver, registrar Registrar, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		manifest:         m,
		acquirer:         acquirer,
		cacheStore:       cacheStore,
		dispatcher:       dispatcher,
		resolver:         resolver,
		registrar:        registrar,
		logger:           logger,
		tryAgainAttempts: make(map[string]int),
		stagedPayloads:   make(map[string]string),
	}
}

// Outcome is what Apply reports once the plan finishes, fails, or is
// cancelled.
type Outcome struct {
	Restart   RestartState
	Suspended bool
	RolledBack bool
}

// Apply runs p's cache and execute action lists concurrently, following
// the Register -> cache+execute -> rollback-if-needed -> Clean ->
// Unregister -> Save state machine.
func (a *Applier) Apply(ctx context.Context, p *plan.Plan, cb engine.Callback) (Outcome, error) {
	if err := a.registrar.Register(ctx, p.BundleID); err != nil {
		return Outcome{}, errkind.Wrap(errkind.IO, "register bundle", err)
	}

	metrics.ApplyInFlight.Set(1)
	defer metrics.ApplyInFlight.Set(0)

	syncEvents := newSyncBoard(p.CacheActions)

	var cacheErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cacheErr = a.runCacheThread(ctx, p, syncEvents)
	}()

	outcome, execErr := a.runExecuteThread(ctx, p, syncEvents, cb)

	wg.Wait()

	if cacheErr != nil && execErr == nil {
		execErr = cacheErr
	}

	if execErr != nil {
		a.logger.Error("apply failed, unregistering", "bundle", p.BundleID, "error", execErr)
		if unregErr := a.registrar.Unregister(ctx, p.BundleID, outcome.Suspended); unregErr != nil {
			a.logger.Error("unregister after failure also failed", "error", unregErr)
		}
		return outcome, execErr
	}

	if err := a.clean(p); err != nil {
		a.logger.Warn("cleanup after successful apply failed", "error", err)
	}

	if p.Action == plan.RequestedUninstall {
		if err := a.registrar.Unregister(ctx, p.BundleID, outcome.Suspended); err != nil {
			return outcome, errkind.Wrap(errkind.IO, "unregister bundle", err)
		}
	}

	if err := a.registrar.Save(ctx, nil); err != nil {
		return outcome, errkind.Wrap(errkind.IO, "save persisted state", err)
	}

	return outcome, nil
}

// clean removes cache entries for packages that were uninstalled.
func (a *Applier) clean(p *plan.Plan) error {
	for _, e := range p.ExecuteActions {
		if e.Kind == plan.ExecutePackage && e.PackageAction == manifest.ActionUninstall {
			idx, ok := a.manifest.PackageByID(e.PackageID)
			if !ok {
				continue
			}
			pkg := a.manifest.Packages[idx]
			if pkg.CacheID == "" {
				continue
			}
			if err := a.cacheStore.RemovePackage(pkg.CacheID); err != nil {
				return fmt.Errorf("remove cache for %s: %w", pkg.ID, err)
			}
		}
	}
	return nil
}
