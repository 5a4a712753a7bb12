package apply

import (
	"context"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/metrics"
	"github.com/vitaliisemenov/chainboot/internal/plan"
)

// runExecuteThread walks p's forward execute-action list, waiting on the
// sync board at each checkpoint before running the package action that
// follows it. On a package failure within a vital rollback boundary it
// undoes every package executed so far and aborts the run; within a
// non-vital boundary it undoes only that boundary's packages and skips
// ahead to the next boundary, letting the run continue.
func (a *Applier) runExecuteThread(ctx context.Context, p *plan.Plan, board *syncBoard, cb engine.Callback) (Outcome, error) {
	var outcome Outcome
	var executed []plan.ExecuteEntry

	i := 0
	for i < len(p.ExecuteActions) {
		entry := p.ExecuteActions[i]

		switch entry.Kind {
		case plan.ExecuteKeepRegistration, plan.ExecuteRemoveRegistration:
			i++

		case plan.ExecuteCheckpoint:
			select {
			case <-board.wait(entry.CheckpointID):
			case <-ctx.Done():
				return outcome, errkind.Wrap(errkind.UserDecision, "execute thread cancelled", ctx.Err())
			}
			executed = append(executed, entry)
			i++

		case plan.ExecutePackage:
			result, err := a.executePackageAction(ctx, p, entry, cb)
			if err != nil {
				vital := a.boundaryIsVital(entry.BoundaryID)

				var toRollback []plan.ExecuteEntry
				if vital {
					// A vital boundary's failure is fatal to the whole run:
					// undo every package executed so far, not just the
					// ones sharing this boundary.
					toRollback = collectAllPackages(executed)
				} else {
					toRollback = collectBoundarySuffix(executed, entry.BoundaryID)
				}

				vitalLabel := "false"
				if vital {
					vitalLabel = "true"
				}
				metrics.RollbacksTotal.WithLabelValues(vitalLabel).Inc()

				rolledBack, rbErr := a.dispatchRollbackEntries(ctx, toRollback, cb)
				if rolledBack {
					outcome.RolledBack = true
				}
				if rbErr != nil {
					a.logger.Error("rollback action failed", "package", entry.PackageID, "error", rbErr)
				}

				if vital {
					return outcome, err
				}

				a.logger.Warn("skipping to next rollback boundary after non-vital package failure",
					"package", entry.PackageID, "boundary", entry.BoundaryID, "error", err)
				i = nextBoundaryIndex(p, i, entry.BoundaryID)
				continue
			}

			outcome.Restart = outcome.Restart.Max(foldRestart(result))
			executed = append(executed, entry)
			i++
		}
	}

	return outcome, nil
}

// executePackageAction resolves a package's cached payload paths and
// dispatches its forward action.
func (a *Applier) executePackageAction(ctx context.Context, p *plan.Plan, entry plan.ExecuteEntry, cb engine.Callback) (engine.Result, error) {
	idx, ok := a.manifest.PackageByID(entry.PackageID)
	if !ok {
		return engine.Result{}, errkind.New(errkind.Fatal, "execute entry references unknown package "+entry.PackageID)
	}
	pkg := a.manifest.Packages[idx]

	req := engine.ExecuteRequest{
		Package:        pkg,
		Action:         entry.PackageAction,
		Direction:      engine.Forward,
		CachedPayloads: a.cachedPayloadPaths(pkg),
	}

	result, err := a.dispatcher.Dispatch(ctx, pkg.Kind, req, cb)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	metrics.PackagesExecuted.WithLabelValues(pkg.Kind.String(), entry.PackageAction.String(), outcome).Inc()
	return result, err
}

// cachedPayloadPaths maps each of pkg's payload keys to its completed,
// verified on-disk location.
func (a *Applier) cachedPayloadPaths(pkg manifest.Package) map[string]string {
	paths := make(map[string]string, len(pkg.PayloadRefs))
	for _, payloadKey := range pkg.PayloadRefs {
		pidx, ok := a.manifest.PayloadByKey(payloadKey)
		if !ok {
			continue
		}
		payload := a.manifest.Payloads[pidx]
		paths[payloadKey] = a.cacheStore.CompletedPath(pkg.CacheID, payload.FilePath)
	}
	return paths
}

// collectBoundarySuffix returns the executed ExecutePackage entries that
// share boundaryID, most recently executed first, stopping as soon as an
// entry from a different boundary is reached.
func collectBoundarySuffix(executed []plan.ExecuteEntry, boundaryID string) []plan.ExecuteEntry {
	var out []plan.ExecuteEntry
	for i := len(executed) - 1; i >= 0; i-- {
		e := executed[i]
		if e.Kind != plan.ExecutePackage {
			continue
		}
		if e.BoundaryID != boundaryID {
			break
		}
		out = append(out, e)
	}
	return out
}

// collectAllPackages returns every executed ExecutePackage entry, most
// recently executed first, regardless of boundary.
func collectAllPackages(executed []plan.ExecuteEntry) []plan.ExecuteEntry {
	var out []plan.ExecuteEntry
	for i := len(executed) - 1; i >= 0; i-- {
		if executed[i].Kind == plan.ExecutePackage {
			out = append(out, executed[i])
		}
	}
	return out
}

// dispatchRollbackEntries replays the rollback mirror of each entry, which
// must already be ordered most-recently-executed first, best-effort: the
// first per-package error is returned but every mirror action still runs.
func (a *Applier) dispatchRollbackEntries(ctx context.Context, entries []plan.ExecuteEntry, cb engine.Callback) (bool, error) {
	var firstErr error
	rolledBack := false

	for _, entry := range entries {
		idx, ok := a.manifest.PackageByID(entry.PackageID)
		if !ok {
			continue
		}
		pkg := a.manifest.Packages[idx]

		req := engine.ExecuteRequest{
			Package:        pkg,
			Action:         invertAction(entry.PackageAction),
			Direction:      engine.Rollback,
			CachedPayloads: a.cachedPayloadPaths(pkg),
		}

		rolledBack = true
		_, err := a.dispatcher.Dispatch(ctx, pkg.Kind, req, cb)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		metrics.PackagesExecuted.WithLabelValues(pkg.Kind.String(), req.Action.String(), "rolled_back").Inc()
	}

	return rolledBack, firstErr
}

// boundaryIsVital reports whether the named rollback boundary demands a
// full-run abort on failure. Packages with no explicit boundary are
// treated as belonging to an implicit vital whole-chain boundary.
func (a *Applier) boundaryIsVital(boundaryID string) bool {
	if boundaryID == "" {
		return true
	}
	idx, ok := a.manifest.BoundaryByID(boundaryID)
	if !ok {
		return true
	}
	return a.manifest.RollbackBoundaries[idx].Vital
}

// nextBoundaryIndex returns the index of the first execute entry past
// failIndex that belongs to a different rollback boundary than
// boundaryID, skipping the rest of the failed boundary's packages.
func nextBoundaryIndex(p *plan.Plan, failIndex int, boundaryID string) int {
	for i := failIndex + 1; i < len(p.ExecuteActions); i++ {
		e := p.ExecuteActions[i]
		if e.Kind == plan.ExecutePackage && e.BoundaryID != boundaryID {
			return i
		}
	}
	return len(p.ExecuteActions)
}

func invertAction(a manifest.Action) manifest.Action {
	switch a {
	case manifest.ActionInstall:
		return manifest.ActionUninstall
	case manifest.ActionUninstall:
		return manifest.ActionInstall
	case manifest.ActionRepair, manifest.ActionModify:
		return a
	}
	return manifest.ActionNone
}

func foldRestart(result engine.Result) RestartState {
	if result.RestartInitiated {
		return RestartInitiated
	}
	if result.RestartRequired {
		return RestartRequired
	}
	return RestartNone
}
