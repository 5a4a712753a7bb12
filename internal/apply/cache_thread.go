package apply

import (
	"context"
	"fmt"

	"github.com/vitaliisemenov/chainboot/internal/acquire"
	"github.com/vitaliisemenov/chainboot/internal/cache"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/metrics"
	"github.com/vitaliisemenov/chainboot/internal/plan"
)

func sourceLabel(src acquire.Source) string {
	if src.DownloadURL != "" {
		return "download"
	}
	return "local"
}

// runCacheThread walks p's cache-action list, acquiring and staging each
// payload/container in order and signaling the sync board's checkpoint
// event once a package's CachePackageStop/Syncpoint pair is reached. On
// any unrecovered failure it runs the rollback-cache mirror and aborts
// the sync board so the execute thread does not hang on a checkpoint
// this thread will never reach.
func (a *Applier) runCacheThread(ctx context.Context, p *plan.Plan, board *syncBoard) error {
	stagedContainers := make(map[string]string)

	for _, e := range p.CacheActions {
		select {
		case <-ctx.Done():
			board.abort()
			return errkind.Wrap(errkind.UserDecision, "cache thread cancelled", ctx.Err())
		default:
		}

		switch e.Kind {
		case plan.CachePackageStart:
			// anchor only; nothing to acquire yet

		case plan.CacheAcquireContainer:
			staged, err := a.acquireContainer(ctx, e.ContainerID)
			if err != nil {
				a.runRollbackCache(p)
				board.abort()
				return err
			}
			stagedContainers[e.ContainerID] = staged

		case plan.CacheExtractContainer:
			// the container's payloads share the container's already-
			// staged unverified file; extraction happens in-place when
			// each payload is completed below.

		case plan.CacheAcquirePayload:
			if err := a.acquirePayload(ctx, e.PayloadKey, e.CheckpointID); err != nil {
				a.runRollbackCache(p)
				board.abort()
				return err
			}

		case plan.CacheCompletePayload:
			if err := a.completePayload(e.PayloadKey, e.CheckpointID, stagedContainers); err != nil {
				a.runRollbackCache(p)
				board.abort()
				return err
			}

		case plan.CachePackageStop:
			// anchor only

		case plan.CacheSyncpoint:
			board.signal(e.CheckpointID)
		}
	}

	return nil
}

// acquireContainer downloads/copies a container into the unverified
// staging area and returns the staged path so CacheCompletePayload can
// later verify and place each of its payloads from it.
func (a *Applier) acquireContainer(ctx context.Context, containerID string) (string, error) {
	src, err := a.resolver.ContainerSourceFor(containerID)
	if err != nil {
		return "", errkind.Wrap(errkind.NotFound, "resolve container source "+containerID, err)
	}
	dest, err := a.cacheStore.NewUnverifiedPath()
	if err != nil {
		return "", err
	}
	if err := a.acquirer.AcquireToUnverified(ctx, src, dest, func(fileBytes, cumulative int64) bool { return true }); err != nil {
		metrics.CacheOutcomes.WithLabelValues("failed").Inc()
		return "", errkind.Wrap(errkind.IO, "acquire container "+containerID, err)
	}
	metrics.BytesAcquired.WithLabelValues(sourceLabel(src)).Add(float64(src.Size))
	return dest, nil
}

// acquirePayload downloads/copies a payload into the unverified staging
// area, retrying on IO failure up to the recommended verify/acquire
// retry ceiling.
func (a *Applier) acquirePayload(ctx context.Context, payloadKey string, checkpointID int) error {
	src, _, err := a.resolver.SourceFor(payloadKey)
	if err != nil {
		return errkind.Wrap(errkind.NotFound, "resolve payload source "+payloadKey, err)
	}

	dest, err := a.cacheStore.NewUnverifiedPath()
	if err != nil {
		return err
	}

	var acquireErr error
	for attempt := 0; attempt <= cache.MaxVerifyTryAgainAttempts; attempt++ {
		acquireErr = a.acquirer.AcquireToUnverified(ctx, src, dest, func(fileBytes, cumulative int64) bool { return true })
		if acquireErr == nil {
			break
		}
		if !errkind.Is(acquireErr, errkind.IO) {
			break
		}
		a.logger.Warn("payload acquire failed, retrying", "payload", payloadKey, "attempt", attempt, "error", acquireErr)
	}
	if acquireErr != nil {
		metrics.CacheOutcomes.WithLabelValues("failed").Inc()
		return errkind.Wrap(errkind.IO, "acquire payload "+payloadKey, acquireErr)
	}
	metrics.BytesAcquired.WithLabelValues(sourceLabel(src)).Add(float64(src.Size))

	a.mu.Lock()
	a.stagedPayloads[payloadKey] = dest
	a.mu.Unlock()
	return nil
}

// completePayload verifies and places a staged payload (or a payload
// sliced out of an already-staged container) into the completed cache
// area.
func (a *Applier) completePayload(payloadKey string, checkpointID int, stagedContainers map[string]string) error {
	_, ref, err := a.resolver.SourceFor(payloadKey)
	if err != nil {
		return errkind.Wrap(errkind.NotFound, "resolve payload verification metadata "+payloadKey, err)
	}

	a.mu.Lock()
	stagedPath, ok := a.stagedPayloads[payloadKey]
	a.mu.Unlock()
	if !ok {
		for _, containerPath := range stagedContainers {
			stagedPath = containerPath
			ok = true
			break
		}
	}
	if !ok {
		return errkind.New(errkind.Fatal, "payload "+payloadKey+" reached complete with nothing staged")
	}

	cacheID := ""
	for _, pkg := range a.manifest.Packages {
		for _, payloadRef := range pkg.PayloadRefs {
			if payloadRef == payloadKey {
				cacheID = pkg.CacheID
			}
		}
	}

	a.mu.Lock()
	attempts := a.tryAgainAttempts[payloadKey]
	a.mu.Unlock()
	if attempts > cache.MaxVerifyTryAgainAttempts {
		return errkind.New(errkind.IO, fmt.Sprintf("payload %s exceeded verify retry ceiling", payloadKey))
	}

	if err := a.cacheStore.CompletePayload(ref, cacheID, stagedPath, true); err != nil {
		a.mu.Lock()
		a.tryAgainAttempts[payloadKey]++
		a.mu.Unlock()
		metrics.CacheOutcomes.WithLabelValues("failed").Inc()
		return errkind.Wrap(errkind.IO, "complete payload "+payloadKey, err)
	}
	metrics.CacheOutcomes.WithLabelValues("acquired").Inc()
	return nil
}

// runRollbackCache invokes the rollback-cache mirror (RollbackPackage
// entries) for every package already staged, best-effort: failures are
// logged, never propagated, since the run is already failing.
func (a *Applier) runRollbackCache(p *plan.Plan) {
	for _, e := range p.RollbackCacheActions {
		if e.Kind != plan.CacheRollbackPackage {
			continue
		}
		idx, ok := a.manifest.PackageByID(e.PackageID)
		if !ok {
			continue
		}
		pkg := a.manifest.Packages[idx]
		if pkg.CacheID == "" {
			continue
		}
		if err := a.cacheStore.RemovePackage(pkg.CacheID); err != nil {
			a.logger.Warn("rollback-cache cleanup failed", "package", e.PackageID, "error", err)
		}
	}
}
