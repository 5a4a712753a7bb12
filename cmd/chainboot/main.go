// Package main is the entry point for the chainboot bundle engine: it
// wires the variable store, manifest, cache, acquirer, package-engine
// router, planner, and applier together behind the single-dash
// command-line surface a chained bootstrapper exposes to its caller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/chainboot/internal/acquire"
	"github.com/vitaliisemenov/chainboot/internal/apply"
	"github.com/vitaliisemenov/chainboot/internal/cache"
	"github.com/vitaliisemenov/chainboot/internal/config"
	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/engine/exe"
	"github.com/vitaliisemenov/chainboot/internal/engine/msi"
	"github.com/vitaliisemenov/chainboot/internal/engine/msp"
	"github.com/vitaliisemenov/chainboot/internal/engine/msu"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/monitor"
	"github.com/vitaliisemenov/chainboot/internal/plan"
	"github.com/vitaliisemenov/chainboot/internal/resilience"
	"github.com/vitaliisemenov/chainboot/internal/runlock"
	"github.com/vitaliisemenov/chainboot/internal/state"
	"github.com/vitaliisemenov/chainboot/internal/ux"
	"github.com/vitaliisemenov/chainboot/internal/variables"
	"github.com/vitaliisemenov/chainboot/pkg/logger"
)

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "chainboot: "+err.Error())
		os.Exit(1603)
	}
	if opts.Help {
		printUsage()
		return
	}

	cfg, err := config.Load(os.Getenv("CHAINBOOT_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "chainboot: load config: "+err.Error())
		os.Exit(1603)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   firstNonEmpty(opts.LogPath, cfg.Log.Filename),
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	for _, ignored := range opts.UnknownBurnSwitches {
		log.Warn("ignoring unrecognized burn switch for forward compatibility", "switch", ignored)
	}

	exitCode, err := run(opts, cfg, log)
	if err != nil {
		log.Error("run failed", "error", err)
	}
	os.Exit(exitCode)
}

func run(opts *cliOptions, cfg *config.EngineConfig, log *slog.Logger) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifestFile, err := os.Open(cfg.Bundle.ManifestPath)
	if err != nil {
		return 1603, errkind.Wrap(errkind.NotFound, "open manifest "+cfg.Bundle.ManifestPath, err)
	}
	m, err := manifest.Parse(manifestFile)
	manifestFile.Close()
	if err != nil {
		return 1603, err
	}
	if err := manifest.Validate(m); err != nil {
		return 1603, err
	}

	store := variables.New()
	variables.RegisterBuiltIns(store, cfg.Bundle.Name, cfg.Bundle.Version)

	stateStore, err := state.Open(ctx, cfg, log)
	if err != nil {
		return 1603, err
	}
	defer stateStore.Close()

	cacheStore, err := cache.New(cfg.Cache.Root, m.BundleID, log)
	if err != nil {
		return 1603, err
	}

	acquirer := acquire.New(acquire.Config{
		OriginalSourceDir: cfg.Acquire.OriginalSourceDir,
		BytesPerSecond:    cfg.Acquire.BytesPerSecond,
		RetryPolicy:       resilience.DefaultRetryPolicy(),
	})

	router := engine.NewRouter(exe.New(store), msi.New(msi.NewExecRuntime()), msp.New(msp.NewExecRuntime()), msu.New(store))

	if opts.Elevated != nil {
		return 0, runElevatedChild(ctx, opts.Elevated, m, router, log)
	}

	unlock, err := acquireRunLock(ctx, cfg, m.BundleID, log)
	if err != nil {
		return 1603, err
	}
	defer unlock()

	cacheWatch, err := monitor.New(cfg.Monitor.SilenceWindow, log)
	if err != nil {
		return 1603, err
	}
	if err := cacheWatch.Watch(cfg.Cache.Root); err != nil {
		return 1603, err
	}
	cacheWatch.Start(ctx)
	defer cacheWatch.Stop()
	go logCacheChurn(cacheWatch, log)

	resolver := apply.NewManifestResolver(m)
	applier := apply.New(m, acquirer, cacheStore, router, resolver, stateStore, log)

	metrics := ux.NewUXMetrics("chainboot")
	bus := ux.NewEventBus(log, metrics)
	publisher := ux.NewEventPublisher(bus, log, metrics)
	host := ux.NewHost(bus, publisher, log)

	console := ux.NewConsoleSubscriber(os.Stdout, opts.Quiet || opts.Passive)
	if err := bus.Subscribe(console); err != nil {
		return 1603, err
	}

	var dashboard *ux.Server
	if cfg.Metrics.Enabled {
		dashboard = ux.NewServer(cfg.UX.BindAddr, m.BundleID, bus, log)
		dashboard.Start()
	}

	requested, err := opts.requestedAction()
	if err != nil {
		return 1603, err
	}

	var outcome apply.Outcome
	runErr := host.Run(ctx, func(ctx context.Context) error {
		if err := router.Detect(ctx, m.Packages); err != nil {
			return err
		}

		planner := plan.New(m, store)
		p, err := planner.Plan(requested, plan.NoopUX{}, opts.ResumeCommandLine, opts.LayoutDir)
		if err != nil {
			return err
		}

		cb := ux.NewEngineCallback(host, publisher, m.BundleID)
		outcome, err = applier.Apply(ctx, p, cb)
		return err
	})

	if dashboard != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dashboard.Shutdown(shutdownCtx)
	}

	return errkind.ExitCode(runErr, outcome.Restart == apply.RestartInitiated, outcome.Restart == apply.RestartRequired), runErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// acquireRunLock guards the Activate/Deactivate bracket with a
// Redis-backed mutex scoped to the bundle id, so a per-machine install
// and a per-user repair of the same bundle cannot run concurrently.
// Deployments with no run_lock.redis_addr configured (the default for
// ProfileLite, which has no external services) skip locking entirely.
func acquireRunLock(ctx context.Context, cfg *config.EngineConfig, bundleID string, log *slog.Logger) (func(), error) {
	noop := func() {}
	if cfg.RunLock.RedisAddr == "" {
		return noop, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RunLock.RedisAddr})
	lockCfg := runlock.DefaultConfig()
	lockCfg.TTL = cfg.RunLock.TTL
	lockCfg.AcquireTimeout = cfg.RunLock.AcquireTimeout
	manager := runlock.NewManager(client, lockCfg, log)

	if _, err := manager.AcquireForBundle(ctx, bundleID); err != nil {
		client.Close()
		return noop, err
	}

	return func() {
		_ = manager.ReleaseForBundle(context.Background(), bundleID)
		client.Close()
	}, nil
}

// logCacheChurn logs each settled burst of top-level activity under the
// cache root (a bundle or staging directory appearing or disappearing),
// coalesced so a flurry of payload writes produces one line instead of
// one per file.
func logCacheChurn(m *monitor.Monitor, log *slog.Logger) {
	for n := range m.Notifications() {
		log.Debug("cache root settled after activity", "path", n.Path, "at", n.At)
	}
}
