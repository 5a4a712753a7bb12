// Package msu implements the Msu package engine: detect by a boolean
// condition evaluated against the KB-installed state, execute by
// invoking the Windows Update standalone installer (wusa.exe) in the
// background.
package msu

import (
	"context"
	"os/exec"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

// Engine implements engine.Engine for Msu packages.
type Engine struct {
	store *variables.Store
}

// New returns an Msu engine that evaluates detect conditions against store.
func New(store *variables.Store) *Engine {
	return &Engine{store: store}
}

// Detect evaluates the package's detect condition.
func (e *Engine) Detect(ctx context.Context, pkg *manifest.Package) error {
	if pkg.Msu == nil {
		return errkind.New(errkind.Validation, "detect called on non-msu package")
	}
	present, err := e.store.Evaluate(pkg.Msu.DetectCondition)
	if err != nil {
		return err
	}
	if present {
		pkg.CurrentState = manifest.StatePresent
	} else {
		pkg.CurrentState = manifest.StateAbsent
	}
	return nil
}

// Execute invokes wusa.exe, reporting progress 0 before the run and 100
// after it, since the standalone installer reports no intermediate percent.
func (e *Engine) Execute(ctx context.Context, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error) {
	pkg := req.Package
	if pkg.Msu == nil {
		return engine.Result{}, errkind.New(errkind.Validation, "execute called on non-msu package")
	}

	msuPath, ok := req.CachedPayloads[pkg.ID]
	if !ok {
		return engine.Result{}, errkind.New(errkind.NotFound, "msu package path not cached: "+pkg.ID)
	}

	args := []string{msuPath, "/quiet", "/norestart"}
	if req.Action == manifest.ActionUninstall {
		args = append([]string{"/uninstall"}, args...)
	}

	if !cb.Progress(0) {
		return engine.Result{}, errkind.New(errkind.UserDecision, "msu execution cancelled by UX")
	}
	cmd := exec.CommandContext(ctx, "wusa.exe", args...)
	err := cmd.Run()
	cb.Progress(100)

	if err != nil {
		return engine.Result{}, errkind.Wrap(errkind.PackageFailure, "msu update failed for "+pkg.ID, err)
	}
	return engine.Result{}, nil
}
