// Package msp implements the Msp package engine: detect by patch
// applicability against the currently installed target products, execute
// by applying or removing the patch through the same installer runtime
// collaborator the Msi engine uses.
package msp

import (
	"context"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// Runtime queries and applies MSP patches. A production implementation
// backs this with the same Windows Installer API family the Msi engine
// uses (MsiGetPatchInfo, MsiApplyPatch).
type Runtime interface {
	PatchState(patchCode string, targetProductCodes []string) (manifest.DetectState, error)
	ApplyPatch(ctx context.Context, patchPath, patchCode string, action manifest.Action, onTick func(f0, f1, f2, f3 int)) (engine.Result, error)
}

// Engine implements engine.Engine for Msp packages.
type Engine struct {
	runtime Runtime
}

// New returns an Msp engine backed by runtime.
func New(runtime Runtime) *Engine {
	return &Engine{runtime: runtime}
}

// Detect checks whether the patch is already applied to any of its
// declared target products.
func (e *Engine) Detect(ctx context.Context, pkg *manifest.Package) error {
	if pkg.Msp == nil {
		return errkind.New(errkind.Validation, "detect called on non-msp package")
	}
	state, err := e.runtime.PatchState(pkg.Msp.PatchCode, pkg.Msp.TargetProductCodes)
	if err != nil {
		return errkind.Wrap(errkind.IO, "query msp patch state", err)
	}
	pkg.CurrentState = state
	return nil
}

// Execute applies or removes the patch, reporting each installer tick's
// f1 value, clamped to 0-100, as the progress percent. The Msi engine's
// phase-weighted progress translation is not applied here.
func (e *Engine) Execute(ctx context.Context, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error) {
	pkg := req.Package
	if pkg.Msp == nil {
		return engine.Result{}, errkind.New(errkind.Validation, "execute called on non-msp package")
	}

	patchPath, ok := req.CachedPayloads[pkg.ID]
	if !ok {
		return engine.Result{}, errkind.New(errkind.NotFound, "msp package path not cached: "+pkg.ID)
	}

	cancelled := false
	onTick := func(f0, f1, f2, f3 int) {
		if cancelled {
			return
		}
		if !cb.Progress(clampPercent(f1)) {
			cancelled = true
		}
	}

	result, err := e.runtime.ApplyPatch(ctx, patchPath, pkg.Msp.PatchCode, req.Action, onTick)
	if cancelled && err == nil {
		return result, errkind.New(errkind.UserDecision, "msp execution cancelled by UX")
	}
	if err != nil {
		return result, errkind.Wrap(errkind.PackageFailure, "msp apply failed for "+pkg.ID, err)
	}
	return result, nil
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
