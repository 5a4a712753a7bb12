package msi

import (
	"context"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// Runtime is the platform collaborator that actually drives the
// Windows Installer API. Production builds back this with MSI API calls
// (MsiQueryProductState, MsiInstallProduct, MsiSetExternalUI); this
// package depends only on the interface so the progress-translation
// state machine in progress.go can be tested without a Windows Installer
// runtime present.
type Runtime interface {
	// ProductState reports whether productCode is absent, cached (in the
	// local package cache but not installed), or present.
	ProductState(productCode string) (manifest.DetectState, error)

	// Install drives an MSI install/uninstall/repair, forwarding raw
	// installer ticks to onTick and installer messages to onMessage.
	// onMessage returns the recommendation the installer should honor
	// (IDOK/IDCANCEL/IDRETRY/IDIGNORE); a return of 0 means use the
	// installer's own default. onTick returns nothing.
	Install(ctx context.Context, req InstallRequest, onTick func(f0, f1, f2, f3 int), onMessage func(msgType uint32, flags uint32, text string, data []string) int) (engine.Result, error)
}

// InstallRequest is the fully-resolved set of arguments passed to the
// Windows Installer API for one package action.
type InstallRequest struct {
	ProductCode string
	PackagePath string
	Action      manifest.Action
	Properties  map[string]string
	Language    int
	PerMachine  bool
}

// Engine implements engine.Engine for Msi packages.
type Engine struct {
	runtime Runtime
}

// New returns an Msi engine backed by runtime.
func New(runtime Runtime) *Engine {
	return &Engine{runtime: runtime}
}

// Detect queries the current product state and stores it on pkg.
func (e *Engine) Detect(ctx context.Context, pkg *manifest.Package) error {
	if pkg.Msi == nil {
		return errkind.New(errkind.Validation, "detect called on non-msi package")
	}
	state, err := e.runtime.ProductState(pkg.Msi.ProductCode)
	if err != nil {
		return errkind.Wrap(errkind.IO, "query msi product state", err)
	}
	pkg.CurrentState = state
	return nil
}

// Execute installs, uninstalls, or repairs pkg, translating raw installer
// ticks into the Callback's Progress percent and forwarding Msi-specific
// messages when cb implements engine.MsiCallback.
func (e *Engine) Execute(ctx context.Context, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error) {
	pkg := req.Package
	if pkg.Msi == nil {
		return engine.Result{}, errkind.New(errkind.Validation, "execute called on non-msi package")
	}

	packagePath, ok := req.CachedPayloads[pkg.ID]
	if !ok {
		return engine.Result{}, errkind.New(errkind.NotFound, "msi package path not cached: "+pkg.ID)
	}

	translator := NewProgressTranslator()
	msiCb, _ := cb.(engine.MsiCallback)

	cancelled := false
	onTick := func(f0, f1, f2, f3 int) {
		if cancelled {
			return
		}
		percent := translator.Tick(f0, f1, f2, f3)
		if !cb.Progress(percent) {
			cancelled = true
		}
	}
	onMessage := func(msgType uint32, flags uint32, text string, data []string) int {
		if msiCb == nil {
			return 0
		}
		return msiCb.MsiMessage(msgType, flags, text, data, 0)
	}

	result, err := e.runtime.Install(ctx, InstallRequest{
		ProductCode: pkg.Msi.ProductCode,
		PackagePath: packagePath,
		Action:      req.Action,
		Properties:  mergeProperties(pkg.Msi.Properties, req.Properties),
		Language:    pkg.Msi.Language,
		PerMachine:  pkg.PerMachine,
	}, onTick, onMessage)

	if cancelled && err == nil {
		return result, errkind.New(errkind.UserDecision, "msi execution cancelled by UX")
	}
	if err != nil {
		return result, errkind.Wrap(errkind.PackageFailure, "msi install failed for "+pkg.ID, err)
	}
	return result, nil
}

func mergeProperties(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
