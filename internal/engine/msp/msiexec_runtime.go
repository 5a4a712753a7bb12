package msp

import (
	"context"
	"os/exec"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// ExecRuntime drives msiexec.exe's patch switches directly instead of
// the Windows Installer COM API. PatchState has no command-line
// equivalent to MsiGetPatchInfo, so it always reports absent.
type ExecRuntime struct{}

// NewExecRuntime returns a Runtime that shells out to msiexec.exe.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

func (r *ExecRuntime) PatchState(patchCode string, targetProductCodes []string) (manifest.DetectState, error) {
	return manifest.StateAbsent, nil
}

func (r *ExecRuntime) ApplyPatch(ctx context.Context, patchPath, patchCode string, action manifest.Action, onTick func(f0, f1, f2, f3 int)) (engine.Result, error) {
	var args []string
	if action == manifest.ActionUninstall {
		args = []string{"/package", patchCode, "MSIPATCHREMOVE=" + patchCode}
	} else {
		args = []string{"/p", patchPath}
	}
	args = append(args, "/quiet", "/norestart")

	onTick(0, 0, 0, 0)
	cmd := exec.CommandContext(ctx, "msiexec", args...)
	err := cmd.Run()
	onTick(100, 100, 100, 100)

	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{}, nil
}
