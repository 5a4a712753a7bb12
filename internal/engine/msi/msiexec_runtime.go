package msi

import (
	"context"
	"os/exec"
	"strings"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// ExecRuntime drives msiexec.exe directly instead of the Windows
// Installer COM API, the same shell-out approach the Msu engine uses
// for wusa.exe. ProductState has no command-line equivalent to
// MsiQueryProductState, so it always reports absent; a Windows build
// wiring the real API would replace this Runtime, not this package.
type ExecRuntime struct{}

// NewExecRuntime returns a Runtime that shells out to msiexec.exe.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

func (r *ExecRuntime) ProductState(productCode string) (manifest.DetectState, error) {
	return manifest.StateAbsent, nil
}

func (r *ExecRuntime) Install(ctx context.Context, req InstallRequest, onTick func(f0, f1, f2, f3 int), onMessage func(msgType uint32, flags uint32, text string, data []string) int) (engine.Result, error) {
	args := []string{}
	switch req.Action {
	case manifest.ActionUninstall:
		args = append(args, "/x", req.ProductCode)
	default:
		args = append(args, "/i", req.PackagePath)
	}
	args = append(args, "/quiet", "/norestart")
	if req.Language != 0 {
		args = append(args, "MSIFASTINSTALL=1")
	}
	for k, v := range req.Properties {
		args = append(args, k+"="+v)
	}

	onTick(0, 0, 0, 0)
	cmd := exec.CommandContext(ctx, "msiexec", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	onTick(100, 100, 100, 100)

	if err != nil {
		onMessage(0, 0, stderr.String(), nil, 0)
		return engine.Result{}, err
	}
	return engine.Result{}, nil
}
