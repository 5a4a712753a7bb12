// Package exe implements the Exe package engine: detection by a boolean
// condition, execution by spawning the package's executable with an
// action-selected argument template and mapping its exit code through the
// package's exit-code table.
package exe

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"github.com/vitaliisemenov/chainboot/internal/engine"
	"github.com/vitaliisemenov/chainboot/internal/errkind"
	"github.com/vitaliisemenov/chainboot/internal/manifest"
	"github.com/vitaliisemenov/chainboot/internal/variables"
)

// Engine implements engine.Engine for Exe packages.
type Engine struct {
	store *variables.Store
}

// New returns an Exe engine that evaluates detect conditions against store.
func New(store *variables.Store) *Engine {
	return &Engine{store: store}
}

// Detect evaluates the package's detect condition; a true result means
// the package is already present, false means absent. Exe packages have
// no cache-only state, so CurrentState never becomes StateCached here.
func (e *Engine) Detect(ctx context.Context, pkg *manifest.Package) error {
	if pkg.Exe == nil {
		return errkind.New(errkind.Validation, "detect called on non-exe package")
	}
	present, err := e.store.Evaluate(pkg.Exe.DetectCondition)
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

// Execute runs the package's executable with the argument template
// selected by req.Action, streaming its combined output as percent-free
// progress pings and mapping its exit code to a restart classification.
func (e *Engine) Execute(ctx context.Context, req engine.ExecuteRequest, cb engine.Callback) (engine.Result, error) {
	pkg := req.Package
	if pkg.Exe == nil {
		return engine.Result{}, errkind.New(errkind.Validation, "execute called on non-exe package")
	}

	exePath, ok := req.CachedPayloads[pkg.ID]
	if !ok {
		return engine.Result{}, errkind.New(errkind.NotFound, "exe package path not cached: "+pkg.ID)
	}

	argsTemplate := pkg.Exe.ArgumentsByAction[actionKey(req.Action)]
	args := splitArgs(e.store.FormatString(argsTemplate))

	cmd := exec.CommandContext(ctx, exePath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return engine.Result{}, errkind.Wrap(errkind.IO, "attach exe stdout", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return engine.Result{}, errkind.Wrap(errkind.IO, "start exe package", err)
	}

	cancelled := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if !cb.Progress(-1) {
			cancelled = true
			cmd.Process.Kill()
			break
		}
	}

	waitErr := cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()

	if cancelled {
		return engine.Result{}, errkind.New(errkind.UserDecision, "exe execution cancelled by UX")
	}

	restartCode, mapped := pkg.Exe.ExitCodeMapping[exitCode]
	if !mapped {
		if waitErr != nil && exitCode == 0 {
			return engine.Result{}, errkind.Wrap(errkind.PackageFailure, "exe package failed to run", waitErr)
		}
		if exitCode != 0 {
			return engine.Result{ExitCode: exitCode}, errkind.New(errkind.PackageFailure, "exe package exited non-zero")
		}
		return engine.Result{ExitCode: exitCode}, nil
	}

	result := engine.Result{ExitCode: exitCode}
	switch restartCode {
	case "scheduleReboot":
		result.RestartRequired = true
	case "forceReboot":
		result.RestartInitiated = true
	case "error":
		return result, errkind.New(errkind.PackageFailure, "exe package reported error exit code")
	}
	return result, nil
}

func actionKey(a manifest.Action) string {
	switch a {
	case manifest.ActionInstall:
		return "install"
	case manifest.ActionUninstall:
		return "uninstall"
	case manifest.ActionRepair:
		return "repair"
	case manifest.ActionModify:
		return "modify"
	default:
		return "install"
	}
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}
