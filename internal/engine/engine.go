// Package engine defines the shared surface every package-type engine
// (exe, msi, msp, msu) implements: Detect inspects current machine state,
// Execute carries out one forward or rollback action while streaming
// progress, error, and files-in-use callbacks back to the caller.
package engine

import (
	"context"

	"github.com/vitaliisemenov/chainboot/internal/manifest"
)

// ActionDirection distinguishes a forward action from its rollback
// mirror; Execute uses it to choose, for example, Install vs Uninstall
// arguments on the same Exe package.
type ActionDirection int

const (
	Forward ActionDirection = iota
	Rollback
)

// ExecuteRequest carries everything an engine needs to run one package
// action: the package itself, the resolved action, per-kind arguments,
// and the already-cached payload locations.
type ExecuteRequest struct {
	Package        manifest.Package
	Action         manifest.Action
	Direction      ActionDirection
	CachedPayloads map[string]string // payload key -> absolute path
	Properties     map[string]string // resolved MSI properties, Exe argument string, etc.
}

// Result is what Execute reports back once a package action finishes.
type Result struct {
	RestartRequired bool
	RestartInitiated bool
	ExitCode        int
}

// Callback is the generic progress/files-in-use contract every engine
// honors. Progress and FilesInUse return false to request cooperative
// cancellation; the engine must abort the current operation and return a
// UserDecision error.
type Callback interface {
	Progress(percent int) bool
	FilesInUse(paths []string) bool
}

// MsiCallback extends Callback with the two MSI-specific message
// channels: raw installer errors and general installer log/status
// messages, either of which may carry a recommended default response the
// UX can honor or override.
type MsiCallback interface {
	Callback
	Error(code int, flags uint32, text string, data []string, recommendation int) int
	MsiMessage(msgType uint32, flags uint32, text string, data []string, recommendation int) int
}

// Engine is implemented once per package kind.
type Engine interface {
	Detect(ctx context.Context, pkg *manifest.Package) error
	Execute(ctx context.Context, req ExecuteRequest, cb Callback) (Result, error)
}
