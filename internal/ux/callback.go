package ux

import (
	"github.com/vitaliisemenov/chainboot/internal/engine"
)

// EngineCallback adapts one package's engine.Callback/engine.MsiCallback
// contract onto the host's event publisher and cooperative cancel flag,
// so every console/dashboard subscriber sees the same progress stream
// regardless of which engine is currently executing.
type EngineCallback struct {
	host      *Host
	publisher *EventPublisher
	packageID string
}

// NewEngineCallback returns a callback scoped to one package's execution.
func NewEngineCallback(host *Host, publisher *EventPublisher, packageID string) *EngineCallback {
	return &EngineCallback{host: host, publisher: publisher, packageID: packageID}
}

// Progress reports overall percent complete; it returns false once the
// host's cancel flag has been set, asking the engine to unwind.
func (c *EngineCallback) Progress(percent int) bool {
	c.publisher.PublishExecuteProgress(c.packageID, percent)
	return !c.host.CancelRequested()
}

// FilesInUse reports files the package needs exclusive access to.
func (c *EngineCallback) FilesInUse(paths []string) bool {
	c.publisher.PublishFilesInUse(c.packageID, paths)
	return !c.host.CancelRequested()
}

// Error surfaces a raw MSI installer error; recommendation, when
// non-zero, is honored verbatim since this callback has no interactive
// UX wired to override it.
func (c *EngineCallback) Error(code int, flags uint32, text string, data []string, recommendation int) int {
	c.publisher.PublishError(EventSourceExecute, c.packageID, "package_failure", text)
	return recommendation
}

// MsiMessage surfaces a general installer log/status message.
func (c *EngineCallback) MsiMessage(msgType uint32, flags uint32, text string, data []string, recommendation int) int {
	c.publisher.PublishSystemNotification("info", text)
	return recommendation
}
