package ux

import (
	"context"
	"log/slog"
	"sync"
)

// Decision is the UX's answer to a progress or begin callback. Cancel/Abort
// propagates as a cooperative-cancel UserExit; Suspend ends execution early
// and records a suspended state on unregister.
type Decision int

const (
	DecisionOK Decision = iota
	DecisionCancel
	DecisionSuspend
	DecisionRetry
	DecisionIgnore
)

// Host is the single-writer serialization wrapper described for the UX host:
// the entire Detect/Plan/Apply/Elevate sequence is bracketed by one
// Activate/Deactivate pair so a UX cannot start a second overlapping
// top-level operation.
type Host struct {
	mu        sync.Mutex
	active    bool
	bus       *DefaultEventBus
	publisher *EventPublisher
	logger    *slog.Logger

	// cancelRequested is the cooperative cancel flag consulted by the
	// running cache/execute I/O loops.
	cancelRequested bool
}

// NewHost builds a UX host wired to the given event bus.
func NewHost(bus *DefaultEventBus, publisher *EventPublisher, logger *slog.Logger) *Host {
	return &Host{
		bus:       bus,
		publisher: publisher,
		logger:    logger.With("component", "ux_host"),
	}
}

// Activate enters the exclusive section. It fails if a bracket is already
// open; callers must not start Detect/Plan/Apply otherwise.
func (h *Host) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active {
		return ErrAlreadyActive
	}
	h.active = true
	h.cancelRequested = false
	return nil
}

// Deactivate leaves the exclusive section.
func (h *Host) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return ErrNotActive
	}
	h.active = false
	return nil
}

// IsActive reports whether a bracket is currently open.
func (h *Host) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// RequestCancel sets the cooperative cancel flag. The current cache/execute
// loop observes it between I/O chunks and unwinds with a UserExit error.
func (h *Host) RequestCancel() {
	h.mu.Lock()
	h.cancelRequested = true
	h.mu.Unlock()
}

// CancelRequested reports whether cancellation has been requested.
func (h *Host) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelRequested
}

// Publisher returns the event publisher wired to this host's bus, for
// engine components to report progress through.
func (h *Host) Publisher() *EventPublisher {
	return h.publisher
}

// Run starts the event bus, runs fn inside an Activate/Deactivate bracket,
// then stops the bus. It does not start or stop any subscribers.
func (h *Host) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := h.Activate(); err != nil {
		return err
	}
	defer h.Deactivate()

	if err := h.bus.Start(ctx); err != nil {
		return err
	}
	defer h.bus.Stop(context.Background())

	return fn(ctx)
}
