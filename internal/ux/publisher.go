package ux

import (
	"log/slog"
)

// EventPublisher publishes engine progress onto the EventBus from the
// detect, plan, cache, and execute phases.
type EventPublisher struct {
	eventBus *DefaultEventBus
	logger   *slog.Logger
	metrics  *UXMetrics
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(eventBus *DefaultEventBus, logger *slog.Logger, metrics *UXMetrics) *EventPublisher {
	return &EventPublisher{
		eventBus: eventBus,
		logger:   logger.With("component", "event_publisher"),
		metrics:  metrics,
	}
}

// PublishDetectPackage publishes the result of detecting one package's
// present state.
func (p *EventPublisher) PublishDetectPackage(packageID string, present bool, version string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id": packageID,
		"present":    present,
		"version":    version,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeDetectPackage, data, EventSourceDetect))
}

// PublishPlanPackage publishes the requested/execute/rollback action chosen
// for one package during planning.
func (p *EventPublisher) PublishPlanPackage(packageID string, requestedState, action string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id":      packageID,
		"requested_state": requestedState,
		"action":          action,
	}
	return p.eventBus.Publish(*NewEvent(EventTypePlanPackage, data, EventSourcePlan))
}

// PublishCacheProgress publishes download/copy progress for one payload.
func (p *EventPublisher) PublishCacheProgress(payloadID string, bytesDone, bytesTotal int64) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"payload_id":  payloadID,
		"bytes_done":  bytesDone,
		"bytes_total": bytesTotal,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeCacheAcquireProg, data, EventSourceCache))
}

// PublishExecuteProgress publishes overall weighted execute progress (0-100)
// for one package, after MSI phase translation where applicable.
func (p *EventPublisher) PublishExecuteProgress(packageID string, overallPercentage int) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id":         packageID,
		"overall_percentage": overallPercentage,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeExecuteProgress, data, EventSourceExecute))
}

// PublishExecutePackageComplete publishes the terminal result of executing
// one package.
func (p *EventPublisher) PublishExecutePackageComplete(packageID string, restart bool, errKind string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id":       packageID,
		"restart_required": restart,
	}
	if errKind != "" {
		data["error_kind"] = errKind
	}
	return p.eventBus.Publish(*NewEvent(EventTypeExecutePackageDone, data, EventSourceExecute))
}

// PublishFilesInUse publishes a files-in-use prompt so a UX consumer can
// return a retry/ignore/cancel decision out of band.
func (p *EventPublisher) PublishFilesInUse(packageID string, files []string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id": packageID,
		"files":      files,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeFilesInUse, data, EventSourceExecute))
}

// PublishError publishes a package or pipe failure.
func (p *EventPublisher) PublishError(source, packageID string, kind string, message string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"package_id": packageID,
		"error_kind": kind,
		"message":    message,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeError, data, source))
}

// PublishSystemNotification publishes a free-form system notification.
func (p *EventPublisher) PublishSystemNotification(level string, message string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"level":   level,
		"message": message,
	}
	return p.eventBus.Publish(*NewEvent(EventTypeSystemNotification, data, EventSourceSystem))
}
