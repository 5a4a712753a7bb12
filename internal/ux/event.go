package ux

import (
	"time"

	"github.com/google/uuid"
)

// Event is a progress or decision notification broadcast to attached UX
// consumers (the console renderer and the web dashboard) during Detect,
// Plan, and Apply.
type Event struct {
	// Type is the event type, one of the EventType constants below.
	Type string `json:"type"`

	// ID is a unique event ID.
	ID string `json:"id"`

	// Data is the event payload, shape depends on Type.
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Source names the engine phase or package that raised the event.
	Source string `json:"source"`

	// Sequence is a monotonically increasing broadcast order number.
	Sequence int64 `json:"sequence"`
}

// Event type constants, one per callback on the burn-style UX interface.
const (
	EventTypeDetectBegin        = "detect_begin"
	EventTypeDetectPackage      = "detect_package_complete"
	EventTypeDetectComplete     = "detect_complete"
	EventTypePlanBegin          = "plan_begin"
	EventTypePlanPackage        = "plan_package_complete"
	EventTypePlanComplete       = "plan_complete"
	EventTypeApplyBegin         = "apply_begin"
	EventTypeCacheAcquireBegin  = "cache_acquire_begin"
	EventTypeCacheAcquireProg   = "cache_acquire_progress"
	EventTypeCacheAcquireDone   = "cache_acquire_complete"
	EventTypeExecutePackageBeg  = "execute_package_begin"
	EventTypeExecuteProgress    = "execute_progress"
	EventTypeExecutePackageDone = "execute_package_complete"
	EventTypeExecuteMSIMessage  = "execute_msi_message"
	EventTypeError              = "error"
	EventTypeFilesInUse         = "files_in_use"
	EventTypeRestartRequired    = "restart_required"
	EventTypeApplyComplete      = "apply_complete"
	EventTypeSystemNotification = "system_notification"
)

// Event source constants naming the engine subsystem that raised an event.
const (
	EventSourceDetect  = "detect"
	EventSourcePlan    = "plan"
	EventSourceCache   = "cache"
	EventSourceExecute = "execute"
	EventSourceSystem  = "system"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}
