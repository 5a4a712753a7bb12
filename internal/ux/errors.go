package ux

import "errors"

var (
	// ErrEventChannelFull is returned when the event channel is full.
	ErrEventChannelFull = errors.New("event channel full")

	// ErrSubscriberClosed is returned when trying to send to a closed subscriber.
	ErrSubscriberClosed = errors.New("subscriber closed")

	// ErrInvalidEvent is returned when an event is invalid.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrAlreadyActive is returned by Activate when the UX host is already bracketing an action.
	ErrAlreadyActive = errors.New("ux host already active")

	// ErrNotActive is returned by Deactivate when no Activate bracket is open.
	ErrNotActive = errors.New("ux host not active")
)
