// Package notify defines the port to the platform notification
// subsystem and the in-process implementations the engine ships with.
// The scheduler owns all calls into it; nothing else schedules or
// cancels triggers directly.
package notify

import (
	"context"
	"time"

	"github.com/medtrack/medtrack/internal/regimen"
)

// Request describes one reminder trigger to create. RegimenID travels
// in the trigger payload so orphaned triggers can be found and
// cancelled by scanning the scheduled list.
type Request struct {
	RegimenID string
	Slot      regimen.TimeSlot
	Title     string
	Body      string
}

// Scheduled is one live trigger as reported by the platform.
type Scheduled struct {
	ID        string
	RegimenID string
	Slot      regimen.TimeSlot
	Repeating bool
}

// Notification is a delivered reminder.
type Notification struct {
	RegimenID string
	Slot      regimen.TimeSlot
	Title     string
	Body      string
	At        time.Time
}

// Sink receives delivered notifications.
type Sink interface {
	Deliver(n Notification)
}

// Platform is the notification subsystem surface the engine consumes:
// permission handling, repeating and one-shot triggers, cancellation,
// enumeration, and the push capability probe.
type Platform interface {
	// PushCapable reports whether this runtime can deliver repeating
	// background-triggered notifications. False on simulators and
	// emulators; stable for the life of the process.
	PushCapable() bool

	PermissionGranted(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (bool, error)

	// ScheduleRepeating arms a daily trigger at the slot's time-of-day
	// and returns the platform identifier.
	ScheduleRepeating(ctx context.Context, req Request) (string, error)

	// ScheduleOneShot arms a single trigger after the given delay.
	ScheduleOneShot(ctx context.Context, req Request, delay time.Duration) (string, error)

	Cancel(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]Scheduled, error)
}
