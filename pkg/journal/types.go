package journal

import (
	"context"
	"time"
)

// Kind classifies a lifecycle event.
type Kind string

// Event kinds recorded by keeper.
const (
	KindProvisionPresent   Kind = "provision.present"
	KindProvisionAttempt   Kind = "provision.attempt"
	KindProvisionAcquired  Kind = "provision.acquired"
	KindProvisionFailed    Kind = "provision.failed"
	KindConfigWritten      Kind = "config.written"
	KindConfigDrift        Kind = "config.drift"
	KindProxyLaunched      Kind = "proxy.launched"
	KindProxyLaunchFailed  Kind = "proxy.launch_failed"
	KindProxyInhibited     Kind = "proxy.inhibited"
	KindProxyExited        Kind = "proxy.exited"
	KindProxyStopped       Kind = "proxy.stopped"
	KindServiceStarted     Kind = "service.started"
	KindServiceStopped     Kind = "service.stopped"
)

// Event is one lifecycle record.
type Event struct {
	// ID is a random UUID assigned on record.
	ID string `json:"id"`

	// Time is when the event was recorded.
	Time time.Time `json:"time"`

	// Kind classifies the event.
	Kind Kind `json:"kind"`

	// Component is the emitting component (provision, supervisor, ...).
	Component string `json:"component"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// Attrs carries event-specific fields such as strategy or pid.
	Attrs map[string]string `json:"attrs,omitempty"`

	// Error is the error text for failure events.
	Error string `json:"error,omitempty"`
}

// Storage persists events. Implementations must be safe for concurrent use.
type Storage interface {
	// Append stores an event.
	Append(ctx context.Context, event Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close releases any resources held by the storage.
	Close() error
}
