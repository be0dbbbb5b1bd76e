package handlers

import (
	"context"
	"fmt"

	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/supervisor"
)

// StatusSource reports the supervised process state. Handlers only read it.
type StatusSource interface {
	Status() supervisor.Status
}

// EventSource returns recent lifecycle events.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]journal.Event, error)
}

// QueryError is a failure while answering a read-only request. It becomes a
// 500 response and never affects the host process.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func allowRead(method string) bool {
	return method == "GET" || method == "HEAD"
}
