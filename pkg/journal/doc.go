// Package journal keeps a short history of keeper's lifecycle events:
// provisioning attempts, config writes and drift, launches and exits.
//
// The memory backend holds the last journal.capacity events and is the
// default. The sqlite backend (modernc.org/sqlite, no cgo) persists the
// history across restarts for hosts with a writable volume; `keeper events`
// reads it offline.
package journal
