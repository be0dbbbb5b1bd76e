// Package handlers implements the read-only HTTP endpoints of the keeper
// facade. Handlers answer from the immutable identity and from snapshots of
// the supervisor and journal; none of them changes provisioning, config or
// process state.
//
// A failure while answering a request is a QueryError. It becomes a 500
// response with a short plain-text message and is logged; the host keeps
// serving.
package handlers
