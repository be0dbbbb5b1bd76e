// Package identity holds the deployment identity that the runtime config and
// the advertised client descriptor are both derived from.
//
// A Parameters value is built once at startup and never changes. Restarting
// the process is the only way to change the client id, transport path, port
// or public domain, because the proxy config on disk and the descriptor served
// over HTTP must stay in lockstep.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultID is the client identifier used when none is configured.
const DefaultID = "de04add9-5c68-8bab-950c-08cd5320df18"

// DefaultPath is the default WebSocket transport path.
const DefaultPath = "/"

// FallbackDomain is advertised when no public domain could be resolved.
// It only makes sense for local runs.
const FallbackDomain = "your-project-name.glitch.me"

// Parameters is the immutable identity of a deployment.
type Parameters struct {
	id     string
	path   string
	port   int
	domain string
}

// Error reports an invalid identity field.
type Error struct {
	Field   string
	Value   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid identity %s %q: %s", e.Field, e.Value, e.Message)
}

// New validates its inputs and returns the identity built from them.
// The id is kept exactly as supplied; the proxy compares it byte for byte.
func New(id, path string, port int, domain string) (Parameters, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Parameters{}, &Error{Field: "id", Value: id, Message: err.Error()}
	}
	// uuid.Parse also accepts urn: and braced forms which the proxy rejects.
	if len(id) != 36 {
		return Parameters{}, &Error{Field: "id", Value: id, Message: "must be in canonical 8-4-4-4-12 form"}
	}
	if !strings.HasPrefix(path, "/") {
		return Parameters{}, &Error{Field: "path", Value: path, Message: "must begin with /"}
	}
	if port < 1 || port > 65535 {
		return Parameters{}, &Error{Field: "port", Value: fmt.Sprint(port), Message: "must be between 1 and 65535"}
	}

	return Parameters{
		id:     id,
		path:   path,
		port:   port,
		domain: strings.TrimSpace(domain),
	}, nil
}

// ID returns the client identifier.
func (p Parameters) ID() string { return p.id }

// Path returns the transport path.
func (p Parameters) Path() string { return p.path }

// Port returns the port the HTTP facade listens on.
func (p Parameters) Port() int { return p.port }

// Domain returns the configured public domain, which may be empty.
func (p Parameters) Domain() string { return p.domain }

// PublicDomain returns Domain, or FallbackDomain when none is set.
func (p Parameters) PublicDomain() string {
	if p.domain == "" {
		return FallbackDomain
	}
	return p.domain
}

// IsZero reports whether p was never built by New.
func (p Parameters) IsZero() bool {
	return p.id == ""
}
