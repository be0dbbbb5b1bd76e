// Package config provides configuration management for keeper.
//
// Configuration is assembled in the following order (later overrides earlier):
//
//  1. Default values (defaults.go)
//  2. Values from an optional YAML file (keeper.yaml by default)
//  3. Environment variable overrides
//  4. Public domain resolution
//  5. Validation (fails fast if invalid)
//
// # Environment Variables
//
// Every setting can be overridden with KEEPER_SECTION_FIELD, for example
// KEEPER_PROXY_FETCH_TIMEOUT or KEEPER_TELEMETRY_LOGGING_LEVEL. The short
// names that hosting platforms inject or that existing deployments already
// use are honoured too:
//
//   - PORT overrides server.port
//   - UUID overrides identity.uuid
//   - WSPATH overrides identity.ws_path
//   - V2RAY_PORT overrides proxy.inbound_port
//
// The public domain is resolved from KEEPER_DOMAIN or DOMAIN first, then
// identity.domain from the file, then the platform variables listed in the
// identity package. When nothing matches, Identity.DomainFallback is set and
// the caller is expected to warn about it.
//
// # Validation
//
// A malformed identity (bad UUID, a path without a leading slash, a port out
// of range) makes the deployment unusable, so Load returns a ValidationError
// and the process must exit before binding a listener.
//
// There is no package-level configuration singleton: Load returns a value
// that the caller passes to the components that need it.
package config
