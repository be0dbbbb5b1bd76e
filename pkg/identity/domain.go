package identity

import (
	"net"
	"net/url"
	"strings"
)

// Resolution describes where a public domain came from.
type Resolution struct {
	// Domain is the resolved hostname, without scheme or port.
	Domain string

	// Source names the variable that supplied Domain, or "fallback".
	Source string

	// Fallback is true when no variable was set and FallbackDomain is used.
	Fallback bool
}

// domainSource is one step of the resolution chain.
type domainSource struct {
	name      string
	transform func(string) string
}

// domainSources is ordered: explicit overrides first, then the variables the
// hosting platforms inject.
var domainSources = []domainSource{
	{name: "KEEPER_DOMAIN", transform: hostOnly},
	{name: "DOMAIN", transform: hostOnly},
	{name: "RAILWAY_PUBLIC_DOMAIN", transform: hostOnly},
	{name: "RENDER_EXTERNAL_HOSTNAME", transform: hostOnly},
	{name: "RENDER_EXTERNAL_URL", transform: hostOnly},
	{name: "KOYEB_PUBLIC_DOMAIN", transform: hostOnly},
	{name: "PROJECT_DOMAIN", transform: glitchHost},
}

// ResolveDomain walks the domain variables in order using lookup (usually
// os.Getenv) and returns the first non-empty one.
func ResolveDomain(lookup func(string) string) Resolution {
	for _, src := range domainSources {
		raw := strings.TrimSpace(lookup(src.name))
		if raw == "" {
			continue
		}
		if host := src.transform(raw); host != "" {
			return Resolution{Domain: host, Source: src.name}
		}
	}
	return Resolution{Domain: FallbackDomain, Source: "fallback", Fallback: true}
}

// hostOnly strips an optional scheme, path and port from raw and lowercases
// the result. IPv6 literals lose their brackets.
func hostOnly(raw string) string {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	host := raw
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(host)
}

// glitchHost turns a Glitch project name into its public hostname.
func glitchHost(project string) string {
	project = hostOnly(project)
	if project == "" || strings.HasSuffix(project, ".glitch.me") {
		return project
	}
	return project + ".glitch.me"
}
