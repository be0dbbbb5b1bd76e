package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks client ids and share links in log output. Operators
// running keeper on shared log infrastructure turn it on with
// telemetry.logging.redact_ids.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternShareLink = "share_link"
	PatternUUID      = "uuid"
)

// NewRedactor creates a Redactor with the built-in patterns. Share links
// are matched first so a link's embedded id is not half-masked.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*redactPattern{
			{
				name:        PatternShareLink,
				regex:       regexp.MustCompile(`vmess://[A-Za-z0-9+/=_-]+`),
				replacement: "vmess://***",
			},
			{
				name:        PatternUUID,
				regex:       regexp.MustCompile(`\b([0-9a-fA-F]{8})-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
				replacement: "$1-****",
			},
		},
	}
}

// RedactString masks every id and share link in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook applying the same
// rules to every attribute, including those added with With.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactID(a.Value.String()))
	}
	if v := a.Value.String(); v != "" {
		if masked := r.RedactString(v); masked != v {
			return slog.String(a.Key, masked)
		}
	}
	return a
}

// isSensitiveKey checks if a key name carries a client secret.
func isSensitiveKey(key string) bool {
	switch strings.ToLower(key) {
	case "uuid", "client_id", "id", "uri", "link":
		return true
	}
	return false
}

// RedactID keeps the first eight characters of an id for correlation.
func RedactID(id string) string {
	if strings.HasPrefix(id, "vmess://") {
		return "vmess://***"
	}
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "-****"
}
