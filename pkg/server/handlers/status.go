package handlers

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wayfarer-hq/keeper/pkg/supervisor"
)

var statusTemplate = template.Must(template.New("status").Funcs(template.FuncMap{
	"join": strings.Join,
	"since": func(t time.Time) string {
		return time.Since(t).Round(time.Second).String()
	},
	"stamp": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(`<pre>
state:      {{.State}}
{{- with .Reason}}
reason:     {{.}}
{{- end}}
{{- if .PID}}
pid:        {{.PID}}
command:    {{join .Args " "}}
started_at: {{stamp .StartedAt}}
{{- end}}
{{- if eq .State.String "running"}}
uptime:     {{since .StartedAt}}
{{- end}}
{{- if not .ExitedAt.IsZero}}
exited_at:  {{stamp .ExitedAt}}
exit_code:  {{.ExitCode}}
{{- with .Signal}}
signal:     {{.}}
{{- end}}
{{- end}}
</pre>
`))

// StatusHandler renders the supervisor status as preformatted text.
type StatusHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(source StatusSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{source: source, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r.Method) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := h.render()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status query failed", "error", err)
		http.Error(w, "Error checking status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

func (h *StatusHandler) render() ([]byte, error) {
	var st supervisor.Status
	if h.source != nil {
		st = h.source.Status()
	}

	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, st); err != nil {
		return nil, &QueryError{Op: "status", Err: err}
	}
	return buf.Bytes(), nil
}
