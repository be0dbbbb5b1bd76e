package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/proxyconf"
)

var configTemplate = template.Must(template.New("config").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>V2Ray Configuration</title></head>
<body>
<h1>V2Ray Configuration</h1>
<p>Scan this QR code with your V2Ray client:</p>
<img src="{{.QRCode}}" alt="QR code" />
<p>Or use this VMess link:</p>
<code>{{.URI}}</code>
<h2>Manual Configuration:</h2>
<pre>{{.Manual}}</pre>
{{- if .Fallback}}
<p><strong>Warning:</strong> no public domain was detected; set DOMAIN to the address clients should use.</p>
{{- end}}
</body>
</html>
`))

// configView is what the config page and JSON endpoint render.
type configView struct {
	Descriptor proxyconf.Descriptor `json:"descriptor"`
	URI        string               `json:"uri"`
	QRCode     template.URL         `json:"qr_code"`
	Manual     string               `json:"-"`
	Fallback   bool                 `json:"fallback_domain"`
}

// ConfigHandler serves the client connection descriptor. Every request
// derives it again from the immutable identity.
type ConfigHandler struct {
	params      identity.Parameters
	displayName string
	logger      *slog.Logger
}

// NewConfigHandler creates a config handler for params. displayName
// overrides the descriptor remark when set.
func NewConfigHandler(params identity.Parameters, displayName string, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{params: params, displayName: displayName, logger: logger}
}

func (h *ConfigHandler) view() (configView, error) {
	if h.params.IsZero() {
		return configView{}, &QueryError{Op: "config", Err: fmt.Errorf("identity not initialised")}
	}

	d := proxyconf.BuildDescriptor(h.params, h.params.PublicDomain(), proxyconf.WithDisplayName(h.displayName))
	uri, err := proxyconf.EncodeURI(d)
	if err != nil {
		return configView{}, &QueryError{Op: "config", Err: err}
	}
	manual, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return configView{}, &QueryError{Op: "config", Err: err}
	}

	return configView{
		Descriptor: d,
		URI:        uri,
		// QRCodeURL query-escapes the link, so the URL is safe to emit.
		QRCode:   template.URL(proxyconf.QRCodeURL(uri)),
		Manual:   string(manual),
		Fallback: h.params.PublicDomain() == identity.FallbackDomain,
	}, nil
}

// ServeHTTP renders the HTML page: QR code, link and manual JSON.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r.Method) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	v, err := h.view()
	if err == nil {
		if execErr := configTemplate.Execute(&buf, v); execErr != nil {
			err = &QueryError{Op: "config", Err: execErr}
		}
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "config query failed", "error", err)
		http.Error(w, "Error generating configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// JSON returns a handler serving the descriptor and link as JSON.
func (h *ConfigHandler) JSON() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(r.Method) {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		v, err := h.view()
		if err != nil {
			h.logger.ErrorContext(r.Context(), "config query failed", "error", err)
			http.Error(w, "Error generating configuration", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	})
}
